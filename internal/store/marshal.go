package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/runview/internal/event"
)

// storedPayload is the JSON form of an event payload. The error is kept in
// its display form only.
type storedPayload struct {
	Suite *event.SuiteInfo   `json:"suite,omitempty"`
	Test  *event.TestInfo    `json:"test,omitempty"`
	Err   *event.ErrorRecord `json:"err,omitempty"`
	Total int                `json:"total,omitempty"`
}

// marshalPayload converts a payload to JSON TEXT for storage.
// HTML escaping is disabled so titles and source text are stored verbatim.
func marshalPayload(p event.Payload) (string, error) {
	sp := storedPayload{
		Suite: p.Suite,
		Test:  p.Test,
		Err:   event.NewErrorRecord(p.Err),
		Total: p.Total,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sp); err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalPayload parses JSON TEXT back to a payload. A recorded error
// comes back as *event.ErrorRecord, which yields the same record again.
func unmarshalPayload(data string) (event.Payload, error) {
	var sp storedPayload
	if err := json.Unmarshal([]byte(data), &sp); err != nil {
		return event.Payload{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	p := event.Payload{Suite: sp.Suite, Test: sp.Test, Total: sp.Total}
	if sp.Err != nil {
		p.Err = sp.Err
	}
	return p, nil
}
