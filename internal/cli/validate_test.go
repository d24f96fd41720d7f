package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validateResponse struct {
	Status string           `json:"status"`
	Data   ValidationResult `json:"data"`
	Error  *CLIError        `json:"error"`
}

func TestValidate_Valid(t *testing.T) {
	out, _, err := execute(t, "--config", "testdata/runview.yaml", "validate", "testdata/pass.yaml", "testdata/fail.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ testdata/runview.yaml (config)")
	assert.Contains(t, out, "✓ testdata/pass.yaml (script)")
	assert.Contains(t, out, "✓ testdata/fail.yaml (script)")
}

func TestValidate_Invalid(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "--config", "testdata/bad_config.yaml",
		"validate", "testdata/pass.yaml", "testdata/invalid.yaml", "testdata/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp validateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Files, 4)

	cfg := resp.Data.Files[0]
	assert.Equal(t, "config", cfg.Kind)
	assert.False(t, cfg.Valid)
	require.NotEmpty(t, cfg.Issues)
	assert.Equal(t, "timeout", cfg.Issues[0].Field)

	assert.True(t, resp.Data.Files[1].Valid)

	invalid := resp.Data.Files[2]
	require.Len(t, invalid.Issues, 1)
	assert.Equal(t, ErrCodeInvalid, invalid.Issues[0].Code)
	assert.Contains(t, invalid.Issues[0].Message, `unknown outcome "explode"`)

	missing := resp.Data.Files[3]
	require.Len(t, missing.Issues, 1)
	assert.Equal(t, ErrCodeNotFound, missing.Issues[0].Code)
}

func TestValidate_TextListsIssues(t *testing.T) {
	out, _, err := execute(t, "validate", "testdata/invalid.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "✗ testdata/invalid.yaml (script)")
	assert.Contains(t, out, "E003")
}

func TestValidate_NothingToDo(t *testing.T) {
	_, _, err := execute(t, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
