package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Diagnostics is the channel "Dump stack" actions write to.
//
// Thread-safety: DumpStack may be called from any goroutine.
type Diagnostics struct {
	mu  sync.Mutex
	w   io.Writer
	pal palette
}

// NewDiagnostics writes dumps to w, colourised according to mode.
func NewDiagnostics(w io.Writer, mode ColorMode) *Diagnostics {
	return &Diagnostics{w: w, pal: palette{enabled: useColor(w, mode)}}
}

// DumpStack writes the full stack of a failure under its test title.
func (d *Diagnostics) DumpStack(title, stack string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	heading := d.pal.with(colorFailure...)
	frame := d.pal.with(colorFaint...)

	fmt.Fprintln(d.w, heading.Sprint(title))
	for _, line := range strings.Split(strings.TrimRight(stack, "\n"), "\n") {
		fmt.Fprintln(d.w, frame.Sprint("    "+line))
	}
}
