package reporter

import (
	"strings"

	"github.com/roach88/runview/internal/dom"
)

// CoverageFacility is a coverage tool exposing a completion callback.
type CoverageFacility interface {
	TestsDone() func()
	SetTestsDone(func())
}

// entityDecoder undoes the double escaping some coverage renderers apply
// to source lines. &amp; goes last so "&amp;lt;" decodes only once.
var entityDecoder = strings.NewReplacer(
	"&dollar;", "$",
	"&grave;", "`",
	"&apos;", "'",
	"&quot;", `"`,
	"&gt;", ">",
	"&lt;", "<",
)

func decodeEntities(s string) string {
	return strings.ReplaceAll(entityDecoder.Replace(s), "&amp;", "&")
}

// setupCoverage chains the reporter's post-processing after the facility's
// own completion callback, or hides the coverage toggle when there is no
// facility.
func (r *Reporter) setupCoverage() {
	if r.coverage == nil {
		dom.Hide(r.coverageBox.Closest(".test-option"))
		return
	}
	orig := r.coverage.TestsDone()
	r.coverage.SetTestsDone(func() {
		if orig != nil {
			orig()
		}
		r.onCoverageDone()
	})
}

func (r *Reporter) onCoverageDone() {
	main := r.doc.Find("#blanket-main")
	main.Find(".bl-title > .bl-file").SetText("Code Coverage")
	dom.ReplaceText(main.Find(".bl-source > div"), decodeEntities)
	r.updateHidePassed()
}
