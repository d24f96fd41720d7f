package reporter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/runview/internal/dom"
	"github.com/roach88/runview/internal/event"
)

// Speed classes assigned to rendered tests.
const (
	SpeedSlow   = "slow"
	SpeedMedium = "medium"
	SpeedFast   = "fast"
)

// fragmentForTest renders one test (or failed hook) as a detached list item.
func (r *Reporter) fragmentForTest(test *event.TestInfo) *goquery.Selection {
	frag := r.doc.MustFragment(testMarkup)
	h2 := frag.Find("h2")

	frag.Find("h2 .title").SetText(test.Title)
	frag.AddClass(SpeedOf(test))

	switch {
	case test.State == event.StatePassed:
		frag.AddClass("pass")
		h2.AppendHtml(`<span class="duration"></span>`)
		frag.Find(".duration").SetText(fmt.Sprintf("%dms", test.Duration.Milliseconds()))
	case test.Pending:
		frag.AddClass("pass", "pending")
	default:
		frag.AddClass("fail")
		frag.AppendHtml(`<pre class="error"></pre>`)
		errPre := frag.Find(".error")
		errPre.SetText(ErrorSummary(test.Err))
		errPre.AppendHtml(`<div class="dump">Dump stack to console</div>`)

		title, stack := test.FullTitle, dumpText(test.Err)
		r.doc.On(frag.Find(".dump"), "click", func(*goquery.Selection) {
			r.diag.DumpStack(title, stack)
		})
	}

	if !test.Pending {
		h2.AppendHtml(`<a class="replay" title="Replay">‣</a>`)
		h2.Find(".replay").SetAttr("href", r.loc.GrepURL(test.FullTitle))

		code := r.doc.MustFragment(codeMarkup)
		if test.State == event.StatePassed {
			dom.Hide(code)
		}
		code.Find("code").SetText(CleanCode(test.Source))
		frag.AppendSelection(code)
		r.doc.On(h2, "click", func(*goquery.Selection) { dom.Toggle(code) })
	}

	return frag
}

// SpeedOf classifies a test's duration against its slow threshold: above
// the threshold is slow, above half of it medium, anything else fast.
func SpeedOf(test *event.TestInfo) string {
	slow := test.Slow
	medium := slow / 2
	switch {
	case test.Duration > slow:
		return SpeedSlow
	case test.Duration > medium:
		return SpeedMedium
	}
	return SpeedFast
}

// ErrorSummary formats an error for inline display. The message appears
// exactly once: the stack is used as is when it already contains it. When
// there is no stack, a recorded source location is appended.
func ErrorSummary(rec *event.ErrorRecord) string {
	if rec == nil {
		return ""
	}
	summary := rec.Stack
	if summary == "" {
		summary = rec.Message
	}
	if !strings.Contains(summary, rec.Message) {
		summary = rec.Message + "\n" + summary
	}
	if rec.Stack == "" && rec.HasLocation() {
		summary += fmt.Sprintf("\n(%s:%d)", rec.SourceURL, rec.Line)
	}
	return summary
}

func dumpText(rec *event.ErrorRecord) string {
	if rec == nil {
		return ""
	}
	if rec.Stack != "" {
		return rec.Stack
	}
	return rec.Message
}

var (
	newlines    = regexp.MustCompile("\r\n?|[\u2028\u2029]")
	funcWrapper = regexp.MustCompile(`^func\s*\w*\s*\([^\n]*?\)[^{\n]*\{`)
	closingBody = regexp.MustCompile(`\s+\}$`)
	leadingTabs = regexp.MustCompile(`^\n?(\t*)`)
	leadingSp   = regexp.MustCompile(`^\n?( *)`)
)

// CleanCode turns the source of a function into its displayable body:
// the func signature and closing brace are dropped and the common
// indentation of the first line is removed from every line.
func CleanCode(code string) string {
	code = newlines.ReplaceAllString(code, "\n")
	code = strings.TrimPrefix(code, "\uFEFF")
	code = norm.NFC.String(code)
	code = funcWrapper.ReplaceAllString(code, "")
	code = closingBody.ReplaceAllString(code, "")

	ws, count := " ", len(leadingSp.FindStringSubmatch(code)[1])
	if tabs := len(leadingTabs.FindStringSubmatch(code)[1]); tabs > 0 {
		ws, count = `\t`, tabs
	}
	if count > 0 {
		indent := regexp.MustCompile(fmt.Sprintf(`(?m)^%s{%d}`, ws, count))
		code = indent.ReplaceAllString(code, "")
	}
	return strings.TrimSpace(code)
}
