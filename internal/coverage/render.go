package coverage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/roach88/runview/internal/dom"
)

// ErrMissingTarget is returned by Render when the document has no
// #blanket-main element.
var ErrMissingTarget = errors.New("#blanket-main missing")

const (
	titleMarkup = `<div class="bl-title"><div class="bl-file"></div><div class="bl-cl bl-percent"></div><div class="bl-cl bl-ratio"></div></div>`
	fileMarkup  = `<div class="blanket"><div class="bl-file"><a></a></div><div class="bl-cl bl-percent"></div><div class="bl-cl bl-ratio"></div></div>`
	// Source lines start collapsed and open with a click on the file row.
	sourceMarkup = `<div class="bl-source" style="display: none"></div>`
)

// sourceEscaper escapes source lines the way blanket-style reports carry
// them. The reporter decodes one level when coverage completes.
var sourceEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Render writes rep into #blanket-main, replacing anything already there.
// Files below threshold percent get the bl-failed class, the rest
// bl-success.
func Render(doc *dom.Document, rep *Report, threshold float64) error {
	main := doc.Find("#blanket-main")
	if main.Length() == 0 {
		return ErrMissingTarget
	}
	doc.Forget(main.Children())
	main.Empty()

	title := doc.MustFragment(titleMarkup)
	title.Find(".bl-file").SetText("Results")
	title.Find(".bl-percent").SetText(formatPercent(rep.Percent()))
	title.Find(".bl-ratio").SetText(ratio(rep.Covered, rep.Statements))
	main.AppendSelection(title)

	for _, f := range rep.Files {
		row := doc.MustFragment(fileMarkup)
		row.Find("a").SetText(f.Name)
		row.Find(".bl-percent").SetText(formatPercent(f.Percent()))
		row.Find(".bl-ratio").SetText(ratio(f.Covered, f.Statements))
		if f.Percent() < threshold {
			row.AddClass("bl-failed")
		} else {
			row.AddClass("bl-success")
		}
		main.AppendSelection(row)

		if len(f.Lines) == 0 {
			continue
		}
		source := doc.MustFragment(sourceMarkup)
		for _, l := range f.Lines {
			source.AppendSelection(lineFragment(doc, l))
		}
		main.AppendSelection(source)
		doc.On(row, "click", func(*goquery.Selection) { dom.Toggle(source) })
	}
	return nil
}

func lineFragment(doc *dom.Document, l Line) *goquery.Selection {
	div := doc.MustFragment(`<div><span class="bl-line"></span></div>`)
	div.Find(".bl-line").SetText(strconv.Itoa(l.Number))
	div.AppendNodes(&html.Node{Type: html.TextNode, Data: sourceEscaper.Replace(l.Text)})
	switch {
	case l.Covered():
		div.AddClass("hit")
		div.SetAttr("title", fmt.Sprintf("%d hits", l.Hits))
	case l.Instrumented:
		div.AddClass("miss")
	}
	return div
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 0, 64) + " %"
}

func ratio(covered, total int) string {
	return fmt.Sprintf("%d/%d", covered, total)
}
