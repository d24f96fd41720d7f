package reporter

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultLinters are the suite prefixes collapsed at the end of a run.
var DefaultLinters = []string{"JSHint", "JSCS"}

// groupDescribes moves the tests of every suite titled "<linter> - <file>"
// into one top-level suite named after the linter, renaming each test to
// its file. A group suite left by an earlier pass is reused, so suites
// reported later join it.
func (r *Reporter) groupDescribes(linter string) {
	prefix := linter + " - "

	type match struct {
		suite *goquery.Selection
		file  string
	}
	var matches []match
	r.doc.Find("#mocha-report .suite").Each(func(_ int, s *goquery.Selection) {
		title := s.ChildrenFiltered("h1").Text()
		if file, ok := strings.CutPrefix(title, prefix); ok {
			matches = append(matches, match{suite: s, file: file})
		}
	})
	if len(matches) == 0 {
		return
	}

	report := r.doc.Find("#mocha-report")
	group := report.ChildrenFiltered(".suite").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ChildrenFiltered("h1").Text() == linter
	}).First()
	fresh := group.Length() == 0
	if fresh {
		group = r.doc.MustFragment(suiteMarkup)
		group.Find("a").SetText(linter).SetAttr("href", r.loc.GrepURL(linter))
	}
	list := group.ChildrenFiltered("ul")

	for _, m := range matches {
		tests := m.suite.Find(".test")
		tests.Find(".title").SetText(m.file)
		list.AppendSelection(tests)
		m.suite.Remove()
	}

	group.RemoveClass("pass fail")
	if group.Find(".test.fail").Length() > 0 {
		group.AddClass("fail")
	} else {
		group.AddClass("pass")
	}
	if fresh {
		report.AppendSelection(group)
	}

	r.logger.Debug("grouped linter suites", "linter", linter, "suites", len(matches))
}
