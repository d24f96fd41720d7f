package coverage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runview/internal/dom"
)

const profile = `mode: set
example.com/calc/add.go:3.24,5.2 1 1
example.com/calc/add.go:7.24,8.12 1 1
example.com/calc/add.go:8.12,10.3 1 0
example.com/calc/add.go:11.2,11.14 1 1
example.com/calc/empty.go:3.14,3.16 0 0
`

const addSource = `package calc

func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	if a < b {
		return 0
	}
	return a - b
}
`

func sources(files map[string]string) SourceReader {
	return func(name string) ([]byte, error) {
		if s, ok := files[name]; ok {
			return []byte(s), nil
		}
		return nil, os.ErrNotExist
	}
}

func TestFacility_FinishRunsChainOnce(t *testing.T) {
	var calls []string
	f := NewFacility(func() { calls = append(calls, "render") })

	orig := f.TestsDone()
	f.SetTestsDone(func() {
		orig()
		calls = append(calls, "post")
	})

	assert.True(t, f.Finish())
	assert.False(t, f.Finish())
	assert.Equal(t, []string{"render", "post"}, calls)
}

func TestFacility_FinishWithoutCallback(t *testing.T) {
	assert.False(t, NewFacility(nil).Finish())
}

func TestParse_Summary(t *testing.T) {
	rep, err := Parse(strings.NewReader(profile), nil)
	require.NoError(t, err)

	assert.Equal(t, "set", rep.Mode)
	require.Len(t, rep.Files, 2)
	assert.Equal(t, "example.com/calc/add.go", rep.Files[0].Name)
	assert.Equal(t, 4, rep.Files[0].Statements)
	assert.Equal(t, 3, rep.Files[0].Covered)
	assert.InDelta(t, 75.0, rep.Files[0].Percent(), 1e-9)
	assert.Empty(t, rep.Files[0].Lines)

	assert.InDelta(t, 100.0, rep.Files[1].Percent(), 1e-9, "files without statements count as covered")
	assert.InDelta(t, 75.0, rep.Percent(), 1e-9)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("not a profile\n"), nil)
	assert.Error(t, err)
}

func TestParse_AnnotatesLines(t *testing.T) {
	rep, err := Parse(strings.NewReader(profile), sources(map[string]string{
		"example.com/calc/add.go": addSource,
	}))
	require.NoError(t, err)

	lines := rep.Files[0].Lines
	require.Len(t, lines, 12)
	assert.False(t, lines[0].Instrumented, "package clause")
	assert.True(t, lines[3].Covered(), "return a + b")
	assert.True(t, lines[8].Instrumented)
	assert.False(t, lines[8].Covered(), "return 0 never ran")
	assert.False(t, lines[7].Covered(), "a line shared with a missed block is missed")
	assert.True(t, lines[10].Covered())
	assert.Equal(t, "\treturn a - b", lines[10].Text)
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "calc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "calc", "add.go"), []byte(addSource), 0o644))

	read := DirSource(root, "example.com")
	data, err := read("example.com/calc/add.go")
	require.NoError(t, err)
	assert.Equal(t, addSource, string(data))

	_, err = read("example.com/calc/missing.go")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cover.out")
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o644))

	rep, err := Load(path, nil)
	require.NoError(t, err)
	assert.Len(t, rep.Files, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.out"), nil)
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	rep, err := Parse(strings.NewReader(profile), sources(map[string]string{
		"example.com/calc/add.go": addSource,
	}))
	require.NoError(t, err)

	doc := dom.New()
	require.NoError(t, Render(doc, rep, 80))

	main := doc.Find("#blanket-main")
	assert.Equal(t, "Results", main.Find(".bl-title > .bl-file").Text())
	assert.Equal(t, "75 %", main.Find(".bl-title .bl-percent").Text())
	assert.Equal(t, "3/4", main.Find(".bl-title .bl-ratio").Text())

	rows := main.Find(".blanket")
	require.Equal(t, 2, rows.Length())
	assert.True(t, rows.Eq(0).HasClass("bl-failed"))
	assert.True(t, rows.Eq(1).HasClass("bl-success"))
	assert.Equal(t, "example.com/calc/add.go", rows.Eq(0).Find("a").Text())

	source := main.Find(".bl-source")
	require.Equal(t, 1, source.Length(), "only files with readable source get a listing")
	assert.True(t, dom.IsHidden(source))
	assert.Equal(t, 12, source.Children().Length())
	assert.Equal(t, 5, source.Find(".hit").Length())
	assert.Equal(t, 3, source.Find(".miss").Length())

	doc.Trigger(rows.Eq(0), "click")
	assert.False(t, dom.IsHidden(source))

	var direct []string
	source.Children().Eq(3).Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			direct = append(direct, s.Text())
		}
	})
	assert.Equal(t, []string{"\treturn a + b"}, direct)
}

func TestRender_EscapesSourceLines(t *testing.T) {
	rep := &Report{Files: []File{{
		Name:  "calc/quote.go",
		Lines: []Line{{Number: 1, Text: `s := "&lt;b&gt; &amp;" + '<'`}},
	}}}

	doc := dom.New()
	require.NoError(t, Render(doc, rep, 0))

	line := doc.Find("#blanket-main .bl-source > div")
	require.Equal(t, 1, line.Length())
	assert.Equal(t, "1", line.Find(".bl-line").Text())
	assert.Equal(t, "1s := &quot;&amp;lt;b&amp;gt; &amp;amp;&quot; + &apos;&lt;&apos;", line.Text())
}

func TestRender_ReplacesPreviousReport(t *testing.T) {
	rep, err := Parse(strings.NewReader(profile), nil)
	require.NoError(t, err)

	doc := dom.New()
	require.NoError(t, Render(doc, rep, 0))
	require.NoError(t, Render(doc, rep, 0))
	assert.Equal(t, 1, doc.Find("#blanket-main .bl-title").Length())
}

func TestRender_MissingTarget(t *testing.T) {
	doc, err := dom.Parse(strings.NewReader(`<html><body></body></html>`))
	require.NoError(t, err)
	assert.ErrorIs(t, Render(doc, &Report{}, 0), ErrMissingTarget)
}
