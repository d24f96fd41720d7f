package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PreservesOrderAndHash(t *testing.T) {
	l, err := Parse("/tests?b=2&a=1&flag#hide_passed")
	require.NoError(t, err)

	assert.Equal(t, "/tests", l.Path())
	assert.Equal(t, "hide_passed", l.Hash())

	v, ok := l.Param("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	v, ok = l.Param("flag")
	assert.True(t, ok)
	assert.Empty(t, v)

	assert.False(t, l.HasParam("missing"))
	assert.Equal(t, "/tests?b=2&a=1&flag#hide_passed", l.String())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("/tests?grep=%zz")
	assert.Error(t, err)
}

func TestSetAndClearParam(t *testing.T) {
	l := MustParse("/?coverage=true&grep=x&coverage=again")

	l.SetParam(ParamCoverage, "false")
	assert.Equal(t, "/?coverage=false&grep=x", l.String())

	l.SetParam(ParamNoTryCatch, "true")
	assert.Equal(t, "/?coverage=false&grep=x&no_try_catch=true", l.String())

	l.ClearParam(ParamCoverage)
	assert.Equal(t, "/?grep=x&no_try_catch=true", l.String())
	assert.Equal(t, "?grep=x&no_try_catch=true", l.Search())
}

func TestSetHash(t *testing.T) {
	l := MustParse("/")

	l.SetHash("#hide_passed")
	assert.Equal(t, "hide_passed", l.Hash())
	assert.Equal(t, "/#hide_passed", l.String())

	l.SetHash("#")
	assert.Empty(t, l.Hash())
	assert.Equal(t, "/", l.String())
}

func TestReload(t *testing.T) {
	l := MustParse("/")
	var seen []string
	l.OnReload(func(loc *Location) { seen = append(seen, loc.String()) })

	l.SetParam(ParamCoverage, "true")
	l.Reload()

	assert.Equal(t, 1, l.Reloads())
	assert.Equal(t, []string{"/?coverage=true"}, seen)
}

func TestGrepURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		pattern string
		want    string
	}{
		{name: "no query", url: "/tests", pattern: "math adds", want: "/tests?grep=math%20adds"},
		{name: "keeps other params", url: "/tests?coverage=true", pattern: "a", want: "/tests?coverage=true&grep=a"},
		{name: "strips existing grep", url: "/tests?grep=old&coverage=true", pattern: "new", want: "/tests?coverage=true&grep=new"},
		{name: "strips only grep", url: "/tests?grep=old", pattern: "new", want: "/tests?grep=new"},
		{name: "escapes", url: "/", pattern: `a&b "c"/d`, want: "/?grep=a%26b%20%22c%22%2Fd"},
		{name: "drops hash", url: "/x#hide_passed", pattern: "t", want: "/x?grep=t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParse(tt.url).GrepURL(tt.pattern))
		})
	}
}
