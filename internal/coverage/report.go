package coverage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/cover"
)

// SourceReader returns the contents of a profiled file, keyed by the file
// name recorded in the profile (usually an import path).
type SourceReader func(name string) ([]byte, error)

// DirSource resolves import paths under module to files below root.
// Names outside module are read relative to root as they are.
func DirSource(root, module string) SourceReader {
	return func(name string) ([]byte, error) {
		rel := name
		if module != "" {
			rel = strings.TrimPrefix(strings.TrimPrefix(name, module), "/")
		}
		return os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	}
}

// Line is one source line annotated with execution counts.
type Line struct {
	Number       int    `json:"number"`
	Text         string `json:"text"`
	Instrumented bool   `json:"instrumented"`
	Hits         int    `json:"hits"`
}

// Covered reports whether an instrumented line ran.
func (l Line) Covered() bool {
	return l.Instrumented && l.Hits > 0
}

// File is the coverage of one profiled file.
type File struct {
	Name       string `json:"name"`
	Statements int    `json:"statements"`
	Covered    int    `json:"covered"`
	// Lines is empty when the source could not be read.
	Lines []Line `json:"lines,omitempty"`
}

// Percent is the share of covered statements, 100 for an empty file.
func (f File) Percent() float64 {
	return percent(f.Covered, f.Statements)
}

// Report is the coverage of a whole profile.
type Report struct {
	Mode       string `json:"mode"`
	Files      []File `json:"files"`
	Statements int    `json:"statements"`
	Covered    int    `json:"covered"`
}

// Percent is the share of covered statements over all files.
func (r *Report) Percent() float64 {
	return percent(r.Covered, r.Statements)
}

func percent(covered, total int) float64 {
	if total == 0 {
		return 100
	}
	return 100 * float64(covered) / float64(total)
}

// Load parses the cover profile at path.
func Load(path string, src SourceReader) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cover profile: %w", err)
	}
	defer f.Close()
	return Parse(f, src)
}

// Parse reads a cover profile. src may be nil, in which case files carry
// statement counts only.
func Parse(r io.Reader, src SourceReader) (*Report, error) {
	profiles, err := cover.ParseProfilesFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse cover profile: %w", err)
	}
	return FromProfiles(profiles, src), nil
}

// FromProfiles summarizes parsed profiles. Files are sorted by name.
func FromProfiles(profiles []*cover.Profile, src SourceReader) *Report {
	rep := &Report{}
	for _, p := range profiles {
		if rep.Mode == "" {
			rep.Mode = p.Mode
		}
		file := File{Name: p.FileName}
		for _, b := range p.Blocks {
			file.Statements += b.NumStmt
			if b.Count > 0 {
				file.Covered += b.NumStmt
			}
		}
		if src != nil {
			if data, err := src(p.FileName); err == nil {
				file.Lines = annotate(data, p.Blocks)
			}
		}
		rep.Statements += file.Statements
		rep.Covered += file.Covered
		rep.Files = append(rep.Files, file)
	}
	sort.Slice(rep.Files, func(i, j int) bool { return rep.Files[i].Name < rep.Files[j].Name })
	return rep
}

// annotate marks every line spanned by a block. A line touched by an
// unexecuted block counts as missed even when another block on it ran.
func annotate(data []byte, blocks []cover.ProfileBlock) []Line {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	texts := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	lines := make([]Line, len(texts))
	missed := make([]bool, len(texts))
	for i, text := range texts {
		lines[i] = Line{Number: i + 1, Text: text}
	}
	for _, b := range blocks {
		for n := b.StartLine; n <= b.EndLine && n <= len(lines); n++ {
			if n < 1 {
				continue
			}
			l := &lines[n-1]
			l.Instrumented = true
			if b.Count == 0 {
				missed[n-1] = true
			}
			l.Hits = max(l.Hits, b.Count)
		}
	}
	for i := range lines {
		if missed[i] {
			lines[i].Hits = 0
		}
	}
	return lines
}
