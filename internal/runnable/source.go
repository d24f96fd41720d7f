package runnable

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

var sourceCache sync.Map // uintptr -> string

// SourceOf returns the source text of the function literal or declaration
// fn was compiled from, or "" when the source file is not available.
//
// Lookup uses the function's entry position recorded in the binary, so it
// only works where the source tree is present (tests, local runs).
func SourceOf(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	pc := v.Pointer()
	if cached, ok := sourceCache.Load(pc); ok {
		return cached.(string)
	}

	src := ""
	if f := runtime.FuncForPC(pc); f != nil {
		file, line := f.FileLine(f.Entry())
		src = sourceAt(file, line, closureDepth(f.Name()))
	}
	sourceCache.Store(pc, src)
	return src
}

// closureDepth counts the closure levels in a compiled function name:
// "pkg.F" is 0, "pkg.F.func1" is 1, "pkg.F.func1.2" is 2.
func closureDepth(name string) int {
	parts := strings.Split(name[strings.LastIndex(name, "/")+1:], ".")
	depth := 0
	for i := len(parts) - 1; i > 0; i-- {
		if !isClosureSegment(parts[i]) {
			break
		}
		depth++
	}
	return depth
}

func isClosureSegment(s string) bool {
	s = strings.TrimPrefix(s, "func")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type funcCandidate struct {
	node  ast.Node
	depth int
	span  token.Pos
}

// sourceAt slices out of file the function whose text spans line. The
// entry line of a literal is its first statement, not its func keyword,
// so every enclosing function is a candidate; the innermost one at the
// expected closure depth wins, then the innermost overall.
func sourceAt(file string, line, depth int) string {
	data, err := os.ReadFile(file)
	if err != nil {
		return ""
	}
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, file, data, parser.SkipObjectResolution)
	if err != nil {
		return ""
	}

	var (
		stack      []ast.Node
		candidates []funcCandidate
	)
	ast.Inspect(parsed, func(n ast.Node) bool {
		if n == nil {
			stack = stack[:len(stack)-1]
			return true
		}
		stack = append(stack, n)
		switch n.(type) {
		case *ast.FuncLit, *ast.FuncDecl:
		default:
			return true
		}
		start, end := fset.Position(n.Pos()).Line, fset.Position(n.End()).Line
		if line < start || line > end {
			// nothing below a function that misses line can contain it
			stack = stack[:len(stack)-1]
			return false
		}
		lits := 0
		for _, outer := range stack {
			if _, ok := outer.(*ast.FuncLit); ok {
				lits++
			}
		}
		candidates = append(candidates, funcCandidate{node: n, depth: lits, span: n.End() - n.Pos()})
		return true
	})

	var best, bestAtDepth *funcCandidate
	for i := range candidates {
		c := &candidates[i]
		if best == nil || c.span < best.span {
			best = c
		}
		if c.depth == depth && (bestAtDepth == nil || c.span < bestAtDepth.span) {
			bestAtDepth = c
		}
	}
	if bestAtDepth != nil {
		best = bestAtDepth
	}
	if best == nil {
		return ""
	}

	start := fset.Position(best.node.Pos()).Offset
	end := fset.Position(best.node.End()).Offset
	if start < 0 || end > len(data) || start >= end {
		return ""
	}
	return string(data[start:end])
}
