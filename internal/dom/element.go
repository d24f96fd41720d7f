package dom

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const hiddenStyle = "display: none"

// Hide sets display: none on every element of sel.
func Hide(sel *goquery.Selection) *goquery.Selection {
	return sel.Each(func(_ int, s *goquery.Selection) {
		if !IsHidden(s) {
			s.SetAttr("style", joinStyle(s.AttrOr("style", ""), hiddenStyle))
		}
	})
}

// Show removes display: none from every element of sel.
func Show(sel *goquery.Selection) *goquery.Selection {
	return sel.Each(func(_ int, s *goquery.Selection) {
		style := removeDecl(s.AttrOr("style", ""), "display")
		if style == "" {
			s.RemoveAttr("style")
			return
		}
		s.SetAttr("style", style)
	})
}

// Toggle flips the visibility of every element of sel.
func Toggle(sel *goquery.Selection) *goquery.Selection {
	return sel.Each(func(_ int, s *goquery.Selection) {
		if IsHidden(s) {
			Show(s)
			return
		}
		Hide(s)
	})
}

// IsHidden reports whether the first element of sel has display: none.
func IsHidden(sel *goquery.Selection) bool {
	for _, decl := range strings.Split(sel.AttrOr("style", ""), ";") {
		name, value, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(name) == "display" && strings.TrimSpace(value) == "none" {
			return true
		}
	}
	return false
}

// Checked reports whether the first element of sel carries the checked
// attribute.
func Checked(sel *goquery.Selection) bool {
	_, ok := sel.Attr("checked")
	return ok
}

// SetChecked adds or removes the checked attribute.
func SetChecked(sel *goquery.Selection, checked bool) *goquery.Selection {
	if checked {
		return sel.SetAttr("checked", "checked")
	}
	return sel.RemoveAttr("checked")
}

// Width reads the numeric width attribute of the first element of sel,
// falling back to def.
func Width(sel *goquery.Selection, def int) int {
	w, err := strconv.Atoi(strings.TrimSuffix(sel.AttrOr("width", ""), "px"))
	if err != nil || w <= 0 {
		return def
	}
	return w
}

// ReplaceText rewrites every text node directly under the elements of sel.
func ReplaceText(sel *goquery.Selection, f func(string) string) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if n.Type == html.TextNode {
				n.Data = f(n.Data)
			}
		}
	})
}

func joinStyle(style, decl string) string {
	style = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(style), ";"))
	if style == "" {
		return decl
	}
	return style + "; " + decl
}

func removeDecl(style, property string) string {
	var kept []string
	for _, decl := range strings.Split(style, ";") {
		name, _, _ := strings.Cut(decl, ":")
		if strings.TrimSpace(decl) == "" || strings.TrimSpace(name) == property {
			continue
		}
		kept = append(kept, strings.TrimSpace(decl))
	}
	return strings.Join(kept, "; ")
}
