// Package dom is the rendering surface the reporter mutates: an HTML
// document with selector queries, fragment construction and interaction
// listeners.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Listener handles one interaction on one element.
type Listener func(target *goquery.Selection)

// Document wraps a parsed HTML tree together with its registered listeners.
//
// Thread-safety: the tree itself is not synchronized. Callers serialize
// mutations (the reporter runs on a single dispatch goroutine). The
// listener registry is safe for concurrent use.
type Document struct {
	doc *goquery.Document

	mu        sync.RWMutex
	listeners map[*html.Node]map[string][]Listener
}

// DefaultMarkup is the page a fresh Document starts from.
const DefaultMarkup = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Tests</title></head>
<body><div id="mocha"></div><div id="blanket-main"></div></body>
</html>`

// New creates a Document from DefaultMarkup.
func New() *Document {
	d, err := Parse(strings.NewReader(DefaultMarkup))
	if err != nil {
		panic(fmt.Sprintf("dom: default markup: %v", err))
	}
	return d
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{doc: doc, listeners: make(map[*html.Node]map[string][]Listener)}, nil
}

// Find queries the whole document.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Title returns the text of the head's title element.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("head title").First().Text())
}

// Fragment parses markup into detached elements ready to be appended
// anywhere in d. Text between top-level elements is dropped.
func (d *Document) Fragment(markup string) (*goquery.Selection, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}

	var elems []*html.Node
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			elems = append(elems, n)
		}
	}
	if len(elems) == 0 {
		return nil, fmt.Errorf("parse fragment: no element in %q", markup)
	}

	sel := goquery.NewDocumentFromNode(elems[0]).Selection
	return sel.AddNodes(elems[1:]...), nil
}

// MustFragment is Fragment for markup known at compile time.
func (d *Document) MustFragment(markup string) *goquery.Selection {
	sel, err := d.Fragment(markup)
	if err != nil {
		panic(err)
	}
	return sel
}

// On registers l for eventType on every element of sel.
func (d *Document) On(sel *goquery.Selection, eventType string, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range sel.Nodes {
		byType := d.listeners[n]
		if byType == nil {
			byType = make(map[string][]Listener)
			d.listeners[n] = byType
		}
		byType[eventType] = append(byType[eventType], l)
	}
}

// Trigger dispatches eventType to the listeners of every element of sel and
// returns how many listeners ran. Events do not bubble.
func (d *Document) Trigger(sel *goquery.Selection, eventType string) int {
	ran := 0
	for _, n := range sel.Nodes {
		d.mu.RLock()
		ls := append([]Listener(nil), d.listeners[n][eventType]...)
		d.mu.RUnlock()

		target := sel.FilterNodes(n)
		for _, l := range ls {
			l(target)
			ran++
		}
	}
	return ran
}

// Forget drops the listeners of sel and its descendants. Call it after
// removing elements from the tree.
func (d *Document) Forget(sel *goquery.Selection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range sel.Nodes {
		forget(d.listeners, n)
	}
}

func forget(m map[*html.Node]map[string][]Listener, n *html.Node) {
	delete(m, n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		forget(m, c)
	}
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("render document: %w", err)
		}
	}
	return nil
}

// String renders the document, or the render error text.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return err.Error()
	}
	return buf.String()
}

// OuterHTML renders sel including its own tags.
func OuterHTML(sel *goquery.Selection) string {
	s, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	return s
}
