// Package htmldom adapts golang.org/x/net/html trees to the page lifecycle:
// a live element node, a parser for root markup and a positional reconciler.
package htmldom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNoRoot means the markup holds no element to use as the root.
	ErrNoRoot = errors.New("markup has no root element")
	// ErrMultipleRoots means a fragment has more than one top-level element.
	ErrMultipleRoots = errors.New("markup has more than one root element")
	// ErrNotFound means no element has the requested id.
	ErrNotFound = errors.New("element not found")
)

// Node is a live element inside a parsed document.
type Node struct {
	n *html.Node
}

// Wrap returns n as a Node.
func Wrap(n *html.Node) *Node {
	return &Node{n: n}
}

// HTML returns the underlying element.
func (n *Node) HTML() *html.Node { return n.n }

// Document returns the topmost ancestor of the node.
func (n *Node) Document() *html.Node {
	top := n.n
	for top.Parent != nil {
		top = top.Parent
	}
	return top
}

// Dataset returns the element's data-* attributes keyed the way the DOM
// dataset API keys them: data-user-id becomes userId.
func (n *Node) Dataset() map[string]string {
	out := map[string]string{}
	if n == nil || n.n == nil {
		return out
	}
	for _, a := range n.n.Attr {
		if a.Namespace != "" || !strings.HasPrefix(a.Key, "data-") {
			continue
		}
		out[datasetKey(strings.TrimPrefix(a.Key, "data-"))] = a.Val
	}
	return out
}

func datasetKey(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '-' {
			upper = true
			continue
		}
		if upper && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = false
		b.WriteRune(r)
	}
	return b.String()
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// ParseRoot parses a document and returns its root element: the element with
// the given id, or the first element inside <body> when id is empty.
func ParseRoot(markup, id string) (*Node, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if id != "" {
		el := find(doc, func(n *html.Node) bool {
			v, ok := Attr(n, "id")
			return ok && v == id
		})
		if el == nil {
			return nil, fmt.Errorf("%w: #%s", ErrNotFound, id)
		}
		return Wrap(el), nil
	}
	body := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	if body == nil {
		return nil, ErrNoRoot
	}
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return Wrap(c), nil
		}
	}
	return nil, ErrNoRoot
}

// Fragment parses markup that must contain exactly one root element.
// Whitespace around the root is ignored. The returned node is detached.
func Fragment(markup string) (*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), bodyContext())
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	var root *html.Node
	for _, n := range nodes {
		switch {
		case n.Type == html.ElementNode:
			if root != nil {
				return nil, ErrMultipleRoots
			}
			root = n
		case n.Type == html.TextNode && strings.TrimSpace(n.Data) == "":
		case n.Type == html.CommentNode:
		default:
			return nil, ErrMultipleRoots
		}
	}
	if root == nil {
		return nil, ErrNoRoot
	}
	return root, nil
}

// Shell returns a detached copy of root's element, without children, whose
// content is inner parsed in the context of that element.
func Shell(root *html.Node, inner string) (*html.Node, error) {
	shell := &html.Node{
		Type:      html.ElementNode,
		DataAtom:  root.DataAtom,
		Data:      root.Data,
		Namespace: root.Namespace,
		Attr:      append([]html.Attribute(nil), root.Attr...),
	}
	children, err := html.ParseFragment(strings.NewReader(inner), shell)
	if err != nil {
		return nil, fmt.Errorf("parse content of <%s>: %w", root.Data, err)
	}
	for _, c := range children {
		shell.AppendChild(c)
	}
	return shell, nil
}

// Render serialises n.
func Render(n *html.Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return b.String(), nil
}

func bodyContext() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// clone deep-copies n without parent or sibling links.
func clone(n *html.Node) *html.Node {
	cp := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cp.AppendChild(clone(c))
	}
	return cp
}
