package htmldom

import (
	"fmt"
	"slices"

	"golang.org/x/net/html"

	"github.com/dotcommander/pagekit/pkg/page"
)

// OpKind names a patch operation.
type OpKind string

const (
	OpReplace  OpKind = "replace"
	OpAttrs    OpKind = "attrs"
	OpText     OpKind = "text"
	OpAppend   OpKind = "append"
	OpTruncate OpKind = "truncate"
)

// Op is one positional change. Path holds child indexes from the root.
type Op struct {
	Kind  OpKind
	Path  []int
	Node  *html.Node
	Attrs []html.Attribute
	Text  string
	Len   int
}

// Patch is the ordered list of operations that turns one tree into another.
// Applying the ops in order is valid because indexes below a parent are only
// shifted by append and truncate, which Diff emits after the shared children.
type Patch []Op

// Reconciler implements page.Reconciler for x/net/html trees. Trees are
// detached *html.Node elements; markup strings are accepted too and parsed
// with Fragment.
type Reconciler struct{}

var _ page.Reconciler = Reconciler{}

// Lift deep-copies the live element into the render baseline.
func (Reconciler) Lift(live page.Node) (page.Tree, error) {
	n, err := element(live)
	if err != nil {
		return nil, err
	}
	return clone(n), nil
}

// Diff compares old with next.
func (Reconciler) Diff(old, next page.Tree) (page.Patch, error) {
	b, err := asTree(next)
	if err != nil {
		return nil, fmt.Errorf("next tree: %w", err)
	}
	if old == nil {
		return Patch{{Kind: OpReplace, Node: b}}, nil
	}
	a, err := asTree(old)
	if err != nil {
		return nil, fmt.Errorf("old tree: %w", err)
	}
	var p Patch
	diff(&p, nil, a, b)
	return p, nil
}

// Apply mutates the live tree in place. Replacing the root swaps it inside
// its parent and returns the new element.
func (Reconciler) Apply(live page.Node, patch page.Patch) (page.Node, error) {
	root, err := element(live)
	if err != nil {
		return nil, err
	}
	ops, ok := patch.(Patch)
	if !ok {
		return nil, fmt.Errorf("unsupported patch %T", patch)
	}
	for _, op := range ops {
		target, err := locate(root, op.Path)
		if err != nil {
			return nil, fmt.Errorf("%s %v: %w", op.Kind, op.Path, err)
		}
		switch op.Kind {
		case OpReplace:
			fresh := clone(op.Node)
			if parent := target.Parent; parent != nil {
				parent.InsertBefore(fresh, target)
				parent.RemoveChild(target)
			}
			if len(op.Path) == 0 {
				root = fresh
			}
		case OpAttrs:
			target.Attr = append([]html.Attribute(nil), op.Attrs...)
		case OpText:
			target.Data = op.Text
		case OpAppend:
			target.AppendChild(clone(op.Node))
		case OpTruncate:
			c := nthChild(target, op.Len)
			for c != nil {
				next := c.NextSibling
				target.RemoveChild(c)
				c = next
			}
		default:
			return nil, fmt.Errorf("unknown op %q", op.Kind)
		}
	}
	if root == live.(*Node).n {
		return live, nil
	}
	return Wrap(root), nil
}

func diff(p *Patch, path []int, a, b *html.Node) {
	if a.Type != b.Type || a.Namespace != b.Namespace || (a.Type == html.ElementNode && a.Data != b.Data) {
		*p = append(*p, Op{Kind: OpReplace, Path: path, Node: b})
		return
	}
	if a.Type != html.ElementNode {
		if a.Data != b.Data {
			*p = append(*p, Op{Kind: OpText, Path: path, Text: b.Data})
		}
		return
	}
	if !slices.Equal(a.Attr, b.Attr) {
		*p = append(*p, Op{Kind: OpAttrs, Path: path, Attrs: b.Attr})
	}

	ac, bc := a.FirstChild, b.FirstChild
	i := 0
	for ; ac != nil && bc != nil; ac, bc, i = ac.NextSibling, bc.NextSibling, i+1 {
		diff(p, childPath(path, i), ac, bc)
	}
	for ; bc != nil; bc = bc.NextSibling {
		*p = append(*p, Op{Kind: OpAppend, Path: path, Node: bc})
	}
	if ac != nil {
		*p = append(*p, Op{Kind: OpTruncate, Path: path, Len: i})
	}
}

func childPath(path []int, i int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = i
	return out
}

func locate(root *html.Node, path []int) (*html.Node, error) {
	n := root
	for _, i := range path {
		n = nthChild(n, i)
		if n == nil {
			return nil, ErrNotFound
		}
	}
	return n, nil
}

func nthChild(n *html.Node, i int) *html.Node {
	c := n.FirstChild
	for ; c != nil && i > 0; i-- {
		c = c.NextSibling
	}
	return c
}

func element(live page.Node) (*html.Node, error) {
	n, ok := live.(*Node)
	if !ok || n == nil || n.n == nil {
		return nil, fmt.Errorf("unsupported live node %T", live)
	}
	return n.n, nil
}

func asTree(t page.Tree) (*html.Node, error) {
	switch v := t.(type) {
	case *html.Node:
		if v == nil {
			return nil, ErrNoRoot
		}
		return v, nil
	case string:
		return Fragment(v)
	default:
		return nil, fmt.Errorf("unsupported tree %T", t)
	}
}

// Markup serialises a rendered tree.
func Markup(t page.Tree) (string, error) {
	n, err := asTree(t)
	if err != nil {
		return "", err
	}
	return Render(n)
}
