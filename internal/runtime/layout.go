package runtime

import (
	"github.com/aretw0/arbor/pkg/domain"
)

// Default spacing between a parent and its children.
const (
	DefaultHorizontalSpacing = 200
	DefaultVerticalSpacing   = 100
)

// Default size of a rendered node box, used for snapshot bounds.
const (
	DefaultNodeWidth  = 150
	DefaultNodeHeight = 50
)

// LayoutOptions controls where the root is placed and how far apart children are.
type LayoutOptions struct {
	Origin            domain.Position
	HorizontalSpacing float64
	VerticalSpacing   float64
}

// DefaultLayoutOptions places the root at (0,0) with the default spacing.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		HorizontalSpacing: DefaultHorizontalSpacing,
		VerticalSpacing:   DefaultVerticalSpacing,
	}
}

func (o LayoutOptions) withDefaults() LayoutOptions {
	if o.HorizontalSpacing == 0 {
		o.HorizontalSpacing = DefaultHorizontalSpacing
	}
	if o.VerticalSpacing == 0 {
		o.VerticalSpacing = DefaultVerticalSpacing
	}
	return o
}

// ChildPosition returns the position of child i out of k under a parent at p.
// Siblings are centered vertically around the parent.
func ChildPosition(p domain.Position, i, k int, opts LayoutOptions) domain.Position {
	opts = opts.withDefaults()
	offset := float64(i) - float64(k-1)/2
	return domain.Position{
		X: p.X + opts.HorizontalSpacing,
		Y: p.Y + offset*opts.VerticalSpacing,
	}
}

// Layout projects root into a new graph. root is not modified: nodes without
// an ID are numbered on a private copy.
// A nil root yields an empty graph.
func Layout(root *domain.Node, opts LayoutOptions) (*domain.Graph, error) {
	if err := domain.Validate(root); err != nil {
		return nil, err
	}
	tree, err := domain.NewTree(root.Clone())
	if err != nil {
		return nil, err
	}
	return LayoutTree(tree, opts), nil
}

// LayoutTree projects an indexed tree into a new graph. Visual node IDs are
// the tree node IDs, one tree edge connects each parent to each child, and
// nodes are inserted in depth-first pre-order.
func LayoutTree(tree *domain.Tree, opts LayoutOptions) *domain.Graph {
	opts = opts.withDefaults()
	g := domain.NewGraph()
	root := tree.Root()
	if root == nil {
		return g
	}

	type frame struct {
		node   *domain.Node
		parent string
		pos    domain.Position
	}

	stack := []frame{{node: root, pos: opts.Origin}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		g.AddNode(visualFor(f.node, f.pos))
		if f.parent != "" {
			g.AddEdge(f.parent, f.node.ID, domain.EdgeTree)
		}

		k := len(f.node.Children)
		for i := k - 1; i >= 0; i-- {
			stack = append(stack, frame{
				node:   f.node.Children[i],
				parent: f.node.ID,
				pos:    ChildPosition(f.pos, i, k, opts),
			})
		}
	}
	return g
}

func visualFor(n *domain.Node, pos domain.Position) *domain.VisualNode {
	vn := &domain.VisualNode{
		ID:        n.ID,
		Label:     n.Name,
		Position:  pos,
		SourceRef: n.ID,
	}
	if note, ok := n.Note(); ok {
		vn.Note = &note
	}
	return vn
}
