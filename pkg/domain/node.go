package domain

import (
	"fmt"
	"strings"
)

// Attribute keys recognized by the engine.
const (
	AttrNote       = "note"
	AttrImportance = "importance"
)

// Node is one idea in the canonical mind map tree.
// Children are ordered and the order is preserved across every operation.
type Node struct {
	// ID is assigned when the node is created and never derived from Name.
	ID string `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`

	// Name is the display label. Names are not unique.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Attributes holds free-form string metadata (e.g. "note").
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" mapstructure:"attributes"`

	Children []*Node `json:"children,omitempty" yaml:"children,omitempty" mapstructure:"children"`
}

// NewNode creates a node with a freshly generated ID.
func NewNode(name string, children ...*Node) *Node {
	return &Node{
		ID:       NewID(),
		Name:     name,
		Children: children,
	}
}

// Note returns the node's note attribute, if any.
func (n *Node) Note() (string, bool) {
	if n == nil || n.Attributes == nil {
		return "", false
	}
	v, ok := n.Attributes[AttrNote]
	return v, ok
}

// SetNote replaces the note attribute.
func (n *Node) SetNote(note string) {
	if n.Attributes == nil {
		n.Attributes = make(map[string]string)
	}
	n.Attributes[AttrNote] = note
}

// Clone returns a deep copy of the subtree rooted at n.
// It walks with an explicit stack so deep trees do not grow the call stack.
// Nil children and nodes reached a second time are not copied; run Validate
// first when the input is untrusted.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	type pair struct{ src, dst *Node }

	seen := map[*Node]bool{n: true}
	root := copyShallow(n)
	stack := []pair{{n, root}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(p.src.Children) == 0 {
			continue
		}
		p.dst.Children = make([]*Node, 0, len(p.src.Children))
		for _, child := range p.src.Children {
			if child == nil || seen[child] {
				continue
			}
			seen[child] = true
			c := copyShallow(child)
			p.dst.Children = append(p.dst.Children, c)
			stack = append(stack, pair{child, c})
		}
	}
	return root
}

func copyShallow(n *Node) *Node {
	c := &Node{ID: n.ID, Name: n.Name}
	if n.Attributes != nil {
		c.Attributes = make(map[string]string, len(n.Attributes))
		for k, v := range n.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// Count returns the number of nodes in the subtree (0 for nil).
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	count := 0
	seen := make(map[*Node]bool)
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil || seen[cur] {
			continue
		}
		seen[cur] = true
		count++
		stack = append(stack, cur.Children...)
	}
	return count
}

// FillIDs assigns deterministic IDs to nodes that have none, numbering them
// in depth-first pre-order ("n0" for the root, then "n1", "n2"...). Numbers
// already taken by explicit IDs are skipped. Existing IDs are kept.
func FillIDs(root *Node) {
	if root == nil {
		return
	}

	used := make(map[string]bool)
	var order []*Node
	seen := make(map[*Node]bool)
	stack := []*Node{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		order = append(order, cur)

		if strings.TrimSpace(cur.ID) != "" {
			used[cur.ID] = true
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			if cur.Children[i] != nil {
				stack = append(stack, cur.Children[i])
			}
		}
	}

	seq := 0
	for _, n := range order {
		if strings.TrimSpace(n.ID) != "" {
			continue
		}
		id := seqID(seq)
		for used[id] {
			seq++
			id = seqID(seq)
		}
		n.ID = id
		used[id] = true
		seq++
	}
}

// Validate checks that the tree is finite and acyclic and that every node has
// a non-empty name. It never mutates the tree.
func Validate(root *Node) error {
	if root == nil {
		return nil
	}

	seen := make(map[*Node]bool)
	stack := []*Node{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[cur] {
			return fmt.Errorf("%w: node %q is reachable twice", ErrInvalidTree, cur.Name)
		}
		seen[cur] = true

		if strings.TrimSpace(cur.Name) == "" {
			return fmt.Errorf("%w: node %q has an empty name", ErrInvalidTree, cur.ID)
		}
		for _, child := range cur.Children {
			if child == nil {
				return fmt.Errorf("%w: node %q has a nil child", ErrInvalidTree, cur.Name)
			}
			stack = append(stack, child)
		}
	}
	return nil
}
