package domain

import (
	"fmt"
)

// Tree is the id-keyed index over a canonical mind map.
// Visual nodes refer back into the tree only through this index, so a removed
// subtree invalidates every lookup into it.
type Tree struct {
	root    *Node
	nodes   map[string]*Node
	parents map[string]string
}

// NewTree indexes root, which it takes ownership of. Nodes without an ID get
// a sequence-derived one first (see FillIDs).
// A nil root yields an empty tree.
func NewTree(root *Node) (*Tree, error) {
	t := &Tree{
		nodes:   make(map[string]*Node),
		parents: make(map[string]string),
	}
	if root == nil {
		return t, nil
	}
	if err := Validate(root); err != nil {
		return nil, err
	}
	FillIDs(root)

	stack := []*Node{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, dup := t.nodes[cur.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %q", ErrInvalidTree, cur.ID)
		}
		t.nodes[cur.ID] = cur
		for _, child := range cur.Children {
			t.parents[child.ID] = cur.ID
			stack = append(stack, child)
		}
	}
	t.root = root
	return t, nil
}

// Root returns the root node, or nil for an empty tree.
func (t *Tree) Root() *Node {
	return t.root
}

// Len returns the number of indexed nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Get looks a node up by ID.
func (t *Tree) Get(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Has reports whether id is currently in the tree.
func (t *Tree) Has(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

// Parent returns the parent ID of id. The root has no parent.
func (t *Tree) Parent(id string) (string, bool) {
	p, ok := t.parents[id]
	return p, ok
}

// Append adds child as the last child of parentID and indexes it.
// The child must be a single fresh node (no children) whose ID is unused.
func (t *Tree) Append(parentID string, child *Node) error {
	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: parent %q", ErrOrphanPatch, parentID)
	}
	if child == nil || child.ID == "" {
		return fmt.Errorf("%w: child without id", ErrInvalidTree)
	}
	if _, dup := t.nodes[child.ID]; dup {
		return fmt.Errorf("%w: duplicate node id %q", ErrInvalidTree, child.ID)
	}
	if len(child.Children) > 0 {
		return fmt.Errorf("%w: appended node %q must be a leaf", ErrInvalidTree, child.ID)
	}

	parent.Children = append(parent.Children, child)
	t.nodes[child.ID] = child
	t.parents[child.ID] = parentID
	return nil
}

// Subtree returns the IDs of id and all of its descendants, in depth-first
// pre-order. It returns nil when id is unknown.
func (t *Tree) Subtree(id string) []string {
	start, ok := t.nodes[id]
	if !ok {
		return nil
	}

	var ids []string
	stack := []*Node{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ids = append(ids, cur.ID)
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
	return ids
}

// Remove detaches id and its subtree, returning the removed IDs.
// Removing the root empties the tree. Unknown IDs are a no-op.
func (t *Tree) Remove(id string) []string {
	ids := t.Subtree(id)
	if ids == nil {
		return nil
	}

	if parentID, ok := t.parents[id]; ok {
		parent := t.nodes[parentID]
		kept := parent.Children[:0]
		for _, c := range parent.Children {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		// Clear the tail so removed nodes are not retained by the backing array.
		for i := len(kept); i < len(parent.Children); i++ {
			parent.Children[i] = nil
		}
		parent.Children = kept
	} else {
		t.root = nil
	}

	for _, rid := range ids {
		delete(t.nodes, rid)
		delete(t.parents, rid)
	}
	return ids
}
