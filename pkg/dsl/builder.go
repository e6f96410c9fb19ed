package dsl

import (
	"fmt"
	"strconv"

	"github.com/aretw0/arbor/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring one node and its
// subtree.
type NodeBuilder struct {
	node     domain.Node
	children []*NodeBuilder
}

// Map starts a new map with the given root name.
func Map(name string) *NodeBuilder {
	return Node(name)
}

// Node creates a builder for a node that will be attached with Child.
func Node(name string) *NodeBuilder {
	return &NodeBuilder{node: domain.Node{Name: name}}
}

// ID pins the node's ID instead of letting Build assign one.
func (b *NodeBuilder) ID(id string) *NodeBuilder {
	b.node.ID = id
	return b
}

// Note sets the note attribute.
func (b *NodeBuilder) Note(note string) *NodeBuilder {
	return b.Attr(domain.AttrNote, note)
}

// Importance sets the importance attribute.
func (b *NodeBuilder) Importance(n int) *NodeBuilder {
	return b.Attr(domain.AttrImportance, strconv.Itoa(n))
}

// Attr sets a free-form attribute.
func (b *NodeBuilder) Attr(key, value string) *NodeBuilder {
	if b.node.Attributes == nil {
		b.node.Attributes = make(map[string]string)
	}
	b.node.Attributes[key] = value
	return b
}

// Child appends children in order.
func (b *NodeBuilder) Child(children ...*NodeBuilder) *NodeBuilder {
	b.children = append(b.children, children...)
	return b
}

// Branch appends a child named name and lets fn configure it in place.
//
//	dsl.Map("Root").Branch("A", func(a *dsl.NodeBuilder) {
//		a.Child(dsl.Node("A1"))
//	})
func (b *NodeBuilder) Branch(name string, fn func(*NodeBuilder)) *NodeBuilder {
	child := Node(name)
	if fn != nil {
		fn(child)
	}
	return b.Child(child)
}

// Build assembles the tree, assigns missing IDs and rejects duplicate IDs
// and empty names.
// The builder can be reused; every call returns an independent tree.
func (b *NodeBuilder) Build() (*domain.Node, error) {
	root, err := b.assemble(make(map[*NodeBuilder]bool))
	if err != nil {
		return nil, err
	}
	if _, err := domain.NewTree(root); err != nil {
		return nil, err
	}
	return root, nil
}

// MustBuild is like Build but panics on error.
func (b *NodeBuilder) MustBuild() *domain.Node {
	root, err := b.Build()
	if err != nil {
		panic(err)
	}
	return root
}

func (b *NodeBuilder) assemble(path map[*NodeBuilder]bool) (*domain.Node, error) {
	if path[b] {
		return nil, fmt.Errorf("%w: %q contains itself", domain.ErrInvalidTree, b.node.Name)
	}
	path[b] = true
	defer delete(path, b)

	n := b.node
	if b.node.Attributes != nil {
		n.Attributes = make(map[string]string, len(b.node.Attributes))
		for k, v := range b.node.Attributes {
			n.Attributes[k] = v
		}
	}
	n.Children = nil
	for _, cb := range b.children {
		if cb == nil {
			return nil, fmt.Errorf("%w: node %q has a nil child", domain.ErrInvalidTree, b.node.Name)
		}
		child, err := cb.assemble(path)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return &n, nil
}
