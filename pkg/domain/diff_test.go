package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestDiff(t *testing.T) {
	tests := []struct {
		name   string
		old    *Node
		mutate func(n *Node) *Node
		want   []PatchType
	}{
		{
			name:   "Initial Load (Old is Nil)",
			old:    nil,
			mutate: func(*Node) *Node { return sampleTree() },
			want:   []PatchType{PatchMapReplaced},
		},
		{
			name:   "No Changes",
			old:    sampleTree(),
			mutate: func(n *Node) *Node { return n },
			want:   nil,
		},
		{
			name: "Rename",
			old:  sampleTree(),
			mutate: func(n *Node) *Node {
				n.Children[1].Name = "B'"
				return n
			},
			want: []PatchType{PatchNodeRenamed},
		},
		{
			name: "Note Added",
			old:  sampleTree(),
			mutate: func(n *Node) *Node {
				n.Children[0].SetNote("note")
				return n
			},
			want: []PatchType{PatchNodeRenamed},
		},
		{
			name: "Subtree Removed",
			old:  sampleTree(),
			mutate: func(n *Node) *Node {
				n.Children = n.Children[1:]
				return n
			},
			want: []PatchType{PatchNodeRemoved},
		},
		{
			name: "Appended With Grandchild",
			old:  sampleTree(),
			mutate: func(n *Node) *Node {
				n.Children = append(n.Children, &Node{ID: "c", Name: "C", Children: []*Node{{ID: "c1", Name: "C1"}}})
				return n
			},
			want: []PatchType{PatchNodeAdded, PatchNodeAdded},
		},
		{
			name: "Reorder Falls Back To Replace",
			old:  sampleTree(),
			mutate: func(n *Node) *Node {
				n.Children[0], n.Children[1] = n.Children[1], n.Children[0]
				return n
			},
			want: []PatchType{PatchMapReplaced},
		},
		{
			name: "Insert Before Sibling Falls Back To Replace",
			old:  sampleTree(),
			mutate: func(n *Node) *Node {
				n.Children = append([]*Node{{ID: "z", Name: "Z"}}, n.Children...)
				return n
			},
			want: []PatchType{PatchMapReplaced},
		},
		{
			name: "Reparent Falls Back To Replace",
			old:  sampleTree(),
			mutate: func(n *Node) *Node {
				b := n.Children[1]
				n.Children = n.Children[:1]
				n.Children[0].Children = append(n.Children[0].Children, b)
				return n
			},
			want: []PatchType{PatchMapReplaced},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var newTree *Node
			if tt.old != nil {
				newTree = tt.mutate(tt.old.Clone())
			} else {
				newTree = tt.mutate(nil)
			}

			got := Diff(tt.old, newTree)
			var types []PatchType
			for _, p := range got {
				types = append(types, p.Type)
			}
			assert.Equal(t, tt.want, types)
		})
	}
}

func TestDiff_RemovedParentOnlyOnce(t *testing.T) {
	old := sampleTree()
	next := old.Clone()
	next.Children = next.Children[1:]

	patches := Diff(old, next)
	require.Len(t, patches, 1)
	assert.Equal(t, "a", patches[0].NodeID, "descendants ride along with their parent")
}

func TestDiff_RenameCarriesNote(t *testing.T) {
	old := sampleTree()
	old.Children[0].SetNote("before")
	next := old.Clone()
	next.Children[0].SetNote("after")

	patches := Diff(old, next)
	require.Len(t, patches, 1)
	assert.Equal(t, strPtr("after"), patches[0].Note)
}
