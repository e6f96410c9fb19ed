package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *Node {
	return &Node{
		ID:   "root",
		Name: "root",
		Children: []*Node{
			{ID: "a", Name: "A", Children: []*Node{
				{ID: "a1", Name: "A1"},
				{ID: "a2", Name: "A2"},
			}},
			{ID: "b", Name: "B"},
		},
	}
}

func TestNewTree_IndexesEveryNode(t *testing.T) {
	tree, err := NewTree(sampleTree())
	require.NoError(t, err)

	assert.Equal(t, 5, tree.Len())
	for _, id := range []string{"root", "a", "a1", "a2", "b"} {
		assert.True(t, tree.Has(id), id)
	}

	parent, ok := tree.Parent("a2")
	assert.True(t, ok)
	assert.Equal(t, "a", parent)

	_, ok = tree.Parent("root")
	assert.False(t, ok, "root has no parent")
}

func TestNewTree_Empty(t *testing.T) {
	tree, err := NewTree(nil)
	require.NoError(t, err)
	assert.Nil(t, tree.Root())
	assert.Equal(t, 0, tree.Len())
}

func TestNewTree_FillsMissingIDsInPreOrder(t *testing.T) {
	root := &Node{Name: "root", Children: []*Node{
		{Name: "same"},
		{Name: "same", Children: []*Node{{Name: "leaf"}}},
	}}

	tree, err := NewTree(root)
	require.NoError(t, err)

	assert.Equal(t, "n0", root.ID)
	assert.Equal(t, "n1", root.Children[0].ID)
	assert.Equal(t, "n2", root.Children[1].ID)
	assert.Equal(t, "n3", root.Children[1].Children[0].ID)
	assert.Equal(t, 4, tree.Len(), "duplicate labels must not collide")
}

func TestFillIDs_SkipsTakenIDs(t *testing.T) {
	root := &Node{Name: "root", Children: []*Node{{ID: "n1", Name: "explicit"}, {Name: "filled"}}}

	FillIDs(root)

	assert.Equal(t, "n0", root.ID)
	assert.Equal(t, "n1", root.Children[0].ID)
	assert.Equal(t, "n2", root.Children[1].ID)
}

func TestNewTree_RejectsMalformed(t *testing.T) {
	t.Run("Cycle", func(t *testing.T) {
		root := &Node{ID: "r", Name: "r"}
		child := &Node{ID: "c", Name: "c"}
		root.Children = []*Node{child}
		child.Children = []*Node{root}

		_, err := NewTree(root)
		assert.ErrorIs(t, err, ErrInvalidTree)
	})

	t.Run("Shared Child", func(t *testing.T) {
		shared := &Node{ID: "s", Name: "s"}
		root := &Node{ID: "r", Name: "r", Children: []*Node{shared, shared}}

		_, err := NewTree(root)
		assert.ErrorIs(t, err, ErrInvalidTree)
	})

	t.Run("Duplicate ID", func(t *testing.T) {
		root := &Node{ID: "r", Name: "r", Children: []*Node{{ID: "x", Name: "1"}, {ID: "x", Name: "2"}}}

		_, err := NewTree(root)
		assert.ErrorIs(t, err, ErrInvalidTree)
	})

	t.Run("Empty Name", func(t *testing.T) {
		root := &Node{ID: "r", Name: "r", Children: []*Node{{ID: "x", Name: "  "}}}

		_, err := NewTree(root)
		assert.ErrorIs(t, err, ErrInvalidTree)
	})
}

func TestTree_Remove(t *testing.T) {
	root := sampleTree()
	tree, err := NewTree(root)
	require.NoError(t, err)

	removed := tree.Remove("a")
	assert.ElementsMatch(t, []string{"a", "a1", "a2"}, removed)
	assert.Equal(t, 2, tree.Len())
	assert.False(t, tree.Has("a1"))
	require.Len(t, root.Children, 1)
	assert.Equal(t, "b", root.Children[0].ID)

	assert.Nil(t, tree.Remove("a"), "second removal is a no-op")

	tree.Remove("root")
	assert.Nil(t, tree.Root())
	assert.Equal(t, 0, tree.Len())
}

func TestTree_Append(t *testing.T) {
	tree, err := NewTree(sampleTree())
	require.NoError(t, err)

	require.NoError(t, tree.Append("b", &Node{ID: "b1", Name: "B1"}))
	b, _ := tree.Get("b")
	require.Len(t, b.Children, 1)
	assert.Equal(t, "b1", b.Children[0].ID)

	err = tree.Append("missing", &Node{ID: "z", Name: "Z"})
	assert.True(t, errors.Is(err, ErrOrphanPatch))

	err = tree.Append("b", &Node{ID: "a", Name: "dup"})
	assert.ErrorIs(t, err, ErrInvalidTree)
}

func TestNode_CloneIsDeep(t *testing.T) {
	orig := sampleTree()
	orig.SetNote("hello")

	c := orig.Clone()
	c.Name = "changed"
	c.Children[0].Name = "changed"
	c.Attributes[AttrNote] = "changed"

	assert.Equal(t, "root", orig.Name)
	assert.Equal(t, "A", orig.Children[0].Name)
	note, _ := orig.Note()
	assert.Equal(t, "hello", note)
	assert.Equal(t, 5, c.Count())
}

func TestNode_DeepTreeDoesNotRecurse(t *testing.T) {
	root := &Node{ID: "0", Name: "deep"}
	cur := root
	for i := 0; i < 100000; i++ {
		next := &Node{Name: "deep"}
		cur.Children = []*Node{next}
		cur = next
	}

	tree, err := NewTree(root.Clone())
	require.NoError(t, err)
	assert.Equal(t, 100001, tree.Len())
}
