package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraph_NoDanglingEdges(t *testing.T) {
	g := NewGraph()
	g.AddNode(&VisualNode{ID: "a"})
	g.AddNode(&VisualNode{ID: "b"})
	g.AddNode(&VisualNode{ID: "c"})

	assert.True(t, g.AddEdge("a", "b", EdgeTree))
	assert.True(t, g.AddEdge("c", "b", EdgeLink))
	assert.False(t, g.AddEdge("a", "b", EdgeTree), "duplicate edge")
	assert.False(t, g.AddEdge("a", "missing", EdgeLink), "dangling edge")

	removed := g.RemoveNodes([]string{"b", "missing"})
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 0, g.EdgeCount())

	_, ok := g.Edge(EdgeID("a", "b"))
	assert.False(t, ok)
	n, ok := g.Node("c")
	assert.True(t, ok)
	assert.Equal(t, "c", n.ID)
}

func TestGraph_SnapshotBounds(t *testing.T) {
	g := NewGraph()
	g.AddNode(&VisualNode{ID: "a", Position: Position{X: 0, Y: -50}})
	g.AddNode(&VisualNode{ID: "b", Position: Position{X: 200, Y: 50}})
	g.AddEdge("a", "b", EdgeTree)

	snap := g.Snapshot(150, 50)
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Edges, 1)
	assert.Equal(t, Bounds{MinX: 0, MinY: -50, MaxX: 350, MaxY: 100, Width: 350, Height: 150}, snap.Bounds)

	snap.Nodes[0].Label = "mutated"
	n, _ := g.Node("a")
	assert.Equal(t, "", n.Label, "snapshot is a copy")

	assert.Equal(t, Bounds{}, NewGraph().Snapshot(150, 50).Bounds)
}
