package domain

import (
	"math"
)

// Position is a point in layout coordinate space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// VisualNode is one addressable box in the graph view.
type VisualNode struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Note     *string  `json:"note,omitempty"`
	Position Position `json:"position"`

	// SourceRef is the ID of the tree node this box was derived from.
	// It is resolved through Tree.Get and may be stale.
	SourceRef string `json:"source_ref"`
}

// EdgeKind distinguishes layout edges from connections drawn by a user.
type EdgeKind string

const (
	EdgeTree EdgeKind = "tree"
	EdgeLink EdgeKind = "link"
)

// VisualEdge connects two visual nodes of the same graph.
type VisualEdge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
}

// EdgeID derives the edge identifier from its endpoints.
func EdgeID(source, target string) string {
	return source + "->" + target
}

// Graph is the mutable visual projection of a tree.
// Nodes and edges keep insertion order so snapshots are deterministic.
type Graph struct {
	nodes     []*VisualNode
	nodeIndex map[string]int
	edges     []*VisualEdge
	edgeIndex map[string]int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[string]int),
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node looks up a visual node by ID.
func (g *Graph) Node(id string) (*VisualNode, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Edge looks up an edge by ID.
func (g *Graph) Edge(id string) (*VisualEdge, bool) {
	i, ok := g.edgeIndex[id]
	if !ok {
		return nil, false
	}
	return g.edges[i], true
}

// Nodes returns the nodes in insertion order. The slice must not be modified.
func (g *Graph) Nodes() []*VisualNode { return g.nodes }

// Edges returns the edges in insertion order. The slice must not be modified.
func (g *Graph) Edges() []*VisualEdge { return g.edges }

// AddNode inserts n. It reports false if the ID is already present.
func (g *Graph) AddNode(n *VisualNode) bool {
	if _, exists := g.nodeIndex[n.ID]; exists {
		return false
	}
	g.nodeIndex[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return true
}

// AddEdge inserts an edge between two existing nodes. It reports false if
// either endpoint is missing or the edge already exists.
func (g *Graph) AddEdge(source, target string, kind EdgeKind) bool {
	if _, ok := g.nodeIndex[source]; !ok {
		return false
	}
	if _, ok := g.nodeIndex[target]; !ok {
		return false
	}
	id := EdgeID(source, target)
	if _, exists := g.edgeIndex[id]; exists {
		return false
	}
	g.edgeIndex[id] = len(g.edges)
	g.edges = append(g.edges, &VisualEdge{ID: id, Source: source, Target: target, Kind: kind})
	return true
}

// RemoveNodes drops every node in ids together with every edge touching one
// of them, and returns how many nodes were removed.
func (g *Graph) RemoveNodes(ids []string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := g.nodeIndex[id]; ok {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return 0
	}

	keptNodes := make([]*VisualNode, 0, len(g.nodes)-len(drop))
	for _, n := range g.nodes {
		if !drop[n.ID] {
			keptNodes = append(keptNodes, n)
		}
	}
	keptEdges := make([]*VisualEdge, 0, len(g.edges))
	for _, e := range g.edges {
		if !drop[e.Source] && !drop[e.Target] {
			keptEdges = append(keptEdges, e)
		}
	}

	g.nodes = keptNodes
	g.edges = keptEdges
	g.reindex()
	return len(drop)
}

func (g *Graph) reindex() {
	g.nodeIndex = make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		g.nodeIndex[n.ID] = i
	}
	g.edgeIndex = make(map[string]int, len(g.edges))
	for i, e := range g.edges {
		g.edgeIndex[e.ID] = i
	}
}

// Bounds is the rectangle covering every rendered node box.
type Bounds struct {
	MinX   float64 `json:"min_x"`
	MinY   float64 `json:"min_y"`
	MaxX   float64 `json:"max_x"`
	MaxY   float64 `json:"max_y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Snapshot is a read-only copy of a graph, sufficient for an external
// rasterizer.
type Snapshot struct {
	Nodes  []VisualNode `json:"nodes"`
	Edges  []VisualEdge `json:"edges"`
	Bounds Bounds       `json:"bounds"`
}

// Snapshot copies the graph. Bounds assume node boxes of the given size
// anchored at their top-left position.
func (g *Graph) Snapshot(nodeWidth, nodeHeight float64) Snapshot {
	snap := Snapshot{
		Nodes: make([]VisualNode, 0, len(g.nodes)),
		Edges: make([]VisualEdge, 0, len(g.edges)),
	}
	if len(g.nodes) == 0 {
		return snap
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range g.nodes {
		c := *n
		if n.Note != nil {
			note := *n.Note
			c.Note = &note
		}
		snap.Nodes = append(snap.Nodes, c)

		minX = math.Min(minX, n.Position.X)
		minY = math.Min(minY, n.Position.Y)
		maxX = math.Max(maxX, n.Position.X+nodeWidth)
		maxY = math.Max(maxY, n.Position.Y+nodeHeight)
	}
	for _, e := range g.edges {
		snap.Edges = append(snap.Edges, *e)
	}

	snap.Bounds = Bounds{
		MinX:   minX,
		MinY:   minY,
		MaxX:   maxX,
		MaxY:   maxY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
	return snap
}
