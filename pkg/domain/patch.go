package domain

import (
	"fmt"
	"strings"
)

// PatchType discriminates the patch variants on the wire.
type PatchType string

const (
	PatchNodeRenamed PatchType = "node_renamed"
	PatchNodeAdded   PatchType = "node_added"
	PatchNodeRemoved PatchType = "node_removed"
	PatchEdgeAdded   PatchType = "edge_added"
	PatchMapReplaced PatchType = "map_replaced"
)

// Patch is the unit of synchronization between peers.
// Only the fields relevant to Type are set.
type Patch struct {
	// ID identifies this patch instance for deduplication of redeliveries.
	ID string `json:"patch_id,omitempty"`

	// Origin is the client that produced the patch.
	Origin string `json:"origin,omitempty"`

	Type PatchType `json:"type"`

	NodeID   string  `json:"id,omitempty"`
	ParentID string  `json:"parent_id,omitempty"`
	Label    string  `json:"label,omitempty"`
	Note     *string `json:"note,omitempty"`

	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`

	Tree *Node `json:"tree,omitempty"`
}

// NodeRenamed replaces the label (and the note, when note is non-nil) of id.
func NodeRenamed(id, label string, note *string) Patch {
	return Patch{ID: NewID(), Type: PatchNodeRenamed, NodeID: id, Label: label, Note: note}
}

// NodeAdded appends a new leaf labeled label under parentID.
func NodeAdded(id, parentID, label string) Patch {
	return Patch{ID: NewID(), Type: PatchNodeAdded, NodeID: id, ParentID: parentID, Label: label}
}

// NodeRemoved removes id and its subtree.
func NodeRemoved(id string) Patch {
	return Patch{ID: NewID(), Type: PatchNodeRemoved, NodeID: id}
}

// EdgeAdded adds a user-drawn connection to the graph view.
func EdgeAdded(source, target string) Patch {
	return Patch{ID: NewID(), Type: PatchEdgeAdded, Source: source, Target: target}
}

// MapReplaced resets all state to tree. A nil tree is an empty map.
func MapReplaced(tree *Node) Patch {
	return Patch{ID: NewID(), Type: PatchMapReplaced, Tree: tree}
}

// Validate checks that the fields required by the patch type are present.
func (p Patch) Validate() error {
	switch p.Type {
	case PatchNodeRenamed:
		if p.NodeID == "" {
			return fmt.Errorf("%w: %s: missing node id", ErrInvalidPatch, p.Type)
		}
		if strings.TrimSpace(p.Label) == "" {
			return fmt.Errorf("%s: %w", p.Type, ErrEmptyLabel)
		}
	case PatchNodeAdded:
		if p.NodeID == "" || p.ParentID == "" {
			return fmt.Errorf("%w: %s: missing node or parent id", ErrInvalidPatch, p.Type)
		}
		if strings.TrimSpace(p.Label) == "" {
			return fmt.Errorf("%s: %w", p.Type, ErrEmptyLabel)
		}
	case PatchNodeRemoved:
		if p.NodeID == "" {
			return fmt.Errorf("%w: %s: missing node id", ErrInvalidPatch, p.Type)
		}
	case PatchEdgeAdded:
		if p.Source == "" || p.Target == "" {
			return fmt.Errorf("%w: %s: missing endpoint", ErrInvalidPatch, p.Type)
		}
	case PatchMapReplaced:
		return Validate(p.Tree)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPatch, p.Type)
	}
	return nil
}

// IsStructural reports whether the patch can add nodes and so may unblock
// buffered orphans.
func (p Patch) IsStructural() bool {
	return p.Type == PatchNodeAdded || p.Type == PatchMapReplaced
}

// String renders a compact description for logs.
func (p Patch) String() string {
	switch p.Type {
	case PatchNodeAdded:
		return fmt.Sprintf("%s(%s under %s)", p.Type, p.NodeID, p.ParentID)
	case PatchEdgeAdded:
		return fmt.Sprintf("%s(%s)", p.Type, EdgeID(p.Source, p.Target))
	case PatchMapReplaced:
		return fmt.Sprintf("%s(%d nodes)", p.Type, p.Tree.Count())
	default:
		return fmt.Sprintf("%s(%s)", p.Type, p.NodeID)
	}
}
