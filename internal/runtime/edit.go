package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// resolve follows a visual node back to its tree node.
func (e *Engine) resolve(visualID string) (*domain.VisualNode, *domain.Node, error) {
	vn, ok := e.graph.Node(visualID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: visual node %q", domain.ErrStaleReference, visualID)
	}
	n, ok := e.tree.Get(vn.SourceRef)
	if !ok {
		return nil, nil, fmt.Errorf("%w: tree node %q", domain.ErrStaleReference, vn.SourceRef)
	}
	return vn, n, nil
}

// local stamps a locally produced patch, remembers its ID so the echo is
// recognized, and reports it to the hooks.
func (e *Engine) local(ctx context.Context, p domain.Patch) domain.Patch {
	p.Origin = e.origin
	e.seen.Add(p.ID)
	e.logger.Debug("local edit", "patch", p.String())
	e.emit(ctx, e.event(p, domain.OutcomeApplied, true, nil))
	return p
}

// Rename changes the label (and the note, when note is non-nil) of the node
// behind visualID. A reference to a removed node fails with
// ErrStaleReference and changes nothing.
func (e *Engine) Rename(ctx context.Context, visualID, label string, note *string) (domain.Patch, error) {
	if strings.TrimSpace(label) == "" {
		return domain.Patch{}, domain.ErrEmptyLabel
	}
	_, n, err := e.resolve(visualID)
	if err != nil {
		return domain.Patch{}, err
	}
	e.rename(n, label, note)
	return e.local(ctx, domain.NodeRenamed(n.ID, label, note)), nil
}

// Connect draws a link edge between two visual nodes. The tree is not
// reparented. Connecting an existing pair is a no-op that still returns the
// patch, since peers treat it idempotently.
func (e *Engine) Connect(ctx context.Context, source, target string) (domain.Patch, error) {
	if _, _, err := e.resolve(source); err != nil {
		return domain.Patch{}, err
	}
	if _, _, err := e.resolve(target); err != nil {
		return domain.Patch{}, err
	}
	if source == target {
		return domain.Patch{}, fmt.Errorf("cannot connect %q to itself", source)
	}
	e.graph.AddEdge(source, target, domain.EdgeLink)
	return e.local(ctx, domain.EdgeAdded(source, target)), nil
}

// AddChild appends a new node labeled label under the node behind
// parentVisualID.
func (e *Engine) AddChild(ctx context.Context, parentVisualID, label string) (domain.Patch, error) {
	if strings.TrimSpace(label) == "" {
		return domain.Patch{}, domain.ErrEmptyLabel
	}
	_, parent, err := e.resolve(parentVisualID)
	if err != nil {
		return domain.Patch{}, err
	}
	id := domain.NewID()
	if err := e.addChild(parent.ID, id, label); err != nil {
		return domain.Patch{}, err
	}
	return e.local(ctx, domain.NodeAdded(id, parent.ID, label)), nil
}

// AddRoot starts an empty map with a single root node.
func (e *Engine) AddRoot(ctx context.Context, label string) (domain.Patch, error) {
	if strings.TrimSpace(label) == "" {
		return domain.Patch{}, domain.ErrEmptyLabel
	}
	if e.tree.Root() != nil {
		return domain.Patch{}, fmt.Errorf("%w: map already has a root", domain.ErrInvalidTree)
	}
	root := domain.NewNode(label)
	if err := e.replace(root); err != nil {
		return domain.Patch{}, err
	}
	return e.local(ctx, domain.MapReplaced(root)), nil
}

// Remove deletes the node behind visualID and its subtree.
func (e *Engine) Remove(ctx context.Context, visualID string) (domain.Patch, error) {
	_, n, err := e.resolve(visualID)
	if err != nil {
		return domain.Patch{}, err
	}
	e.removeSubtree(n.ID)
	return e.local(ctx, domain.NodeRemoved(n.ID)), nil
}

// Replace swaps the whole map for root and returns the MapReplaced patch to
// broadcast. An invalid tree leaves the current map untouched.
func (e *Engine) Replace(ctx context.Context, root *domain.Node) (domain.Patch, error) {
	if err := e.replace(root); err != nil {
		return domain.Patch{}, err
	}
	return e.local(ctx, domain.MapReplaced(e.tree.Root().Clone())), nil
}

// Move repositions a visual node. It is a view-only change and produces no
// patch.
func (e *Engine) Move(visualID string, pos domain.Position) error {
	vn, ok := e.graph.Node(visualID)
	if !ok {
		return fmt.Errorf("%w: visual node %q", domain.ErrStaleReference, visualID)
	}
	vn.Position = pos
	return nil
}
