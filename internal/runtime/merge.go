package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// Result reports what Apply did with a patch.
type Result struct {
	Outcome domain.Outcome
	Patch   domain.Patch

	// Retried lists buffered patches applied during this call's retry pass.
	Retried []domain.Patch

	// Dropped lists buffered patches still orphaned after their retry pass.
	Dropped []domain.Patch
}

// Err reports dropped orphans as an ErrOrphanPatch error, or nil.
func (r Result) Err() error {
	if len(r.Dropped) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d patch(es) dropped, first %s", domain.ErrOrphanPatch, len(r.Dropped), r.Dropped[0])
}

// Apply merges a remote patch into the map.
//
// Patches are validated before anything is touched; an error means the state
// is unchanged. Patch IDs seen recently are reported as duplicates. A
// NodeAdded whose parent is unknown is buffered until the next patch that
// adds nodes, which triggers a single retry pass over the buffer.
//
// If a hook replaces the whole map while this call is still in flight, the
// rest of the work is abandoned and the outcome becomes OutcomeAbandoned.
func (e *Engine) Apply(ctx context.Context, p domain.Patch) (Result, error) {
	res := Result{Patch: p}
	if err := p.Validate(); err != nil {
		return res, err
	}
	if p.ID != "" && e.seen.Has(p.ID) {
		res.Outcome = domain.OutcomeDuplicate
		return res, nil
	}

	outcome, err := e.merge(p)
	if err != nil {
		e.logger.Warn("patch rejected", "patch", p.String(), "error", err)
		return res, err
	}
	res.Outcome = outcome
	if outcome != domain.OutcomeBuffered {
		e.seen.Add(p.ID)
	}
	e.logger.Debug("patch merged", "patch", p.String(), "outcome", outcome)

	epoch := e.epoch
	e.emit(ctx, e.event(p, outcome, false, nil))
	if e.epoch != epoch {
		res.Outcome = domain.OutcomeAbandoned
		return res, nil
	}

	if outcome == domain.OutcomeApplied && p.IsStructural() && e.orphans.Len() > 0 {
		retried, dropped, abandoned := e.retryOrphans(ctx, epoch)
		res.Retried = retried
		res.Dropped = dropped
		if abandoned {
			res.Outcome = domain.OutcomeAbandoned
		}
	}
	return res, nil
}

// merge applies one patch to the tree and graph.
func (e *Engine) merge(p domain.Patch) (domain.Outcome, error) {
	switch p.Type {
	case domain.PatchNodeRenamed:
		return e.mergeRename(p), nil
	case domain.PatchNodeAdded:
		return e.mergeAdd(p)
	case domain.PatchNodeRemoved:
		return e.mergeRemove(p.NodeID), nil
	case domain.PatchEdgeAdded:
		if e.graph.AddEdge(p.Source, p.Target, domain.EdgeLink) {
			return domain.OutcomeApplied, nil
		}
		return domain.OutcomeIgnored, nil
	case domain.PatchMapReplaced:
		if err := e.replace(p.Tree); err != nil {
			return "", err
		}
		return domain.OutcomeApplied, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownPatch, p.Type)
	}
}

func (e *Engine) mergeRename(p domain.Patch) domain.Outcome {
	n, ok := e.tree.Get(p.NodeID)
	if !ok {
		return domain.OutcomeIgnored
	}
	if n.Name == p.Label && (p.Note == nil || noteEquals(n, *p.Note)) {
		return domain.OutcomeIgnored
	}
	e.rename(n, p.Label, p.Note)
	return domain.OutcomeApplied
}

func (e *Engine) mergeAdd(p domain.Patch) (domain.Outcome, error) {
	if e.tree.Has(p.NodeID) {
		return domain.OutcomeIgnored, nil
	}
	if !e.tree.Has(p.ParentID) {
		e.orphans.Put(p)
		return domain.OutcomeBuffered, nil
	}
	if err := e.addChild(p.ParentID, p.NodeID, p.Label); err != nil {
		return "", err
	}
	return domain.OutcomeApplied, nil
}

func (e *Engine) mergeRemove(id string) domain.Outcome {
	var ids []string
	if e.tree.Has(id) {
		ids = e.removeSubtree(id)
	}
	// A buffered add of the removed node, or of anything under it, must not
	// bring it back once its parent arrives.
	discarded := e.orphans.DropSubtrees(append(ids, id))
	if discarded > 0 {
		e.logger.Debug("buffered patches discarded by removal", "node_id", id, "count", discarded)
	}
	if len(ids) == 0 && discarded == 0 {
		return domain.OutcomeIgnored
	}
	return domain.OutcomeApplied
}

// retryOrphans gives every patch buffered before the pass one retry against
// the current state. Patches are retried until no more can be placed, so a
// chain of orphans resolves regardless of arrival order.
//
// Unprocessed patches stay in the buffer while hooks run, so a MapReplaced
// fired from a hook retries them against the replaced map.
func (e *Engine) retryOrphans(ctx context.Context, epoch uint64) (retried, dropped []domain.Patch, abandoned bool) {
	inPass := make(map[string]bool, e.orphans.Len())
	for _, q := range e.orphans.Snapshot() {
		inPass[q.NodeID] = true
	}

	placeable := func(q domain.Patch) bool {
		return inPass[q.NodeID] && e.tree.Has(q.ParentID)
	}
	for {
		q, ok := e.orphans.TakeFirst(placeable)
		if !ok {
			break
		}
		delete(inPass, q.NodeID)

		outcome := domain.OutcomeIgnored
		if !e.tree.Has(q.NodeID) {
			if err := e.addChild(q.ParentID, q.NodeID, q.Label); err != nil {
				e.logger.Warn("buffered patch rejected", "patch", q.String(), "error", err)
				continue
			}
			outcome = domain.OutcomeApplied
			retried = append(retried, q)
		}
		e.seen.Add(q.ID)
		e.emit(ctx, e.event(q, outcome, false, nil))
		if e.epoch != epoch {
			return retried, dropped, true
		}
	}

	for {
		q, ok := e.orphans.TakeFirst(func(q domain.Patch) bool { return inPass[q.NodeID] })
		if !ok {
			break
		}
		delete(inPass, q.NodeID)

		dropped = append(dropped, q)
		err := fmt.Errorf("%w: parent %q of %q never arrived", domain.ErrOrphanPatch, q.ParentID, q.NodeID)
		e.logger.Warn("orphan dropped", "patch", q.String(), "error", err)
		e.emit(ctx, e.event(q, domain.OutcomeDropped, false, err))
		if e.epoch != epoch {
			return retried, dropped, true
		}
	}
	return retried, dropped, false
}

func noteEquals(n *domain.Node, note string) bool {
	cur, ok := n.Note()
	return ok && cur == note
}

// rename updates the tree node and mirrors it on its visual node.
func (e *Engine) rename(n *domain.Node, label string, note *string) {
	n.Name = label
	if note != nil {
		n.SetNote(*note)
	}
	if vn, ok := e.graph.Node(n.ID); ok && vn.SourceRef == n.ID {
		vn.Label = label
		if note != nil {
			v := *note
			vn.Note = &v
		}
	}
}

// addChild appends a new leaf and places it as the last of its siblings.
func (e *Engine) addChild(parentID, id, label string) error {
	child := &domain.Node{ID: id, Name: label}
	if err := e.tree.Append(parentID, child); err != nil {
		return err
	}

	parent, _ := e.tree.Get(parentID)
	k := len(parent.Children)
	pos := e.layout.Origin
	if pv, ok := e.graph.Node(parentID); ok {
		pos = ChildPosition(pv.Position, k-1, k, e.layout)
	}
	e.graph.AddNode(visualFor(child, pos))
	e.graph.AddEdge(parentID, id, domain.EdgeTree)
	return nil
}

// removeSubtree removes id and its descendants from the tree and every
// visual node or edge touching them.
func (e *Engine) removeSubtree(id string) []string {
	ids := e.tree.Remove(id)
	e.graph.RemoveNodes(ids)
	return ids
}
