package runtime

import (
	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultDedupeWindow is how many recent patch IDs are remembered.
const DefaultDedupeWindow = 1024

// seenSet remembers the last n patch IDs in FIFO order.
type seenSet struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newSeenSet(n int) *seenSet {
	if n <= 0 {
		n = DefaultDedupeWindow
	}
	return &seenSet{
		ids:  make(map[string]struct{}, n),
		ring: make([]string, n),
	}
}

func (s *seenSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) Add(id string) {
	if id == "" || s.Has(id) {
		return
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.ids[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
}

func (s *seenSet) Len() int { return len(s.ids) }

// orphanBuffer holds NodeAdded patches whose parent has not arrived yet,
// keyed by the ID of the node they add.
type orphanBuffer struct {
	patches []domain.Patch
}

// Put buffers p unless a patch adding the same node is already waiting.
func (b *orphanBuffer) Put(p domain.Patch) {
	for _, q := range b.patches {
		if q.NodeID == p.NodeID {
			return
		}
	}
	b.patches = append(b.patches, p)
}

// Take empties the buffer and returns what it held.
func (b *orphanBuffer) Take() []domain.Patch {
	out := b.patches
	b.patches = nil
	return out
}

// TakeFirst removes and returns the oldest patch matching fn.
func (b *orphanBuffer) TakeFirst(fn func(domain.Patch) bool) (domain.Patch, bool) {
	for i, q := range b.patches {
		if fn(q) {
			b.patches = append(b.patches[:i:i], b.patches[i+1:]...)
			return q, true
		}
	}
	return domain.Patch{}, false
}

// DropSubtrees discards patches adding any of ids, or adding under them,
// transitively. It returns how many were discarded.
func (b *orphanBuffer) DropSubtrees(ids []string) int {
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	dropped := 0
	for changed := true; changed; {
		changed = false
		kept := b.patches[:0:0]
		for _, q := range b.patches {
			if gone[q.NodeID] || gone[q.ParentID] {
				gone[q.NodeID] = true
				dropped++
				changed = true
				continue
			}
			kept = append(kept, q)
		}
		b.patches = kept
	}
	return dropped
}

func (b *orphanBuffer) Len() int { return len(b.patches) }

func (b *orphanBuffer) Snapshot() []domain.Patch {
	return append([]domain.Patch(nil), b.patches...)
}
