package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaded(t *testing.T, opts ...runtime.EngineOption) *runtime.Engine {
	t.Helper()
	e := runtime.NewEngine(opts...)
	require.NoError(t, e.Load(rootAB()))
	return e
}

func strPtr(s string) *string { return &s }

func TestApply_RenameLastWriterWins(t *testing.T) {
	ctx := context.Background()
	e := loaded(t)

	res, err := e.Apply(ctx, domain.NodeRenamed("a", "Alpha", strPtr("first")))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)

	res, err = e.Apply(ctx, domain.NodeRenamed("a", "Alef", nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)

	vn, ok := e.Graph().Node("a")
	require.True(t, ok)
	assert.Equal(t, "Alef", vn.Label)
	require.NotNil(t, vn.Note)
	assert.Equal(t, "first", *vn.Note, "nil note keeps the previous note")

	res, err = e.Apply(ctx, domain.NodeRenamed("a", "Alef", strPtr("")))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	note, _ := e.Tree().Children[0].Note()
	assert.Equal(t, "", note)
}

func TestApply_RenameMissingNodeIsIgnored(t *testing.T) {
	e := loaded(t)
	res, err := e.Apply(context.Background(), domain.NodeRenamed("ghost", "Boo", nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, res.Outcome)
	assert.Equal(t, 3, e.Graph().Len())
}

func TestApply_NodeAddedPlacedAsLastChild(t *testing.T) {
	e := loaded(t)
	res, err := e.Apply(context.Background(), domain.NodeAdded("c", "root", "C"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)

	c, ok := e.Graph().Node("c")
	require.True(t, ok)
	// Third of three children: i=2, k=3.
	assert.Equal(t, domain.Position{X: 200, Y: 100}, c.Position)
	_, ok = e.Graph().Edge(domain.EdgeID("root", "c"))
	assert.True(t, ok)

	tree := e.Tree()
	require.Len(t, tree.Children, 3)
	assert.Equal(t, "c", tree.Children[2].ID)
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	patches := []domain.Patch{
		domain.NodeAdded("c", "a", "C"),
		domain.NodeRenamed("b", "Beta", strPtr("n")),
		domain.EdgeAdded("b", "c"),
		domain.NodeRemoved("a"),
	}

	for _, p := range patches {
		t.Run(string(p.Type), func(t *testing.T) {
			once := loaded(t)
			twice := loaded(t)
			for _, q := range patches {
				_, err := once.Apply(ctx, q)
				require.NoError(t, err)
				if q.ID == p.ID {
					// Redelivery under a fresh patch id defeats the dedupe
					// window, so the state check alone must hold.
					redo := q
					redo.ID = domain.NewID()
					_, err = twice.Apply(ctx, q)
					require.NoError(t, err)
					_, err = twice.Apply(ctx, redo)
					require.NoError(t, err)
					continue
				}
				_, err = twice.Apply(ctx, q)
				require.NoError(t, err)
			}
			assert.Equal(t, once.Snapshot(), twice.Snapshot())
			assert.Equal(t, once.Tree(), twice.Tree())
		})
	}
}

func TestApply_DuplicatePatchID(t *testing.T) {
	ctx := context.Background()
	e := loaded(t)
	p := domain.NodeAdded("c", "root", "C")

	_, err := e.Apply(ctx, p)
	require.NoError(t, err)
	res, err := e.Apply(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
}

func TestApply_DedupeWindowIsBounded(t *testing.T) {
	ctx := context.Background()
	e := loaded(t, runtime.WithDedupeWindow(2))
	first := domain.NodeRenamed("a", "A1", nil)
	_, err := e.Apply(ctx, first)
	require.NoError(t, err)
	_, err = e.Apply(ctx, domain.NodeRenamed("a", "A2", nil))
	require.NoError(t, err)
	_, err = e.Apply(ctx, domain.NodeRenamed("a", "A3", nil))
	require.NoError(t, err)

	// first fell out of the window and is merged again.
	res, err := e.Apply(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
}

func TestApply_NodeRemovedDropsSubtreeAndLinks(t *testing.T) {
	ctx := context.Background()
	e := loaded(t)
	_, err := e.Apply(ctx, domain.NodeAdded("a1", "a", "A1"))
	require.NoError(t, err)
	_, err = e.Apply(ctx, domain.EdgeAdded("b", "a1"))
	require.NoError(t, err)
	require.Equal(t, 4, e.Graph().EdgeCount())

	res, err := e.Apply(ctx, domain.NodeRemoved("a"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)

	assert.Equal(t, 2, e.Graph().Len())
	assert.Equal(t, 1, e.Graph().EdgeCount())
	for _, edge := range e.Graph().Edges() {
		_, ok := e.Graph().Node(edge.Source)
		assert.True(t, ok)
		_, ok = e.Graph().Node(edge.Target)
		assert.True(t, ok)
	}
}

func TestApply_EdgeAddedNeverDangles(t *testing.T) {
	ctx := context.Background()
	e := loaded(t)

	res, err := e.Apply(ctx, domain.EdgeAdded("a", "ghost"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, res.Outcome)

	res, err = e.Apply(ctx, domain.EdgeAdded("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	edge, ok := e.Graph().Edge("a->b")
	require.True(t, ok)
	assert.Equal(t, domain.EdgeLink, edge.Kind)
}

func TestApply_OrphanBufferedUntilMapReplaced(t *testing.T) {
	ctx := context.Background()
	e := loaded(t)

	res, err := e.Apply(ctx, domain.NodeAdded("x", "p", "X"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBuffered, res.Outcome)
	assert.Len(t, e.Pending(), 1)
	assert.Equal(t, 3, e.Graph().Len())

	replacement := &domain.Node{ID: "root", Name: "Root", Children: []*domain.Node{
		{ID: "p", Name: "P"},
		{ID: "q", Name: "Q"},
	}}
	res, err = e.Apply(ctx, domain.MapReplaced(replacement))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	require.Len(t, res.Retried, 1)
	assert.Empty(t, res.Dropped)
	assert.NoError(t, res.Err())

	assert.Equal(t, 4, e.Graph().Len())
	_, ok := e.Graph().Edge(domain.EdgeID("p", "x"))
	assert.True(t, ok)
	assert.Empty(t, e.Pending())
}

func TestApply_OrphanDroppedAfterOneRetry(t *testing.T) {
	ctx := context.Background()
	var dropped []*domain.PatchEvent
	e := loaded(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnPatchDropped: func(_ context.Context, ev *domain.PatchEvent) {
			dropped = append(dropped, ev)
		},
	}))

	_, err := e.Apply(ctx, domain.NodeAdded("x", "nowhere", "X"))
	require.NoError(t, err)

	res, err := e.Apply(ctx, domain.NodeAdded("c", "root", "C"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	require.Len(t, res.Dropped, 1)
	assert.True(t, errors.Is(res.Err(), domain.ErrOrphanPatch))
	assert.Empty(t, e.Pending())

	require.Len(t, dropped, 1)
	assert.Equal(t, "x", dropped[0].Patch.NodeID)
	assert.True(t, errors.Is(dropped[0].Err, domain.ErrOrphanPatch))
}

func TestApply_OrphanChainResolvesInOnePass(t *testing.T) {
	ctx := context.Background()
	e := loaded(t)

	// Grandchild arrives before its parent, which arrives before its own parent.
	for _, p := range []domain.Patch{
		domain.NodeAdded("z", "y", "Z"),
		domain.NodeAdded("y", "x", "Y"),
	} {
		res, err := e.Apply(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeBuffered, res.Outcome)
	}

	res, err := e.Apply(ctx, domain.NodeAdded("x", "a", "X"))
	require.NoError(t, err)
	assert.Len(t, res.Retried, 2)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, 6, e.Graph().Len())
}

func TestApply_InvalidMapKeepsPreviousGraph(t *testing.T) {
	e := loaded(t)
	before := e.Snapshot()

	dup := &domain.Node{ID: "r", Name: "R", Children: []*domain.Node{
		{ID: "x", Name: "X"}, {ID: "x", Name: "Y"},
	}}
	_, err := e.Apply(context.Background(), domain.MapReplaced(dup))
	assert.True(t, errors.Is(err, domain.ErrInvalidTree))
	assert.Equal(t, before, e.Snapshot())
}

func TestApply_MapReplacedWithEmptyTree(t *testing.T) {
	e := loaded(t)
	res, err := e.Apply(context.Background(), domain.MapReplaced(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	assert.Equal(t, 0, e.Graph().Len())
	assert.Nil(t, e.Tree())
}

func TestApply_RejectsMalformedPatch(t *testing.T) {
	e := loaded(t)
	_, err := e.Apply(context.Background(), domain.Patch{Type: "node_teleported"})
	assert.True(t, errors.Is(err, domain.ErrUnknownPatch))

	_, err = e.Apply(context.Background(), domain.NodeRenamed("a", "", nil))
	assert.True(t, errors.Is(err, domain.ErrEmptyLabel))
}

func TestApply_ReplacedFromHookAbandonsInFlightWork(t *testing.T) {
	ctx := context.Background()
	var e *runtime.Engine
	fresh := &domain.Node{ID: "new", Name: "New", Children: []*domain.Node{{ID: "p", Name: "P"}}}

	replaced := false
	e = loaded(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnPatchApplied: func(ctx context.Context, ev *domain.PatchEvent) {
			if ev.Patch.NodeID == "c" && !replaced {
				replaced = true
				_, err := e.Apply(ctx, domain.MapReplaced(fresh))
				require.NoError(t, err)
			}
		},
	}))

	_, err := e.Apply(ctx, domain.NodeAdded("x", "p", "X"))
	require.NoError(t, err)

	epoch := e.Epoch()
	res, err := e.Apply(ctx, domain.NodeAdded("c", "root", "C"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAbandoned, res.Outcome)
	assert.Equal(t, epoch+1, e.Epoch())

	// The nested replacement ran its own retry pass against the new map.
	tree := e.Tree()
	require.NotNil(t, tree)
	assert.Equal(t, "new", tree.ID)
	_, ok := e.Graph().Node("x")
	assert.True(t, ok)
	_, ok = e.Graph().Node("c")
	assert.False(t, ok)
}

func TestApply_HooksReportOutcomes(t *testing.T) {
	ctx := context.Background()
	var applied, buffered []domain.Outcome
	e := loaded(t, runtime.WithMapID("m1"), runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnPatchApplied: func(_ context.Context, ev *domain.PatchEvent) {
			assert.Equal(t, "m1", ev.MapID)
			assert.False(t, ev.Local)
			applied = append(applied, ev.Outcome)
		},
		OnPatchBuffered: func(_ context.Context, ev *domain.PatchEvent) {
			buffered = append(buffered, ev.Outcome)
		},
	}))

	_, err := e.Apply(ctx, domain.NodeAdded("y", "x", "Y"))
	require.NoError(t, err)
	_, err = e.Apply(ctx, domain.NodeAdded("x", "a", "X"))
	require.NoError(t, err)

	assert.Equal(t, []domain.Outcome{domain.OutcomeBuffered}, buffered)
	assert.Equal(t, []domain.Outcome{domain.OutcomeApplied, domain.OutcomeApplied}, applied)
}

func TestApply_BlankLabelsAreRejected(t *testing.T) {
	ctx := context.Background()
	e := loaded(t)
	before := e.Snapshot()

	_, err := e.Apply(ctx, domain.NodeRenamed("a", "   ", nil))
	assert.True(t, errors.Is(err, domain.ErrEmptyLabel))
	_, err = e.Apply(ctx, domain.NodeAdded("c", "root", "\t\n"))
	assert.True(t, errors.Is(err, domain.ErrEmptyLabel))

	assert.Equal(t, before, e.Snapshot())
	assert.NoError(t, domain.Validate(e.Tree()))
}

func TestApply_ReplacedDuringRetryPassRetriesTheRest(t *testing.T) {
	ctx := context.Background()
	var e *runtime.Engine
	fresh := &domain.Node{ID: "new", Name: "New", Children: []*domain.Node{{ID: "q", Name: "Q"}}}

	replaced := false
	e = loaded(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnPatchApplied: func(ctx context.Context, ev *domain.PatchEvent) {
			if ev.Patch.NodeID == "x" && !replaced {
				replaced = true
				_, err := e.Apply(ctx, domain.MapReplaced(fresh))
				require.NoError(t, err)
			}
		},
	}))

	for _, p := range []domain.Patch{
		domain.NodeAdded("x", "p", "X"),
		domain.NodeAdded("y", "q", "Y"),
	} {
		res, err := e.Apply(ctx, p)
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeBuffered, res.Outcome)
	}

	res, err := e.Apply(ctx, domain.NodeAdded("p", "root", "P"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAbandoned, res.Outcome)

	assert.Empty(t, e.Pending())
	assert.Equal(t, "new", e.Tree().ID)
	_, ok := e.Graph().Node("y")
	assert.True(t, ok, "y is placed under q in the replaced map")
	_, ok = e.Graph().Edge(domain.EdgeID("q", "y"))
	assert.True(t, ok)
}

func TestApply_RemovalDiscardsBufferedAdds(t *testing.T) {
	ctx := context.Background()
	e := loaded(t)

	for _, p := range []domain.Patch{
		domain.NodeAdded("y", "x", "Y"),
		domain.NodeAdded("x", "p", "X"),
		domain.NodeAdded("w", "elsewhere", "W"),
	} {
		_, err := e.Apply(ctx, p)
		require.NoError(t, err)
	}
	require.Len(t, e.Pending(), 3)

	res, err := e.Apply(ctx, domain.NodeRemoved("x"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	require.Len(t, e.Pending(), 1)
	assert.Equal(t, "w", e.Pending()[0].NodeID)

	_, err = e.Apply(ctx, domain.NodeAdded("p", "root", "P"))
	require.NoError(t, err)
	for _, id := range []string{"x", "y"} {
		_, ok := e.Graph().Node(id)
		assert.False(t, ok, "%s must stay removed", id)
	}
	_, ok := e.Graph().Node("p")
	assert.True(t, ok)
}

func TestApply_MapReplacedResetsHistory(t *testing.T) {
	ctx := context.Background()
	e := loaded(t)

	for _, p := range []domain.Patch{
		domain.NodeRenamed("a", "Alpha", strPtr("note")),
		domain.NodeAdded("c", "a", "C"),
		domain.NodeAdded("d", "b", "D"),
		domain.EdgeAdded("c", "d"),
		domain.EdgeAdded("root", "d"),
		domain.NodeRemoved("b"),
		domain.NodeAdded("e", "root", "E"),
		domain.EdgeAdded("a", "e"),
	} {
		_, err := e.Apply(ctx, p)
		require.NoError(t, err)
	}
	require.NoError(t, e.Move("e", domain.Position{X: 999, Y: 999}))

	target := &domain.Node{ID: "t", Name: "Target", Children: []*domain.Node{
		{ID: "a", Name: "A", Children: []*domain.Node{{ID: "a1", Name: "A1"}}},
		{ID: "k", Name: "K"},
	}}
	_, err := e.Apply(ctx, domain.MapReplaced(target))
	require.NoError(t, err)

	fresh := runtime.NewEngine()
	require.NoError(t, fresh.Load(target.Clone()))
	assert.Equal(t, fresh.Snapshot(), e.Snapshot())

	for _, edge := range e.Snapshot().Edges {
		assert.Equal(t, domain.EdgeTree, edge.Kind, "link edge %s survived", edge.ID)
	}
}
