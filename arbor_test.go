package arbor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMap() *domain.Node {
	return &domain.Node{ID: "root", Name: "Root", Children: []*domain.Node{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B"},
	}}
}

func TestEngine_TwoPeersConverge(t *testing.T) {
	ctx := context.Background()
	alice := arbor.New(arbor.WithOrigin("alice"))
	bob := arbor.New(arbor.WithOrigin("bob"))
	require.NoError(t, alice.Load(sampleMap()))
	require.NoError(t, bob.Load(sampleMap()))

	var patches []domain.Patch
	p, err := alice.AddChild(ctx, "a", "A1")
	require.NoError(t, err)
	patches = append(patches, p)
	p, err = alice.Rename(ctx, "b", "Beta", nil)
	require.NoError(t, err)
	patches = append(patches, p)
	p, err = alice.Connect(ctx, "b", "a")
	require.NoError(t, err)
	patches = append(patches, p)

	for _, p := range patches {
		assert.Equal(t, "alice", p.Origin)
		res, err := bob.Apply(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	}

	assert.Equal(t, alice.Tree(), bob.Tree())
	assert.Equal(t, alice.Snapshot(), bob.Snapshot())
}

func TestEngine_StaleRenameAfterRemoteRemove(t *testing.T) {
	ctx := context.Background()
	alice := arbor.New()
	bob := arbor.New()
	require.NoError(t, alice.Load(sampleMap()))
	require.NoError(t, bob.Load(sampleMap()))

	removal, err := bob.Remove(ctx, "a")
	require.NoError(t, err)
	_, err = alice.Apply(ctx, removal)
	require.NoError(t, err)

	_, err = alice.Rename(ctx, "a", "Still here?", nil)
	assert.True(t, errors.Is(err, domain.ErrStaleReference))
	_, ok := alice.Graph().Node("a")
	assert.False(t, ok)
	assert.Equal(t, bob.Tree(), alice.Tree())
}

func TestEngine_OrphanThenMapReplaced(t *testing.T) {
	ctx := context.Background()
	eng := arbor.New()
	require.NoError(t, eng.Load(sampleMap()))

	res, err := eng.Apply(ctx, domain.NodeAdded("x", "p", "X"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBuffered, res.Outcome)

	res, err = eng.Apply(ctx, domain.MapReplaced(&domain.Node{ID: "root", Name: "Root", Children: []*domain.Node{
		{ID: "p", Name: "P"}, {ID: "q", Name: "Q"},
	}}))
	require.NoError(t, err)
	assert.Len(t, res.Retried, 1)
	assert.Equal(t, 4, eng.Graph().Len())
}

func TestLayout(t *testing.T) {
	g, err := arbor.Layout(sampleMap(), arbor.DefaultLayoutOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 2, g.EdgeCount())

	a, _ := g.Node("a")
	b, _ := g.Node("b")
	assert.Equal(t, -50.0, a.Position.Y)
	assert.Equal(t, 50.0, b.Position.Y)
}

func TestEngine_HooksSeeLocalAndRemote(t *testing.T) {
	ctx := context.Background()
	var local, remote int
	eng := arbor.New(arbor.WithMapID("m1"), arbor.WithLifecycleHooks(domain.LifecycleHooks{
		OnPatchApplied: func(_ context.Context, ev *domain.PatchEvent) {
			if ev.Local {
				local++
			} else {
				remote++
			}
		},
	}))
	require.NoError(t, eng.Load(sampleMap()))
	assert.Equal(t, "m1", eng.MapID())

	_, err := eng.Rename(ctx, "a", "Alpha", nil)
	require.NoError(t, err)
	_, err = eng.Apply(ctx, domain.NodeRenamed("b", "Beta", nil))
	require.NoError(t, err)

	assert.Equal(t, 1, local)
	assert.Equal(t, 1, remote)
}
