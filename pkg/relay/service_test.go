package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/generator"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/relay"
	"github.com/aretw0/arbor/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedGenerator struct {
	root *domain.Node
	err  error
}

func (g fixedGenerator) Generate(ctx context.Context, history []string) (*domain.Node, error) {
	return g.root, g.err
}

func newService(t *testing.T, opts ...relay.Option) (*relay.Service, *memory.Broker) {
	t.Helper()
	broker := memory.NewBroker()
	svc := relay.New(session.NewManager(memory.NewStore()), broker, opts...)
	return svc, broker
}

func seed(t *testing.T, svc *relay.Service, mapID string) {
	t.Helper()
	_, err := svc.Replace(context.Background(), mapID, &domain.Node{ID: "root", Name: "Root", Children: []*domain.Node{
		{ID: "a", Name: "A"},
	}})
	require.NoError(t, err)
}

func next(t *testing.T, ch <-chan ports.Message) ports.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return ports.Message{}
	}
}

func TestService_ApplyBroadcastsToOthers(t *testing.T) {
	ctx := context.Background()
	svc, broker := newService(t)
	seed(t, svc, "m1")

	sub, stop, err := broker.Subscribe(ctx, "m1")
	require.NoError(t, err)
	defer stop()

	patch := domain.NodeAdded("b", "root", "B")
	res, tree, err := svc.Apply(ctx, "m1", "conn-1", patch)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)
	require.Len(t, tree.Children, 2)

	msg := next(t, sub)
	assert.Equal(t, "conn-1", msg.Sender)
	update, err := msg.Envelope.DecodeUpdate()
	require.NoError(t, err)
	assert.Equal(t, patch.ID, update.Changes.ID)
	assert.Equal(t, "b", update.Changes.NodeID)

	stored, err := svc.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "B", stored.Children[1].Name)
}

func TestService_IgnoredPatchIsNotBroadcast(t *testing.T) {
	ctx := context.Background()
	svc, broker := newService(t)
	seed(t, svc, "m1")

	sub, stop, err := broker.Subscribe(ctx, "m1")
	require.NoError(t, err)
	defer stop()

	res, _, err := svc.Apply(ctx, "m1", "conn-1", domain.NodeRenamed("ghost", "Boo", nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, res.Outcome)

	select {
	case msg := <-sub:
		t.Fatalf("unexpected broadcast: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_OrphanIsRejected(t *testing.T) {
	svc, _ := newService(t)
	seed(t, svc, "m1")

	_, _, err := svc.Apply(context.Background(), "m1", "conn-1", domain.NodeAdded("x", "nowhere", "X"))
	assert.True(t, errors.Is(err, domain.ErrOrphanPatch))
}

func TestService_BlankRenameLeavesMapUsable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	seed(t, svc, "m1")

	_, _, err := svc.Apply(ctx, "m1", "conn-1", domain.NodeRenamed("a", "   ", nil))
	assert.True(t, errors.Is(err, domain.ErrEmptyLabel))

	res, _, err := svc.Apply(ctx, "m1", "conn-1", domain.NodeAdded("b", "root", "B"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, res.Outcome)

	snap, err := svc.Snapshot(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 3)

	stored, err := svc.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "A", stored.Children[0].Name)
}

func TestService_HandleRequestMap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	replies, err := svc.Handle(ctx, "empty", "conn-1", domain.NewRequestMapEnvelope())
	require.NoError(t, err)
	require.Len(t, replies, 1)
	root, err := replies[0].DecodeMap()
	require.NoError(t, err)
	assert.Nil(t, root)

	seed(t, svc, "m1")
	replies, err = svc.Handle(ctx, "m1", "conn-1", domain.NewRequestMapEnvelope())
	require.NoError(t, err)
	root, err = replies[0].DecodeMap()
	require.NoError(t, err)
	assert.Equal(t, "root", root.ID)
}

func TestService_HandleUpdateMapErrorsBecomeMessages(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	seed(t, svc, "m1")

	env, err := domain.NewUpdateMapEnvelope(domain.NodeAdded("x", "nowhere", "X"), nil)
	require.NoError(t, err)
	replies, err := svc.Handle(ctx, "m1", "conn-1", env)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, domain.EventError, replies[0].Event)
	assert.Contains(t, replies[0].DecodeError(), "orphan")

	replies, err = svc.Handle(ctx, "m1", "conn-1", domain.Envelope{Event: "teleport"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventError, replies[0].Event)
}

func TestService_LegacyUpdateWithOnlyMap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	env, err := domain.NewUpdateMapEnvelope(domain.Patch{}, &domain.Node{Name: "Legacy", Children: []*domain.Node{{Name: "Child"}}})
	require.NoError(t, err)
	replies, err := svc.Handle(ctx, "m1", "conn-1", env)
	require.NoError(t, err)
	assert.Empty(t, replies)

	stored, err := svc.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Legacy", stored.Name)
	assert.Equal(t, "n0", stored.ID)
}

func TestService_Snapshot(t *testing.T) {
	svc, _ := newService(t, relay.WithNodeSize(100, 40))
	seed(t, svc, "m1")

	snap, err := svc.Snapshot(context.Background(), "m1")
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Edges, 1)
	assert.Equal(t, 300.0, snap.Bounds.Width)
	assert.Equal(t, 40.0, snap.Bounds.Height)

	_, err = svc.Snapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrMapNotFound)
}

func TestService_DeleteBroadcastsEmptyMap(t *testing.T) {
	ctx := context.Background()
	svc, broker := newService(t)
	seed(t, svc, "m1")

	sub, stop, err := broker.Subscribe(ctx, "m1")
	require.NoError(t, err)
	defer stop()

	require.NoError(t, svc.Delete(ctx, "m1"))
	msg := next(t, sub)
	assert.Equal(t, domain.EventMapUpdated, msg.Envelope.Event)

	ids, err := svc.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, "m1")
}

func TestService_Generate(t *testing.T) {
	ctx := context.Background()
	generated := domain.NewNode("Topic", domain.NewNode("Branch"))
	svc, _ := newService(t, relay.WithGenerator(fixedGenerator{root: generated}))

	root, err := svc.Generate(ctx, "m1", []string{"some text about a topic"})
	require.NoError(t, err)
	assert.Equal(t, "Topic", root.Name)

	root, err = svc.Generate(ctx, "m1", []string{"   "})
	require.NoError(t, err)
	assert.Nil(t, root)

	failing, _ := newService(t, relay.WithGenerator(fixedGenerator{err: errors.New("model offline")}))
	_, err = failing.Generate(ctx, "m1", []string{"text"})
	assert.ErrorContains(t, err, "model offline")

	bare, _ := newService(t)
	_, err = bare.Generate(ctx, "m1", []string{"text"})
	assert.ErrorIs(t, err, relay.ErrNoGenerator)
}

func TestService_GenerateFromControlCharactersIsEmpty(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, relay.WithGenerator(generator.NewKeywords()))
	seed(t, svc, "m1")

	root, err := svc.Generate(ctx, "m1", []string{"\x00\x1b\x07"})
	require.NoError(t, err)
	assert.Nil(t, root)

	_, err = svc.Get(ctx, "m1")
	assert.NoError(t, err)
}
