package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunMapStoreContract runs a suite of tests to verify that a MapStore
// implementation adheres to the interface contract.
func RunMapStoreContract(t *testing.T, store MapStore) {
	ctx := context.Background()
	mapID := "contract-test-map-" + time.Now().Format("20060102150405")

	sample := func() *domain.Node {
		return &domain.Node{ID: "root", Name: "Topic", Children: []*domain.Node{
			{ID: "b", Name: "Second", Attributes: map[string]string{domain.AttrNote: "Importance: 2"}},
			{ID: "a", Name: "First", Children: []*domain.Node{{ID: "a1", Name: "Leaf"}}},
		}}
	}

	t.Run("Save and Load", func(t *testing.T) {
		err := store.Save(ctx, mapID, sample())
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, mapID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sample(), loaded, "children order and attributes must survive")
	})

	t.Run("Overwrite", func(t *testing.T) {
		replacement := &domain.Node{ID: "root", Name: "Renamed"}
		require.NoError(t, store.Save(ctx, mapID, replacement))

		loaded, err := store.Load(ctx, mapID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", loaded.Name)
		assert.Empty(t, loaded.Children)
	})

	t.Run("Empty Map", func(t *testing.T) {
		id := mapID + "-empty"
		require.NoError(t, store.Save(ctx, id, nil))
		defer func() { _ = store.Delete(ctx, id) }()

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+mapID)
		assert.ErrorIs(t, err, domain.ErrMapNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, mapID, sample()))

		err := store.Delete(ctx, mapID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, mapID)
		assert.ErrorIs(t, err, domain.ErrMapNotFound, "Load after Delete should return ErrMapNotFound")

		assert.NoError(t, store.Delete(ctx, mapID), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := mapID + "-1"
		id2 := mapID + "-2"
		_ = store.Save(ctx, id1, sample())
		_ = store.Save(ctx, id2, sample())
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		maps, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, maps, id1)
		assert.Contains(t, maps, id2)
	})
}

// RunBrokerContract runs a suite of tests to verify that a Broker
// implementation adheres to the interface contract.
func RunBrokerContract(t *testing.T, broker Broker) {
	ctx := context.Background()
	mapID := "contract-test-room-" + time.Now().Format("20060102150405")

	receive := func(t *testing.T, ch <-chan Message) (Message, bool) {
		t.Helper()
		select {
		case msg, ok := <-ch:
			return msg, ok
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
			return Message{}, false
		}
	}

	t.Run("Fan Out", func(t *testing.T) {
		first, stopFirst, err := broker.Subscribe(ctx, mapID)
		require.NoError(t, err)
		defer stopFirst()
		second, stopSecond, err := broker.Subscribe(ctx, mapID)
		require.NoError(t, err)
		defer stopSecond()

		env := domain.NewErrorEnvelope("hello")
		require.NoError(t, broker.Publish(ctx, Message{MapID: mapID, Sender: "conn-1", Envelope: env}))

		for _, ch := range []<-chan Message{first, second} {
			msg, ok := receive(t, ch)
			require.True(t, ok)
			assert.Equal(t, mapID, msg.MapID)
			assert.Equal(t, "conn-1", msg.Sender)
			assert.Equal(t, domain.EventError, msg.Envelope.Event)
			assert.Equal(t, "hello", msg.Envelope.DecodeError())
		}
	})

	t.Run("Isolated Rooms", func(t *testing.T) {
		other, stop, err := broker.Subscribe(ctx, mapID+"-other")
		require.NoError(t, err)
		defer stop()

		require.NoError(t, broker.Publish(ctx, Message{MapID: mapID, Envelope: domain.NewRequestMapEnvelope()}))

		select {
		case msg := <-other:
			t.Fatalf("unexpected message for another map: %+v", msg)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("Unsubscribe Closes Channel", func(t *testing.T) {
		ch, stop, err := broker.Subscribe(ctx, mapID)
		require.NoError(t, err)
		stop()

		for {
			_, ok := receive(t, ch)
			if !ok {
				break
			}
		}
		stop() // idempotent
	})

	t.Run("Context Cancel Ends Subscription", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		ch, stop, err := broker.Subscribe(subCtx, mapID)
		require.NoError(t, err)
		defer stop()
		cancel()

		for {
			_, ok := receive(t, ch)
			if !ok {
				break
			}
		}
	})
}
