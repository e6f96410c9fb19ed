package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor"
	arborhttp "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/websocket"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/relay"
	"github.com/aretw0/arbor/pkg/session"
	backend "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func fast() websocket.Settings {
	return websocket.Settings{
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
		PingInterval: time.Second,
	}
}

func nextState(t *testing.T, c *websocket.Client) domain.ConnState {
	t.Helper()
	select {
	case st := <-c.States():
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a state")
		return ""
	}
}

func nextEvent(t *testing.T, c *websocket.Client) domain.Envelope {
	t.Helper()
	select {
	case env := <-c.Events():
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return domain.Envelope{}
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32
	up := backend.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if conns.Add(1) == 1 {
			return // drop the first connection right away
		}
		env, _ := domain.NewMapUpdatedEnvelope(&domain.Node{ID: "root", Name: "Root"})
		_ = conn.WriteJSON(env)
		// Echo until the client leaves.
		for {
			var in domain.Envelope
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			_ = conn.WriteJSON(in)
		}
	}))
	defer srv.Close()

	c := websocket.Dial(context.Background(), wsURL(srv, "/"), websocket.WithSettings(fast()))

	assert.Equal(t, domain.ConnConnected, nextState(t, c))
	assert.Equal(t, domain.ConnReconnecting, nextState(t, c))
	assert.Equal(t, domain.ConnConnected, nextState(t, c))

	env := nextEvent(t, c)
	assert.Equal(t, domain.EventMapUpdated, env.Event)

	require.NoError(t, c.Send(context.Background(), domain.NewRequestMapEnvelope()))
	assert.Equal(t, domain.EventRequestMap, nextEvent(t, c).Event)

	require.NoError(t, c.Close())
	assert.Equal(t, domain.ConnDisconnected, nextState(t, c))
	_, open := <-c.Events()
	assert.False(t, open)

	err := c.Send(context.Background(), domain.NewRequestMapEnvelope())
	assert.ErrorIs(t, err, domain.ErrChannel)
}

func TestClient_DialFailureReportsConnectError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv, "/ws/m1")
	srv.Close()

	c := websocket.Dial(context.Background(), url, websocket.WithSettings(fast()))
	defer c.Close()

	env := nextEvent(t, c)
	assert.Equal(t, domain.EventConnectError, env.Event)
	assert.NotEmpty(t, env.DecodeError())
}

func TestClient_QueuesWhileDisconnected(t *testing.T) {
	received := make(chan domain.Envelope, 1)
	up := backend.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var in domain.Envelope
		if err := conn.ReadJSON(&in); err == nil {
			received <- in
		}
	}))
	defer srv.Close()

	c := websocket.Dial(context.Background(), wsURL(srv, "/"), websocket.WithSettings(fast()))
	defer c.Close()

	// Sent before the dial completes.
	require.NoError(t, c.Send(context.Background(), domain.NewRequestMapEnvelope()))

	select {
	case env := <-received:
		assert.Equal(t, domain.EventRequestMap, env.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("queued envelope was not delivered")
	}
}

// Two runners editing the same map through the HTTP relay converge.
func TestClient_RunnersConvergeThroughRelay(t *testing.T) {
	broker := memory.NewBroker()
	svc := relay.New(session.NewManager(memory.NewStore()), broker)
	_, err := svc.Replace(context.Background(), "m1", &domain.Node{ID: "root", Name: "Root", Children: []*domain.Node{{ID: "a", Name: "A"}}})
	require.NoError(t, err)

	srv := httptest.NewServer(arborhttp.NewHandler(svc, broker))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := func(origin string) *arbor.Runner {
		c := websocket.Dial(ctx, wsURL(srv, "/ws/m1"), websocket.WithSettings(fast()))
		r := arbor.NewRunner(arbor.New(arbor.WithOrigin(origin), arbor.WithMapID("m1")), c)
		go func() { _ = r.Run(ctx) }()
		require.Eventually(t, func() bool {
			snap, err := r.Snapshot(ctx)
			return err == nil && len(snap.Nodes) == 2
		}, 2*time.Second, 10*time.Millisecond)
		return r
	}
	alice := start("alice")
	bob := start("bob")

	added, err := alice.AddChild(ctx, "a", "A1")
	require.NoError(t, err)
	_, err = bob.Rename(ctx, "a", "Alpha", nil)
	require.NoError(t, err)

	converged := func(r *arbor.Runner) bool {
		snap, err := r.Snapshot(ctx)
		if err != nil || len(snap.Nodes) != 3 {
			return false
		}
		for _, n := range snap.Nodes {
			if n.ID == "a" && n.Label != "Alpha" {
				return false
			}
			if n.ID == added.NodeID && n.Label != "A1" {
				return false
			}
		}
		return true
	}
	assert.Eventually(t, func() bool { return converged(alice) && converged(bob) }, 2*time.Second, 10*time.Millisecond)

	stored, err := svc.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", stored.Children[0].Name)
	assert.Equal(t, "A1", stored.Children[0].Children[0].Name)
}
