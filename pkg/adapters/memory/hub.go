package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/google/uuid"
)

// Hub connects in-process clients to a relay. It is the embedded counterpart
// of the websocket server and is what tests use to wire several engines
// together.
type Hub struct {
	broker ports.Broker
	relay  ports.Relay
	logger *slog.Logger
}

// NewHub creates a hub. With a nil relay, envelopes are broadcast verbatim to
// the other participants of the map.
func NewHub(broker ports.Broker, relay ports.Relay, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{broker: broker, relay: relay, logger: logger}
}

// Connect joins mapID and returns a channel for one client.
// The first state reported is ConnConnected.
func (h *Hub) Connect(ctx context.Context, mapID string) (*Conn, error) {
	c := &Conn{
		id:     uuid.NewString(),
		mapID:  mapID,
		hub:    h,
		events: make(chan domain.Envelope, DefaultBufferSize),
		states: make(chan domain.ConnState, 8),
		done:   make(chan struct{}),
	}
	sub, unsubscribe, err := h.broker.Subscribe(ctx, mapID)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrChannel, mapID, err)
	}
	c.unsubscribe = unsubscribe
	c.states <- domain.ConnConnected

	go c.pump(sub)
	return c, nil
}

// Conn is one client's end of a Hub. It implements ports.Channel.
type Conn struct {
	id    string
	mapID string
	hub   *Hub

	mu     sync.Mutex
	closed bool
	events chan domain.Envelope
	states chan domain.ConnState

	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

var _ ports.Channel = (*Conn)(nil)

// ID returns the connection ID used as the broadcast sender.
func (c *Conn) ID() string { return c.id }

// Send hands env to the relay (or broadcasts it when the hub has none).
// Replies from the relay are delivered to this connection only.
func (c *Conn) Send(ctx context.Context, env domain.Envelope) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: connection closed", domain.ErrChannel)
	}

	if c.hub.relay == nil {
		if err := c.hub.broker.Publish(ctx, ports.Message{MapID: c.mapID, Sender: c.id, Envelope: env}); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrChannel, err)
		}
		return nil
	}

	replies, err := c.hub.relay.Handle(ctx, c.mapID, c.id, env)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannel, err)
	}
	for _, reply := range replies {
		c.reply(reply)
	}
	return nil
}

func (c *Conn) reply(env domain.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- env:
	default:
		c.hub.logger.Warn("hub: client buffer full, dropping reply", "map_id", c.mapID, "conn_id", c.id)
	}
}

// Events delivers envelopes from the relay and the other participants.
func (c *Conn) Events() <-chan domain.Envelope { return c.events }

// States reports connection state transitions.
func (c *Conn) States() <-chan domain.ConnState { return c.states }

// Reconnect simulates a dropped and restored connection.
func (c *Conn) Reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, st := range []domain.ConnState{domain.ConnReconnecting, domain.ConnConnected} {
		select {
		case c.states <- st:
		default:
		}
	}
}

// Close leaves the map. Events and States are closed once pending deliveries
// have stopped.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.unsubscribe()
	})
	return nil
}

func (c *Conn) pump(sub <-chan ports.Message) {
	defer func() {
		c.mu.Lock()
		c.closed = true
		close(c.events)
		close(c.states)
		c.mu.Unlock()
	}()

	for msg := range sub {
		if msg.Sender == c.id {
			continue
		}
		select {
		case c.events <- msg.Envelope:
		case <-c.done:
			return
		}
	}
}
