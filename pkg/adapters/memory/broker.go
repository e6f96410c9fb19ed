package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

// Broker implements ports.Broker for a single process.
// Safe for concurrent use.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan ports.Message]struct{} // MapID -> set of channels
	bufferSize  int
	logger      *slog.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber queue length.
func WithBufferSize(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithLogger sets the logger used to report dropped messages.
func WithLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBroker creates an empty in-process broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subscribers: make(map[string]map[chan ports.Message]struct{}),
		bufferSize:  DefaultBufferSize,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber for mapID.
func (b *Broker) Subscribe(ctx context.Context, mapID string) (<-chan ports.Message, func(), error) {
	ch := make(chan ports.Message, b.bufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[mapID]; !ok {
		b.subscribers[mapID] = make(map[chan ports.Message]struct{})
	}
	b.subscribers[mapID][ch] = struct{}{}
	b.mu.Unlock()

	stopped := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stopped)
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subscribers[mapID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subscribers, mapID)
				}
			}
			close(ch)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stopped:
		}
	}()
	return ch, cancel, nil
}

// Publish delivers msg to every subscriber of msg.MapID. A subscriber whose
// queue is full misses the message.
func (b *Broker) Publish(ctx context.Context, msg ports.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.subscribers[msg.MapID]
	b.logger.Debug("broker: publishing", "map_id", msg.MapID, "event", msg.Envelope.Event, "subscribers", len(subs))
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			b.logger.Warn("broker: subscriber buffer full, dropping message", "map_id", msg.MapID)
		}
	}
	return nil
}

// Subscribers returns the number of live subscribers of mapID.
func (b *Broker) Subscribers(mapID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[mapID])
}
