package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

// Broker implements ports.Broker on Redis pub/sub, so relay replicas behind a
// load balancer see each other's broadcasts.
type Broker struct {
	client     *backend.Client
	prefix     string
	bufferSize int
	logger     *slog.Logger
}

var _ ports.Broker = (*Broker)(nil)

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithChannelPrefix sets the pub/sub channel prefix.
func WithChannelPrefix(prefix string) BrokerOption {
	return func(b *Broker) {
		b.prefix = prefix
	}
}

// WithBufferSize sets the per-subscriber queue length.
func WithBufferSize(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithLogger sets the logger used for dropped and undecodable messages.
func WithLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBroker creates a broker over an existing client.
func NewBroker(client *backend.Client, opts ...BrokerOption) *Broker {
	b := &Broker{
		client:     client,
		prefix:     DefaultPrefix + "room:",
		bufferSize: DefaultBufferSize,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) channel(mapID string) string {
	return b.prefix + mapID
}

// Publish sends msg to the map's channel.
func (b *Broker) Publish(ctx context.Context, msg ports.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(msg.MapID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so messages
// published after it returns are not lost.
func (b *Broker) Subscribe(ctx context.Context, mapID string) (<-chan ports.Message, func(), error) {
	pubsub := b.client.Subscribe(ctx, b.channel(mapID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", mapID, err)
	}

	out := make(chan ports.Message, b.bufferSize)
	stopped := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() { close(stopped) })
	}

	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopped:
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg ports.Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Warn("broker: undecodable message", "map_id", mapID, "error", err)
					continue
				}
				select {
				case out <- msg:
				default:
					b.logger.Warn("broker: subscriber buffer full, dropping message", "map_id", mapID)
				}
			}
		}
	}()

	return out, cancel, nil
}
