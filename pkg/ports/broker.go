package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Message is an envelope published to the participants of one map.
type Message struct {
	MapID string `json:"map_id"`

	// Sender is the connection that produced the envelope. Subscribers skip
	// their own messages, which gives broadcast-to-others semantics.
	Sender string `json:"sender,omitempty"`

	Envelope domain.Envelope `json:"envelope"`
}

// Broker fans messages out to every subscriber of a map.
type Broker interface {
	// Publish delivers msg to the current subscribers of msg.MapID. It never
	// blocks on a slow subscriber; such subscribers miss the message.
	Publish(ctx context.Context, msg Message) error

	// Subscribe returns a channel of messages for mapID and a function that
	// cancels the subscription and closes the channel. The subscription also
	// ends when ctx is done.
	Subscribe(ctx context.Context, mapID string) (<-chan Message, func(), error)
}
