package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Channel is the duplex transport between a client and the relay.
//
// Delivery is ordered per sender and at-least-once towards the relay; the relay
// broadcasts to every other participant of the map. Implementations surface
// transport failures wrapped in domain.ErrChannel and never drop the state of
// the engine driving them.
type Channel interface {
	// Send enqueues env for delivery. It does not wait for acknowledgment.
	Send(ctx context.Context, env domain.Envelope) error

	// Events delivers inbound envelopes. It is closed after Close.
	Events() <-chan domain.Envelope

	// States reports connection state transitions. It is closed after Close.
	States() <-chan domain.ConnState

	// Close releases the transport.
	Close() error
}
