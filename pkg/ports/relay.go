package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Relay is the server side of a sync channel. It handles one envelope sent by
// connection connID on map mapID and returns the envelopes to send back to
// that connection only. Broadcasting to the other participants is the
// relay's own concern.
type Relay interface {
	Handle(ctx context.Context, mapID, connID string, env domain.Envelope) ([]domain.Envelope, error)
}
