package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// MapStore defines the interface for persisting canonical trees.
type MapStore interface {
	// Save persists the tree for a given map ID. A nil root stores an empty map.
	Save(ctx context.Context, mapID string, root *domain.Node) error

	// Load retrieves the tree for a given map ID.
	// Returns domain.ErrMapNotFound if the map does not exist.
	Load(ctx context.Context, mapID string) (*domain.Node, error)

	// Delete removes the map. Deleting an unknown map is not an error.
	Delete(ctx context.Context, mapID string) error

	// List returns the IDs of every stored map.
	List(ctx context.Context) ([]string, error)
}
