package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Generator builds an initial tree from conversation history.
// Blank input yields a nil tree (an empty map) and no error.
type Generator interface {
	Generate(ctx context.Context, history []string) (*domain.Node, error)
}
