package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixed string

func (f fixed) Generate(context.Context, []string) (*domain.Node, error) {
	return &domain.Node{Name: string(f)}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("b", func() (ports.Generator, error) { return fixed("B"), nil })
	r.Register("a", func() (ports.Generator, error) { return fixed("A"), nil })
	r.Register("a", func() (ports.Generator, error) { return fixed("A2"), nil })
	r.Register("broken", func() (ports.Generator, error) { return nil, errors.New("no key") })

	assert.Equal(t, []string{"a", "b", "broken"}, r.Names())

	gen, err := r.New("a")
	require.NoError(t, err)
	root, err := gen.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "A2", root.Name, "later registration wins")

	_, err = r.New("broken")
	assert.EqualError(t, err, "no key")

	_, err = r.New("missing")
	assert.ErrorIs(t, err, ErrUnknownGenerator)
}
