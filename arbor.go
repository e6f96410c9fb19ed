package arbor

import (
	"context"
	"io"
	"log/slog"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
)

// LayoutOptions controls the origin and spacing of the layout.
type LayoutOptions = runtime.LayoutOptions

// Result reports what the engine did with a remote patch.
type Result = runtime.Result

// DefaultLayoutOptions places the root at (0,0), children 200 to the right and
// siblings 100 apart.
func DefaultLayoutOptions() LayoutOptions {
	return runtime.DefaultLayoutOptions()
}

// Layout projects a tree into a new graph without creating an Engine.
func Layout(root *domain.Node, opts LayoutOptions) (*domain.Graph, error) {
	return runtime.Layout(root, opts)
}

// Engine is the high-level entry point for the Arbor library.
// It wraps the internal runtime and holds one mind map.
type Engine struct {
	runtime     *runtime.Engine
	runtimeOpts []runtime.EngineOption
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	mapID       string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMapID labels events and logs with the ID of the map being edited.
func WithMapID(id string) Option {
	return func(e *Engine) {
		e.mapID = id
	}
}

// WithOrigin sets the client ID stamped on local patches.
func WithOrigin(origin string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithOrigin(origin))
	}
}

// WithLayout overrides the layout origin and spacing.
func WithLayout(opts LayoutOptions) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLayout(opts))
	}
}

// WithNodeSize sets the node box size used to compute snapshot bounds.
func WithNodeSize(width, height float64) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithNodeSize(width, height))
	}
}

// WithDedupeWindow sets how many recent patch IDs are remembered.
func WithDedupeWindow(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithDedupeWindow(n))
	}
}

// New creates an engine holding an empty map.
func New(opts ...Option) *Engine {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	// Keep a logger so the runtime default is never overwritten with nil.
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithMapID(eng.mapID),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(runtimeOpts...)
	return eng
}

// MapID returns the ID of the map held by the engine.
func (e *Engine) MapID() string { return e.mapID }

// Origin returns the client ID stamped on local patches.
func (e *Engine) Origin() string { return e.runtime.Origin() }

// Load replaces the map without producing a patch.
func (e *Engine) Load(root *domain.Node) error {
	return e.runtime.Load(root)
}

// Apply merges a remote patch.
func (e *Engine) Apply(ctx context.Context, p domain.Patch) (Result, error) {
	return e.runtime.Apply(ctx, p)
}

// Rename relabels the node behind visualID.
func (e *Engine) Rename(ctx context.Context, visualID, label string, note *string) (domain.Patch, error) {
	return e.runtime.Rename(ctx, visualID, label, note)
}

// Connect draws a link edge between two visual nodes.
func (e *Engine) Connect(ctx context.Context, source, target string) (domain.Patch, error) {
	return e.runtime.Connect(ctx, source, target)
}

// AddChild appends a new node under parentVisualID.
func (e *Engine) AddChild(ctx context.Context, parentVisualID, label string) (domain.Patch, error) {
	return e.runtime.AddChild(ctx, parentVisualID, label)
}

// AddRoot starts an empty map with a root node.
func (e *Engine) AddRoot(ctx context.Context, label string) (domain.Patch, error) {
	return e.runtime.AddRoot(ctx, label)
}

// Remove deletes the node behind visualID and its subtree.
func (e *Engine) Remove(ctx context.Context, visualID string) (domain.Patch, error) {
	return e.runtime.Remove(ctx, visualID)
}

// Replace swaps the whole map and returns the patch to broadcast.
func (e *Engine) Replace(ctx context.Context, root *domain.Node) (domain.Patch, error) {
	return e.runtime.Replace(ctx, root)
}

// Move repositions a visual node without producing a patch.
func (e *Engine) Move(visualID string, pos domain.Position) error {
	return e.runtime.Move(visualID, pos)
}

// Tree returns a copy of the canonical tree.
func (e *Engine) Tree() *domain.Node { return e.runtime.Tree() }

// Graph returns the live graph view; treat it as read-only.
func (e *Engine) Graph() *domain.Graph { return e.runtime.Graph() }

// Snapshot exports the graph with positions and rendered bounds.
func (e *Engine) Snapshot() domain.Snapshot { return e.runtime.Snapshot() }

// Pending returns the buffered orphan patches.
func (e *Engine) Pending() []domain.Patch { return e.runtime.Pending() }

// DiscardPending empties the orphan buffer.
func (e *Engine) DiscardPending() int { return e.runtime.DiscardPending() }

// Epoch counts full map replacements.
func (e *Engine) Epoch() uint64 { return e.runtime.Epoch() }
