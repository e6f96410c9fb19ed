package runtime

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// Engine owns one mind map: the canonical tree, its graph projection, the
// orphan buffer and the dedupe window.
//
// Engine is not safe for concurrent use. It must be driven from a single
// execution context; hooks run on that same context and may call back in.
type Engine struct {
	tree  *domain.Tree
	graph *domain.Graph

	layout     LayoutOptions
	nodeWidth  float64
	nodeHeight float64

	orphans orphanBuffer
	seen    *seenSet
	epoch   uint64

	mapID  string
	origin string
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLayout sets the layout origin and spacing.
func WithLayout(opts LayoutOptions) EngineOption {
	return func(e *Engine) {
		e.layout = opts.withDefaults()
	}
}

// WithNodeSize sets the rendered node box size used for snapshot bounds.
func WithNodeSize(width, height float64) EngineOption {
	return func(e *Engine) {
		if width > 0 {
			e.nodeWidth = width
		}
		if height > 0 {
			e.nodeHeight = height
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMapID labels events and log lines with the map being edited.
func WithMapID(id string) EngineOption {
	return func(e *Engine) {
		e.mapID = id
	}
}

// WithOrigin stamps local patches with the given client ID.
func WithOrigin(origin string) EngineOption {
	return func(e *Engine) {
		e.origin = origin
	}
}

// WithDedupeWindow sets how many recent patch IDs are remembered.
func WithDedupeWindow(n int) EngineOption {
	return func(e *Engine) {
		e.seen = newSeenSet(n)
	}
}

// NewEngine creates an engine holding an empty map.
func NewEngine(opts ...EngineOption) *Engine {
	empty, _ := domain.NewTree(nil)
	e := &Engine{
		tree:       empty,
		graph:      domain.NewGraph(),
		layout:     DefaultLayoutOptions(),
		nodeWidth:  DefaultNodeWidth,
		nodeHeight: DefaultNodeHeight,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.seen == nil {
		e.seen = newSeenSet(DefaultDedupeWindow)
	}
	if e.mapID != "" {
		e.logger = e.logger.With("map_id", e.mapID)
	}
	return e
}

// MapID returns the map this engine was labeled with.
func (e *Engine) MapID() string { return e.mapID }

// Origin returns the client ID stamped on local patches.
func (e *Engine) Origin() string { return e.origin }

// Epoch counts how many times the whole map has been replaced.
func (e *Engine) Epoch() uint64 { return e.epoch }

// Tree returns a deep copy of the canonical tree (nil when empty).
func (e *Engine) Tree() *domain.Node {
	return e.tree.Root().Clone()
}

// Graph returns the live graph view. Callers must treat it as read-only and
// must not retain it across calls that mutate the engine.
func (e *Engine) Graph() *domain.Graph {
	return e.graph
}

// Snapshot returns a copy of the graph with its rendered bounds.
func (e *Engine) Snapshot() domain.Snapshot {
	return e.graph.Snapshot(e.nodeWidth, e.nodeHeight)
}

// Pending returns the patches waiting for a parent.
func (e *Engine) Pending() []domain.Patch {
	return e.orphans.Snapshot()
}

// DiscardPending drops every buffered orphan without reporting them.
// Used after a reconnect, when a fresh map is about to be requested.
func (e *Engine) DiscardPending() int {
	n := e.orphans.Len()
	e.orphans.Take()
	return n
}

// Load replaces the map without emitting a patch or running hooks.
// The orphan buffer is kept.
func (e *Engine) Load(root *domain.Node) error {
	return e.replace(root)
}

func (e *Engine) replace(root *domain.Node) error {
	if err := domain.Validate(root); err != nil {
		return err
	}
	tree, err := domain.NewTree(root.Clone())
	if err != nil {
		return err
	}
	e.tree = tree
	e.graph = LayoutTree(tree, e.layout)
	e.epoch++
	e.logger.Debug("map replaced", "nodes", tree.Len(), "epoch", e.epoch)
	return nil
}

func (e *Engine) event(p domain.Patch, outcome domain.Outcome, local bool, err error) *domain.PatchEvent {
	return &domain.PatchEvent{
		Timestamp: e.now(),
		MapID:     e.mapID,
		Patch:     p,
		Outcome:   outcome,
		Local:     local,
		Err:       err,
	}
}

func (e *Engine) emit(ctx context.Context, ev *domain.PatchEvent) {
	var hook func(context.Context, *domain.PatchEvent)
	switch ev.Outcome {
	case domain.OutcomeApplied:
		hook = e.hooks.OnPatchApplied
	case domain.OutcomeBuffered:
		hook = e.hooks.OnPatchBuffered
	case domain.OutcomeDropped:
		hook = e.hooks.OnPatchDropped
	}
	if hook != nil {
		hook(ctx, ev)
	}
}
