package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/session"
)

// ErrNoGenerator is returned by Generate when no generator is configured.
var ErrNoGenerator = errors.New("no generator configured")

// Service keeps the canonical copy of every map and relays patches between
// participants. It holds no per-map state in memory: each patch is merged
// into the stored tree under the map's session lock.
type Service struct {
	sessions  *session.Manager
	broker    ports.Broker
	generator ports.Generator

	hooks      domain.LifecycleHooks
	layout     arbor.LayoutOptions
	nodeWidth  float64
	nodeHeight float64
	logger     *slog.Logger
}

var _ ports.Relay = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithGenerator enables Generate.
func WithGenerator(g ports.Generator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithLifecycleHooks observes every merge performed by the relay.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Service) {
		s.hooks = hooks
	}
}

// WithLayout sets the layout used for snapshots.
func WithLayout(opts arbor.LayoutOptions) Option {
	return func(s *Service) {
		s.layout = opts
	}
}

// WithNodeSize sets the node box size used for snapshot bounds.
func WithNodeSize(width, height float64) Option {
	return func(s *Service) {
		s.nodeWidth = width
		s.nodeHeight = height
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a relay over a session manager and a broker.
func New(sessions *session.Manager, broker ports.Broker, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		broker:   broker,
		layout:   arbor.DefaultLayoutOptions(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) engine(mapID string) *arbor.Engine {
	opts := []arbor.Option{
		arbor.WithMapID(mapID),
		arbor.WithLogger(s.logger),
		arbor.WithLifecycleHooks(s.hooks),
		arbor.WithLayout(s.layout),
	}
	if s.nodeWidth > 0 || s.nodeHeight > 0 {
		opts = append(opts, arbor.WithNodeSize(s.nodeWidth, s.nodeHeight))
	}
	return arbor.New(opts...)
}

// Handle implements ports.Relay. Merge failures are answered with an error
// envelope rather than returned, so one bad patch does not drop the
// connection.
func (s *Service) Handle(ctx context.Context, mapID, connID string, env domain.Envelope) ([]domain.Envelope, error) {
	logger := s.logger.With("map_id", mapID, "conn_id", connID, "event", env.Event)

	switch env.Event {
	case domain.EventRequestMap:
		root, err := s.sessions.LoadOrEmpty(ctx, mapID)
		if err != nil {
			return nil, err
		}
		reply, err := domain.NewMapUpdatedEnvelope(root)
		if err != nil {
			return nil, err
		}
		return []domain.Envelope{reply}, nil

	case domain.EventUpdateMap:
		update, err := env.DecodeUpdate()
		if err != nil {
			logger.Warn("relay: bad update", "error", err)
			return []domain.Envelope{domain.NewErrorEnvelope(err.Error())}, nil
		}
		patch := update.Changes
		if patch.Type == "" {
			patch = domain.MapReplaced(update.Map)
		}
		if _, _, err := s.Apply(ctx, mapID, connID, patch); err != nil {
			logger.Warn("relay: patch rejected", "patch", patch.String(), "error", err)
			return []domain.Envelope{domain.NewErrorEnvelope(err.Error())}, nil
		}
		return nil, nil

	case domain.EventMapUpdated:
		root, err := env.DecodeMap()
		if err != nil {
			return []domain.Envelope{domain.NewErrorEnvelope(err.Error())}, nil
		}
		if _, _, err := s.Apply(ctx, mapID, connID, domain.MapReplaced(root)); err != nil {
			return []domain.Envelope{domain.NewErrorEnvelope(err.Error())}, nil
		}
		return nil, nil

	default:
		logger.Warn("relay: unknown event")
		return []domain.Envelope{domain.NewErrorEnvelope(fmt.Sprintf("unknown event %q", env.Event))}, nil
	}
}

// Apply merges p into the stored map and, if anything changed, broadcasts it
// to every participant except sender. It returns the engine's result and the
// tree after the merge.
//
// A NodeAdded whose parent is not in the stored map cannot be buffered here
// and fails with domain.ErrOrphanPatch.
func (s *Service) Apply(ctx context.Context, mapID, sender string, p domain.Patch) (arbor.Result, *domain.Node, error) {
	var (
		res  arbor.Result
		tree *domain.Node
	)
	err := s.sessions.Update(ctx, mapID, func(ctx context.Context, root *domain.Node) (*domain.Node, bool, error) {
		eng := s.engine(mapID)
		if err := eng.Load(root); err != nil {
			return nil, false, fmt.Errorf("stored map %s: %w", mapID, err)
		}

		var err error
		res, err = eng.Apply(ctx, p)
		if err != nil {
			return nil, false, err
		}
		tree = eng.Tree()

		switch res.Outcome {
		case domain.OutcomeBuffered:
			return nil, false, fmt.Errorf("%w: parent %q of %q is not in map %s", domain.ErrOrphanPatch, p.ParentID, p.NodeID, mapID)
		case domain.OutcomeApplied, domain.OutcomeAbandoned:
			return tree, true, nil
		default:
			return nil, false, nil
		}
	})
	if err != nil {
		return res, nil, err
	}

	if res.Outcome == domain.OutcomeApplied || res.Outcome == domain.OutcomeAbandoned {
		s.publish(ctx, mapID, sender, p, tree)
	}
	return res, tree, nil
}

func (s *Service) publish(ctx context.Context, mapID, sender string, p domain.Patch, tree *domain.Node) {
	var (
		env domain.Envelope
		err error
	)
	if p.Type == domain.PatchMapReplaced {
		env, err = domain.NewMapUpdatedEnvelope(tree)
	} else {
		env, err = domain.NewUpdateMapEnvelope(p, tree)
	}
	if err != nil {
		s.logger.Error("relay: encode broadcast", "map_id", mapID, "error", err)
		return
	}
	if err := s.broker.Publish(ctx, ports.Message{MapID: mapID, Sender: sender, Envelope: env}); err != nil {
		s.logger.Warn("relay: publish failed", "map_id", mapID, "error", err)
	}
}

// Replace stores root as the whole map and broadcasts it to everyone.
func (s *Service) Replace(ctx context.Context, mapID string, root *domain.Node) (*domain.Node, error) {
	_, tree, err := s.Apply(ctx, mapID, "", domain.MapReplaced(root))
	return tree, err
}

// Get returns the stored map.
func (s *Service) Get(ctx context.Context, mapID string) (*domain.Node, error) {
	return s.sessions.Load(ctx, mapID)
}

// Snapshot lays the stored map out and returns the positioned graph.
func (s *Service) Snapshot(ctx context.Context, mapID string) (domain.Snapshot, error) {
	root, err := s.sessions.Load(ctx, mapID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	eng := s.engine(mapID)
	if err := eng.Load(root); err != nil {
		return domain.Snapshot{}, err
	}
	return eng.Snapshot(), nil
}

// Delete removes the map and tells its participants that it is now empty.
func (s *Service) Delete(ctx context.Context, mapID string) error {
	if err := s.sessions.Delete(ctx, mapID); err != nil {
		return err
	}
	env, err := domain.NewMapUpdatedEnvelope(nil)
	if err != nil {
		return err
	}
	if err := s.broker.Publish(ctx, ports.Message{MapID: mapID, Envelope: env}); err != nil {
		s.logger.Warn("relay: publish failed", "map_id", mapID, "error", err)
	}
	return nil
}

// List returns every stored map ID.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.sessions.List(ctx)
}

// Generate builds a map from text with the configured generator and replaces
// mapID with it. Blank input produces an empty map.
func (s *Service) Generate(ctx context.Context, mapID string, history []string) (*domain.Node, error) {
	if s.generator == nil {
		return nil, ErrNoGenerator
	}
	if strings.TrimSpace(strings.Join(history, "")) == "" {
		return s.Replace(ctx, mapID, nil)
	}
	root, err := s.generator.Generate(ctx, history)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	return s.Replace(ctx, mapID, root)
}
