package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/openai"
	redisAdapter "github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/generator"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/relay"
	"github.com/aretw0/arbor/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App holds the components every command builds from the configuration.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Store    ports.MapStore
	Broker   ports.Broker
	Sessions *session.Manager
	Relay    *relay.Service

	// Metrics and Registry are set when server.metrics is enabled.
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	closers []func() error
}

// NewLogger builds the application logger from the log section.
func NewLogger(cfg config.Log) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWriter(os.Stderr, level, cfg.Format), nil
}

// Build wires the store, broker, lock, generator and relay selected by cfg.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &App{Config: cfg, Logger: logger}

	var (
		sessionOpts = []session.Option{session.WithLogger(logger), session.WithLockTTL(cfg.Redis.LockTTL)}
		client      *redis.Client
	)
	switch cfg.Store.Backend {
	case config.StoreFile:
		app.Store = file.New(cfg.Store.Path, file.WithFormat(cfg.Store.Format))
		app.Broker = memory.NewBroker(memory.WithLogger(logger))
	case config.StoreRedis:
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		app.closers = append(app.closers, client.Close)
		app.Store = redisAdapter.NewFromClient(client, redisAdapter.WithTTL(cfg.Redis.TTL))
		app.Broker = redisAdapter.NewBroker(client, redisAdapter.WithLogger(logger))
		sessionOpts = append(sessionOpts, session.WithLocker(redisAdapter.NewLocker(client, redisAdapter.DefaultPrefix)))
	default:
		app.Store = memory.NewStore()
		app.Broker = memory.NewBroker(memory.WithLogger(logger))
	}
	store, err := wrapStore(app.Store, cfg.Store)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Store = store
	app.Sessions = session.NewManager(app.Store, sessionOpts...)

	hooks := observability.LoggingHooks(logger)
	if cfg.Server.Metrics {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		app.Metrics = observability.NewMetrics(app.Registry)
		hooks = observability.ChainHooks(hooks, app.Metrics.Hooks())
	}

	relayOpts := []relay.Option{
		relay.WithLogger(logger),
		relay.WithLifecycleHooks(hooks),
		relay.WithLayout(layoutOf(cfg.Layout)),
		relay.WithNodeSize(cfg.Layout.NodeWidth, cfg.Layout.NodeHeight),
	}
	gen, err := NewGenerator(cfg.Generator, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if gen != nil {
		relayOpts = append(relayOpts, relay.WithGenerator(gen))
	}
	app.Relay = relay.New(app.Sessions, app.Broker, relayOpts...)

	logger.Debug("cli: app built", "store", cfg.Store.Backend, "generator", cfg.Generator.Kind, "metrics", cfg.Server.Metrics)
	return app, nil
}

// wrapStore applies redaction and encryption. Redaction runs first so the
// masked tree is what gets sealed.
func wrapStore(store ports.MapStore, cfg config.Store) (ports.MapStore, error) {
	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		patterns := cfg.Redact
		if len(patterns) == 1 && patterns[0] == "default" {
			patterns = middleware.DefaultPIIPatterns
		}
		mw, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		mws = append(mws, mw)
	}
	if cfg.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%w: store.encryption_key: %v", config.ErrInvalidConfig, err)
		}
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		mws = append(mws, mw)
	}
	return middleware.Chain(store, mws...), nil
}

// Generators registers every built-in generator under its config kind.
func Generators(cfg config.Generator, logger *slog.Logger) *registry.Registry {
	r := registry.NewRegistry()
	r.Register(config.GeneratorKeywords, func() (ports.Generator, error) {
		return generator.NewKeywords(
			generator.WithMaxTopics(cfg.MaxTopics),
			generator.WithMaxInput(cfg.MaxInput),
			generator.WithLogger(logger),
		), nil
	})
	r.Register(config.GeneratorOpenAI, func() (ports.Generator, error) {
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("%w: openai generator needs an API key", config.ErrInvalidConfig)
		}
		return openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL,
			openai.WithModel(cfg.OpenAI.Model),
			openai.WithMaxTopics(cfg.MaxTopics),
			openai.WithMaxInput(cfg.MaxInput),
			openai.WithLogger(logger),
		), nil
	})
	return r
}

// NewGenerator returns the configured generator, or nil when generation is
// disabled. An empty kind means keywords.
func NewGenerator(cfg config.Generator, logger *slog.Logger) (ports.Generator, error) {
	kind := cfg.Kind
	switch kind {
	case config.GeneratorNone:
		return nil, nil
	case "":
		kind = config.GeneratorKeywords
	}
	gen, err := Generators(cfg, logger).New(kind)
	if errors.Is(err, registry.ErrUnknownGenerator) {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return gen, err
}

func layoutOf(cfg config.Layout) arbor.LayoutOptions {
	layout := arbor.DefaultLayoutOptions()
	if cfg.HorizontalSpacing > 0 {
		layout.HorizontalSpacing = cfg.HorizontalSpacing
	}
	if cfg.VerticalSpacing > 0 {
		layout.VerticalSpacing = cfg.VerticalSpacing
	}
	return layout
}

// LayoutOptions returns the engine options for standalone layout commands.
func LayoutOptions(cfg config.Layout) []arbor.Option {
	opts := []arbor.Option{arbor.WithLayout(layoutOf(cfg))}
	if cfg.NodeWidth > 0 || cfg.NodeHeight > 0 {
		opts = append(opts, arbor.WithNodeSize(cfg.NodeWidth, cfg.NodeHeight))
	}
	return opts
}

// Close releases connections opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
