package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// DefaultMapID is used by generate_map when the request names no map.
const DefaultMapID = "default"

// ErrBadRequest is returned for request bodies that cannot be decoded.
var ErrBadRequest = errors.New("bad request")

// maxBodySize bounds REST request bodies and websocket frames.
const maxBodySize = 1 << 20

// Relay is the map service behind the server.
type Relay interface {
	ports.Relay
	Apply(ctx context.Context, mapID, sender string, p domain.Patch) (arbor.Result, *domain.Node, error)
	Replace(ctx context.Context, mapID string, root *domain.Node) (*domain.Node, error)
	Get(ctx context.Context, mapID string) (*domain.Node, error)
	Snapshot(ctx context.Context, mapID string) (domain.Snapshot, error)
	Delete(ctx context.Context, mapID string) error
	List(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, mapID string, history []string) (*domain.Node, error)
}

var _ Relay = (*relay.Service)(nil)

// Server serves the REST, websocket and SSE surfaces of a relay.
type Server struct {
	Relay  Relay
	Broker ports.Broker

	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	limit   rate.Limit
	burst   int
	origins []string

	pingInterval time.Duration
	writeTimeout time.Duration
	bufferSize   int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records server activity and serves gatherer at /metrics.
func WithMetrics(m *observability.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithRateLimit bounds inbound websocket envelopes per connection.
// A zero limit disables limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Server) {
		s.limit = limit
		s.burst = max(burst, 1)
	}
}

// WithAllowedOrigins restricts CORS and websocket origins. The default "*"
// allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithPingInterval sets how often idle websocket connections are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// NewServer creates a server over a relay and the broker it publishes to.
func NewServer(r Relay, broker ports.Broker, opts ...Option) *Server {
	s := &Server{
		Relay:        r,
		Broker:       broker,
		logger:       logging.NewNop(),
		limit:        rate.Limit(50),
		burst:        100,
		origins:      []string{"*"},
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		bufferSize:   64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates the HTTP handler for a relay.
func NewHandler(r Relay, broker ports.Broker, opts ...Option) http.Handler {
	return NewServer(r, broker, opts...).Handler()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec())
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate_map", s.GenerateMap)
		r.Get("/maps", s.ListMaps)
		r.Route("/maps/{mapID}", func(r chi.Router) {
			r.Get("/", s.GetMap)
			r.Put("/", s.PutMap)
			r.Delete("/", s.DeleteMap)
			r.Post("/patches", s.PostPatch)
			r.Get("/snapshot", s.GetSnapshot)
		})
	})

	r.Get("/ws/{mapID}", s.ServeWS)
	r.Get("/events", s.SubscribeEvents)
	return r
}

func (s *Server) allowOrigin(origin string) (string, bool) {
	for _, o := range s.origins {
		if o == "*" {
			return "*", true
		}
		if strings.EqualFold(o, origin) {
			return origin, true
		}
	}
	return "", false
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed, ok := s.allowOrigin(r.Header.Get("Origin")); ok {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Arbor API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// statusFor maps engine and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMapNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStaleReference):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOrphanPatch):
		return http.StatusAccepted
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, domain.ErrInvalidTree),
		errors.Is(err, domain.ErrInvalidPatch),
		errors.Is(err, domain.ErrEmptyLabel),
		errors.Is(err, domain.ErrUnknownPatch):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrNoGenerator):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
	} else {
		s.logger.Debug(op+" rejected", "error", err, "status", status)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
