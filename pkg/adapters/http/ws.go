package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := s.allowOrigin(origin)
			return ok
		},
	}
}

// ServeWS handles GET /ws/{mapID}. Each inbound envelope is handed to the
// relay; replies go back to this connection only, and broadcasts from the
// other participants of the map are forwarded as they arrive.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	mapID := chi.URLParam(r, "mapID")
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("websocket: upgrade failed", "map_id", mapID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connID := uuid.NewString()
	logger := s.logger.With("map_id", mapID, "conn_id", connID)
	if s.metrics != nil {
		defer s.metrics.Connected("websocket")()
	}

	sub, unsubscribe, err := s.Broker.Subscribe(ctx, mapID)
	if err != nil {
		logger.Error("websocket: subscribe failed", "error", err)
		_ = conn.WriteJSON(domain.NewErrorEnvelope("subscribe failed"))
		return
	}
	defer unsubscribe()
	logger.Info("websocket: client connected")

	out := make(chan domain.Envelope, s.bufferSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writeLoop(ctx, conn, connID, out, sub)
	}()

	var limiter *rate.Limiter
	if s.limit > 0 {
		limiter = rate.NewLimiter(s.limit, s.burst)
	}

	reply := func(env domain.Envelope) bool {
		select {
		case out <- env:
			return true
		case <-ctx.Done():
			return false
		}
	}

	conn.SetReadLimit(maxBodySize)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	})

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("websocket: client disconnected", "error", err)
			} else {
				logger.Debug("websocket: client disconnected")
			}
			break
		}
		if s.metrics != nil {
			s.metrics.Envelope(env.Event, "in")
		}

		if limiter != nil && !limiter.Allow() {
			logger.Warn("websocket: rate limited", "event", env.Event)
			if !reply(domain.NewErrorEnvelope("rate limit exceeded")) {
				break
			}
			continue
		}

		start := time.Now()
		replies, err := s.Relay.Handle(ctx, mapID, connID, env)
		if s.metrics != nil {
			s.metrics.ObserveRelay(env.Event, start)
		}
		if err != nil {
			logger.Error("websocket: relay failed", "event", env.Event, "error", err)
			replies = []domain.Envelope{domain.NewErrorEnvelope(err.Error())}
		}
		for _, env := range replies {
			if !reply(env) {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	<-writerDone
}

// writeLoop is the only writer of conn.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, connID string, out <-chan domain.Envelope, sub <-chan ports.Message) {
	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	write := func(env domain.Envelope) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := conn.WriteJSON(env); err != nil {
			s.logger.Debug("websocket: write failed", "conn_id", connID, "error", err)
			return false
		}
		if s.metrics != nil {
			s.metrics.Envelope(env.Event, "out")
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.writeTimeout))
			return
		case env := <-out:
			if !write(env) {
				return
			}
		case msg, ok := <-sub:
			if !ok {
				return
			}
			if msg.Sender == connID {
				continue
			}
			if !write(msg.Envelope) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				return
			}
		}
	}
}
