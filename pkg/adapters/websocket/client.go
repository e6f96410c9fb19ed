package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	backend "github.com/gorilla/websocket"
)

// Settings tunes the transport. Zero fields take the defaults.
type Settings struct {
	// ReconnectMin is the first delay after a failed or dropped connection.
	// Each further failure doubles it, up to ReconnectMax.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	WriteTimeout time.Duration
	PingInterval time.Duration
	// ReadTimeout must exceed PingInterval; a pong extends it.
	ReadTimeout time.Duration

	BufferSize int
	Header     http.Header
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		ReconnectMin: 500 * time.Millisecond,
		ReconnectMax: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		BufferSize:   64,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.ReconnectMin <= 0 {
		s.ReconnectMin = d.ReconnectMin
	}
	if s.ReconnectMax < s.ReconnectMin {
		s.ReconnectMax = max(d.ReconnectMax, s.ReconnectMin)
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = d.WriteTimeout
	}
	if s.PingInterval <= 0 {
		s.PingInterval = d.PingInterval
	}
	if s.ReadTimeout <= s.PingInterval {
		s.ReadTimeout = 2 * s.PingInterval
	}
	if s.BufferSize <= 0 {
		s.BufferSize = d.BufferSize
	}
	return s
}

// Option configures a Client.
type Option func(*Client)

// WithSettings overrides the transport settings.
func WithSettings(s Settings) Option {
	return func(c *Client) {
		c.settings = s.withDefaults()
	}
}

// WithDialer replaces the default dialer.
func WithDialer(d *backend.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is a ports.Channel over a websocket to the relay. It keeps
// reconnecting with exponential backoff until closed. Envelopes sent while
// disconnected are queued and written after the next successful dial.
type Client struct {
	url      string
	dialer   *backend.Dialer
	settings Settings
	logger   *slog.Logger

	send   chan domain.Envelope
	events chan domain.Envelope
	states chan domain.ConnState

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	retry *domain.Envelope // unwritten envelope from a dropped connection
}

var _ ports.Channel = (*Client)(nil)

// Dial starts a client for url (ws:// or wss://). It returns immediately;
// connection progress is reported on States and failures as connect_error
// events.
func Dial(ctx context.Context, url string, opts ...Option) *Client {
	c := &Client{
		url:      url,
		dialer:   backend.DefaultDialer,
		settings: DefaultSettings(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.send = make(chan domain.Envelope, c.settings.BufferSize)
	c.events = make(chan domain.Envelope, c.settings.BufferSize)
	c.states = make(chan domain.ConnState, 16)
	c.ctx, c.cancel = context.WithCancel(ctx)

	go c.run()
	return c
}

// Send queues env. It fails only when the client is closed or the queue is
// full.
func (c *Client) Send(ctx context.Context, env domain.Envelope) error {
	select {
	case <-c.ctx.Done():
		return fmt.Errorf("%w: client closed", domain.ErrChannel)
	default:
	}
	select {
	case c.send <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: send queue full", domain.ErrChannel)
	}
}

// Events delivers envelopes from the relay.
func (c *Client) Events() <-chan domain.Envelope { return c.events }

// States reports connection state transitions.
func (c *Client) States() <-chan domain.ConnState { return c.states }

// Close stops reconnecting and waits for the connection to shut down.
func (c *Client) Close() error {
	c.cancel()
	<-c.done
	return nil
}

func (c *Client) state(st domain.ConnState) {
	select {
	case c.states <- st:
	default:
		c.logger.Warn("websocket: state dropped, consumer is slow", "state", st)
	}
}

func (c *Client) event(env domain.Envelope) bool {
	select {
	case c.events <- env:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) run() {
	defer func() {
		c.state(domain.ConnDisconnected)
		close(c.events)
		close(c.states)
		close(c.done)
	}()

	delay := c.settings.ReconnectMin
	first := true
	for {
		if !first {
			c.state(domain.ConnReconnecting)
		}
		first = false

		conn, _, err := c.dialer.DialContext(c.ctx, c.url, c.settings.Header)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Info("websocket: dial failed", "url", c.url, "error", err, "retry_in", delay)
			if env, encErr := newConnectError(err); encErr == nil && !c.event(env) {
				return
			}
		} else {
			delay = c.settings.ReconnectMin
			c.state(domain.ConnConnected)
			c.handle(conn)
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Info("websocket: connection lost", "url", c.url)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(2*delay, c.settings.ReconnectMax)
	}
}

func newConnectError(err error) (domain.Envelope, error) {
	data, encErr := json.Marshal(domain.ErrorMessage{Message: err.Error()})
	if encErr != nil {
		return domain.Envelope{}, encErr
	}
	return domain.Envelope{Event: domain.EventConnectError, Data: data}, nil
}

// handle runs the read and write pumps of one connection until either fails
// or the client is closed.
func (c *Client) handle(conn *backend.Conn) {
	defer conn.Close()

	handleCtx, handleCancel := context.WithCancel(c.ctx)
	defer handleCancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer handleCancel()
		c.writePump(handleCtx, conn)
	}()

	go func() {
		defer wg.Done()
		defer handleCancel()
		c.readPump(handleCtx, conn)
	}()

	<-handleCtx.Done()
	// Unblock the read pump.
	_ = conn.SetReadDeadline(time.Now())
	wg.Wait()
}

func (c *Client) writePump(ctx context.Context, conn *backend.Conn) {
	ping := time.NewTicker(c.settings.PingInterval)
	defer ping.Stop()

	write := func(env domain.Envelope) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
		if err := conn.WriteJSON(env); err != nil {
			c.logger.Info("websocket: write failed", "event", env.Event, "error", err)
			c.mu.Lock()
			c.retry = &env
			c.mu.Unlock()
			return false
		}
		return true
	}

	c.mu.Lock()
	pending := c.retry
	c.retry = nil
	c.mu.Unlock()
	if pending != nil && !write(*pending) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			if c.ctx.Err() != nil {
				_ = conn.WriteControl(backend.CloseMessage,
					backend.FormatCloseMessage(backend.CloseNormalClosure, ""),
					time.Now().Add(c.settings.WriteTimeout))
			}
			return
		case env := <-c.send:
			if !write(env) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(backend.PingMessage, nil, time.Now().Add(c.settings.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, conn *backend.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	})

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil && !backend.IsCloseError(err, backend.CloseNormalClosure, backend.CloseGoingAway) {
				c.logger.Info("websocket: read failed", "error", err)
			}
			return
		}
		if env.Event == "" {
			continue
		}
		select {
		case c.events <- env:
		case <-ctx.Done():
			return
		}
	}
}
