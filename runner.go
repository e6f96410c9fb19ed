package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Command is a unit of work executed on the Runner's goroutine. A command that
// edits the map returns the patch to broadcast; read-only commands return a
// zero Patch.
type Command func(ctx context.Context, eng *Engine) (domain.Patch, error)

type commandRequest struct {
	fn    Command
	reply chan commandReply
}

type commandReply struct {
	patch domain.Patch
	err   error
}

// Runner drives one Engine from one Channel. Inbound envelopes and local
// commands are executed sequentially on the goroutine calling Run.
type Runner struct {
	engine  *Engine
	channel ports.Channel
	logger  *slog.Logger

	// OnError receives channel and merge failures. They never stop the loop.
	onError func(error)

	// OnChange runs after every envelope or command that touched the map.
	onChange func(ctx context.Context, eng *Engine)

	// OnState runs for every connection state transition.
	onState func(domain.ConnState)

	commands chan commandRequest
	done     chan struct{}
}

// RunnerOption defines a functional option for configuring the Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger configures the structured logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithErrorHandler receives errors surfaced by the loop.
func WithErrorHandler(fn func(error)) RunnerOption {
	return func(r *Runner) {
		r.onError = fn
	}
}

// WithChangeHandler is called after the map changed, on the loop goroutine.
func WithChangeHandler(fn func(ctx context.Context, eng *Engine)) RunnerOption {
	return func(r *Runner) {
		r.onChange = fn
	}
}

// WithStateHandler is called for every connection state transition.
func WithStateHandler(fn func(domain.ConnState)) RunnerOption {
	return func(r *Runner) {
		r.onState = fn
	}
}

// NewRunner binds an engine to a channel. The Runner owns the channel and
// closes it when Run returns.
func NewRunner(engine *Engine, channel ports.Channel, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:   engine,
		channel:  channel,
		logger:   logging.NewNop(),
		commands: make(chan commandRequest),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ErrRunnerStopped is returned by Do once the loop has exited.
var ErrRunnerStopped = errors.New("runner stopped")

// Run processes events until ctx is cancelled or the channel closes its event
// stream. It returns nil on a clean shutdown.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	defer func() {
		if err := r.channel.Close(); err != nil {
			r.logger.Debug("channel close failed", "error", err)
		}
	}()

	events := r.channel.Events()
	states := r.channel.States()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-events:
			if !ok {
				return nil
			}
			r.handleEnvelope(ctx, env)
		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			r.handleState(ctx, st)
		case req := <-r.commands:
			patch, err := r.execute(ctx, req.fn)
			req.reply <- commandReply{patch: patch, err: err}
		}
	}
}

// Do runs fn on the loop goroutine and waits for it. If fn returns a patch,
// it is broadcast before Do returns; a failed send is reported to the error
// handler and does not undo the local edit.
func (r *Runner) Do(ctx context.Context, fn Command) (domain.Patch, error) {
	req := commandRequest{fn: fn, reply: make(chan commandReply, 1)}
	select {
	case r.commands <- req:
	case <-r.done:
		return domain.Patch{}, ErrRunnerStopped
	case <-ctx.Done():
		return domain.Patch{}, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep.patch, rep.err
	case <-ctx.Done():
		return domain.Patch{}, ctx.Err()
	}
}

// Rename is a convenience wrapper around Engine.Rename.
func (r *Runner) Rename(ctx context.Context, visualID, label string, note *string) (domain.Patch, error) {
	return r.Do(ctx, func(ctx context.Context, eng *Engine) (domain.Patch, error) {
		return eng.Rename(ctx, visualID, label, note)
	})
}

// Connect is a convenience wrapper around Engine.Connect.
func (r *Runner) Connect(ctx context.Context, source, target string) (domain.Patch, error) {
	return r.Do(ctx, func(ctx context.Context, eng *Engine) (domain.Patch, error) {
		return eng.Connect(ctx, source, target)
	})
}

// AddChild is a convenience wrapper around Engine.AddChild.
func (r *Runner) AddChild(ctx context.Context, parentVisualID, label string) (domain.Patch, error) {
	return r.Do(ctx, func(ctx context.Context, eng *Engine) (domain.Patch, error) {
		return eng.AddChild(ctx, parentVisualID, label)
	})
}

// Remove is a convenience wrapper around Engine.Remove.
func (r *Runner) Remove(ctx context.Context, visualID string) (domain.Patch, error) {
	return r.Do(ctx, func(ctx context.Context, eng *Engine) (domain.Patch, error) {
		return eng.Remove(ctx, visualID)
	})
}

// Snapshot reads the current graph on the loop goroutine.
func (r *Runner) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	_, err := r.Do(ctx, func(_ context.Context, eng *Engine) (domain.Patch, error) {
		snap = eng.Snapshot()
		return domain.Patch{}, nil
	})
	return snap, err
}

func (r *Runner) execute(ctx context.Context, fn Command) (domain.Patch, error) {
	patch, err := fn(ctx, r.engine)
	if err != nil || patch.Type == "" {
		return patch, err
	}
	r.changed(ctx)

	env, encErr := domain.NewUpdateMapEnvelope(patch, r.engine.Tree())
	if encErr != nil {
		r.fail(encErr)
		return patch, nil
	}
	if sendErr := r.channel.Send(ctx, env); sendErr != nil {
		r.fail(wrapChannel(sendErr))
	}
	return patch, nil
}

func (r *Runner) handleEnvelope(ctx context.Context, env domain.Envelope) {
	switch env.Event {
	case domain.EventMapUpdated:
		tree, err := env.DecodeMap()
		if err != nil {
			r.fail(err)
			return
		}
		r.apply(ctx, domain.MapReplaced(tree))

	case domain.EventUpdateMap:
		update, err := env.DecodeUpdate()
		if err != nil {
			r.fail(err)
			return
		}
		patch := update.Changes
		if patch.Type == "" {
			// Peers that only send the full map.
			if update.Map == nil {
				return
			}
			patch = domain.MapReplaced(update.Map)
		}
		if origin := r.engine.Origin(); origin != "" && patch.Origin == origin {
			r.logger.Debug("echo suppressed", "patch", patch.String())
			return
		}
		r.apply(ctx, patch)

	case domain.EventError:
		r.fail(fmt.Errorf("%w: server: %s", domain.ErrChannel, env.DecodeError()))

	case domain.EventConnectError:
		r.fail(fmt.Errorf("%w: connect: %s", domain.ErrChannel, env.DecodeError()))

	case domain.EventConnect, domain.EventRequestMap:
		r.logger.Debug("envelope ignored", "event", env.Event)

	default:
		r.logger.Warn("unknown event", "event", env.Event)
	}
}

func (r *Runner) apply(ctx context.Context, p domain.Patch) {
	res, err := r.engine.Apply(ctx, p)
	if err != nil {
		r.fail(err)
		return
	}
	if dropErr := res.Err(); dropErr != nil {
		r.fail(dropErr)
	}
	switch res.Outcome {
	case domain.OutcomeApplied, domain.OutcomeAbandoned:
		r.changed(ctx)
	}
}

// handleState requests a fresh map on every (re)connect. Buffered orphans are
// discarded because the fresh map supersedes them.
func (r *Runner) handleState(ctx context.Context, st domain.ConnState) {
	r.logger.Info("connection state changed", "state", st)
	if r.onState != nil {
		r.onState(st)
	}
	if st != domain.ConnConnected {
		return
	}
	if n := r.engine.DiscardPending(); n > 0 {
		r.logger.Debug("discarded buffered patches", "count", n)
	}
	if err := r.channel.Send(ctx, domain.NewRequestMapEnvelope()); err != nil {
		r.fail(wrapChannel(err))
	}
}

func (r *Runner) changed(ctx context.Context) {
	if r.onChange != nil {
		r.onChange(ctx, r.engine)
	}
}

func (r *Runner) fail(err error) {
	r.logger.Warn("sync error", "error", err)
	if r.onError != nil {
		r.onError(err)
	}
}

func wrapChannel(err error) error {
	if errors.Is(err, domain.ErrChannel) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrChannel, err)
}
