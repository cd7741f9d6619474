package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/routecast/routecast/internal/docstore"
	"github.com/routecast/routecast/internal/protocol"
	"github.com/routecast/routecast/internal/store"
)

// DefaultHandlerTimeout is the hard wall-clock budget for one handler
// invocation.
const DefaultHandlerTimeout = 60 * time.Second

// Collections names the mediating-store collections the broker touches.
type Collections struct {
	// Requests holds the request envelopes.
	Requests string
	// Orders holds the external order documents written by the mobile app.
	Orders string
	// Routes holds route reference documents (stores, catalog products).
	Routes string
}

// DefaultCollections are the collection names used in production.
var DefaultCollections = Collections{
	Requests: "requests",
	Orders:   "orders",
	Routes:   "routes",
}

// Broker drains pending request envelopes and executes them against the
// exclusively-owned analytical store.
type Broker struct {
	docs           docstore.Store
	db             *store.Store
	colls          Collections
	handlerTimeout time.Duration

	// processed tracks request ids already driven to completion by this
	// broker instance, so a modified-event replay of the same envelope
	// is not handled twice.
	processed map[string]struct{}
}

// Option configures a Broker.
type Option func(*Broker)

// WithHandlerTimeout overrides the per-handler wall-clock budget.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Broker) { b.handlerTimeout = d }
}

// WithCollections overrides the mediating-store collection names.
func WithCollections(c Collections) Option {
	return func(b *Broker) { b.colls = c }
}

// New creates a Broker over an open analytical store and a mediating
// store. The analytical store's exclusive lock must already be held; New
// does not take it.
func New(docs docstore.Store, db *store.Store, opts ...Option) *Broker {
	b := &Broker{
		docs:           docs,
		db:             db,
		colls:          DefaultCollections,
		handlerTimeout: DefaultHandlerTimeout,
		processed:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run subscribes to the request collection and processes envelopes until
// ctx is cancelled. Must be called from exactly one goroutine; all
// analytical-store access happens inside this loop.
func (b *Broker) Run(ctx context.Context) error {
	events, err := b.docs.Watch(ctx, b.colls.Requests)
	if err != nil {
		return fmt.Errorf("watch %s: %w", b.colls.Requests, err)
	}

	slog.Info("broker starting", "collection", b.colls.Requests, "handler_timeout", b.handlerTimeout)

	for {
		select {
		case <-ctx.Done():
			slog.Info("broker stopping: context cancelled")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				slog.Info("broker stopping: watch stream closed")
				return nil
			}
			if ev.Kind == docstore.EventRemoved {
				continue
			}
			env := protocol.EnvelopeFromDoc(ev.Doc.ID, ev.Doc.Data)
			b.handle(ctx, env)
		}
	}
}

// handle drives one envelope to a terminal state. Failures are written
// into the envelope and never escape; a single bad request cannot take
// the broker down.
func (b *Broker) handle(ctx context.Context, env protocol.Envelope) {
	if env.Status != protocol.StatusPending {
		return
	}
	if _, done := b.processed[env.RequestID]; done {
		return
	}
	b.processed[env.RequestID] = struct{}{}

	slog.Debug("request received", "request_id", env.RequestID, "operation", env.Operation)

	start := time.Now()
	result, err := b.execute(ctx, env)

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Broker shutdown mid-request. The envelope stays pending and is
		// replayed on restart.
		slog.Debug("shutdown before request finished", "request_id", env.RequestID)
		return
	}

	if err != nil {
		slog.Warn("request failed",
			"request_id", env.RequestID,
			"operation", env.Operation,
			"error", err,
			"elapsed", time.Since(start),
		)
		b.finish(ctx, env, protocol.StatusError, nil, err.Error())
		return
	}

	slog.Info("request completed",
		"request_id", env.RequestID,
		"operation", env.Operation,
		"elapsed", time.Since(start),
	)
	b.finish(ctx, env, protocol.StatusCompleted, result, "")
}

// execute runs the dispatched handler under the wall-clock budget and
// converts panics and deadline overruns into plain errors.
func (b *Broker) execute(ctx context.Context, env protocol.Envelope) (result map[string]any, err error) {
	hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		res, err := b.dispatch(hctx, env)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && hctx.Err() != nil {
			return nil, errors.New("handler timeout")
		}
		return out.result, out.err
	case <-hctx.Done():
		if ctx.Err() != nil {
			// Broker shutdown, not a handler overrun. The envelope stays
			// pending and is replayed on restart.
			return nil, ctx.Err()
		}
		return nil, errors.New("handler timeout")
	}
}

// finish writes the terminal state, respecting the monotonic transition
// invariant: if the envelope already left pending (a client wrote timeout
// while the handler ran), the result is dropped rather than overwriting
// the client's terminal status.
func (b *Broker) finish(ctx context.Context, env protocol.Envelope, status protocol.Status, result map[string]any, errMsg string) {
	current, err := b.docs.Get(ctx, b.colls.Requests, env.RequestID)
	if errors.Is(err, docstore.ErrNotFound) {
		// Client already consumed and deleted a prior terminal write, or
		// abandoned the envelope. Nothing left to record.
		slog.Debug("envelope gone before result write", "request_id", env.RequestID)
		return
	}
	if err != nil {
		slog.Error("read-back before result write failed", "request_id", env.RequestID, "error", err)
		return
	}

	observed := protocol.EnvelopeFromDoc(current.ID, current.Data)
	if !observed.Status.CanTransition(status) {
		slog.Warn("terminal status already set, dropping result",
			"request_id", env.RequestID,
			"observed_status", observed.Status,
			"dropped_status", status,
		)
		return
	}

	fields := map[string]any{"status": string(status)}
	if result != nil {
		fields["result"] = result
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}

	if err := b.docs.Update(ctx, b.colls.Requests, env.RequestID, fields); err != nil {
		slog.Error("result write failed", "request_id", env.RequestID, "error", err)
	}
}
