// Package client implements the stub every non-broker process uses to run
// operations against the analytical store.
//
// The stub never touches the analytical database: it writes a request
// envelope into the mediating store, polls until the broker (or a
// timeout) moves the envelope to a terminal state, and decodes the
// result. A broker that is down is observed only as a client timeout.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/routecast/routecast/internal/docstore"
	"github.com/routecast/routecast/internal/protocol"
)

const (
	// DefaultPollInterval is the fixed envelope polling cadence.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultTimeout bounds one Submit call end to end.
	DefaultTimeout = 30 * time.Second
)

// RequestIDGenerator produces envelope ids. Production uses UUIDv7; tests
// substitute a fixed sequence for deterministic envelopes.
type RequestIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 request ids, so a
// request backlog in the mediating store lists in creation order.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Client submits envelopes and waits for their terminal state.
type Client struct {
	docs         docstore.Store
	requests     string
	pollInterval time.Duration
	timeout      time.Duration
	ids          RequestIDGenerator
}

// Option configures a Client.
type Option func(*Client)

// WithPollInterval overrides the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithTimeout overrides the default per-submit timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRequestIDs overrides the request id generator.
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(c *Client) { c.ids = g }
}

// WithRequestCollection overrides the request collection name.
func WithRequestCollection(name string) Option {
	return func(c *Client) { c.requests = name }
}

// New creates a Client over a mediating store.
func New(docs docstore.Store, opts ...Option) *Client {
	c := &Client{
		docs:         docs,
		requests:     "requests",
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
		ids:          UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit creates a pending envelope for op and polls until it completes,
// fails, or the client timeout elapses.
//
// On completed the envelope is deleted and the result returned. On error
// the envelope is deleted and a Fault with the stored message raised. On
// timeout the envelope is marked timeout (best effort) and left in place
// as an audit trail; the returned fault is distinguishable from an
// operation error via protocol.IsClientTimeout.
func (c *Client) Submit(ctx context.Context, op protocol.Operation, payload map[string]any) (map[string]any, error) {
	env := protocol.Envelope{
		RequestID: c.ids.Generate(),
		Operation: op,
		Payload:   payload,
		Status:    protocol.StatusPending,
	}

	if err := c.docs.Create(ctx, c.requests, env.RequestID, env.Doc()); err != nil {
		return nil, fmt.Errorf("create request envelope: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.markTimeout(env)
			return nil, &protocol.Fault{
				Code:      protocol.FaultClientTimeout,
				Message:   "request cancelled while waiting for broker",
				RequestID: env.RequestID,
				Operation: op,
			}
		case <-ticker.C:
		}

		doc, err := c.docs.Get(ctx, c.requests, env.RequestID)
		if errors.Is(err, docstore.ErrNotFound) {
			// Only this client may delete its envelope; if it vanished,
			// something outside the protocol interfered.
			return nil, &protocol.Fault{
				Code:      protocol.FaultEnvelopeGone,
				Message:   "envelope deleted while pending",
				RequestID: env.RequestID,
				Operation: op,
			}
		}
		if err != nil {
			return nil, fmt.Errorf("poll request envelope: %w", err)
		}

		observed := protocol.EnvelopeFromDoc(doc.ID, doc.Data)
		switch observed.Status {
		case protocol.StatusCompleted:
			_ = c.docs.Delete(ctx, c.requests, env.RequestID)
			return observed.Result, nil

		case protocol.StatusError:
			_ = c.docs.Delete(ctx, c.requests, env.RequestID)
			code, msg := parseFault(observed.Error)
			return nil, &protocol.Fault{
				Code:      code,
				Message:   msg,
				RequestID: env.RequestID,
				Operation: op,
			}

		case protocol.StatusTimeout:
			// Another party (or a previous attempt) already timed this
			// envelope out; surface it as our own timeout.
			return nil, c.timeoutFault(env, op)
		}

		if time.Now().After(deadline) {
			c.markTimeout(env)
			return nil, c.timeoutFault(env, op)
		}
	}
}

// SubmitTyped encodes a typed payload, submits it, and decodes the result
// into out (when out is non-nil).
func (c *Client) SubmitTyped(ctx context.Context, op protocol.Operation, payload, out any) error {
	doc, err := protocol.Encode(payload)
	if err != nil {
		return err
	}
	result, err := c.Submit(ctx, op, doc)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return protocol.Decode(result, out)
}

// markTimeout best-effort writes the timeout status. The envelope is not
// deleted: it stays behind as an audit trail, and the broker's read-back
// guard keeps a late result from reactivating it.
func (c *Client) markTimeout(env protocol.Envelope) {
	// Detached context: the caller's context is typically already done.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.docs.Update(ctx, c.requests, env.RequestID, map[string]any{
		"status": string(protocol.StatusTimeout),
	})
}

func (c *Client) timeoutFault(env protocol.Envelope, op protocol.Operation) *protocol.Fault {
	return &protocol.Fault{
		Code:      protocol.FaultClientTimeout,
		Message:   fmt.Sprintf("no broker response within %s", c.timeout),
		RequestID: env.RequestID,
		Operation: op,
	}
}

// parseFault maps a broker error message back onto the taxonomy. The
// envelope carries only a string, so the prefix written by the typed
// fault's Error method is the discriminator; when it matches, the prefix
// is stripped so the rebuilt fault does not render it twice.
func parseFault(raw string) (protocol.FaultCode, string) {
	for _, code := range []protocol.FaultCode{
		protocol.FaultValidation,
		protocol.FaultNotFound,
		protocol.FaultConflict,
	} {
		prefix := string(code) + ": "
		if strings.HasPrefix(raw, prefix) {
			return code, raw[len(prefix):]
		}
	}
	if raw == "handler timeout" {
		return protocol.FaultHandlerTimeout, raw
	}
	return protocol.FaultOperation, raw
}
