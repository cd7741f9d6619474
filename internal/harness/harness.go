package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/routecast/routecast/internal/broker"
	"github.com/routecast/routecast/internal/client"
	"github.com/routecast/routecast/internal/docstore"
	"github.com/routecast/routecast/internal/protocol"
	"github.com/routecast/routecast/internal/store"
	"github.com/routecast/routecast/internal/testutil"
)

// Runner executes scenarios against a freshly built broker stack: an
// in-memory document store, an in-memory SQLite database, the broker
// loop in a goroutine, and a real polling client.
type Runner struct {
	// HandlerTimeout bounds each broker handler. Zero means the broker
	// default.
	HandlerTimeout time.Duration
	// StepTimeout bounds each client submit. Zero means 10 seconds.
	StepTimeout time.Duration
}

// Run executes the scenario and returns its trace. An error means the
// scenario could not run at all; expectation mismatches are reported in
// Result.Failures with Pass false.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	db, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening scenario database: %w", err)
	}
	defer db.Close()

	docs := docstore.NewMemstore()
	if err := seed(ctx, docs, broker.DefaultCollections.Routes, sc.Routes); err != nil {
		return nil, err
	}
	if err := seed(ctx, docs, broker.DefaultCollections.Orders, sc.Orders); err != nil {
		return nil, err
	}

	var brokerOpts []broker.Option
	if r.HandlerTimeout > 0 {
		brokerOpts = append(brokerOpts, broker.WithHandlerTimeout(r.HandlerTimeout))
	}
	b := broker.New(docs, db, brokerOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(runCtx) }()

	stepTimeout := r.StepTimeout
	if stepTimeout == 0 {
		stepTimeout = 10 * time.Second
	}
	c := client.New(docs,
		client.WithRequestIDs(testutil.NewSequentialIDs("req")),
		client.WithPollInterval(2*time.Millisecond),
		client.WithTimeout(stepTimeout),
	)

	res := &Result{Scenario: sc.Name, Pass: true}
	for i, step := range sc.Steps {
		ev := runStep(ctx, c, i, step)
		res.Trace = append(res.Trace, ev)
		if msg := checkStep(i, step, ev); msg != "" {
			res.Pass = false
			res.Failures = append(res.Failures, msg)
		}
	}

	cancel()
	<-done
	return res, nil
}

func seed(ctx context.Context, docs docstore.Store, collection string, seeds []SeedDoc) error {
	for _, sd := range seeds {
		if sd.ID == "" {
			return fmt.Errorf("seed document in %s has no id", collection)
		}
		if err := docs.Create(ctx, collection, sd.ID, sd.Doc); err != nil {
			return fmt.Errorf("seeding %s/%s: %w", collection, sd.ID, err)
		}
	}
	return nil
}

func runStep(ctx context.Context, c *client.Client, i int, step Step) TraceEvent {
	ev := TraceEvent{Step: i, Operation: step.Operation}
	result, err := c.Submit(ctx, protocol.Operation(step.Operation), step.Payload)
	if err != nil {
		ev.Status = "error"
		ev.Error = trimFault(err)
		return ev
	}
	ev.Status = "completed"
	ev.Result = result
	return ev
}

// trimFault strips the request id suffix from fault messages so traces
// stay stable across runs even when ids are not sequential.
func trimFault(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, " (request="); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

func checkStep(i int, step Step, ev TraceEvent) string {
	want := step.expectOutcome()
	if ev.Status != want {
		detail := ev.Error
		if detail == "" {
			detail = "completed"
		}
		return fmt.Sprintf("step %d (%s): expected %s, got %s: %s", i, step.Operation, want, ev.Status, detail)
	}
	if step.ErrorContains != "" && !strings.Contains(ev.Error, step.ErrorContains) {
		return fmt.Sprintf("step %d (%s): error %q does not contain %q", i, step.Operation, ev.Error, step.ErrorContains)
	}
	return ""
}
