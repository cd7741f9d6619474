package client

import (
	"context"
	"testing"
	"time"

	"github.com/routecast/routecast/internal/docstore"
	"github.com/routecast/routecast/internal/protocol"
	"github.com/routecast/routecast/internal/testutil"
)

func newTestClient(docs docstore.Store, timeout time.Duration) *Client {
	return New(docs,
		WithRequestIDs(testutil.NewSequentialIDs("req")),
		WithPollInterval(2*time.Millisecond),
		WithTimeout(timeout),
	)
}

// respond plays the broker side for one request: wait for the envelope,
// then write a terminal status.
func respond(t *testing.T, docs *docstore.Memstore, id string, fields map[string]any) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if _, err := docs.Get(context.Background(), "requests", id); err == nil {
				_ = docs.Update(context.Background(), "requests", id, fields)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
}

func TestSubmitCompleted(t *testing.T) {
	docs := docstore.NewMemstore()
	c := newTestClient(docs, 2*time.Second)

	respond(t, docs, "req-0001", map[string]any{
		"status": string(protocol.StatusCompleted),
		"result": map[string]any{"row_count": float64(3)},
	})

	result, err := c.Submit(context.Background(), protocol.OpQuery, map[string]any{"sql": "SELECT 1"})
	if err != nil {
		t.Fatal(err)
	}
	if result["row_count"] != float64(3) {
		t.Fatalf("result = %v", result)
	}

	// Success consumes the envelope.
	if _, err := docs.Get(context.Background(), "requests", "req-0001"); err == nil {
		t.Error("envelope still present after completion")
	}
}

func TestSubmitError(t *testing.T) {
	docs := docstore.NewMemstore()
	c := newTestClient(docs, 2*time.Second)

	respond(t, docs, "req-0001", map[string]any{
		"status": string(protocol.StatusError),
		"error":  "NOT_FOUND: no order for route R1 on 2026-08-24",
	})

	_, err := c.Submit(context.Background(), protocol.OpGetOrder,
		map[string]any{"route_id": "R1", "delivery_date": "2026-08-24"})
	if !protocol.IsNotFound(err) {
		t.Fatalf("expected not-found fault, got %v", err)
	}

	// Errors consume the envelope too; only timeouts leave it behind.
	if _, err := docs.Get(context.Background(), "requests", "req-0001"); err == nil {
		t.Error("envelope still present after error")
	}
}

func TestSubmitTimeoutWithoutBroker(t *testing.T) {
	docs := docstore.NewMemstore()
	c := newTestClient(docs, 30*time.Millisecond)

	_, err := c.Submit(context.Background(), protocol.OpQuery, map[string]any{"sql": "SELECT 1"})
	if !protocol.IsClientTimeout(err) {
		t.Fatalf("expected client timeout, got %v", err)
	}

	// The envelope stays behind as an audit trail, marked timeout.
	doc, err := docs.Get(context.Background(), "requests", "req-0001")
	if err != nil {
		t.Fatalf("audit envelope missing: %v", err)
	}
	env := protocol.EnvelopeFromDoc(doc.ID, doc.Data)
	if env.Status != protocol.StatusTimeout {
		t.Fatalf("status = %s, want timeout", env.Status)
	}
}

func TestSubmitCancelledContext(t *testing.T) {
	docs := docstore.NewMemstore()
	c := newTestClient(docs, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Submit(ctx, protocol.OpQuery, map[string]any{"sql": "SELECT 1"})
	if !protocol.IsClientTimeout(err) {
		t.Fatalf("expected client timeout on cancel, got %v", err)
	}

	doc, err := docs.Get(context.Background(), "requests", "req-0001")
	if err != nil {
		t.Fatal(err)
	}
	if status := doc.Data["status"]; status != string(protocol.StatusTimeout) {
		t.Fatalf("status = %v, want timeout", status)
	}
}

func TestSubmitEnvelopeGone(t *testing.T) {
	docs := docstore.NewMemstore()
	c := newTestClient(docs, 2*time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = docs.Delete(context.Background(), "requests", "req-0001")
	}()

	_, err := c.Submit(context.Background(), protocol.OpQuery, map[string]any{"sql": "SELECT 1"})
	if !protocol.IsEnvelopeGone(err) {
		t.Fatalf("expected envelope-gone fault, got %v", err)
	}
}

func TestSubmitObservesForeignTimeout(t *testing.T) {
	docs := docstore.NewMemstore()
	c := newTestClient(docs, 2*time.Second)

	respond(t, docs, "req-0001", map[string]any{
		"status": string(protocol.StatusTimeout),
	})

	_, err := c.Submit(context.Background(), protocol.OpQuery, map[string]any{"sql": "SELECT 1"})
	if !protocol.IsClientTimeout(err) {
		t.Fatalf("expected timeout fault, got %v", err)
	}
}

func TestSubmitTypedRoundTrip(t *testing.T) {
	docs := docstore.NewMemstore()
	c := newTestClient(docs, 2*time.Second)

	respond(t, docs, "req-0001", map[string]any{
		"status": string(protocol.StatusCompleted),
		"result": map[string]any{"synced": true, "status": "synced at 2026-08-24T06:00:00Z"},
	})

	var out protocol.CheckRouteSyncedResult
	err := c.SubmitTyped(context.Background(), protocol.OpCheckRouteSynced,
		protocol.CheckRouteSyncedPayload{RouteID: "R1"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Synced {
		t.Fatalf("result = %+v", out)
	}
}

func TestParseFault(t *testing.T) {
	cases := []struct {
		raw     string
		code    protocol.FaultCode
		message string
	}{
		{"VALIDATION: query requires sql", protocol.FaultValidation, "query requires sql"},
		{"NOT_FOUND: order document X not found", protocol.FaultNotFound, "order document X not found"},
		{"CONFLICT: order X belongs to route R2, not R1", protocol.FaultConflict, "order X belongs to route R2, not R1"},
		{"handler timeout", protocol.FaultHandlerTimeout, "handler timeout"},
		{"unknown operation: bogus", protocol.FaultOperation, "unknown operation: bogus"},
		{"query: no such table: nope", protocol.FaultOperation, "query: no such table: nope"},
	}
	for _, c := range cases {
		code, msg := parseFault(c.raw)
		if code != c.code || msg != c.message {
			t.Errorf("parseFault(%q) = %s, %q; want %s, %q", c.raw, code, msg, c.code, c.message)
		}
	}
}

func TestUUIDGeneratorProducesUniqueIDs(t *testing.T) {
	g := UUIDv7Generator{}
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := g.Generate()
		if id == "" {
			t.Fatal("empty id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}
