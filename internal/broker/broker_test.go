package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/routecast/routecast/internal/client"
	"github.com/routecast/routecast/internal/docstore"
	"github.com/routecast/routecast/internal/protocol"
	"github.com/routecast/routecast/internal/store"
	"github.com/routecast/routecast/internal/testutil"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// testRig is a full single-process deployment: memory docstore, temp
// SQLite, broker loop in a goroutine, polling client.
type testRig struct {
	docs *docstore.Memstore
	db   *store.Store
	c    *client.Client
}

func newTestRig(t *testing.T, opts ...Option) *testRig {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "routecast.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	docs := docstore.NewMemstore()
	b := New(docs, db, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c := client.New(docs,
		client.WithRequestIDs(testutil.NewSequentialIDs("req")),
		client.WithPollInterval(2*time.Millisecond),
		client.WithTimeout(5*time.Second),
	)
	return &testRig{docs: docs, db: db, c: c}
}

func seedOrderItems(t *testing.T, db *store.Store) {
	t.Helper()
	_, _, err := db.UpsertOrder(context.Background(), store.Order{
		OrderID: "ORD-1", RouteID: "R1", DeliveryDate: "2026-08-24",
		Items: []store.OrderItem{
			{StoreID: "S1", SAP: "4411", ScheduleKey: "MWF", Quantity: 6},
			{StoreID: "S2", SAP: "4411", ScheduleKey: "MWF", Quantity: 4},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDispatchCoversAllOps(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "routecast.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	b := New(docstore.NewMemstore(), db)

	for _, op := range protocol.Operations {
		_, err := b.dispatch(context.Background(), protocol.Envelope{
			RequestID: "req-x",
			Operation: op,
			Payload:   map[string]any{},
		})
		if err != nil && strings.Contains(err.Error(), "unknown operation") {
			t.Errorf("%s fell through to the unknown-operation arm", op)
		}
	}

	_, err = b.dispatch(context.Background(), protocol.Envelope{Operation: "bogus"})
	if err == nil || err.Error() != "unknown operation: bogus" {
		t.Fatalf("unknown op error = %v", err)
	}
}

func TestQueryEndToEnd(t *testing.T) {
	rig := newTestRig(t)
	seedOrderItems(t, rig.db)

	var out protocol.QueryResult
	err := rig.c.SubmitTyped(context.Background(),
		protocol.OpQuery,
		protocol.QueryPayload{SQL: "SELECT store_id, quantity FROM order_items ORDER BY store_id"},
		&out,
	)
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount != 2 || len(out.Rows) != 2 {
		t.Fatalf("unexpected result: %+v", out)
	}
	if out.Columns[0] != "store_id" || out.Columns[1] != "quantity" {
		t.Fatalf("columns = %v", out.Columns)
	}
	if out.Rows[0][0] != "S1" {
		t.Fatalf("rows = %v", out.Rows)
	}

	// The envelope must be consumed on success.
	if _, err := rig.docs.Get(context.Background(), "requests", "req-0001"); err == nil {
		t.Error("envelope not deleted after completion")
	}
}

func TestQueryRejectsWriteVerbs(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.c.Submit(context.Background(), protocol.OpQuery,
		map[string]any{"sql": "DELETE FROM orders"})
	if !protocol.IsValidation(err) {
		t.Fatalf("expected validation fault, got %v", err)
	}
	if !strings.Contains(err.Error(), "read-only") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestWriteEndToEnd(t *testing.T) {
	rig := newTestRig(t)

	var out protocol.WriteResult
	err := rig.c.SubmitTyped(context.Background(),
		protocol.OpWrite,
		protocol.WritePayload{
			SQL:    "INSERT INTO routes (route_id, name, status) VALUES (?, ?, ?)",
			Params: []any{"R9", "Test Route", "never_synced"},
		},
		&out,
	)
	if err != nil {
		t.Fatal(err)
	}
	if out.RowsAffected != 1 {
		t.Fatalf("rows affected = %d", out.RowsAffected)
	}
}

func TestSyncOrderFromDocument(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	err := rig.docs.Create(ctx, "orders", "ORD-1", map[string]any{
		"route_id":      "R1",
		"delivery_date": "2026-08-24",
		"items": []any{
			map[string]any{"store_id": "S1", "sap": "4411", "schedule_key": "MWF", "quantity": 6},
			map[string]any{"store_id": "S2", "sap": "4411", "schedule_key": "MWF", "quantity": 4},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var out protocol.SyncOrderResult
	err = rig.c.SubmitTyped(ctx, protocol.OpSyncOrder,
		protocol.SyncOrderPayload{OrderID: "ORD-1", RouteID: "R1"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.TotalUnits != 10 || out.StoreCount != 2 {
		t.Fatalf("result = %+v", out)
	}

	ord, err := rig.db.GetOrder(ctx, "R1", "2026-08-24")
	if err != nil {
		t.Fatal(err)
	}
	if len(ord.Items) != 2 {
		t.Fatalf("order not persisted: %+v", ord)
	}
}

func TestSyncOrderRouteConflict(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.docs.Create(ctx, "orders", "ORD-1", map[string]any{
		"route_id":      "R2",
		"delivery_date": "2026-08-24",
	}); err != nil {
		t.Fatal(err)
	}

	_, err := rig.c.Submit(ctx, protocol.OpSyncOrder,
		map[string]any{"order_id": "ORD-1", "route_id": "R1"})
	if !protocol.IsConflict(err) {
		t.Fatalf("expected conflict fault, got %v", err)
	}
}

func TestSyncOrderMissingDocument(t *testing.T) {
	rig := newTestRig(t)
	_, err := rig.c.Submit(context.Background(), protocol.OpSyncOrder,
		map[string]any{"order_id": "nope", "route_id": "R1"})
	if !protocol.IsNotFound(err) {
		t.Fatalf("expected not-found fault, got %v", err)
	}
}

func TestHistoricalSharesEndToEnd(t *testing.T) {
	rig := newTestRig(t)
	seedOrderItems(t, rig.db)

	var out protocol.HistoricalSharesResult
	err := rig.c.SubmitTyped(context.Background(),
		protocol.OpGetHistoricalShares,
		protocol.HistoricalSharesPayload{RouteID: "R1", SAP: "4411", ScheduleKey: "MWF"},
		&out,
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Shares) != 2 {
		t.Fatalf("shares = %+v", out.Shares)
	}
	if s := out.Shares["S1"]; s.Share != 0.6 || s.TotalQuantity != 6 {
		t.Fatalf("S1 = %+v", s)
	}
}

func TestHistoricalSharesEmptyHistory(t *testing.T) {
	rig := newTestRig(t)

	var out protocol.HistoricalSharesResult
	err := rig.c.SubmitTyped(context.Background(),
		protocol.OpGetHistoricalShares,
		protocol.HistoricalSharesPayload{RouteID: "R1", SAP: "9999", ScheduleKey: "MWF"},
		&out,
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Shares) != 0 {
		t.Fatalf("expected empty shares, got %+v", out.Shares)
	}
}

func TestUnknownOperationRejected(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.c.Submit(context.Background(), protocol.Operation("bogus"), nil)
	if err == nil || !strings.Contains(err.Error(), "unknown operation: bogus") {
		t.Fatalf("unexpected error: %v", err)
	}

	// A bad request must not take the loop down.
	var out protocol.QueryResult
	if err := rig.c.SubmitTyped(context.Background(), protocol.OpQuery,
		protocol.QueryPayload{SQL: "SELECT 1 AS one"}, &out); err != nil {
		t.Fatalf("broker stopped serving after a failed request: %v", err)
	}
}

func TestHandlerTimeout(t *testing.T) {
	rig := newTestRig(t, WithHandlerTimeout(100*time.Millisecond))

	// Unbounded recursive CTE: runs until the handler context interrupts it.
	_, err := rig.c.Submit(context.Background(), protocol.OpQuery, map[string]any{
		"sql": "WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM c) SELECT count(*) FROM c",
	})
	var fault *protocol.Fault
	if !errors.As(err, &fault) || fault.Code != protocol.FaultHandlerTimeout {
		t.Fatalf("expected handler timeout fault, got %v", err)
	}
}

func TestClientTimeoutIsNotOverwritten(t *testing.T) {
	rig := newTestRig(t, WithHandlerTimeout(400*time.Millisecond))
	ctx := context.Background()

	impatient := client.New(rig.docs,
		client.WithRequestIDs(testutil.NewSequentialIDs("imp")),
		client.WithPollInterval(2*time.Millisecond),
		client.WithTimeout(50*time.Millisecond),
	)

	_, err := impatient.Submit(ctx, protocol.OpQuery, map[string]any{
		"sql": "WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM c) SELECT count(*) FROM c",
	})
	if !protocol.IsClientTimeout(err) {
		t.Fatalf("expected client timeout fault, got %v", err)
	}

	// Let the handler hit its own budget and try to write its outcome.
	time.Sleep(600 * time.Millisecond)

	doc, err := rig.docs.Get(ctx, "requests", "imp-0001")
	if err != nil {
		t.Fatalf("audit envelope missing: %v", err)
	}
	env := protocol.EnvelopeFromDoc(doc.ID, doc.Data)
	if env.Status != protocol.StatusTimeout {
		t.Fatalf("status = %s, client's terminal write was overwritten", env.Status)
	}
	if env.Result != nil || env.Error != "" {
		t.Fatalf("late broker outcome leaked into envelope: %+v", env)
	}
}

func TestNonPendingEnvelopesIgnored(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	env := protocol.Envelope{
		RequestID: "stale-1",
		Operation: protocol.OpQuery,
		Payload:   map[string]any{"sql": "SELECT 1"},
		Status:    protocol.StatusTimeout,
	}
	if err := rig.docs.Create(ctx, "requests", env.RequestID, env.Doc()); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)

	doc, err := rig.docs.Get(ctx, "requests", "stale-1")
	if err != nil {
		t.Fatal(err)
	}
	got := protocol.EnvelopeFromDoc(doc.ID, doc.Data)
	if got.Status != protocol.StatusTimeout || got.Result != nil {
		t.Fatalf("broker touched a non-pending envelope: %+v", got)
	}
}
