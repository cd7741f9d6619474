package broker

import (
	"strings"
	"testing"

	"github.com/routecast/routecast/internal/protocol"
)

func TestRejectWriteVerbs(t *testing.T) {
	rejected := []string{
		"DELETE FROM orders",
		"insert into routes values ('x')",
		"DROP TABLE order_items",
		"SELECT 1; UPDATE orders SET total_units = 0",
		"SELECT * FROM (DELETE FROM orders)",
		"PRAGMA journal_mode = DELETE",
		"vacuum",
	}
	for _, stmt := range rejected {
		err := rejectWriteVerbs(stmt)
		if !protocol.IsValidation(err) {
			t.Errorf("%q: expected validation fault, got %v", stmt, err)
		}
	}

	allowed := []string{
		"SELECT * FROM orders",
		"SELECT order_id, updated_at FROM orders WHERE route_id = ?",
		"SELECT COUNT(*) FROM order_items",
		// Tokens that merely contain a verb must pass.
		"SELECT created_at, deleted_flag FROM routes",
		"WITH totals AS (SELECT store_id, SUM(quantity) q FROM order_items GROUP BY store_id) SELECT * FROM totals",
	}
	for _, stmt := range allowed {
		if err := rejectWriteVerbs(stmt); err != nil {
			t.Errorf("%q: unexpectedly rejected: %v", stmt, err)
		}
	}
}

func TestRejectWriteVerbsEmpty(t *testing.T) {
	err := rejectWriteVerbs("   ")
	if !protocol.IsValidation(err) || !strings.Contains(err.Error(), "requires sql") {
		t.Fatalf("expected validation fault for empty sql, got %v", err)
	}
}
