package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/routecast/routecast/internal/allocation"
	"github.com/routecast/routecast/internal/protocol"
)

func TestRenderShares(t *testing.T) {
	var buf bytes.Buffer
	renderShares(&buf, sharesReport{
		RouteID:     "R7",
		SAP:         "4411",
		ScheduleKey: "MWF",
		Shares: map[string]protocol.StoreShare{
			"S2": {Share: 0.4, TotalQuantity: 4},
			"S1": {Share: 0.6, TotalQuantity: 6},
		},
		Demand:   10,
		CasePack: 4,
		Allocation: map[string]allocation.StoreAllocation{
			"S1": {Units: 7, Cases: 1},
			"S2": {Units: 5, Cases: 1},
		},
	})

	out := buf.String()
	if !strings.Contains(out, "Shares for R7 / 4411 (MWF)") {
		t.Errorf("missing header:\n%s", out)
	}
	// Stores render sorted by id.
	if strings.Index(out, "S1") > strings.Index(out, "S2") {
		t.Errorf("stores not sorted:\n%s", out)
	}
	if !strings.Contains(out, "total\t12 units") {
		t.Errorf("missing allocation total:\n%s", out)
	}
}

func TestRenderSharesEmptyHistory(t *testing.T) {
	var buf bytes.Buffer
	renderShares(&buf, sharesReport{RouteID: "R7", SAP: "4411"})
	if !strings.Contains(buf.String(), "no history") {
		t.Errorf("output = %q", buf.String())
	}
}
