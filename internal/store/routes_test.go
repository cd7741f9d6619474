package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRoute(t *testing.T, s *Store) {
	t.Helper()
	err := s.ReplaceRoute(context.Background(), "R1", "Northside AM",
		[]StoreRecord{
			{StoreID: "S1", RouteID: "R1", Name: "Maple St Market"},
			{StoreID: "S2", RouteID: "R1", Name: "Hilltop Grocer"},
		},
		[]Product{
			{SAP: "4411", Description: "Sourdough Loaf", CasePack: 4, TraySize: 10},
		},
	)
	require.NoError(t, err)
}

func TestReplaceRouteRemovesStaleStores(t *testing.T) {
	s := openTestStore(t)
	seedRoute(t, s)

	// Resync with S2 dropped from the route.
	err := s.ReplaceRoute(context.Background(), "R1", "Northside AM",
		[]StoreRecord{{StoreID: "S1", RouteID: "R1", Name: "Maple St Market"}}, nil)
	require.NoError(t, err)

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM stores WHERE route_id = 'R1'`).Scan(&count))
	assert.Equal(t, 1, count, "stale store rows must not survive a resync")
}

func TestRouteSyncStatus(t *testing.T) {
	s := openTestStore(t)

	synced, status, err := s.RouteSyncStatus(context.Background(), "R1")
	require.NoError(t, err)
	assert.False(t, synced)
	assert.Equal(t, RouteStatusNeverSynced, status)

	seedRoute(t, s)
	synced, status, err = s.RouteSyncStatus(context.Background(), "R1")
	require.NoError(t, err)
	assert.True(t, synced)
	assert.True(t, strings.HasPrefix(status, "synced at "), "status = %q", status)
}

func TestHistoricalItemsFiltersBySKUAndSchedule(t *testing.T) {
	s := openTestStore(t)
	seedOrder(t, s, Order{
		OrderID: "ORD-1", RouteID: "R1", DeliveryDate: "2026-08-24",
		Items: []OrderItem{
			{StoreID: "S1", SAP: "4411", ScheduleKey: "MWF", Quantity: 6},
			{StoreID: "S2", SAP: "4411", ScheduleKey: "MWF", Quantity: 4},
			{StoreID: "S1", SAP: "4412", ScheduleKey: "MWF", Quantity: 5},
		},
	})
	seedOrder(t, s, Order{
		OrderID: "ORD-2", RouteID: "R1", DeliveryDate: "2026-08-25",
		Items: []OrderItem{
			{StoreID: "S1", SAP: "4411", ScheduleKey: "TTS", Quantity: 9},
		},
	})

	items, err := s.HistoricalItems(context.Background(), "R1", "4411", "MWF")
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, "4411", it.SAP)
		assert.Equal(t, "MWF", it.ScheduleKey)
	}
}

func TestArchivedDatesSortedDistinct(t *testing.T) {
	s := openTestStore(t)
	seedOrder(t, s, Order{
		OrderID: "ORD-2", RouteID: "R1", DeliveryDate: "2026-08-26",
		Items: []OrderItem{{StoreID: "S1", SAP: "4411", ScheduleKey: "MWF", Quantity: 1}},
	})
	seedOrder(t, s, Order{
		OrderID: "ORD-1", RouteID: "R1", DeliveryDate: "2026-08-24",
		Items: []OrderItem{
			{StoreID: "S1", SAP: "4411", ScheduleKey: "MWF", Quantity: 1},
			{StoreID: "S2", SAP: "4411", ScheduleKey: "MWF", Quantity: 2},
		},
	})

	dates, err := s.ArchivedDates(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08-24", "2026-08-26"}, dates)

	empty, err := s.ArchivedDates(context.Background(), "R-none")
	require.NoError(t, err)
	require.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestProductLookup(t *testing.T) {
	s := openTestStore(t)
	seedRoute(t, s)

	p, err := s.Product(context.Background(), "4411")
	require.NoError(t, err)
	assert.Equal(t, 4, p.CasePack)
	assert.Equal(t, 10, p.TraySize)

	_, err = s.Product(context.Background(), "9999")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
