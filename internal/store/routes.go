package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/routecast/routecast/internal/allocation"
)

// Route status strings surfaced by check_route_synced.
const (
	RouteStatusSynced      = "synced"
	RouteStatusNeverSynced = "never_synced"
)

// StoreRecord is one delivery stop on a route.
type StoreRecord struct {
	StoreID string
	RouteID string
	Name    string
}

// Product is catalog reference data for one SKU.
type Product struct {
	SAP         string
	Description string
	CasePack    int
	TraySize    int
}

// ReplaceRoute performs a full resync of a route's reference data: the
// route row, its stores, and the catalog products, all in one transaction.
func (s *Store) ReplaceRoute(ctx context.Context, routeID, name string, stores []StoreRecord, products []Product) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO routes (route_id, name, status, synced_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(route_id) DO UPDATE SET
				name = excluded.name,
				status = excluded.status,
				synced_at = excluded.synced_at
		`, routeID, name, RouteStatusSynced, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("upsert route %s: %w", routeID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE route_id = ?`, routeID); err != nil {
			return fmt.Errorf("clear stores for %s: %w", routeID, err)
		}
		for _, st := range stores {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO stores (store_id, route_id, name)
				VALUES (?, ?, ?)
				ON CONFLICT(store_id) DO UPDATE SET
					route_id = excluded.route_id,
					name = excluded.name
			`, st.StoreID, routeID, st.Name)
			if err != nil {
				return fmt.Errorf("upsert store %s: %w", st.StoreID, err)
			}
		}

		for _, p := range products {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO products (sap, description, case_pack, tray_size)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(sap) DO UPDATE SET
					description = excluded.description,
					case_pack = excluded.case_pack,
					tray_size = excluded.tray_size
			`, p.SAP, p.Description, p.CasePack, p.TraySize)
			if err != nil {
				return fmt.Errorf("upsert product %s: %w", p.SAP, err)
			}
		}
		return nil
	})
}

// RouteSyncStatus reports whether a route's reference data has been
// synced, with a human-readable status string.
func (s *Store) RouteSyncStatus(ctx context.Context, routeID string) (bool, string, error) {
	var status string
	var syncedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT status, synced_at FROM routes WHERE route_id = ?`, routeID,
	).Scan(&status, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, RouteStatusNeverSynced, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("route sync status: %w", err)
	}
	if status != RouteStatusSynced {
		return false, status, nil
	}
	return true, fmt.Sprintf("synced at %s", time.Unix(syncedAt, 0).UTC().Format(time.RFC3339)), nil
}

// HistoricalItems returns every archived line item for a route's SKU and
// schedule key, the input slice for share computation.
func (s *Store) HistoricalItems(ctx context.Context, routeID, sap, scheduleKey string) ([]allocation.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, sap, schedule_key, delivery_date, quantity
		FROM order_items
		WHERE route_id = ? AND sap = ? AND schedule_key = ?
		ORDER BY delivery_date ASC, store_id ASC
	`, routeID, sap, scheduleKey)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var items []allocation.LineItem
	for rows.Next() {
		var it allocation.LineItem
		if err := rows.Scan(&it.StoreID, &it.SAP, &it.ScheduleKey, &it.DeliveryDate, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan history item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

// ArchivedDates returns the distinct delivery dates present in a route's
// history, sorted ascending.
func (s *Store) ArchivedDates(ctx context.Context, routeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT delivery_date
		FROM order_items
		WHERE route_id = ?
		ORDER BY delivery_date ASC
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("query archived dates: %w", err)
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan archived date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived dates: %w", err)
	}
	return dates, nil
}

// Product returns catalog data for one SKU. Returns sql.ErrNoRows wrapped
// when the SKU is unknown.
func (s *Store) Product(ctx context.Context, sap string) (Product, error) {
	var p Product
	err := s.db.QueryRowContext(ctx,
		`SELECT sap, description, case_pack, tray_size FROM products WHERE sap = ?`, sap,
	).Scan(&p.SAP, &p.Description, &p.CasePack, &p.TraySize)
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", sap, err)
	}
	return p, nil
}
