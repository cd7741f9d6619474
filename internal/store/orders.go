package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrOrderNotFound is returned when no order exists for a route and
// delivery date.
var ErrOrderNotFound = errors.New("store: order not found")

// Order is an order header plus its line items.
type Order struct {
	OrderID      string
	RouteID      string
	DeliveryDate string
	TotalUnits   int
	Items        []OrderItem
}

// OrderItem is one store/SKU line within an order.
type OrderItem struct {
	StoreID     string
	SAP         string
	ScheduleKey string
	Quantity    int
}

// ItemKey builds the composite line-item key "orderId-storeId-sap".
func ItemKey(orderID, storeID, sap string) string {
	return fmt.Sprintf("%s-%s-%s", orderID, storeID, sap)
}

// UpsertOrder writes an order header and its line items in one
// transaction. Re-running with the same order id updates rows in place:
// the header row and every composite-keyed item row are upserted, and
// items no longer present in the source document are pruned.
//
// Returns the normalized totals (summed units, distinct stores).
func (s *Store) UpsertOrder(ctx context.Context, ord Order) (totalUnits, storeCount int, err error) {
	stores := make(map[string]struct{})
	for _, it := range ord.Items {
		totalUnits += it.Quantity
		stores[it.StoreID] = struct{}{}
	}
	storeCount = len(stores)

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (order_id, route_id, delivery_date, total_units, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(order_id) DO UPDATE SET
				route_id = excluded.route_id,
				delivery_date = excluded.delivery_date,
				total_units = excluded.total_units,
				updated_at = excluded.updated_at
		`, ord.OrderID, ord.RouteID, ord.DeliveryDate, totalUnits, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("upsert order %s: %w", ord.OrderID, err)
		}

		// Prune items dropped from the source document before upserting,
		// so a shrunk order doesn't keep stale lines.
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, ord.OrderID); err != nil {
			return fmt.Errorf("prune items for %s: %w", ord.OrderID, err)
		}

		for _, it := range ord.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (item_key, order_id, route_id, store_id, sap, schedule_key, delivery_date, quantity)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(item_key) DO UPDATE SET
					schedule_key = excluded.schedule_key,
					delivery_date = excluded.delivery_date,
					quantity = excluded.quantity
			`, ItemKey(ord.OrderID, it.StoreID, it.SAP), ord.OrderID, ord.RouteID,
				it.StoreID, it.SAP, it.ScheduleKey, ord.DeliveryDate, it.Quantity)
			if err != nil {
				return fmt.Errorf("upsert item %s: %w", ItemKey(ord.OrderID, it.StoreID, it.SAP), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return totalUnits, storeCount, nil
}

// GetOrder fetches the order for a route and delivery date, with its
// line items ordered deterministically. Returns ErrOrderNotFound if the
// route has no order for that date.
func (s *Store) GetOrder(ctx context.Context, routeID, deliveryDate string) (Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, route_id, delivery_date, total_units
		FROM orders
		WHERE route_id = ? AND delivery_date = ?
	`, routeID, deliveryDate)

	var ord Order
	if err := row.Scan(&ord.OrderID, &ord.RouteID, &ord.DeliveryDate, &ord.TotalUnits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}

	items, err := s.orderItems(ctx, `WHERE order_id = ?`, ord.OrderID)
	if err != nil {
		return Order{}, err
	}
	ord.Items = items
	return ord, nil
}

// DeliveryItems returns the line items delivered on a date for a route,
// optionally narrowed to one store. Ordered by store id then SKU so two
// identical requests render identical manifests.
func (s *Store) DeliveryItems(ctx context.Context, routeID, deliveryDate, storeID string) ([]OrderItem, error) {
	if storeID != "" {
		return s.orderItems(ctx, `WHERE route_id = ? AND delivery_date = ? AND store_id = ?`,
			routeID, deliveryDate, storeID)
	}
	return s.orderItems(ctx, `WHERE route_id = ? AND delivery_date = ?`, routeID, deliveryDate)
}

func (s *Store) orderItems(ctx context.Context, where string, args ...any) ([]OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, sap, schedule_key, quantity
		FROM order_items
	`+where+`
		ORDER BY store_id ASC, sap ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.StoreID, &it.SAP, &it.ScheduleKey, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	if items == nil {
		items = []OrderItem{}
	}
	return items, nil
}
