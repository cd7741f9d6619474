package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/routecast/routecast/internal/allocation"
	"github.com/routecast/routecast/internal/docstore"
	"github.com/routecast/routecast/internal/protocol"
	"github.com/routecast/routecast/internal/store"
)

// dispatch routes an envelope to its handler. The switch is closed over
// the protocol.Operation enum; adding an operation without a case here is
// caught by the unknown-operation arm and by TestDispatchCoversAllOps.
func (b *Broker) dispatch(ctx context.Context, env protocol.Envelope) (map[string]any, error) {
	switch env.Operation {
	case protocol.OpQuery:
		return b.handleQuery(ctx, env.Payload)
	case protocol.OpWrite:
		return b.handleWrite(ctx, env.Payload)
	case protocol.OpSyncOrder:
		return b.handleSyncOrder(ctx, env.Payload)
	case protocol.OpSyncRoute:
		return b.handleSyncRoute(ctx, env.Payload)
	case protocol.OpGetHistoricalShares:
		return b.handleHistoricalShares(ctx, env.Payload)
	case protocol.OpGetArchivedDates:
		return b.handleArchivedDates(ctx, env.Payload)
	case protocol.OpGetOrder:
		return b.handleGetOrder(ctx, env.Payload)
	case protocol.OpCheckRouteSynced:
		return b.handleCheckRouteSynced(ctx, env.Payload)
	case protocol.OpGetDeliveryManifest:
		return b.handleDeliveryManifest(ctx, env.Payload)
	case protocol.OpGetStoreDelivery:
		return b.handleStoreDelivery(ctx, env.Payload)
	default:
		return nil, fmt.Errorf("unknown operation: %s", env.Operation)
	}
}

func (b *Broker) handleQuery(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.QueryPayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed query payload: %v", err)
	}
	if err := rejectWriteVerbs(p.SQL); err != nil {
		return nil, err
	}

	rows, err := b.db.DB().QueryContext(ctx, p.SQL, p.Params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	out := protocol.QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query scan: %w", err)
		}
		for i, v := range values {
			if raw, ok := v.([]byte); ok {
				values[i] = string(raw)
			}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	out.RowCount = len(out.Rows)
	return protocol.Encode(out)
}

func (b *Broker) handleWrite(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.WritePayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed write payload: %v", err)
	}
	if p.SQL == "" {
		return nil, protocol.NewValidationError("write requires sql")
	}

	res, err := b.db.DB().ExecContext(ctx, p.SQL, p.Params...)
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("write rows affected: %w", err)
	}
	return protocol.Encode(protocol.WriteResult{RowsAffected: affected})
}

// orderDoc is the shape of an external order document in the mediating
// store, as written by the mobile app.
type orderDoc struct {
	RouteID      string `json:"route_id"`
	DeliveryDate string `json:"delivery_date"`
	Items        []struct {
		StoreID     string `json:"store_id"`
		SAP         string `json:"sap"`
		ScheduleKey string `json:"schedule_key"`
		Quantity    int    `json:"quantity"`
	} `json:"items"`
}

func (b *Broker) handleSyncOrder(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.SyncOrderPayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed sync_order payload: %v", err)
	}
	if p.OrderID == "" || p.RouteID == "" {
		return nil, protocol.NewValidationError("sync_order requires order_id and route_id")
	}

	doc, err := b.docs.Get(ctx, b.colls.Orders, p.OrderID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, protocol.NewNotFoundError("order document %s not found", p.OrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch order document: %w", err)
	}

	var src orderDoc
	if err := protocol.Decode(doc.Data, &src); err != nil {
		return nil, protocol.NewValidationError("malformed order document %s: %v", p.OrderID, err)
	}
	if src.RouteID != "" && src.RouteID != p.RouteID {
		return nil, protocol.NewConflictError("order %s belongs to route %s, not %s", p.OrderID, src.RouteID, p.RouteID)
	}

	ord := store.Order{
		OrderID:      p.OrderID,
		RouteID:      p.RouteID,
		DeliveryDate: src.DeliveryDate,
	}
	for _, it := range src.Items {
		ord.Items = append(ord.Items, store.OrderItem{
			StoreID:     it.StoreID,
			SAP:         it.SAP,
			ScheduleKey: it.ScheduleKey,
			Quantity:    it.Quantity,
		})
	}

	totalUnits, storeCount, err := b.db.UpsertOrder(ctx, ord)
	if err != nil {
		return nil, err
	}
	return protocol.Encode(protocol.SyncOrderResult{
		OrderID:    p.OrderID,
		TotalUnits: totalUnits,
		StoreCount: storeCount,
	})
}

// routeDoc is the shape of a route reference document in the mediating
// store.
type routeDoc struct {
	Name   string `json:"name"`
	Stores []struct {
		StoreID string `json:"store_id"`
		Name    string `json:"name"`
	} `json:"stores"`
	Products []struct {
		SAP         string `json:"sap"`
		Description string `json:"description"`
		CasePack    int    `json:"case_pack"`
		TraySize    int    `json:"tray_size"`
	} `json:"products"`
}

func (b *Broker) handleSyncRoute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.SyncRoutePayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed sync_route payload: %v", err)
	}
	if p.RouteID == "" {
		return nil, protocol.NewValidationError("sync_route requires route_id")
	}

	doc, err := b.docs.Get(ctx, b.colls.Routes, p.RouteID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, protocol.NewNotFoundError("route document %s not found", p.RouteID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch route document: %w", err)
	}

	var src routeDoc
	if err := protocol.Decode(doc.Data, &src); err != nil {
		return nil, protocol.NewValidationError("malformed route document %s: %v", p.RouteID, err)
	}

	stores := make([]store.StoreRecord, 0, len(src.Stores))
	for _, st := range src.Stores {
		stores = append(stores, store.StoreRecord{StoreID: st.StoreID, RouteID: p.RouteID, Name: st.Name})
	}
	products := make([]store.Product, 0, len(src.Products))
	for _, pr := range src.Products {
		products = append(products, store.Product{
			SAP:         pr.SAP,
			Description: pr.Description,
			CasePack:    pr.CasePack,
			TraySize:    pr.TraySize,
		})
	}

	if err := b.db.ReplaceRoute(ctx, p.RouteID, src.Name, stores, products); err != nil {
		return nil, err
	}
	return protocol.Encode(protocol.SyncRouteResult{
		RouteID:      p.RouteID,
		Status:       store.RouteStatusSynced,
		StoreCount:   len(stores),
		ProductCount: len(products),
	})
}

func (b *Broker) handleHistoricalShares(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.HistoricalSharesPayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed get_historical_shares payload: %v", err)
	}
	if p.RouteID == "" || p.SAP == "" {
		return nil, protocol.NewValidationError("get_historical_shares requires route_id and sap")
	}

	items, err := b.db.HistoricalItems(ctx, p.RouteID, p.SAP, p.ScheduleKey)
	if err != nil {
		return nil, err
	}

	shares := allocation.Shares(items)
	out := protocol.HistoricalSharesResult{Shares: make(map[string]protocol.StoreShare, len(shares))}
	for storeID, sh := range shares {
		out.Shares[storeID] = protocol.StoreShare{Share: sh.Share, TotalQuantity: sh.TotalQuantity}
	}
	return protocol.Encode(out)
}

func (b *Broker) handleArchivedDates(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.ArchivedDatesPayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed get_archived_dates payload: %v", err)
	}
	if p.RouteID == "" {
		return nil, protocol.NewValidationError("get_archived_dates requires route_id")
	}

	dates, err := b.db.ArchivedDates(ctx, p.RouteID)
	if err != nil {
		return nil, err
	}
	return protocol.Encode(protocol.ArchivedDatesResult{Dates: dates})
}

func (b *Broker) handleGetOrder(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.GetOrderPayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed get_order payload: %v", err)
	}
	if p.RouteID == "" || p.DeliveryDate == "" {
		return nil, protocol.NewValidationError("get_order requires route_id and delivery_date")
	}

	ord, err := b.db.GetOrder(ctx, p.RouteID, p.DeliveryDate)
	if errors.Is(err, store.ErrOrderNotFound) {
		return nil, protocol.NewNotFoundError("no order for route %s on %s", p.RouteID, p.DeliveryDate)
	}
	if err != nil {
		return nil, err
	}

	out := protocol.GetOrderResult{
		OrderID:      ord.OrderID,
		RouteID:      ord.RouteID,
		DeliveryDate: ord.DeliveryDate,
		TotalUnits:   ord.TotalUnits,
		Lines:        toLines(ord.Items),
	}
	return protocol.Encode(out)
}

func (b *Broker) handleCheckRouteSynced(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.CheckRouteSyncedPayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed check_route_synced payload: %v", err)
	}
	if p.RouteID == "" {
		return nil, protocol.NewValidationError("check_route_synced requires route_id")
	}

	synced, status, err := b.db.RouteSyncStatus(ctx, p.RouteID)
	if err != nil {
		return nil, err
	}
	return protocol.Encode(protocol.CheckRouteSyncedResult{Synced: synced, Status: status})
}

func (b *Broker) handleDeliveryManifest(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.DeliveryManifestPayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed get_delivery_manifest payload: %v", err)
	}
	if p.RouteID == "" || p.DeliveryDate == "" {
		return nil, protocol.NewValidationError("get_delivery_manifest requires route_id and delivery_date")
	}

	items, err := b.db.DeliveryItems(ctx, p.RouteID, p.DeliveryDate, p.StoreID)
	if err != nil {
		return nil, err
	}

	out := protocol.DeliveryManifestResult{
		RouteID:      p.RouteID,
		DeliveryDate: p.DeliveryDate,
		Stops:        []protocol.ManifestStop{},
	}

	// Items arrive ordered by store id, so stops build up contiguously.
	var cur *protocol.ManifestStop
	for _, it := range items {
		if cur == nil || cur.StoreID != it.StoreID {
			out.Stops = append(out.Stops, protocol.ManifestStop{StoreID: it.StoreID, Lines: []protocol.OrderLine{}})
			cur = &out.Stops[len(out.Stops)-1]
		}
		cur.Lines = append(cur.Lines, protocol.OrderLine{
			StoreID:     it.StoreID,
			SAP:         it.SAP,
			ScheduleKey: it.ScheduleKey,
			Quantity:    it.Quantity,
		})
		cur.TotalUnits += it.Quantity
		out.TotalUnits += it.Quantity
	}
	return protocol.Encode(out)
}

func (b *Broker) handleStoreDelivery(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var p protocol.StoreDeliveryPayload
	if err := protocol.Decode(payload, &p); err != nil {
		return nil, protocol.NewValidationError("malformed get_store_delivery payload: %v", err)
	}
	if p.RouteID == "" || p.StoreID == "" || p.DeliveryDate == "" {
		return nil, protocol.NewValidationError("get_store_delivery requires route_id, store_id and delivery_date")
	}

	items, err := b.db.DeliveryItems(ctx, p.RouteID, p.DeliveryDate, p.StoreID)
	if err != nil {
		return nil, err
	}

	out := protocol.StoreDeliveryResult{StoreID: p.StoreID, Lines: toLines(items)}
	for _, it := range items {
		out.TotalUnits += it.Quantity
	}
	return protocol.Encode(out)
}

func toLines(items []store.OrderItem) []protocol.OrderLine {
	lines := make([]protocol.OrderLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, protocol.OrderLine{
			StoreID:     it.StoreID,
			SAP:         it.SAP,
			ScheduleKey: it.ScheduleKey,
			Quantity:    it.Quantity,
		})
	}
	return lines
}
