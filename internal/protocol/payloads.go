package protocol

// Typed payload and result shapes for each operation. These are the
// structures that travel inside Envelope.Payload / Envelope.Result after
// Encode; handlers Decode them back on the broker side.

// QueryPayload carries a read-only SQL statement with positional parameters.
type QueryPayload struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

// QueryResult is the row set returned by the query operation.
type QueryResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// WritePayload carries a mutating SQL statement with positional parameters.
// Callers own idempotency; the broker does not deduplicate writes.
type WritePayload struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

// WriteResult reports the number of rows a write affected.
type WriteResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

// SyncOrderPayload identifies an external order document to pull into the
// analytical store.
type SyncOrderPayload struct {
	OrderID string `json:"order_id"`
	RouteID string `json:"route_id"`
}

// SyncOrderResult reports normalized totals after an order sync.
type SyncOrderResult struct {
	OrderID    string `json:"order_id"`
	TotalUnits int    `json:"total_units"`
	StoreCount int    `json:"store_count"`
}

// SyncRoutePayload requests a full resync of a route's reference data.
type SyncRoutePayload struct {
	RouteID string `json:"route_id"`
}

// SyncRouteResult reports the outcome of a route resync.
type SyncRouteResult struct {
	RouteID      string `json:"route_id"`
	Status       string `json:"status"`
	StoreCount   int    `json:"store_count"`
	ProductCount int    `json:"product_count"`
}

// HistoricalSharesPayload selects the history slice to compute shares over.
type HistoricalSharesPayload struct {
	RouteID     string `json:"route_id"`
	SAP         string `json:"sap"`
	ScheduleKey string `json:"schedule_key"`
}

// StoreShare is one store's fraction of historical demand.
type StoreShare struct {
	Share         float64 `json:"share"`
	TotalQuantity int     `json:"total_quantity"`
}

// HistoricalSharesResult maps store id to its demand share. Empty when no
// history exists for the (sap, schedule_key) pair; the caller decides the
// fallback policy.
type HistoricalSharesResult struct {
	Shares map[string]StoreShare `json:"shares"`
}

// ArchivedDatesPayload selects a route's archived delivery dates.
type ArchivedDatesPayload struct {
	RouteID string `json:"route_id"`
}

// ArchivedDatesResult lists distinct delivery dates, sorted ascending.
type ArchivedDatesResult struct {
	Dates []string `json:"dates"`
}

// GetOrderPayload identifies one order by route and delivery date.
type GetOrderPayload struct {
	RouteID      string `json:"route_id"`
	DeliveryDate string `json:"delivery_date"`
}

// OrderLine is a single line item within an order or manifest.
type OrderLine struct {
	StoreID     string `json:"store_id"`
	SAP         string `json:"sap"`
	ScheduleKey string `json:"schedule_key"`
	Quantity    int    `json:"quantity"`
}

// GetOrderResult is the full order record for one delivery date.
type GetOrderResult struct {
	OrderID      string      `json:"order_id"`
	RouteID      string      `json:"route_id"`
	DeliveryDate string      `json:"delivery_date"`
	TotalUnits   int         `json:"total_units"`
	Lines        []OrderLine `json:"lines"`
}

// CheckRouteSyncedPayload asks whether a route's reference data is loaded.
type CheckRouteSyncedPayload struct {
	RouteID string `json:"route_id"`
}

// CheckRouteSyncedResult reports sync state with a human-readable status.
type CheckRouteSyncedResult struct {
	Synced bool   `json:"synced"`
	Status string `json:"status"`
}

// DeliveryManifestPayload selects manifest lines for a delivery date.
// StoreID narrows the manifest to one store when non-empty.
type DeliveryManifestPayload struct {
	RouteID      string `json:"route_id"`
	DeliveryDate string `json:"delivery_date"`
	StoreID      string `json:"store_id,omitempty"`
}

// ManifestStop is one store's slice of a delivery manifest.
type ManifestStop struct {
	StoreID    string      `json:"store_id"`
	TotalUnits int         `json:"total_units"`
	Lines      []OrderLine `json:"lines"`
}

// DeliveryManifestResult aggregates line items per store with totals.
type DeliveryManifestResult struct {
	RouteID      string         `json:"route_id"`
	DeliveryDate string         `json:"delivery_date"`
	TotalUnits   int            `json:"total_units"`
	Stops        []ManifestStop `json:"stops"`
}

// StoreDeliveryPayload selects one store's delivery for a date.
type StoreDeliveryPayload struct {
	RouteID      string `json:"route_id"`
	StoreID      string `json:"store_id"`
	DeliveryDate string `json:"delivery_date"`
}

// StoreDeliveryResult lists line items for one store, used to pre-fill
// downstream order forms.
type StoreDeliveryResult struct {
	StoreID    string      `json:"store_id"`
	TotalUnits int         `json:"total_units"`
	Lines      []OrderLine `json:"lines"`
}
