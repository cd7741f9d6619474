package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a request envelope.
type Status string

const (
	// StatusPending marks an envelope awaiting broker processing.
	StatusPending Status = "pending"
	// StatusCompleted marks a successfully processed envelope.
	StatusCompleted Status = "completed"
	// StatusError marks an envelope whose handler failed.
	StatusError Status = "error"
	// StatusTimeout marks an envelope abandoned by its client.
	// Written by the client, never by the broker.
	StatusTimeout Status = "timeout"
)

// Terminal reports whether a status is final.
// Terminal statuses are never rewritten by a compliant broker.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusTimeout
}

// CanTransition reports whether moving from s to next preserves the
// monotonic forward-only lifecycle. The only legal moves are
// pending -> terminal; everything else (terminal -> anything, or
// pending -> pending) is a protocol violation.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.Terminal()
}

// Operation identifies which handler processes an envelope.
type Operation string

const (
	OpQuery               Operation = "query"
	OpWrite               Operation = "write"
	OpSyncOrder           Operation = "sync_order"
	OpSyncRoute           Operation = "sync_route"
	OpGetHistoricalShares Operation = "get_historical_shares"
	OpGetArchivedDates    Operation = "get_archived_dates"
	OpGetOrder            Operation = "get_order"
	OpCheckRouteSynced    Operation = "check_route_synced"
	OpGetDeliveryManifest Operation = "get_delivery_manifest"
	OpGetStoreDelivery    Operation = "get_store_delivery"
)

// Operations lists every known operation in a stable order.
// Used for validation and CLI help output.
var Operations = []Operation{
	OpQuery,
	OpWrite,
	OpSyncOrder,
	OpSyncRoute,
	OpGetHistoricalShares,
	OpGetArchivedDates,
	OpGetOrder,
	OpCheckRouteSynced,
	OpGetDeliveryManifest,
	OpGetStoreDelivery,
}

// Known reports whether op is a member of the closed operation set.
func (op Operation) Known() bool {
	for _, o := range Operations {
		if o == op {
			return true
		}
	}
	return false
}

// Envelope is one coordinated operation in flight between a client stub
// and the broker. The envelope's RequestID doubles as its document key in
// the mediating store's request collection.
type Envelope struct {
	RequestID string         `json:"request_id"`
	Operation Operation      `json:"operation"`
	Payload   map[string]any `json:"payload"`
	Status    Status         `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Doc serializes the envelope into the flat field map stored in the
// mediating store. CreatedAt is intentionally omitted: the store assigns
// it server-side on create.
func (e *Envelope) Doc() map[string]any {
	doc := map[string]any{
		"request_id": e.RequestID,
		"operation":  string(e.Operation),
		"payload":    e.Payload,
		"status":     string(e.Status),
	}
	if e.Result != nil {
		doc["result"] = e.Result
	}
	if e.Error != "" {
		doc["error"] = e.Error
	}
	return doc
}

// EnvelopeFromDoc decodes a mediating-store document back into an Envelope.
// Unknown fields are ignored; a missing status decodes as the zero Status
// so callers can detect malformed documents.
func EnvelopeFromDoc(id string, doc map[string]any) Envelope {
	e := Envelope{RequestID: id}
	if v, ok := doc["operation"].(string); ok {
		e.Operation = Operation(v)
	}
	if v, ok := doc["payload"].(map[string]any); ok {
		e.Payload = v
	}
	if v, ok := doc["status"].(string); ok {
		e.Status = Status(v)
	}
	if v, ok := doc["result"].(map[string]any); ok {
		e.Result = v
	}
	if v, ok := doc["error"].(string); ok {
		e.Error = v
	}
	if v, ok := doc["created_at"].(time.Time); ok {
		e.CreatedAt = v
	}
	return e
}

// Encode converts a typed payload or result struct into the map form
// carried inside an envelope. The round trip goes through JSON so that
// struct tags decide field names and numeric values survive as float64,
// matching what the mediating store hands back on the other side.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return m, nil
}

// Decode converts an envelope map back into a typed struct.
func Decode(m map[string]any, v any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
