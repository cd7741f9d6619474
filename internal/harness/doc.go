// Package harness runs end-to-end scenarios against a live broker.
//
// A scenario seeds the mediating document store with route and order
// documents, then submits a sequence of operations through a real client
// and records every envelope outcome as a trace event. The broker runs
// against a private in-memory document store and a throwaway SQLite
// database, so scenarios are hermetic and deterministic: request ids
// come from a sequential generator and steps execute strictly in order.
//
// Scenarios can be declared inline or loaded from YAML files. Traces
// serialize to stable JSON, which makes them suitable for golden-file
// comparison via RunWithGolden.
package harness
