// Package store provides the SQLite-backed analytical database holding
// synced orders and the historical line items the forecast allocation
// feeds on.
//
// The store is single-writer by construction: Open takes SQLite's
// EXCLUSIVE locking mode, so the lock is enforced at the file level and a
// second broker process fails at startup rather than corrupting state.
// The broker's event loop is the only caller, which removes any need for
// application-level locking above this package.
//
// Writes triggered by one request happen inside one transaction (Store.Tx)
// so partially synced orders are never visible to later requests.
//
// Line items use the composite key "orderId-storeId-sap" so resyncing an
// order is idempotent: the same rows update in place, quantities are
// never doubled.
package store
