// Package catalog resolves per-SKU packaging data (case pack, tray size)
// for the allocation engine's callers. Case rounding needs the case pack
// before allocation runs; everything here is read-only lookup.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/routecast/routecast/internal/store"
)

// ErrUnknownSKU is returned when a SKU has no catalog entry.
var ErrUnknownSKU = errors.New("catalog: unknown sku")

// PackInfo is the packaging data for one SKU.
type PackInfo struct {
	SAP      string
	CasePack int
	TraySize int
}

// Lookup resolves packaging data per SKU.
type Lookup interface {
	Pack(ctx context.Context, sap string) (PackInfo, error)
}

// StoreLookup reads packaging data from the synced products table in the
// analytical store.
type StoreLookup struct {
	Store *store.Store
}

// Pack implements Lookup.
func (l *StoreLookup) Pack(ctx context.Context, sap string) (PackInfo, error) {
	p, err := l.Store.Product(ctx, sap)
	if errors.Is(err, sql.ErrNoRows) {
		return PackInfo{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sap)
	}
	if err != nil {
		return PackInfo{}, err
	}
	return PackInfo{SAP: p.SAP, CasePack: p.CasePack, TraySize: p.TraySize}, nil
}

// StaticLookup serves packaging data from a fixed map. Used in tests and
// in tooling that runs without a synced catalog.
type StaticLookup map[string]PackInfo

// Pack implements Lookup.
func (l StaticLookup) Pack(_ context.Context, sap string) (PackInfo, error) {
	info, ok := l[sap]
	if !ok {
		return PackInfo{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sap)
	}
	return info, nil
}
