package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routecast/routecast/internal/store"
)

func TestStoreLookup(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "routecast.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	err = db.ReplaceRoute(ctx, "R1", "Northside AM", nil, []store.Product{
		{SAP: "4411", Description: "Sourdough Loaf", CasePack: 4, TraySize: 10},
	})
	require.NoError(t, err)

	l := &StoreLookup{Store: db}
	info, err := l.Pack(ctx, "4411")
	require.NoError(t, err)
	assert.Equal(t, PackInfo{SAP: "4411", CasePack: 4, TraySize: 10}, info)

	_, err = l.Pack(ctx, "9999")
	assert.ErrorIs(t, err, ErrUnknownSKU)
}

func TestStaticLookup(t *testing.T) {
	l := StaticLookup{"4411": {SAP: "4411", CasePack: 6}}

	info, err := l.Pack(context.Background(), "4411")
	require.NoError(t, err)
	assert.Equal(t, 6, info.CasePack)

	_, err = l.Pack(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownSKU)
}
