//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTestDB_SeedsFixture(t *testing.T) {
	db := GetTestDB(t)
	ctx := context.Background()

	counts := map[string]int{"customers": len(Customers), "orders": len(orderRows())}
	for table, want := range counts {
		var got int
		require.NoError(t, db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&got), table)
		assert.Equal(t, want, got, table)
	}

	assert.Same(t, db, GetTestDB(t), "container is shared across tests")
}

func TestTestDB_StoreConfig(t *testing.T) {
	cfg := (&TestDB{Host: "localhost", Port: 55432}).StoreConfig()
	assert.Equal(t, 55432, cfg["port"])
	assert.Equal(t, "disable", cfg["ssl_mode"])
}
