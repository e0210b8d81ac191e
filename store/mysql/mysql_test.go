package mysql

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/ledger/ledgertest"
)

// getMySQLStore connects to MYSQL_DSN and empties the ledger tables.
// The test is skipped when no server is reachable.
func getMySQLStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/inventory"
	}

	store, err := New(context.Background(), dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	for _, table := range []string{"inventory_history", "variants"} {
		_, err := store.DB().Exec("TRUNCATE TABLE " + table)
		require.NoError(t, err)
	}
	return store
}

func TestMySQLStore(t *testing.T) {
	ledgertest.RunStoreSuite(t, func(t *testing.T) ledger.Store { return getMySQLStore(t) })
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(context.Background(), "not a dsn")
	assert.Error(t, err)
}

func TestDialect_NonDriverErrors(t *testing.T) {
	assert.False(t, Dialect{}.IsUniqueViolation(assert.AnError))
	assert.False(t, Dialect{}.IsBusy(assert.AnError))
	assert.Len(t, Dialect{}.Schema(), 2)
}
