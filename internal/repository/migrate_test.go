package repository

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestMigrate_CreatesAllTables drives the embedded migration set through a
// plain database/sql connection (modernc.org/sqlite, no gorm involved) and
// asserts every §4.7 table exists afterward — a check independent of
// gorm's own AutoMigrate safety net.
func TestMigrate_CreatesAllTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	cfg := DSNConfig{Driver: "sqlite", Name: dbPath}

	err := Migrate(cfg, zap.NewNop())
	require.NoError(t, err)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	want := []string{
		"asset_info", "daily_ohlcv", "intraday_ohlcv",
		"real_time_quotes", "cache_entries", "data_quality", "provider_status",
	}
	for _, table := range want {
		var name string
		row := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table)
		assert.NoError(t, row.Scan(&name), "table %s should exist after migration", table)
		assert.Equal(t, table, name)
	}
}
