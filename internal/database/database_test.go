package database

import (
	"context"
	"testing"

	"github.com/alexivanou/cityweather-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectAndMigrate(t *testing.T) {
	cfg := config.DBConfig{Type: config.DBTypeMemory, Name: "database_test"}
	db, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db, cfg.Type))
	// Second run must be a no-op
	require.NoError(t, Migrate(db, cfg.Type))

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM cities"))
	assert.Equal(t, 0, count)

	m, err := NewMigrator(db, cfg.Type)
	require.NoError(t, err)
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}
