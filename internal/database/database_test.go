package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/config"
)

func TestNormalizeMySQLDSN(t *testing.T) {
	dsn, err := normalizeMySQLDSN("leads:secret@tcp(localhost:3306)/leads")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")

	_, err = normalizeMySQLDSN("not a dsn")
	assert.Error(t, err)
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "app.db")})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"users", "sessions", "payments", "provider_events", "refund_requests", "refund_audit_log", "contractor_lead_status"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.DBConfig{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}
