package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarybot/diarybot/internal/config"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"sqlite untouched", DialectSQLite, "SELECT * FROM users WHERE id = ? AND plan = ?", "SELECT * FROM users WHERE id = ? AND plan = ?"},
		{"postgres numbered", DialectPostgres, "SELECT * FROM users WHERE id = ? AND plan = ?", "SELECT * FROM users WHERE id = $1 AND plan = $2"},
		{"no placeholders", DialectPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rebind(tt.dialect, tt.in))
		})
	}
}

func TestNew_SQLiteMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "diarybot.db")
	db, err := New(config.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DialectSQLite, db.Dialect())
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Ping(context.Background()))

	var n int
	err = db.Conn().QueryRow("SELECT COUNT(*) FROM usage_quota").Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestNew_PostgresRequiresDSN(t *testing.T) {
	_, err := New(config.DatabaseConfig{Driver: "postgres"})
	assert.Error(t, err)
}
