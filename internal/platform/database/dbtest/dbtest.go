// Package dbtest opens throwaway in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/xxz807/fieldledger/internal/platform/config"
	"github.com/xxz807/fieldledger/internal/platform/database"
)

// New returns a migrated in-memory database. The pool holds a single
// connection, so the database lives exactly as long as the test.
func New(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)

	all := append([]any{&database.Sequence{}}, models...)
	require.NoError(t, database.Migrate(context.Background(), db, all...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
