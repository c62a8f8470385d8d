package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signage-fleet-backend/internal/model"
)

// newTestStore opens an in-memory SQLite database with the full schema.
// The pool is pinned to one connection, otherwise every pooled connection
// would get its own empty :memory: database.
func newTestStore(t *testing.T) (Store, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Terminal{},
		&model.Availability{},
		&model.StatusHistory{},
		&model.File{},
		&model.Playlist{},
		&model.AdOrder{},
		&model.BgOrder{},
		&model.Command{},
		&model.PushSubscription{},
	))

	return NewGormStore(db), db
}

func createTestTerminal(t *testing.T, s Store, name string) *model.Terminal {
	t.Helper()
	terminal := &model.Terminal{Name: name, Active: true, Timezone: "Etc/GMT-7"}
	require.NoError(t, s.CreateTerminal(context.Background(), terminal))
	return terminal
}
