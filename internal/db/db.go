package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signage-fleet-backend/config"
	"signage-fleet-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := db.AutoMigrate(
		&model.Terminal{},
		&model.Availability{},
		&model.StatusHistory{},
		&model.File{},
		&model.Playlist{},
		&model.AdOrder{},
		&model.BgOrder{},
		&model.Command{},
		&model.PushSubscription{},
	); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if err := applyIndexDDL(db); err != nil {
		return nil, err
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// applyIndexDDL creates the composite indexes the sweep and poll queries
// depend on. AutoMigrate cannot express them from the shared embedded
// order struct without colliding index names across the two order tables.
func applyIndexDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE INDEX IF NOT EXISTS idx_ad_orders_terminal_status ON ad_orders (terminal_id, status);",
		"CREATE INDEX IF NOT EXISTS idx_bg_orders_terminal_status ON bg_orders (terminal_id, status);",
		"CREATE INDEX IF NOT EXISTS idx_ad_orders_playlist_status ON ad_orders (playlist_id, status);",
		"CREATE INDEX IF NOT EXISTS idx_bg_orders_playlist_status ON bg_orders (playlist_id, status);",
		"CREATE INDEX IF NOT EXISTS idx_commands_terminal_status ON commands (terminal_id, status);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
