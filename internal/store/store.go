package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"signage-fleet-backend/internal/model"
)

// Store defines the persistence operations of the fleet engine's hot
// paths: terminal check-in, the periodic sweeps and the command ledger.
type Store interface {
	DB() *gorm.DB

	CreateTerminal(ctx context.Context, t *model.Terminal) error
	RecordHeartbeat(ctx context.Context, terminalID string, now time.Time) error
	SweepAvailability(ctx context.Context, now time.Time) ([]StatusTransition, error)
	SweepOrders(ctx context.Context, now time.Time) (int64, error)

	CreateCommands(ctx context.Context, commands []model.Command) error
	PendingCommands(ctx context.Context, terminalID string) ([]model.Command, error)
	ReportCommandStatuses(ctx context.Context, terminalID string, reports []CommandStatusReport) error
	CancelCommand(ctx context.Context, commandID string) error
}

// StatusTransition records one availability change applied by the sweep.
type StatusTransition struct {
	TerminalID string
	From       model.TerminalStatus
	To         model.TerminalStatus
	At         time.Time
}

// CommandStatusReport is one terminal-reported command outcome.
type CommandStatusReport struct {
	CommandID string              `json:"command_id"`
	Status    model.CommandStatus `json:"status"`
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}
