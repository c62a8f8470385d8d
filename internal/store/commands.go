package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"signage-fleet-backend/internal/model"
)

// ErrCommandNotCancellable is returned when cancelling a command the
// terminal has already picked up.
var ErrCommandNotCancellable = errors.New("command is no longer pending and cannot be cancelled")

// CreateCommands appends a batch of commands to the ledger atomically. A
// terminal polling mid-create sees either none or all of the batch.
func (s *gormStore) CreateCommands(ctx context.Context, commands []model.Command) error {
	if len(commands) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&commands).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create %d commands: %w", len(commands), err)
	}
	return nil
}

// PendingCommands returns every PENDING command addressed to the terminal,
// oldest first. Delivery is pull-based: this is the poll half of check-in.
func (s *gormStore) PendingCommands(ctx context.Context, terminalID string) ([]model.Command, error) {
	var commands []model.Command
	err := s.db.WithContext(ctx).
		Where("terminal_id = ? AND status = ?", terminalID, model.CommandPending).
		Order("created_at ASC").
		Find(&commands).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending commands for terminal %s: %w", terminalID, err)
	}
	return commands, nil
}

// ReportCommandStatuses applies terminal-reported outcomes. The terminal
// id guards the update so a terminal can only move its own commands; a
// report for someone else's (or an unknown) command is dropped with a log
// line rather than failing the whole check-in.
func (s *gormStore) ReportCommandStatuses(ctx context.Context, terminalID string, reports []CommandStatusReport) error {
	if len(reports) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, report := range reports {
			res := tx.Model(&model.Command{}).
				Where("id = ? AND terminal_id = ?", report.CommandID, terminalID).
				Update("status", report.Status)
			if res.Error != nil {
				return fmt.Errorf("failed to update command %s: %w", report.CommandID, res.Error)
			}
			if res.RowsAffected == 0 {
				log.Printf("check-in: terminal %s reported status for unknown command %s", terminalID, report.CommandID)
			}
		}
		return nil
	})
}

// CancelCommand cancels a command that has not been dispatched yet.
func (s *gormStore) CancelCommand(ctx context.Context, commandID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var command model.Command
		if err := tx.First(&command, "id = ?", commandID).Error; err != nil {
			return err
		}
		if command.Status != model.CommandPending {
			return fmt.Errorf("%w: status is %s", ErrCommandNotCancellable, command.Status)
		}
		return tx.Model(&command).Update("status", model.CommandCancelled).Error
	})
}
