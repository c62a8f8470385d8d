package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signage-fleet-backend/internal/model"
)

const (
	shortOfflineGap = 5 * time.Minute
	longOfflineGap  = time.Hour
)

// nextStatus is the pure availability transition function of
// (current status, heartbeat gap). OFFLINE_LONG never steps down to
// OFFLINE_SHORT: a long-offline terminal is either still gone or fully
// back online.
func nextStatus(current model.TerminalStatus, gap time.Duration) model.TerminalStatus {
	switch current {
	case model.StatusOnline:
		if gap > longOfflineGap {
			return model.StatusOfflineLong
		}
		if gap > shortOfflineGap {
			return model.StatusOfflineShort
		}
	case model.StatusOfflineShort:
		if gap > longOfflineGap {
			return model.StatusOfflineLong
		}
		if gap < shortOfflineGap {
			return model.StatusOnline
		}
	case model.StatusOfflineLong:
		if gap < shortOfflineGap {
			return model.StatusOnline
		}
	}
	return current
}

// RecordHeartbeat upserts the terminal's availability timestamp. It never
// touches the status column: classification belongs to the sweep, so a
// freshly reappearing terminal is reported online only after the next
// sweep tick.
func (s *gormStore) RecordHeartbeat(ctx context.Context, terminalID string, now time.Time) error {
	record := model.Availability{
		TerminalID: terminalID,
		Status:     model.StatusOfflineLong,
		LastSeenAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "terminal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to record heartbeat for terminal %s: %w", terminalID, err)
	}
	return nil
}

// SweepAvailability scans every availability row, applies the transition
// function and persists the changes. Each status write is applied
// individually so one broken row cannot abort the batch; history rows for
// the rows that did change are appended in one create.
func (s *gormStore) SweepAvailability(ctx context.Context, now time.Time) ([]StatusTransition, error) {
	var rows []model.Availability
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch availability rows: %w", err)
	}

	var applied []StatusTransition
	var histories []model.StatusHistory
	for _, row := range rows {
		next := nextStatus(row.Status, now.Sub(row.LastSeenAt))
		if next == row.Status {
			continue
		}

		err := s.db.WithContext(ctx).Model(&model.Availability{}).
			Where("terminal_id = ?", row.TerminalID).
			Update("status", next).Error
		if err != nil {
			log.Printf("availability sweep: failed to update terminal %s: %v", row.TerminalID, err)
			continue
		}

		applied = append(applied, StatusTransition{
			TerminalID: row.TerminalID,
			From:       row.Status,
			To:         next,
			At:         now,
		})
		histories = append(histories, model.StatusHistory{
			TerminalID: row.TerminalID,
			Status:     next,
			ChangedAt:  now,
		})
	}

	if len(histories) > 0 {
		if err := s.db.WithContext(ctx).Create(&histories).Error; err != nil {
			return applied, fmt.Errorf("failed to append status history: %w", err)
		}
	}
	return applied, nil
}

// StatusHistoryForTerminal returns the transition log, newest first.
func StatusHistoryForTerminal(ctx context.Context, db *gorm.DB, terminalID string) ([]model.StatusHistory, error) {
	var history []model.StatusHistory
	err := db.WithContext(ctx).
		Where("terminal_id = ?", terminalID).
		Order("changed_at DESC").
		Find(&history).Error
	return history, err
}
