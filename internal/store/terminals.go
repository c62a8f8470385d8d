package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signage-fleet-backend/internal/model"
)

// CreateTerminal persists a new terminal with a freshly allocated article
// number. The allocation reads the current maximum under an exclusive row
// lock inside the same transaction as the insert, so two concurrent
// creations can never observe the same maximum.
func (s *gormStore) CreateTerminal(ctx context.Context, t *model.Terminal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		article, err := nextArticle(tx)
		if err != nil {
			return err
		}
		t.Article = article
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("failed to create terminal: %w", err)
		}
		return nil
	})
}

func nextArticle(tx *gorm.DB) (int, error) {
	q := tx.Model(&model.Terminal{})
	// SQLite has no FOR UPDATE; its single-writer lock already serializes
	// the scan against the insert.
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var last model.Terminal
	err := q.Select("article").Order("article DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last article: %w", err)
	}
	return last.Article + 1, nil
}
