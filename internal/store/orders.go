package store

import (
	"context"
	"log"
	"time"

	"signage-fleet-backend/internal/model"
)

// SweepOrders advances order lifecycles by wall clock, independently for
// both order kinds: WAITING orders whose window has opened go ON_AIR,
// ON_AIR orders whose window has closed go COMPLETED. Each step is one
// batched UPDATE, so the transitions are monotonic by construction.
// Returns the number of orders advanced.
func (s *gormStore) SweepOrders(ctx context.Context, now time.Time) (int64, error) {
	var advanced int64
	for _, table := range []string{"ad_orders", "bg_orders"} {
		res := s.db.WithContext(ctx).Table(table).
			Where("status = ? AND start_at <= ?", model.OrderWaiting, now).
			Update("status", model.OrderOnAir)
		if res.Error != nil {
			log.Printf("order sweep: failed to start %s: %v", table, res.Error)
		} else {
			advanced += res.RowsAffected
		}

		res = s.db.WithContext(ctx).Table(table).
			Where("status = ? AND end_at <= ?", model.OrderOnAir, now).
			Update("status", model.OrderCompleted)
		if res.Error != nil {
			log.Printf("order sweep: failed to complete %s: %v", table, res.Error)
		} else {
			advanced += res.RowsAffected
		}
	}
	return advanced, nil
}
