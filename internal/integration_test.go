package internal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signage-fleet-backend/internal/fleet"
	"signage-fleet-backend/internal/model"
	"signage-fleet-backend/internal/store"
)

// TestOrderLifecycle walks one ad order through its whole life: placement
// with command fan-out, delivery via check-in, lifecycle advancement by
// the sweep, a playlist mutation mid-flight and the final cancellation
// attempt on a completed order.
func TestOrderLifecycle(t *testing.T) {
	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	require.NoError(t, testDB.AutoMigrate(
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

	ctx := context.Background()
	s := store.NewGormStore(testDB)
	engine := fleet.NewEngine(testDB)

	// Fleet setup: one terminal, one two-file ad playlist.
	terminal := &model.Terminal{Name: "mall-entrance", Active: true}
	require.NoError(t, s.CreateTerminal(ctx, terminal))

	fileA := &model.File{Name: "promo-a.mp4", Category: model.CategoryAd, MD5: "a1", SHA256: "a2", Active: true}
	fileB := &model.File{Name: "promo-b.mp4", Category: model.CategoryAd, MD5: "b1", SHA256: "b2", Active: true}
	require.NoError(t, testDB.Create(fileA).Error)
	require.NoError(t, testDB.Create(fileB).Error)
	playlist := &model.Playlist{Name: "spring", Active: true, Files: []model.File{*fileA, *fileB}}
	require.NoError(t, testDB.Create(playlist).Error)

	now := time.Now().UTC().Truncate(time.Second)
	var orderID string

	t.Run("placement queues the create command", func(t *testing.T) {
		orders, err := engine.CreateAdOrders(ctx, fleet.AdOrderSpec{
			Name:          "spring push",
			TerminalIDs:   []string{terminal.ID},
			PlaylistID:    playlist.ID,
			StartAt:       now.Add(time.Hour),
			EndAt:         now.Add(3 * time.Hour),
			BroadcastType: model.BroadcastOffsetFromOpen,
			Parameters:    map[string]any{"times_in_hour": float64(2), "timedelta": "00:15:00"},
		})
		require.NoError(t, err)
		require.Len(t, orders, 1)
		orderID = orders[0].ID
		assert.Equal(t, model.OrderWaiting, orders[0].Status)
	})

	t.Run("terminal pulls and acknowledges via check-in", func(t *testing.T) {
		require.NoError(t, s.RecordHeartbeat(ctx, terminal.ID, now))

		pending, err := s.PendingCommands(ctx, terminal.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, model.CmdAd, pending[0].Type)

		var manifest map[string]any
		require.NoError(t, json.Unmarshal(pending[0].Parameters, &manifest))
		assert.Equal(t, orderID, manifest["order_id"])
		assert.Len(t, manifest["playlist"].(map[string]any)["files"], 2)

		require.NoError(t, s.ReportCommandStatuses(ctx, terminal.ID, []store.CommandStatusReport{
			{CommandID: pending[0].ID, Status: model.CommandDone},
		}))
		pending, err = s.PendingCommands(ctx, terminal.ID)
		require.NoError(t, err)
		assert.Empty(t, pending, "acknowledged commands are not served again")
	})

	t.Run("availability sweep brings the terminal online", func(t *testing.T) {
		transitions, err := s.SweepAvailability(ctx, now.Add(time.Second))
		require.NoError(t, err)
		require.Len(t, transitions, 1)
		assert.Equal(t, model.StatusOnline, transitions[0].To)
	})

	t.Run("playlist mutation fans out to the live order", func(t *testing.T) {
		fileC := &model.File{Name: "promo-c.mp4", Category: model.CategoryAd, MD5: "c1", SHA256: "c2", Active: true}
		require.NoError(t, testDB.Create(fileC).Error)

		fanned, err := engine.AddPlaylistFiles(ctx, playlist.ID, []string{fileC.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, fanned)

		pending, err := s.PendingCommands(ctx, terminal.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, model.CmdUpdateAd, pending[0].Type)
	})

	t.Run("order sweep advances by wall clock", func(t *testing.T) {
		// Before the window opens: nothing moves.
		advanced, err := s.SweepOrders(ctx, now.Add(30*time.Minute))
		require.NoError(t, err)
		assert.Zero(t, advanced)

		// Window open: WAITING goes ON_AIR.
		_, err = s.SweepOrders(ctx, now.Add(90*time.Minute))
		require.NoError(t, err)
		var order model.AdOrder
		require.NoError(t, testDB.First(&order, "id = ?", orderID).Error)
		assert.Equal(t, model.OrderOnAir, order.Status)

		// Window closed: ON_AIR completes.
		_, err = s.SweepOrders(ctx, now.Add(4*time.Hour))
		require.NoError(t, err)
		require.NoError(t, testDB.First(&order, "id = ?", orderID).Error)
		assert.Equal(t, model.OrderCompleted, order.Status)
	})

	t.Run("completed orders cannot be cancelled or resent", func(t *testing.T) {
		err := engine.CancelAdOrder(ctx, orderID)
		assert.ErrorIs(t, err, fleet.ErrOrderNotCancellable)

		queued, err := engine.ResendOrders(ctx, terminal.ID)
		require.NoError(t, err)
		assert.Zero(t, queued, "nothing live is left to resend")
	})
}
