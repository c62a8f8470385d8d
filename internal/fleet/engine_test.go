package fleet

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

	"signage-fleet-backend/internal/model"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
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
		&model.File{},
		&model.Playlist{},
		&model.AdOrder{},
		&model.BgOrder{},
		&model.Command{},
	))

	return NewEngine(db), db
}

var nextTestArticle int

func seedTerminal(t *testing.T, db *gorm.DB, name string, active bool) *model.Terminal {
	t.Helper()
	nextTestArticle++
	terminal := &model.Terminal{Name: name, Article: nextTestArticle, Active: true, Timezone: "Etc/GMT-7"}
	require.NoError(t, db.Create(terminal).Error)
	if !active {
		// A zero-valued Active would be dropped from the INSERT in favor
		// of the column default, so deactivation goes through an update.
		require.NoError(t, db.Model(terminal).Update("active", false).Error)
		terminal.Active = false
	}
	return terminal
}

func seedFile(t *testing.T, db *gorm.DB, name string, category model.ContentCategory) *model.File {
	t.Helper()
	file := &model.File{Name: name, Category: category, MD5: "md5-" + name, SHA256: "sha-" + name, Active: true}
	require.NoError(t, db.Create(file).Error)
	return file
}

func seedPlaylist(t *testing.T, db *gorm.DB, name string, files ...*model.File) *model.Playlist {
	t.Helper()
	playlist := &model.Playlist{Name: name, Active: true}
	for _, f := range files {
		playlist.Files = append(playlist.Files, *f)
	}
	require.NoError(t, db.Create(playlist).Error)
	return playlist
}

func commandsFor(t *testing.T, db *gorm.DB, terminalID string) []model.Command {
	t.Helper()
	var commands []model.Command
	require.NoError(t, db.Where("terminal_id = ?", terminalID).Order("created_at ASC").Find(&commands).Error)
	return commands
}

func decodePayload(t *testing.T, c model.Command) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(c.Parameters, &payload))
	return payload
}

func adSpec(playlist *model.Playlist, terminalIDs ...string) AdOrderSpec {
	now := time.Now().UTC().Truncate(time.Second)
	return AdOrderSpec{
		Name:          "spring campaign",
		TerminalIDs:   terminalIDs,
		PlaylistID:    playlist.ID,
		StartAt:       now.Add(time.Hour),
		EndAt:         now.Add(48 * time.Hour),
		BroadcastType: model.BroadcastFullWindow,
		Parameters:    map[string]any{"times_in_hour": float64(4)},
	}
}

func TestCreateAdOrders_FanOut(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	fileA := seedFile(t, db, "a.mp4", model.CategoryAd)
	fileB := seedFile(t, db, "b.mp4", model.CategoryAd)
	playlist := seedPlaylist(t, db, "ads", fileA, fileB)
	active1 := seedTerminal(t, db, "k1", true)
	active2 := seedTerminal(t, db, "k2", true)
	inactive := seedTerminal(t, db, "k3", false)

	// The exclusion below only means something if the flag really landed.
	var seeded model.Terminal
	require.NoError(t, db.First(&seeded, "id = ?", inactive.ID).Error)
	require.False(t, seeded.Active)

	spec := adSpec(playlist, active1.ID, active2.ID, inactive.ID)
	spec.Slides = map[string]json.RawMessage{fileA.ID: json.RawMessage(`{"duration": 10}`)}

	orders, err := e.CreateAdOrders(ctx, spec)
	require.NoError(t, err)
	require.Len(t, orders, 2, "inactive terminals are not targeted")

	for _, order := range orders {
		assert.Equal(t, model.OrderWaiting, order.Status)

		commands := commandsFor(t, db, order.TerminalID)
		require.Len(t, commands, 1, "exactly one command per order")
		assert.Equal(t, model.CmdAd, commands[0].Type)
		assert.Equal(t, model.CommandPending, commands[0].Status)

		payload := decodePayload(t, commands[0])
		assert.Equal(t, order.ID, payload["order_id"])
		assert.Contains(t, payload["broadcast_interval"], "-")
		assert.Equal(t, float64(model.BroadcastFullWindow), payload["broadcast_type"])

		manifest := payload["playlist"].(map[string]any)
		assert.Equal(t, playlist.ID, manifest["id"])
		files := manifest["files"].([]any)
		require.Len(t, files, 2)
		for _, f := range files {
			ref := f.(map[string]any)
			assert.NotEmpty(t, ref["id"])
			assert.NotEmpty(t, ref["hash"], "terminals verify downloads by digest")
		}
		assert.Contains(t, manifest["slides"], fileA.ID)
	}

	// No command went to the inactive terminal.
	assert.Empty(t, commandsFor(t, db, inactive.ID))
}

func TestCreateAdOrders_SlideOutsidePlaylist(t *testing.T) {
	e, db := newTestEngine(t)

	member := seedFile(t, db, "member.mp4", model.CategoryAd)
	stranger := seedFile(t, db, "stranger.mp4", model.CategoryAd)
	playlist := seedPlaylist(t, db, "ads", member)
	terminal := seedTerminal(t, db, "k1", true)

	spec := adSpec(playlist, terminal.ID)
	spec.Slides = map[string]json.RawMessage{stranger.ID: json.RawMessage(`{}`)}

	_, err := e.CreateAdOrders(context.Background(), spec)
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs, "slides")
	assert.Contains(t, fieldErrs["slides"][0], "stranger.mp4", "the offender is named")

	// Validation failure creates nothing.
	assert.Empty(t, commandsFor(t, db, terminal.ID))
	var count int64
	require.NoError(t, db.Model(&model.AdOrder{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCreateAdOrders_NoActiveTargets(t *testing.T) {
	e, db := newTestEngine(t)

	playlist := seedPlaylist(t, db, "ads", seedFile(t, db, "a.mp4", model.CategoryAd))
	inactive := seedTerminal(t, db, "k1", false)

	_, err := e.CreateAdOrders(context.Background(), adSpec(playlist, inactive.ID))
	assert.ErrorIs(t, err, ErrNoTargetTerminals)
}

func TestCreateBgOrders(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	track := seedFile(t, db, "track.mp3", model.CategoryMusic)
	playlist := seedPlaylist(t, db, "music", track)
	terminal := seedTerminal(t, db, "k1", true)

	now := time.Now().UTC()
	spec := BgOrderSpec{
		Name:        "ambient",
		TerminalIDs: []string{terminal.ID},
		PlaylistID:  playlist.ID,
		StartAt:     now.Add(time.Hour),
		EndAt:       now.Add(2 * time.Hour),
		Category:    model.CategoryMusic,
	}

	orders, err := e.CreateBgOrders(ctx, spec)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	commands := commandsFor(t, db, terminal.ID)
	require.Len(t, commands, 1)
	assert.Equal(t, model.CmdBgMusic, commands[0].Type)

	payload := decodePayload(t, commands[0])
	assert.Equal(t, float64(model.CategoryMusic), payload["type"])
	assert.NotContains(t, payload, "broadcast_type")

	// The same playlist cannot back a video order.
	spec.Name = "wrong kind"
	spec.Category = model.CategoryVideo
	_, err = e.CreateBgOrders(ctx, spec)
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs, "playlist")
}

func TestCancelAdOrder(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	playlist := seedPlaylist(t, db, "ads", seedFile(t, db, "a.mp4", model.CategoryAd))
	terminal := seedTerminal(t, db, "k1", true)

	orders, err := e.CreateAdOrders(ctx, adSpec(playlist, terminal.ID))
	require.NoError(t, err)
	order := orders[0]

	require.NoError(t, e.CancelAdOrder(ctx, order.ID))

	var reloaded model.AdOrder
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, model.OrderCancelled, reloaded.Status)

	commands := commandsFor(t, db, terminal.ID)
	require.Len(t, commands, 2, "create plus cancel")
	assert.Equal(t, model.CmdCancelAd, commands[1].Type)
	payload := decodePayload(t, commands[1])
	assert.Equal(t, order.ID, payload["order_id"])
	assert.Len(t, payload, 1, "cancel carries only the order id")

	// A second cancellation is a conflict, and queues nothing.
	err = e.CancelAdOrder(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotCancellable)
	assert.Len(t, commandsFor(t, db, terminal.ID), 2)
}

func TestCancelBgOrder_TypeFollowsCategory(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	clip := seedFile(t, db, "clip.mp4", model.CategoryVideo)
	playlist := seedPlaylist(t, db, "videos", clip)
	terminal := seedTerminal(t, db, "k1", true)

	now := time.Now().UTC()
	orders, err := e.CreateBgOrders(ctx, BgOrderSpec{
		Name:        "loop",
		TerminalIDs: []string{terminal.ID},
		PlaylistID:  playlist.ID,
		StartAt:     now.Add(time.Hour),
		EndAt:       now.Add(2 * time.Hour),
		Category:    model.CategoryVideo,
	})
	require.NoError(t, err)

	require.NoError(t, e.CancelBgOrder(ctx, orders[0].ID))

	commands := commandsFor(t, db, terminal.ID)
	require.Len(t, commands, 2)
	assert.Equal(t, model.CmdCancelBgVideo, commands[1].Type)

	// Completed orders cannot be cancelled.
	require.NoError(t, db.Model(&model.BgOrder{}).
		Where("id = ?", orders[0].ID).
		Update("status", model.OrderCompleted).Error)
	err = e.CancelBgOrder(ctx, orders[0].ID)
	assert.ErrorIs(t, err, ErrOrderNotCancellable)
}

func TestAddPlaylistFiles_FanOutToLiveOrdersOnly(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	existing := seedFile(t, db, "a.mp4", model.CategoryAd)
	playlist := seedPlaylist(t, db, "ads", existing)
	live := seedTerminal(t, db, "live", true)
	done := seedTerminal(t, db, "done", true)

	orders, err := e.CreateAdOrders(ctx, adSpec(playlist, live.ID, done.ID))
	require.NoError(t, err)
	for _, order := range orders {
		if order.TerminalID == done.ID {
			require.NoError(t, db.Model(&model.AdOrder{}).
				Where("id = ?", order.ID).
				Update("status", model.OrderCompleted).Error)
		}
	}

	newFile := seedFile(t, db, "b.mp4", model.CategoryAd)
	fanned, err := e.AddPlaylistFiles(ctx, playlist.ID, []string{newFile.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, fanned, "completed orders are out of fan-out scope")

	commands := commandsFor(t, db, live.ID)
	require.Len(t, commands, 2, "create plus update")
	update := commands[1]
	assert.Equal(t, model.CmdUpdateAd, update.Type)

	payload := decodePayload(t, update)
	assert.Equal(t, "add_files", payload["update_type"])
	refs := payload["files"].([]any)
	require.Len(t, refs, 1)
	ref := refs[0].(map[string]any)
	assert.Equal(t, newFile.ID, ref["id"])
	assert.Equal(t, newFile.Hash, ref["hash"])

	// No update for the completed order's terminal.
	assert.Len(t, commandsFor(t, db, done.ID), 1)

	// Duplicates and category mismatches reject the whole request.
	_, err = e.AddPlaylistFiles(ctx, playlist.ID, []string{newFile.ID})
	var fieldErrs FieldErrors
	assert.ErrorAs(t, err, &fieldErrs)

	song := seedFile(t, db, "song.mp3", model.CategoryMusic)
	_, err = e.AddPlaylistFiles(ctx, playlist.ID, []string{song.ID})
	assert.ErrorAs(t, err, &fieldErrs)
}

func TestRemovePlaylistFiles_AbsentIdsSilentlyDropped(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	keep := seedFile(t, db, "keep.mp4", model.CategoryAd)
	drop := seedFile(t, db, "drop.mp4", model.CategoryAd)
	playlist := seedPlaylist(t, db, "ads", keep, drop)
	terminal := seedTerminal(t, db, "k1", true)

	_, err := e.CreateAdOrders(ctx, adSpec(playlist, terminal.ID))
	require.NoError(t, err)

	removed, fanned, err := e.RemovePlaylistFiles(ctx, playlist.ID, []string{drop.ID, "not-a-member"})
	require.NoError(t, err)
	assert.Equal(t, []string{drop.ID}, removed)
	assert.Equal(t, 1, fanned)

	commands := commandsFor(t, db, terminal.ID)
	require.Len(t, commands, 2)
	payload := decodePayload(t, commands[1])
	assert.Equal(t, "remove_files", payload["update_type"])
	ids := payload["files"].([]any)
	assert.Equal(t, []any{drop.ID}, ids, "only the ids actually removed are broadcast")

	// Removing only absent ids touches nothing and queues nothing.
	removed, fanned, err = e.RemovePlaylistFiles(ctx, playlist.ID, []string{"still-not-a-member"})
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Zero(t, fanned)
	assert.Len(t, commandsFor(t, db, terminal.ID), 2)
}

func TestDeletePlaylist_RefusedWhileOrdersLive(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	playlist := seedPlaylist(t, db, "ads", seedFile(t, db, "a.mp4", model.CategoryAd))
	terminal := seedTerminal(t, db, "k1", true)

	orders, err := e.CreateAdOrders(ctx, adSpec(playlist, terminal.ID))
	require.NoError(t, err)

	// A WAITING order still references the playlist.
	err = e.DeletePlaylist(ctx, playlist.ID)
	require.ErrorIs(t, err, ErrPlaylistInUse)
	assert.Contains(t, err.Error(), orders[0].ID, "the blocking order is named")

	var reloaded model.Playlist
	require.NoError(t, db.First(&reloaded, "id = ?", playlist.ID).Error)
	assert.True(t, reloaded.Active, "refused deletion leaves the playlist alone")

	// ON_AIR blocks just the same.
	require.NoError(t, db.Model(&model.AdOrder{}).
		Where("id = ?", orders[0].ID).
		Update("status", model.OrderOnAir).Error)
	assert.ErrorIs(t, e.DeletePlaylist(ctx, playlist.ID), ErrPlaylistInUse)

	// Once the order finished the playlist can go.
	require.NoError(t, db.Model(&model.AdOrder{}).
		Where("id = ?", orders[0].ID).
		Update("status", model.OrderCompleted).Error)
	require.NoError(t, e.DeletePlaylist(ctx, playlist.ID))

	require.NoError(t, db.First(&reloaded, "id = ?", playlist.ID).Error)
	assert.False(t, reloaded.Active)

	// Deleting again: the playlist is no longer active.
	assert.ErrorIs(t, e.DeletePlaylist(ctx, playlist.ID), ErrPlaylistNotFound)
}

func TestDeleteFile_CascadesThroughPlaylists(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	shared := seedFile(t, db, "shared.mp3", model.CategoryMusic)
	other := seedFile(t, db, "other.mp3", model.CategoryMusic)
	withOrder := seedPlaylist(t, db, "with-order", shared, other)
	idle := seedPlaylist(t, db, "idle", shared)
	terminal := seedTerminal(t, db, "k1", true)

	now := time.Now().UTC()
	_, err := e.CreateBgOrders(ctx, BgOrderSpec{
		Name:        "ambient",
		TerminalIDs: []string{terminal.ID},
		PlaylistID:  withOrder.ID,
		StartAt:     now.Add(time.Hour),
		EndAt:       now.Add(2 * time.Hour),
		Category:    model.CategoryMusic,
	})
	require.NoError(t, err)

	require.NoError(t, e.DeleteFile(ctx, shared.ID))

	// The file is gone from both playlists and inactive.
	var reloaded model.File
	require.NoError(t, db.First(&reloaded, "id = ?", shared.ID).Error)
	assert.False(t, reloaded.Active)
	for _, playlistID := range []string{withOrder.ID, idle.ID} {
		var count int64
		require.NoError(t, db.Table("playlist_files").
			Where("playlist_id = ? AND file_id = ?", playlistID, shared.ID).
			Count(&count).Error)
		assert.Zero(t, count, "membership removed from playlist %s", playlistID)
	}

	// The live order's terminal got a removal command of the right kind.
	commands := commandsFor(t, db, terminal.ID)
	require.Len(t, commands, 2)
	assert.Equal(t, model.CmdUpdateBgMusic, commands[1].Type)
	payload := decodePayload(t, commands[1])
	assert.Equal(t, "remove_files", payload["update_type"])
	assert.Equal(t, []any{shared.ID}, payload["files"])

	// Deleting again: the file is no longer active.
	err = e.DeleteFile(ctx, shared.ID)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestResendOrders_LiveOnly(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	playlist := seedPlaylist(t, db, "ads", seedFile(t, db, "a.mp4", model.CategoryAd))
	music := seedPlaylist(t, db, "music", seedFile(t, db, "t.mp3", model.CategoryMusic))
	terminal := seedTerminal(t, db, "k1", true)

	adOrders, err := e.CreateAdOrders(ctx, adSpec(playlist, terminal.ID))
	require.NoError(t, err)

	now := time.Now().UTC()
	bgOrders, err := e.CreateBgOrders(ctx, BgOrderSpec{
		Name:        "ambient",
		TerminalIDs: []string{terminal.ID},
		PlaylistID:  music.ID,
		StartAt:     now.Add(time.Hour),
		EndAt:       now.Add(2 * time.Hour),
		Category:    model.CategoryMusic,
	})
	require.NoError(t, err)

	// The background order finished; only the live ad order is resent.
	require.NoError(t, db.Model(&model.BgOrder{}).
		Where("id = ?", bgOrders[0].ID).
		Update("status", model.OrderCompleted).Error)

	queued, err := e.ResendOrders(ctx, terminal.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	commands := commandsFor(t, db, terminal.ID)
	require.Len(t, commands, 3, "two creates plus one resend")
	resent := commands[2]
	assert.Equal(t, model.CmdAd, resent.Type)
	payload := decodePayload(t, resent)
	assert.Equal(t, adOrders[0].ID, payload["order_id"])
}

func TestManifestSnapshotsPlaylistAtCreation(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	original := seedFile(t, db, "original.mp4", model.CategoryAd)
	playlist := seedPlaylist(t, db, "ads", original)
	terminal := seedTerminal(t, db, "k1", true)

	_, err := e.CreateAdOrders(ctx, adSpec(playlist, terminal.ID))
	require.NoError(t, err)

	// Mutate the playlist after the fact. The create command's payload is
	// immutable; the delta travels as a separate update command.
	added := seedFile(t, db, "added.mp4", model.CategoryAd)
	_, err = e.AddPlaylistFiles(ctx, playlist.ID, []string{added.ID})
	require.NoError(t, err)

	commands := commandsFor(t, db, terminal.ID)
	require.Len(t, commands, 2)

	createPayload := decodePayload(t, commands[0])
	manifest := createPayload["playlist"].(map[string]any)
	files := manifest["files"].([]any)
	require.Len(t, files, 1, "snapshot does not grow retroactively")
	assert.Equal(t, original.ID, files[0].(map[string]any)["id"])
}
