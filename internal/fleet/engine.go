package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"signage-fleet-backend/internal/model"
)

// Engine implements order placement, cancellation and the consistency
// fan-out that keeps terminal-side playlist copies in step with the
// backend. Every operation that both writes rows and queues commands does
// so in one transaction, so a terminal polling mid-operation never sees a
// command without its order or vice versa.
type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

var (
	// ErrOrderNotCancellable is returned for orders already COMPLETED,
	// CANCELLED or ERROR.
	ErrOrderNotCancellable = errors.New("order is no longer cancellable")

	// ErrNoTargetTerminals means none of the requested terminal ids
	// resolved to an active terminal.
	ErrNoTargetTerminals = errors.New("no active terminals match the request")

	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrFileNotFound     = errors.New("file not found")

	// ErrPlaylistInUse is returned when deleting a playlist that WAITING
	// or ON_AIR orders still reference.
	ErrPlaylistInUse = errors.New("playlist is referenced by live orders")
)

// AdOrderSpec is one ad placement request. It fans out into one AdOrder
// row and one command per targeted terminal.
type AdOrderSpec struct {
	Name          string                     `json:"name" binding:"required"`
	Description   string                     `json:"description"`
	OwnerID       string                     `json:"owner_id"`
	TerminalIDs   []string                   `json:"terminals" binding:"required"`
	PlaylistID    string                     `json:"playlist" binding:"required"`
	StartAt       time.Time                  `json:"start_at" binding:"required"`
	EndAt         time.Time                  `json:"end_at" binding:"required"`
	BroadcastType model.BroadcastType        `json:"broadcast_type"`
	Parameters    map[string]any             `json:"parameters"`
	Slides        map[string]json.RawMessage `json:"slides"`
}

// BgOrderSpec is one background placement request.
type BgOrderSpec struct {
	Name        string                `json:"name" binding:"required"`
	Description string                `json:"description"`
	OwnerID     string                `json:"owner_id"`
	TerminalIDs []string              `json:"terminals" binding:"required"`
	PlaylistID  string                `json:"playlist" binding:"required"`
	StartAt     time.Time             `json:"start_at" binding:"required"`
	EndAt       time.Time             `json:"end_at" binding:"required"`
	Category    model.ContentCategory `json:"category"`
	Parameters  map[string]any        `json:"parameters"`
}

// CreateAdOrders validates the spec, creates one WAITING order per active
// target terminal and queues the matching create command for each. The
// command payload snapshots the playlist as it is now.
func (e *Engine) CreateAdOrders(ctx context.Context, spec AdOrderSpec) ([]model.AdOrder, error) {
	params, err := ValidateAdParameters(spec.Parameters, spec.BroadcastType)
	if err != nil {
		return nil, err
	}
	if spec.EndAt.Before(spec.StartAt) || spec.EndAt.Equal(spec.StartAt) {
		return nil, FieldErrors{"end_at": {"must be after start_at"}}
	}

	var orders []model.AdOrder
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		playlist, err := loadPlaylist(tx, spec.PlaylistID)
		if err != nil {
			return err
		}
		if err := e.checkSlides(tx, spec.Slides, playlist); err != nil {
			return err
		}
		slides, err := encodeSlides(spec.Slides)
		if err != nil {
			return err
		}
		terminals, err := activeTerminals(tx, spec.TerminalIDs)
		if err != nil {
			return err
		}

		commands := make([]model.Command, 0, len(terminals))
		for _, terminal := range terminals {
			order := model.AdOrder{
				OrderBase: model.OrderBase{
					Name:        spec.Name,
					Description: spec.Description,
					OwnerID:     spec.OwnerID,
					TerminalID:  terminal.ID,
					PlaylistID:  playlist.ID,
					StartAt:     spec.StartAt,
					EndAt:       spec.EndAt,
					Status:      model.OrderWaiting,
					Parameters:  params,
				},
				BroadcastType: spec.BroadcastType,
				Slides:        slides,
			}
			if err := tx.Create(&order).Error; err != nil {
				return fmt.Errorf("failed to create ad order for terminal %s: %w", terminal.ID, err)
			}
			cmd, err := adCreateCommand(&order, playlist)
			if err != nil {
				return err
			}
			commands = append(commands, cmd)
			orders = append(orders, order)
		}
		return tx.Create(&commands).Error
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateBgOrders is the background counterpart of CreateAdOrders. The
// playlist must be non-empty and homogeneous in the order's category.
func (e *Engine) CreateBgOrders(ctx context.Context, spec BgOrderSpec) ([]model.BgOrder, error) {
	if _, err := BgCreateType(spec.Category); err != nil {
		return nil, err
	}
	if spec.EndAt.Before(spec.StartAt) || spec.EndAt.Equal(spec.StartAt) {
		return nil, FieldErrors{"end_at": {"must be after start_at"}}
	}
	params, err := encodeBgParameters(spec.Parameters)
	if err != nil {
		return nil, err
	}

	var orders []model.BgOrder
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		playlist, err := loadPlaylist(tx, spec.PlaylistID)
		if err != nil {
			return err
		}
		if err := ValidateBgPlaylist(playlist, spec.Category); err != nil {
			return err
		}
		terminals, err := activeTerminals(tx, spec.TerminalIDs)
		if err != nil {
			return err
		}

		commands := make([]model.Command, 0, len(terminals))
		for _, terminal := range terminals {
			order := model.BgOrder{
				OrderBase: model.OrderBase{
					Name:        spec.Name,
					Description: spec.Description,
					OwnerID:     spec.OwnerID,
					TerminalID:  terminal.ID,
					PlaylistID:  playlist.ID,
					StartAt:     spec.StartAt,
					EndAt:       spec.EndAt,
					Status:      model.OrderWaiting,
					Parameters:  params,
				},
				Category: spec.Category,
			}
			if err := tx.Create(&order).Error; err != nil {
				return fmt.Errorf("failed to create bg order for terminal %s: %w", terminal.ID, err)
			}
			cmd, err := bgCreateCommand(&order, playlist)
			if err != nil {
				return err
			}
			commands = append(commands, cmd)
			orders = append(orders, order)
		}
		return tx.Create(&commands).Error
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelAdOrder takes a WAITING or ON_AIR ad order off air: it queues the
// cancel command and flips the order to CANCELLED in one transaction.
func (e *Engine) CancelAdOrder(ctx context.Context, orderID string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.AdOrder
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return err
		}
		if !order.Cancellable() {
			return fmt.Errorf("%w: status is %s", ErrOrderNotCancellable, order.Status)
		}
		cmd, err := buildCommand(order.TerminalID, order.OwnerID, model.CmdCancelAd, cancelManifest{OrderID: order.ID})
		if err != nil {
			return err
		}
		if err := tx.Create(&cmd).Error; err != nil {
			return err
		}
		return tx.Model(&order).Update("status", model.OrderCancelled).Error
	})
}

// CancelBgOrder cancels a background order; the command type follows the
// order's content category.
func (e *Engine) CancelBgOrder(ctx context.Context, orderID string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.BgOrder
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return err
		}
		if !order.Cancellable() {
			return fmt.Errorf("%w: status is %s", ErrOrderNotCancellable, order.Status)
		}
		cmdType, err := BgCommandType(order.Category, ActionCancel)
		if err != nil {
			return err
		}
		cmd, err := buildCommand(order.TerminalID, order.OwnerID, cmdType, cancelManifest{OrderID: order.ID})
		if err != nil {
			return err
		}
		if err := tx.Create(&cmd).Error; err != nil {
			return err
		}
		return tx.Model(&order).Update("status", model.OrderCancelled).Error
	})
}

// ResendOrders re-queues create commands for the given orders, for
// terminals that lost local state (reinstall, storage wipe). Only WAITING
// and ON_AIR orders are eligible; the rest are skipped. Returns the number
// of commands queued.
func (e *Engine) ResendOrders(ctx context.Context, terminalID string) (int, error) {
	var queued int
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var adOrders []model.AdOrder
		err := tx.Preload("Playlist.Files").
			Where("terminal_id = ? AND status IN ?", terminalID, liveStatuses()).
			Find(&adOrders).Error
		if err != nil {
			return fmt.Errorf("failed to fetch ad orders for resend: %w", err)
		}
		var bgOrders []model.BgOrder
		err = tx.Preload("Playlist.Files").
			Where("terminal_id = ? AND status IN ?", terminalID, liveStatuses()).
			Find(&bgOrders).Error
		if err != nil {
			return fmt.Errorf("failed to fetch bg orders for resend: %w", err)
		}

		var commands []model.Command
		for i := range adOrders {
			cmd, err := adCreateCommand(&adOrders[i], &adOrders[i].Playlist)
			if err != nil {
				return err
			}
			commands = append(commands, cmd)
		}
		for i := range bgOrders {
			cmd, err := bgCreateCommand(&bgOrders[i], &bgOrders[i].Playlist)
			if err != nil {
				return err
			}
			commands = append(commands, cmd)
		}
		if len(commands) == 0 {
			return nil
		}
		queued = len(commands)
		return tx.Create(&commands).Error
	})
	if err != nil {
		return 0, err
	}
	return queued, nil
}

// AddPlaylistFiles appends files to a playlist and fans an add_files
// update command out to every terminal with a live order on it. Duplicate
// members and category mismatches reject the whole request.
func (e *Engine) AddPlaylistFiles(ctx context.Context, playlistID string, fileIDs []string) (int, error) {
	var fanned int
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		playlist, err := loadPlaylist(tx, playlistID)
		if err != nil {
			return err
		}
		files, err := loadFiles(tx, fileIDs)
		if err != nil {
			return err
		}

		errs := FieldErrors{}
		members := make(map[string]bool, len(playlist.Files))
		category, hasCategory := playlistCategory(playlist)
		for _, f := range playlist.Files {
			members[f.ID] = true
		}
		for _, f := range files {
			if members[f.ID] {
				errs.Add("files", "file %q is already in the playlist", f.Name)
			}
			if !hasCategory {
				category, hasCategory = f.Category, true
			} else if f.Category != category {
				errs.Add("files", "file %q is %s, playlist holds %s", f.Name, f.Category, category)
			}
		}
		if err := errs.ErrOrNil(); err != nil {
			return err
		}

		if err := tx.Model(playlist).Association("Files").Append(&files); err != nil {
			return fmt.Errorf("failed to add files to playlist %s: %w", playlist.ID, err)
		}
		fanned, err = e.fanOutUpdate(tx, playlist.ID, updateAddFiles, fileRefs(files))
		return err
	})
	if err != nil {
		return 0, err
	}
	return fanned, nil
}

// RemovePlaylistFiles drops files from a playlist. Ids that are not
// members are silently ignored; the fan-out command lists only the ids
// actually removed, and no command is queued when nothing was.
func (e *Engine) RemovePlaylistFiles(ctx context.Context, playlistID string, fileIDs []string) (removed []string, fanned int, err error) {
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		playlist, err := loadPlaylist(tx, playlistID)
		if err != nil {
			return err
		}
		members := make(map[string]*model.File, len(playlist.Files))
		for i := range playlist.Files {
			members[playlist.Files[i].ID] = &playlist.Files[i]
		}

		var victims []model.File
		for _, id := range fileIDs {
			if f, ok := members[id]; ok {
				victims = append(victims, *f)
				removed = append(removed, id)
			}
		}
		if len(victims) == 0 {
			return nil
		}

		if err := tx.Model(playlist).Association("Files").Delete(&victims); err != nil {
			return fmt.Errorf("failed to remove files from playlist %s: %w", playlist.ID, err)
		}
		fanned, err = e.fanOutUpdate(tx, playlist.ID, updateRemoveFiles, removed)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return removed, fanned, nil
}

// DeletePlaylist deactivates a playlist. Deletion is refused while any
// WAITING or ON_AIR order still references it, naming the orders in the
// error; cancel or wait out those orders first.
func (e *Engine) DeletePlaylist(ctx context.Context, playlistID string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		playlist, err := loadPlaylist(tx, playlistID)
		if err != nil {
			return err
		}

		var holders []string
		var adOrders []model.AdOrder
		err = tx.Select("id", "name").
			Where("playlist_id = ? AND status IN ?", playlist.ID, liveStatuses()).
			Find(&adOrders).Error
		if err != nil {
			return fmt.Errorf("failed to check ad orders for playlist %s: %w", playlist.ID, err)
		}
		for _, order := range adOrders {
			holders = append(holders, fmt.Sprintf("%s (%s)", order.Name, order.ID))
		}
		var bgOrders []model.BgOrder
		err = tx.Select("id", "name").
			Where("playlist_id = ? AND status IN ?", playlist.ID, liveStatuses()).
			Find(&bgOrders).Error
		if err != nil {
			return fmt.Errorf("failed to check bg orders for playlist %s: %w", playlist.ID, err)
		}
		for _, order := range bgOrders {
			holders = append(holders, fmt.Sprintf("%s (%s)", order.Name, order.ID))
		}
		if len(holders) > 0 {
			return fmt.Errorf("%w: %s", ErrPlaylistInUse, strings.Join(holders, ", "))
		}

		return tx.Model(playlist).Update("active", false).Error
	})
}

// DeleteFile soft-deletes a file and cascades: the file is first removed
// from every playlist holding it, each removal fanning out to live orders,
// and only then marked inactive.
func (e *Engine) DeleteFile(ctx context.Context, fileID string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file model.File
		if err := tx.First(&file, "id = ? AND active", fileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
			}
			return err
		}

		var playlists []model.Playlist
		err := tx.Joins("JOIN playlist_files pf ON pf.playlist_id = playlists.id").
			Where("pf.file_id = ?", fileID).
			Find(&playlists).Error
		if err != nil {
			return fmt.Errorf("failed to find playlists holding file %s: %w", fileID, err)
		}

		for i := range playlists {
			if err := tx.Model(&playlists[i]).Association("Files").Delete(&file); err != nil {
				return fmt.Errorf("failed to remove file %s from playlist %s: %w", fileID, playlists[i].ID, err)
			}
			if _, err := e.fanOutUpdate(tx, playlists[i].ID, updateRemoveFiles, []string{fileID}); err != nil {
				return err
			}
		}

		return tx.Model(&file).Update("active", false).Error
	})
}

// fanOutUpdate queues one update command per live order referencing the
// playlist, across both order kinds. COMPLETED, CANCELLED and ERROR orders
// are out of scope: their terminals no longer hold the playlist.
func (e *Engine) fanOutUpdate(tx *gorm.DB, playlistID, updateType string, files any) (int, error) {
	var adOrders []model.AdOrder
	err := tx.Where("playlist_id = ? AND status IN ?", playlistID, liveStatuses()).Find(&adOrders).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ad orders for fan-out: %w", err)
	}
	var bgOrders []model.BgOrder
	err = tx.Where("playlist_id = ? AND status IN ?", playlistID, liveStatuses()).Find(&bgOrders).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch bg orders for fan-out: %w", err)
	}

	var commands []model.Command
	for _, order := range adOrders {
		cmd, err := buildCommand(order.TerminalID, order.OwnerID, model.CmdUpdateAd, updateManifest{
			OrderID:    order.ID,
			UpdateType: updateType,
			Files:      files,
		})
		if err != nil {
			return 0, err
		}
		commands = append(commands, cmd)
	}
	for _, order := range bgOrders {
		cmdType, err := BgCommandType(order.Category, ActionUpdate)
		if err != nil {
			return 0, err
		}
		cmd, err := buildCommand(order.TerminalID, order.OwnerID, cmdType, updateManifest{
			OrderID:    order.ID,
			UpdateType: updateType,
			Files:      files,
		})
		if err != nil {
			return 0, err
		}
		commands = append(commands, cmd)
	}

	if len(commands) == 0 {
		return 0, nil
	}
	if err := tx.Create(&commands).Error; err != nil {
		return 0, fmt.Errorf("failed to queue %s fan-out: %w", updateType, err)
	}
	return len(commands), nil
}

func liveStatuses() []model.OrderStatus {
	return []model.OrderStatus{model.OrderWaiting, model.OrderOnAir}
}

func loadPlaylist(tx *gorm.DB, id string) (*model.Playlist, error) {
	var playlist model.Playlist
	err := tx.Preload("Files", "active").First(&playlist, "id = ? AND active", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlaylistNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load playlist %s: %w", id, err)
	}
	return &playlist, nil
}

func loadFiles(tx *gorm.DB, ids []string) ([]model.File, error) {
	var files []model.File
	if err := tx.Where("id IN ? AND active", ids).Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to load files: %w", err)
	}
	if len(files) != len(ids) {
		found := make(map[string]bool, len(files))
		for _, f := range files {
			found[f.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, strings.Join(missing, ", "))
	}
	return files, nil
}

func activeTerminals(tx *gorm.DB, ids []string) ([]model.Terminal, error) {
	var terminals []model.Terminal
	err := tx.Where("id IN ? AND active", ids).Find(&terminals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load terminals: %w", err)
	}
	if len(terminals) == 0 {
		return nil, ErrNoTargetTerminals
	}
	return terminals, nil
}

// checkSlides rejects slide keys pointing outside the playlist, naming the
// offending files when they exist at all.
func (e *Engine) checkSlides(tx *gorm.DB, slides map[string]json.RawMessage, playlist *model.Playlist) error {
	offenders := ValidateSlides(slides, playlist)
	if len(offenders) == 0 {
		return nil
	}

	errs := FieldErrors{}
	for _, id := range offenders {
		var f model.File
		if err := tx.Select("name").First(&f, "id = ?", id).Error; err == nil {
			errs.Add("slides", "file %q is not in playlist %q", f.Name, playlist.Name)
		} else {
			errs.Add("slides", "file %s is not in playlist %q", id, playlist.Name)
		}
	}
	return errs
}

func playlistCategory(p *model.Playlist) (model.ContentCategory, bool) {
	if len(p.Files) == 0 {
		return 0, false
	}
	return p.Files[0].Category, true
}

func encodeSlides(slides map[string]json.RawMessage) (model.JSON, error) {
	if len(slides) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(slides)
	if err != nil {
		return nil, fmt.Errorf("failed to encode slides: %w", err)
	}
	return raw, nil
}

func encodeBgParameters(params map[string]any) (model.JSON, error) {
	if len(params) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	return raw, nil
}
