package fleet

import (
	"encoding/json"
	"fmt"
	"time"

	"signage-fleet-backend/internal/model"
)

// FileRef is the id+hash pair terminals use to locate and verify one
// playlist member.
type FileRef struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

func fileRefs(files []model.File) []FileRef {
	refs := make([]FileRef, 0, len(files))
	for _, f := range files {
		refs = append(refs, FileRef{ID: f.ID, Hash: f.Hash})
	}
	return refs
}

// playlistManifest is the playlist snapshot embedded in a create command.
// It reflects membership at command creation time; later membership changes
// travel as separate update commands.
type playlistManifest struct {
	ID     string     `json:"id"`
	Files  []FileRef  `json:"files"`
	Slides model.JSON `json:"slides,omitempty"`
}

// createManifest is the self-contained payload of an order create command.
type createManifest struct {
	OrderID           string                 `json:"order_id"`
	BroadcastInterval string                 `json:"broadcast_interval"`
	OrderParameters   model.JSON             `json:"order_parameters,omitempty"`
	BroadcastType     *model.BroadcastType   `json:"broadcast_type,omitempty"`
	Category          *model.ContentCategory `json:"type,omitempty"`
	Playlist          playlistManifest       `json:"playlist"`
}

// cancelManifest tells the terminal which order to take off air. The
// terminal already holds everything else from the create command.
type cancelManifest struct {
	OrderID string `json:"order_id"`
}

// updateManifest carries one playlist membership delta to a terminal with
// an active order on that playlist.
type updateManifest struct {
	OrderID    string `json:"order_id"`
	UpdateType string `json:"update_type"`
	Files      any    `json:"files"`
}

const (
	updateAddFiles    = "add_files"
	updateRemoveFiles = "remove_files"
)

const intervalLayout = "2006-01-02 15:04:05"

func broadcastInterval(start, end time.Time) string {
	return start.UTC().Format(intervalLayout) + "-" + end.UTC().Format(intervalLayout)
}

func adCreateCommand(order *model.AdOrder, playlist *model.Playlist) (model.Command, error) {
	bt := order.BroadcastType
	manifest := createManifest{
		OrderID:           order.ID,
		BroadcastInterval: broadcastInterval(order.StartAt, order.EndAt),
		OrderParameters:   order.Parameters,
		BroadcastType:     &bt,
		Playlist: playlistManifest{
			ID:     playlist.ID,
			Files:  fileRefs(playlist.Files),
			Slides: order.Slides,
		},
	}
	return buildCommand(order.TerminalID, order.OwnerID, model.CmdAd, manifest)
}

func bgCreateCommand(order *model.BgOrder, playlist *model.Playlist) (model.Command, error) {
	cmdType, err := BgCreateType(order.Category)
	if err != nil {
		return model.Command{}, err
	}
	category := order.Category
	manifest := createManifest{
		OrderID:           order.ID,
		BroadcastInterval: broadcastInterval(order.StartAt, order.EndAt),
		OrderParameters:   order.Parameters,
		Category:          &category,
		Playlist: playlistManifest{
			ID:    playlist.ID,
			Files: fileRefs(playlist.Files),
		},
	}
	return buildCommand(order.TerminalID, order.OwnerID, cmdType, manifest)
}

func buildCommand(terminalID, ownerID string, cmdType model.CommandType, manifest any) (model.Command, error) {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return model.Command{}, fmt.Errorf("failed to encode command manifest: %w", err)
	}
	return model.Command{
		TerminalID: terminalID,
		OwnerID:    ownerID,
		Type:       cmdType,
		Parameters: raw,
	}, nil
}
