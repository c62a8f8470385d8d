package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-fleet-backend/internal/model"
)

type createPlaylistRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	OwnerID     string   `json:"owner_id"`
	Files       []string `json:"files"`
}

// PostPlaylist creates a playlist. Initial members go through the same
// guarded add path as later mutations; the fan-out is a no-op since
// nothing can reference the playlist yet.
func (h *Handler) PostPlaylist(c *gin.Context) {
	var req createPlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	playlist := model.Playlist{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     req.OwnerID,
		Active:      true,
	}
	if err := h.store.DB().WithContext(ctx).Create(&playlist).Error; err != nil {
		respondError(c, err)
		return
	}

	if len(req.Files) > 0 {
		if _, err := h.engine.AddPlaylistFiles(ctx, playlist.ID, req.Files); err != nil {
			respondError(c, err)
			return
		}
	}

	var created model.Playlist
	if err := h.store.DB().WithContext(ctx).Preload("Files").First(&created, "id = ?", playlist.ID).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetPlaylists lists active playlists with members.
func (h *Handler) GetPlaylists(c *gin.Context) {
	var playlists []model.Playlist
	err := h.store.DB().WithContext(c.Request.Context()).
		Preload("Files", "active").
		Where("active").
		Order("name ASC").
		Find(&playlists).Error
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, playlists)
}

// GetPlaylist returns one playlist with members.
func (h *Handler) GetPlaylist(c *gin.Context) {
	var playlist model.Playlist
	err := h.store.DB().WithContext(c.Request.Context()).
		Preload("Files", "active").
		First(&playlist, "id = ?", c.Param("id")).Error
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, playlist)
}

// DeletePlaylist deactivates a playlist. The engine refuses while live
// orders still reference it, which maps to a 409 naming them.
func (h *Handler) DeletePlaylist(c *gin.Context) {
	if err := h.engine.DeletePlaylist(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type playlistFilesRequest struct {
	Files []string `json:"files" binding:"required"`
}

// PostPlaylistFiles adds files to a playlist and fans the membership delta
// out to terminals with live orders on it.
func (h *Handler) PostPlaylistFiles(c *gin.Context) {
	var req playlistFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fanned, err := h.engine.AddPlaylistFiles(c.Request.Context(), c.Param("id"), req.Files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": req.Files, "commands_queued": fanned})
}

// DeletePlaylistFiles removes files from a playlist. Ids that were not
// members come back in "ignored" rather than failing the request.
func (h *Handler) DeletePlaylistFiles(c *gin.Context) {
	var req playlistFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	removed, fanned, err := h.engine.RemovePlaylistFiles(c.Request.Context(), c.Param("id"), req.Files)
	if err != nil {
		respondError(c, err)
		return
	}

	wasRemoved := make(map[string]bool, len(removed))
	for _, id := range removed {
		wasRemoved[id] = true
	}
	var ignored []string
	for _, id := range req.Files {
		if !wasRemoved[id] {
			ignored = append(ignored, id)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"removed":         removed,
		"ignored":         ignored,
		"commands_queued": fanned,
	})
}
