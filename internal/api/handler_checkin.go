package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"signage-fleet-backend/internal/model"
	"signage-fleet-backend/internal/store"
)

type checkinRequest struct {
	TerminalID      string                      `json:"terminal_id" binding:"required"`
	Version         string                      `json:"version"`
	HWInfo          json.RawMessage             `json:"hw_info"`
	CommandStatuses []store.CommandStatusReport `json:"command_statuses"`
	Statistic       json.RawMessage             `json:"statistic"`
}

// PostCheckin is the terminal-facing heartbeat endpoint. One call reports
// software/hardware state and command outcomes, refreshes the liveness
// timestamp and pulls the pending command queue. Liveness classification
// itself stays with the sweep; check-in only records the timestamp.
func (h *Handler) PostCheckin(c *gin.Context) {
	var req checkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	db := h.store.DB()

	var terminal model.Terminal
	err := db.WithContext(ctx).First(&terminal, "id = ? AND active", req.TerminalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown terminal"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	updates := map[string]any{}
	if req.Version != "" && req.Version != terminal.Version {
		updates["version"] = req.Version
	}
	if len(req.HWInfo) > 0 {
		updates["hw_info"] = model.JSON(req.HWInfo)
	}
	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(&terminal).Updates(updates).Error; err != nil {
			respondError(c, err)
			return
		}
	}

	if err := h.store.ReportCommandStatuses(ctx, terminal.ID, req.CommandStatuses); err != nil {
		respondError(c, err)
		return
	}

	if len(req.Statistic) > 0 {
		// Playback statistics are accepted for forward compatibility but
		// not yet persisted.
		log.Printf("check-in: terminal %s reported %d bytes of statistics", terminal.ID, len(req.Statistic))
	}

	if err := h.store.RecordHeartbeat(ctx, terminal.ID, time.Now().UTC()); err != nil {
		respondError(c, err)
		return
	}

	commands, err := h.store.PendingCommands(ctx, terminal.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"commands": commands})
}
