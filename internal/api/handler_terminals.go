package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-fleet-backend/internal/model"
	"signage-fleet-backend/internal/store"
)

type createTerminalRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	OwnerID     string          `json:"owner_id"`
	Timezone    string          `json:"timezone"`
	Settings    json.RawMessage `json:"settings"`
}

// PostTerminal registers a new terminal. The article number is allocated
// by the store under lock, so concurrent registrations get distinct
// consecutive numbers.
func (h *Handler) PostTerminal(c *gin.Context) {
	var req createTerminalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := model.ValidateSchedule(model.Schedule(req.Settings)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	terminal := model.Terminal{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     req.OwnerID,
		Settings:    model.Schedule(req.Settings),
		Active:      true,
	}
	if req.Timezone != "" {
		terminal.Timezone = req.Timezone
	}

	if err := h.store.CreateTerminal(c.Request.Context(), &terminal); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, terminal)
}

// terminalResponse flattens a terminal with its availability row.
type terminalResponse struct {
	model.Terminal
	Status     string `json:"status"`
	LastSeenAt string `json:"last_seen_at,omitempty"`
}

// GetTerminals lists active terminals with their current availability.
func (h *Handler) GetTerminals(c *gin.Context) {
	ctx := c.Request.Context()
	db := h.store.DB()

	var terminals []model.Terminal
	if err := db.WithContext(ctx).Where("active").Order("article ASC").Find(&terminals).Error; err != nil {
		respondError(c, err)
		return
	}

	ids := make([]string, len(terminals))
	for i, t := range terminals {
		ids[i] = t.ID
	}
	var availability []model.Availability
	if len(ids) > 0 {
		if err := db.WithContext(ctx).Where("terminal_id IN ?", ids).Find(&availability).Error; err != nil {
			respondError(c, err)
			return
		}
	}
	byTerminal := make(map[string]model.Availability, len(availability))
	for _, a := range availability {
		byTerminal[a.TerminalID] = a
	}

	response := make([]terminalResponse, 0, len(terminals))
	for _, t := range terminals {
		r := terminalResponse{Terminal: t, Status: model.StatusOfflineLong.String()}
		if a, ok := byTerminal[t.ID]; ok {
			r.Status = a.Status.String()
			r.LastSeenAt = a.LastSeenAt.Format("2006-01-02T15:04:05Z07:00")
		}
		response = append(response, r)
	}
	c.JSON(http.StatusOK, response)
}

// GetTerminal returns one terminal with its availability.
func (h *Handler) GetTerminal(c *gin.Context) {
	ctx := c.Request.Context()
	db := h.store.DB()

	var terminal model.Terminal
	if err := db.WithContext(ctx).First(&terminal, "id = ?", c.Param("id")).Error; err != nil {
		respondError(c, err)
		return
	}

	r := terminalResponse{Terminal: terminal, Status: model.StatusOfflineLong.String()}
	var a model.Availability
	if err := db.WithContext(ctx).First(&a, "terminal_id = ?", terminal.ID).Error; err == nil {
		r.Status = a.Status.String()
		r.LastSeenAt = a.LastSeenAt.Format("2006-01-02T15:04:05Z07:00")
	}
	c.JSON(http.StatusOK, r)
}

type patchTerminalRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Timezone    *string         `json:"timezone"`
	Active      *bool           `json:"active"`
	Settings    json.RawMessage `json:"settings"`
}

// PatchTerminal updates terminal metadata. A settings change also queues a
// settings push command so the running terminal picks the new schedule up
// on its next check-in.
func (h *Handler) PatchTerminal(c *gin.Context) {
	var req patchTerminalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := model.ValidateSchedule(model.Schedule(req.Settings)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	db := h.store.DB()

	var terminal model.Terminal
	if err := db.WithContext(ctx).First(&terminal, "id = ?", c.Param("id")).Error; err != nil {
		respondError(c, err)
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Timezone != nil {
		updates["timezone"] = *req.Timezone
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(req.Settings) > 0 {
		updates["settings"] = model.JSON(req.Settings)
	}
	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(&terminal).Updates(updates).Error; err != nil {
			respondError(c, err)
			return
		}
	}

	if len(req.Settings) > 0 {
		cmd := model.Command{
			TerminalID: terminal.ID,
			OwnerID:    terminal.OwnerID,
			Type:       model.CmdSettingsPush,
			Parameters: model.JSON(req.Settings),
		}
		if err := h.store.CreateCommands(ctx, []model.Command{cmd}); err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, terminal)
}

// DeleteTerminal deactivates a terminal. The row stays for order and
// history referential integrity.
func (h *Handler) DeleteTerminal(c *gin.Context) {
	res := h.store.DB().WithContext(c.Request.Context()).
		Model(&model.Terminal{}).
		Where("id = ? AND active", c.Param("id")).
		Update("active", false)
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown terminal"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTerminalStatusHistory returns the availability transition log.
func (h *Handler) GetTerminalStatusHistory(c *gin.Context) {
	history, err := store.StatusHistoryForTerminal(c.Request.Context(), h.store.DB(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

type terminalActionRequest struct {
	Action     string          `json:"action" binding:"required"`
	Parameters json.RawMessage `json:"parameters"`
}

var actionCommandTypes = map[string]model.CommandType{
	"reboot":          model.CmdReboot,
	"software_update": model.CmdSoftwareUpdate,
	"shell_custom":    model.CmdShellCustom,
}

// PostTerminalAction queues an administrative command for a terminal.
// Reboot and software update are deduplicated: while one is still pending
// a second request is rejected instead of queueing a duplicate.
func (h *Handler) PostTerminalAction(c *gin.Context) {
	var req terminalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmdType, ok := actionCommandTypes[req.Action]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown action %q", req.Action)})
		return
	}
	if cmdType == model.CmdShellCustom && len(req.Parameters) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shell_custom requires parameters"})
		return
	}

	ctx := c.Request.Context()
	db := h.store.DB()

	var terminal model.Terminal
	if err := db.WithContext(ctx).First(&terminal, "id = ? AND active", c.Param("id")).Error; err != nil {
		respondError(c, err)
		return
	}

	if cmdType == model.CmdReboot || cmdType == model.CmdSoftwareUpdate {
		var pending int64
		err := db.WithContext(ctx).Model(&model.Command{}).
			Where("terminal_id = ? AND type = ? AND status = ?", terminal.ID, cmdType, model.CommandPending).
			Count(&pending).Error
		if err != nil {
			respondError(c, err)
			return
		}
		if pending > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("a %s command is already pending", req.Action)})
			return
		}
	}

	cmd := model.Command{
		TerminalID: terminal.ID,
		OwnerID:    terminal.OwnerID,
		Type:       cmdType,
		Parameters: model.JSON(req.Parameters),
	}
	if err := h.store.CreateCommands(ctx, []model.Command{cmd}); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cmd)
}

// PostTerminalResend re-queues create commands for every live order on the
// terminal, for recovery after a local state loss.
func (h *Handler) PostTerminalResend(c *gin.Context) {
	queued, err := h.engine.ResendOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands_queued": queued})
}
