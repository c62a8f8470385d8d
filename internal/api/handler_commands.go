package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"signage-fleet-backend/internal/model"
)

// GetTerminalCommands lists a terminal's command ledger, newest first,
// optionally filtered by status.
func (h *Handler) GetTerminalCommands(c *gin.Context) {
	q := h.store.DB().WithContext(c.Request.Context()).
		Where("terminal_id = ?", c.Param("id"))
	if statusParam := c.Query("status"); statusParam != "" {
		status, err := strconv.Atoi(statusParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		q = q.Where("status = ?", model.CommandStatus(status))
	}

	var commands []model.Command
	if err := q.Order("created_at DESC").Find(&commands).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commands)
}

// PostCommandCancel cancels a command the terminal has not picked up yet.
// Anything past PENDING is already on (or through) the wire and conflicts.
func (h *Handler) PostCommandCancel(c *gin.Context) {
	if err := h.store.CancelCommand(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
