package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"signage-fleet-backend/internal/fleet"
	"signage-fleet-backend/internal/model"
)

// PostAdOrders places an ad order across a set of terminals. The request
// fans out into one order row and one create command per active target.
func (h *Handler) PostAdOrders(c *gin.Context) {
	var spec fleet.AdOrderSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orders, err := h.engine.CreateAdOrders(c.Request.Context(), spec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"orders": orders})
}

// PostBgOrders places a background order across a set of terminals.
func (h *Handler) PostBgOrders(c *gin.Context) {
	var spec fleet.BgOrderSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orders, err := h.engine.CreateBgOrders(c.Request.Context(), spec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"orders": orders})
}

// orderFilter applies the shared terminal/status list filters.
func orderFilter(c *gin.Context, q *gorm.DB) (*gorm.DB, bool) {
	if terminalID := c.Query("terminal"); terminalID != "" {
		q = q.Where("terminal_id = ?", terminalID)
	}
	if statusParam := c.Query("status"); statusParam != "" {
		status, err := strconv.Atoi(statusParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return nil, false
		}
		q = q.Where("status = ?", model.OrderStatus(status))
	}
	return q, true
}

// GetAdOrders lists ad orders, optionally filtered by terminal and status.
func (h *Handler) GetAdOrders(c *gin.Context) {
	q, ok := orderFilter(c, h.store.DB().WithContext(c.Request.Context()))
	if !ok {
		return
	}
	var orders []model.AdOrder
	if err := q.Order("created_at DESC").Find(&orders).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetBgOrders lists background orders.
func (h *Handler) GetBgOrders(c *gin.Context) {
	q, ok := orderFilter(c, h.store.DB().WithContext(c.Request.Context()))
	if !ok {
		return
	}
	var orders []model.BgOrder
	if err := q.Order("created_at DESC").Find(&orders).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// PostAdOrderCancel cancels one ad order and queues the cancel command.
func (h *Handler) PostAdOrderCancel(c *gin.Context) {
	if err := h.engine.CancelAdOrder(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostBgOrderCancel cancels one background order.
func (h *Handler) PostBgOrderCancel(c *gin.Context) {
	if err := h.engine.CancelBgOrder(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
