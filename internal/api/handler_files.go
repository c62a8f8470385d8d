package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"signage-fleet-backend/internal/model"
)

type registerFileRequest struct {
	Name     string                `json:"name" binding:"required"`
	OwnerID  string                `json:"owner_id"`
	Category model.ContentCategory `json:"category"`
	MD5      string                `json:"md5" binding:"required"`
	SHA256   string                `json:"sha256" binding:"required"`
	Size     int64                 `json:"size"`
}

// PostFile registers a media asset. The bytes live in external storage;
// registration records identity and digests only. A duplicate digest pair
// is a conflict, not a second copy.
func (h *Handler) PostFile(c *gin.Context) {
	var req registerFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Category < model.CategoryMusic || req.Category > model.CategoryAd {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown content category"})
		return
	}

	file := model.File{
		Name:     req.Name,
		OwnerID:  req.OwnerID,
		Category: req.Category,
		MD5:      req.MD5,
		SHA256:   req.SHA256,
		Size:     req.Size,
		Active:   true,
	}
	if err := h.store.DB().WithContext(c.Request.Context()).Create(&file).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "UNIQUE") {
			c.JSON(http.StatusConflict, gin.H{"error": "a file with this content is already registered"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

// GetFiles lists active files, optionally filtered by category.
func (h *Handler) GetFiles(c *gin.Context) {
	q := h.store.DB().WithContext(c.Request.Context()).Where("active")
	if categoryParam := c.Query("category"); categoryParam != "" {
		category, err := strconv.Atoi(categoryParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category filter"})
			return
		}
		q = q.Where("category = ?", model.ContentCategory(category))
	}

	var files []model.File
	if err := q.Order("name ASC").Find(&files).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// DeleteFile soft-deletes a file, cascading through every playlist that
// holds it and fanning removal commands out to affected terminals.
func (h *Handler) DeleteFile(c *gin.Context) {
	if err := h.engine.DeleteFile(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
