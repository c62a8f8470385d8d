package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"signage-fleet-backend/internal/fleet"
	"signage-fleet-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	engine  *fleet.Engine
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, engine *fleet.Engine, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		engine:  engine,
		webpush: webpushOptions,
	}
}

// respondError maps domain errors onto HTTP statuses. Validation failures
// surface the per-field message map so a client can show all problems at
// once.
func respondError(c *gin.Context, err error) {
	var fieldErrs fleet.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrs})
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, fleet.ErrPlaylistNotFound),
		errors.Is(err, fleet.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, fleet.ErrNoTargetTerminals):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, fleet.ErrOrderNotCancellable),
		errors.Is(err, fleet.ErrPlaylistInUse),
		errors.Is(err, store.ErrCommandNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
