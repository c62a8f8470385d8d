package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"signage-fleet-backend/config"
	"signage-fleet-backend/internal/fleet"
	"signage-fleet-backend/internal/mw"
	"signage-fleet-backend/internal/store"
)

// NewRouter creates and configures a new Gin router. Dashboard reads get
// a short response cache; check-in and everything mutating stay uncached.
func NewRouter(cfg *config.Config, s store.Store, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	engine := fleet.NewEngine(s.DB())
	handler := NewHandler(s, engine, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/checkin", handler.PostCheckin)

		api.POST("/terminals", handler.PostTerminal)
		api.GET("/terminals", caching, handler.GetTerminals)
		api.GET("/terminals/:id", handler.GetTerminal)
		api.PATCH("/terminals/:id", handler.PatchTerminal)
		api.DELETE("/terminals/:id", handler.DeleteTerminal)
		api.GET("/terminals/:id/status_history", handler.GetTerminalStatusHistory)
		api.GET("/terminals/:id/commands", handler.GetTerminalCommands)
		api.POST("/terminals/:id/actions", handler.PostTerminalAction)
		api.POST("/terminals/:id/resend_orders", handler.PostTerminalResend)

		api.POST("/orders/ad", handler.PostAdOrders)
		api.GET("/orders/ad", handler.GetAdOrders)
		api.POST("/orders/ad/:id/cancel", handler.PostAdOrderCancel)
		api.POST("/orders/bg", handler.PostBgOrders)
		api.GET("/orders/bg", handler.GetBgOrders)
		api.POST("/orders/bg/:id/cancel", handler.PostBgOrderCancel)

		api.POST("/playlists", handler.PostPlaylist)
		api.GET("/playlists", caching, handler.GetPlaylists)
		api.GET("/playlists/:id", handler.GetPlaylist)
		api.DELETE("/playlists/:id", handler.DeletePlaylist)
		api.POST("/playlists/:id/files", handler.PostPlaylistFiles)
		api.DELETE("/playlists/:id/files", handler.DeletePlaylistFiles)

		api.POST("/files", handler.PostFile)
		api.GET("/files", caching, handler.GetFiles)
		api.DELETE("/files/:id", handler.DeleteFile)

		api.POST("/commands/:id/cancel", handler.PostCommandCancel)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
