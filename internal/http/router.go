package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ticketflow/backend/internal/config"
	"github.com/ticketflow/backend/internal/gateway"
	"github.com/ticketflow/backend/internal/http/handlers"
	"github.com/ticketflow/backend/internal/http/middleware"
	"github.com/ticketflow/backend/internal/service"
	"github.com/ticketflow/backend/internal/store"
)

func Router(cfg config.Config, settings *store.SettingsStore, tickets *store.TicketStore, gw gateway.Provisioner, lifecycle *service.Lifecycle, relay *service.Relay, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Lifecycle: lifecycle,
		Relay:     relay,
		Settings:  settings,
		Tickets:   tickets,
		Gateway:   gw,
		Validator: validator.New(),
		Logger:    logger,
		AdminKey:  cfg.AdminKey,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/categories", h.CategoriesList)
		api.GET("/tickets", h.TicketsList)
		api.POST("/tickets", h.TicketOpen)
		api.POST("/tickets/:channel_id/close", h.TicketCloseRequest)
		api.POST("/closes/confirm", h.TicketCloseConfirm)
		api.POST("/closes/cancel", h.TicketCloseCancel)
		api.POST("/events/channel-message", h.EventChannelMessage)
		api.POST("/events/direct-message", h.EventDirectMessage)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/categories", h.CategoryCreate)
		admin.POST("/tickets/:channel_id/reply", h.TicketReply)
		admin.POST("/setup", h.Setup)
	}

	return r
}
