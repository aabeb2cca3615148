package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ticketflow/backend/internal/gateway"
	"github.com/ticketflow/backend/internal/service"
	"github.com/ticketflow/backend/internal/store"
)

type Handler struct {
	Lifecycle *service.Lifecycle
	Relay     *service.Relay
	Settings  *store.SettingsStore
	Tickets   *store.TicketStore
	Gateway   gateway.Provisioner
	Validator *validator.Validate
	Logger    zerolog.Logger
	AdminKey  string
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError maps domain errors to the operator-facing envelope. The
// raw error text never reaches the response for remote/store failures.
func writeServiceError(c *gin.Context, err error) {
	var alreadyOpen *service.AlreadyOpenError
	switch {
	case errors.As(err, &alreadyOpen):
		writeError(c, http.StatusConflict, "CONFLICT", "You already have an open ticket", gin.H{"channel_id": alreadyOpen.ChannelID})
	case errors.Is(err, service.ErrInvalidCategory):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "That ticket section is not usable", nil)
	case errors.Is(err, service.ErrCannotInfer):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "This channel does not look like an active ticket", nil)
	case errors.Is(err, service.ErrAlreadyArchived):
		writeError(c, http.StatusConflict, "CONFLICT", "This ticket is already archived", nil)
	case errors.Is(err, service.ErrExpired):
		writeError(c, http.StatusGone, "EXPIRED", "The confirmation window has passed, request the close again", nil)
	case errors.Is(err, service.ErrActorMismatch):
		writeError(c, http.StatusForbidden, "FORBIDDEN", "Only the requesting member can confirm or cancel", nil)
	case errors.Is(err, store.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", "That key is already in use", nil)
	case errors.Is(err, store.ErrInvalid):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid input", nil)
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case errors.Is(err, gateway.ErrForbidden):
		writeError(c, http.StatusForbidden, "FORBIDDEN", "The platform denied the action", nil)
	case errors.Is(err, gateway.ErrBlocked):
		writeError(c, http.StatusConflict, "CONFLICT", "The member does not accept private messages", nil)
	case errors.Is(err, gateway.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Not found on the platform", nil)
	default:
		writeError(c, http.StatusBadGateway, "GATEWAY_ERROR", "The operation could not be completed", nil)
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if _, err := h.Settings.Settings(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "STORE_ERROR", "Settings store unavailable", nil)
		return
	}
	if err := h.Gateway.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "GATEWAY_ERROR", "Platform gateway unreachable", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CategoriesList(c *gin.Context) {
	keys, defs, err := h.Settings.Categories(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "STORE_ERROR", "Failed to list categories", nil)
		return
	}
	items := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		def := defs[key]
		items = append(items, gin.H{"key": key, "name": def.Name, "emoji": def.Emoji})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type createCategoryRequest struct {
	Key         string `json:"key" validate:"required"`
	DisplayName string `json:"display_name" validate:"required"`
	Emoji       string `json:"emoji"`
}

func (h *Handler) CategoryCreate(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "key and display_name are required", nil)
		return
	}

	key, def, err := h.Lifecycle.CreateCategory(c.Request.Context(), req.Key, req.DisplayName, req.Emoji)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"key":              key,
		"name":             def.Name,
		"emoji":            def.Emoji,
		"group_id":         def.GroupID,
		"archive_group_id": def.ArchiveGroupID,
	})
}

type openTicketRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	UserHandle  string `json:"user_handle" validate:"required"`
	CategoryKey string `json:"category_key" validate:"required"`
}

func (h *Handler) TicketOpen(c *gin.Context) {
	var req openTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "user_id, user_handle and category_key are required", nil)
		return
	}

	result, err := h.Lifecycle.Open(c.Request.Context(), req.UserID, req.UserHandle, req.CategoryKey)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type closeTicketRequest struct {
	ActorID     string `json:"actor_id" validate:"required"`
	ChannelName string `json:"channel_name" validate:"required"`
}

func (h *Handler) TicketCloseRequest(c *gin.Context) {
	var req closeTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "actor_id and channel_name are required", nil)
		return
	}

	proposal, err := h.Lifecycle.ProposeClose(c.Request.Context(), c.Param("channel_id"), req.ChannelName, req.ActorID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

type confirmCloseRequest struct {
	Token   string `json:"token" validate:"required"`
	ActorID string `json:"actor_id" validate:"required"`
}

func (h *Handler) TicketCloseConfirm(c *gin.Context) {
	var req confirmCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "token and actor_id are required", nil)
		return
	}

	result, err := h.Lifecycle.ConfirmClose(c.Request.Context(), req.Token, req.ActorID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) TicketCloseCancel(c *gin.Context) {
	var req confirmCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "token and actor_id are required", nil)
		return
	}

	if err := h.Lifecycle.CancelClose(req.Token, req.ActorID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

type replyRequest struct {
	ActorID   string `json:"actor_id" validate:"required"`
	ActorName string `json:"actor_name" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

func (h *Handler) TicketReply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "actor_id, actor_name and message are required", nil)
		return
	}

	err := h.Lifecycle.ReplyToOwner(c.Request.Context(), c.Param("channel_id"), req.ActorID, req.ActorName, req.Message)
	if err != nil {
		if errors.Is(err, gateway.ErrBlocked) {
			writeError(c, http.StatusConflict, "CONFLICT", "The owner does not accept private messages; the reply was posted in the ticket channel", nil)
			return
		}
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

type setupRequest struct {
	ChannelID   string `json:"channel_id" validate:"required"`
	Message     string `json:"message" validate:"required"`
	ButtonLabel string `json:"button_label" validate:"required"`
}

func (h *Handler) Setup(c *gin.Context) {
	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "channel_id, message and button_label are required", nil)
		return
	}

	if err := h.Lifecycle.PostEntryMessage(c.Request.Context(), req.ChannelID, req.Message, req.ButtonLabel); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "posted"})
}

func (h *Handler) TicketsList(c *gin.Context) {
	index, err := h.Tickets.All(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "STORE_ERROR", "Failed to list tickets", nil)
		return
	}
	items := make([]gin.H, 0, len(index))
	for channelID, rec := range index {
		items = append(items, gin.H{
			"channel_id":   channelID,
			"user_id":      rec.UserID,
			"category_key": rec.CategoryKey,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
