package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ticketflow/backend/internal/models"
)

// Event webhooks posted by the platform gateway. Relay failures are handled
// inside the relay itself; only malformed payloads and store breakage surface
// here, so the gateway never retries a message that was handled.

func (h *Handler) EventChannelMessage(c *gin.Context) {
	var ev models.ChannelMessageEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed event payload", nil)
		return
	}
	if ev.ChannelID == "" || ev.AuthorID == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "channel_id and author_id are required", nil)
		return
	}

	if err := h.Relay.ChannelMessage(c.Request.Context(), ev); err != nil {
		h.Logger.Error().Err(err).Str("channel_id", ev.ChannelID).Msg("channel message relay failed")
		writeError(c, http.StatusInternalServerError, "STORE_ERROR", "Event could not be processed", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) EventDirectMessage(c *gin.Context) {
	var ev models.DirectMessageEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed event payload", nil)
		return
	}
	if ev.UserID == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "user_id is required", nil)
		return
	}

	if err := h.Relay.DirectMessage(c.Request.Context(), ev); err != nil {
		h.Logger.Error().Err(err).Str("user_id", ev.UserID).Msg("direct message relay failed")
		writeError(c, http.StatusInternalServerError, "STORE_ERROR", "Event could not be processed", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
