package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"beacon/presence-service/middleware"
	"beacon/presence-service/models"
	"beacon/presence-service/services"
	"beacon/presence-service/utils"
)

type TypingHandler struct {
	store  *services.RedisTypingStore
	logger *utils.Logger
}

func NewTypingHandler(store *services.RedisTypingStore, logger *utils.Logger) *TypingHandler {
	return &TypingHandler{
		store:  store,
		logger: logger,
	}
}

// Start handles POST /api/v1/typing/:channel_id — report the authed member
// as typing. Repeated calls refresh the same indicator.
func (h *TypingHandler) Start(c *gin.Context) {
	channelID := c.Param("channel_id")
	memberID := middleware.UserID(c)
	if memberID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	id, err := h.store.Upsert(c.Request.Context(), channelID, memberID, time.Now())
	if err != nil {
		h.logger.Error("Failed to upsert typing indicator", "channel_id", channelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update typing indicator"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// Stop handles DELETE /api/v1/typing/:channel_id — clear the authed member's
// indicator. Clearing an absent indicator succeeds.
func (h *TypingHandler) Stop(c *gin.Context) {
	channelID := c.Param("channel_id")
	memberID := middleware.UserID(c)
	if memberID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	if err := h.store.DeleteForMember(c.Request.Context(), channelID, memberID); err != nil {
		h.logger.Error("Failed to delete typing indicator", "channel_id", channelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear typing indicator"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// List handles GET /api/v1/typing/:channel_id — who is typing right now,
// most recent first, stale indicators filtered out.
func (h *TypingHandler) List(c *gin.Context) {
	channelID := c.Param("channel_id")

	typers, err := h.store.ListByChannel(c.Request.Context(), channelID, time.Now())
	if err != nil {
		h.logger.Error("Failed to list typing indicators", "channel_id", channelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list typing indicators"})
		return
	}

	if typers == nil {
		typers = []models.TypingIndicatorRecord{}
	}

	c.JSON(http.StatusOK, models.TypingListResponse{
		ChannelID: channelID,
		Count:     len(typers),
		Typers:    typers,
	})
}
