package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"beacon/presence-service/middleware"
	"beacon/presence-service/models"
	"beacon/presence-service/services"
	"beacon/presence-service/utils"
)

type PresenceHandler struct {
	service *services.PresenceService
	logger  *utils.Logger
}

func NewPresenceHandler(service *services.PresenceService, logger *utils.Logger) *PresenceHandler {
	return &PresenceHandler{
		service: service,
		logger:  logger,
	}
}

// Heartbeat handles POST /api/v1/presence/heartbeat
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	var req models.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	rec, err := h.service.Heartbeat(c.Request.Context(), userID, req.Status, req.CustomMessage, req.ActiveChannelID)
	if err != nil {
		h.logger.Error("Failed to update presence", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update presence"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"last_seen_at": rec.LastSeenAt,
	})
}

// GetStatus handles GET /api/v1/presence/status/:user_id
func (h *PresenceHandler) GetStatus(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	rec, effective, err := h.service.GetPresence(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to get presence", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get presence"})
		return
	}

	response := models.StatusResponse{
		UserID:          userID,
		Status:          models.StatusOffline,
		EffectiveStatus: effective,
		IsOnline:        services.IsEffectivelyOnline(effective),
	}
	if rec != nil {
		response.Status = rec.Status
		response.LastSeenAt = rec.LastSeenAt
		response.CustomMessage = rec.CustomMessage
		response.ActiveChannelID = rec.ActiveChannelID
	}

	c.JSON(http.StatusOK, response)
}

// GetOnlineUsers handles GET /api/v1/presence/online
func (h *PresenceHandler) GetOnlineUsers(c *gin.Context) {
	users, err := h.service.GetOnlineUsers(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get online users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get online users"})
		return
	}

	c.JSON(http.StatusOK, models.OnlineUsersResponse{
		Count: len(users),
		Users: users,
	})
}

// UpdateActiveChannel handles PUT /api/v1/presence/channel
func (h *PresenceHandler) UpdateActiveChannel(c *gin.Context) {
	var req models.ActiveChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	if err := h.service.UpdateActiveChannel(c.Request.Context(), userID, req.ChannelID); err != nil {
		h.logger.Error("Failed to update active channel", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update active channel"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
