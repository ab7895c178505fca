package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"beacon/presence-service/middleware"
	"beacon/presence-service/models"
	"beacon/presence-service/services"
	"beacon/presence-service/utils"
)

type PrefsHandler struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewPrefsHandler(db *gorm.DB, logger *utils.Logger) *PrefsHandler {
	return &PrefsHandler{
		db:     db,
		logger: logger,
	}
}

func defaultPrefs(userID string) models.NotificationPrefs {
	return models.NotificationPrefs{
		UserID:            userID,
		SoundEnabled:      true,
		QuietHoursEnabled: false,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "08:00",
	}
}

// Get handles GET /api/v1/preferences/notifications. Users without a stored
// row get the defaults. in_quiet_hours tells the client whether to suppress
// sounds right now.
func (h *PrefsHandler) Get(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	var prefs models.NotificationPrefs
	err := h.db.WithContext(c.Request.Context()).First(&prefs, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prefs = defaultPrefs(userID)
	} else if err != nil {
		h.logger.Error("Failed to load notification prefs", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}

	c.JSON(http.StatusOK, models.NotificationPrefsResponse{
		NotificationPrefs: prefs,
		InQuietHours:      prefs.QuietHoursEnabled && services.IsInQuietHours(prefs.QuietHoursStart, prefs.QuietHoursEnd, time.Now()),
	})
}

// Update handles PUT /api/v1/preferences/notifications with partial updates.
func (h *PrefsHandler) Update(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	var req models.UpdatePrefsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	if req.QuietHoursStart != nil && !validClock(*req.QuietHoursStart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quiet_hours_start must be HH:MM"})
		return
	}
	if req.QuietHoursEnd != nil && !validClock(*req.QuietHoursEnd) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quiet_hours_end must be HH:MM"})
		return
	}

	var prefs models.NotificationPrefs
	err := h.db.WithContext(c.Request.Context()).First(&prefs, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prefs = defaultPrefs(userID)
	} else if err != nil {
		h.logger.Error("Failed to load notification prefs", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}

	if req.SoundEnabled != nil {
		prefs.SoundEnabled = *req.SoundEnabled
	}
	if req.QuietHoursEnabled != nil {
		prefs.QuietHoursEnabled = *req.QuietHoursEnabled
	}
	if req.QuietHoursStart != nil {
		prefs.QuietHoursStart = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		prefs.QuietHoursEnd = *req.QuietHoursEnd
	}

	if err := h.db.WithContext(c.Request.Context()).Save(&prefs).Error; err != nil {
		h.logger.Error("Failed to save notification prefs", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preferences"})
		return
	}

	c.JSON(http.StatusOK, models.NotificationPrefsResponse{
		NotificationPrefs: prefs,
		InQuietHours:      prefs.QuietHoursEnabled && services.IsInQuietHours(prefs.QuietHoursStart, prefs.QuietHoursEnd, time.Now()),
	})
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}
