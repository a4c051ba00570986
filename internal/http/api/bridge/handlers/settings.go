package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teslabridge/quotaserver/internal/config"
	"github.com/teslabridge/quotaserver/internal/settings"
)

// SettingsHandler serves the static client settings payload.
type SettingsHandler struct {
	cfg config.BridgeConfig
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(cfg config.BridgeConfig) *SettingsHandler {
	return &SettingsHandler{cfg: cfg}
}

// Get returns the bridge client settings. DB-backed settings override the
// values seeded from the config file.
func (h *SettingsHandler) Get(c *gin.Context) {
	clientID := settings.StringValue(settings.ClientIDKey, h.cfg.ClientID)
	clientSecret := settings.StringValue(settings.ClientSecretKey, h.cfg.ClientSecret)
	purchaseMode := settings.StringValue(settings.PurchaseModeKey, h.cfg.PurchaseMode)

	if clientID == "" || clientSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bridge credentials are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clientId":     clientID,
		"clientSecret": clientSecret,
		"purchaseMode": purchaseMode,
	})
}
