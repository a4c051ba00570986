package bridge

import (
	"github.com/gin-gonic/gin"
	"github.com/teslabridge/quotaserver/internal/config"
	"github.com/teslabridge/quotaserver/internal/http/api/bridge/handlers"
	"github.com/teslabridge/quotaserver/internal/service"
	"gorm.io/gorm"
)

// RegisterBridgeRoutes registers the public quota and settings routes the
// in-vehicle client calls.
func RegisterBridgeRoutes(r *gin.Engine, db *gorm.DB, svc *service.Quota, bridgeCfg config.BridgeConfig) {
	if r == nil || svc == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	api := r.Group("/api")

	quotaHandler := handlers.NewQuotaHandler(svc)
	api.GET("/quota", quotaHandler.GetBalance)
	// Legacy combined shape kept for deployed clients; new clients use /use.
	api.POST("/quota", quotaHandler.ConsumeLegacy)
	api.POST("/quota/use", quotaHandler.Consume)
	api.POST("/quota/add", quotaHandler.AddCredits)

	settingsHandler := handlers.NewSettingsHandler(bridgeCfg)
	api.GET("/settings", settingsHandler.Get)
}
