package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/teslabridge/quotaserver/internal/config"
	"github.com/teslabridge/quotaserver/internal/http/api/admin/handlers"
	"github.com/teslabridge/quotaserver/internal/ledger"
	"github.com/teslabridge/quotaserver/internal/models"
	"github.com/teslabridge/quotaserver/internal/security"
	"github.com/teslabridge/quotaserver/internal/usage"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers administrator login and management routes.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, store ledger.Ledger, recorder *usage.Recorder, cfg config.AdminConfig) {
	if r == nil || db == nil {
		return
	}

	group := r.Group("/admin")

	authHandler := handlers.NewAuthHandler(db, cfg)
	group.POST("/login", authHandler.Login)

	authed := group.Group("")
	authed.Use(adminAuthMiddleware(db, cfg))

	accountHandler := handlers.NewAccountHandler(db, store, recorder)
	authed.GET("/accounts", accountHandler.List)
	authed.GET("/accounts/:userId", accountHandler.Get)
	authed.PUT("/accounts/:userId/balance", accountHandler.SetBalance)

	usageHandler := handlers.NewUsageHandler(recorder)
	authed.GET("/usage", usageHandler.List)
}

// adminAuthMiddleware validates admin JWTs and loads the admin into context.
func adminAuthMiddleware(db *gorm.DB, cfg config.AdminConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(cfg.JWTSecret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query admin failed"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
