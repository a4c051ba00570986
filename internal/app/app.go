package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/teslabridge/quotaserver/internal/config"
	"github.com/teslabridge/quotaserver/internal/db"
	internalhttp "github.com/teslabridge/quotaserver/internal/http"
	adminapi "github.com/teslabridge/quotaserver/internal/http/api/admin"
	"github.com/teslabridge/quotaserver/internal/http/api/bridge"
	"github.com/teslabridge/quotaserver/internal/identity"
	"github.com/teslabridge/quotaserver/internal/ledger"
	"github.com/teslabridge/quotaserver/internal/logging"
	"github.com/teslabridge/quotaserver/internal/models"
	"github.com/teslabridge/quotaserver/internal/security"
	"github.com/teslabridge/quotaserver/internal/service"
	"github.com/teslabridge/quotaserver/internal/settings"
	"github.com/teslabridge/quotaserver/internal/usage"
	"gorm.io/gorm"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the quota service with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	if errSeed := seedSettings(ctx, conn, cfg.Bridge); errSeed != nil {
		return errSeed
	}
	if errRefresh := settings.RefreshSnapshot(ctx, conn); errRefresh != nil {
		return errRefresh
	}
	settings.StartRefresher(ctx, conn, cfg.Settings.RefreshInterval)

	if errBootstrap := bootstrapAdmin(ctx, conn, cfg.Admin); errBootstrap != nil {
		return errBootstrap
	}

	store, errStore := buildLedger(ctx, conn, cfg)
	if errStore != nil {
		return errStore
	}

	verifier := identity.NewHTTPVerifier(cfg.Identity.UserinfoURL, &http.Client{
		Timeout: cfg.Identity.Timeout,
	})
	recorder := usage.NewRecorder(conn)
	svc := service.NewQuota(verifier, store, recorder, cfg.Quota.DefaultBalance)

	engine := buildEngine(conn, svc, store, recorder, cfg)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.Warnf("server shutdown: %v", errShutdown)
		}
	}()

	log.Infof("quota server listening on %s", cfg.Server.Addr)
	if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return errServe
	}
	return nil
}

// buildEngine assembles the gin engine with middleware and routes.
func buildEngine(conn *gorm.DB, svc *service.Quota, store ledger.Ledger, recorder *usage.Recorder, cfg config.AppConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(internalhttp.AccessLogMiddleware())
	engine.Use(internalhttp.CORSMiddleware())

	bridge.RegisterBridgeRoutes(engine, conn, svc, cfg.Bridge)
	adminapi.RegisterAdminRoutes(engine, conn, store, recorder, cfg.Admin)
	return engine
}

// buildLedger selects the configured ledger backend.
func buildLedger(ctx context.Context, conn *gorm.DB, cfg config.AppConfig) (ledger.Ledger, error) {
	if !cfg.RedisEnabled() {
		return ledger.NewGormLedger(conn), nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		return nil, fmt.Errorf("app: redis ping: %w", errPing)
	}

	var opts []ledger.RedisOption
	if cfg.Redis.KeyPrefix != "" {
		opts = append(opts, ledger.WithKeyPrefix(cfg.Redis.KeyPrefix))
	}
	log.Infof("using redis ledger at %s", cfg.Redis.Addr)
	return ledger.NewRedisLedger(client, opts...), nil
}

// seedSettings inserts the bridge client settings from config on first run.
// Existing rows win so operator edits survive restarts.
func seedSettings(ctx context.Context, conn *gorm.DB, bridgeCfg config.BridgeConfig) error {
	seeds := map[string]string{
		settings.ClientIDKey:     bridgeCfg.ClientID,
		settings.ClientSecretKey: bridgeCfg.ClientSecret,
		settings.PurchaseModeKey: bridgeCfg.PurchaseMode,
	}
	for key, value := range seeds {
		if errSeed := settings.Seed(ctx, conn, key, value); errSeed != nil {
			return fmt.Errorf("app: seed setting %s: %w", key, errSeed)
		}
	}
	return nil
}

// bootstrapAdmin creates the initial administrator when none exists.
func bootstrapAdmin(ctx context.Context, conn *gorm.DB, adminCfg config.AdminConfig) error {
	if adminCfg.Username == "" || adminCfg.Password == "" {
		return nil
	}

	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("app: count admins: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	hash, errHash := security.HashPassword(adminCfg.Password)
	if errHash != nil {
		return fmt.Errorf("app: hash admin password: %w", errHash)
	}
	admin := models.Admin{
		Username: adminCfg.Username,
		Password: hash,
		Active:   true,
	}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("app: create admin: %w", errCreate)
	}
	log.Infof("bootstrapped admin account %s", admin.Username)
	return nil
}
