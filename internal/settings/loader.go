package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/teslabridge/quotaserver/internal/models"
	"gorm.io/gorm"
)

// RefreshSnapshot reloads all settings from the database and updates the
// in-memory snapshot.
//
// This is required at process startup; otherwise Value() returns empty values
// until the refresher's first tick.
func RefreshSnapshot(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.Setting
	if errFind := db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = row.Value
		if rowUpdatedAt := row.UpdatedAt.UTC(); rowUpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = rowUpdatedAt
		}
	}

	Store(maxUpdatedAt, values)
	return nil
}

// Seed inserts a settings row when the key does not exist yet. Existing
// values win so operator edits survive restarts.
func Seed(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return errors.New("settings: nil db")
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	raw, errMarshal := json.Marshal(trimmed)
	if errMarshal != nil {
		return errMarshal
	}

	var existing models.Setting
	errFind := db.WithContext(ctx).Where("key = ?", key).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return errFind
	}
	return db.WithContext(ctx).Create(&models.Setting{Key: key, Value: raw}).Error
}

// StartRefresher polls the settings table on interval until ctx is done,
// keeping the in-memory snapshot current with operator edits.
func StartRefresher(ctx context.Context, db *gorm.DB, interval time.Duration) {
	if db == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if errRefresh := RefreshSnapshot(ctx, db); errRefresh != nil {
					log.Warnf("settings: refresh snapshot failed: %v", errRefresh)
				}
			}
		}
	}()
}
