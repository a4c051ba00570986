package usage

import (
	"context"
	"encoding/json"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/teslabridge/quotaserver/internal/ledger"
	"github.com/teslabridge/quotaserver/internal/models"
	"gorm.io/gorm"
)

// Recorder appends quota audit events to the usage_events table.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record persists a usage event. Audit writes are best effort: failures are
// logged and never fail the quota operation that triggered them.
func (r *Recorder) Record(ctx context.Context, userID, kind string, delta, balanceAfter int64, detail map[string]any) {
	if r == nil || r.db == nil {
		return
	}

	event := models.UsageEvent{
		UserID:       ledger.NormalizeUserID(userID),
		Kind:         kind,
		Delta:        delta,
		BalanceAfter: balanceAfter,
	}
	if len(detail) > 0 {
		if raw, errMarshal := json.Marshal(detail); errMarshal == nil {
			event.Detail = raw
		}
	}

	if errCreate := r.db.WithContext(ctx).Create(&event).Error; errCreate != nil {
		log.Warnf("usage: record %s event for %s failed: %v", kind, event.UserID, errCreate)
	}
}

// List returns recent events, newest first, optionally filtered by user.
func (r *Recorder) List(ctx context.Context, userID string, limit int) ([]models.UsageEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := r.db.WithContext(ctx).Model(&models.UsageEvent{}).Order("id DESC").Limit(limit)
	if trimmed := strings.TrimSpace(userID); trimmed != "" {
		query = query.Where("user_id = ?", ledger.NormalizeUserID(trimmed))
	}

	var events []models.UsageEvent
	if errFind := query.Find(&events).Error; errFind != nil {
		return nil, errFind
	}
	return events, nil
}
