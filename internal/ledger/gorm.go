package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslabridge/quotaserver/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger is a SQL-backed Ledger using the quota_accounts table.
//
// All mutations are single conditional UPDATE statements, so concurrent
// callers serialize at the row level without explicit locking.
type GormLedger struct {
	db *gorm.DB
}

var _ Ledger = (*GormLedger)(nil)

// NewGormLedger constructs a GormLedger.
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// Get implements Ledger.
func (l *GormLedger) Get(ctx context.Context, userID string) (Account, error) {
	normalized := NormalizeUserID(userID)

	var row models.QuotaAccount
	if errFind := l.db.WithContext(ctx).
		Where("user_id = ?", normalized).
		First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("ledger: get %s: %w", normalized, errFind)
	}
	return Account{UserID: row.UserID, Balance: row.Balance}, nil
}

// GetOrCreate implements Ledger. A losing concurrent insert hits the primary
// key constraint, is swallowed by ON CONFLICT DO NOTHING, and falls back to
// re-reading the now-present row.
func (l *GormLedger) GetOrCreate(ctx context.Context, userID string, defaultBalance int64) (Account, bool, error) {
	normalized := NormalizeUserID(userID)

	row := models.QuotaAccount{UserID: normalized, Balance: defaultBalance}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return Account{}, false, fmt.Errorf("ledger: provision %s: %w", normalized, res.Error)
	}
	if res.RowsAffected > 0 {
		return Account{UserID: normalized, Balance: defaultBalance}, true, nil
	}

	account, errGet := l.Get(ctx, normalized)
	if errGet != nil {
		return Account{}, false, errGet
	}
	return account, false, nil
}

// AddCredits implements Ledger.
func (l *GormLedger) AddCredits(ctx context.Context, userID string, credits int64) (Account, error) {
	normalized := NormalizeUserID(userID)

	res := l.db.WithContext(ctx).
		Model(&models.QuotaAccount{}).
		Where("user_id = ?", normalized).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", credits),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return Account{}, fmt.Errorf("ledger: add credits %s: %w", normalized, res.Error)
	}
	if res.RowsAffected == 0 {
		return Account{}, ErrNotFound
	}
	return l.Get(ctx, normalized)
}

// ConsumeCredit implements Ledger. The balance guard lives in the UPDATE
// predicate, so two concurrent consumes against balance=1 cannot both win.
func (l *GormLedger) ConsumeCredit(ctx context.Context, userID string) (Account, error) {
	normalized := NormalizeUserID(userID)

	res := l.db.WithContext(ctx).
		Model(&models.QuotaAccount{}).
		Where("user_id = ? AND balance > 0", normalized).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return Account{}, fmt.Errorf("ledger: consume %s: %w", normalized, res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the row is absent or the balance hit zero, possibly through a
		// concurrent consume. Re-read to tell the two apart.
		account, errGet := l.Get(ctx, normalized)
		if errGet != nil {
			return Account{}, errGet
		}
		return account, ErrInsufficient
	}
	return l.Get(ctx, normalized)
}

// SetBalance implements Ledger.
func (l *GormLedger) SetBalance(ctx context.Context, userID string, balance int64) (Account, error) {
	normalized := NormalizeUserID(userID)
	if balance < 0 {
		return Account{}, fmt.Errorf("ledger: negative balance %d for %s", balance, normalized)
	}

	res := l.db.WithContext(ctx).
		Model(&models.QuotaAccount{}).
		Where("user_id = ?", normalized).
		Updates(map[string]any{
			"balance":    balance,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return Account{}, fmt.Errorf("ledger: set balance %s: %w", normalized, res.Error)
	}
	if res.RowsAffected == 0 {
		return Account{}, ErrNotFound
	}
	return Account{UserID: normalized, Balance: balance}, nil
}
