package models

import (
	"time"

	"gorm.io/datatypes"
)

// Usage event kinds recorded by the quota service.
const (
	// UsageKindProvision marks the one-time creation of an account.
	UsageKindProvision = "provision"
	// UsageKindConsume marks a single-credit decrement.
	UsageKindConsume = "consume"
	// UsageKindTopUp marks a user-initiated credit addition.
	UsageKindTopUp = "top_up"
	// UsageKindAdminAdjust marks an administrator balance change.
	UsageKindAdminAdjust = "admin_adjust"
)

// UsageEvent is an append-only audit record of a quota mutation.
type UsageEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	UserID string `gorm:"column:user_id;type:text;not null;index" json:"userId"` // Affected account.
	Kind   string `gorm:"type:text;not null;index" json:"kind"`                  // Event kind.

	Delta        int64 `gorm:"not null" json:"delta"`        // Signed balance change.
	BalanceAfter int64 `gorm:"not null" json:"balanceAfter"` // Balance after the change.

	Detail datatypes.JSON `gorm:"type:jsonb" json:"detail,omitempty"` // Optional event metadata.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"createdAt"` // Event timestamp.
}

// TableName overrides the default table name.
func (UsageEvent) TableName() string {
	return "usage_events"
}
