package models

import "time"

// QuotaAccount stores the remaining usage credits for a bridge user.
//
// UserID is the normalized (trimmed, lower-cased) identity resolved from the
// vehicle OAuth provider, usually an email address. One row exists per user.
type QuotaAccount struct {
	UserID  string `gorm:"column:user_id;type:text;primaryKey" json:"userId"` // Normalized user identity.
	Balance int64  `gorm:"not null;default:0" json:"balance"`                 // Remaining consumable credits.

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"createdAt"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"` // Last update timestamp.
}

// TableName overrides the default table name.
func (QuotaAccount) TableName() string {
	return "quota_accounts"
}
