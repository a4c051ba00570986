package db

import (
	"fmt"

	"github.com/teslabridge/quotaserver/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all quota service models.
//
// The quota_accounts primary key doubles as the uniqueness constraint that
// resolves concurrent first-time provisioning for the same user.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.QuotaAccount{},
		&models.UsageEvent{},
		&models.Admin{},
		&models.Setting{},
	)
}
