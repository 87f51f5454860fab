package db

import (
	"fmt"

	"github.com/router-for-me/CreditRouter/internal/models"
	"gorm.io/gorm"
)

// Migrate applies schema migrations for all ledger and metering tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.CreditAccount{},
		&models.CreditReservation{},
		&models.LedgerTransaction{},
		&models.Usage{},
	)
}
