package models

import "time"

// CreditAccount holds the prepaid balance for one account.
//
// All amounts are credit micros (1 credit = 1_000_000 micros). The row is
// only ever mutated through the ledger, which bumps Version on every update
// so concurrent writers can detect lost updates.
type CreditAccount struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID string `gorm:"type:text;not null;uniqueIndex"` // External account identifier.

	BalanceMicros  int64 `gorm:"not null;default:0"` // Spendable balance in micros.
	ReservedMicros int64 `gorm:"not null;default:0"` // Balance held by open reservations.

	LifetimePurchasedMicros int64 `gorm:"not null;default:0"` // Total credits ever granted.
	LifetimeSpentMicros     int64 `gorm:"not null;default:0"` // Total credits ever settled.

	Version uint64 `gorm:"not null;default:0"` // Optimistic concurrency version.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (CreditAccount) TableName() string {
	return "credit_accounts"
}
