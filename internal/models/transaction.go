package models

import (
	"time"

	"gorm.io/datatypes"
)

// Transaction types recorded in the ledger.
const (
	// TransactionPurchase records a paid top-up.
	TransactionPurchase = "purchase"
	// TransactionReserve records a hold placed before a provider call.
	TransactionReserve = "reserve"
	// TransactionSettle records the final debit for a completed call.
	TransactionSettle = "settle"
	// TransactionRefund records a released hold.
	TransactionRefund = "refund"
	// TransactionBonus records promotional credits.
	TransactionBonus = "bonus"
)

// LedgerTransaction is one append-only audit row. Rows are never updated
// or deleted after creation.
type LedgerTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TxID      string `gorm:"type:text;not null;uniqueIndex"` // Transaction UUID.
	AccountID string `gorm:"type:text;not null;index"`       // Owning account.

	Type string `gorm:"type:text;not null;index"` // Transaction type.

	AmountMicros        int64 `gorm:"not null"` // Signed amount in micros.
	BalanceBeforeMicros int64 `gorm:"not null"` // Balance before the mutation.
	BalanceAfterMicros  int64 `gorm:"not null"` // Balance after the mutation.

	ReservationID *string `gorm:"type:text;index"` // Related reservation, if any.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Free-form context JSON.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName overrides the default table name.
func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}
