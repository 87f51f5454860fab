package models

import "time"

// Reservation lifecycle states.
const (
	// ReservationHeld marks an open hold awaiting settlement or release.
	ReservationHeld = "held"
	// ReservationSettled marks a hold converted into a final debit.
	ReservationSettled = "settled"
	// ReservationReleased marks a hold refunded in full.
	ReservationReleased = "released"
)

// CreditReservation is a temporary hold on an account balance. A held row
// past ExpiresAt is resolved by the background sweeper so a crash between
// reserve and settle can never strand credits.
type CreditReservation struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ReservationID string `gorm:"type:text;not null;uniqueIndex"` // Reservation UUID.
	AccountID     string `gorm:"type:text;not null;index"`       // Owning account.

	AmountMicros int64  `gorm:"not null"`                 // Held amount in micros.
	ModelID      string `gorm:"type:text"`                // Model the hold was placed for.
	Status       string `gorm:"type:text;not null;index"` // Lifecycle state.

	ExpiresAt time.Time `gorm:"not null;index"` // Auto-release deadline.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (CreditReservation) TableName() string {
	return "credit_reservations"
}
