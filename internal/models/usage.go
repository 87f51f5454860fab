package models

import (
	"time"

	"gorm.io/datatypes"
)

// Usage records metering data for a single routing attempt. Every attempt,
// successful or not, produces one row; cache hits are recorded with
// Source set to "cache" and zero cost.
type Usage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RequestID string `gorm:"type:text;not null;index"` // Routing request UUID.
	AccountID string `gorm:"type:text;not null;index"` // Requesting account.

	Provider string `gorm:"type:text;not null;index"` // Provider name.
	Model    string `gorm:"type:text;not null;index"` // Model name.

	Source string `gorm:"type:text"` // Result origin: provider or cache.

	RequestedAt time.Time `gorm:"not null;index"`         // Request timestamp.
	Failed      bool      `gorm:"not null;default:false"` // Failure flag.

	ErrorDetail datatypes.JSON `gorm:"type:jsonb"` // Structured error detail JSON.

	LatencyMS int64 `gorm:"not null;default:0"` // Attempt latency in milliseconds.

	InputTokens  int64 `gorm:"not null;default:0"` // Input token count.
	OutputTokens int64 `gorm:"not null;default:0"` // Output token count.
	TotalTokens  int64 `gorm:"not null;default:0"` // Total token count.

	CostMicros int64 `gorm:"not null;default:0"` // Settled cost in micros.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (Usage) TableName() string {
	return "usages"
}
