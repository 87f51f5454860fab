// Package usage persists metering rows for routing attempts.
package usage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/router-for-me/CreditRouter/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Attempt describes one routing attempt to record.
type Attempt struct {
	RequestID string
	AccountID string
	Provider  string
	Model     string
	Source    string
	Failed    bool
	Error     error
	Latency   time.Duration

	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostMicros   int64
}

// Sources for usage rows.
const (
	SourceProvider = "provider"
	SourceCache    = "cache"
)

// Recorder writes usage rows. Metering must never fail a request, so write
// errors are logged and swallowed.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder backed by GORM.
func NewRecorder(db *gorm.DB) *Recorder {
	if db == nil {
		return nil
	}
	return &Recorder{db: db}
}

// Record persists one attempt row.
func (r *Recorder) Record(ctx context.Context, attempt Attempt) {
	if r == nil || r.db == nil {
		return
	}

	total := attempt.TotalTokens
	if total == 0 {
		total = attempt.InputTokens + attempt.OutputTokens
	}

	row := models.Usage{
		RequestID:    attempt.RequestID,
		AccountID:    attempt.AccountID,
		Provider:     attempt.Provider,
		Model:        attempt.Model,
		Source:       attempt.Source,
		RequestedAt:  time.Now().UTC().Add(-attempt.Latency),
		Failed:       attempt.Failed,
		ErrorDetail:  errorDetailJSON(attempt.Error),
		LatencyMS:    attempt.Latency.Milliseconds(),
		InputTokens:  attempt.InputTokens,
		OutputTokens: attempt.OutputTokens,
		TotalTokens:  total,
		CostMicros:   attempt.CostMicros,
		CreatedAt:    time.Now().UTC(),
	}

	dbCtx, cancel := context.WithTimeout(withoutCancel(ctx), 5*time.Second)
	defer cancel()
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.Warnf("usage: record attempt: %v", errCreate)
	}
}

// withoutCancel detaches the write from the request context so a cancelled
// request still gets its audit row.
func withoutCancel(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}

func errorDetailJSON(err error) datatypes.JSON {
	if err == nil {
		return nil
	}
	raw, errMarshal := json.Marshal(map[string]string{"message": err.Error()})
	if errMarshal != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
