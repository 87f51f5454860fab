package usage

import (
	"context"
	"time"

	"github.com/router-for-me/CreditRouter/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultRetentionInterval = 6 * time.Hour
	defaultRetentionDays     = 90
	deleteBatchSize          = 5000
	maxDeleteBatchesPerRun   = 200
)

// RetentionCleaner periodically deletes old rows from the usages table so
// the metering history stays bounded. Ledger transactions are never touched;
// they are the permanent audit trail.
type RetentionCleaner struct {
	db            *gorm.DB
	interval      time.Duration
	retentionDays int
}

// NewRetentionCleaner constructs a cleaner with the given retention window
// in days; zero or less uses the default.
func NewRetentionCleaner(db *gorm.DB, retentionDays int) *RetentionCleaner {
	if db == nil {
		return nil
	}
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &RetentionCleaner{
		db:            db,
		interval:      defaultRetentionInterval,
		retentionDays: retentionDays,
	}
}

// Start launches the cleanup loop in a background goroutine.
func (c *RetentionCleaner) Start(ctx context.Context) {
	if c == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.cleanupOnce(ctx)
			}
		}
	}()
	log.Infof("usage: retention cleaner started (interval=%s retention=%dd)", c.interval, c.retentionDays)
}

// CleanupOnce deletes expired rows in batches and returns the total removed.
func (c *RetentionCleaner) CleanupOnce(ctx context.Context) int64 {
	return c.cleanupOnce(ctx)
}

func (c *RetentionCleaner) cleanupOnce(ctx context.Context) int64 {
	cutoff := time.Now().UTC().AddDate(0, 0, -c.retentionDays)

	var total int64
	for i := 0; i < maxDeleteBatchesPerRun; i++ {
		res := c.db.WithContext(ctx).
			Where("id IN (?)", c.db.Model(&models.Usage{}).
				Select("id").
				Where("created_at < ?", cutoff).
				Limit(deleteBatchSize)).
			Delete(&models.Usage{})
		if res.Error != nil {
			log.Warnf("usage: retention cleanup: %v", res.Error)
			return total
		}
		total += res.RowsAffected
		if res.RowsAffected < int64(deleteBatchSize) {
			break
		}
	}
	if total > 0 {
		log.Infof("usage: retention removed %d rows", total)
	}
	return total
}
