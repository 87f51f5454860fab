package ledger

import (
	"context"
	"time"

	"github.com/router-for-me/CreditRouter/internal/models"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval = time.Minute
	sweepBatchSize       = 200
)

// Sweeper releases reservations whose TTL elapsed without a settle or
// release, so a crash between reserve and settle can never strand credits.
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
}

// NewSweeper constructs a reservation sweeper.
func NewSweeper(ledger *Ledger) *Sweeper {
	if ledger == nil {
		return nil
	}
	return &Sweeper{ledger: ledger, interval: defaultSweepInterval}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, errSweep := s.ledger.ReleaseExpired(ctx); errSweep != nil {
					log.Warnf("ledger: reservation sweep: %v", errSweep)
				}
			}
		}
	}()
	log.Infof("ledger: reservation sweeper started (interval=%s)", s.interval)
}

// ReleaseExpired releases every held reservation past its deadline and
// returns the number released. It also runs once at startup, which replays
// holds orphaned by a previous crash.
func (l *Ledger) ReleaseExpired(ctx context.Context) (int, error) {
	var expired []models.CreditReservation
	errFind := l.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.ReservationHeld, time.Now().UTC()).
		Limit(sweepBatchSize).
		Find(&expired).Error
	if errFind != nil {
		return 0, errFind
	}

	released := 0
	for i := range expired {
		reservationID := expired[i].ReservationID
		if errRelease := l.Release(ctx, reservationID, "expired"); errRelease != nil {
			// A concurrent settle or release already resolved it.
			if errRelease == ErrReservationNotFound {
				continue
			}
			log.Warnf("ledger: release expired %s: %v", reservationID, errRelease)
			continue
		}
		released++
		log.Infof("ledger: auto-released expired reservation %s (account=%s amount=%d)",
			reservationID, expired[i].AccountID, expired[i].AmountMicros)
	}
	return released, nil
}
