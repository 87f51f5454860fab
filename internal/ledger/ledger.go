// Package ledger meters prepaid credit with reserve/settle/release/grant
// verbs over per-account records.
//
// Every balance-affecting operation pairs the account mutation with exactly
// one append-only transaction row inside a single database transaction, and
// guards the account row with optimistic versioning. Two invariants hold at
// every observable point: the balance never goes negative, and the reserved
// total never exceeds the balance.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/CreditRouter/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultReservationTTL = 10 * time.Minute
	maxUpdateRetries      = 8
	retryBackoff          = 5 * time.Millisecond
)

// ErrReservationNotFound is returned when a settle or release names a
// reservation that does not exist or was already resolved.
var ErrReservationNotFound = errors.New("ledger: reservation not found or already resolved")

// errVersionConflict signals a lost optimistic update; callers retry.
var errVersionConflict = errors.New("ledger: version conflict")

// InsufficientCreditsError reports a reserve that the account cannot cover.
type InsufficientCreditsError struct {
	AccountID       string
	ShortfallMicros int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("ledger: insufficient credits for account %s (short %d micros)", e.AccountID, e.ShortfallMicros)
}

// Balance is a read-only snapshot of one account.
type Balance struct {
	AccountID               string
	BalanceMicros           int64
	ReservedMicros          int64
	AvailableMicros         int64
	LifetimePurchasedMicros int64
	LifetimeSpentMicros     int64
}

// Ledger mediates all credit mutations.
type Ledger struct {
	db             *gorm.DB
	reservationTTL time.Duration
}

// New constructs a ledger. A non-positive reservationTTL falls back to the
// default auto-release window.
func New(db *gorm.DB, reservationTTL time.Duration) *Ledger {
	if reservationTTL <= 0 {
		reservationTTL = defaultReservationTTL
	}
	return &Ledger{db: db, reservationTTL: reservationTTL}
}

// Balance returns the current snapshot for an account, creating the account
// lazily on first use.
func (l *Ledger) Balance(ctx context.Context, accountID string) (*Balance, error) {
	account, err := l.ensureAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(account), nil
}

// Reserve places a hold for the estimated cost of a call. It returns the
// reservation id, or InsufficientCreditsError carrying the exact shortfall.
func (l *Ledger) Reserve(ctx context.Context, accountID, modelID string, amountMicros int64) (string, error) {
	if amountMicros < 0 {
		return "", fmt.Errorf("ledger: negative reserve amount %d", amountMicros)
	}

	reservationID := uuid.NewString()

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		account, err := l.ensureAccount(ctx, accountID)
		if err != nil {
			return "", err
		}

		available := account.BalanceMicros - account.ReservedMicros
		if amountMicros > available {
			return "", &InsufficientCreditsError{
				AccountID:       accountID,
				ShortfallMicros: amountMicros - available,
			}
		}

		errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if errUpdate := bumpAccount(tx, account, map[string]any{
				"reserved_micros": account.ReservedMicros + amountMicros,
			}); errUpdate != nil {
				return errUpdate
			}

			if errCreate := tx.Create(&models.CreditReservation{
				ReservationID: reservationID,
				AccountID:     accountID,
				AmountMicros:  amountMicros,
				ModelID:       modelID,
				Status:        models.ReservationHeld,
				ExpiresAt:     time.Now().UTC().Add(l.reservationTTL),
			}).Error; errCreate != nil {
				return errCreate
			}

			return appendTransaction(tx, account.AccountID, models.TransactionReserve, amountMicros,
				account.BalanceMicros, account.BalanceMicros, &reservationID,
				map[string]any{"model_id": modelID})
		})
		if errTx == nil {
			return reservationID, nil
		}
		if errors.Is(errTx, errVersionConflict) {
			sleepBackoff(ctx, attempt)
			continue
		}
		return "", errTx
	}
	return "", fmt.Errorf("ledger: reserve contention on account %s", accountID)
}

// Settle converts a held reservation into a final debit. actualMicros is
// capped at the reserved amount; overruns are logged, never absorbed. The
// unused remainder of the hold is returned to availability. Returns the
// balance after settlement.
func (l *Ledger) Settle(ctx context.Context, reservationID string, actualMicros int64) (int64, error) {
	if actualMicros < 0 {
		return 0, fmt.Errorf("ledger: negative settle amount %d", actualMicros)
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		reservation, err := l.heldReservation(ctx, reservationID)
		if err != nil {
			return 0, err
		}
		account, err := l.ensureAccount(ctx, reservation.AccountID)
		if err != nil {
			return 0, err
		}

		charged := actualMicros
		if charged > reservation.AmountMicros {
			log.Warnf("ledger: settle overrun on %s: actual=%d reserved=%d, capping",
				reservationID, actualMicros, reservation.AmountMicros)
			charged = reservation.AmountMicros
		}

		balanceAfter := account.BalanceMicros - charged

		errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if errResolve := resolveReservation(tx, reservationID, models.ReservationSettled); errResolve != nil {
				return errResolve
			}

			if errUpdate := bumpAccount(tx, account, map[string]any{
				"balance_micros":        balanceAfter,
				"reserved_micros":       account.ReservedMicros - reservation.AmountMicros,
				"lifetime_spent_micros": account.LifetimeSpentMicros + charged,
			}); errUpdate != nil {
				return errUpdate
			}

			return appendTransaction(tx, account.AccountID, models.TransactionSettle, -charged,
				account.BalanceMicros, balanceAfter, &reservationID,
				map[string]any{"model_id": reservation.ModelID, "reserved_micros": reservation.AmountMicros})
		})
		if errTx == nil {
			return balanceAfter, nil
		}
		if errors.Is(errTx, errVersionConflict) {
			sleepBackoff(ctx, attempt)
			continue
		}
		return 0, errTx
	}
	return 0, fmt.Errorf("ledger: settle contention on reservation %s", reservationID)
}

// Release refunds a held reservation in full. Releasing a reservation that
// was already settled or released returns ErrReservationNotFound.
func (l *Ledger) Release(ctx context.Context, reservationID, reason string) error {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		reservation, err := l.heldReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		account, err := l.ensureAccount(ctx, reservation.AccountID)
		if err != nil {
			return err
		}

		errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if errResolve := resolveReservation(tx, reservationID, models.ReservationReleased); errResolve != nil {
				return errResolve
			}

			if errUpdate := bumpAccount(tx, account, map[string]any{
				"reserved_micros": account.ReservedMicros - reservation.AmountMicros,
			}); errUpdate != nil {
				return errUpdate
			}

			return appendTransaction(tx, account.AccountID, models.TransactionRefund, reservation.AmountMicros,
				account.BalanceMicros, account.BalanceMicros, &reservationID,
				map[string]any{"model_id": reservation.ModelID, "reason": reason})
		})
		if errTx == nil {
			return nil
		}
		if errors.Is(errTx, errVersionConflict) {
			sleepBackoff(ctx, attempt)
			continue
		}
		return errTx
	}
	return fmt.Errorf("ledger: release contention on reservation %s", reservationID)
}

// Grant credits an account from a purchase or bonus and returns the balance
// after the grant.
func (l *Ledger) Grant(ctx context.Context, accountID string, amountMicros int64, grantType, reason string) (int64, error) {
	if amountMicros <= 0 {
		return 0, fmt.Errorf("ledger: grant amount must be positive, got %d", amountMicros)
	}
	if grantType != models.TransactionPurchase && grantType != models.TransactionBonus {
		return 0, fmt.Errorf("ledger: invalid grant type %q", grantType)
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		account, err := l.ensureAccount(ctx, accountID)
		if err != nil {
			return 0, err
		}

		balanceAfter := account.BalanceMicros + amountMicros
		updates := map[string]any{"balance_micros": balanceAfter}
		if grantType == models.TransactionPurchase {
			updates["lifetime_purchased_micros"] = account.LifetimePurchasedMicros + amountMicros
		}

		errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if errUpdate := bumpAccount(tx, account, updates); errUpdate != nil {
				return errUpdate
			}
			return appendTransaction(tx, accountID, grantType, amountMicros,
				account.BalanceMicros, balanceAfter, nil,
				map[string]any{"reason": reason})
		})
		if errTx == nil {
			return balanceAfter, nil
		}
		if errors.Is(errTx, errVersionConflict) {
			sleepBackoff(ctx, attempt)
			continue
		}
		return 0, errTx
	}
	return 0, fmt.Errorf("ledger: grant contention on account %s", accountID)
}

// Transactions returns the newest transaction rows for an account.
func (l *Ledger) Transactions(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var rows []models.LedgerTransaction
	errFind := l.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if errFind != nil {
		return nil, errFind
	}
	return rows, nil
}

// ensureAccount loads the account row, creating it on first use. Creation
// races resolve through the unique index plus a re-read.
func (l *Ledger) ensureAccount(ctx context.Context, accountID string) (*models.CreditAccount, error) {
	if accountID == "" {
		return nil, fmt.Errorf("ledger: empty account id")
	}

	var account models.CreditAccount
	errFind := l.db.WithContext(ctx).Where("account_id = ?", accountID).First(&account).Error
	if errFind == nil {
		return &account, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, errFind
	}

	account = models.CreditAccount{AccountID: accountID}
	if errCreate := l.db.WithContext(ctx).Create(&account).Error; errCreate != nil {
		// Lost the creation race; the row exists now.
		if errRetry := l.db.WithContext(ctx).Where("account_id = ?", accountID).First(&account).Error; errRetry != nil {
			return nil, errRetry
		}
	}
	return &account, nil
}

// heldReservation loads a reservation that is still open.
func (l *Ledger) heldReservation(ctx context.Context, reservationID string) (*models.CreditReservation, error) {
	var reservation models.CreditReservation
	errFind := l.db.WithContext(ctx).
		Where("reservation_id = ? AND status = ?", reservationID, models.ReservationHeld).
		First(&reservation).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, errFind
	}
	return &reservation, nil
}

// bumpAccount applies updates guarded by the loaded version. Zero rows
// affected means a concurrent writer won; the caller retries.
func bumpAccount(tx *gorm.DB, account *models.CreditAccount, updates map[string]any) error {
	updates["version"] = account.Version + 1
	res := tx.Model(&models.CreditAccount{}).
		Where("account_id = ? AND version = ?", account.AccountID, account.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errVersionConflict
	}
	return nil
}

// resolveReservation flips a held reservation to its terminal status. The
// status guard makes settlement and release mutually exclusive and
// exactly-once even when the sweeper races a late settle.
func resolveReservation(tx *gorm.DB, reservationID, status string) error {
	res := tx.Model(&models.CreditReservation{}).
		Where("reservation_id = ? AND status = ?", reservationID, models.ReservationHeld).
		Updates(map[string]any{"status": status})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// appendTransaction writes one audit row.
func appendTransaction(tx *gorm.DB, accountID, txType string, amountMicros, balanceBefore, balanceAfter int64, reservationID *string, metadata map[string]any) error {
	return tx.Create(&models.LedgerTransaction{
		TxID:                uuid.NewString(),
		AccountID:           accountID,
		Type:                txType,
		AmountMicros:        amountMicros,
		BalanceBeforeMicros: balanceBefore,
		BalanceAfterMicros:  balanceAfter,
		ReservationID:       reservationID,
		Metadata:            metadataJSON(metadata),
		CreatedAt:           time.Now().UTC(),
	}).Error
}

func metadataJSON(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	raw, errMarshal := json.Marshal(m)
	if errMarshal != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func snapshotOf(account *models.CreditAccount) *Balance {
	return &Balance{
		AccountID:               account.AccountID,
		BalanceMicros:           account.BalanceMicros,
		ReservedMicros:          account.ReservedMicros,
		AvailableMicros:         account.BalanceMicros - account.ReservedMicros,
		LifetimePurchasedMicros: account.LifetimePurchasedMicros,
		LifetimeSpentMicros:     account.LifetimeSpentMicros,
	}
}

func sleepBackoff(ctx context.Context, attempt int) {
	d := retryBackoff * time.Duration(attempt+1)
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
