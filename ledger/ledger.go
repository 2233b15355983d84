package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sambaza/models"
)

var (
	ErrPoolNotFound      = errors.New("ledger: pool not found")
	ErrInsufficientFloat = errors.New("ledger: insufficient float")
	ErrCorruptBalance    = errors.New("ledger: stored balance is not numeric")
)

// adjustAttempts bounds the retry loop for transactions the store aborts on
// conflict. Business rejections (insufficient float, corrupt balance) are
// never retried.
const adjustAttempts = 3

// Ledger is the only writer of float_pools.balance. Every mutation runs
// inside a transaction holding a row lock on the pool.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// AtomicAdjust applies delta (negative to debit, positive to credit) to the
// pool and returns the committed balance. A pool that does not exist yet is
// bootstrapped at zero inside the same transaction.
func (l *Ledger) AtomicAdjust(poolID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var committed decimal.Decimal
	var lastErr error

	for attempt := 1; attempt <= adjustAttempts; attempt++ {
		err := l.db.Transaction(func(tx *gorm.DB) error {
			if err := bootstrapPool(tx, poolID); err != nil {
				return err
			}

			var raw string
			row := tx.Raw(
				"SELECT balance::text FROM float_pools WHERE pool_id = ? AND deleted_at IS NULL FOR UPDATE",
				poolID,
			).Row()
			if err := row.Scan(&raw); err != nil {
				return fmt.Errorf("ledger: read balance for %s: %w", poolID, err)
			}

			current, err := decimal.NewFromString(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("%w: pool %s holds %q", ErrCorruptBalance, poolID, raw)
			}

			next, err := applyDelta(current, delta)
			if err != nil {
				return err
			}

			res := tx.Model(&models.FloatPool{}).
				Where("pool_id = ?", poolID).
				Updates(map[string]any{"balance": next, "updated_at": time.Now()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrPoolNotFound
			}

			committed = next
			return nil
		})
		if err == nil {
			return committed, nil
		}
		if !retryable(err) {
			return decimal.Decimal{}, err
		}
		lastErr = err
	}
	return decimal.Decimal{}, lastErr
}

// SetBalance overwrites a pool balance with a provider-reported value. Used
// only for reconciliation after a successful dispatch, where the provider is
// authoritative.
func (l *Ledger) SetBalance(poolID string, balance decimal.Decimal) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := bootstrapPool(tx, poolID); err != nil {
			return err
		}
		return tx.Model(&models.FloatPool{}).
			Where("pool_id = ?", poolID).
			Updates(map[string]any{"balance": balance, "updated_at": time.Now()}).Error
	})
}

// Balance is the read-only display query; it does not lock.
func (l *Ledger) Balance(poolID string) (decimal.Decimal, error) {
	var pool models.FloatPool
	if err := l.db.Where("pool_id = ?", poolID).First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Decimal{}, ErrPoolNotFound
		}
		return decimal.Decimal{}, err
	}
	return pool.Balance, nil
}

func (l *Ledger) Pools() ([]models.FloatPool, error) {
	var pools []models.FloatPool
	if err := l.db.Order("pool_id").Find(&pools).Error; err != nil {
		return nil, err
	}
	return pools, nil
}

func bootstrapPool(tx *gorm.DB, poolID string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pool_id"}},
		DoNothing: true,
	}).Create(&models.FloatPool{PoolID: poolID, Balance: decimal.Zero}).Error
}

// applyDelta enforces the non-negative invariant.
func applyDelta(current, delta decimal.Decimal) (decimal.Decimal, error) {
	next := current.Add(delta)
	if next.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s%s would leave %s",
			ErrInsufficientFloat, current.StringFixed(2), signed(delta), next.StringFixed(2))
	}
	return next, nil
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

func retryable(err error) bool {
	if errors.Is(err, ErrInsufficientFloat) || errors.Is(err, ErrCorruptBalance) || errors.Is(err, ErrPoolNotFound) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected")
}
