package records

import (
	"errors"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sambaza/models"
)

var ErrNotFound = errors.New("records: not found")

// Store owns the payments, airtime_sales and error_logs tables. All writes
// are inserts or field patches; nothing is deleted.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateIfAbsent is the idempotency gate. It returns created=false when a
// payment with the same transaction id already exists, without touching the
// existing row.
func (s *Store) CreateIfAbsent(p *models.Payment) (bool, error) {
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpdatePayment(transactionID string, fields map[string]any) error {
	return s.db.Model(&models.Payment{}).
		Where("transaction_id = ?", transactionID).
		Updates(fields).Error
}

func (s *Store) RecordSale(sale *models.AirtimeSale) error {
	return s.db.Create(sale).Error
}

func (s *Store) UpdateSale(saleID string, fields map[string]any) error {
	return s.db.Model(&models.AirtimeSale{}).
		Where("sale_id = ?", saleID).
		Updates(fields).Error
}

// LogError appends to the audit log. A failed audit write must never fail the
// operation being audited, so it only reaches stdout.
func (s *Store) LogError(e *models.ErrorLog) {
	if err := s.db.Create(e).Error; err != nil {
		log.Printf("[records] error log write failed (type=%s trans=%s): %v", e.Type, e.TransactionID, err)
	}
}

func (s *Store) PaymentByTransactionID(transactionID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.Where("transaction_id = ?", transactionID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaleByTransactionID(transactionID string) (*models.AirtimeSale, error) {
	var sale models.AirtimeSale
	if err := s.db.Where("transaction_id = ?", transactionID).First(&sale).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}
