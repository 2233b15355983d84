package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment statuses. A payment is always acknowledged to the payer's network
// once recorded; these track what happened to fulfilment afterwards.
const (
	PaymentPendingSale       = "RECEIVED_PENDING_SALE"
	PaymentFulfilled         = "RECEIVED_FULFILLED"
	PaymentFulfillmentFailed = "RECEIVED_FULFILLMENT_FAILED"
	PaymentFloatIssue        = "RECEIVED_FLOAT_ISSUE"
	PaymentProcessingError   = "RECEIVED_PROCESSING_ERROR"
)

// Payment is one inbound C2B confirmation, keyed by the network-assigned
// transaction id. The unique index on TransactionID is the idempotency gate:
// a second confirmation with the same id never creates a second row.
type Payment struct {
	gorm.Model

	TransactionID string          `gorm:"uniqueIndex;size:64" json:"transaction_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount"`
	PayerMsisdn   string          `gorm:"size:20" json:"payer_msisdn"`
	PayerName     string          `gorm:"size:128" json:"payer_name"`
	TopupNumber   string          `gorm:"size:20" json:"topup_number"`
	RawCallback   datatypes.JSON  `gorm:"type:jsonb" json:"raw_callback"`
	Status        string          `gorm:"size:40;index" json:"status"`
	LinkedSaleID  string          `gorm:"size:64" json:"linked_sale_id"`
}
