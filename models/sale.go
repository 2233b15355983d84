package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SalePendingDispatch   = "PENDING_DISPATCH"
	SaleCompleted         = "COMPLETED"
	SaleFailedDispatchAPI = "FAILED_DISPATCH_API"
	SaleFailedServerError = "FAILED_SERVER_ERROR"
)

// AirtimeSale exists only for payments whose float debit committed. Exactly
// one sale per debited payment.
type AirtimeSale struct {
	gorm.Model

	SaleID         string          `gorm:"uniqueIndex;size:64" json:"sale_id"`
	TransactionID  string          `gorm:"index;size:64" json:"transaction_id"`
	TopupNumber    string          `gorm:"size:20" json:"topup_number"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount"`
	Carrier        string          `gorm:"size:24" json:"carrier"`
	Status         string          `gorm:"size:32;index" json:"status"`
	ProviderRef    string          `gorm:"size:64" json:"provider_ref"`
	DispatchResult datatypes.JSON  `gorm:"type:jsonb" json:"dispatch_result"`
	ErrorMessage   string          `gorm:"size:512" json:"error_message"`
}
