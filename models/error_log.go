package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// Error taxonomy. ReversalFailed and UnexpectedException after a committed
// debit mean money may be lost; they are always written CRITICAL so the
// reconciliation dashboard can filter on severity alone.
const (
	ErrTypeUnknownCarrier         = "UnknownCarrier"
	ErrTypePoolMappingMissing     = "PoolMappingMissing"
	ErrTypeInsufficientFloat      = "InsufficientFloat"
	ErrTypeLedgerCorrupt          = "LedgerCorrupt"
	ErrTypeProviderDispatchFailed = "ProviderDispatchFailed"
	ErrTypeReversalFailed         = "ReversalFailed"
	ErrTypeUnexpectedException    = "UnexpectedException"
	ErrTypeLowFloat               = "LowFloat"
)

// ErrorLog is append-only; nothing in the service updates or deletes rows.
type ErrorLog struct {
	gorm.Model

	Type          string         `gorm:"size:40;index" json:"type"`
	SubType       string         `gorm:"size:40" json:"sub_type"`
	Severity      string         `gorm:"size:12;index" json:"severity"`
	Message       string         `gorm:"size:1024" json:"message"`
	TransactionID string         `gorm:"size:64;index" json:"transaction_id"`
	SaleID        string         `gorm:"size:64" json:"sale_id"`
	Context       datatypes.JSON `gorm:"type:jsonb" json:"context"`
}
