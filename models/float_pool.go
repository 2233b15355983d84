package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FloatPool holds the prepaid balance funding dispatches for one settlement
// relationship. Balance is only ever mutated through the ledger's locked
// transaction and must never commit negative.
type FloatPool struct {
	gorm.Model

	PoolID  string          `gorm:"uniqueIndex;size:32" json:"pool_id"`
	Balance decimal.Decimal `gorm:"type:numeric(14,2)" json:"balance"`
}
