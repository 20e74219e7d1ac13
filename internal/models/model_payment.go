package models

import (
	"time"

	"github.com/bayarinter/billing/pkg/types"
)

// Payment records money received (or attempted) against a customer invoice.
// ProviderTxnID is unique when present and keys idempotent callback upserts.
type Payment struct {
	ID            string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	InvoiceID     string              `gorm:"column:invoice_id;type:uuid;not null;index" json:"invoice_id"`
	Amount        int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Method        string              `gorm:"column:method;type:varchar(32);not null" json:"method"`
	ProviderTxnID *string             `gorm:"column:provider_txn_id;type:varchar(128);uniqueIndex" json:"provider_txn_id"`
	Status        types.PaymentStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	PaidAt        *time.Time          `gorm:"column:paid_at" json:"paid_at"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }
