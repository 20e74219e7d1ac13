package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/bayarinter/billing/pkg/types"
)

// CustomerInvoiceMeta is the audit snapshot taken when the invoice is issued.
type CustomerInvoiceMeta struct {
	Username      string `json:"username"`
	FullName      string `json:"full_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	ProfileName   string `json:"profile_name,omitempty"`
	UnitPrice     int64  `json:"unit_price"`
	Months        int    `json:"months"`
	AutoGenerated bool   `json:"auto_generated"`
}

// CustomerInvoice bills one subscriber for an inclusive [PeriodStart, PeriodEnd] date range.
type CustomerInvoice struct {
	ID          string                                  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ResellerID  string                                  `gorm:"column:reseller_id;type:uuid;not null;index" json:"reseller_id"`
	UserID      string                                  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uniq_customer_invoice_period,priority:1" json:"user_id"`
	ProfileID   *string                                 `gorm:"column:profile_id;type:uuid" json:"profile_id"`
	PeriodStart time.Time                               `gorm:"column:period_start;type:date;not null;uniqueIndex:uniq_customer_invoice_period,priority:2" json:"period_start"`
	PeriodEnd   time.Time                               `gorm:"column:period_end;type:date;not null;uniqueIndex:uniq_customer_invoice_period,priority:3" json:"period_end"`
	Amount      int64                                   `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Status      types.InvoiceStatus                     `gorm:"column:status;type:varchar(16);not null;default:'unpaid';index" json:"status"`
	PaidAt      *time.Time                              `gorm:"column:paid_at" json:"paid_at"`
	Meta        datatypes.JSONType[CustomerInvoiceMeta] `gorm:"column:meta;type:jsonb;default:'{}'" json:"meta"`
	CreatedAt   time.Time                               `json:"created_at"`
	UpdatedAt   time.Time                               `json:"updated_at"`
}

func (CustomerInvoice) TableName() string { return "customer_invoices" }

func (i *CustomerInvoice) IsPaid() bool { return i != nil && i.Status == types.InvoiceStatusPaid }

// PeriodDays is the inclusive length of the billed period.
func (i *CustomerInvoice) PeriodDays() int {
	return int(i.PeriodEnd.Sub(i.PeriodStart).Hours()/24) + 1
}
