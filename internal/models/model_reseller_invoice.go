package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/bayarinter/billing/pkg/types"
)

type ResellerInvoiceMeta struct {
	ResellerName string `json:"reseller_name,omitempty"`
	Manual       bool   `json:"manual,omitempty"`
}

// ResellerInvoice bills a reseller for its active subscriber count over a calendar month.
type ResellerInvoice struct {
	ID          string                                  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ResellerID  string                                  `gorm:"column:reseller_id;type:uuid;not null;uniqueIndex:uniq_reseller_invoice_period,priority:1" json:"reseller_id"`
	PeriodStart time.Time                               `gorm:"column:period_start;type:date;not null;uniqueIndex:uniq_reseller_invoice_period,priority:2" json:"period_start"`
	PeriodEnd   time.Time                               `gorm:"column:period_end;type:date;not null;uniqueIndex:uniq_reseller_invoice_period,priority:3" json:"period_end"`
	UsersCount  int64                                   `gorm:"column:users_count;not null" json:"users_count"`
	UnitPrice   int64                                   `gorm:"column:unit_price;type:bigint;not null" json:"unit_price"`
	Subtotal    int64                                   `gorm:"column:subtotal;type:bigint;not null" json:"subtotal"`
	Discount    int64                                   `gorm:"column:discount;type:bigint;not null;default:0" json:"discount"`
	Tax         int64                                   `gorm:"column:tax;type:bigint;not null;default:0" json:"tax"`
	Total       int64                                   `gorm:"column:total;type:bigint;not null" json:"total"`
	Currency    string                                  `gorm:"column:currency;type:varchar(8);not null;default:'IDR'" json:"currency"`
	Status      types.InvoiceStatus                     `gorm:"column:status;type:varchar(16);not null;default:'unpaid'" json:"status"`
	PaidAt      *time.Time                              `gorm:"column:paid_at" json:"paid_at"`
	Meta        datatypes.JSONType[ResellerInvoiceMeta] `gorm:"column:meta;type:jsonb;default:'{}'" json:"meta"`
	CreatedAt   time.Time                               `json:"created_at"`
	UpdatedAt   time.Time                               `json:"updated_at"`
}

func (ResellerInvoice) TableName() string { return "invoices" }

func (i *ResellerInvoice) IsPaid() bool { return i != nil && i.Status == types.InvoiceStatusPaid }
