package models

import (
	"time"

	"gorm.io/datatypes"
)

// VolumePriceTier is a price breakpoint: resellers with at least MinUsers active
// subscribers pay PricePerUser.
type VolumePriceTier struct {
	MinUsers     int   `json:"min_users"`
	PricePerUser int64 `json:"price_per_user"`
}

// Reseller is a tenant. Every subscriber, profile and invoice belongs to exactly one.
type Reseller struct {
	ID           string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Name         string `gorm:"column:name;type:varchar(128);not null" json:"name"`
	CompanyName  string `gorm:"column:company_name;type:varchar(128)" json:"company_name"`
	Email        string `gorm:"column:email;type:varchar(128);uniqueIndex" json:"email"`
	Phone        string `gorm:"column:phone;type:varchar(32)" json:"phone"`
	PricePerUser int64  `gorm:"column:price_per_user;type:bigint;not null;default:0" json:"price_per_user"`
	Currency     string `gorm:"column:currency;type:varchar(8);not null;default:'IDR'" json:"currency"`
	// VolumePricing is recorded for the dashboard; reseller invoices bill PricePerUser flat.
	VolumePricing datatypes.JSONType[[]VolumePriceTier] `gorm:"column:volume_pricing;type:jsonb;default:'[]'" json:"volume_pricing"`
	CreatedAt     time.Time                             `json:"created_at"`
	UpdatedAt     time.Time                             `json:"updated_at"`
}

func (Reseller) TableName() string { return "resellers" }
