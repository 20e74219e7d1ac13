package models

import "time"

// Profile is a priced service tier. Its price is snapshotted into invoice meta at issuance.
type Profile struct {
	ID         string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ResellerID string    `gorm:"column:reseller_id;type:uuid;not null;index" json:"reseller_id"`
	Name       string    `gorm:"column:name;type:varchar(64);not null" json:"name"`
	Price      int64     `gorm:"column:price;type:bigint;not null" json:"price"`
	RateLimit  string    `gorm:"column:rate_limit;type:varchar(64)" json:"rate_limit"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Profile) TableName() string { return "ppp_profiles" }
