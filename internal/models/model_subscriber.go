package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/bayarinter/billing/pkg/types"
)

// Subscriber is a PPP user of a reseller. ActiveUntil is the last paid day of service
// and is written only by the invoice pay transition.
type Subscriber struct {
	ID          string                 `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ResellerID  string                 `gorm:"column:reseller_id;type:uuid;not null;uniqueIndex:uniq_reseller_username,priority:1" json:"reseller_id"`
	Username    string                 `gorm:"column:username;type:varchar(64);not null;uniqueIndex:uniq_reseller_username,priority:2" json:"username"`
	FullName    string                 `gorm:"column:full_name;type:varchar(128)" json:"full_name"`
	Phone       string                 `gorm:"column:phone;type:varchar(32)" json:"phone"`
	Email       string                 `gorm:"column:email;type:varchar(128)" json:"email"`
	ProfileID   *string                `gorm:"column:profile_id;type:uuid" json:"profile_id"`
	Profile     *Profile               `gorm:"foreignKey:ProfileID" json:"profile,omitempty"`
	Status      types.SubscriberStatus `gorm:"column:status;type:varchar(16);not null;default:'active'" json:"status"`
	IsActive    bool                   `gorm:"column:is_active;not null;default:true" json:"is_active"`
	ActiveUntil *time.Time             `gorm:"column:active_until;type:date;index" json:"active_until"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	DeletedAt   gorm.DeletedAt         `gorm:"column:deleted_at;index" json:"-"`
}

func (Subscriber) TableName() string { return "ppp_users" }
