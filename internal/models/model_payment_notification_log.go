package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/bayarinter/billing/pkg/types"
)

// PaymentNotificationLog is the append-only audit trail of provider callbacks.
// Every callback gets a "received" row before validation and an outcome row after.
type PaymentNotificationLog struct {
	ID            string                      `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ProviderID    types.PaymentProvider       `gorm:"column:provider_id;type:varchar(64);not null" json:"provider_id"`
	OrderID       string                      `gorm:"column:order_id;type:varchar(128);index" json:"order_id"`
	TraceID       string                      `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	TransactionID string                      `gorm:"column:transaction_id;type:varchar(128)" json:"transaction_id"`
	ReceivedAt    time.Time                   `gorm:"column:received_at" json:"received_at"`
	Data          datatypes.JSON              `gorm:"column:data;type:jsonb" json:"data"`
	Result        *datatypes.JSON             `gorm:"column:result;type:jsonb" json:"result"`
	Status        types.NotificationLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt     time.Time                   `json:"created_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }
