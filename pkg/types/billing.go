package types

type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	InvoiceStatusPaid   InvoiceStatus = "paid"
)

func (s InvoiceStatus) Valid() bool {
	return s == InvoiceStatusUnpaid || s == InvoiceStatusPaid
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return true
	}
	return false
}

type SubscriberStatus string

const (
	SubscriberStatusActive    SubscriberStatus = "active"
	SubscriberStatusSuspended SubscriberStatus = "suspended"
)

func (s SubscriberStatus) Valid() bool {
	return s == SubscriberStatusActive || s == SubscriberStatusSuspended
}

// PaymentProvider names the source of a payment event.
type PaymentProvider string

const (
	PaymentProviderManual  PaymentProvider = "manual"
	PaymentProviderGeneric PaymentProvider = "generic"
	PaymentProviderDuitku  PaymentProvider = "duitku"
)

const PaymentMethodManual = "manual"

type NotificationLogStatus string

const (
	NotificationLogStatusReceived     NotificationLogStatus = "received"
	NotificationLogStatusHandled      NotificationLogStatus = "handled"
	NotificationLogStatusHandleFailed NotificationLogStatus = "handle_failed"
	NotificationLogStatusRejected     NotificationLogStatus = "rejected"
)

// Job names, shared by the scheduler, metrics labels and logs.
const (
	JobGenerateCustomerInvoices = "generate_customer_invoices"
	JobRemindUnpaidInvoices     = "remind_unpaid_invoices"
	JobSuspendOverdueUsers      = "suspend_overdue_users"
	JobGenerateResellerInvoices = "generate_reseller_invoices"
)
