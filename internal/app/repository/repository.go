// Package repository is the Ledger Store: durable access to resellers, subscribers,
// invoices and payments. Postgres is the production implementation, Memory backs tests.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/types"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Scope restricts reads to one reseller partition. The zero Scope is system-wide and
// is used only by scheduler jobs and provider callbacks.
type Scope struct {
	ResellerID string
}

func SystemScope() Scope { return Scope{} }

func ResellerScope(id string) Scope { return Scope{ResellerID: id} }

func (s Scope) IsSystem() bool { return s.ResellerID == "" }

// DateRange is inclusive on both ends.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

// ListQuery carries allow-listed filters and a normalized page window.
type ListQuery struct {
	Scope   Scope
	Filters []types.CommonFilter
	types.Pagination
}

// InvoiceWithSubscriber is an unpaid customer invoice joined with the owner fields
// the reminder and suspension jobs need.
type InvoiceWithSubscriber struct {
	models.CustomerInvoice
	Username         string                 `gorm:"column:username"`
	Phone            string                 `gorm:"column:phone"`
	ActiveUntil      *time.Time             `gorm:"column:active_until"`
	SubscriberStatus types.SubscriberStatus `gorm:"column:subscriber_status"`
}

// Ledger is every storage operation the billing services use. Implementations must
// make the conditional updates (Mark*Paid, UpdateSubscriberStatus) atomic.
type Ledger interface {
	// Transaction runs fn against a transaction-bound Ledger; fn's error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Ledger) error) error

	GetReseller(ctx context.Context, id string) (*models.Reseller, error)
	ListResellers(ctx context.Context) ([]*models.Reseller, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)

	// GetSubscriber returns a live subscriber with its Profile loaded.
	GetSubscriber(ctx context.Context, scope Scope, id string) (*models.Subscriber, error)
	// GetSubscriberForUpdate locks the row (soft-deleted rows included) until the transaction ends.
	GetSubscriberForUpdate(ctx context.Context, id string) (*models.Subscriber, error)
	GetSubscriberByUsername(ctx context.Context, scope Scope, username string) (*models.Subscriber, error)
	// ListSubscribersDueOn returns active, enabled, live subscribers whose active_until is day.
	ListSubscribersDueOn(ctx context.Context, day time.Time) ([]*models.Subscriber, error)
	// CountActiveSubscribers counts a reseller's live subscribers in status active,
	// optionally restricted to active_until within r.
	CountActiveSubscribers(ctx context.Context, resellerID string, r *DateRange) (int64, error)
	UpdateSubscriberActiveUntil(ctx context.Context, id string, until time.Time) error
	// UpdateSubscriberStatus reports whether the stored status changed.
	UpdateSubscriberStatus(ctx context.Context, id string, status types.SubscriberStatus) (bool, error)
	DeleteSubscriber(ctx context.Context, id string) error

	// CreateCustomerInvoice inserts inv unless an invoice for the same (user, period) exists,
	// in which case inv is overwritten with the stored row and created is false.
	CreateCustomerInvoice(ctx context.Context, inv *models.CustomerInvoice) (created bool, err error)
	GetCustomerInvoice(ctx context.Context, scope Scope, id string) (*models.CustomerInvoice, error)
	FindOverlappingCustomerInvoice(ctx context.Context, userID string, period DateRange) (*models.CustomerInvoice, error)
	ListUnpaidCustomerInvoices(ctx context.Context) ([]*InvoiceWithSubscriber, error)
	// ListOverdueCustomerInvoices returns unpaid invoices whose period_end is before day.
	ListOverdueCustomerInvoices(ctx context.Context, before time.Time) ([]*InvoiceWithSubscriber, error)
	// MarkCustomerInvoicePaid flips unpaid to paid; false means it was already paid.
	MarkCustomerInvoicePaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
	ListCustomerInvoices(ctx context.Context, q ListQuery) ([]*models.CustomerInvoice, int64, error)

	// CreateResellerInvoice inserts inv unless one exists for its period; created is false then.
	CreateResellerInvoice(ctx context.Context, inv *models.ResellerInvoice) (created bool, err error)
	GetResellerInvoice(ctx context.Context, scope Scope, id string) (*models.ResellerInvoice, error)
	FindResellerInvoice(ctx context.Context, resellerID string, period DateRange) (*models.ResellerInvoice, error)
	MarkResellerInvoicePaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
	ListResellerInvoices(ctx context.Context, q ListQuery) ([]*models.ResellerInvoice, int64, error)

	// CreatePayment returns ErrDuplicate when provider_txn_id is taken.
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, scope Scope, id string) (*models.Payment, error)
	GetPaymentByProviderTxnID(ctx context.Context, txnID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id string, status types.PaymentStatus, paidAt *time.Time) error
	ListPayments(ctx context.Context, q ListQuery) ([]*models.Payment, int64, error)

	CreateNotificationLog(ctx context.Context, l *models.PaymentNotificationLog) error

	ListOpenSessions(ctx context.Context, username string) ([]*models.RadAcct, error)
	CreateCoaLog(ctx context.Context, l *models.CoaLog) error
}

// Filter allow-lists per listing. Keys are column names of the listed table.
var (
	CustomerInvoiceFilters = types.FilterAllowList{
		"user_id":      {types.CommonFilterOperatorEq},
		"status":       {types.CommonFilterOperatorEq},
		"period_start": {types.CommonFilterOperatorDateRange},
	}
	ResellerInvoiceFilters = types.FilterAllowList{
		"status":       {types.CommonFilterOperatorEq},
		"period_start": {types.CommonFilterOperatorDateRange},
	}
	PaymentFilters = types.FilterAllowList{
		"invoice_id": {types.CommonFilterOperatorEq},
		"method":     {types.CommonFilterOperatorEq},
		"status":     {types.CommonFilterOperatorEq},
		"created_at": {types.CommonFilterOperatorGte, types.CommonFilterOperatorLt},
	}
)
