// Package invoice owns every status, paid_at and active_until write: the unpaid -> paid
// transition of customer and reseller invoices and the subscription extension it implies.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/notification"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/apperr"
	cfgpkg "github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/types"
)

type Manager struct {
	store    repository.Ledger
	notifier notification.Notifier
	log      *zap.SugaredLogger
	loc      *time.Location
	now      func() time.Time
}

func NewManager(store repository.Ledger, notifier notification.Notifier, log *zap.SugaredLogger, cfg *cfgpkg.Config) *Manager {
	return &Manager{store: store, notifier: notifier, log: log, loc: cfg.Location(), now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Today is the current calendar day in the billing timezone.
func (m *Manager) Today() time.Time {
	return dates.Today(m.now(), m.loc)
}

// PayOptions describes the money applied when an invoice is paid.
type PayOptions struct {
	Amount        *int64
	Method        string
	ProviderTxnID *string
	PaidAt        *time.Time
	// ExistingPaymentID is set when the Payment row was already written by reconciliation.
	ExistingPaymentID string
}

// PaidCustomerInvoice is the committed outcome of a customer pay transition.
type PaidCustomerInvoice struct {
	Invoice       *models.CustomerInvoice `json:"invoice"`
	Payment       *models.Payment         `json:"payment,omitempty"`
	PreviousUntil *time.Time              `json:"previous_active_until"`
	ActiveUntil   time.Time               `json:"active_until"`
	username      string
	phone         string
}

func mapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}

// IssueCustomerInvoice creates the next invoice for sub covering months billing months.
// An invoice for exactly that period is returned with created=false; any other
// overlapping invoice is a Conflict. sub must have its Profile loaded.
//
// The subscriber row is locked for the check and the insert, so concurrent issues with
// different month counts cannot both pass the overlap check.
func (m *Manager) IssueCustomerInvoice(ctx context.Context, sub *models.Subscriber, months int, auto bool) (*models.CustomerInvoice, bool, error) {
	if months < 1 || months > MaxMonths {
		return nil, false, apperr.Validation("months must be between 1 and %d", MaxMonths)
	}
	if sub.Profile == nil {
		return nil, false, apperr.NotFound("profile for subscriber %s not found", sub.ID)
	}

	var (
		inv     *models.CustomerInvoice
		created bool
	)
	err := m.store.Transaction(ctx, func(tx repository.Ledger) error {
		var err error
		inv, created, err = m.issueCustomerInvoiceTx(ctx, tx, sub, months, auto)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		logctx.FromCtx(ctx, m.log).Infow("invoice_issued",
			"invoice_id", inv.ID, "user_id", sub.ID, "period_start", dates.Format(inv.PeriodStart),
			"period_end", dates.Format(inv.PeriodEnd), "amount", inv.Amount, "auto", auto)
	}
	return inv, created, nil
}

func (m *Manager) issueCustomerInvoiceTx(ctx context.Context, tx repository.Ledger, sub *models.Subscriber, months int, auto bool) (*models.CustomerInvoice, bool, error) {
	locked, err := tx.GetSubscriberForUpdate(ctx, sub.ID)
	if err != nil {
		return nil, false, mapNotFound(err, "subscriber %s not found", sub.ID)
	}

	after := m.Today()
	if locked.ActiveUntil != nil {
		after = *locked.ActiveUntil
	}
	period := CustomerPeriod(after, months)

	overlap, err := tx.FindOverlappingCustomerInvoice(ctx, sub.ID, period)
	switch {
	case err == nil:
		if overlap.PeriodStart.Equal(period.From) && overlap.PeriodEnd.Equal(period.To) {
			return overlap, false, nil
		}
		return nil, false, apperr.Conflict("invoice %s already covers %s..%s",
			overlap.ID, dates.Format(overlap.PeriodStart), dates.Format(overlap.PeriodEnd))
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("failed to check overlapping invoices: %w", err)
	}

	inv := &models.CustomerInvoice{
		ResellerID:  sub.ResellerID,
		UserID:      sub.ID,
		ProfileID:   sub.ProfileID,
		PeriodStart: period.From,
		PeriodEnd:   period.To,
		Amount:      sub.Profile.Price * int64(months),
		Status:      types.InvoiceStatusUnpaid,
		Meta: datatypes.NewJSONType(models.CustomerInvoiceMeta{
			Username:      sub.Username,
			FullName:      sub.FullName,
			Phone:         sub.Phone,
			ProfileName:   sub.Profile.Name,
			UnitPrice:     sub.Profile.Price,
			Months:        months,
			AutoGenerated: auto,
		}),
	}
	created, err := tx.CreateCustomerInvoice(ctx, inv)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create invoice: %w", err)
	}
	return inv, created, nil
}

// CreateCustomerInvoice is the manual, reseller-scoped issue path. A new invoice notifies
// the subscriber; an existing invoice for the same period is returned silently.
func (m *Manager) CreateCustomerInvoice(ctx context.Context, scope repository.Scope, subscriberID string, months int) (*models.CustomerInvoice, bool, error) {
	if months < 1 || months > MaxMonths {
		return nil, false, apperr.Validation("months must be between 1 and %d", MaxMonths)
	}
	sub, err := m.store.GetSubscriber(ctx, scope, subscriberID)
	if err != nil {
		return nil, false, mapNotFound(err, "subscriber %s not found", subscriberID)
	}
	inv, created, err := m.IssueCustomerInvoice(ctx, sub, months, false)
	if err != nil {
		return nil, false, err
	}
	if created {
		m.notifier.Notify(ctx, notification.InvoiceCreated(sub.Phone, months, sub.Profile.Name, inv.Amount, inv.PeriodEnd))
	}
	return inv, created, nil
}

// PayCustomerInvoice runs the pay transition in its own transaction and notifies after commit.
func (m *Manager) PayCustomerInvoice(ctx context.Context, scope repository.Scope, invoiceID string, p PayOptions) (*PaidCustomerInvoice, error) {
	var res *PaidCustomerInvoice
	err := m.store.Transaction(ctx, func(tx repository.Ledger) error {
		var err error
		res, err = m.PayCustomerInvoiceTx(ctx, tx, scope, invoiceID, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.NotifyCustomerPaid(ctx, res)
	return res, nil
}

// PayCustomerInvoiceTx applies unpaid -> paid inside tx. Concurrent callers are serialized
// by the conditional status update; the loser gets Conflict. The subscriber row is locked
// before active_until is read so extensions from different invoices stack.
func (m *Manager) PayCustomerInvoiceTx(ctx context.Context, tx repository.Ledger, scope repository.Scope, invoiceID string, p PayOptions) (*PaidCustomerInvoice, error) {
	inv, err := tx.GetCustomerInvoice(ctx, scope, invoiceID)
	if err != nil {
		return nil, mapNotFound(err, "invoice %s not found", invoiceID)
	}
	if inv.IsPaid() {
		return nil, apperr.Conflict("invoice %s is already paid", invoiceID)
	}

	paidAt := lo.FromPtrOr(p.PaidAt, m.now())
	ok, err := tx.MarkCustomerInvoicePaid(ctx, inv.ID, paidAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("invoice %s is already paid", invoiceID)
	}
	inv.Status = types.InvoiceStatusPaid
	inv.PaidAt = &paidAt

	sub, err := tx.GetSubscriberForUpdate(ctx, inv.UserID)
	if err != nil {
		return nil, mapNotFound(err, "subscriber %s not found", inv.UserID)
	}
	until := ExtendActiveUntil(sub.ActiveUntil, inv)
	if err := tx.UpdateSubscriberActiveUntil(ctx, sub.ID, until); err != nil {
		return nil, fmt.Errorf("failed to extend subscriber: %w", err)
	}

	res := &PaidCustomerInvoice{
		Invoice:       inv,
		PreviousUntil: sub.ActiveUntil,
		ActiveUntil:   until,
		username:      sub.Username,
		phone:         sub.Phone,
	}
	if p.ExistingPaymentID == "" {
		payment := &models.Payment{
			InvoiceID:     inv.ID,
			Amount:        lo.FromPtrOr(p.Amount, inv.Amount),
			Method:        lo.CoalesceOrEmpty(p.Method, types.PaymentMethodManual),
			ProviderTxnID: p.ProviderTxnID,
			Status:        types.PaymentStatusSuccess,
			PaidAt:        &paidAt,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, apperr.Conflict("payment %s already recorded", lo.FromPtr(p.ProviderTxnID))
			}
			return nil, fmt.Errorf("failed to record payment: %w", err)
		}
		res.Payment = payment
	}

	logctx.FromCtx(ctx, m.log).Infow("invoice_paid",
		"invoice_id", inv.ID, "user_id", sub.ID, "previous_until", sub.ActiveUntil, "active_until", dates.Format(until))
	return res, nil
}

// NotifyCustomerPaid tells the subscriber about a committed payment.
func (m *Manager) NotifyCustomerPaid(ctx context.Context, res *PaidCustomerInvoice) {
	if res == nil {
		return
	}
	m.notifier.Notify(ctx, notification.InvoicePaid(res.phone, res.username, res.Invoice.ID, res.ActiveUntil))
}

func (m *Manager) GetCustomerInvoice(ctx context.Context, scope repository.Scope, id string) (*models.CustomerInvoice, error) {
	inv, err := m.store.GetCustomerInvoice(ctx, scope, id)
	if err != nil {
		return nil, mapNotFound(err, "invoice %s not found", id)
	}
	return inv, nil
}

func (m *Manager) ListCustomerInvoices(ctx context.Context, q repository.ListQuery) ([]*models.CustomerInvoice, int64, error) {
	if err := repository.CustomerInvoiceFilters.Validate(q.Filters); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindValidation, err, "invalid filter")
	}
	return m.store.ListCustomerInvoices(ctx, q)
}

var Module = fx.Options(
	fx.Provide(NewManager),
)
