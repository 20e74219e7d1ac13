package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/notification"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/apperr"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/types"
)

// IssueResellerInvoice inserts the reseller invoice for period unless one already exists;
// created is false and inv holds the stored row in that case.
func (m *Manager) IssueResellerInvoice(ctx context.Context, reseller *models.Reseller, period repository.DateRange, count int64, manual bool) (*models.ResellerInvoice, bool, error) {
	subtotal, discount, tax, total := ResellerTotals(count, reseller.PricePerUser)
	inv := &models.ResellerInvoice{
		ResellerID:  reseller.ID,
		PeriodStart: period.From,
		PeriodEnd:   period.To,
		UsersCount:  count,
		UnitPrice:   reseller.PricePerUser,
		Subtotal:    subtotal,
		Discount:    discount,
		Tax:         tax,
		Total:       total,
		Currency:    reseller.Currency,
		Status:      types.InvoiceStatusUnpaid,
		Meta:        datatypes.NewJSONType(models.ResellerInvoiceMeta{ResellerName: reseller.Name, Manual: manual}),
	}
	if inv.Currency == "" {
		inv.Currency = "IDR"
	}
	created, err := m.store.CreateResellerInvoice(ctx, inv)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create reseller invoice: %w", err)
	}
	if created {
		logctx.FromCtx(ctx, m.log).Infow("reseller_invoice_issued",
			"invoice_id", inv.ID, "reseller_id", reseller.ID, "period_start", dates.Format(period.From),
			"users_count", count, "total", total)
	}
	return inv, created, nil
}

// NotifyResellerInvoice tells the reseller a new invoice is waiting.
func (m *Manager) NotifyResellerInvoice(ctx context.Context, reseller *models.Reseller, inv *models.ResellerInvoice) notification.Delivery {
	return m.notifier.Notify(ctx, notification.ResellerInvoiceIssued(reseller.Phone, reseller.Name, inv.PeriodStart, inv.Total, ResellerDueDay))
}

// GenerateResellerInvoice bills a reseller for a calendar month on demand. A zero year or
// month defaults to the current one.
func (m *Manager) GenerateResellerInvoice(ctx context.Context, resellerID string, year, month int) (*models.ResellerInvoice, error) {
	today := m.Today()
	if year == 0 {
		year = today.Year()
	}
	if month == 0 {
		month = int(today.Month())
	}
	if month < 1 || month > 12 {
		return nil, apperr.Validation("month must be between 1 and 12")
	}
	if year < 2000 || year > 9999 {
		return nil, apperr.Validation("invalid year %d", year)
	}

	reseller, err := m.store.GetReseller(ctx, resellerID)
	if err != nil {
		return nil, mapNotFound(err, "reseller %s not found", resellerID)
	}
	start, end := dates.MonthRange(year, time.Month(month))
	period := repository.DateRange{From: start, To: end}

	existing, err := m.store.FindResellerInvoice(ctx, resellerID, period)
	switch {
	case err == nil:
		return nil, apperr.Conflict("invoice %s already exists for %04d-%02d", existing.ID, year, month)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to look up reseller invoice: %w", err)
	}

	count, err := m.store.CountActiveSubscribers(ctx, resellerID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers: %w", err)
	}
	inv, created, err := m.IssueResellerInvoice(ctx, reseller, period, count, true)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, apperr.Conflict("invoice %s already exists for %04d-%02d", inv.ID, year, month)
	}
	m.NotifyResellerInvoice(ctx, reseller, inv)
	return inv, nil
}

// PayResellerInvoice stamps a reseller invoice paid and notifies the reseller.
func (m *Manager) PayResellerInvoice(ctx context.Context, scope repository.Scope, invoiceID string) (*models.ResellerInvoice, error) {
	var (
		inv      *models.ResellerInvoice
		reseller *models.Reseller
	)
	err := m.store.Transaction(ctx, func(tx repository.Ledger) error {
		var err error
		inv, err = tx.GetResellerInvoice(ctx, scope, invoiceID)
		if err != nil {
			return mapNotFound(err, "reseller invoice %s not found", invoiceID)
		}
		if inv.IsPaid() {
			return apperr.Conflict("reseller invoice %s is already paid", invoiceID)
		}
		paidAt := m.now()
		ok, err := tx.MarkResellerInvoicePaid(ctx, inv.ID, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("reseller invoice %s is already paid", invoiceID)
		}
		inv.Status = types.InvoiceStatusPaid
		inv.PaidAt = &paidAt

		reseller, err = tx.GetReseller(ctx, inv.ResellerID)
		if err != nil {
			return mapNotFound(err, "reseller %s not found", inv.ResellerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, m.log).Infow("reseller_invoice_paid", "invoice_id", inv.ID, "reseller_id", inv.ResellerID)
	m.notifier.Notify(ctx, notification.ResellerInvoicePaid(reseller.Phone, reseller.Name, inv.ID))
	return inv, nil
}

func (m *Manager) GetResellerInvoice(ctx context.Context, scope repository.Scope, id string) (*models.ResellerInvoice, error) {
	inv, err := m.store.GetResellerInvoice(ctx, scope, id)
	if err != nil {
		return nil, mapNotFound(err, "reseller invoice %s not found", id)
	}
	return inv, nil
}

func (m *Manager) ListResellerInvoices(ctx context.Context, q repository.ListQuery) ([]*models.ResellerInvoice, int64, error) {
	if err := repository.ResellerInvoiceFilters.Validate(q.Filters); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindValidation, err, "invalid filter")
	}
	return m.store.ListResellerInvoices(ctx, q)
}
