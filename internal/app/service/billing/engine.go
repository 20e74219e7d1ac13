// Package billing holds the batch jobs that advance the invoice lifecycle without a human:
// issuing due invoices, reminding, suspending and billing resellers. Every job is safe to
// re-run on the same day and isolates per-item failures.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/invoice"
	"github.com/bayarinter/billing/internal/app/service/notification"
	"github.com/bayarinter/billing/internal/app/service/session"
	"github.com/bayarinter/billing/pkg/apperr"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/types"
)

const (
	// LeadDays is how far ahead of expiry the next invoice is issued.
	LeadDays = 3
	// ReminderDaysBeforeMonthEnd positions the unpaid reminder relative to the month end.
	ReminderDaysBeforeMonthEnd = 5
)

// BatchResult counts what one job run did with its candidates.
type BatchResult struct {
	Job        string `json:"job"`
	Candidates int    `json:"candidates"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

type Engine struct {
	store        repository.Ledger
	invoices     *invoice.Manager
	notifier     notification.Notifier
	disconnector session.Disconnector
	log          *zap.SugaredLogger
}

func NewEngine(store repository.Ledger, invoices *invoice.Manager, notifier notification.Notifier, disconnector session.Disconnector, log *zap.SugaredLogger) *Engine {
	return &Engine{store: store, invoices: invoices, notifier: notifier, disconnector: disconnector, log: log}
}

// Run dispatches a job by name.
func (e *Engine) Run(ctx context.Context, job string, today time.Time) (*BatchResult, error) {
	switch job {
	case types.JobGenerateCustomerInvoices:
		return e.GenerateDueCustomerInvoices(ctx, today)
	case types.JobRemindUnpaidInvoices:
		return e.RemindUnpaidInvoices(ctx, today)
	case types.JobSuspendOverdueUsers:
		return e.SuspendOverdueUsers(ctx, today)
	case types.JobGenerateResellerInvoices:
		return e.GenerateResellerInvoices(ctx, today)
	}
	return nil, apperr.Validation("unknown job %q", job)
}

func (e *Engine) itemFailed(ctx context.Context, res *BatchResult, err error, kv ...any) {
	res.Failed++
	logctx.FromCtx(ctx, e.log).Errorw(fmt.Sprintf("job_%s_item_failed", res.Job), append(kv, "err", err)...)
}

func (e *Engine) delivered(ctx context.Context, res *BatchResult, d notification.Delivery, kv ...any) {
	if d.Delivered {
		return
	}
	logctx.FromCtx(ctx, e.log).Warnw(fmt.Sprintf("job_%s_notify_failed", res.Job), append(kv, "detail", d.Detail)...)
}

// GenerateDueCustomerInvoices issues a one-month invoice for every subscriber whose
// service ends LeadDays from today.
func (e *Engine) GenerateDueCustomerInvoices(ctx context.Context, today time.Time) (*BatchResult, error) {
	res := &BatchResult{Job: types.JobGenerateCustomerInvoices}
	due := dates.AddDays(today, LeadDays)

	subs, err := e.store.ListSubscribersDueOn(ctx, due)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscribers: %w", err)
	}
	res.Candidates = len(subs)

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		inv, created, err := e.invoices.IssueCustomerInvoice(ctx, sub, 1, true)
		if err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				res.Skipped++
				continue
			}
			e.itemFailed(ctx, res, err, "user_id", sub.ID)
			continue
		}
		if !created {
			res.Skipped++
			continue
		}
		res.Processed++
		d := e.notifier.Notify(ctx, notification.InvoiceIssued(sub.Phone, sub.Username, sub.Profile.Name, inv.Amount, due))
		e.delivered(ctx, res, d, "user_id", sub.ID, "invoice_id", inv.ID)
	}
	return res, nil
}

// RemindUnpaidInvoices reminds owners of unpaid invoices exactly ReminderDaysBeforeMonthEnd
// days before the end of the month their service expires in.
func (e *Engine) RemindUnpaidInvoices(ctx context.Context, today time.Time) (*BatchResult, error) {
	res := &BatchResult{Job: types.JobRemindUnpaidInvoices}

	rows, err := e.store.ListUnpaidCustomerInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid invoices: %w", err)
	}
	res.Candidates = len(rows)

	for _, row := range rows {
		if row.ActiveUntil == nil {
			res.Skipped++
			continue
		}
		monthEnd := dates.LastOfMonth(*row.ActiveUntil)
		if !dates.AddDays(monthEnd, -ReminderDaysBeforeMonthEnd).Equal(today) {
			res.Skipped++
			continue
		}
		res.Processed++
		d := e.notifier.Notify(ctx, notification.InvoiceReminder(row.Phone, row.Username, row.PeriodStart, row.PeriodEnd, monthEnd))
		e.delivered(ctx, res, d, "invoice_id", row.ID)
	}
	return res, nil
}

// SuspendOverdueUsers suspends owners of unpaid invoices whose period ended before this
// month. Subscribers already suspended are left alone and not notified again.
func (e *Engine) SuspendOverdueUsers(ctx context.Context, today time.Time) (*BatchResult, error) {
	res := &BatchResult{Job: types.JobSuspendOverdueUsers}

	rows, err := e.store.ListOverdueCustomerInvoices(ctx, dates.FirstOfMonth(today))
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue invoices: %w", err)
	}
	res.Candidates = len(rows)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		changed, err := e.store.UpdateSubscriberStatus(ctx, row.UserID, types.SubscriberStatusSuspended)
		if err != nil {
			e.itemFailed(ctx, res, err, "user_id", row.UserID, "invoice_id", row.ID)
			continue
		}
		if !changed {
			res.Skipped++
			continue
		}
		res.Processed++
		logctx.FromCtx(ctx, e.log).Infow("subscriber_suspended", "user_id", row.UserID, "invoice_id", row.ID)

		d := e.notifier.Notify(ctx, notification.Suspended(row.Phone, row.Username, today))
		e.delivered(ctx, res, d, "user_id", row.UserID)
		e.disconnector.Disconnect(ctx, row.Username)
	}
	return res, nil
}

// GenerateResellerInvoices bills every reseller for last month's active subscribers.
func (e *Engine) GenerateResellerInvoices(ctx context.Context, today time.Time) (*BatchResult, error) {
	res := &BatchResult{Job: types.JobGenerateResellerInvoices}
	start, end := dates.PreviousMonth(today)
	period := repository.DateRange{From: start, To: end}

	resellers, err := e.store.ListResellers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list resellers: %w", err)
	}
	res.Candidates = len(resellers)

	for _, r := range resellers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		count, err := e.store.CountActiveSubscribers(ctx, r.ID, &period)
		if err != nil {
			e.itemFailed(ctx, res, err, "reseller_id", r.ID)
			continue
		}
		inv, created, err := e.invoices.IssueResellerInvoice(ctx, r, period, count, false)
		if err != nil {
			e.itemFailed(ctx, res, err, "reseller_id", r.ID)
			continue
		}
		if !created {
			res.Skipped++
			continue
		}
		res.Processed++
		d := e.invoices.NotifyResellerInvoice(ctx, r, inv)
		e.delivered(ctx, res, d, "reseller_id", r.ID, "invoice_id", inv.ID)
	}
	return res, nil
}

var Module = fx.Options(
	fx.Provide(NewEngine),
)
