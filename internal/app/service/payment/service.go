// Package payment records manual payments and reconciles provider callbacks against
// customer invoices. At most one Payment exists per provider transaction id, and a
// replayed success never extends a subscription twice.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/invoice"
	notificationlog "github.com/bayarinter/billing/internal/app/service/notification_log"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/internal/platform/duitku"
	"github.com/bayarinter/billing/pkg/apperr"
	"github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/metrics"
	"github.com/bayarinter/billing/pkg/types"
)

// Reconciliation actions reported in CallbackResult.Action.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
)

type Service struct {
	cfg      *config.Config
	store    repository.Ledger
	invoices *invoice.Manager
	logs     *notificationlog.Service
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewService(cfg *config.Config, store repository.Ledger, invoices *invoice.Manager, logs *notificationlog.Service, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, store: store, invoices: invoices, logs: logs, log: log, now: time.Now}
}

// ManualPayment is a reseller-entered payment.
type ManualPayment struct {
	InvoiceID     string
	Amount        *int64
	Method        string
	ProviderTxnID *string
	Status        types.PaymentStatus
	PaidAt        *time.Time
}

// CreateManualPayment records a payment against one of the caller's invoices. A
// successful payment pays the invoice in the same transaction.
func (s *Service) CreateManualPayment(ctx context.Context, scope repository.Scope, req ManualPayment) (*models.Payment, error) {
	if req.Status == "" {
		req.Status = types.PaymentStatusSuccess
	}
	if !req.Status.Valid() {
		return nil, apperr.Validation("unknown payment status %q", req.Status)
	}
	if req.Amount != nil && *req.Amount < 0 {
		return nil, apperr.Validation("amount must not be negative")
	}
	req.Method = lo.CoalesceOrEmpty(req.Method, types.PaymentMethodManual)
	if req.ProviderTxnID != nil && *req.ProviderTxnID == "" {
		req.ProviderTxnID = nil
	}

	if req.Status == types.PaymentStatusSuccess {
		res, err := s.invoices.PayCustomerInvoice(ctx, scope, req.InvoiceID, invoice.PayOptions{
			Amount:        req.Amount,
			Method:        req.Method,
			ProviderTxnID: req.ProviderTxnID,
			PaidAt:        req.PaidAt,
		})
		if err != nil {
			return nil, err
		}
		return res.Payment, nil
	}

	inv, err := s.invoices.GetCustomerInvoice(ctx, scope, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	p := &models.Payment{
		InvoiceID:     inv.ID,
		Amount:        lo.FromPtrOr(req.Amount, inv.Amount),
		Method:        req.Method,
		ProviderTxnID: req.ProviderTxnID,
		Status:        req.Status,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("payment %s already recorded", lo.FromPtr(req.ProviderTxnID))
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("payment_recorded", "payment_id", p.ID, "invoice_id", inv.ID, "status", p.Status)
	return p, nil
}

func (s *Service) GetPayment(ctx context.Context, scope repository.Scope, id string) (*models.Payment, error) {
	p, err := s.store.GetPayment(ctx, scope, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("payment %s not found", id)
	}
	return p, err
}

func (s *Service) ListPayments(ctx context.Context, q repository.ListQuery) ([]*models.Payment, int64, error) {
	if err := repository.PaymentFilters.Validate(q.Filters); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindValidation, err, "invalid filter")
	}
	return s.store.ListPayments(ctx, q)
}

// DuitkuParser builds a parser bound to the configured merchant credentials.
func (s *Service) DuitkuParser(cb *duitku.Callback) CallbackParser {
	return NewDuitkuParser(s.cfg.Duitku, cb, s.now())
}

// CallbackResult is the outcome of a reconciled callback.
type CallbackResult struct {
	Provider    types.PaymentProvider `json:"provider"`
	InvoiceID   string                `json:"invoice_id"`
	TxnID       string                `json:"txn_id"`
	PaymentID   string                `json:"payment_id"`
	Status      types.PaymentStatus   `json:"status"`
	Action      string                `json:"action"`
	InvoicePaid bool                  `json:"invoice_paid"`
	ActiveUntil *time.Time            `json:"active_until,omitempty"`

	paid *invoice.PaidCustomerInvoice
}

// HandleCallback audits, verifies and reconciles one provider callback. The "received"
// audit row is written before verification; a callback that cannot be audited is not
// processed. A body that failed to decode arrives as a malformed parser and is
// rejected as invalid input after it is audited.
func (s *Service) HandleCallback(ctx context.Context, p CallbackParser) (result *CallbackResult, resErr error) {
	provider := p.Provider()
	lg := logctx.FromCtx(ctx, s.log).With("provider", provider, "order_id", p.OrderID(), "txn_id", p.TransactionID())
	data, _ := json.Marshal(p.Data())

	entry := func(status types.NotificationLogStatus, res map[string]any) *models.PaymentNotificationLog {
		l := &models.PaymentNotificationLog{
			ProviderID:    provider,
			OrderID:       p.OrderID(),
			TransactionID: p.TransactionID(),
			Data:          datatypes.JSON(data),
			Status:        status,
		}
		if res != nil {
			b, _ := json.Marshal(res)
			l.Result = lo.ToPtr(datatypes.JSON(b))
		}
		return l
	}

	if err := s.logs.Save(ctx, entry(types.NotificationLogStatusReceived, nil)); err != nil {
		return nil, err
	}

	if err := p.Verify(); err != nil {
		lg.Warnw("payment_callback_rejected", "err", err)
		_ = s.logs.Save(ctx, entry(types.NotificationLogStatusRejected, map[string]any{"error": err.Error()}))
		metrics.Callbacks.WithLabelValues(string(provider), string(types.NotificationLogStatusRejected)).Inc()
		if errors.Is(err, ErrMalformedCallback) {
			return nil, apperr.Wrap(apperr.KindValidation, err, err.Error())
		}
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, "invalid callback signature")
	}

	defer func() {
		status := types.NotificationLogStatusHandled
		res := map[string]any{"result": result}
		if resErr != nil {
			status = types.NotificationLogStatusHandleFailed
			res = map[string]any{"error": resErr.Error()}
			lg.Errorw("payment_callback_failed", "err", resErr)
		}
		_ = s.logs.Save(ctx, entry(status, res))
		metrics.Callbacks.WithLabelValues(string(provider), string(status)).Inc()
	}()

	ev, err := p.Event()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "malformed callback")
	}

	err = s.store.Transaction(ctx, func(tx repository.Ledger) error {
		var err error
		result, err = s.reconcile(ctx, tx, ev)
		return err
	})
	if err != nil {
		return nil, err
	}

	lg.Infow("payment_callback_handled", "action", result.Action, "status", result.Status, "invoice_paid", result.InvoicePaid)
	if result.paid != nil {
		s.invoices.NotifyCustomerPaid(ctx, result.paid)
	}
	return result, nil
}

// reconcile upserts the Payment keyed by provider txn id and pays the invoice on the
// first transition into success.
func (s *Service) reconcile(ctx context.Context, tx repository.Ledger, ev *Event) (*CallbackResult, error) {
	inv, err := tx.GetCustomerInvoice(ctx, repository.SystemScope(), ev.InvoiceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("invoice %s not found", ev.InvoiceID)
	}
	if err != nil {
		return nil, err
	}
	if ev.Amount != 0 && ev.Amount != inv.Amount {
		logctx.FromCtx(ctx, s.log).Warnw("payment_amount_mismatch", "invoice_id", inv.ID, "invoice_amount", inv.Amount, "paid_amount", ev.Amount)
	}

	result := &CallbackResult{Provider: ev.Provider, InvoiceID: inv.ID, TxnID: ev.TxnID, Status: ev.Status}
	paidAt := ev.PaidAt
	if ev.Status == types.PaymentStatusSuccess && paidAt == nil {
		paidAt = lo.ToPtr(s.now())
	}

	pay, err := s.upsertPayment(ctx, tx, ev, inv, paidAt, result)
	if err != nil {
		return nil, err
	}
	result.PaymentID = pay.ID

	if pay.Status != types.PaymentStatusSuccess || inv.IsPaid() {
		return result, nil
	}
	paid, err := s.invoices.PayCustomerInvoiceTx(ctx, tx, repository.SystemScope(), inv.ID, invoice.PayOptions{
		ExistingPaymentID: pay.ID,
		PaidAt:            paidAt,
	})
	if errors.Is(err, apperr.ErrConflict) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.InvoicePaid = true
	result.ActiveUntil = &paid.ActiveUntil
	result.paid = paid
	return result, nil
}

func (s *Service) upsertPayment(ctx context.Context, tx repository.Ledger, ev *Event, inv *models.CustomerInvoice, paidAt *time.Time, result *CallbackResult) (*models.Payment, error) {
	for range 2 {
		existing, err := tx.GetPaymentByProviderTxnID(ctx, ev.TxnID)
		switch {
		case err == nil:
			if existing.InvoiceID != inv.ID {
				return nil, apperr.Conflict("transaction %s belongs to invoice %s", ev.TxnID, existing.InvoiceID)
			}
			if existing.Status == ev.Status {
				result.Action = ActionUnchanged
				return existing, nil
			}
			if err := tx.UpdatePaymentStatus(ctx, existing.ID, ev.Status, paidAt); err != nil {
				return nil, fmt.Errorf("failed to update payment: %w", err)
			}
			existing.Status = ev.Status
			existing.PaidAt = paidAt
			result.Action = ActionUpdated
			return existing, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("failed to look up payment: %w", err)
		}

		pay := &models.Payment{
			InvoiceID:     inv.ID,
			Amount:        lo.Ternary(ev.Amount > 0, ev.Amount, inv.Amount),
			Method:        ev.Method,
			ProviderTxnID: lo.ToPtr(ev.TxnID),
			Status:        ev.Status,
			PaidAt:        paidAt,
		}
		err = tx.CreatePayment(ctx, pay)
		if err == nil {
			result.Action = ActionCreated
			return pay, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("failed to record payment: %w", err)
		}
		// lost an insert race; read the winner's row
	}
	return nil, apperr.Conflict("transaction %s is being processed concurrently", ev.TxnID)
}

var Module = fx.Options(
	fx.Provide(NewService),
)
