package payment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/invoice"
	"github.com/bayarinter/billing/internal/app/service/notification"
	"github.com/bayarinter/billing/internal/app/service/notification/notificationtest"
	notificationlog "github.com/bayarinter/billing/internal/app/service/notification_log"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/internal/platform/duitku"
	"github.com/bayarinter/billing/pkg/apperr"
	"github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/types"
)

const (
	resellerA    = "0190a000-0000-7000-8000-00000000000a"
	resellerB    = "0190a000-0000-7000-8000-00000000000b"
	merchantCode = "D1234"
	apiKey       = "secret-key"
)

type fixture struct {
	store    *repository.Memory
	notifier *notificationtest.Recorder
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemory()
	store.PutReseller(models.Reseller{ID: resellerA, Name: "Net A"})
	store.PutProfile(models.Profile{ID: "p1", ResellerID: resellerA, Name: "10M", Price: 150000})
	store.PutSubscriber(models.Subscriber{ID: "u1", ResellerID: resellerA, Username: "budi", Phone: "08123",
		ProfileID: lo.ToPtr("p1"), IsActive: true, ActiveUntil: lo.ToPtr(dates.New(2025, 1, 10))})
	store.PutCustomerInvoice(models.CustomerInvoice{ID: "inv-1", ResellerID: resellerA, UserID: "u1", ProfileID: lo.ToPtr("p1"),
		PeriodStart: dates.New(2025, 1, 11), PeriodEnd: dates.New(2025, 2, 9), Amount: 150000, Status: types.InvoiceStatusUnpaid})

	cfg := &config.Config{Timezone: "UTC", Duitku: config.DuitkuConfig{MerchantCode: merchantCode, APIKey: apiKey}}
	log := zap.NewNop().Sugar()
	rec := &notificationtest.Recorder{}
	now := func() time.Time { return time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC) }
	manager := invoice.NewManager(store, rec, log, cfg).WithClock(now)
	svc := NewService(cfg, store, manager, notificationlog.New(store, log), log)
	svc.now = now
	return &fixture{store: store, notifier: rec, svc: svc}
}

func (f *fixture) activeUntil(t *testing.T) time.Time {
	t.Helper()
	sub, ok := f.store.Subscriber("u1")
	require.True(t, ok)
	return *sub.ActiveUntil
}

func duitkuCallback(resultCode, reference string) *duitku.Callback {
	return &duitku.Callback{
		MerchantCode:    merchantCode,
		Amount:          "150000",
		MerchantOrderID: "inv-1",
		Reference:       reference,
		ResultCode:      resultCode,
		Signature:       duitku.Signature(merchantCode, "150000", "inv-1", apiKey),
	}
}

func logStatuses(store *repository.Memory) []types.NotificationLogStatus {
	return lo.Map(store.NotificationLogs(), func(l models.PaymentNotificationLog, _ int) types.NotificationLogStatus {
		return l.Status
	})
}

func TestCreateManualPayment_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.svc.CreateManualPayment(ctx, repository.ResellerScope(resellerA), ManualPayment{InvoiceID: "inv-1", Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, "cash", p.Method)
	assert.Equal(t, int64(150000), p.Amount)
	assert.Equal(t, types.PaymentStatusSuccess, p.Status)
	assert.True(t, f.store.CustomerInvoices()[0].IsPaid())
	assert.Equal(t, dates.New(2025, 2, 9), f.activeUntil(t))
	assert.Equal(t, []string{notification.KindInvoicePaid}, f.notifier.Kinds())

	_, err = f.svc.CreateManualPayment(ctx, repository.ResellerScope(resellerA), ManualPayment{InvoiceID: "inv-1"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, f.store.Payments(), 1)
}

func TestCreateManualPayment_PendingDoesNotPay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.svc.CreateManualPayment(ctx, repository.ResellerScope(resellerA), ManualPayment{
		InvoiceID: "inv-1", Status: types.PaymentStatusPending, Amount: lo.ToPtr(int64(50000)), ProviderTxnID: lo.ToPtr("BANK-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, types.PaymentMethodManual, p.Method)
	assert.Equal(t, int64(50000), p.Amount)
	assert.False(t, f.store.CustomerInvoices()[0].IsPaid())
	assert.Equal(t, dates.New(2025, 1, 10), f.activeUntil(t))

	_, err = f.svc.CreateManualPayment(ctx, repository.ResellerScope(resellerA), ManualPayment{
		InvoiceID: "inv-1", Status: types.PaymentStatusPending, ProviderTxnID: lo.ToPtr("BANK-1"),
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateManualPayment_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateManualPayment(ctx, repository.ResellerScope(resellerA), ManualPayment{InvoiceID: "inv-1", Status: "refunded"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateManualPayment(ctx, repository.ResellerScope(resellerA), ManualPayment{InvoiceID: "inv-1", Amount: lo.ToPtr(int64(-1))})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateManualPayment(ctx, repository.ResellerScope(resellerB), ManualPayment{InvoiceID: "inv-1"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.CreateManualPayment(ctx, repository.ResellerScope(resellerB), ManualPayment{InvoiceID: "inv-1", Status: types.PaymentStatusFailed})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Empty(t, f.store.Payments())
}

func TestHandleCallback_DuitkuSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.HandleCallback(ctx, f.svc.DuitkuParser(duitkuCallback("00", "REF-1")))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)
	assert.True(t, res.InvoicePaid)
	assert.Equal(t, dates.New(2025, 2, 9), *res.ActiveUntil)

	pays := f.store.Payments()
	require.Len(t, pays, 1)
	assert.Equal(t, "REF-1", *pays[0].ProviderTxnID)
	assert.Equal(t, "duitku", pays[0].Method)
	assert.Equal(t, types.PaymentStatusSuccess, pays[0].Status)
	assert.Equal(t, dates.New(2025, 2, 9), f.activeUntil(t))
	assert.Equal(t, []string{notification.KindInvoicePaid}, f.notifier.Kinds())
	assert.Equal(t, []types.NotificationLogStatus{types.NotificationLogStatusReceived, types.NotificationLogStatusHandled}, logStatuses(f.store))

	// replay: nothing changes, nobody is notified again
	res, err = f.svc.HandleCallback(ctx, f.svc.DuitkuParser(duitkuCallback("00", "REF-1")))
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, res.Action)
	assert.False(t, res.InvoicePaid)
	assert.Len(t, f.store.Payments(), 1)
	assert.Equal(t, dates.New(2025, 2, 9), f.activeUntil(t))
	assert.Len(t, f.notifier.Messages(), 1)
	assert.Len(t, f.store.NotificationLogs(), 4)
}

func TestHandleCallback_PendingThenSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.HandleCallback(ctx, f.svc.DuitkuParser(duitkuCallback("02", "REF-2")))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)
	assert.Equal(t, types.PaymentStatusPending, res.Status)
	assert.False(t, f.store.CustomerInvoices()[0].IsPaid())
	assert.Empty(t, f.notifier.Messages())

	res, err = f.svc.HandleCallback(ctx, f.svc.DuitkuParser(duitkuCallback("00", "REF-2")))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res.Action)
	assert.True(t, res.InvoicePaid)

	pays := f.store.Payments()
	require.Len(t, pays, 1)
	assert.Equal(t, types.PaymentStatusSuccess, pays[0].Status)
	assert.NotNil(t, pays[0].PaidAt)
	assert.Equal(t, dates.New(2025, 2, 9), f.activeUntil(t))
	assert.Len(t, f.notifier.Messages(), 1)
}

func TestHandleCallback_FailedResultCode(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.HandleCallback(context.Background(), f.svc.DuitkuParser(duitkuCallback("01", "REF-3")))
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusFailed, res.Status)
	assert.False(t, res.InvoicePaid)
	assert.Equal(t, dates.New(2025, 1, 10), f.activeUntil(t))
}

func TestHandleCallback_BadSignature(t *testing.T) {
	f := newFixture(t)
	cb := duitkuCallback("00", "REF-4")
	cb.Signature = "deadbeef"

	_, err := f.svc.HandleCallback(context.Background(), f.svc.DuitkuParser(cb))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	assert.Empty(t, f.store.Payments())
	assert.False(t, f.store.CustomerInvoices()[0].IsPaid())
	assert.Empty(t, f.notifier.Messages())
	assert.Equal(t, []types.NotificationLogStatus{types.NotificationLogStatusReceived, types.NotificationLogStatusRejected}, logStatuses(f.store))
	assert.Equal(t, "inv-1", f.store.NotificationLogs()[0].OrderID)
}

func TestHandleCallback_MalformedBody(t *testing.T) {
	f := newFixture(t)
	raw := []byte(`{"merchantOrderId":"inv-1","amount":150000}`)

	_, err := f.svc.HandleCallback(context.Background(),
		NewMalformedParser(types.PaymentProviderDuitku, raw, errors.New("cannot unmarshal number into string")))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.ErrorIs(t, err, ErrMalformedCallback)

	assert.Empty(t, f.store.Payments())
	assert.False(t, f.store.CustomerInvoices()[0].IsPaid())
	assert.Equal(t, []types.NotificationLogStatus{types.NotificationLogStatusReceived, types.NotificationLogStatusRejected}, logStatuses(f.store))
	logs := f.store.NotificationLogs()
	assert.Equal(t, types.PaymentProviderDuitku, logs[0].ProviderID)
	assert.JSONEq(t, string(raw), string(logs[0].Data))
}

func TestMalformedParser_KeepsNonJSONBodyAsText(t *testing.T) {
	p := NewMalformedParser(types.PaymentProviderGeneric, []byte("a=1&b=2"), errors.New("bad"))
	assert.Equal(t, "a=1&b=2", p.Data())
	_, err := p.Event()
	assert.ErrorIs(t, err, ErrMalformedCallback)
}

func TestHandleCallback_SignatureIgnoresCase(t *testing.T) {
	f := newFixture(t)
	cb := duitkuCallback("00", "REF-5")
	cb.Signature = strings.ToUpper(cb.Signature)

	_, err := f.svc.HandleCallback(context.Background(), f.svc.DuitkuParser(cb))
	require.NoError(t, err)
}

func TestHandleCallback_UnknownInvoice(t *testing.T) {
	f := newFixture(t)
	cb := duitkuCallback("00", "REF-6")
	cb.MerchantOrderID = "inv-404"
	cb.Signature = duitku.Signature(merchantCode, cb.Amount, cb.MerchantOrderID, apiKey)

	_, err := f.svc.HandleCallback(context.Background(), f.svc.DuitkuParser(cb))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.store.Payments())
	assert.Equal(t, []types.NotificationLogStatus{types.NotificationLogStatusReceived, types.NotificationLogStatusHandleFailed}, logStatuses(f.store))
}

func TestHandleCallback_GenericWebhook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paidAt := time.Date(2025, 1, 8, 3, 0, 0, 0, time.UTC)

	res, err := f.svc.HandleCallback(ctx, NewGenericParser(&GenericEvent{
		Provider: "Midtrans", TxnID: "MT-1", InvoiceID: "inv-1", Amount: 150000, Status: "SUCCESS", PaidAt: &paidAt,
	}))
	require.NoError(t, err)
	assert.True(t, res.InvoicePaid)
	pays := f.store.Payments()
	require.Len(t, pays, 1)
	assert.Equal(t, "midtrans", pays[0].Method)
	assert.Equal(t, paidAt, *pays[0].PaidAt)
	assert.Equal(t, paidAt, *f.store.CustomerInvoices()[0].PaidAt)

	_, err = f.svc.HandleCallback(ctx, NewGenericParser(&GenericEvent{TxnID: "MT-2", InvoiceID: "inv-1", Status: "refunded"}))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHandleCallback_RepairsUnpaidInvoiceOnReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// a success payment recorded without the invoice transition
	require.NoError(t, f.store.CreatePayment(ctx, &models.Payment{InvoiceID: "inv-1", Amount: 150000, Method: "duitku",
		ProviderTxnID: lo.ToPtr("REF-7"), Status: types.PaymentStatusSuccess}))

	res, err := f.svc.HandleCallback(ctx, f.svc.DuitkuParser(duitkuCallback("00", "REF-7")))
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, res.Action)
	assert.True(t, res.InvoicePaid)
	assert.Len(t, f.store.Payments(), 1)
	assert.Equal(t, dates.New(2025, 2, 9), f.activeUntil(t))
}

func TestHandleCallback_TxnOfAnotherInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.CreatePayment(ctx, &models.Payment{InvoiceID: "inv-0", Amount: 1, Method: "duitku",
		ProviderTxnID: lo.ToPtr("REF-8"), Status: types.PaymentStatusPending}))

	_, err := f.svc.HandleCallback(ctx, f.svc.DuitkuParser(duitkuCallback("00", "REF-8")))
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.False(t, f.store.CustomerInvoices()[0].IsPaid())
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"150000", 150000, false},
		{" 150000.00 ", 150000, false},
		{"150000.5", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestDuitkuParser_MerchantMismatch(t *testing.T) {
	cb := duitkuCallback("00", "REF-9")
	cb.MerchantCode = "OTHER"
	cb.Signature = duitku.Signature("OTHER", cb.Amount, cb.MerchantOrderID, apiKey)

	p := NewDuitkuParser(config.DuitkuConfig{MerchantCode: merchantCode, APIKey: apiKey}, cb, time.Now())
	assert.Error(t, p.Verify())
}
