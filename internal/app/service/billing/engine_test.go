package billing

import (
	"context"
	"sync"
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
	"github.com/bayarinter/billing/internal/app/service/session"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/apperr"
	"github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/types"
)

const (
	resellerA = "0190a000-0000-7000-8000-00000000000a"
	resellerB = "0190a000-0000-7000-8000-00000000000b"
)

type fakeDisconnector struct {
	mu        sync.Mutex
	usernames []string
}

func (f *fakeDisconnector) Disconnect(ctx context.Context, username string) session.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usernames = append(f.usernames, username)
	return session.Outcome{Success: true, Detail: "no active session"}
}

type fixture struct {
	store        *repository.Memory
	notifier     *notificationtest.Recorder
	disconnector *fakeDisconnector
	engine       *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemory()
	store.PutReseller(models.Reseller{ID: resellerA, Name: "Net A", Phone: "0811111", PricePerUser: 2000})
	store.PutReseller(models.Reseller{ID: resellerB, Name: "Net B", Phone: "0822222", PricePerUser: 3000})
	store.PutProfile(models.Profile{ID: "p1", ResellerID: resellerA, Name: "10M", Price: 150000})
	store.PutSubscriber(models.Subscriber{ID: "u1", ResellerID: resellerA, Username: "budi", Phone: "08123",
		ProfileID: lo.ToPtr("p1"), IsActive: true, ActiveUntil: lo.ToPtr(dates.New(2025, 1, 10))})

	cfg := &config.Config{Timezone: "UTC"}
	rec := &notificationtest.Recorder{}
	disc := &fakeDisconnector{}
	log := zap.NewNop().Sugar()
	manager := invoice.NewManager(store, rec, log, cfg).
		WithClock(func() time.Time { return time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC) })
	return &fixture{
		store:        store,
		notifier:     rec,
		disconnector: disc,
		engine:       NewEngine(store, manager, rec, disc, log),
	}
}

func TestGenerateDueCustomerInvoices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	today := dates.New(2025, 1, 7)

	res, err := f.engine.GenerateDueCustomerInvoices(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Job: types.JobGenerateCustomerInvoices, Candidates: 1, Processed: 1}, *res)

	invs := f.store.CustomerInvoices()
	require.Len(t, invs, 1)
	assert.Equal(t, dates.New(2025, 1, 11), invs[0].PeriodStart)
	assert.Equal(t, dates.New(2025, 2, 9), invs[0].PeriodEnd)
	assert.Equal(t, int64(150000), invs[0].Amount)
	assert.True(t, invs[0].Meta.Data().AutoGenerated)
	assert.Equal(t, []string{notification.KindInvoiceIssued}, f.notifier.Kinds())

	res, err = f.engine.GenerateDueCustomerInvoices(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Processed)
	assert.Len(t, f.store.CustomerInvoices(), 1)
	assert.Len(t, f.notifier.Messages(), 1)
}

func TestGenerateDueCustomerInvoices_SelectsExactlyDueDay(t *testing.T) {
	f := newFixture(t)
	for _, today := range []time.Time{dates.New(2025, 1, 6), dates.New(2025, 1, 8)} {
		res, err := f.engine.GenerateDueCustomerInvoices(context.Background(), today)
		require.NoError(t, err)
		assert.Zero(t, res.Candidates, dates.Format(today))
	}
	assert.Empty(t, f.store.CustomerInvoices())
}

func TestGenerateDueCustomerInvoices_IsolatesItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.PutSubscriber(models.Subscriber{ID: "u2", ResellerID: resellerA, Username: "sari", Phone: "08999",
		ProfileID: lo.ToPtr("p1"), IsActive: true, ActiveUntil: lo.ToPtr(dates.New(2025, 1, 10))})
	f.store.PutSubscriber(models.Subscriber{ID: "u3", ResellerID: resellerA, Username: "manual", Phone: "08777",
		ProfileID: lo.ToPtr("p1"), IsActive: true, ActiveUntil: lo.ToPtr(dates.New(2025, 1, 10))})
	// u3 already holds a two-month invoice overlapping the batch period
	f.store.PutCustomerInvoice(models.CustomerInvoice{ID: "inv-m", ResellerID: resellerA, UserID: "u3",
		PeriodStart: dates.New(2025, 1, 11), PeriodEnd: dates.New(2025, 3, 11), Amount: 300000, Status: types.InvoiceStatusUnpaid})
	f.notifier.Fail = map[string]bool{"08123": true}

	res, err := f.engine.GenerateDueCustomerInvoices(ctx, dates.New(2025, 1, 7))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 2, res.Processed, "undelivered notification still counts the invoice as issued")
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.Len(t, f.store.CustomerInvoices(), 3)
	assert.Len(t, f.notifier.Messages(), 2)
}

func TestRemindUnpaidInvoices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.PutCustomerInvoice(models.CustomerInvoice{ID: "inv-1", ResellerID: resellerA, UserID: "u1",
		PeriodStart: dates.New(2025, 1, 11), PeriodEnd: dates.New(2025, 2, 9), Amount: 150000, Status: types.InvoiceStatusUnpaid})
	f.store.PutCustomerInvoice(models.CustomerInvoice{ID: "inv-0", ResellerID: resellerA, UserID: "u1",
		PeriodStart: dates.New(2024, 12, 12), PeriodEnd: dates.New(2025, 1, 10), Amount: 150000, Status: types.InvoiceStatusPaid})

	// active_until 2025-01-10: month end 01-31, reminder day 01-26
	res, err := f.engine.RemindUnpaidInvoices(ctx, dates.New(2025, 1, 25))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Zero(t, res.Processed)
	assert.Empty(t, f.notifier.Messages())

	res, err = f.engine.RemindUnpaidInvoices(ctx, dates.New(2025, 1, 26))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	msgs := f.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notification.KindInvoiceReminder, msgs[0].Kind)
	assert.Equal(t, "08123", msgs[0].Phone)

	res, err = f.engine.RemindUnpaidInvoices(ctx, dates.New(2025, 1, 27))
	require.NoError(t, err)
	assert.Zero(t, res.Processed, "exact day only")
}

func TestSuspendOverdueUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"inv-1", "inv-2"} {
		start := dates.New(2024, 12, 12)
		if id == "inv-2" {
			start = dates.New(2024, 11, 12)
		}
		f.store.PutCustomerInvoice(models.CustomerInvoice{ID: id, ResellerID: resellerA, UserID: "u1",
			PeriodStart: start, PeriodEnd: dates.AddDays(start, 29), Amount: 150000, Status: types.InvoiceStatusUnpaid})
	}
	// still inside the current month
	f.store.PutSubscriber(models.Subscriber{ID: "u2", ResellerID: resellerA, Username: "sari", Phone: "08999", IsActive: true})
	f.store.PutCustomerInvoice(models.CustomerInvoice{ID: "inv-3", ResellerID: resellerA, UserID: "u2",
		PeriodStart: dates.New(2025, 2, 1), PeriodEnd: dates.New(2025, 3, 2), Amount: 150000, Status: types.InvoiceStatusUnpaid})

	today := dates.New(2025, 2, 1)
	res, err := f.engine.SuspendOverdueUsers(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)

	sub, _ := f.store.Subscriber("u1")
	assert.Equal(t, types.SubscriberStatusSuspended, sub.Status)
	other, _ := f.store.Subscriber("u2")
	assert.Equal(t, types.SubscriberStatusActive, other.Status)
	assert.Equal(t, []string{notification.KindSuspended}, f.notifier.Kinds())
	assert.Equal(t, []string{"budi"}, f.disconnector.usernames)

	res, err = f.engine.SuspendOverdueUsers(ctx, today)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Len(t, f.notifier.Messages(), 1, "re-run does not notify again")
}

func TestGenerateResellerInvoices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.PutSubscriber(models.Subscriber{ID: "u2", ResellerID: resellerA, Username: "lapsed", IsActive: true,
		ActiveUntil: lo.ToPtr(dates.New(2024, 12, 31))})
	f.store.PutSubscriber(models.Subscriber{ID: "u3", ResellerID: resellerA, Username: "paid-ahead", IsActive: true,
		ActiveUntil: lo.ToPtr(dates.New(2025, 1, 31))})

	today := dates.New(2025, 2, 1)
	res, err := f.engine.GenerateResellerInvoices(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Job: types.JobGenerateResellerInvoices, Candidates: 2, Processed: 2}, *res)

	byReseller := map[string]models.ResellerInvoice{}
	for _, inv := range f.store.ResellerInvoices() {
		byReseller[inv.ResellerID] = inv
	}
	a := byReseller[resellerA]
	assert.Equal(t, dates.New(2025, 1, 1), a.PeriodStart)
	assert.Equal(t, dates.New(2025, 1, 31), a.PeriodEnd)
	assert.Equal(t, int64(2), a.UsersCount)
	assert.Equal(t, int64(4000), a.Subtotal)
	assert.Equal(t, int64(4000), a.Total)
	assert.Zero(t, a.Discount)
	assert.Zero(t, a.Tax)
	assert.Equal(t, int64(0), byReseller[resellerB].Total)
	assert.Len(t, f.notifier.Messages(), 2)

	res, err = f.engine.GenerateResellerInvoices(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Len(t, f.store.ResellerInvoices(), 2)
	assert.Len(t, f.notifier.Messages(), 2)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.Run(context.Background(), types.JobGenerateCustomerInvoices, dates.New(2025, 1, 7))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	_, err = f.engine.Run(context.Background(), "rebuild_everything", dates.New(2025, 1, 7))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
