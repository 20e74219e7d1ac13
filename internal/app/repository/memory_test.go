package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/types"
)

const (
	resellerA = "0190a000-0000-7000-8000-00000000000a"
	resellerB = "0190a000-0000-7000-8000-00000000000b"
)

func seed(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	m.PutReseller(models.Reseller{ID: resellerA, Name: "Net A", PricePerUser: 2000})
	m.PutReseller(models.Reseller{ID: resellerB, Name: "Net B", PricePerUser: 3000})
	m.PutProfile(models.Profile{ID: "p1", ResellerID: resellerA, Name: "10M", Price: 150000})
	m.PutSubscriber(models.Subscriber{ID: "u1", ResellerID: resellerA, Username: "budi", ProfileID: lo.ToPtr("p1"),
		IsActive: true, ActiveUntil: lo.ToPtr(dates.New(2025, 1, 10))})
	m.PutSubscriber(models.Subscriber{ID: "u2", ResellerID: resellerB, Username: "sari", IsActive: true,
		ActiveUntil: lo.ToPtr(dates.New(2025, 1, 10))})
	return m
}

func TestMemory_SubscriberScope(t *testing.T) {
	ctx := context.Background()
	m := seed(t)

	s, err := m.GetSubscriber(ctx, ResellerScope(resellerA), "u1")
	require.NoError(t, err)
	require.NotNil(t, s.Profile)
	assert.Equal(t, int64(150000), s.Profile.Price)

	_, err = m.GetSubscriber(ctx, ResellerScope(resellerB), "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.GetSubscriber(ctx, SystemScope(), "u1")
	assert.NoError(t, err)
}

func TestMemory_ListSubscribersDueOn(t *testing.T) {
	m := seed(t)
	due, err := m.ListSubscribersDueOn(context.Background(), dates.New(2025, 1, 10))
	require.NoError(t, err)
	// u2 has no profile
	require.Len(t, due, 1)
	assert.Equal(t, "u1", due[0].ID)
}

func TestMemory_CreateCustomerInvoiceIsIdempotentPerPeriod(t *testing.T) {
	ctx := context.Background()
	m := seed(t)

	first := &models.CustomerInvoice{ResellerID: resellerA, UserID: "u1", PeriodStart: dates.New(2025, 1, 11), PeriodEnd: dates.New(2025, 2, 9), Amount: 1}
	created, err := m.CreateCustomerInvoice(ctx, first)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, types.InvoiceStatusUnpaid, first.Status)

	again := &models.CustomerInvoice{ResellerID: resellerA, UserID: "u1", PeriodStart: dates.New(2025, 1, 11), PeriodEnd: dates.New(2025, 2, 9), Amount: 2}
	created, err = m.CreateCustomerInvoice(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int64(1), again.Amount)
	assert.Len(t, m.CustomerInvoices(), 1)

	overlap, err := m.FindOverlappingCustomerInvoice(ctx, "u1", DateRange{From: dates.New(2025, 2, 1), To: dates.New(2025, 3, 2)})
	require.NoError(t, err)
	assert.Equal(t, first.ID, overlap.ID)

	_, err = m.FindOverlappingCustomerInvoice(ctx, "u1", DateRange{From: dates.New(2025, 2, 10), To: dates.New(2025, 3, 11)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_MarkCustomerInvoicePaidOnce(t *testing.T) {
	ctx := context.Background()
	m := seed(t)
	inv := &models.CustomerInvoice{ResellerID: resellerA, UserID: "u1", PeriodStart: dates.New(2025, 1, 11), PeriodEnd: dates.New(2025, 2, 9)}
	_, err := m.CreateCustomerInvoice(ctx, inv)
	require.NoError(t, err)

	ok, err := m.MarkCustomerInvoicePaid(ctx, inv.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.MarkCustomerInvoicePaid(ctx, inv.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	m := seed(t)
	boom := errors.New("boom")

	err := m.Transaction(ctx, func(tx Ledger) error {
		if err := tx.UpdateSubscriberActiveUntil(ctx, "u1", dates.New(2030, 1, 1)); err != nil {
			return err
		}
		require.NoError(t, tx.CreatePayment(ctx, &models.Payment{InvoiceID: "i", Amount: 1, Status: types.PaymentStatusSuccess}))
		// nested calls run inline
		return tx.Transaction(ctx, func(Ledger) error { return boom })
	})
	require.ErrorIs(t, err, boom)

	s, _ := m.Subscriber("u1")
	assert.Equal(t, dates.New(2025, 1, 10), *s.ActiveUntil)
	assert.Empty(t, m.Payments())
}

func TestMemory_PaymentDuplicateTxn(t *testing.T) {
	ctx := context.Background()
	m := seed(t)
	require.NoError(t, m.CreatePayment(ctx, &models.Payment{InvoiceID: "i", ProviderTxnID: lo.ToPtr("T1")}))
	assert.ErrorIs(t, m.CreatePayment(ctx, &models.Payment{InvoiceID: "i", ProviderTxnID: lo.ToPtr("T1")}), ErrDuplicate)
	// manual payments without a txn id never collide
	require.NoError(t, m.CreatePayment(ctx, &models.Payment{InvoiceID: "i"}))
	require.NoError(t, m.CreatePayment(ctx, &models.Payment{InvoiceID: "i"}))
}

func TestMemory_UpdateSubscriberStatusReportsChange(t *testing.T) {
	ctx := context.Background()
	m := seed(t)

	changed, err := m.UpdateSubscriberStatus(ctx, "u1", types.SubscriberStatusSuspended)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.UpdateSubscriberStatus(ctx, "u1", types.SubscriberStatusSuspended)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMemory_ListCustomerInvoicesFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	m := seed(t)
	for i := 0; i < 5; i++ {
		start := dates.AddDays(dates.New(2025, 1, 1), 30*i)
		_, err := m.CreateCustomerInvoice(ctx, &models.CustomerInvoice{ResellerID: resellerA, UserID: "u1", PeriodStart: start, PeriodEnd: dates.AddDays(start, 29)})
		require.NoError(t, err)
	}
	_, err := m.CreateCustomerInvoice(ctx, &models.CustomerInvoice{ResellerID: resellerB, UserID: "u2", PeriodStart: dates.New(2025, 1, 1), PeriodEnd: dates.New(2025, 1, 30)})
	require.NoError(t, err)

	rows, total, err := m.ListCustomerInvoices(ctx, ListQuery{Scope: ResellerScope(resellerA), Pagination: types.Pagination{Page: 1, PerPage: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, rows, 2)

	rows, total, err = m.ListCustomerInvoices(ctx, ListQuery{Scope: ResellerScope(resellerA), Pagination: types.Pagination{Page: 3, PerPage: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, rows, 1)

	jan := types.CommonFilter{Field: "period_start", Operator: types.CommonFilterOperatorDateRange,
		Values: []any{dates.New(2025, 1, 1), dates.New(2025, 1, 31)}}
	rows, total, err = m.ListCustomerInvoices(ctx, ListQuery{Scope: ResellerScope(resellerA), Filters: []types.CommonFilter{jan}, Pagination: types.Pagination{Page: 1, PerPage: 10}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total) // Jan 1 and Jan 31
	assert.Len(t, rows, 2)
}

func TestMemory_OverdueJoinsLiveSubscribers(t *testing.T) {
	ctx := context.Background()
	m := seed(t)
	_, err := m.CreateCustomerInvoice(ctx, &models.CustomerInvoice{ResellerID: resellerA, UserID: "u1", PeriodStart: dates.New(2024, 12, 1), PeriodEnd: dates.New(2024, 12, 30)})
	require.NoError(t, err)

	rows, err := m.ListOverdueCustomerInvoices(ctx, dates.New(2025, 1, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "budi", rows[0].Username)

	require.NoError(t, m.DeleteSubscriber(ctx, "u1"))
	rows, err = m.ListOverdueCustomerInvoices(ctx, dates.New(2025, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemory_CountActiveSubscribers(t *testing.T) {
	ctx := context.Background()
	m := seed(t)
	n, err := m.CountActiveSubscribers(ctx, resellerA, &DateRange{From: dates.New(2025, 1, 1), To: dates.New(2025, 1, 31)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.CountActiveSubscribers(ctx, resellerA, &DateRange{From: dates.New(2025, 2, 1), To: dates.New(2025, 2, 28)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
