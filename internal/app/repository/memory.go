package repository

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/tool"
	"github.com/bayarinter/billing/pkg/types"
)

// Memory is an in-process Ledger. Transactions are serialized and roll back by
// restoring a snapshot, which is enough for service tests.
type Memory struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	resellers        map[string]models.Reseller
	profiles         map[string]models.Profile
	subscribers      map[string]models.Subscriber
	customerInvoices map[string]models.CustomerInvoice
	resellerInvoices map[string]models.ResellerInvoice
	payments         map[string]models.Payment
	notificationLogs []models.PaymentNotificationLog
	radacct          []models.RadAcct
	coaLogs          []models.CoaLog
}

func NewMemory() *Memory {
	return &Memory{
		resellers:        make(map[string]models.Reseller),
		profiles:         make(map[string]models.Profile),
		subscribers:      make(map[string]models.Subscriber),
		customerInvoices: make(map[string]models.CustomerInvoice),
		resellerInvoices: make(map[string]models.ResellerInvoice),
		payments:         make(map[string]models.Payment),
	}
}

type memorySnapshot struct {
	subscribers      map[string]models.Subscriber
	customerInvoices map[string]models.CustomerInvoice
	resellerInvoices map[string]models.ResellerInvoice
	payments         map[string]models.Payment
	notificationLogs []models.PaymentNotificationLog
	coaLogs          []models.CoaLog
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memorySnapshot{
		subscribers:      maps.Clone(m.subscribers),
		customerInvoices: maps.Clone(m.customerInvoices),
		resellerInvoices: maps.Clone(m.resellerInvoices),
		payments:         maps.Clone(m.payments),
		notificationLogs: slices.Clone(m.notificationLogs),
		coaLogs:          slices.Clone(m.coaLogs),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = s.subscribers
	m.customerInvoices = s.customerInvoices
	m.resellerInvoices = s.resellerInvoices
	m.payments = s.payments
	m.notificationLogs = s.notificationLogs
	m.coaLogs = s.coaLogs
}

// memoryTx runs nested Transaction calls inline, like a savepoint that is never rolled back alone.
type memoryTx struct{ *Memory }

func (t *memoryTx) Transaction(ctx context.Context, fn func(tx Ledger) error) error {
	return fn(t)
}

func (m *Memory) Transaction(ctx context.Context, fn func(tx Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(&memoryTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// Seeding and inspection helpers for tests.

func (m *Memory) PutReseller(r models.Reseller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resellers[r.ID] = r
}

func (m *Memory) PutProfile(p models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

func (m *Memory) PutSubscriber(s models.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Status == "" {
		s.Status = types.SubscriberStatusActive
	}
	s.Profile = nil
	m.subscribers[s.ID] = s
}

func (m *Memory) PutRadAcct(a models.RadAcct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.radacct = append(m.radacct, a)
}

func (m *Memory) PutCustomerInvoice(inv models.CustomerInvoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customerInvoices[inv.ID] = inv
}

func (m *Memory) CustomerInvoices() []models.CustomerInvoice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Collect(maps.Values(m.customerInvoices))
}

func (m *Memory) ResellerInvoices() []models.ResellerInvoice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Collect(maps.Values(m.resellerInvoices))
}

func (m *Memory) Payments() []models.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Collect(maps.Values(m.payments))
}

func (m *Memory) NotificationLogs() []models.PaymentNotificationLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.notificationLogs)
}

func (m *Memory) CoaLogs() []models.CoaLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.coaLogs)
}

// Subscriber returns the stored row including soft-deleted ones.
func (m *Memory) Subscriber(id string) (models.Subscriber, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscribers[id]
	return s, ok
}

func inScope(scope Scope, resellerID string) bool {
	return scope.IsSystem() || scope.ResellerID == resellerID
}

func matchAll(filters []types.CommonFilter, row map[string]any) bool {
	for i := range filters {
		if !filters[i].Match(row) {
			return false
		}
	}
	return true
}

func paginate[T any](rows []*T, q ListQuery) ([]*T, int64) {
	total := int64(len(rows))
	start := q.Offset()
	if start >= len(rows) {
		return []*T{}, total
	}
	end := len(rows)
	if q.PerPage > 0 && start+q.PerPage < end {
		end = start + q.PerPage
	}
	return rows[start:end], total
}

func newestFirst(aCreated, bCreated time.Time, aID, bID string) int {
	if c := bCreated.Compare(aCreated); c != 0 {
		return c
	}
	return strings.Compare(bID, aID)
}

func (m *Memory) GetReseller(ctx context.Context, id string) (*models.Reseller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resellers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) ListResellers(ctx context.Context) ([]*models.Reseller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Reseller, 0, len(m.resellers))
	for _, r := range m.resellers {
		out = append(out, &r)
	}
	slices.SortFunc(out, func(a, b *models.Reseller) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// withProfile must be called with mu held.
func (m *Memory) withProfile(s models.Subscriber) *models.Subscriber {
	if s.ProfileID != nil {
		if p, ok := m.profiles[*s.ProfileID]; ok {
			s.Profile = &p
		}
	}
	return &s
}

func (m *Memory) GetSubscriber(ctx context.Context, scope Scope, id string) (*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscribers[id]
	if !ok || s.DeletedAt.Valid || !inScope(scope, s.ResellerID) {
		return nil, ErrNotFound
	}
	return m.withProfile(s), nil
}

func (m *Memory) GetSubscriberForUpdate(ctx context.Context, id string) (*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscribers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) GetSubscriberByUsername(ctx context.Context, scope Scope, username string) (*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subscribers {
		if s.Username == username && !s.DeletedAt.Valid && inScope(scope, s.ResellerID) {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListSubscribersDueOn(ctx context.Context, day time.Time) ([]*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Subscriber
	for _, s := range m.subscribers {
		if s.DeletedAt.Valid || !s.IsActive || s.ProfileID == nil || s.ActiveUntil == nil || !s.ActiveUntil.Equal(day) {
			continue
		}
		out = append(out, m.withProfile(s))
	}
	slices.SortFunc(out, func(a, b *models.Subscriber) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) CountActiveSubscribers(ctx context.Context, resellerID string, rng *DateRange) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, s := range m.subscribers {
		if s.ResellerID != resellerID || s.DeletedAt.Valid || s.Status != types.SubscriberStatusActive {
			continue
		}
		if rng != nil && (s.ActiveUntil == nil || !rng.Contains(*s.ActiveUntil)) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *Memory) UpdateSubscriberActiveUntil(ctx context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return ErrNotFound
	}
	s.ActiveUntil = &until
	s.UpdatedAt = time.Now()
	m.subscribers[id] = s
	return nil
}

func (m *Memory) UpdateSubscriberStatus(ctx context.Context, id string, status types.SubscriberStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok || s.DeletedAt.Valid || s.Status == status {
		return false, nil
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	m.subscribers[id] = s
	return true, nil
}

func (m *Memory) DeleteSubscriber(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok || s.DeletedAt.Valid {
		return ErrNotFound
	}
	s.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	m.subscribers[id] = s
	return nil
}

func stamp(id *string, created, updated *time.Time) {
	if *id == "" {
		*id = tool.GenerateUUIDV7()
	}
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func (m *Memory) CreateCustomerInvoice(ctx context.Context, inv *models.CustomerInvoice) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.customerInvoices {
		if existing.UserID == inv.UserID && existing.PeriodStart.Equal(inv.PeriodStart) && existing.PeriodEnd.Equal(inv.PeriodEnd) {
			*inv = existing
			return false, nil
		}
	}
	if _, taken := m.customerInvoices[inv.ID]; taken && inv.ID != "" {
		return false, ErrDuplicate
	}
	stamp(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if inv.Status == "" {
		inv.Status = types.InvoiceStatusUnpaid
	}
	m.customerInvoices[inv.ID] = *inv
	return true, nil
}

func (m *Memory) GetCustomerInvoice(ctx context.Context, scope Scope, id string) (*models.CustomerInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.customerInvoices[id]
	if !ok || !inScope(scope, inv.ResellerID) {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (m *Memory) FindOverlappingCustomerInvoice(ctx context.Context, userID string, period DateRange) (*models.CustomerInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *models.CustomerInvoice
	for _, inv := range m.customerInvoices {
		if inv.UserID != userID || inv.PeriodStart.After(period.To) || inv.PeriodEnd.Before(period.From) {
			continue
		}
		if found == nil || inv.PeriodStart.Before(found.PeriodStart) {
			found = &inv
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m *Memory) unpaidWithSubscriber(keep func(models.CustomerInvoice) bool) []*InvoiceWithSubscriber {
	var out []*InvoiceWithSubscriber
	for _, inv := range m.customerInvoices {
		if inv.Status != types.InvoiceStatusUnpaid || !keep(inv) {
			continue
		}
		s, ok := m.subscribers[inv.UserID]
		if !ok || s.DeletedAt.Valid {
			continue
		}
		out = append(out, &InvoiceWithSubscriber{
			CustomerInvoice:  inv,
			Username:         s.Username,
			Phone:            s.Phone,
			ActiveUntil:      s.ActiveUntil,
			SubscriberStatus: s.Status,
		})
	}
	slices.SortFunc(out, func(a, b *InvoiceWithSubscriber) int {
		if c := a.PeriodStart.Compare(b.PeriodStart); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (m *Memory) ListUnpaidCustomerInvoices(ctx context.Context) ([]*InvoiceWithSubscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unpaidWithSubscriber(func(models.CustomerInvoice) bool { return true }), nil
}

func (m *Memory) ListOverdueCustomerInvoices(ctx context.Context, before time.Time) ([]*InvoiceWithSubscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unpaidWithSubscriber(func(inv models.CustomerInvoice) bool { return inv.PeriodEnd.Before(before) }), nil
}

func (m *Memory) MarkCustomerInvoicePaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.customerInvoices[id]
	if !ok || inv.Status != types.InvoiceStatusUnpaid {
		return false, nil
	}
	inv.Status = types.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	inv.UpdatedAt = time.Now()
	m.customerInvoices[id] = inv
	return true, nil
}

func customerInvoiceRow(inv models.CustomerInvoice) map[string]any {
	return map[string]any{
		"user_id":      inv.UserID,
		"status":       string(inv.Status),
		"period_start": inv.PeriodStart,
	}
}

func (m *Memory) ListCustomerInvoices(ctx context.Context, q ListQuery) ([]*models.CustomerInvoice, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []*models.CustomerInvoice
	for _, inv := range m.customerInvoices {
		if inScope(q.Scope, inv.ResellerID) && matchAll(q.Filters, customerInvoiceRow(inv)) {
			rows = append(rows, &inv)
		}
	}
	slices.SortFunc(rows, func(a, b *models.CustomerInvoice) int { return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	out, total := paginate(rows, q)
	return out, total, nil
}

func (m *Memory) CreateResellerInvoice(ctx context.Context, inv *models.ResellerInvoice) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.resellerInvoices {
		if existing.ResellerID == inv.ResellerID && existing.PeriodStart.Equal(inv.PeriodStart) && existing.PeriodEnd.Equal(inv.PeriodEnd) {
			return false, nil
		}
	}
	stamp(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if inv.Status == "" {
		inv.Status = types.InvoiceStatusUnpaid
	}
	m.resellerInvoices[inv.ID] = *inv
	return true, nil
}

func (m *Memory) GetResellerInvoice(ctx context.Context, scope Scope, id string) (*models.ResellerInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.resellerInvoices[id]
	if !ok || !inScope(scope, inv.ResellerID) {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (m *Memory) FindResellerInvoice(ctx context.Context, resellerID string, period DateRange) (*models.ResellerInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.resellerInvoices {
		if inv.ResellerID == resellerID && inv.PeriodStart.Equal(period.From) && inv.PeriodEnd.Equal(period.To) {
			return &inv, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) MarkResellerInvoicePaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.resellerInvoices[id]
	if !ok || inv.Status != types.InvoiceStatusUnpaid {
		return false, nil
	}
	inv.Status = types.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	inv.UpdatedAt = time.Now()
	m.resellerInvoices[id] = inv
	return true, nil
}

func (m *Memory) ListResellerInvoices(ctx context.Context, q ListQuery) ([]*models.ResellerInvoice, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []*models.ResellerInvoice
	for _, inv := range m.resellerInvoices {
		row := map[string]any{"status": string(inv.Status), "period_start": inv.PeriodStart}
		if inScope(q.Scope, inv.ResellerID) && matchAll(q.Filters, row) {
			rows = append(rows, &inv)
		}
	}
	slices.SortFunc(rows, func(a, b *models.ResellerInvoice) int {
		if c := b.PeriodStart.Compare(a.PeriodStart); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	out, total := paginate(rows, q)
	return out, total, nil
}

func (m *Memory) CreatePayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ProviderTxnID != nil {
		for _, existing := range m.payments {
			if existing.ProviderTxnID != nil && *existing.ProviderTxnID == *p.ProviderTxnID {
				return ErrDuplicate
			}
		}
	}
	stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	m.payments[p.ID] = *p
	return nil
}

// paymentInScope must be called with mu held.
func (m *Memory) paymentInScope(scope Scope, p models.Payment) bool {
	if scope.IsSystem() {
		return true
	}
	inv, ok := m.customerInvoices[p.InvoiceID]
	return ok && inv.ResellerID == scope.ResellerID
}

func (m *Memory) GetPayment(ctx context.Context, scope Scope, id string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok || !m.paymentInScope(scope, p) {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetPaymentByProviderTxnID(ctx context.Context, txnID string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.ProviderTxnID != nil && *p.ProviderTxnID == txnID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdatePaymentStatus(ctx context.Context, id string, status types.PaymentStatus, paidAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	p.PaidAt = paidAt
	p.UpdatedAt = time.Now()
	m.payments[id] = p
	return nil
}

func (m *Memory) ListPayments(ctx context.Context, q ListQuery) ([]*models.Payment, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []*models.Payment
	for _, p := range m.payments {
		row := map[string]any{
			"invoice_id": p.InvoiceID,
			"method":     p.Method,
			"status":     string(p.Status),
			"created_at": p.CreatedAt,
		}
		if m.paymentInScope(q.Scope, p) && matchAll(q.Filters, row) {
			rows = append(rows, &p)
		}
	}
	slices.SortFunc(rows, func(a, b *models.Payment) int { return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	out, total := paginate(rows, q)
	return out, total, nil
}

func (m *Memory) CreateNotificationLog(ctx context.Context, l *models.PaymentNotificationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = tool.GenerateUUIDV7()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	m.notificationLogs = append(m.notificationLogs, *l)
	return nil
}

func (m *Memory) ListOpenSessions(ctx context.Context, username string) ([]*models.RadAcct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RadAcct
	for _, a := range m.radacct {
		if a.Username == username && a.AcctStopTime == nil {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (m *Memory) CreateCoaLog(ctx context.Context, l *models.CoaLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uint64(len(m.coaLogs) + 1)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	m.coaLogs = append(m.coaLogs, *l)
	return nil
}

var _ Ledger = (*Memory)(nil)
var _ Ledger = (*Postgres)(nil)
