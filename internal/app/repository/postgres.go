package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/tool"
	"github.com/bayarinter/billing/pkg/types"
)

const (
	pgUniqueViolation = "23505"
	pgInvalidText     = "22P02"
)

// Postgres implements Ledger with gorm. A Postgres built inside Transaction is bound to that tx.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

var Module = fx.Options(
	fx.Provide(
		NewPostgres,
		func(p *Postgres) Ledger { return p },
	),
)

// Ping checks the database connection.
func (r *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *Postgres) Transaction(ctx context.Context, fn func(tx Ledger) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Postgres{db: tx})
	})
}

// isDuplicate recognises unique violations whether or not gorm translated them.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// notFound maps a missing row, or an id Postgres cannot read as a uuid, to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInvalidText {
		return ErrNotFound
	}
	return err
}

// stampID gives a new row its UUIDv7 primary key.
func stampID(id *string) {
	if *id == "" {
		*id = tool.GenerateUUIDV7()
	}
}

// filtersAnd combines CommonFilters into one clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// qualified prefixes each filter column with table so joins stay unambiguous.
func qualified(table string, fs []types.CommonFilter) filtersAnd {
	out := make([]*types.CommonFilter, 0, len(fs))
	for _, f := range fs {
		f.Field = table + "." + f.Field
		out = append(out, &f)
	}
	return filtersAnd{filters: out}
}

func page[T any](q *gorm.DB, lq ListQuery, order string, what string) ([]*T, int64, error) {
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", what, err)
	}
	var rows []*T
	if err := q.Order(order).Offset(lq.Offset()).Limit(lq.PerPage).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list %s: %w", what, err)
	}
	return rows, total, nil
}

func (r *Postgres) GetReseller(ctx context.Context, id string) (*models.Reseller, error) {
	if !tool.IsUUID(id) {
		return nil, ErrNotFound
	}
	var m models.Reseller
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) ListResellers(ctx context.Context) ([]*models.Reseller, error) {
	var rows []*models.Reseller
	if err := r.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list resellers: %w", err)
	}
	return rows, nil
}

func (r *Postgres) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if !tool.IsUUID(id) {
		return nil, ErrNotFound
	}
	var m models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) scoped(ctx context.Context, scope Scope, column string) *gorm.DB {
	q := r.db.WithContext(ctx)
	if !scope.IsSystem() {
		q = q.Where(column+" = ?", scope.ResellerID)
	}
	return q
}

func (r *Postgres) GetSubscriber(ctx context.Context, scope Scope, id string) (*models.Subscriber, error) {
	if !tool.IsUUID(id) {
		return nil, ErrNotFound
	}
	var m models.Subscriber
	if err := r.scoped(ctx, scope, "reseller_id").Preload("Profile").Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) GetSubscriberForUpdate(ctx context.Context, id string) (*models.Subscriber, error) {
	if !tool.IsUUID(id) {
		return nil, ErrNotFound
	}
	var m models.Subscriber
	err := r.db.WithContext(ctx).Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) GetSubscriberByUsername(ctx context.Context, scope Scope, username string) (*models.Subscriber, error) {
	var m models.Subscriber
	if err := r.scoped(ctx, scope, "reseller_id").Where("username = ?", username).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) ListSubscribersDueOn(ctx context.Context, day time.Time) ([]*models.Subscriber, error) {
	var rows []*models.Subscriber
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("active_until = ? AND is_active = ? AND profile_id IS NOT NULL", day, true).
		Order("reseller_id, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscribers: %w", err)
	}
	return rows, nil
}

func (r *Postgres) CountActiveSubscribers(ctx context.Context, resellerID string, rng *DateRange) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Subscriber{}).
		Where("reseller_id = ? AND status = ?", resellerID, types.SubscriberStatusActive)
	if rng != nil {
		q = q.Where("active_until BETWEEN ? AND ?", rng.From, rng.To)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count active subscribers: %w", err)
	}
	return n, nil
}

func (r *Postgres) UpdateSubscriberActiveUntil(ctx context.Context, id string, until time.Time) error {
	res := r.db.WithContext(ctx).Unscoped().Model(&models.Subscriber{}).
		Where("id = ?", id).
		Updates(map[string]any{"active_until": until, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update active_until: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) UpdateSubscriberStatus(ctx context.Context, id string, status types.SubscriberStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscriber{}).
		Where("id = ? AND status <> ?", id, status).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update subscriber status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Postgres) DeleteSubscriber(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Subscriber{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete subscriber: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) CreateCustomerInvoice(ctx context.Context, inv *models.CustomerInvoice) (bool, error) {
	stampID(&inv.ID)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_start"}, {Name: "period_end"}},
			DoNothing: true,
		}).
		Create(inv)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return false, ErrDuplicate
		}
		return false, fmt.Errorf("failed to create customer invoice: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var existing models.CustomerInvoice
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND period_start = ? AND period_end = ?", inv.UserID, inv.PeriodStart, inv.PeriodEnd).
		First(&existing).Error
	if err != nil {
		return false, fmt.Errorf("failed to load existing customer invoice: %w", err)
	}
	*inv = existing
	return false, nil
}

func (r *Postgres) GetCustomerInvoice(ctx context.Context, scope Scope, id string) (*models.CustomerInvoice, error) {
	if !tool.IsUUID(id) {
		return nil, ErrNotFound
	}
	var m models.CustomerInvoice
	if err := r.scoped(ctx, scope, "reseller_id").Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) FindOverlappingCustomerInvoice(ctx context.Context, userID string, period DateRange) (*models.CustomerInvoice, error) {
	var m models.CustomerInvoice
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND period_start <= ? AND period_end >= ?", userID, period.To, period.From).
		Order("period_start").
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) unpaidWithSubscriber(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("customer_invoices AS ci").
		Select("ci.*, u.username, u.phone, u.active_until, u.status AS subscriber_status").
		Joins("JOIN ppp_users u ON u.id = ci.user_id AND u.deleted_at IS NULL").
		Where("ci.status = ?", types.InvoiceStatusUnpaid)
}

func (r *Postgres) ListUnpaidCustomerInvoices(ctx context.Context) ([]*InvoiceWithSubscriber, error) {
	var rows []*InvoiceWithSubscriber
	if err := r.unpaidWithSubscriber(ctx).Order("ci.period_start, ci.id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list unpaid invoices: %w", err)
	}
	return rows, nil
}

func (r *Postgres) ListOverdueCustomerInvoices(ctx context.Context, before time.Time) ([]*InvoiceWithSubscriber, error) {
	var rows []*InvoiceWithSubscriber
	err := r.unpaidWithSubscriber(ctx).
		Where("ci.period_end < ?", before).
		Order("ci.period_end, ci.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue invoices: %w", err)
	}
	return rows, nil
}

func (r *Postgres) MarkCustomerInvoicePaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.CustomerInvoice{}).
		Where("id = ? AND status = ?", id, types.InvoiceStatusUnpaid).
		Updates(map[string]any{"status": types.InvoiceStatusPaid, "paid_at": paidAt, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark customer invoice paid: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Postgres) ListCustomerInvoices(ctx context.Context, q ListQuery) ([]*models.CustomerInvoice, int64, error) {
	tx := r.scoped(ctx, q.Scope, "customer_invoices.reseller_id").Model(&models.CustomerInvoice{})
	if len(q.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{qualified("customer_invoices", q.Filters)}})
	}
	return page[models.CustomerInvoice](tx, q, "customer_invoices.created_at DESC, customer_invoices.id DESC", "customer invoices")
}

func (r *Postgres) CreateResellerInvoice(ctx context.Context, inv *models.ResellerInvoice) (bool, error) {
	stampID(&inv.ID)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reseller_id"}, {Name: "period_start"}, {Name: "period_end"}},
			DoNothing: true,
		}).
		Create(inv)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return false, ErrDuplicate
		}
		return false, fmt.Errorf("failed to create reseller invoice: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Postgres) GetResellerInvoice(ctx context.Context, scope Scope, id string) (*models.ResellerInvoice, error) {
	if !tool.IsUUID(id) {
		return nil, ErrNotFound
	}
	var m models.ResellerInvoice
	if err := r.scoped(ctx, scope, "reseller_id").Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) FindResellerInvoice(ctx context.Context, resellerID string, period DateRange) (*models.ResellerInvoice, error) {
	var m models.ResellerInvoice
	err := r.db.WithContext(ctx).
		Where("reseller_id = ? AND period_start = ? AND period_end = ?", resellerID, period.From, period.To).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) MarkResellerInvoicePaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ResellerInvoice{}).
		Where("id = ? AND status = ?", id, types.InvoiceStatusUnpaid).
		Updates(map[string]any{"status": types.InvoiceStatusPaid, "paid_at": paidAt, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark reseller invoice paid: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Postgres) ListResellerInvoices(ctx context.Context, q ListQuery) ([]*models.ResellerInvoice, int64, error) {
	tx := r.scoped(ctx, q.Scope, "invoices.reseller_id").Model(&models.ResellerInvoice{})
	if len(q.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{qualified("invoices", q.Filters)}})
	}
	return page[models.ResellerInvoice](tx, q, "invoices.period_start DESC, invoices.id DESC", "reseller invoices")
}

func (r *Postgres) CreatePayment(ctx context.Context, p *models.Payment) error {
	stampID(&p.ID)
	q := r.db.WithContext(ctx)
	if p.ProviderTxnID != nil {
		// DO NOTHING keeps an enclosing transaction usable on a duplicate txn id.
		q = q.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "provider_txn_id"}}, DoNothing: true})
	}
	res := q.Create(p)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *Postgres) paymentsInScope(ctx context.Context, scope Scope) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Payment{})
	if !scope.IsSystem() {
		q = q.Joins("JOIN customer_invoices ON customer_invoices.id = payments.invoice_id").
			Where("customer_invoices.reseller_id = ?", scope.ResellerID)
	}
	return q
}

func (r *Postgres) GetPayment(ctx context.Context, scope Scope, id string) (*models.Payment, error) {
	if !tool.IsUUID(id) {
		return nil, ErrNotFound
	}
	var m models.Payment
	if err := r.paymentsInScope(ctx, scope).Where("payments.id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) GetPaymentByProviderTxnID(ctx context.Context, txnID string) (*models.Payment, error) {
	var m models.Payment
	if err := r.db.WithContext(ctx).Where("provider_txn_id = ?", txnID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Postgres) UpdatePaymentStatus(ctx context.Context, id string, status types.PaymentStatus, paidAt *time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "paid_at": paidAt, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) ListPayments(ctx context.Context, q ListQuery) ([]*models.Payment, int64, error) {
	tx := r.paymentsInScope(ctx, q.Scope)
	if len(q.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{qualified("payments", q.Filters)}})
	}
	return page[models.Payment](tx, q, "payments.created_at DESC, payments.id DESC", "payments")
}

func (r *Postgres) CreateNotificationLog(ctx context.Context, l *models.PaymentNotificationLog) error {
	stampID(&l.ID)
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}
	return nil
}

func (r *Postgres) ListOpenSessions(ctx context.Context, username string) ([]*models.RadAcct, error) {
	var rows []*models.RadAcct
	err := r.db.WithContext(ctx).
		Where("username = ? AND acctstoptime IS NULL", username).
		Order("acctstarttime").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}
	return rows, nil
}

func (r *Postgres) CreateCoaLog(ctx context.Context, l *models.CoaLog) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to create coa log: %w", err)
	}
	return nil
}
