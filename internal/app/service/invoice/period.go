package invoice

import (
	"time"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/dates"
)

const (
	// DaysPerMonth is the fixed billing month length.
	DaysPerMonth = 30
	MaxMonths    = 24
	// ResellerDueDay is the day of month reseller invoices fall due.
	ResellerDueDay = 20
)

// CustomerPeriod is the next billing period after the paid-through day:
// [after+1, after+30*months] inclusive.
func CustomerPeriod(after time.Time, months int) repository.DateRange {
	start := dates.AddDays(after, 1)
	return repository.DateRange{From: start, To: dates.AddDays(start, DaysPerMonth*months-1)}
}

// ExtendActiveUntil chains the invoice's period length onto the current expiry
// (or onto the period start when the subscriber has none):
// new = current + (period_end - period_start) + 1 day.
func ExtendActiveUntil(current *time.Time, inv *models.CustomerInvoice) time.Time {
	base := inv.PeriodStart
	if current != nil && !current.IsZero() {
		base = *current
	}
	return dates.AddDays(base, dates.DaysBetween(inv.PeriodStart, inv.PeriodEnd)+1)
}

// ResellerTotals computes the reseller invoice amounts. Discount and tax are not
// modelled yet and stay zero.
func ResellerTotals(count, unitPrice int64) (subtotal, discount, tax, total int64) {
	subtotal = count * unitPrice
	total = subtotal - discount + tax
	return subtotal, discount, tax, total
}
