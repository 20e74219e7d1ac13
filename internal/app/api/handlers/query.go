package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bayarinter/billing/internal/app/api/middleware"
	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/types"
)

// listQuery reads the page window and the caller's tenant scope.
func listQuery(c *gin.Context) (repository.ListQuery, error) {
	q := repository.ListQuery{Scope: middleware.Scope(c)}
	if err := c.ShouldBindQuery(&q.Pagination); err != nil {
		return q, fmt.Errorf("invalid pagination: %w", err)
	}
	if err := q.Pagination.Normalize(); err != nil {
		return q, err
	}
	return q, nil
}

func eqFilter(field string, value any) types.CommonFilter {
	return types.CommonFilter{Field: field, Operator: types.CommonFilterOperatorEq, Values: []any{value}}
}

func monthFilter(field string, start, end time.Time) types.CommonFilter {
	return types.CommonFilter{Field: field, Operator: types.CommonFilterOperatorDateRange, Values: []any{start, end}}
}

// parsePeriod reads a YYYY-MM month.
func parsePeriod(s string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("period must be YYYY-MM")
	}
	start, end := dates.MonthRange(t.Year(), t.Month())
	return start, end, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return n, nil
}

func customerInvoiceFilters(c *gin.Context) ([]types.CommonFilter, error) {
	var fs []types.CommonFilter
	if v := c.Query("user_id"); v != "" {
		fs = append(fs, eqFilter("user_id", v))
	}
	if v := c.Query("status"); v != "" {
		st := types.InvoiceStatus(v)
		if !st.Valid() {
			return nil, fmt.Errorf("unknown status %q", v)
		}
		fs = append(fs, eqFilter("status", string(st)))
	}
	if v := c.Query("period"); v != "" {
		start, end, err := parsePeriod(v)
		if err != nil {
			return nil, err
		}
		fs = append(fs, monthFilter("period_start", start, end))
	}
	return fs, nil
}

func resellerInvoiceFilters(c *gin.Context) ([]types.CommonFilter, error) {
	var fs []types.CommonFilter
	if v := c.Query("status"); v != "" {
		st := types.InvoiceStatus(v)
		if !st.Valid() {
			return nil, fmt.Errorf("unknown status %q", v)
		}
		fs = append(fs, eqFilter("status", string(st)))
	}
	year, err := queryInt(c, "year")
	if err != nil {
		return nil, err
	}
	month, err := queryInt(c, "month")
	if err != nil {
		return nil, err
	}
	switch {
	case month != 0 && (month < 1 || month > 12):
		return nil, fmt.Errorf("month must be between 1 and 12")
	case year != 0 && month != 0:
		start, end := dates.MonthRange(year, time.Month(month))
		fs = append(fs, monthFilter("period_start", start, end))
	case year != 0:
		fs = append(fs, monthFilter("period_start", dates.New(year, time.January, 1), dates.New(year, time.December, 31)))
	case month != 0:
		return nil, fmt.Errorf("month requires year")
	}
	return fs, nil
}

func paymentFilters(c *gin.Context) ([]types.CommonFilter, error) {
	var fs []types.CommonFilter
	if v := c.Query("invoice_id"); v != "" {
		fs = append(fs, eqFilter("invoice_id", v))
	}
	if v := c.Query("method"); v != "" {
		fs = append(fs, eqFilter("method", v))
	}
	if v := c.Query("status"); v != "" {
		st := types.PaymentStatus(v)
		if !st.Valid() {
			return nil, fmt.Errorf("unknown status %q", v)
		}
		fs = append(fs, eqFilter("status", string(st)))
	}
	if v := c.Query("period"); v != "" {
		start, _, err := parsePeriod(v)
		if err != nil {
			return nil, err
		}
		fs = append(fs,
			types.CommonFilter{Field: "created_at", Operator: types.CommonFilterOperatorGte, Values: []any{start}},
			types.CommonFilter{Field: "created_at", Operator: types.CommonFilterOperatorLt, Values: []any{start.AddDate(0, 1, 0)}},
		)
	}
	return fs, nil
}
