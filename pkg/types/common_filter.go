package types

import (
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq        CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq     CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt        CommonFilterOperator = "lt"
	CommonFilterOperatorLte       CommonFilterOperator = "lte"
	CommonFilterOperatorGt        CommonFilterOperator = "gt"
	CommonFilterOperatorGte       CommonFilterOperator = "gte"
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorRange     CommonFilterOperator = "range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
)

// CommonFilter is a single column predicate. Field is always a column name taken
// from a FilterAllowList, never raw caller input.
type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}

	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: clause.Column{Name: f.Field}, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: clause.Column{Name: f.Field}, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: clause.Column{Name: f.Field}, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: clause.Column{Name: f.Field}, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: clause.Column{Name: f.Field}, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: clause.Column{Name: f.Field}, Value: value}.Build(builder)
	case CommonFilterOperatorRange, CommonFilterOperatorDateRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(
			clause.Gte{Column: clause.Column{Name: f.Field}, Value: f.Values[0]},
			clause.Lte{Column: clause.Column{Name: f.Field}, Value: f.Values[1]},
		).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: clause.Column{Name: f.Field}, Values: f.Values}.Build(builder)
	default:
		return
	}
}

// Match evaluates the filter against an in-memory row keyed by column name.
// Unknown columns and incomparable values never match.
func (f *CommonFilter) Match(row map[string]any) bool {
	if len(f.Values) == 0 {
		return true
	}
	got, ok := row[f.Field]
	if !ok {
		return false
	}
	cmp := func(want any) (int, bool) { return compareValues(got, want) }

	switch f.Operator {
	case CommonFilterOperatorEq:
		c, ok := cmp(f.Values[0])
		return ok && c == 0
	case CommonFilterOperatorNotEq:
		c, ok := cmp(f.Values[0])
		return ok && c != 0
	case CommonFilterOperatorLt:
		c, ok := cmp(f.Values[0])
		return ok && c < 0
	case CommonFilterOperatorLte:
		c, ok := cmp(f.Values[0])
		return ok && c <= 0
	case CommonFilterOperatorGt:
		c, ok := cmp(f.Values[0])
		return ok && c > 0
	case CommonFilterOperatorGte:
		c, ok := cmp(f.Values[0])
		return ok && c >= 0
	case CommonFilterOperatorRange, CommonFilterOperatorDateRange:
		if len(f.Values) < 2 {
			return true
		}
		lo, ok1 := cmp(f.Values[0])
		hi, ok2 := cmp(f.Values[1])
		return ok1 && ok2 && lo >= 0 && hi <= 0
	case CommonFilterOperatorIn:
		return slices.ContainsFunc(f.Values, func(v any) bool {
			c, ok := cmp(v)
			return ok && c == 0
		})
	}
	return false
}

func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			if s, ok := b.(fmt.Stringer); ok {
				bv = s.String()
			} else {
				return 0, false
			}
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case int64:
		var bv int64
		switch n := b.(type) {
		case int64:
			bv = n
		case int:
			bv = int64(n)
		default:
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case int:
		return compareValues(int64(av), b)
	}
	return 0, false
}

// FilterAllowList maps a column to the operators callers may use on it.
type FilterAllowList map[string][]CommonFilterOperator

// Validate rejects filters on columns or with operators outside the allow-list.
func (a FilterAllowList) Validate(filters []CommonFilter) error {
	for _, f := range filters {
		ops, ok := a[f.Field]
		if !ok {
			return fmt.Errorf("filter on %q is not allowed", f.Field)
		}
		if !slices.Contains(ops, f.Operator) {
			return fmt.Errorf("operator %q is not allowed on %q", f.Operator, f.Field)
		}
		if len(f.Values) == 0 {
			return fmt.Errorf("filter on %q has no values", f.Field)
		}
	}
	return nil
}
