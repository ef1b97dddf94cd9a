package query

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/internal/types"
	"github.com/tobsdb/samplestore/pkg"
)

type QueryArg = pkg.Map[string, any]

type OrderCompare string

const (
	OrderCompareEqual          OrderCompare = "eq"
	OrderCompareNotEqual       OrderCompare = "ne"
	OrderCompareGreater        OrderCompare = "gt"
	OrderCompareLess           OrderCompare = "lt"
	OrderCompareGreaterOrEqual OrderCompare = "gte"
	OrderCompareLessOrEqual    OrderCompare = "lte"
)

type StringCompare string

const (
	StringCompareContains   StringCompare = "contains"
	StringCompareStartsWith StringCompare = "startsWith"
	StringCompareEndsWith   StringCompare = "endsWith"
)

type Predicate = func(storage.Tuple) bool

// Where compiles where into a row predicate for schema.
// Each key names a column and maps to either a plain value, matched by equality
// (nil matches null), or an object of comparisons that must all hold.
// An empty where keeps every row and compiles to nil.
func Where(schema *catalog.Schema, where QueryArg) (Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}

	checks := []Predicate{}
	for name, input := range where {
		col_id, ok := schema.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %s", name)
		}
		check, err := compileColumn(schema.Columns[col_id], input)
		if err != nil {
			return nil, err
		}
		checks = append(checks, func(row storage.Tuple) bool { return check(row[col_id]) })
	}

	return func(row storage.Tuple) bool {
		for _, check := range checks {
			if !check(row) {
				return false
			}
		}
		return true
	}, nil
}

func compileColumn(col catalog.Column, input any) (func(any) bool, error) {
	comparisons, ok := input.(map[string]any)
	if !ok {
		val, err := types.Coerce(col.Type, input)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return func(v any) bool { return equal(v, val) }, nil
	}

	checks := []func(any) bool{}
	for comp, raw := range comparisons {
		val, err := types.Coerce(col.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		check, err := compileComparison(col, comp, val)
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return func(v any) bool {
		for _, check := range checks {
			if !check(v) {
				return false
			}
		}
		return true
	}, nil
}

func compileComparison(col catalog.Column, comp string, val any) (func(any) bool, error) {
	invalid := fmt.Errorf("invalid comparison %s on %s column %s", comp, col.Type, col.Name)

	if col.Type == types.FieldTypeString {
		switch StringCompare(comp) {
		case StringCompareContains, StringCompareStartsWith, StringCompareEndsWith:
			s, ok := val.(string)
			if !ok {
				return nil, invalid
			}
			return func(v any) bool {
				value, ok := v.(string)
				if !ok {
					return false
				}
				switch StringCompare(comp) {
				case StringCompareContains:
					return strings.Contains(value, s)
				case StringCompareStartsWith:
					return strings.HasPrefix(value, s)
				default:
					return strings.HasSuffix(value, s)
				}
			}, nil
		}
	}

	switch OrderCompare(comp) {
	case OrderCompareEqual:
		return func(v any) bool { return equal(v, val) }, nil
	case OrderCompareNotEqual:
		return func(v any) bool { return !equal(v, val) }, nil
	case OrderCompareGreater, OrderCompareLess, OrderCompareGreaterOrEqual, OrderCompareLessOrEqual:
		if col.Type == types.FieldTypeBool || col.Type == types.FieldTypeBytes || val == nil {
			return nil, invalid
		}
		return func(v any) bool {
			c, ok := order(v, val)
			if !ok {
				return false
			}
			switch OrderCompare(comp) {
			case OrderCompareGreater:
				return c > 0
			case OrderCompareLess:
				return c < 0
			case OrderCompareGreaterOrEqual:
				return c >= 0
			default:
				return c <= 0
			}
		}, nil
	}
	return nil, invalid
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a := a.(type) {
	case []byte:
		b, ok := b.([]byte)
		return ok && bytes.Equal(a, b)
	case time.Time:
		b, ok := b.(time.Time)
		return ok && a.Equal(b)
	}
	return a == b
}

// order compares two values of the same column type. Nulls never order.
func order(a, b any) (int, bool) {
	switch a := a.(type) {
	case int64:
		if b, ok := b.(int64); ok {
			return cmpOrdered(a, b), true
		}
	case float64:
		if b, ok := b.(float64); ok {
			return cmpOrdered(a, b), true
		}
	case string:
		if b, ok := b.(string); ok {
			return strings.Compare(a, b), true
		}
	case time.Time:
		if b, ok := b.(time.Time); ok {
			return a.Compare(b), true
		}
	}
	return 0, false
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
