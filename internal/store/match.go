package store

import (
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Match reports whether doc satisfies every filter. Numbers of any Go
// numeric type compare as float64; values of different kinds are never
// equal and never ordered.
func Match(doc Document, filters []Filter) (bool, error) {
	for _, filter := range filters {
		ok, err := matchOne(doc[filter.Field], filter)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchOne(value interface{}, filter Filter) (bool, error) {
	switch filter.Op {
	case OpEq:
		return equal(value, filter.Value), nil
	case OpNe:
		return !equal(value, filter.Value), nil
	case OpLt, OpLte, OpGt, OpGte:
		cmp, ok := compare(value, filter.Value)
		if !ok {
			return false, nil
		}
		switch filter.Op {
		case OpLt:
			return cmp < 0, nil
		case OpLte:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case OpIn:
		list := reflect.ValueOf(filter.Value)
		if list.Kind() != reflect.Slice && list.Kind() != reflect.Array {
			return false, nil
		}
		for i := 0; i < list.Len(); i++ {
			if equal(value, list.Index(i).Interface()) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, errors.Wrapf(ErrUnsupportedOp, "op %q", filter.Op)
	}
}

// SortDocuments orders docs in place by a single field. Documents whose
// values cannot be compared keep their relative order.
func SortDocuments(docs []Document, order Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		cmp, ok := compare(docs[i][order.Field], docs[j][order.Field])
		if !ok {
			return false
		}
		if order.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func equal(a, b interface{}) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := toString(a); ok {
		sb, ok := toString(b)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ba == bb:
			return 0, true
		case !ba:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(value interface{}) (float64, bool) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

func toString(value interface{}) (string, bool) {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.String {
		return v.String(), true
	}
	return "", false
}
