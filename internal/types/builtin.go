package types

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tobsdb/samplestore/pkg"
)

var VALID_BUILTIN_TYPES = []FieldType{
	FieldTypeInt, FieldTypeFloat, FieldTypeString,
	FieldTypeBool, FieldTypeDate, FieldTypeBytes,
}

type FieldType string

const (
	FieldTypeInt    FieldType = "Int"
	FieldTypeFloat  FieldType = "Float"
	FieldTypeString FieldType = "String"
	FieldTypeBool   FieldType = "Bool"
	FieldTypeDate   FieldType = "Date"
	FieldTypeBytes  FieldType = "Bytes"
)

func (t FieldType) IsValid() bool { return slices.Contains(VALID_BUILTIN_TYPES, t) }

var ErrTypeMismatch = errors.New("type mismatch")

// Coerce converts v into the canonical go representation of t:
// int64, float64, string, bool, time.Time or []byte.
// nil is passed through; nullability is the caller's concern.
func Coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case FieldTypeInt:
		if n, ok := pkg.NumToInt64(v); ok {
			return n, nil
		}
	case FieldTypeFloat:
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		}
		if n, ok := pkg.NumToInt64(v); ok {
			return float64(n), nil
		}
	case FieldTypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case FieldTypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case FieldTypeDate:
		switch v := v.(type) {
		case time.Time:
			return v, nil
		case string:
			d, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s is not an RFC3339 date", ErrTypeMismatch, v)
			}
			return d, nil
		}
	case FieldTypeBytes:
		switch v := v.(type) {
		case []byte:
			return v, nil
		case string:
			b, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("%w: bytes must be base64 encoded", ErrTypeMismatch)
			}
			return b, nil
		}
	default:
		return nil, fmt.Errorf("Invalid field type: %s", t)
	}

	return nil, fmt.Errorf("%w: expected %s, got %T", ErrTypeMismatch, t, v)
}
