package props

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tobsdb/samplestore/internal/types"
)

func ParseOptionalPropSafe(value string) (bool, error) {
	opt, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("Invalid syntax: optional(%s)", value)
	}
	return opt, nil
}

// ParseDefaultPropSafe reads a default value written in schema text as a value of type t.
func ParseDefaultPropSafe(t types.FieldType, value string) (any, error) {
	value = strings.TrimSpace(value)
	invalid := func(err error) error {
		return fmt.Errorf("default(%s) is not a valid %s; %s", value, t, err.Error())
	}

	switch t {
	case types.FieldTypeInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, invalid(err)
		}
		return n, nil
	case types.FieldTypeFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, invalid(err)
		}
		return f, nil
	case types.FieldTypeBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, invalid(err)
		}
		return b, nil
	case types.FieldTypeString:
		return strings.Trim(value, `"`), nil
	case types.FieldTypeDate:
		d, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, invalid(err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("field type %s cannot have default prop", t)
}
