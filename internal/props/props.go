package props

import "slices"

type FieldProp string

var VALID_BUILTIN_PROPS = []FieldProp{FieldPropOptional, FieldPropDefault}

const (
	FieldPropOptional FieldProp = "optional" // optional(true/false)
	FieldPropDefault  FieldProp = "default"  // default(value)
)

func (p FieldProp) IsValid() bool {
	return slices.Contains(VALID_BUILTIN_PROPS, p)
}
