package catalog

import (
	"fmt"

	"github.com/tobsdb/samplestore/internal/parser"
	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/internal/types"
)

type Column struct {
	Name     string
	Type     types.FieldType
	Nullable bool
	Default  any
}

type Schema struct {
	Columns []Column
}

func NewSchema(columns ...Column) *Schema {
	return &Schema{Columns: columns}
}

func SchemaFromParsed(t *parser.Table) *Schema {
	s := &Schema{Columns: make([]Column, 0, len(t.Fields))}
	for _, f := range t.Fields {
		s.Columns = append(s.Columns, Column{
			Name:     f.Name,
			Type:     f.BuiltinType,
			Nullable: f.Optional,
			Default:  f.Default,
		})
	}
	return s
}

// Copy returns a structurally identical schema sharing no memory with s.
func (s *Schema) Copy() *Schema {
	c := &Schema{Columns: make([]Column, len(s.Columns))}
	copy(c.Columns, s.Columns)
	for i, col := range c.Columns {
		if d, ok := col.Default.([]byte); ok {
			c.Columns[i].Default = append([]byte{}, d...)
		}
	}
	return c
}

func (s *Schema) ColumnCount() int { return len(s.Columns) }

func (s *Schema) ColumnIndex(name string) (int, bool) {
	for i, col := range s.Columns {
		if col.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// Validate checks tuple against the schema and returns a copy holding
// the coerced values, with defaults filled in for nil values.
func (s *Schema) Validate(tuple storage.Tuple) (storage.Tuple, error) {
	if len(tuple) != len(s.Columns) {
		return nil, fmt.Errorf("expected %d values, got %d", len(s.Columns), len(tuple))
	}

	out := make(storage.Tuple, len(tuple))
	for i, col := range s.Columns {
		v := tuple[i]
		if v == nil {
			if col.Default != nil {
				out[i] = col.Default
				continue
			}
			if !col.Nullable {
				return nil, fmt.Errorf("column %s cannot be null", col.Name)
			}
			continue
		}
		coerced, err := types.Coerce(col.Type, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		out[i] = coerced
	}
	return out, nil
}

// TupleFromRow lays a named row out in column order and validates it.
func (s *Schema) TupleFromRow(row map[string]any) (storage.Tuple, error) {
	for name := range row {
		if _, ok := s.ColumnIndex(name); !ok {
			return nil, fmt.Errorf("unknown column %s", name)
		}
	}
	tuple := make(storage.Tuple, len(s.Columns))
	for i, col := range s.Columns {
		tuple[i] = row[col.Name]
	}
	return s.Validate(tuple)
}
