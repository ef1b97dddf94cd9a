package parser

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tobsdb/samplestore/internal/props"
	"github.com/tobsdb/samplestore/internal/types"
	"github.com/tobsdb/samplestore/pkg"
)

type Table struct {
	Name   string
	Fields []*Field
}

type Field struct {
	Name        string
	BuiltinType types.FieldType
	Optional    bool
	Default     any
}

type LineParserState int

const (
	ParserStateTableStart LineParserState = iota
	ParserStateTableEnd
	ParserStateNewField
	ParserStateIdle
)

type ParserData struct {
	Name         string
	Builtin_type types.FieldType
	Properties   map[props.FieldProp]string
}

const (
	table_prefix     = "$TABLE "
	table_prefix_len = len(table_prefix)
)

var valid_name = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func LineParser(line string) (LineParserState, *ParserData, error) {
	if strings.HasPrefix(line, table_prefix) {
		line := line[table_prefix_len:]
		name_end := strings.Index(line, " ")

		if name_end > 0 {
			open_bracket := strings.TrimSpace(line[name_end:])
			if open_bracket != "{" {
				return ParserStateIdle, nil, errors.New("Table name cannot include space")
			}
			name := line[:name_end]
			if !valid_name.MatchString(name) {
				return ParserStateIdle, nil, errors.New("Table name contains invalid characters")
			}
			return ParserStateTableStart, &ParserData{Name: name}, nil
		}
	} else if line == "}" {
		return ParserStateTableEnd, nil, nil
	} else {
		splits := strings.Split(line, " ")
		splits = pkg.Filter(splits, func(s string) bool { return len(s) > 0 })
		if len(splits) < 2 {
			return ParserStateIdle, nil, errors.New("Invalid line")
		}
		if !valid_name.MatchString(splits[0]) {
			return ParserStateIdle, nil, errors.New("Field name contains invalid characters")
		}
		builtin_type := types.FieldType(splits[1])
		if !builtin_type.IsValid() {
			return ParserStateIdle, nil, fmt.Errorf("Invalid field type: %s", builtin_type)
		}

		raw_field_props := strings.Join(splits[2:], " ")
		field_props, err := parseRawFieldProps(raw_field_props)
		if err != nil {
			return ParserStateIdle, nil, err
		}

		return ParserStateNewField, &ParserData{
			Name:         splits[0],
			Builtin_type: builtin_type,
			Properties:   field_props,
		}, nil
	}
	return ParserStateIdle, nil, errors.New("Invalid line")
}

var prop_regex = regexp.MustCompile(`(?m)(\w+)\(([^)]+)\)`)

func parseRawFieldProps(raw string) (map[props.FieldProp]string, error) {
	field_props := make(map[props.FieldProp]string)

	for _, entry := range prop_regex.FindAllString(raw, -1) {
		split := strings.SplitN(entry, "(", 2)
		prop, value := props.FieldProp(split[0]), strings.TrimSuffix(split[1], ")")
		if !prop.IsValid() {
			return nil, fmt.Errorf("Invalid field prop: %s", prop)
		}
		field_props[prop] = value
	}

	return field_props, nil
}

func newField(data *ParserData) (*Field, error) {
	field := &Field{Name: data.Name, BuiltinType: data.Builtin_type}

	if raw, ok := data.Properties[props.FieldPropOptional]; ok {
		opt, err := props.ParseOptionalPropSafe(raw)
		if err != nil {
			return nil, err
		}
		field.Optional = opt
	}

	if raw, ok := data.Properties[props.FieldPropDefault]; ok {
		def, err := props.ParseDefaultPropSafe(field.BuiltinType, raw)
		if err != nil {
			return nil, err
		}
		field.Default = def
	}

	return field, nil
}

// ParseSchema reads every $TABLE block in schema_data.
// Tables and their fields keep declaration order.
func ParseSchema(schema_data string) ([]*Table, error) {
	tables := pkg.NewInsertSortMap[string, *Table]()

	scanner := bufio.NewScanner(strings.NewReader(schema_data))
	line_idx := 0

	var current_table *Table

	for scanner.Scan() {
		line_idx++
		line := strings.TrimSpace(scanner.Text())

		// Ignore empty lines & comments
		if len(line) == 0 || strings.HasPrefix(line, "//") {
			continue
		}

		state, data, err := LineParser(line)
		if err != nil {
			return nil, fmt.Errorf("Error parsing line %d: %s", line_idx, err)
		}

		switch state {
		case ParserStateTableStart:
			if current_table != nil {
				return nil, fmt.Errorf("Error parsing line %d: table %s is not closed", line_idx, current_table.Name)
			}
			if tables.Has(data.Name) {
				return nil, fmt.Errorf("Error parsing line %d: duplicate table %s", line_idx, data.Name)
			}
			current_table = &Table{Name: data.Name, Fields: []*Field{}}
		case ParserStateTableEnd:
			if current_table == nil {
				return nil, fmt.Errorf("Error parsing line %d: unexpected }", line_idx)
			}
			if len(current_table.Fields) == 0 {
				return nil, fmt.Errorf("Error parsing line %d: table %s has no fields", line_idx, current_table.Name)
			}
			tables.Push(current_table.Name, current_table)
			current_table = nil
		case ParserStateNewField:
			if current_table == nil {
				return nil, fmt.Errorf("Error parsing line %d: field outside of table", line_idx)
			}
			for _, f := range current_table.Fields {
				if f.Name == data.Name {
					return nil, fmt.Errorf("Error parsing line %d: duplicate field %s", line_idx, data.Name)
				}
			}
			field, err := newField(data)
			if err != nil {
				return nil, fmt.Errorf("Error parsing line %d: %s", line_idx, err)
			}
			current_table.Fields = append(current_table.Fields, field)
		}
	}

	if current_table != nil {
		return nil, fmt.Errorf("table %s is not closed", current_table.Name)
	}

	return tables.Values(), nil
}
