// File: internal/core/schema.go
package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

var (
	ErrNotStruct     = errors.New("model must be a struct or a pointer to a struct")
	ErrNoPrimaryKey  = errors.New("model has no primary key")
	ErrPrimaryKeyInt = errors.New("primary key must be an integer field")
)

// TableNamer lets a model override the table name derived from its type.
type TableNamer interface {
	TableName() string
}

// Column describes a single mapped struct field.
type Column struct {
	Name       string // column name in storage
	Field      string // Go struct field name
	Index      []int
	Type       reflect.Type
	PrimaryKey bool
	Required   bool
	Unique     bool
}

// Schema is the reflected table layout of a model type.
type Schema struct {
	Name    string
	Table   string
	Type    reflect.Type
	Columns []*Column
	PK      *Column

	byName map[string]*Column
}

var schemas sync.Map // reflect.Type -> *Schema

// SchemaOf returns the cached schema for t, parsing it on first use.
// Pointer types are dereferenced.
func SchemaOf(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, ErrNotStruct
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if s, ok := schemas.Load(t); ok {
		return s.(*Schema), nil
	}
	s, err := Parse(t)
	if err != nil {
		return nil, err
	}
	actual, _ := schemas.LoadOrStore(t, s)
	return actual.(*Schema), nil
}

// Parse reflects over a struct type and builds its schema.
func Parse(t reflect.Type) (*Schema, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", ErrNotStruct, t)
	}
	s := &Schema{
		Name:   t.Name(),
		Table:  ColumnName(t.Name()),
		Type:   t,
		byName: map[string]*Column{},
	}
	if namer, ok := reflect.New(t).Interface().(TableNamer); ok {
		s.Table = namer.TableName()
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := f.Tag.Get("db")
		if name == "-" {
			continue
		}
		if name == "" {
			name = ColumnName(f.Name)
		}
		col := &Column{
			Name:  name,
			Field: f.Name,
			Index: f.Index,
			Type:  f.Type,
		}
		for _, opt := range strings.Split(f.Tag.Get("torm"), ",") {
			switch strings.TrimSpace(opt) {
			case "pk":
				col.PrimaryKey = true
			case "required":
				col.Required = true
			case "unique":
				col.Unique = true
			}
		}
		s.Columns = append(s.Columns, col)
		s.byName[name] = col
	}

	for _, c := range s.Columns {
		if c.PrimaryKey {
			s.PK = c
			break
		}
	}
	if s.PK == nil {
		if c, ok := s.byName["id"]; ok {
			c.PrimaryKey = true
			s.PK = c
		}
	}
	if s.PK == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, s.Name)
	}
	switch s.PK.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return nil, fmt.Errorf("%w: %s.%s is %s", ErrPrimaryKeyInt, s.Name, s.PK.Field, s.PK.Type)
	}
	s.PK.Required = false
	return s, nil
}

// ColumnName converts a Go identifier to snake_case ("CreatedAt" -> "created_at").
func ColumnName(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// Start a new word unless inside an acronym ("ID", "HTTPCode").
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Column looks up a column by its storage name.
func (s *Schema) Column(name string) (*Column, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// Fields returns the non-key columns in declaration order.
func (s *Schema) Fields() []*Column {
	out := make([]*Column, 0, len(s.Columns))
	for _, c := range s.Columns {
		if !c.PrimaryKey {
			out = append(out, c)
		}
	}
	return out
}

// Values returns the column names and current values of every non-key field of v.
func (s *Schema) Values(v reflect.Value) ([]string, []interface{}) {
	v = reflect.Indirect(v)
	fields := s.Fields()
	cols := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields))
	for _, c := range fields {
		cols = append(cols, c.Name)
		args = append(args, v.FieldByIndex(c.Index).Interface())
	}
	return cols, args
}

// ID returns the primary key of v; zero means unassigned.
func (s *Schema) ID(v reflect.Value) int64 {
	return reflect.Indirect(v).FieldByIndex(s.PK.Index).Int()
}

// SetID writes a storage-assigned identifier into v.
func (s *Schema) SetID(v reflect.Value, id int64) {
	reflect.Indirect(v).FieldByIndex(s.PK.Index).SetInt(id)
}

// Missing returns the first required column holding its zero value, if any.
func (s *Schema) Missing(v reflect.Value) (*Column, bool) {
	v = reflect.Indirect(v)
	for _, c := range s.Columns {
		if c.Required && v.FieldByIndex(c.Index).IsZero() {
			return c, true
		}
	}
	return nil, false
}
