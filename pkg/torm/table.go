package torm

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/TechXTT/tormsh/internal/core"
)

// Eq holds column = value constraints for FilterBy.
type Eq map[string]interface{}

// Table queries the persisted rows of one model type. Queries read storage
// directly; changes staged in the session are not visible until Commit.
// Every builder method returns a new Table, so a Table can be reused.
// Rows come back in primary key order unless OrderBy says otherwise.
type Table struct {
	sess    *Session
	schema  *core.Schema
	qb      *core.QueryBuilder
	ordered bool
	err     error
}

// Table returns the query interface for model's type. model may be a struct
// value or a pointer to one.
func (s *Session) Table(model interface{}) *Table {
	t := &Table{sess: s}
	schema, err := core.SchemaOf(reflect.TypeOf(model))
	if err != nil {
		t.err = fmt.Errorf("%w: %v", ErrInvalidEntity, err)
		return t
	}
	t.schema = schema
	t.qb = core.NewQueryBuilder().From(schema.Table)
	return t
}

// Schema returns the reflected schema, or nil if the model was invalid.
func (t *Table) Schema() *core.Schema { return t.schema }

func (t *Table) clone() *Table {
	c := *t
	if t.qb != nil {
		c.qb = t.qb.Clone()
	}
	return &c
}

func (t *Table) column(name string) error {
	if _, ok := t.schema.Column(name); !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.schema.Table, name)
	}
	return nil
}

// FilterBy narrows the query to rows whose columns equal the given values.
func (t *Table) FilterBy(eq Eq) *Table {
	c := t.clone()
	if c.err != nil {
		return c
	}
	cols := make([]string, 0, len(eq))
	for col := range eq {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if err := c.column(col); err != nil {
			c.err = err
			return c
		}
		c.qb.WhereEq(col, eq[col])
	}
	return c
}

// OrderBy sorts by a column, descending when desc is set.
func (t *Table) OrderBy(col string, desc bool) *Table {
	c := t.clone()
	if c.err != nil {
		return c
	}
	if err := c.column(col); err != nil {
		c.err = err
		return c
	}
	if desc {
		col += " DESC"
	}
	c.qb.OrderBy(col)
	c.ordered = true
	return c
}

// Limit caps the number of rows returned by All.
func (t *Table) Limit(n int) *Table {
	c := t.clone()
	if c.err == nil {
		c.qb.Limit(n)
	}
	return c
}

// Offset skips the first n rows.
func (t *Table) Offset(n int) *Table {
	c := t.clone()
	if c.err == nil {
		c.qb.Offset(n)
	}
	return c
}

func (t *Table) query() *core.QueryBuilder {
	q := t.qb.Clone()
	if !t.ordered {
		q.OrderBy(t.schema.PK.Name)
	}
	return q
}

// All returns every matching row as a pointer to a new model value. The
// result is empty, not nil, when nothing matches.
func (t *Table) All(ctx context.Context) ([]interface{}, error) {
	if t.err != nil {
		return nil, t.err
	}
	dest := reflect.New(reflect.SliceOf(reflect.PointerTo(t.schema.Type)))
	if err := t.query().Scan(ctx, t.sess.db.conn, dest.Interface()); err != nil {
		return nil, fmt.Errorf("query %s: %w", t.schema.Table, err)
	}
	rows := dest.Elem()
	out := make([]interface{}, rows.Len())
	for i := range out {
		out[i] = rows.Index(i).Interface()
	}
	return out, nil
}

// First returns the first matching row, or nil when there is none.
func (t *Table) First(ctx context.Context) (interface{}, error) {
	rows, err := t.Limit(1).All(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Get returns the row with the given id, or nil when there is none.
func (t *Table) Get(ctx context.Context, id int64) (interface{}, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.FilterBy(Eq{t.schema.PK.Name: id}).First(ctx)
}

// Count returns the number of matching rows, within the limit and offset
// when they are set.
func (t *Table) Count(ctx context.Context) (int64, error) {
	if t.err != nil {
		return 0, t.err
	}
	n, err := t.qb.Count(ctx, t.sess.db.conn)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.schema.Table, err)
	}
	return n, nil
}

// DeleteAll stages removal of every matching row and returns how many rows
// currently match. With Limit or Offset only the rows All would return are
// removed. Nothing is removed until the session commits.
func (t *Table) DeleteAll(ctx context.Context) (int64, error) {
	n, err := t.Count(ctx)
	if err != nil {
		return 0, err
	}
	t.sess.stageBulkDelete(t.schema, t.query(), n)
	return n, nil
}
