// File: internal/core/builder.go
package core

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type Queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

// QueryBuilder is a fluent SELECT builder. Placeholders are written as "?"
// and rebound to the driver's bind style when the query runs.
type QueryBuilder struct {
	table      string
	selectCols []string
	whereOps   []string
	args       []interface{}
	orderBy    string
	limit      int
	offset     int
}

func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Clone returns an independent copy so derived queries never share state.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	c := *qb
	c.selectCols = append([]string(nil), qb.selectCols...)
	c.whereOps = append([]string(nil), qb.whereOps...)
	c.args = append([]interface{}(nil), qb.args...)
	return &c
}

func (qb *QueryBuilder) From(table string) *QueryBuilder {
	qb.table = table
	return qb
}

func (qb *QueryBuilder) Select(cols ...string) *QueryBuilder {
	qb.selectCols = cols
	return qb
}

func (qb *QueryBuilder) Where(cond string, vals ...interface{}) *QueryBuilder {
	qb.whereOps = append(qb.whereOps, cond)
	qb.args = append(qb.args, vals...)
	return qb
}

// WhereEq adds a "col = ?" condition.
func (qb *QueryBuilder) WhereEq(col string, val interface{}) *QueryBuilder {
	return qb.Where(col+" = ?", val)
}

// OrderBy sets the ORDER BY clause
func (qb *QueryBuilder) OrderBy(order string) *QueryBuilder {
	qb.orderBy = order
	return qb
}

// Limit sets the LIMIT clause
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.limit = n
	return qb
}

// Offset sets the OFFSET clause
func (qb *QueryBuilder) Offset(n int) *QueryBuilder {
	qb.offset = n
	return qb
}

// Build assembles the SQL query string and returns it with args
func (qb *QueryBuilder) Build() (string, []interface{}) {
	parts := []string{"SELECT"}
	if len(qb.selectCols) > 0 {
		parts = append(parts, strings.Join(qb.selectCols, ", "))
	} else {
		parts = append(parts, "*")
	}
	parts = append(parts, "FROM", qb.table)
	if len(qb.whereOps) > 0 {
		parts = append(parts, "WHERE", strings.Join(qb.whereOps, " AND "))
	}
	if qb.orderBy != "" {
		parts = append(parts, "ORDER BY", qb.orderBy)
	}
	if qb.limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", qb.limit))
	} else if qb.offset > 0 {
		// SQLite and MySQL only accept OFFSET after a LIMIT.
		parts = append(parts, fmt.Sprintf("LIMIT %d", int64(math.MaxInt64)))
	}
	if qb.offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", qb.offset))
	}
	return strings.Join(parts, " "), qb.args
}

// Filtered reports whether any WHERE condition has been added.
func (qb *QueryBuilder) Filtered() bool {
	return len(qb.whereOps) > 0
}

// Limited reports whether a LIMIT or OFFSET has been set.
func (qb *QueryBuilder) Limited() bool {
	return qb.limit > 0 || qb.offset > 0
}

// BuildDelete assembles a DELETE over the rows the builder matches. Without
// paging only the WHERE clause is used. A limited builder deletes the page it
// would select, picked by primary key; MySQL rejects LIMIT directly inside IN,
// hence the derived table.
func (qb *QueryBuilder) BuildDelete(pk string) (string, []interface{}) {
	if qb.Limited() {
		page, args := qb.Clone().Select(pk).Build()
		return fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM (%s) AS paged)", qb.table, pk, pk, page), args
	}
	query := "DELETE FROM " + qb.table
	if len(qb.whereOps) > 0 {
		query += " WHERE " + strings.Join(qb.whereOps, " AND ")
	}
	return query, qb.args
}

// Scan executes the built query and scans every row into dest, which must be
// a pointer to a slice of structs or struct pointers.
func (qb *QueryBuilder) Scan(ctx context.Context, q Queryer, dest interface{}) error {
	query, args := qb.Build()
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

// Count returns the count of matching records. A limited builder counts
// only the rows of its page.
func (qb *QueryBuilder) Count(ctx context.Context, q Queryer) (int64, error) {
	c := qb.Clone()
	c.orderBy = ""
	var query string
	var args []interface{}
	if qb.Limited() {
		page, pageArgs := c.Select("1").Build()
		query, args = "SELECT COUNT(*) FROM ("+page+") AS paged", pageArgs
	} else {
		query, args = c.Select("COUNT(*)").Build()
	}

	var count int64
	if err := q.QueryRowxContext(ctx, q.Rebind(query), args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
