package core

import (
	"fmt"
	"strings"
)

// InsertSQL builds an INSERT for the given columns. When returning is set the
// statement ends with "RETURNING <returning>" for drivers without LastInsertId.
func InsertSQL(table string, cols []string, returning string) string {
	marks := make([]string, len(cols))
	for i := range marks {
		marks[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if returning != "" {
		query += " RETURNING " + returning
	}
	return query
}

// UpdateSQL builds an UPDATE of every given column, keyed by pk. The pk value
// is expected as the last argument.
func UpdateSQL(table string, cols []string, pk string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", table, strings.Join(sets, ", "), pk)
}

func DeleteSQL(table, pk string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, pk)
}
