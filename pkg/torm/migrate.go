package torm

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/TechXTT/tormsh/internal/core"
	"github.com/TechXTT/tormsh/pkg/internal/typeconv"
)

// AutoMigrate creates the table of each model if it does not exist yet.
// Existing tables are left untouched; schema evolution is handled outside.
func (d *DB) AutoMigrate(ctx context.Context, models ...interface{}) error {
	for _, m := range models {
		schema, err := core.SchemaOf(reflect.TypeOf(m))
		if err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if _, err := d.conn.ExecContext(ctx, CreateTableSQL(schema, d.Driver())); err != nil {
			return fmt.Errorf("create table %s: %w", schema.Table, err)
		}
		d.log.Debug("table ready", "table", schema.Table)
	}
	return nil
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for schema on driver.
func CreateTableSQL(schema *core.Schema, driver string) string {
	defs := make([]string, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		if c.PrimaryKey {
			defs = append(defs, c.Name+" "+typeconv.PrimaryKeyType(driver))
			continue
		}
		def := c.Name + " " + typeconv.MapGoTypeToSQL(c.Type, driver) + " NOT NULL"
		if !c.Required {
			if zero := zeroDefault(c.Type); zero != "" {
				def += " DEFAULT " + zero
			}
		}
		if c.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", schema.Table, strings.Join(defs, ", "))
}

func zeroDefault(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "''"
	case reflect.Bool:
		return "FALSE"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "0"
	}
	return ""
}
