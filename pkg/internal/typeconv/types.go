package typeconv

import (
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// MapGoTypeToSQL returns the column type used for a Go field type on the
// given driver ("sqlite3", "postgres" or "mysql").
func MapGoTypeToSQL(t reflect.Type, driver string) string {
	if t == timeType {
		if driver == "mysql" {
			return "DATETIME"
		}
		return "TIMESTAMP"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if driver == "postgres" || driver == "mysql" {
			return "BIGINT"
		}
		return "INTEGER"
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Float32, reflect.Float64:
		if driver == "postgres" {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case reflect.String:
		// MySQL cannot index TEXT without a prefix length.
		if driver == "mysql" {
			return "VARCHAR(255)"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// PrimaryKeyType returns the auto-increment primary key column definition.
func PrimaryKeyType(driver string) string {
	switch driver {
	case "postgres":
		return "BIGSERIAL PRIMARY KEY"
	case "mysql":
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}
