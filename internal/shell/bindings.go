package shell

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/TechXTT/tormsh/internal/core"
	"github.com/TechXTT/tormsh/pkg/torm"
)

const recordTypeName = "torm.record"

// record is the userdata payload wrapping one entity.
type record struct {
	entity interface{}
	value  reflect.Value
	schema *core.Schema
}

// Register exposes a model type as a global table named name, with a
// constructor (new) and a query object (query).
func (s *Shell) Register(name string, proto interface{}) error {
	schema, err := core.SchemaOf(reflect.TypeOf(proto))
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	L := s.L
	model := L.NewTable()
	L.SetField(model, "new", L.NewFunction(func(L *lua.LState) int {
		base := argBase(L, model)
		v := reflect.New(schema.Type)
		rec := &record{entity: v.Interface(), value: v.Elem(), schema: schema}
		if fields := L.OptTable(base, nil); fields != nil {
			var err error
			fields.ForEach(func(k, val lua.LValue) {
				if err == nil {
					err = s.assign(rec, lua.LVAsString(k), val)
				}
			})
			if err != nil {
				return s.raise(L, err)
			}
		}
		L.Push(s.wrap(rec))
		return 1
	}))
	L.SetField(model, "query", s.queryObject(s.sess.Table(proto)))
	L.SetGlobal(name, model)
	s.log.Debug("model registered", "name", name, "table", schema.Table)
	return nil
}

func (s *Shell) registerGlobals() {
	L := s.L
	sess := L.NewTable()
	L.SetFuncs(sess, map[string]lua.LGFunction{
		"add":      s.sessionStage(sess, s.sess.Add),
		"update":   s.sessionStage(sess, s.sess.Update),
		"delete":   s.sessionStage(sess, s.sess.Delete),
		"commit":   s.sessionCommit,
		"rollback": func(L *lua.LState) int { s.sess.Rollback(); return 0 },
		"pending": func(L *lua.LState) int {
			L.Push(lua.LNumber(s.sess.Pending()))
			return 1
		},
		"state": func(L *lua.LState) int {
			rec := s.checkRecord(L, argBase(L, sess))
			L.Push(lua.LString(s.sess.State(rec.entity).String()))
			return 1
		},
	})
	L.SetGlobal("session", sess)

	db := L.NewTable()
	L.SetField(db, "session", sess)
	L.SetField(db, "driver", lua.LString(s.db.Driver()))
	L.SetField(db, "exec", L.NewFunction(func(L *lua.LState) int {
		base := argBase(L, db)
		query := L.CheckString(base)
		args := make([]interface{}, 0, L.GetTop()-base)
		for i := base + 1; i <= L.GetTop(); i++ {
			args = append(args, fromLua(L.Get(i)))
		}
		res, err := s.db.Exec(ctxOf(L), query, args...)
		if err != nil {
			return s.raise(L, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return s.raise(L, err)
		}
		L.Push(lua.LNumber(n))
		return 1
	}))
	L.SetGlobal("db", db)

	L.SetGlobal("format", L.NewFunction(func(L *lua.LState) int {
		if L.GetTop() == 0 {
			L.Push(lua.LString(s.format))
			return 1
		}
		f, err := ParseFormat(L.CheckString(1))
		if err != nil {
			return s.raise(L, err)
		}
		s.format = f
		return 0
	}))

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = text(L.Get(i+1), false)
		}
		fmt.Fprintln(s.out, strings.Join(parts, "\t"))
		return 0
	}))
}

func (s *Shell) sessionStage(self *lua.LTable, stage func(interface{}) error) lua.LGFunction {
	return func(L *lua.LState) int {
		rec := s.checkRecord(L, argBase(L, self))
		if err := stage(rec.entity); err != nil {
			return s.raise(L, err)
		}
		return 0
	}
}

func (s *Shell) sessionCommit(L *lua.LState) int {
	if err := s.sess.Commit(ctxOf(L)); err != nil {
		return s.raise(L, err)
	}
	return 0
}

// queryObject builds the Lua view of t. Builder methods return new query
// objects; the rest hit storage.
func (s *Shell) queryObject(t *torm.Table) *lua.LTable {
	L := s.L
	q := L.NewTable()
	L.SetFuncs(q, map[string]lua.LGFunction{
		"all": func(L *lua.LState) int {
			rows, err := t.All(ctxOf(L))
			if err != nil {
				return s.raise(L, err)
			}
			list := L.CreateTable(len(rows), 0)
			for _, row := range rows {
				list.Append(s.wrapEntity(row, t.Schema()))
			}
			L.Push(list)
			return 1
		},
		"first": func(L *lua.LState) int {
			row, err := t.First(ctxOf(L))
			if err != nil {
				return s.raise(L, err)
			}
			L.Push(s.wrapEntity(row, t.Schema()))
			return 1
		},
		"get": func(L *lua.LState) int {
			row, err := t.Get(ctxOf(L), L.CheckInt64(argBase(L, q)))
			if err != nil {
				return s.raise(L, err)
			}
			L.Push(s.wrapEntity(row, t.Schema()))
			return 1
		},
		"count": func(L *lua.LState) int {
			n, err := t.Count(ctxOf(L))
			if err != nil {
				return s.raise(L, err)
			}
			L.Push(lua.LNumber(n))
			return 1
		},
		"delete": func(L *lua.LState) int {
			n, err := t.DeleteAll(ctxOf(L))
			if err != nil {
				return s.raise(L, err)
			}
			L.Push(lua.LNumber(n))
			return 1
		},
		"filter_by": func(L *lua.LState) int {
			eq := torm.Eq{}
			L.CheckTable(argBase(L, q)).ForEach(func(k, v lua.LValue) {
				eq[lua.LVAsString(k)] = fromLua(v)
			})
			L.Push(s.queryObject(t.FilterBy(eq)))
			return 1
		},
		"order_by": func(L *lua.LState) int {
			base := argBase(L, q)
			col := L.CheckString(base)
			desc := false
			switch v := L.Get(base + 1).(type) {
			case lua.LBool:
				desc = bool(v)
			case lua.LString:
				desc = strings.EqualFold(string(v), "desc")
			}
			L.Push(s.queryObject(t.OrderBy(col, desc)))
			return 1
		},
		"limit": func(L *lua.LState) int {
			L.Push(s.queryObject(t.Limit(L.CheckInt(argBase(L, q)))))
			return 1
		},
		"offset": func(L *lua.LState) int {
			L.Push(s.queryObject(t.Offset(L.CheckInt(argBase(L, q)))))
			return 1
		},
	})
	return q
}

func (s *Shell) registerRecordType() {
	L := s.L
	mt := L.NewTypeMetatable(recordTypeName)
	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		rec := s.checkRecord(L, 1)
		name := L.CheckString(2)
		col, ok := rec.schema.Column(name)
		if !ok {
			return s.raise(L, fmt.Errorf("%s has no field %q", rec.schema.Name, name))
		}
		L.Push(toLua(rec.value.FieldByIndex(col.Index)))
		return 1
	}))
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		rec := s.checkRecord(L, 1)
		if err := s.assign(rec, L.CheckString(2), L.Get(3)); err != nil {
			return s.raise(L, err)
		}
		return 0
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(recordString(s.checkRecord(L, 1))))
		return 1
	}))
	L.SetField(mt, "__eq", L.NewFunction(func(L *lua.LState) int {
		a, b := s.checkRecord(L, 1), s.checkRecord(L, 2)
		L.Push(lua.LBool(a.entity == b.entity))
		return 1
	}))
}

func (s *Shell) wrap(rec *record) *lua.LUserData {
	ud := s.L.NewUserData()
	ud.Value = rec
	s.L.SetMetatable(ud, s.L.GetTypeMetatable(recordTypeName))
	return ud
}

// wrapEntity wraps a query result. A nil entity becomes nil.
func (s *Shell) wrapEntity(entity interface{}, schema *core.Schema) lua.LValue {
	if entity == nil {
		return lua.LNil
	}
	return s.wrap(&record{entity: entity, value: reflect.ValueOf(entity).Elem(), schema: schema})
}

func (s *Shell) checkRecord(L *lua.LState, n int) *record {
	ud := L.CheckUserData(n)
	rec, ok := ud.Value.(*record)
	if !ok {
		L.ArgError(n, "record expected")
	}
	return rec
}

// assign sets a field from a Lua value, checking that the value fits the
// field's type. The primary key is storage-assigned and cannot be set.
func (s *Shell) assign(rec *record, name string, val lua.LValue) error {
	col, ok := rec.schema.Column(name)
	if !ok {
		return fmt.Errorf("%s has no field %q", rec.schema.Name, name)
	}
	if col.PrimaryKey {
		return fmt.Errorf("%s.%s is read-only", rec.schema.Name, name)
	}
	field := rec.value.FieldByIndex(col.Index)
	mismatch := func(want string) error {
		return fmt.Errorf("%s.%s expects %s, got %s", rec.schema.Name, name, want, val.Type())
	}

	switch field.Kind() {
	case reflect.String:
		str, ok := val.(lua.LString)
		if !ok {
			return mismatch("a string")
		}
		field.SetString(string(str))
	case reflect.Bool:
		b, ok := val.(lua.LBool)
		if !ok {
			return mismatch("a boolean")
		}
		field.SetBool(bool(b))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		num, ok := val.(lua.LNumber)
		if !ok || float64(num) != math.Trunc(float64(num)) {
			return mismatch("an integer")
		}
		n, fits := toInt64(float64(num))
		if !fits || field.OverflowInt(n) {
			return outOfRange(rec, name, num)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		num, ok := val.(lua.LNumber)
		if !ok || num < 0 || float64(num) != math.Trunc(float64(num)) {
			return mismatch("a non-negative integer")
		}
		if f := float64(num); f >= math.MaxUint64 || field.OverflowUint(uint64(f)) {
			return outOfRange(rec, name, num)
		}
		field.SetUint(uint64(num))
	case reflect.Float32, reflect.Float64:
		num, ok := val.(lua.LNumber)
		if !ok {
			return mismatch("a number")
		}
		field.SetFloat(float64(num))
	default:
		if field.Type() == reflect.TypeOf(time.Time{}) {
			str, ok := val.(lua.LString)
			if !ok {
				return mismatch("an RFC 3339 time string")
			}
			ts, err := time.Parse(time.RFC3339, string(str))
			if err != nil {
				return fmt.Errorf("%s.%s: %w", rec.schema.Name, name, err)
			}
			field.Set(reflect.ValueOf(ts))
			return nil
		}
		return fmt.Errorf("%s.%s has unsupported type %s", rec.schema.Name, name, field.Type())
	}
	return nil
}

func outOfRange(rec *record, name string, num lua.LNumber) error {
	return fmt.Errorf("%s.%s: %g is out of range", rec.schema.Name, name, float64(num))
}

// toInt64 converts a whole number, reporting false for infinities and values
// beyond the int64 range, where the conversion is undefined.
func toInt64(f float64) (int64, bool) {
	if math.IsInf(f, 0) || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toLua(v reflect.Value) lua.LValue {
	switch v.Kind() {
	case reflect.String:
		return lua.LString(v.String())
	case reflect.Bool:
		return lua.LBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(v.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(v.Float())
	}
	if ts, ok := v.Interface().(time.Time); ok {
		return lua.LString(ts.Format(time.RFC3339))
	}
	return lua.LString(fmt.Sprint(v.Interface()))
}

// fromLua converts a scalar Lua value to the Go value used as a query argument.
func fromLua(v lua.LValue) interface{} {
	switch v := v.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		if f := float64(v); f == math.Trunc(f) {
			if n, ok := toInt64(f); ok {
				return n
			}
		}
		return float64(v)
	case lua.LString:
		return string(v)
	}
	if v == lua.LNil {
		return nil
	}
	return v.String()
}

// argBase returns the index of the first real argument, skipping self when
// the function was called with the colon syntax.
func argBase(L *lua.LState, self lua.LValue) int {
	if L.GetTop() >= 1 && L.Get(1) == self {
		return 2
	}
	return 1
}

func ctxOf(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
