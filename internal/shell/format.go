package shell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"gopkg.in/yaml.v3"
)

// Format selects how statement results are written.
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case Text, JSON, YAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json or yaml)", name)
}

func (s *Shell) render(vals []lua.LValue) (string, error) {
	switch s.format {
	case JSON:
		b, err := json.MarshalIndent(payload(vals), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode json: %w", err)
		}
		return string(b), nil
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(payload(vals)); err != nil {
			return "", fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return "", err
		}
		return strings.TrimRight(buf.String(), "\n"), nil
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = text(v, false)
	}
	return strings.Join(parts, "\t"), nil
}

// payload is the value encoded for several results: a single result stands
// alone, more than one become a list.
func payload(vals []lua.LValue) interface{} {
	if len(vals) == 1 {
		return toGo(vals[0])
	}
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = toGo(v)
	}
	return out
}

// toGo converts a Lua value into something encoding/json and yaml.v3 can
// marshal. Records become their entity, so struct tags decide the field names.
func toGo(v lua.LValue) interface{} {
	switch v := v.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		if f := float64(v); f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f)
		}
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LUserData:
		if rec, ok := v.Value.(*record); ok {
			return rec.entity
		}
	case *lua.LTable:
		if isList(v) {
			out := make([]interface{}, 0, v.Len())
			for i := 1; i <= v.Len(); i++ {
				out = append(out, toGo(v.RawGetInt(i)))
			}
			return out
		}
		out := map[string]interface{}{}
		v.ForEach(func(k, val lua.LValue) {
			out[lua.LVAsString(k)] = toGo(val)
		})
		return out
	}
	if v == lua.LNil {
		return nil
	}
	return v.String()
}

// text renders v for the text format. Strings are quoted only inside
// containers.
func text(v lua.LValue, nested bool) string {
	switch v := v.(type) {
	case lua.LString:
		if nested {
			return strconv.Quote(string(v))
		}
		return string(v)
	case *lua.LUserData:
		if rec, ok := v.Value.(*record); ok {
			return recordString(rec)
		}
	case *lua.LTable:
		if isList(v) {
			items := make([]string, 0, v.Len())
			for i := 1; i <= v.Len(); i++ {
				items = append(items, text(v.RawGetInt(i), true))
			}
			return "[" + strings.Join(items, ", ") + "]"
		}
		var items []string
		v.ForEach(func(k, val lua.LValue) {
			items = append(items, fmt.Sprintf("%s = %s", lua.LVAsString(k), text(val, true)))
		})
		sort.Strings(items)
		return "{" + strings.Join(items, ", ") + "}"
	}
	if v == lua.LNil {
		return "nil"
	}
	return v.String()
}

// isList reports whether tb holds only the keys 1..n. An empty table is a list.
func isList(tb *lua.LTable) bool {
	n, keys := tb.Len(), 0
	tb.ForEach(func(lua.LValue, lua.LValue) { keys++ })
	return keys == n
}

// recordString uses the entity's String method when it has one, and lists
// its columns otherwise.
func recordString(rec *record) string {
	if s, ok := rec.entity.(fmt.Stringer); ok {
		return s.String()
	}
	var b strings.Builder
	b.WriteString("<" + rec.schema.Name)
	for _, col := range rec.schema.Columns {
		fmt.Fprintf(&b, " %s=%v", col.Name, rec.value.FieldByIndex(col.Index).Interface())
	}
	b.WriteString(">")
	return b.String()
}
