package luamodule

import (
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// toLua converts a variant into a Lua value. Maps and vectors become tables.
func toLua(L *lua.LState, v variant.Variant) lua.LValue {
	switch v.Kind() {
	case variant.KindString:
		s, _ := v.AsString()
		return lua.LString(s)
	case variant.KindInt32, variant.KindInt64:
		i, _ := v.AsInt64()
		return lua.LNumber(i)
	case variant.KindDouble:
		f, _ := v.AsDouble()
		return lua.LNumber(f)
	case variant.KindBool:
		b, _ := v.AsBool()
		return lua.LBool(b)
	case variant.KindVector:
		items, _ := v.AsVector()
		t := L.CreateTable(len(items), 0)
		for i, item := range items {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	case variant.KindMap:
		m, _ := v.AsMap()
		t := L.CreateTable(0, len(m))
		for k, item := range m {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	}
	return lua.LNil
}

// dataToTable converts event data into a Lua table. Nil data yields an empty
// table.
func dataToTable(L *lua.LState, d *variant.EventData) *lua.LTable {
	m := d.AsMapCopy()
	t := L.CreateTable(0, len(m))
	for k, v := range m {
		t.RawSetString(k, toLua(L, v))
	}
	return t
}

// eventToTable is the Lua view of an event.
func eventToTable(L *lua.LState, ev *event.Event) *lua.LTable {
	t := L.CreateTable(0, 9)
	t.RawSetString("name", lua.LString(ev.Name()))
	t.RawSetString("type", lua.LString(ev.Type().String()))
	t.RawSetString("source", lua.LString(ev.Source().String()))
	t.RawSetString("number", lua.LNumber(ev.Number()))
	t.RawSetString("id", lua.LString(ev.ID()))
	t.RawSetString("pair_id", lua.LString(ev.PairID()))
	t.RawSetString("response_pair_id", lua.LString(ev.ResponsePairID()))
	t.RawSetString("timestamp", lua.LNumber(ev.TimestampMillis()))
	t.RawSetString("data", dataToTable(L, ev.Data()))
	return t
}

// fromLua converts a Lua value into a variant. Integral numbers become the
// narrowest integer kind. Tables with keys 1..n become vectors, any other
// table a map. Functions, userdata and cyclic tables are rejected.
func fromLua(lv lua.LValue) (variant.Variant, error) {
	return fromLuaVisited(lv, make(map[*lua.LTable]bool))
}

func fromLuaVisited(lv lua.LValue, visited map[*lua.LTable]bool) (variant.Variant, error) {
	switch v := lv.(type) {
	case nil, *lua.LNilType:
		return variant.Null(), nil
	case lua.LBool:
		return variant.Bool(bool(v)), nil
	case lua.LString:
		return variant.String(string(v)), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return variant.FromAny(int(f))
		}
		return variant.Double(f), nil
	case *lua.LTable:
		if visited[v] {
			return variant.Variant{}, fmt.Errorf("cyclic table")
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToVariant(v, visited)
	}
	return variant.Variant{}, fmt.Errorf("unsupported lua type %s", lv.Type())
}

func tableToVariant(t *lua.LTable, visited map[*lua.LTable]bool) (variant.Variant, error) {
	if n := arrayLen(t); n > 0 {
		items := make([]variant.Variant, n)
		for i := 1; i <= n; i++ {
			item, err := fromLuaVisited(t.RawGetInt(i), visited)
			if err != nil {
				return variant.Variant{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i-1] = item
		}
		return variant.Vector(items...), nil
	}

	m := make(map[string]variant.Variant)
	var firstErr error
	t.ForEach(func(k, v lua.LValue) {
		if firstErr != nil {
			return
		}
		key := tableKey(k)
		item, err := fromLuaVisited(v, visited)
		if err != nil {
			firstErr = fmt.Errorf("key %q: %w", key, err)
			return
		}
		m[key] = item
	})
	if firstErr != nil {
		return variant.Variant{}, firstErr
	}
	return variant.Map(m), nil
}

// arrayLen returns n when the table's keys are exactly 1..n, else 0.
func arrayLen(t *lua.LTable) int {
	count, maxN := 0, 0
	isArray := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		n, ok := k.(lua.LNumber)
		if !ok || float64(n) != math.Trunc(float64(n)) || n < 1 {
			isArray = false
			return
		}
		if int(n) > maxN {
			maxN = int(n)
		}
	})
	if !isArray || count != maxN {
		return 0
	}
	return maxN
}

func tableKey(k lua.LValue) string {
	switch kv := k.(type) {
	case lua.LString:
		return string(kv)
	case lua.LNumber:
		return strconv.FormatFloat(float64(kv), 'f', -1, 64)
	}
	return k.String()
}

// tableToData converts a Lua table into event data. Nil yields nil.
func tableToData(lv lua.LValue) (*variant.EventData, error) {
	if lv == lua.LNil {
		return nil, nil
	}
	t, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("expected table, got %s", lv.Type())
	}
	if t.Len() > 0 && arrayLen(t) > 0 {
		return nil, fmt.Errorf("expected a table with string keys, got an array")
	}
	v, err := fromLua(t)
	if err != nil {
		return nil, err
	}
	m, _ := v.AsMap()
	return variant.FromVariants(m), nil
}
