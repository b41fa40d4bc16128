package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// Values maps physical columns to the values written to them.
type Values map[string]any

// Dehydrate converts logical attribute values into column values using the
// mapping's write columns. JSON attributes are encoded to text and booleans
// become 1/0 flags; everything else passes through.
func (m *Mapping) Dehydrate(data map[string]any) (Values, error) {
	out := make(Values, len(data))
	for name, v := range data {
		col, ok := m.WriteColumn(name)
		if !ok {
			return nil, storeerr.UnknownField(m.entity, "write", name)
		}
		a, _ := m.Attribute(name)
		if a.JSON && v != nil {
			enc, err := encodeJSON(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.entity, name, err)
			}
			v = enc
		}
		if b, ok := v.(bool); ok {
			v = 0
			if b {
				v = 1
			}
		}
		out[col] = v
	}
	return out, nil
}

func encodeJSON(v any) (any, error) {
	switch t := v.(type) {
	case string:
		if !json.Valid([]byte(t)) {
			return nil, storeerr.InvalidFormat("json", "not a JSON document")
		}
		return t, nil
	case []byte:
		if !json.Valid(t) {
			return nil, storeerr.InvalidFormat("json", "not a JSON document")
		}
		return string(t), nil
	case json.RawMessage:
		return string(t), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, storeerr.InvalidFormat("json", "%s", err.Error())
	}
	return string(b), nil
}

// Diff returns the entries of incoming whose value differs from the column
// currently stored in row. Columns missing from the row always count as
// changed.
func Diff(row db.Row, incoming Values) Values {
	out := make(Values)
	for col, next := range incoming {
		cur, ok := row.Get(col)
		if !ok || !Equal(cur, next) {
			out[col] = next
		}
	}
	return out
}

// Equal compares a stored value with an incoming one after normalizing
// driver representations: bytes and strings, integer widths, booleans and
// 0/1 flags, instants in different zones, and JSON documents.
func Equal(stored, incoming any) bool {
	if stored == nil || incoming == nil {
		return stored == nil && incoming == nil
	}

	if ts, ok := stored.(time.Time); ok {
		ti, err := toTime(incoming)
		return err == nil && ts.Equal(ti)
	}
	if ti, ok := incoming.(time.Time); ok {
		ts, err := toTime(stored)
		return err == nil && ts.Equal(ti)
	}

	if ns, ok := number(stored); ok {
		if ni, ok := number(incoming); ok {
			return ns.equal(ni)
		}
	}

	if js, ok := jsonDoc(stored); ok {
		if ji, ok := jsonDoc(incoming); ok {
			return reflect.DeepEqual(js, ji)
		}
	}

	ss, err1 := toString(stored)
	si, err2 := toString(incoming)
	if err1 == nil && err2 == nil {
		return ss == si
	}
	return reflect.DeepEqual(stored, incoming)
}

// numeric holds a number in its widest exact form. Integers that fit int64
// use i; larger unsigned values use u; floats use f.
type numeric struct {
	kind numKind
	i    int64
	u    uint64
	f    float64
}

type numKind int

const (
	numInt numKind = iota
	numUint
	numFloat
)

func (n numeric) float() float64 {
	switch n.kind {
	case numInt:
		return float64(n.i)
	case numUint:
		return float64(n.u)
	}
	return n.f
}

// equal compares integers exactly and falls back to float64 only when one
// side is a float.
func (n numeric) equal(o numeric) bool {
	switch {
	case n.kind == numFloat || o.kind == numFloat:
		return n.float() == o.float()
	case n.kind == numInt && o.kind == numInt:
		return n.i == o.i
	case n.kind == numUint && o.kind == numUint:
		return n.u == o.u
	}
	// One side exceeds math.MaxInt64, the other fits in it.
	return false
}

func signed(i int64) (numeric, bool) { return numeric{kind: numInt, i: i}, true }

func unsigned(u uint64) (numeric, bool) {
	if u <= math.MaxInt64 {
		return numeric{kind: numInt, i: int64(u)}, true
	}
	return numeric{kind: numUint, u: u}, true
}

func number(v any) (numeric, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return signed(1)
		}
		return signed(0)
	case int:
		return signed(int64(t))
	case int8:
		return signed(int64(t))
	case int16:
		return signed(int64(t))
	case int32:
		return signed(int64(t))
	case int64:
		return signed(t)
	case uint:
		return unsigned(uint64(t))
	case uint8:
		return unsigned(uint64(t))
	case uint16:
		return unsigned(uint64(t))
	case uint32:
		return unsigned(uint64(t))
	case uint64:
		return unsigned(t)
	case float32:
		return numeric{kind: numFloat, f: float64(t)}, true
	case float64:
		return numeric{kind: numFloat, f: t}, true
	}
	return numeric{}, false
}

// jsonDoc decodes v when it is a JSON object or array, in text or decoded form.
func jsonDoc(v any) (any, bool) {
	var data []byte
	switch t := v.(type) {
	case string:
		data = []byte(t)
	case []byte:
		data = t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, false
		}
		data = b
	default:
		return nil, false
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}
