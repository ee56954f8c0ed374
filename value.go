// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind is the tag of the [Value] union (spec §3 "Value").
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBoolean
	KindNumber
	KindString
	KindTable
	KindFunction
	KindUserdata
	KindThread
)

func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindUserdata:
		return "userdata"
	case KindThread:
		return "thread"
	default:
		return "unknown"
	}
}

// Value is the single tagged union every Lua datum is stored as (spec
// §3). It is small and comparable-by-identity only for heap kinds; use
// [Value.RawEqual] for Lua's raw equality rule.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	obj  interface{}
}

// Nil is the Lua nil value.
var Nil = Value{kind: KindNil}

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: KindBoolean, b: b} }

// NumberValue wraps a float64, Lua 5.1's one numeric subtype.
func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }

// StringValue interns s and returns it as a Value. Use
// (*GlobalState).NewString when a GlobalState is available so the string
// participates in that state's intern table and heap accounting;
// StringValue is for building Values before one exists (e.g. error
// sentinels) and is not garbage collected.
func StringValue(s string) Value { return Value{kind: KindString, obj: &String{s: s}} }

func tableValue(t *Table) Value       { return Value{kind: KindTable, obj: t} }
func functionValue(c *Closure) Value  { return Value{kind: KindFunction, obj: c} }
func userdataValue(u *Userdata) Value { return Value{kind: KindUserdata, obj: u} }
func threadValue(t *Thread) Value     { return Value{kind: KindThread, obj: t} }

// Kind reports the value's type tag.
func (v Value) Kind() ValueKind { return v.kind }

// TypeName returns Lua's type() string for v.
func (v Value) TypeName() string { return v.kind.String() }

func (v Value) IsNil() bool      { return v.kind == KindNil }
func (v Value) IsBoolean() bool  { return v.kind == KindBoolean }
func (v Value) IsNumber() bool   { return v.kind == KindNumber }
func (v Value) IsString() bool   { return v.kind == KindString }
func (v Value) IsTable() bool    { return v.kind == KindTable }
func (v Value) IsFunction() bool { return v.kind == KindFunction }
func (v Value) IsUserdata() bool { return v.kind == KindUserdata }
func (v Value) IsThread() bool   { return v.kind == KindThread }

// Truthy implements Lua's rule that everything except nil and false is
// true (spec §4.1).
func (v Value) Truthy() bool {
	return v.kind != KindNil && !(v.kind == KindBoolean && !v.b)
}

func (v Value) AsBool() bool { return v.b }
func (v Value) AsNumber() float64 { return v.n }

func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.obj.(*String).s
}

func (v Value) AsTable() *Table {
	if v.kind != KindTable {
		return nil
	}
	return v.obj.(*Table)
}

func (v Value) AsFunction() *Closure {
	if v.kind != KindFunction {
		return nil
	}
	return v.obj.(*Closure)
}

func (v Value) AsUserdata() *Userdata {
	if v.kind != KindUserdata {
		return nil
	}
	return v.obj.(*Userdata)
}

func (v Value) AsThread() *Thread {
	if v.kind != KindThread {
		return nil
	}
	return v.obj.(*Thread)
}

// heapObject returns the underlying heap object for GC tracing, or nil
// for non-heap kinds (nil, boolean, number).
func (v Value) heapObject() gcObject {
	switch o := v.obj.(type) {
	case *String:
		return o
	case *Table:
		return o
	case *Closure:
		return o
	case *Userdata:
		return o
	case *Thread:
		return o
	default:
		return nil
	}
}

// RawEqual implements spec §4.1's raw_equal: no metamethod dispatch,
// numbers compare by value, strings by content, everything else by
// identity.
func (v Value) RawEqual(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBoolean:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.obj.(*String).s == other.obj.(*String).s
	default:
		return v.obj == other.obj
	}
}

// ToNumber implements Lua's coercion for arithmetic contexts: numbers
// pass through, strings are parsed per Lua's numeral grammar (decimal or
// 0x-hex), anything else fails (spec §4.1 "to_number").
func (v Value) ToNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindString:
		return parseNumber(strings.TrimSpace(v.obj.(*String).s))
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	rest := s
	if rest[0] == '-' || rest[0] == '+' {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	if strings.HasPrefix(rest, "0x") || strings.HasPrefix(rest, "0X") {
		u, err := strconv.ParseUint(rest[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		n := float64(u)
		if neg {
			n = -n
		}
		return n, true
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ToString implements spec §4.1's to_string: strings pass through,
// numbers format with Lua's "%.14g", booleans/nil produce their keyword,
// everything else is unconvertible here (table/function/etc. go through
// __tostring or a fixed "type: %p" form at a higher layer).
func (v Value) ToString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.obj.(*String).s, true
	case KindNumber:
		return formatNumber(v.n), true
	case KindBoolean:
		if v.b {
			return "true", true
		}
		return "false", true
	case KindNil:
		return "nil", true
	default:
		return "", false
	}
}

// formatNumber renders n the way the reference implementation's
// LUAI_NUMFMT ("%.14g") does, collapsing whole-valued floats to look
// integral (e.g. "3" rather than "3.0") but never losing precision.
func formatNumber(n float64) string {
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	if math.IsNaN(n) {
		return "nan"
	}
	return strconv.FormatFloat(n, 'g', 14, 64)
}

// Display renders v the way print()/tostring() without a __tostring
// metamethod would, for heap kinds that ToString declines.
func (v Value) Display() string {
	if s, ok := v.ToString(); ok {
		return s
	}
	switch v.kind {
	case KindTable:
		return fmt.Sprintf("table: %p", v.obj.(*Table))
	case KindFunction:
		return fmt.Sprintf("function: %p", v.obj.(*Closure))
	case KindUserdata:
		return fmt.Sprintf("userdata: %p", v.obj.(*Userdata))
	case KindThread:
		return fmt.Sprintf("thread: %p", v.obj.(*Thread))
	default:
		return "?"
	}
}

// SameType reports whether v and other share a ValueKind, the
// precondition spec §4.1 places on raw_equal-backed __eq dispatch for
// tables and userdata.
func (v Value) SameType(other Value) bool { return v.kind == other.kind }
