// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"math"

	"lua51.dev/runtime/internal/luagc"
)

// tableKey is a hashable Go value standing in for a Value used as a
// table key: strings/numbers/booleans compare by value, everything else
// (table, function, userdata, thread) by the *Value.obj pointer, which
// Go's map equality already handles natively since those are pointer
// types. nil and NaN keys are rejected by the caller (spec §3 "Table").
type tableKey struct {
	kind ValueKind
	n    float64
	s    string
	obj  interface{}
}

func toTableKey(v Value) tableKey {
	switch v.kind {
	case KindNumber:
		return tableKey{kind: KindNumber, n: v.n}
	case KindString:
		return tableKey{kind: KindString, s: v.obj.(*String).s}
	case KindBoolean:
		return tableKey{kind: KindBoolean, n: boolToFloat(v.b)}
	default:
		return tableKey{kind: v.kind, obj: v.obj}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Table is Lua's one structured data type: a hybrid array+hash map with
// an optional metatable (spec §3 "Table", §4.4.2).
type Table struct {
	hdr luagc.Header

	array     []Value // 1-based logical indices 1..len(array)
	hash      map[tableKey]Value
	keyOrder  []tableKey // insertion order, for a stable (if not identical-to-reference) next()
	metatable *Table
}

func (t *Table) GCHeader() *luagc.Header { return &t.hdr }

func (t *Table) Trace(mark func(luagc.Object)) {
	for _, v := range t.array {
		if o := v.heapObject(); o != nil {
			mark(o)
		}
	}
	for _, v := range t.hash {
		if o := v.heapObject(); o != nil {
			mark(o)
		}
	}
	if t.metatable != nil {
		mark(t.metatable)
	}
}

func newTable(heap *luagc.Heap) *Table {
	tb := &Table{hash: make(map[tableKey]Value)}
	heap.Register(tb, luagc.KindTable, 64)
	return tb
}

// NewTable allocates an empty table registered against g's heap.
func (g *GlobalState) NewTable() *Table { return newTable(g.heap) }

// rawGet implements spec §4.4.2's raw_get: no metamethod dispatch.
func (t *Table) rawGet(key Value) Value {
	if key.kind == KindNumber {
		if i := int(key.n); float64(i) == key.n && i >= 1 && i <= len(t.array) {
			return t.array[i-1]
		}
	}
	if t.hash == nil {
		return Nil
	}
	v, ok := t.hash[toTableKey(key)]
	if !ok {
		return Nil
	}
	return v
}

func (t *Table) rawGetString(s string) Value {
	if t.hash == nil {
		return Nil
	}
	v, ok := t.hash[tableKey{kind: KindString, s: s}]
	if !ok {
		return Nil
	}
	return v
}

// rawSet implements spec §4.4.2's raw_set: storing nil removes the key,
// integer keys just past the array part extend it (promoting from the
// hash part losslessly, per spec §8's boundary law), everything else
// lives in the hash part.
func (t *Table) rawSet(key, val Value) error {
	if key.kind == KindNil {
		return ErrType
	}
	if key.kind == KindNumber && math.IsNaN(key.n) {
		return ErrType
	}
	if key.kind == KindNumber {
		if i := int(key.n); float64(i) == key.n && i >= 1 {
			switch {
			case i <= len(t.array):
				t.array[i-1] = val
				if val.IsNil() && i == len(t.array) {
					t.shrinkArray()
				}
				return nil
			case i == len(t.array)+1 && !val.IsNil():
				t.array = append(t.array, val)
				t.absorbFromHash()
				return nil
			}
		}
	}
	k := toTableKey(key)
	if val.IsNil() {
		if _, ok := t.hash[k]; ok {
			delete(t.hash, k)
			t.removeKeyOrder(k)
		}
		return nil
	}
	if t.hash == nil {
		t.hash = make(map[tableKey]Value)
	}
	if _, exists := t.hash[k]; !exists {
		t.keyOrder = append(t.keyOrder, k)
	}
	t.hash[k] = val
	return nil
}

func (t *Table) removeKeyOrder(k tableKey) {
	for i, o := range t.keyOrder {
		if o == k {
			t.keyOrder = append(t.keyOrder[:i], t.keyOrder[i+1:]...)
			return
		}
	}
}

// shrinkArray trims trailing nils off the array part after a deletion at
// its tail, keeping Length's fast path exact for the common case.
func (t *Table) shrinkArray() {
	for len(t.array) > 0 && t.array[len(t.array)-1].IsNil() {
		t.array = t.array[:len(t.array)-1]
	}
}

// absorbFromHash pulls any now-contiguous integer keys out of the hash
// part and into the array part after an append, matching the reference
// implementation's rehash-on-boundary-growth behavior (spec §8 "integer
// key past array boundary promotes and rehashes losslessly").
func (t *Table) absorbFromHash() {
	for {
		next := float64(len(t.array) + 1)
		k := tableKey{kind: KindNumber, n: next}
		v, ok := t.hash[k]
		if !ok {
			return
		}
		delete(t.hash, k)
		t.removeKeyOrder(k)
		t.array = append(t.array, v)
	}
}

// Length implements spec §4.4.2 / §8's "#t boundary law": any n such
// that t[n] ~= nil and t[n+1] == nil, or 0 if t[1] == nil. The array
// part (with trailing nils trimmed by rawSet) already satisfies this
// directly; a table with holes only in its hash part still returns a
// valid (if not unique) border.
func (t *Table) Length() int {
	n := len(t.array)
	if n > 0 && t.array[n-1].IsNil() {
		// binary search for a border within the array part
		lo, hi := 0, n
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if t.array[mid-1].IsNil() {
				hi = mid
			} else {
				lo = mid
			}
		}
		return lo
	}
	// Array part is full (or empty); probe the hash part for a
	// continuation, per Lua's "any border is acceptable" rule.
	for {
		k := tableKey{kind: KindNumber, n: float64(n + 1)}
		if v, ok := t.hash[k]; ok && !v.IsNil() {
			n++
			continue
		}
		return n
	}
}

// Next implements spec §4.4.2's next(): given the key from a previous
// call (or nil to start), returns the following key/value pair, or
// (nil, nil, true) when iteration is exhausted.
func (t *Table) Next(key Value) (nk, nv Value, done bool, err error) {
	if key.IsNil() {
		if nk, nv, _, ok := t.firstArrayFrom(0); ok {
			return nk, nv, false, nil
		}
		return t.firstHashFrom(0)
	}
	if key.kind == KindNumber {
		if i := int(key.n); float64(i) == key.n && i >= 1 && i <= len(t.array) {
			if nk, nv, done, ok := t.firstArrayFrom(i); ok || !done {
				return nk, nv, done, nil
			}
			return t.firstHashFrom(0)
		}
	}
	k := toTableKey(key)
	for idx, o := range t.keyOrder {
		if o == k {
			return t.firstHashFrom(idx + 1)
		}
	}
	return Nil, Nil, false, ErrType
}

func (t *Table) firstArrayFrom(i int) (Value, Value, bool, bool) {
	for ; i < len(t.array); i++ {
		if !t.array[i].IsNil() {
			return NumberValue(float64(i + 1)), t.array[i], false, true
		}
	}
	return Nil, Nil, true, false
}

func (t *Table) firstHashFrom(idx int) (Value, Value, bool, error) {
	for i := idx; i < len(t.keyOrder); i++ {
		k := t.keyOrder[i]
		v := t.hash[k]
		if v.IsNil() {
			continue
		}
		return keyFromTableKey(k), v, false, nil
	}
	return Nil, Nil, true, nil
}

func keyFromTableKey(k tableKey) Value {
	switch k.kind {
	case KindNumber:
		return NumberValue(k.n)
	case KindString:
		return StringValue(k.s)
	case KindBoolean:
		return BoolValue(k.n != 0)
	default:
		switch o := k.obj.(type) {
		case *Table:
			return tableValue(o)
		case *Closure:
			return functionValue(o)
		case *Userdata:
			return userdataValue(o)
		case *Thread:
			return threadValue(o)
		default:
			return Nil
		}
	}
}

// Metatable returns t's metatable, or nil.
func (t *Table) Metatable() *Table { return t.metatable }

// SetMetatable installs mt (which may be nil to clear) as t's
// metatable. If mt defines __gc, t enters the collector's finalize
// pass (spec §4.3 Phase 5) the moment it becomes unreachable.
func (t *Table) SetMetatable(mt *Table) {
	t.metatable = mt
	markFinalizableIfNeeded(t, mt)
}
