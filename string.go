// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"hash/maphash"

	"lua51.dev/runtime/internal/luagc"
)

// String is a heap-allocated, immutable, hash-cached Lua string (spec
// §4.4.1). Equal content always shares one *String per GlobalState via
// interning, so string equality for short strings degrades to pointer
// comparison almost everywhere except across GlobalStates.
type String struct {
	hdr  luagc.Header
	s    string
	hash uint64
}

func (s *String) GCHeader() *luagc.Header         { return &s.hdr }
func (s *String) Trace(mark func(luagc.Object)) {} // strings hold no references

// stringTable interns strings for one GlobalState. Entries are held by
// a weak reference in spirit: the map is consulted and repopulated on
// insert, but forget removes entries whose *String has been collected
// so the table cannot keep every ever-seen string alive forever (spec
// §4.4.1 "weak-ref / sweep-removes-dead").
type stringTable struct {
	seed    maphash.Seed
	entries map[string]*String
}

func newStringTable() *stringTable {
	return &stringTable{seed: maphash.MakeSeed(), entries: make(map[string]*String)}
}

func (t *stringTable) hash(s string) uint64 {
	var h maphash.Hash
	h.SetSeed(t.seed)
	h.WriteString(s)
	return h.Sum64()
}

// intern returns the canonical *String for s, allocating and
// registering a new one with heap if this is the first time s has been
// seen.
func (t *stringTable) intern(heap *luagc.Heap, s string) *String {
	if existing, ok := t.entries[s]; ok {
		return existing
	}
	str := &String{s: s, hash: t.hash(s)}
	heap.Register(str, luagc.KindString, uintptr(len(s))+32)
	t.entries[s] = str
	return str
}

// forget drops freed's intern entry, called from the collector's sweep
// hook for every object it frees. Since Go itself still owns a *String's
// memory until every Go-level reference is gone, this only prevents the
// intern table from masking the luagc collector's liveness accounting,
// matching spec's "sweep removes dead entries" contract for a simulated
// (not physically moving) collector.
func (t *stringTable) forget(freed *String) {
	if t.entries[freed.s] == freed {
		delete(t.entries, freed.s)
	}
}

// NewString interns s against g's string table, registering it with the
// collector if new.
func (g *GlobalState) NewString(s string) Value {
	str := g.strings.intern(g.heap, s)
	return Value{kind: KindString, obj: str}
}
