// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import "lua51.dev/runtime/internal/luagc"

// Userdata is spec §4.4.4's full userdata: heap-allocated host data with
// an optional metatable, environment table, and __gc finalizer. Light
// userdata (a bare host pointer with no metatable) is represented as a
// plain Go value and does not need this type; hosts that need it can
// wrap any comparable Go value in a *Userdata with Data set and no
// metatable.
type Userdata struct {
	hdr luagc.Header

	Data      interface{}
	metatable *Table
	env       *Table
}

func (u *Userdata) GCHeader() *luagc.Header { return &u.hdr }

func (u *Userdata) Trace(mark func(luagc.Object)) {
	if u.metatable != nil {
		mark(u.metatable)
	}
	if u.env != nil {
		mark(u.env)
	}
}

// NewUserdata wraps data as a full userdata value registered against
// g's heap.
func (g *GlobalState) NewUserdata(data interface{}) *Userdata {
	u := &Userdata{Data: data}
	g.heap.Register(u, luagc.KindUserdata, 32)
	return u
}

func (u *Userdata) Metatable() *Table { return u.metatable }

// SetMetatable installs mt (which may be nil to clear) as u's metatable.
// If mt defines __gc, u enters the collector's finalize pass (spec §4.3
// Phase 5) the moment it becomes unreachable.
func (u *Userdata) SetMetatable(mt *Table) {
	u.metatable = mt
	markFinalizableIfNeeded(u, mt)
}
func (u *Userdata) Environment() *Table     { return u.env }
func (u *Userdata) SetEnvironment(t *Table) { u.env = t }
