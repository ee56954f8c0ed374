// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"

	"lua51.dev/runtime/internal/luacode"
	"lua51.dev/runtime/internal/luagc"
)

// GoFunction is a host function registered into Lua (spec §6's
// "host-function-registration adapter"). The reference adapter passes
// (Thread, arg_count) over a shared stack window; Go's slice types let
// us express the same contract more directly as args in, results out,
// without losing the "adapter, not a different calling convention"
// property — VM-side CALL dispatch still goes through one uniform path
// for both Lua and host closures (see (*Thread).call in vm.go).
type GoFunction func(ctx context.Context, th *Thread, args []Value) ([]Value, error)

// Closure is spec §4.4.3's runtime function value: either a Lua closure
// (a Prototype plus its captured upvalues) or a host closure (a
// GoFunction plus, optionally, its own upvalues for closures created by
// host code).
type Closure struct {
	hdr luagc.Header

	proto    *luacode.Prototype // nil for host closures
	goFn     GoFunction         // nil for Lua closures
	name     string             // diagnostic name, e.g. for tracebacks
	upvalues []*Upvalue
}

func (c *Closure) GCHeader() *luagc.Header { return &c.hdr }

func (c *Closure) Trace(mark func(luagc.Object)) {
	for _, uv := range c.upvalues {
		if uv != nil {
			mark(uv)
		}
	}
}

// IsGo reports whether c wraps a host function rather than a Prototype.
func (c *Closure) IsGo() bool { return c.goFn != nil }

// newLuaClosure allocates a closure over proto with one empty upvalue slot
// per entry of proto.Upvalues, filled in by CLOSURE's instantiation logic
// in vm.go.
func newLuaClosure(heap *luagc.Heap, proto *luacode.Prototype) *Closure {
	c := &Closure{proto: proto, upvalues: make([]*Upvalue, len(proto.Upvalues))}
	heap.Register(c, luagc.KindClosure, 64)
	return c
}

// NewGoClosure wraps fn as a callable Lua value named name (used in
// error messages and tracebacks).
func (g *GlobalState) NewGoClosure(name string, fn GoFunction) Value {
	c := &Closure{goFn: fn, name: name}
	g.heap.Register(c, luagc.KindClosure, 32)
	return functionValue(c)
}
