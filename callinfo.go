// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import "lua51.dev/runtime/internal/luacode"

// callInfo is one activation record in a Thread's call stack (spec
// §4.5 / glossary "CallInfo"): the function running, its register
// window's base, the saved program counter, how many results its
// caller wants back, and where its vararg arguments (if any) live.
type callInfo struct {
	fn       *Closure
	base     int // stack index of register 0 for this call
	pc       int
	nresults int // CALL's C-1; MultiReturn means "as many as produced"
	varargs  []Value

	// top tracks the register one past the last value produced by the
	// most recent "open" (B=0/C=0) CALL or VARARG, the same role the
	// reference implementation's L->top plays: a later instruction
	// encoding "as many values as are available" (another CALL's B=0,
	// RETURN's B=0) reads up to here rather than to the full padded
	// register window. SETLIST's B=0 does not use it; it reads to the end
	// of the register window.
	top int

	// tailcall marks a frame that reused its predecessor's callInfo via
	// TAILCALL (spec §4.6 "TAILCALL reuses CallInfo"). It is set but not
	// read anywhere; tracebacks do not distinguish such frames.
	tailcall bool
}

func (ci *callInfo) proto() *luacode.Prototype {
	if ci.fn == nil {
		return nil
	}
	return ci.fn.proto
}
