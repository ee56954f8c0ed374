// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import "lua51.dev/runtime/internal/luagc"

// Upvalue is a shared binding a closure can capture, either still
// pointing at a live stack slot ("open") or holding its own copy after
// the slot went out of scope ("closed") — spec §4.4.3 / §4.7.
type Upvalue struct {
	hdr luagc.Header

	thread *Thread // nil once closed
	stack  int     // index into thread.stack while open
	closed Value

	// next links this upvalue into its owning thread's open-upvalue
	// list, kept sorted by descending stack index so
	// (*Thread).findOrCreateUpvalue and closeUpvaluesAt can both do a
	// single linear walk (spec §9: "must be a single linear walk, not a
	// per-closure table, because sharing is by stack-address identity").
	next *Upvalue
}

func (u *Upvalue) GCHeader() *luagc.Header { return &u.hdr }

func (u *Upvalue) Trace(mark func(luagc.Object)) {
	if u.thread != nil {
		mark(u.thread)
		return
	}
	if o := u.closed.heapObject(); o != nil {
		mark(o)
	}
}

// Get reads the upvalue's current value.
func (u *Upvalue) Get() Value {
	if u.thread != nil {
		return u.thread.stack[u.stack]
	}
	return u.closed
}

// Set writes the upvalue's current value, going through the thread's
// stack slot while open so every closure sharing this upvalue observes
// the write (spec §4.4.3: "get/set contract").
func (u *Upvalue) Set(v Value) {
	if u.thread != nil {
		u.thread.stack[u.stack] = v
		return
	}
	u.closed = v
}

// isOpen reports whether u still aliases a live stack slot.
func (u *Upvalue) isOpen() bool { return u.thread != nil }

// findOrCreateUpvalue implements spec §4.7's algorithm: walk th's
// open-upvalue list (sorted by descending stack index) looking for one
// already pointing at stack, inserting a new node in sorted position if
// none matches. Sharing an existing node rather than minting a new one
// per closure is what makes two closures over the same local see each
// other's writes.
func (th *Thread) findOrCreateUpvalue(stack int) *Upvalue {
	var prev *Upvalue
	cur := th.openUpvalues
	for cur != nil && cur.stack > stack {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.stack == stack {
		return cur
	}
	uv := &Upvalue{thread: th, stack: stack, next: cur}
	th.g.heap.Register(uv, luagc.KindUpvalue, 32)
	if prev == nil {
		th.openUpvalues = uv
	} else {
		prev.next = uv
	}
	return uv
}

// closeUpvaluesAt implements spec §4.7's close_upvalues_at(level):
// every open upvalue at or above the given stack level is snapshotted
// into its own storage and unlinked, so the stack slots it referenced
// can be safely reused or discarded. Invoked on return, block exit
// (CLOSE), and coroutine yield.
func (th *Thread) closeUpvaluesAt(level int) {
	for th.openUpvalues != nil && th.openUpvalues.stack >= level {
		uv := th.openUpvalues
		th.openUpvalues = uv.next
		uv.closed = th.stack[uv.stack]
		uv.thread = nil
		uv.next = nil
	}
}
