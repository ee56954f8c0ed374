// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"strconv"

	"lua51.dev/runtime/internal/luagc"
)

// MaxStack bounds a Thread's value stack (spec §4.5 "MAX_STACK bound");
// exceeding it raises [ErrStackOverflow].
const MaxStack = 1 << 16

// ThreadStatus is a coroutine's lifecycle state (spec §4.8).
type ThreadStatus int

const (
	ThreadRunning ThreadStatus = iota
	ThreadSuspended
	ThreadNormal
	ThreadDead
)

func (s ThreadStatus) String() string {
	switch s {
	case ThreadRunning:
		return "running"
	case ThreadSuspended:
		return "suspended"
	case ThreadNormal:
		return "normal"
	case ThreadDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Thread is spec §3/§4.5's runtime thread: an independent value stack
// and call-info chain sharing one GlobalState with every other thread.
// The main thread and every coroutine are both represented by this same
// type (spec §4.8: "Thread = independent stack+CallInfo chain sharing
// GlobalState").
type Thread struct {
	hdr luagc.Header

	g      *GlobalState
	id     string // diagnostic id, minted from uuid by NewThread
	status ThreadStatus

	stack        []Value
	callStack    []callInfo
	openUpvalues *Upvalue

	// resumer is the thread that last resumed this one, for coroutine
	// status bookkeeping ("normal" = resumed another thread while
	// itself suspended-pending-return) and for reporting errors back to
	// the right party.
	resumer *Thread

	// coroutine scheduling channels; nil for the main thread, which
	// never yields. See coroutine.go.
	resumeCh chan []Value
	yieldCh  chan coroutineSignal
	body     *Closure
	started  bool
}

func (t *Thread) GCHeader() *luagc.Header { return &t.hdr }

func (t *Thread) Trace(mark func(luagc.Object)) {
	for _, v := range t.stack {
		if o := v.heapObject(); o != nil {
			mark(o)
		}
	}
	for i := range t.callStack {
		if t.callStack[i].fn != nil {
			mark(t.callStack[i].fn)
		}
	}
	for uv := t.openUpvalues; uv != nil; uv = uv.next {
		mark(uv)
	}
	if t.resumer != nil {
		mark(t.resumer)
	}
}

// Status reports the thread's current lifecycle state.
func (t *Thread) Status() ThreadStatus { return t.status }

// ID returns the thread's diagnostic identifier.
func (t *Thread) ID() string { return t.id }

func (t *Thread) ensure(n int) error {
	if n > MaxStack {
		return stackOverflowError(t.where())
	}
	for len(t.stack) < n {
		t.stack = append(t.stack, Nil)
	}
	return nil
}

// where formats the current instruction's "<chunkname>:<line>" position
// for error messages (spec §7's user-visible format).
func (t *Thread) where() string {
	if len(t.callStack) == 0 {
		return ""
	}
	ci := &t.callStack[len(t.callStack)-1]
	p := ci.proto()
	if p == nil {
		return "[C]"
	}
	return p.Source + ":" + strconv.Itoa(p.LineForPC(ci.pc))
}
