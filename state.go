// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"

	"github.com/google/uuid"
	"lua51.dev/runtime/internal/luacode"
	"lua51.dev/runtime/internal/luagc"
	"lua51.dev/runtime/sets"
)

// Options configures a [GlobalState], following this codebase's
// Options-struct-plus-fillDefaults convention for optional
// configuration.
type Options struct {
	// PauseRatio is the GC's next-cycle threshold multiplier (spec
	// §4.3); zero selects the collector's own default (200%).
	PauseRatio float64
	// GCStepMultiplier bounds incremental mark work per safepoint; zero
	// selects the collector's own default.
	GCStepMultiplier int
}

func (o Options) fillDefaults() Options { return o }

// GlobalState is spec §3/§4.5's GlobalState: the string intern table,
// the global table (_G), the registry, the all-objects list (via the
// heap), the collector, and the set of live threads sharing all of the
// above. One GlobalState is a complete, independent Lua universe; hosts
// that want concurrent independent interpreters create one GlobalState
// per goroutine (see cmd/lua51's batch mode, which joins several with
// errgroup).
type GlobalState struct {
	heap    *luagc.Heap
	gc      *luagc.Collector
	strings *stringTable

	registry *Table
	globals  *Table

	mainThread *Thread
	threads    sets.Set[*Thread]

	// pinned holds host-registered values that must survive GC
	// regardless of Lua-side reachability (spec §4.3 Roots: "registry-
	// pinned host refs").
	pinned []Value

	pendingError Value
	opts         Options
}

// NewGlobalState creates a fresh interpreter universe with an empty
// globals table and a running main thread.
func NewGlobalState(opts Options) *GlobalState {
	opts = opts.fillDefaults()
	g := &GlobalState{
		strings: newStringTable(),
		threads: make(sets.Set[*Thread]),
		opts:    opts,
	}
	g.heap = luagc.NewHeap()
	g.gc = luagc.NewCollector(g.heap, g.gcRoots, g.gcFinalize, g.gcSweep, luagc.Options{
		PauseRatio:     opts.PauseRatio,
		StepMultiplier: opts.GCStepMultiplier,
	})
	g.registry = newTable(g.heap)
	g.globals = newTable(g.heap)
	g.mainThread = g.newThread()
	g.mainThread.status = ThreadRunning
	return g
}

// Globals returns _G, the global variables table.
func (g *GlobalState) Globals() *Table { return g.globals }

// Registry returns the registry table, a place for host code to stash
// values outside of Lua's own namespaces (spec §6).
func (g *GlobalState) Registry() *Table { return g.registry }

// MainThread returns the state's main thread.
func (g *GlobalState) MainThread() *Thread { return g.mainThread }

// Pin keeps v alive across GC regardless of Lua-side reachability, for
// the lifetime of g; there is no way to unpin a value.
func (g *GlobalState) Pin(v Value) { g.pinned = append(g.pinned, v) }

func (g *GlobalState) newThread() *Thread {
	th := &Thread{
		g:      g,
		id:     uuid.NewString(),
		status: ThreadSuspended,
	}
	g.heap.Register(th, luagc.KindThread, 256)
	g.threads.Add(th)
	return th
}

// NewThread creates a new coroutine sharing g, initially suspended.
func (g *GlobalState) NewThread() *Thread {
	th := g.newThread()
	th.resumeCh = make(chan []Value)
	th.yieldCh = make(chan coroutineSignal)
	return th
}

// SetGlobal assigns _G[name] = v.
func (g *GlobalState) SetGlobal(name string, v Value) {
	g.globals.rawSet(g.NewString(name), v)
}

// GetGlobal reads _G[name].
func (g *GlobalState) GetGlobal(name string) Value {
	return g.globals.rawGetString(name)
}

// Load compiles source into a top-level closure over g's main thread,
// the implementation behind do_string (spec §6 "do_string").
func (g *GlobalState) Load(ctx context.Context, source []byte, chunkName string) (Value, error) {
	proto, err := luacode.Compile(chunkName, source)
	if err != nil {
		e := newRuntimeError("", "%v", err)
		e.wrap = ErrSyntax
		return Nil, e
	}
	c := newLuaClosure(g.heap, proto)
	return functionValue(c), nil
}

// DoString compiles and immediately calls source as a top-level chunk
// (called with no arguments) on the main thread, returning its results.
func (g *GlobalState) DoString(ctx context.Context, source []byte, chunkName string) ([]Value, error) {
	fn, err := g.Load(ctx, source, chunkName)
	if err != nil {
		return nil, err
	}
	return g.Call(ctx, g.mainThread, fn, nil, luacode.MultiReturn)
}
