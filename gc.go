// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"

	"lua51.dev/runtime/internal/luagc"
	"zombiezen.com/go/log"
)

// gcObject is the subset of luagc.Object every heap-allocated Lua value
// implements; kept as a local alias so the rest of this package doesn't
// need to import internal/luagc directly.
type gcObject = luagc.Object

// collectStep asks the collector to do roughly one unit of incremental
// work. The VM calls it before each instruction it executes, its only
// safepoint.
func (g *GlobalState) collectStep(ctx context.Context) {
	g.gc.Step(ctx)
}

// CollectGarbage runs a full GC cycle to completion, the implementation
// behind the collectgarbage("collect") library call.
func (g *GlobalState) CollectGarbage(ctx context.Context) {
	g.gc.FullGC(ctx)
}

// GCStats reports collector counters for host diagnostics, the
// original_source/ supplement SPEC_FULL.md calls for.
func (g *GlobalState) GCStats() luagc.Stats {
	return g.gc.Stats()
}

// gcRoots is the luagc.RootFunc supplied to luagc.NewCollector: every
// live root named by spec §4.3 ("Roots").
func (g *GlobalState) gcRoots(mark func(luagc.Object)) {
	if g.registry != nil {
		mark(g.registry)
	}
	if g.globals != nil {
		mark(g.globals)
	}
	if !g.pendingError.IsNil() {
		if o := g.pendingError.heapObject(); o != nil {
			mark(o)
		}
	}
	for th := range g.threads {
		mark(th)
	}
	for _, v := range g.pinned {
		if o := v.heapObject(); o != nil {
			mark(o)
		}
	}
}

// gcSweep is the luagc.Collector's onSweep hook: it runs for every
// object the sweep phase frees, finalizable or not, and is where the
// string intern table drops its entry for a freed *String.
func (g *GlobalState) gcSweep(obj luagc.Object) {
	if s, ok := obj.(*String); ok {
		g.strings.forget(s)
	}
}

// markFinalizableIfNeeded flags obj as needing the collector's finalize
// pass (spec §4.3 Phase 5) if mt defines __gc. Called from (*Table) and
// (*Userdata)'s SetMetatable, the only two object kinds spec §9 requires
// finalizers for.
func markFinalizableIfNeeded(obj gcObject, mt *Table) {
	if mt == nil {
		return
	}
	if !mt.rawGetString("__gc").IsNil() {
		luagc.MarkFinalizable(obj)
	}
}

// gcFinalize is the luagc.Collector's onFinalize hook: it runs a garbage
// object's __gc metamethod, if it has one, during the Finalize phase.
func (g *GlobalState) gcFinalize(obj luagc.Object) {
	var mt *Table
	switch o := obj.(type) {
	case *Table:
		mt = o.metatable
	case *Userdata:
		mt = o.metatable
	default:
		return
	}
	if mt == nil {
		return
	}
	gcField := mt.rawGetString("__gc")
	if gcField.IsNil() || !gcField.IsFunction() {
		return
	}
	var v Value
	switch o := obj.(type) {
	case *Table:
		v = tableValue(o)
	case *Userdata:
		v = userdataValue(o)
	}
	th := g.mainThread
	if _, err := g.Call(context.Background(), th, functionValue(gcField.AsFunction()), []Value{v}, 0); err != nil {
		log.Errorf(context.Background(), "error in __gc: %v", err)
	}
}
