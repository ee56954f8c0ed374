// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luagc

import (
	"context"

	"zombiezen.com/go/log"
)

// Phase is one state of the tri-color incremental collector (spec §4.3).
type Phase int

const (
	PhasePause Phase = iota
	PhasePropagate
	PhaseAtomic
	PhaseSweep
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhasePause:
		return "pause"
	case PhasePropagate:
		return "propagate"
	case PhaseAtomic:
		return "atomic"
	case PhaseSweep:
		return "sweep"
	case PhaseFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Options configures a [Collector]. Zero value yields the spec defaults.
type Options struct {
	// PauseRatio sets the next GC threshold as BytesInUse * PauseRatio.
	// Defaults to 2.0 (200%), matching spec §4.3.
	PauseRatio float64
	// StepMultiplier bounds how much propagate work one Step does per
	// call, so a single allocation never stalls the VM (spec §4.3).
	StepMultiplier int
}

func (o Options) fillDefaults() Options {
	if o.PauseRatio <= 0 {
		o.PauseRatio = 2.0
	}
	if o.StepMultiplier <= 0 {
		o.StepMultiplier = 64
	}
	return o
}

// Stats is a snapshot of collector counters, exposed to hosts via
// (*lua.GlobalState).GCStats() — the original_source/ supplement spec.md
// calls for in its "original_source/ supplements" note.
type Stats struct {
	Phase          Phase
	Cycles         int
	BytesAllocated uint64
	BytesInUse     uint64
	ObjectsSwept   int
	ObjectsFreed   int
	Finalized      int
}

// RootFunc is called once per GC cycle's atomic phase to mark every root
// object: the registry, _G, every live thread's stack and call-info
// chain, open upvalues, and any host-pinned reference (spec §4.3
// "Roots").
type RootFunc func(mark func(Object))

// Collector implements the mark/sweep bookkeeping described by spec §4.3
// over a [Heap]. It never frees Go memory (Go's own collector does that);
// what it tracks is object liveness, so __gc finalizers run at the right
// time and GCStats reports accurate numbers.
type Collector struct {
	heap    *Heap
	opts    Options
	phase   Phase
	gray    []Object
	roots   RootFunc
	onGC    func(Object) // called for each object entering the "to finalize" set
	onSweep func(Object) // called for every object the sweep actually frees
	stats   Stats
	cycles  int
	toFinal []Object
}

// NewCollector creates a collector over heap. roots is called at the
// start of every cycle's atomic phase; onFinalize, if non-nil, is called
// once per garbage object that requests finalization (__gc), during the
// Finalize phase; onSweep, if non-nil, is called once per object freed
// during the Sweep phase, finalizable or not — the hook the string
// intern table uses to drop entries for strings this cycle collected.
func NewCollector(heap *Heap, roots RootFunc, onFinalize, onSweep func(Object), opts Options) *Collector {
	return &Collector{
		heap:    heap,
		opts:    opts.fillDefaults(),
		phase:   PhasePause,
		roots:   roots,
		onGC:    onFinalize,
		onSweep: onSweep,
	}
}

// ShouldCollect reports whether bytes allocated since the last cycle's
// sweep have crossed the pause-ratio threshold (spec §4.3 "Triggering").
func (c *Collector) ShouldCollect() bool {
	threshold := uint64(float64(c.heap.BytesInUse()-c.heap.BytesAllocated()) * c.opts.PauseRatio)
	if threshold == 0 {
		threshold = 1 << 16
	}
	return c.heap.BytesAllocated() >= threshold
}

// Mark pushes obj onto the gray stack if it is currently white, the
// shared primitive behind root marking, Trace callbacks, and the forward
// write barrier.
func (c *Collector) Mark(obj Object) {
	if obj == nil {
		return
	}
	hdr := obj.GCHeader()
	if hdr.color == Gray || hdr.color == Black {
		return
	}
	hdr.color = Gray
	c.gray = append(c.gray, obj)
}

// BarrierForward implements spec §4.3's forward write barrier: when a
// black object is mutated to reference a white object, mark the white
// child gray immediately. Used by tables and upvalues, whose mutation
// sites are small and well-known.
func (c *Collector) BarrierForward(parent, child Object) {
	if parent == nil || child == nil {
		return
	}
	if parent.GCHeader().color != Black {
		return
	}
	if child.GCHeader().color == Black || child.GCHeader().color == Gray {
		return
	}
	c.Mark(child)
}

// BarrierBackward implements spec §4.3's backward write barrier: revert
// the black parent to gray so it gets re-scanned later, instead of
// chasing every child individually. Used for the globals table and other
// containers with bulk mutation.
func (c *Collector) BarrierBackward(parent Object) {
	if parent == nil {
		return
	}
	hdr := parent.GCHeader()
	if hdr.color == Black {
		hdr.color = Gray
		c.gray = append(c.gray, parent)
	}
}

// Step advances the collector by roughly one unit of work, returning once
// that unit is spent or a phase boundary is crossed. The VM calls Step
// once before each instruction it executes, so collection never runs
// while an instruction is partly done.
func (c *Collector) Step(ctx context.Context) {
	switch c.phase {
	case PhasePause:
		if !c.ShouldCollect() {
			return
		}
		c.startCycle(ctx)
	case PhasePropagate:
		c.propagateStep(ctx)
	case PhaseAtomic:
		c.atomic(ctx)
	case PhaseSweep:
		c.sweepStep(ctx)
	case PhaseFinalize:
		c.finalize(ctx)
	}
}

// FullGC drives the collector through an entire cycle synchronously,
// starting a new one if idle. Hosts call this from collectgarbage() and
// tests call it to assert end-of-cycle invariants.
func (c *Collector) FullGC(ctx context.Context) {
	if c.phase == PhasePause {
		c.startCycle(ctx)
	}
	for c.phase != PhasePause {
		c.Step(ctx)
	}
}

// startCycle begins a new mark/sweep cycle: it flips which white color
// means "new" before any marking happens, so every object registered
// before this point — reached or not — carries the white that sweep
// will later recognize as this cycle's "old" (dead-if-unmarked) color.
// Flipping here rather than after sweep is what makes a single FullGC
// call able to collect objects that were already garbage when it
// started, matching the reference collector's markroot-time flip
// rather than a post-sweep one.
func (c *Collector) startCycle(ctx context.Context) {
	log.Debugf(ctx, "lua gc: starting cycle %d", c.cycles+1)
	c.heap.flipWhite()
	c.phase = PhasePropagate
}

func (c *Collector) propagateStep(ctx context.Context) {
	budget := c.opts.StepMultiplier
	for budget > 0 && len(c.gray) > 0 {
		obj := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		obj.Trace(c.Mark)
		obj.GCHeader().color = Black
		budget--
	}
	if len(c.gray) == 0 {
		c.phase = PhaseAtomic
	}
}

func (c *Collector) atomic(ctx context.Context) {
	log.Debugf(ctx, "lua gc: atomic rescan")
	if c.roots != nil {
		c.roots(c.Mark)
	}
	for len(c.gray) > 0 {
		obj := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		obj.Trace(c.Mark)
		obj.GCHeader().color = Black
	}
	c.phase = PhaseSweep
}

func (c *Collector) sweepStep(ctx context.Context) {
	log.Debugf(ctx, "lua gc: sweep")
	dead := c.heap.otherWhite()
	var freed, swept int
	c.heap.mu.Lock()
	var prev Object
	cur := c.heap.all
	for cur != nil {
		hdr := cur.GCHeader()
		next := hdr.next
		swept++
		if hdr.color == dead {
			freed++
			if hdr.finalizable && !hdr.finalized {
				c.toFinal = append(c.toFinal, cur)
			}
			if c.onSweep != nil {
				c.onSweep(cur)
			}
			if prev == nil {
				c.heap.all = next
			} else {
				prev.GCHeader().next = next
			}
			c.heap.bytesInUse -= uint64(hdr.size)
		} else {
			hdr.color = c.heap.currentWhite
			prev = cur
		}
		cur = next
	}
	c.heap.bytesAllocated = 0
	c.heap.mu.Unlock()
	c.stats.ObjectsSwept += swept
	c.stats.ObjectsFreed += freed
	c.phase = PhaseFinalize
}

func (c *Collector) finalize(ctx context.Context) {
	pending := c.toFinal
	c.toFinal = nil
	c.cycles++
	c.phase = PhasePause
	if len(pending) > 0 {
		log.Debugf(ctx, "lua gc: finalizing %d object(s)", len(pending))
	}
	for _, obj := range pending {
		obj.GCHeader().finalized = true
		if c.onGC != nil {
			c.onGC(obj)
		}
		c.stats.Finalized++
	}
}

// MarkFinalizable flags obj as needing a finalization pass (its __gc
// metamethod or a table's __gc) once the collector finds it unreachable.
func MarkFinalizable(obj Object) {
	obj.GCHeader().finalizable = true
}

// Stats returns a snapshot of collector counters.
func (c *Collector) Stats() Stats {
	s := c.stats
	s.Phase = c.phase
	s.Cycles = c.cycles
	s.BytesAllocated = c.heap.BytesAllocated()
	s.BytesInUse = c.heap.BytesInUse()
	return s
}
