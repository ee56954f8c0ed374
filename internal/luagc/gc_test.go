// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luagc

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeObject is a minimal Object for exercising the collector without
// the lua package's concrete heap types.
type fakeObject struct {
	hdr  Header
	refs []*fakeObject
}

func (o *fakeObject) GCHeader() *Header { return &o.hdr }
func (o *fakeObject) Trace(mark func(Object)) {
	for _, r := range o.refs {
		mark(r)
	}
}

func newFake(h *Heap) *fakeObject {
	o := &fakeObject{}
	h.Register(o, KindTable, 64)
	return o
}

func TestFullGCCollectsUnreachable(t *testing.T) {
	ctx := context.Background()
	h := NewHeap()
	root := newFake(h)
	garbage := newFake(h)
	_ = garbage

	var freed []Object
	c := NewCollector(h, func(mark func(Object)) {
		mark(root)
	}, nil, func(obj Object) {
		freed = append(freed, obj)
	}, Options{})

	c.FullGC(ctx)

	if len(freed) != 1 || freed[0] != Object(garbage) {
		t.Errorf("FullGC freed %v, want [garbage]", freed)
	}
	want := Stats{
		Phase:          PhasePause,
		Cycles:         1,
		BytesAllocated: 0,
		BytesInUse:     64,
		ObjectsSwept:   2,
		ObjectsFreed:   1,
		Finalized:      0,
	}
	if diff := cmp.Diff(want, c.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestFullGCKeepsReachable(t *testing.T) {
	ctx := context.Background()
	h := NewHeap()
	root := newFake(h)
	child := newFake(h)
	root.refs = append(root.refs, child)

	var freed []Object
	c := NewCollector(h, func(mark func(Object)) {
		mark(root)
	}, nil, func(obj Object) {
		freed = append(freed, obj)
	}, Options{})

	c.FullGC(ctx)

	if len(freed) != 0 {
		t.Errorf("FullGC freed %v, want none", freed)
	}
}

func TestMarkFinalizableRunsOnFinalize(t *testing.T) {
	ctx := context.Background()
	h := NewHeap()
	root := newFake(h)
	garbage := newFake(h)
	MarkFinalizable(garbage)

	var finalized []Object
	c := NewCollector(h, func(mark func(Object)) {
		mark(root)
	}, func(obj Object) {
		finalized = append(finalized, obj)
	}, nil, Options{})

	c.FullGC(ctx)

	if len(finalized) != 1 || finalized[0] != Object(garbage) {
		t.Errorf("finalized = %v, want [garbage]", finalized)
	}
}

func TestShouldCollectThreshold(t *testing.T) {
	h := NewHeap()
	c := NewCollector(h, func(func(Object)) {}, nil, nil, Options{PauseRatio: 2})
	if c.ShouldCollect() {
		t.Error("ShouldCollect() = true on empty heap, want false")
	}
	for i := 0; i < 2000; i++ {
		newFake(h)
	}
	if !c.ShouldCollect() {
		t.Error("ShouldCollect() = false after many allocations, want true")
	}
}

func TestBarrierForwardMarksWhiteChild(t *testing.T) {
	h := NewHeap()
	c := NewCollector(h, func(func(Object)) {}, nil, nil, Options{})
	parent := newFake(h)
	child := newFake(h)
	parent.hdr.color = Black

	c.BarrierForward(parent, child)

	if child.hdr.color != Gray {
		t.Errorf("child color = %v, want Gray", child.hdr.color)
	}
}

func TestBarrierBackwardRevertsParent(t *testing.T) {
	h := NewHeap()
	c := NewCollector(h, func(func(Object)) {}, nil, nil, Options{})
	parent := newFake(h)
	parent.hdr.color = Black

	c.BarrierBackward(parent)

	if parent.hdr.color != Gray {
		t.Errorf("parent color = %v, want Gray", parent.hdr.color)
	}
}
