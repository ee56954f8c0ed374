// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package luagc implements the runtime's heap allocator and tracing
// collector (spec components C2 and C3), mirroring
// original_source/src/gc's core/memory split as two files in one package.
//
// Go already owns real memory management, so this package does not free
// bytes itself — [Heap.Register] just lets every managed object opt into
// an intrusive all-objects list and a GC color, and [Collector] runs the
// same tri-color mark/sweep bookkeeping a manual allocator would, purely
// to give the runtime accurate liveness information for __gc finalizers
// and GCStats. See DESIGN.md for why this is a deliberate simplification
// rather than a from-scratch bump allocator.
package luagc

import "sync"

// Color is an object's tri-color mark-sweep classification.
type Color uint8

const (
	white0 Color = iota
	white1
	Gray
	Black
)

// Kind tags what an [Object] represents, for diagnostics and stats.
type Kind uint8

const (
	KindString Kind = iota
	KindTable
	KindClosure
	KindUpvalue
	KindUserdata
	KindThread
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindUserdata:
		return "userdata"
	case KindThread:
		return "thread"
	default:
		return "object"
	}
}

// Header is the fixed per-object record every heap-managed value embeds,
// giving the collector a cache-friendly intrusive list instead of a
// parallel side table (spec §9: "non-negotiable for throughput").
type Header struct {
	color       Color
	kind        Kind
	size        uintptr
	next        Object
	finalizable bool
	finalized   bool
}

// Color reports the object's current mark color.
func (h *Header) Color() Color { return h.color }

// Kind reports the object's kind tag.
func (h *Header) Kind() Kind { return h.kind }

// Object is anything the collector can trace: every core heap type
// (String, Table, Closure, Upvalue, Userdata, Thread) embeds a Header
// value, returns its address from GCHeader, and implements Trace to mark its outgoing references.
type Object interface {
	GCHeader() *Header
	// Trace calls mark on every Object this object directly references.
	Trace(mark func(Object))
}

// Heap owns the all-objects list and the allocation byte counter that
// drives collector triggering. The mutex matches spec §4.2's contract
// that the allocator "holds an internal mutex around pool free-lists so
// that host threads and finalizers cannot race" — in this runtime the
// protected state is the all-objects list and counters, not raw pools.
type Heap struct {
	mu             sync.Mutex
	all            Object
	count          int
	bytesAllocated uint64
	bytesInUse     uint64
	currentWhite   Color
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{currentWhite: white0}
}

// Register adds obj to the heap's all-objects list, tagging it the
// current white so this cycle's sweep cannot mistake it for garbage
// ("two-white trick", spec §9).
func (h *Heap) Register(obj Object, kind Kind, size uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hdr := obj.GCHeader()
	hdr.color = h.currentWhite
	hdr.kind = kind
	hdr.size = size
	hdr.next = h.all
	h.all = obj
	h.count++
	h.bytesAllocated += uint64(size)
	h.bytesInUse += uint64(size)
}

// BytesAllocated reports bytes registered since the last sweep (each sweep
// resets it to zero), for GCStats and collection triggering.
func (h *Heap) BytesAllocated() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bytesAllocated
}

// BytesInUse reports the live-object byte estimate used to compute the
// next collection threshold (spec §4.3 "threshold = bytes_in_use *
// pause_ratio").
func (h *Heap) BytesInUse() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bytesInUse
}

func (h *Heap) currentWhiteColor() Color {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentWhite
}

func (h *Heap) otherWhite() Color {
	if h.currentWhiteColor() == white0 {
		return white1
	}
	return white0
}

func (h *Heap) flipWhite() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.currentWhite == white0 {
		h.currentWhite = white1
	} else {
		h.currentWhite = white0
	}
}
