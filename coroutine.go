// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import "context"

// coroutineSignalKind tags what a suspended coroutine's goroutine is
// reporting back to its resumer.
type coroutineSignalKind int

const (
	sigYield coroutineSignalKind = iota
	sigReturned
	sigErrored
)

// coroutineSignal is what a coroutine's body goroutine sends on
// yieldCh: either a yield() call's arguments, its natural-return
// values, or an uncaught error (spec §4.8: "dead-on-return-or-uncaught-
// error with error value returned as (false, err)").
type coroutineSignal struct {
	kind   coroutineSignalKind
	values []Value
	err    error
}

// Wrap, spec §4.8's "cooperative tasks not OS threads": a coroutine's
// body runs on its own goroutine, but at any moment only one of a
// resumer/resumee pair is doing anything — the other is parked on a
// channel receive. This gets us real stack-switching semantics
// (yield/resume can cross arbitrarily deep Lua call nests) without
// reimplementing the Go call stack by hand, at the cost of one parked
// goroutine per live, not-yet-dead coroutine — a deliberate mechanism-
// level trade documented in DESIGN.md, not a deviation from the
// observable resume/yield/status contract spec §4.8 actually specifies.

// NewCoroutine creates a new suspended thread that will run body when
// first resumed, the implementation behind coroutine.create.
func (g *GlobalState) NewCoroutine(body *Closure) *Thread {
	th := g.NewThread()
	th.body = body
	return th
}

// Resume implements spec §4.8's resume: transfers args into the
// coroutine, runs it until it yields, returns, or errors, and reports
// which. caller is the thread calling resume (it becomes "normal" for
// the duration).
func (g *GlobalState) Resume(ctx context.Context, caller, co *Thread, args []Value) (results []Value, ok bool, err error) {
	if co.status == ThreadDead {
		return nil, false, coroutineError("cannot resume dead coroutine")
	}
	if co.status != ThreadSuspended {
		return nil, false, coroutineError("cannot resume non-suspended coroutine")
	}
	if caller != nil {
		caller.status = ThreadNormal
	}
	co.status = ThreadRunning
	co.resumer = caller

	var sig coroutineSignal
	if !co.started {
		co.started = true
		go co.runBody(ctx, args)
		sig = <-co.yieldCh
	} else {
		co.resumeCh <- args
		sig = <-co.yieldCh
	}

	if caller != nil {
		caller.status = ThreadRunning
	}
	switch sig.kind {
	case sigYield:
		co.status = ThreadSuspended
		return sig.values, true, nil
	case sigReturned:
		co.status = ThreadDead
		return sig.values, true, nil
	default:
		co.status = ThreadDead
		return nil, false, sig.err
	}
}

func (co *Thread) runBody(ctx context.Context, args []Value) {
	results, err := co.callValue(ctx, functionValue(co.body), args, -1, 0)
	if err != nil {
		co.yieldCh <- coroutineSignal{kind: sigErrored, err: err}
		return
	}
	co.yieldCh <- coroutineSignal{kind: sigReturned, values: results}
}

// Yield implements spec §4.8's yield: it is only ever called from
// within a coroutine's own body goroutine (via the coroutine.yield
// GoFunction), never from the main thread: g.IsMainThread(th) guards that
// at the library layer. No other check is made; a yield from inside a Go
// function called by the coroutine is not detected here.
func (co *Thread) Yield(values []Value) []Value {
	co.yieldCh <- coroutineSignal{kind: sigYield, values: values}
	return <-co.resumeCh
}

// IsMainThread reports whether th is g's main thread, which can never
// yield (spec §4.8 "CoroutineError: yield-from-main-thread").
func (g *GlobalState) IsMainThread(th *Thread) bool { return th == g.mainThread }
