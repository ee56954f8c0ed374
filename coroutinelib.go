// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import "context"

// OpenCoroutine registers the full coroutine library (create, resume,
// yield, status, wrap, isyieldable, running), per SPEC_FULL.md's
// requirement that this library be complete rather than stubbed.
func (g *GlobalState) OpenCoroutine() {
	lib := g.NewTable()

	set := func(name string, fn GoFunction) {
		lib.rawSet(g.NewString(name), g.NewGoClosure("coroutine."+name, fn))
	}

	set("create", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		fnArg := arg(args, 0)
		if !fnArg.IsFunction() {
			return nil, g.typeError(th.where(), 1, "create", "function", fnArg)
		}
		co := g.NewCoroutine(fnArg.AsFunction())
		return []Value{threadValue(co)}, nil
	})

	set("resume", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		coArg := arg(args, 0)
		if !coArg.IsThread() {
			return nil, g.typeError(th.where(), 1, "resume", "coroutine", coArg)
		}
		results, ok, err := g.Resume(ctx, th, coArg.AsThread(), args[1:])
		if err != nil {
			return []Value{BoolValue(false), errorValue(g, err)}, nil
		}
		return append([]Value{BoolValue(ok)}, results...), nil
	})

	set("yield", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		if g.IsMainThread(th) {
			return nil, coroutineError("attempt to yield from outside a coroutine")
		}
		return th.Yield(args), nil
	})

	set("status", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		coArg := arg(args, 0)
		if !coArg.IsThread() {
			return nil, g.typeError(th.where(), 1, "status", "coroutine", coArg)
		}
		return []Value{g.NewString(coArg.AsThread().Status().String())}, nil
	})

	set("isyieldable", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		return []Value{BoolValue(!g.IsMainThread(th))}, nil
	})

	set("running", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		return []Value{threadValue(th), BoolValue(g.IsMainThread(th))}, nil
	})

	set("wrap", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		fnArg := arg(args, 0)
		if !fnArg.IsFunction() {
			return nil, g.typeError(th.where(), 1, "wrap", "function", fnArg)
		}
		co := g.NewCoroutine(fnArg.AsFunction())
		wrapped := g.NewGoClosure("coroutine.wrap", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			results, ok, err := g.Resume(ctx, th, co, args)
			if !ok {
				if err != nil {
					return nil, err
				}
				return nil, coroutineError("coroutine error")
			}
			return results, nil
		})
		return []Value{wrapped}, nil
	})

	g.SetGlobal("coroutine", tableValue(lib))
}
