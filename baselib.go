// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"fmt"
)

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Nil
}

// checkTable extracts args[i] as a table or raises a typed argument
// error, the base library's version of the reference "luaL_checktype"
// helpers (spec §7: "host arg-type errors include arg index").
func (g *GlobalState) checkTable(th *Thread, args []Value, i int, fname string) (*Table, error) {
	v := arg(args, i)
	if !v.IsTable() {
		return nil, g.typeError(th.where(), i+1, fname, "table", v)
	}
	return v.AsTable(), nil
}

// OpenBase registers the base library (type, tostring, tonumber, raw*,
// setmetatable/getmetatable, pairs/ipairs/next, error/assert/pcall/
// xpcall, select, print) into g's globals, per SPEC_FULL.md's minimal
// stdlib surface.
func (g *GlobalState) OpenBase() {
	reg := func(name string, fn GoFunction) {
		g.SetGlobal(name, g.NewGoClosure(name, fn))
	}

	reg("type", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		return []Value{g.NewString(arg(args, 0).TypeName())}, nil
	})

	reg("tostring", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		v := arg(args, 0)
		if mm := g.getMetamethod(v, "__tostring"); !mm.IsNil() {
			r, err := th.callValue(ctx, mm, []Value{v}, 1, 0)
			if err != nil {
				return nil, err
			}
			return []Value{first(r)}, nil
		}
		return []Value{g.NewString(v.Display())}, nil
	})

	reg("tonumber", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		v := arg(args, 0)
		if n, ok := v.ToNumber(); ok {
			return []Value{NumberValue(n)}, nil
		}
		return []Value{Nil}, nil
	})

	reg("rawget", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		t, err := g.checkTable(th, args, 0, "rawget")
		if err != nil {
			return nil, err
		}
		return []Value{t.rawGet(arg(args, 1))}, nil
	})

	reg("rawset", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		t, err := g.checkTable(th, args, 0, "rawset")
		if err != nil {
			return nil, err
		}
		if err := t.rawSet(arg(args, 1), arg(args, 2)); err != nil {
			return nil, newRuntimeError(th.where(), "table index is nil or NaN")
		}
		return []Value{arg(args, 0)}, nil
	})

	reg("rawequal", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		return []Value{BoolValue(arg(args, 0).RawEqual(arg(args, 1)))}, nil
	})

	reg("rawlen", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		v := arg(args, 0)
		switch v.kind {
		case KindTable:
			return []Value{NumberValue(float64(v.obj.(*Table).Length()))}, nil
		case KindString:
			return []Value{NumberValue(float64(len(v.obj.(*String).s)))}, nil
		default:
			return nil, g.typeError(th.where(), 1, "rawlen", "table or string", v)
		}
	})

	reg("setmetatable", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		t, err := g.checkTable(th, args, 0, "setmetatable")
		if err != nil {
			return nil, err
		}
		mtArg := arg(args, 1)
		if mtArg.IsNil() {
			t.SetMetatable(nil)
			return []Value{arg(args, 0)}, nil
		}
		if !mtArg.IsTable() {
			return nil, g.typeError(th.where(), 2, "setmetatable", "nil or table", mtArg)
		}
		t.SetMetatable(mtArg.AsTable())
		return []Value{arg(args, 0)}, nil
	})

	reg("getmetatable", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		v := arg(args, 0)
		var mt *Table
		switch v.kind {
		case KindTable:
			mt = v.obj.(*Table).metatable
		case KindUserdata:
			mt = v.obj.(*Userdata).metatable
		}
		if mt == nil {
			return []Value{Nil}, nil
		}
		if protected := mt.rawGetString("__metatable"); !protected.IsNil() {
			return []Value{protected}, nil
		}
		return []Value{tableValue(mt)}, nil
	})

	reg("next", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		t, err := g.checkTable(th, args, 0, "next")
		if err != nil {
			return nil, err
		}
		k, v, done, nerr := t.Next(arg(args, 1))
		if nerr != nil {
			return nil, newRuntimeError(th.where(), "invalid key to 'next'")
		}
		if done {
			return []Value{Nil}, nil
		}
		return []Value{k, v}, nil
	})

	reg("pairs", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		t, err := g.checkTable(th, args, 0, "pairs")
		if err != nil {
			return nil, err
		}
		return []Value{g.GetGlobal("next"), tableValue(t), Nil}, nil
	})

	reg("ipairs", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		t, err := g.checkTable(th, args, 0, "ipairs")
		if err != nil {
			return nil, err
		}
		iter := g.NewGoClosure("ipairs.iterator", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			it := arg(args, 0).AsTable()
			i := int(arg(args, 1).AsNumber()) + 1
			v := it.rawGet(NumberValue(float64(i)))
			if v.IsNil() {
				return []Value{Nil}, nil
			}
			return []Value{NumberValue(float64(i)), v}, nil
		})
		return []Value{iter, tableValue(t), NumberValue(0)}, nil
	})

	reg("error", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		v := arg(args, 0)
		level := 1
		if len(args) > 1 {
			if n, ok := args[1].ToNumber(); ok {
				level = int(n)
			}
		}
		if v.IsString() && level > 0 {
			v = g.NewString(th.where() + ": " + v.AsString())
		}
		return nil, &RuntimeError{Value: v, Level: level}
	})

	reg("assert", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		if !arg(args, 0).Truthy() {
			msg := arg(args, 1)
			if msg.IsNil() {
				msg = g.NewString("assertion failed!")
			}
			return nil, &RuntimeError{Value: msg}
		}
		return args, nil
	})

	reg("pcall", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, g.typeError(th.where(), 1, "pcall", "value", Nil)
		}
		results, callErr := g.PCall(ctx, th, args[0], args[1:])
		if callErr != nil {
			return []Value{BoolValue(false), errorValue(g, callErr)}, nil
		}
		return append([]Value{BoolValue(true)}, results...), nil
	})

	reg("xpcall", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		if len(args) < 2 {
			return nil, g.typeError(th.where(), 2, "xpcall", "value", Nil)
		}
		handler := args[1]
		results, callErr := g.PCall(ctx, th, args[0], args[2:])
		if callErr != nil {
			hres, herr := th.callValue(ctx, handler, []Value{errorValue(g, callErr)}, 1, 0)
			if herr != nil {
				return []Value{BoolValue(false), errorValue(g, herr)}, nil
			}
			return []Value{BoolValue(false), first(hres)}, nil
		}
		return append([]Value{BoolValue(true)}, results...), nil
	})

	reg("select", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, g.typeError(th.where(), 1, "select", "number or '#'", Nil)
		}
		if args[0].IsString() && args[0].AsString() == "#" {
			return []Value{NumberValue(float64(len(args) - 1))}, nil
		}
		n, ok := args[0].ToNumber()
		if !ok {
			return nil, g.typeError(th.where(), 1, "select", "number", args[0])
		}
		i := int(n)
		if i < 0 {
			i = len(args) - 1 + i + 1
		}
		if i < 1 {
			return nil, newRuntimeError(th.where(), "bad argument #1 to 'select' (index out of range)")
		}
		if i >= len(args) {
			return nil, nil
		}
		return args[i:], nil
	})

	reg("print", func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
		for i, v := range args {
			if i > 0 {
				fmt.Print("\t")
			}
			s, err := g.tostringDisplay(ctx, th, v)
			if err != nil {
				return nil, err
			}
			fmt.Print(s)
		}
		fmt.Print("\n")
		return nil, nil
	})

	g.SetGlobal("_G", tableValue(g.globals))
	g.SetGlobal("_VERSION", g.NewString("Lua 5.1"))
}

func (g *GlobalState) tostringDisplay(ctx context.Context, th *Thread, v Value) (string, error) {
	if mm := g.getMetamethod(v, "__tostring"); !mm.IsNil() {
		r, err := th.callValue(ctx, mm, []Value{v}, 1, 0)
		if err != nil {
			return "", err
		}
		return first(r).Display(), nil
	}
	return v.Display(), nil
}

// errorValue extracts the Lua value an error carries: a *RuntimeError's
// own payload, or a plain string for any other Go error (e.g. one
// originating from host code rather than error()).
func errorValue(g *GlobalState, err error) Value {
	if re, ok := err.(*RuntimeError); ok {
		return re.Value
	}
	return g.NewString(err.Error())
}
