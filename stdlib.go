// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// OpenLibs registers every library SPEC_FULL.md's "minimal stdlib
// surface" calls for: a complete base library and coroutine library
// (see OpenBase/OpenCoroutine), plus stub string/math/table/io/os/
// debug/package tables carrying only the handful of load-bearing
// functions actually needed to run realistic scripts and this
// package's own tests.
func (g *GlobalState) OpenLibs() {
	g.OpenBase()
	g.OpenCoroutine()
	g.openString()
	g.openMath()
	g.openTable()
	g.openIO()
	g.openOS()
	g.openDebug()
	g.openPackage()
}

func (g *GlobalState) registerLib(name string, fns map[string]GoFunction) *Table {
	t := g.NewTable()
	for fname, fn := range fns {
		t.rawSet(g.NewString(fname), g.NewGoClosure(name+"."+fname, fn))
	}
	g.SetGlobal(name, tableValue(t))
	return t
}

func (g *GlobalState) openString() {
	checkString := func(th *Thread, args []Value, i int, fname string) (string, error) {
		v := arg(args, i)
		if s, ok := v.ToString(); ok {
			return s, nil
		}
		return "", g.typeError(th.where(), i+1, fname, "string", v)
	}
	g.registerLib("string", map[string]GoFunction{
		"len": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			s, err := checkString(th, args, 0, "len")
			if err != nil {
				return nil, err
			}
			return []Value{NumberValue(float64(len(s)))}, nil
		},
		"sub": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			s, err := checkString(th, args, 0, "sub")
			if err != nil {
				return nil, err
			}
			i, j := strIndices(len(s), arg(args, 1), arg(args, 2))
			if i > j {
				return []Value{g.NewString("")}, nil
			}
			return []Value{g.NewString(s[i-1 : j])}, nil
		},
		"upper": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			s, err := checkString(th, args, 0, "upper")
			if err != nil {
				return nil, err
			}
			return []Value{g.NewString(strings.ToUpper(s))}, nil
		},
		"lower": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			s, err := checkString(th, args, 0, "lower")
			if err != nil {
				return nil, err
			}
			return []Value{g.NewString(strings.ToLower(s))}, nil
		},
		"rep": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			s, err := checkString(th, args, 0, "rep")
			if err != nil {
				return nil, err
			}
			n, _ := arg(args, 1).ToNumber()
			if n < 0 {
				n = 0
			}
			return []Value{g.NewString(strings.Repeat(s, int(n)))}, nil
		},
		"format": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			s, err := checkString(th, args, 0, "format")
			if err != nil {
				return nil, err
			}
			out, err := luaFormat(th, s, args[1:])
			if err != nil {
				return nil, err
			}
			return []Value{g.NewString(out)}, nil
		},
		"byte": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			s, err := checkString(th, args, 0, "byte")
			if err != nil {
				return nil, err
			}
			i, j := strIndices(len(s), arg(args, 1), arg(args, 1))
			if len(args) > 2 {
				i, j = strIndices(len(s), arg(args, 1), arg(args, 2))
			}
			var out []Value
			for k := i; k <= j && k >= 1 && k <= len(s); k++ {
				out = append(out, NumberValue(float64(s[k-1])))
			}
			return out, nil
		},
		"char": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			var b strings.Builder
			for _, a := range args {
				n, _ := a.ToNumber()
				b.WriteByte(byte(n))
			}
			return []Value{g.NewString(b.String())}, nil
		},
	})
}

// strIndices resolves Lua's 1-based, negative-from-end string.sub/byte
// index convention into a clamped [i, j] inclusive 1-based range.
func strIndices(length int, iv, jv Value) (int, int) {
	i, _ := iv.ToNumber()
	var j float64 = -1
	if !jv.IsNil() {
		j, _ = jv.ToNumber()
	}
	ii, jj := int(i), int(j)
	if ii < 0 {
		ii = length + ii + 1
	}
	if ii < 1 {
		ii = 1
	}
	if jj < 0 {
		jj = length + jj + 1
	}
	if jj > length {
		jj = length
	}
	return ii, jj
}

// luaFormat implements the subset of string.format used by realistic
// scripts: %d %i %s %f %g %x %X %q %%, delegating to Go's fmt for the
// numeric/string verb itself once Lua's value has been coerced.
func luaFormat(th *Thread, format string, args []Value) (string, error) {
	var out strings.Builder
	ai := 0
	next := func() Value {
		if ai < len(args) {
			v := args[ai]
			ai++
			return v
		}
		return Nil
	}
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(format) && strings.ContainsRune("-+ #0123456789.", rune(format[j])) {
			j++
		}
		if j >= len(format) {
			return "", newRuntimeError(th.where(), "invalid format string to 'format'")
		}
		verb := format[j]
		spec := format[i : j+1]
		switch verb {
		case '%':
			out.WriteByte('%')
		case 'd', 'i':
			n, _ := next().ToNumber()
			fmt.Fprintf(&out, spec[:len(spec)-1]+"d", int64(n))
		case 'x', 'X', 'o':
			n, _ := next().ToNumber()
			fmt.Fprintf(&out, spec, int64(n))
		case 'f', 'g', 'G', 'e', 'E':
			n, _ := next().ToNumber()
			fmt.Fprintf(&out, spec, n)
		case 's':
			v := next()
			s, _ := v.ToString()
			fmt.Fprintf(&out, spec, s)
		case 'q':
			v := next()
			s, _ := v.ToString()
			fmt.Fprintf(&out, "%q", s)
		default:
			return "", newRuntimeError(th.where(), "invalid conversion '%%%c' to 'format'", verb)
		}
		i = j
	}
	return out.String(), nil
}

func (g *GlobalState) openMath() {
	lib := g.registerLib("math", map[string]GoFunction{
		"floor": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			n, _ := arg(args, 0).ToNumber()
			return []Value{NumberValue(math.Floor(n))}, nil
		},
		"ceil": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			n, _ := arg(args, 0).ToNumber()
			return []Value{NumberValue(math.Ceil(n))}, nil
		},
		"abs": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			n, _ := arg(args, 0).ToNumber()
			return []Value{NumberValue(math.Abs(n))}, nil
		},
		"sqrt": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			n, _ := arg(args, 0).ToNumber()
			return []Value{NumberValue(math.Sqrt(n))}, nil
		},
		"max": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			best, _ := arg(args, 0).ToNumber()
			for _, a := range args[1:] {
				n, _ := a.ToNumber()
				if n > best {
					best = n
				}
			}
			return []Value{NumberValue(best)}, nil
		},
		"min": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			best, _ := arg(args, 0).ToNumber()
			for _, a := range args[1:] {
				n, _ := a.ToNumber()
				if n < best {
					best = n
				}
			}
			return []Value{NumberValue(best)}, nil
		},
	})
	lib.rawSet(g.NewString("huge"), NumberValue(math.Inf(1)))
	lib.rawSet(g.NewString("pi"), NumberValue(math.Pi))
}

func (g *GlobalState) openTable() {
	g.registerLib("table", map[string]GoFunction{
		"insert": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			t, err := g.checkTable(th, args, 0, "insert")
			if err != nil {
				return nil, err
			}
			n := t.Length()
			if len(args) >= 3 {
				pos, _ := args[1].ToNumber()
				v := args[2]
				for i := n + 1; i > int(pos); i-- {
					t.rawSet(NumberValue(float64(i)), t.rawGet(NumberValue(float64(i-1))))
				}
				t.rawSet(NumberValue(pos), v)
			} else {
				t.rawSet(NumberValue(float64(n+1)), arg(args, 1))
			}
			return nil, nil
		},
		"remove": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			t, err := g.checkTable(th, args, 0, "remove")
			if err != nil {
				return nil, err
			}
			n := t.Length()
			pos := n
			if len(args) >= 2 {
				p, _ := args[1].ToNumber()
				pos = int(p)
			}
			if n == 0 {
				return []Value{Nil}, nil
			}
			removed := t.rawGet(NumberValue(float64(pos)))
			for i := pos; i < n; i++ {
				t.rawSet(NumberValue(float64(i)), t.rawGet(NumberValue(float64(i+1))))
			}
			t.rawSet(NumberValue(float64(n)), Nil)
			return []Value{removed}, nil
		},
		"concat": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			t, err := g.checkTable(th, args, 0, "concat")
			if err != nil {
				return nil, err
			}
			sep := ""
			if len(args) > 1 {
				sep, _ = args[1].ToString()
			}
			n := t.Length()
			var b strings.Builder
			for i := 1; i <= n; i++ {
				if i > 1 {
					b.WriteString(sep)
				}
				s, _ := t.rawGet(NumberValue(float64(i))).ToString()
				b.WriteString(s)
			}
			return []Value{g.NewString(b.String())}, nil
		},
	})
}

func (g *GlobalState) openIO() {
	g.registerLib("io", map[string]GoFunction{
		"write": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			for _, a := range args {
				s, _ := a.ToString()
				fmt.Print(s)
			}
			return nil, nil
		},
	})
}

func (g *GlobalState) openOS() {
	g.registerLib("os", map[string]GoFunction{
		"time": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			return []Value{NumberValue(0)}, nil
		},
	})
}

func (g *GlobalState) openDebug() {
	g.registerLib("debug", map[string]GoFunction{
		"traceback": func(ctx context.Context, th *Thread, args []Value) ([]Value, error) {
			msg := ""
			if len(args) > 0 {
				msg, _ = args[0].ToString()
			}
			return []Value{g.NewString("thread " + th.ID() + ": " + msg)}, nil
		},
	})
}

func (g *GlobalState) openPackage() {
	lib := g.NewTable()
	lib.rawSet(g.NewString("loaded"), tableValue(g.NewTable()))
	g.SetGlobal("package", tableValue(lib))
}
