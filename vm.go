// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"math"

	"lua51.dev/runtime/internal/luacode"
)

// maxMetaDepth bounds metamethod-dispatch recursion (spec §4.6: "bounded
// metamethod-dispatch fuel before TypeError / loop-detection").
const maxMetaDepth = 100

// setListBatchSize must match luacode's setListBatch: how many array
// items SETLIST's C operand counts per batch.
const setListBatchSize = 50

// Call invokes fn with args on th, requesting nresults results
// (luacode.MultiReturn for "as many as produced"). This is spec §6's
// external "call" entry point.
func (g *GlobalState) Call(ctx context.Context, th *Thread, fn Value, args []Value, nresults int) ([]Value, error) {
	return th.callValue(ctx, fn, args, nresults, 0)
}

// PCall is the protected variant: it recovers a *RuntimeError into a
// (false, err) style return instead of propagating it, matching spec
// §6's "call/pcall-variant" and §7's unwind-to-boundary rule.
func (g *GlobalState) PCall(ctx context.Context, th *Thread, fn Value, args []Value) (results []Value, callErr error) {
	savedStack := len(th.callStack)
	savedTop := len(th.stack)
	results, callErr = g.Call(ctx, th, fn, args, luacode.MultiReturn)
	if callErr != nil {
		th.closeUpvaluesAt(savedTop)
		th.callStack = th.callStack[:savedStack]
		th.stack = th.stack[:savedTop]
	}
	return results, callErr
}

func (th *Thread) callValue(ctx context.Context, fn Value, args []Value, nresults, depth int) ([]Value, error) {
	if !fn.IsFunction() {
		mm := th.g.getMetamethod(fn, "__call")
		if mm.IsNil() {
			return nil, th.g.typeError(th.where(), 0, "", "function", fn)
		}
		if depth > maxMetaDepth {
			return nil, newRuntimeError(th.where(), "'__call' chain too long; possible loop")
		}
		newArgs := append([]Value{fn}, args...)
		return th.callValue(ctx, mm, newArgs, nresults, depth+1)
	}
	c := fn.AsFunction()
	if c.IsGo() {
		return c.goFn(ctx, th, args)
	}
	return th.callLua(ctx, c, args, nresults)
}

func (th *Thread) callLua(ctx context.Context, c *Closure, args []Value, nresults int) ([]Value, error) {
	if len(th.callStack) > 200 {
		return nil, stackOverflowError(th.where())
	}
	base := len(th.stack)
	proto := c.proto
	if err := th.ensure(base + int(proto.MaxStackSize) + 8); err != nil {
		return nil, err
	}
	np := int(proto.NumParams)
	for i := 0; i < np; i++ {
		if i < len(args) {
			th.stack[base+i] = args[i]
		} else {
			th.stack[base+i] = Nil
		}
	}
	for i := np; i < int(proto.MaxStackSize); i++ {
		th.stack[base+i] = Nil
	}
	var varargs []Value
	if proto.IsVararg && len(args) > np {
		varargs = append(varargs, args[np:]...)
	}
	th.callStack = append(th.callStack, callInfo{fn: c, base: base, nresults: nresults, varargs: varargs})

	results, err := th.run(ctx)

	th.callStack = th.callStack[:len(th.callStack)-1]
	th.stack = th.stack[:base]
	if err != nil {
		return nil, err
	}
	if nresults != luacode.MultiReturn && len(results) != nresults {
		results = adjustResults(results, nresults)
	}
	return results, nil
}

// prepareTailCall reuses ci's register window for a tail call to c
// instead of pushing a new CallInfo. This is what makes spec §4.6's
// tail-call bound hold: a chain of Lua-to-Lua tail calls of any length
// runs in the same CallInfo slot and the same base stack offset, so
// th.callStack never grows past whatever depth got it there.
func (th *Thread) prepareTailCall(ci *callInfo, c *Closure, args []Value) error {
	proto := c.proto
	base := ci.base
	if err := th.ensure(base + int(proto.MaxStackSize) + 8); err != nil {
		return err
	}
	np := int(proto.NumParams)
	for i := 0; i < np; i++ {
		if i < len(args) {
			th.stack[base+i] = args[i]
		} else {
			th.stack[base+i] = Nil
		}
	}
	for i := np; i < int(proto.MaxStackSize); i++ {
		th.stack[base+i] = Nil
	}
	var varargs []Value
	if proto.IsVararg && len(args) > np {
		varargs = append(varargs, args[np:]...)
	}
	*ci = callInfo{fn: c, base: base, nresults: ci.nresults, varargs: varargs, tailcall: true}
	return nil
}

func adjustResults(results []Value, want int) []Value {
	out := make([]Value, want)
	for i := range out {
		if i < len(results) {
			out[i] = results[i]
		} else {
			out[i] = Nil
		}
	}
	return out
}

// run executes instructions for th's current (topmost) call frame until
// a RETURN (or a TAILCALL that completes as one) produces its results.
func (th *Thread) run(ctx context.Context) ([]Value, error) {
	for {
		ci := &th.callStack[len(th.callStack)-1]
		proto := ci.fn.proto
		reg := th.stack[ci.base:]

		if ci.pc >= len(proto.Code) {
			return nil, nil
		}
		instr := proto.Code[ci.pc]
		ci.pc++
		th.g.collectStep(ctx)

		switch instr.OpCode() {
		case luacode.OpMove:
			reg[instr.A()] = reg[instr.B()]

		case luacode.OpLoadK:
			reg[instr.A()] = constantValue(th.g, proto.Constants[instr.Bx()])

		case luacode.OpLoadBool:
			reg[instr.A()] = BoolValue(instr.B() != 0)
			if instr.C() != 0 {
				ci.pc++
			}

		case luacode.OpLoadNil:
			for r := instr.A(); r <= instr.A()+uint8(instr.B()); r++ {
				reg[r] = Nil
			}

		case luacode.OpGetUpval:
			reg[instr.A()] = ci.fn.upvalues[instr.B()].Get()

		case luacode.OpSetUpval:
			ci.fn.upvalues[instr.B()].Set(reg[instr.A()])

		case luacode.OpGetGlobal:
			name := proto.Constants[instr.Bx()].StringValue()
			reg[instr.A()] = th.g.globals.rawGetString(name)

		case luacode.OpSetGlobal:
			name := proto.Constants[instr.Bx()].StringValue()
			th.g.globals.rawSet(th.g.NewString(name), reg[instr.A()])
			th.g.gc.BarrierBackward(th.g.globals)

		case luacode.OpNewTable:
			reg[instr.A()] = tableValue(th.g.NewTable())

		case luacode.OpSelf:
			obj := reg[instr.B()]
			key := th.rk(ci, reg, instr.C())
			method, err := th.g.index(ctx, th, obj, key, 0)
			ci, reg = &th.callStack[len(th.callStack)-1], th.stack[ci.base:]
			if err != nil {
				return nil, err
			}
			reg[instr.A()+1] = obj
			reg[instr.A()] = method

		case luacode.OpGetTable:
			obj := reg[instr.B()]
			key := th.rk(ci, reg, instr.C())
			v, err := th.g.index(ctx, th, obj, key, 0)
			ci, reg = &th.callStack[len(th.callStack)-1], th.stack[ci.base:]
			if err != nil {
				return nil, err
			}
			reg[instr.A()] = v

		case luacode.OpSetTable:
			obj := reg[instr.A()]
			key := th.rk(ci, reg, instr.B())
			val := th.rk(ci, reg, instr.C())
			if err := th.g.newindex(ctx, th, obj, key, val, 0); err != nil {
				return nil, err
			}

		case luacode.OpAdd, luacode.OpSub, luacode.OpMul, luacode.OpDiv, luacode.OpMod, luacode.OpPow:
			a := th.rk(ci, reg, instr.B())
			b := th.rk(ci, reg, instr.C())
			v, err := th.g.arith(ctx, th, instr.OpCode(), a, b)
			ci, reg = &th.callStack[len(th.callStack)-1], th.stack[ci.base:]
			if err != nil {
				return nil, err
			}
			reg[instr.A()] = v

		case luacode.OpUnm:
			v := reg[instr.B()]
			if n, ok := v.ToNumber(); ok {
				reg[instr.A()] = NumberValue(-n)
			} else {
				r, err := th.g.arithMeta(ctx, th, "__unm", v, v)
				ci, reg = &th.callStack[len(th.callStack)-1], th.stack[ci.base:]
				if err != nil {
					return nil, err
				}
				reg[instr.A()] = r
			}

		case luacode.OpNot:
			reg[instr.A()] = BoolValue(!reg[instr.B()].Truthy())

		case luacode.OpLen:
			v := reg[instr.B()]
			n, err := th.g.length(ctx, th, v)
			ci, reg = &th.callStack[len(th.callStack)-1], th.stack[ci.base:]
			if err != nil {
				return nil, err
			}
			reg[instr.A()] = n

		case luacode.OpConcat:
			v, err := th.g.concatRange(ctx, th, reg[instr.B():instr.C()+1])
			ci, reg = &th.callStack[len(th.callStack)-1], th.stack[ci.base:]
			if err != nil {
				return nil, err
			}
			reg[instr.A()] = v

		case luacode.OpJmp:
			ci.pc += int(instr.SBx())

		case luacode.OpEq, luacode.OpLt, luacode.OpLe:
			a := th.rk(ci, reg, instr.B())
			b := th.rk(ci, reg, instr.C())
			result, err := th.g.compare(ctx, th, instr.OpCode(), a, b)
			ci, reg = &th.callStack[len(th.callStack)-1], th.stack[ci.base:]
			if err != nil {
				return nil, err
			}
			if result != (instr.A() != 0) {
				ci.pc++
			}

		case luacode.OpTest:
			if reg[instr.A()].Truthy() != (instr.C() != 0) {
				ci.pc++
			}

		case luacode.OpTestSet:
			if reg[instr.B()].Truthy() == (instr.C() != 0) {
				reg[instr.A()] = reg[instr.B()]
			} else {
				ci.pc++
			}

		case luacode.OpCall:
			results, err := th.doCall(ctx, ci, reg, instr)
			ci, reg = &th.callStack[len(th.callStack)-1], th.stack[ci.base:]
			if err != nil {
				return nil, err
			}
			nwant := int(instr.C()) - 1
			if nwant == luacode.MultiReturn {
				nwant = len(results)
				ci.top = int(instr.A()) + nwant
			}
			for i := 0; i < nwant; i++ {
				if i < len(results) {
					reg[instr.A()+uint8(i)] = results[i]
				} else {
					reg[instr.A()+uint8(i)] = Nil
				}
			}

		case luacode.OpTailCall:
			fn := reg[instr.A()]
			args := th.gatherOpen(ci, reg, instr.A()+1, int(instr.B())-1)
			th.closeUpvaluesAt(ci.base)
			if fn.IsFunction() && !fn.AsFunction().IsGo() {
				// Lua-to-Lua tail call: reuse ci's register window in
				// place instead of pushing a new CallInfo (spec §4.6's
				// O(1) tail-call bound).
				if err := th.prepareTailCall(ci, fn.AsFunction(), args); err != nil {
					return nil, err
				}
				continue
			}
			results, err := th.callValue(ctx, fn, args, ci.nresults, 0)
			if err != nil {
				return nil, err
			}
			return results, nil

		case luacode.OpReturn:
			results := th.gatherOpen(ci, reg, instr.A(), int(instr.B())-1)
			th.closeUpvaluesAt(ci.base)
			return results, nil

		case luacode.OpForPrep:
			a := instr.A()
			reg[a] = NumberValue(reg[a].n - reg[a+2].n)
			ci.pc += int(instr.SBx())

		case luacode.OpForLoop:
			a := instr.A()
			step := reg[a+2].n
			reg[a] = NumberValue(reg[a].n + step)
			if (step >= 0 && reg[a].n <= reg[a+1].n) || (step < 0 && reg[a].n >= reg[a+1].n) {
				ci.pc += int(instr.SBx())
				reg[a+3] = reg[a]
			}

		case luacode.OpTForLoop:
			a := instr.A()
			c := int(instr.C())
			results, err := th.callValue(ctx, reg[a], []Value{reg[a+1], reg[a+2]}, c, 0)
			ci, reg = &th.callStack[len(th.callStack)-1], th.stack[ci.base:]
			if err != nil {
				return nil, err
			}
			for i := 0; i < c; i++ {
				if i < len(results) {
					reg[a+3+uint8(i)] = results[i]
				} else {
					reg[a+3+uint8(i)] = Nil
				}
			}
			if reg[a+3].IsNil() {
				ci.pc++
			} else {
				reg[a+2] = reg[a+3]
			}

		case luacode.OpSetList:
			// B encodes count+1 (0 means "rest of the register window"),
			// matching this compiler's CALL/TAILCALL convention rather
			// than the reference implementation's bare count.
			a := instr.A()
			n := int(instr.B()) - 1
			t := reg[a].AsTable()
			if instr.B() == 0 {
				n = len(reg) - int(a) - 1
			}
			batch := int(instr.C())
			base := (batch - 1) * setListBatchSize
			for i := 1; i <= n; i++ {
				t.rawSet(NumberValue(float64(base+i)), reg[a+uint8(i)])
			}

		case luacode.OpClose:
			th.closeUpvaluesAt(ci.base + int(instr.A()))

		case luacode.OpClosure:
			v := th.instantiateClosure(ci, reg, proto, proto.Prototypes[instr.Bx()])
			reg[instr.A()] = v

		case luacode.OpVararg:
			want := int(instr.B()) - 1
			if want == luacode.MultiReturn {
				want = len(ci.varargs)
				ci.top = int(instr.A()) + want
			}
			for i := 0; i < want; i++ {
				if i < len(ci.varargs) {
					reg[instr.A()+uint8(i)] = ci.varargs[i]
				} else {
					reg[instr.A()+uint8(i)] = Nil
				}
			}

		default:
			return nil, newRuntimeError(th.where(), "unimplemented opcode %v", instr.OpCode())
		}
	}
}

// rk resolves a B/C operand that may name either a register or (via
// BitRK) a constant-pool entry.
func (th *Thread) rk(ci *callInfo, reg []Value, operand uint16) Value {
	if luacode.IsConstant(operand) {
		return constantValue(th.g, ci.fn.proto.Constants[luacode.ConstantIndex(operand)])
	}
	return reg[operand]
}

func constantValue(g *GlobalState, c luacode.Constant) Value {
	switch c.Kind() {
	case luacode.ConstantNil:
		return Nil
	case luacode.ConstantBoolean:
		return BoolValue(c.Bool())
	case luacode.ConstantNumber:
		return NumberValue(c.Number())
	default:
		return g.NewString(c.StringValue())
	}
}

// doCall executes one CALL instruction's invocation and returns its raw
// results (before truncation/padding to the requested count, which the
// caller in run() handles so TAILCALL and CALL share this helper).
func (th *Thread) doCall(ctx context.Context, ci *callInfo, reg []Value, instr luacode.Instruction) ([]Value, error) {
	fn := reg[instr.A()]
	args := th.gatherOpen(ci, reg, instr.A()+1, int(instr.B())-1)
	want := int(instr.C()) - 1
	return th.callValue(ctx, fn, args, want, 0)
}

// gatherOpen reads a run of values starting at register start: exactly
// n of them if n is not luacode.MultiReturn, or everything up to the
// frame's current open-result boundary (ci.top) when n is MultiReturn —
// the shared helper behind CALL/TAILCALL/RETURN's "B=0 means as many
// values as are available" encoding.
func (th *Thread) gatherOpen(ci *callInfo, reg []Value, start uint8, n int) []Value {
	if n != luacode.MultiReturn {
		return append([]Value(nil), reg[start:start+uint8(n)]...)
	}
	end := ci.top
	if end < int(start) {
		end = int(start)
	}
	return append([]Value(nil), reg[int(start):end]...)
}

// instantiateClosure implements spec §4.6's CLOSURE instantiation rule:
// for each upvalue descriptor, either capture the enclosing frame's
// local register (sharing via findOrCreateUpvalue) or reuse the
// enclosing closure's own upvalue of the same index.
func (th *Thread) instantiateClosure(ci *callInfo, reg []Value, parent *luacode.Prototype, child *luacode.Prototype) Value {
	c := newLuaClosure(th.g.heap, child)
	for i, desc := range child.Upvalues {
		if desc.Source == luacode.UpvalueFromStack {
			c.upvalues[i] = th.findOrCreateUpvalue(ci.base + int(desc.Index))
		} else {
			c.upvalues[i] = ci.fn.upvalues[desc.Index]
		}
	}
	return functionValue(c)
}

func (g *GlobalState) getMetamethod(v Value, name string) Value {
	var mt *Table
	switch v.kind {
	case KindTable:
		mt = v.obj.(*Table).metatable
	case KindUserdata:
		mt = v.obj.(*Userdata).metatable
	}
	if mt == nil {
		return Nil
	}
	return mt.rawGetString(name)
}

var arithMetaNames = map[luacode.OpCode]string{
	luacode.OpAdd: "__add", luacode.OpSub: "__sub", luacode.OpMul: "__mul",
	luacode.OpDiv: "__div", luacode.OpMod: "__mod", luacode.OpPow: "__pow",
}

func (g *GlobalState) arith(ctx context.Context, th *Thread, op luacode.OpCode, a, b Value) (Value, error) {
	an, aok := a.ToNumber()
	bn, bok := b.ToNumber()
	if aok && bok {
		return NumberValue(applyArith(op, an, bn)), nil
	}
	return g.arithMeta(ctx, th, arithMetaNames[op], a, b)
}

func applyArith(op luacode.OpCode, a, b float64) float64 {
	switch op {
	case luacode.OpAdd:
		return a + b
	case luacode.OpSub:
		return a - b
	case luacode.OpMul:
		return a * b
	case luacode.OpDiv:
		return a / b
	case luacode.OpMod:
		return a - math.Floor(a/b)*b
	case luacode.OpPow:
		return math.Pow(a, b)
	default:
		return math.NaN()
	}
}

func (g *GlobalState) arithMeta(ctx context.Context, th *Thread, name string, a, b Value) (Value, error) {
	if mm := g.getMetamethod(a, name); !mm.IsNil() {
		r, err := th.callValue(ctx, mm, []Value{a, b}, 1, 0)
		if err != nil {
			return Nil, err
		}
		return first(r), nil
	}
	if mm := g.getMetamethod(b, name); !mm.IsNil() {
		r, err := th.callValue(ctx, mm, []Value{a, b}, 1, 0)
		if err != nil {
			return Nil, err
		}
		return first(r), nil
	}
	bad := a
	if _, ok := a.ToNumber(); ok {
		bad = b
	}
	return Nil, th.g.arithError(th.where(), bad)
}

func first(vs []Value) Value {
	if len(vs) == 0 {
		return Nil
	}
	return vs[0]
}

func (g *GlobalState) length(ctx context.Context, th *Thread, v Value) (Value, error) {
	switch v.kind {
	case KindString:
		return NumberValue(float64(len(v.obj.(*String).s))), nil
	case KindTable:
		t := v.obj.(*Table)
		if mm := g.getMetamethod(v, "__len"); !mm.IsNil() {
			r, err := th.callValue(ctx, mm, []Value{v}, 1, 0)
			if err != nil {
				return Nil, err
			}
			return first(r), nil
		}
		return NumberValue(float64(t.Length())), nil
	default:
		return Nil, newRuntimeError(th.where(), "attempt to get length of a %s value", v.TypeName())
	}
}

func (g *GlobalState) concatRange(ctx context.Context, th *Thread, vs []Value) (Value, error) {
	v := vs[len(vs)-1]
	for i := len(vs) - 2; i >= 0; i-- {
		var err error
		v, err = g.concat2(ctx, th, vs[i], v)
		if err != nil {
			return Nil, err
		}
	}
	return v, nil
}

func (g *GlobalState) concat2(ctx context.Context, th *Thread, a, b Value) (Value, error) {
	aok := a.kind == KindString || a.kind == KindNumber
	bok := b.kind == KindString || b.kind == KindNumber
	if aok && bok {
		as, _ := a.ToString()
		bs, _ := b.ToString()
		return g.NewString(as + bs), nil
	}
	if mm := g.getMetamethod(a, "__concat"); !mm.IsNil() {
		r, err := th.callValue(ctx, mm, []Value{a, b}, 1, 0)
		if err != nil {
			return Nil, err
		}
		return first(r), nil
	}
	if mm := g.getMetamethod(b, "__concat"); !mm.IsNil() {
		r, err := th.callValue(ctx, mm, []Value{a, b}, 1, 0)
		if err != nil {
			return Nil, err
		}
		return first(r), nil
	}
	bad := a
	if aok {
		bad = b
	}
	return Nil, newRuntimeError(th.where(), "attempt to concatenate a %s value", bad.TypeName())
}

func (g *GlobalState) compare(ctx context.Context, th *Thread, op luacode.OpCode, a, b Value) (bool, error) {
	switch op {
	case luacode.OpEq:
		if a.RawEqual(b) {
			return true, nil
		}
		if !a.SameType(b) || (a.kind != KindTable && a.kind != KindUserdata) {
			return false, nil
		}
		if mm := g.getMetamethod(a, "__eq"); !mm.IsNil() {
			r, err := th.callValue(ctx, mm, []Value{a, b}, 1, 0)
			if err != nil {
				return false, err
			}
			return first(r).Truthy(), nil
		}
		if mm := g.getMetamethod(b, "__eq"); !mm.IsNil() {
			r, err := th.callValue(ctx, mm, []Value{a, b}, 1, 0)
			if err != nil {
				return false, err
			}
			return first(r).Truthy(), nil
		}
		return false, nil
	case luacode.OpLt, luacode.OpLe:
		if a.kind == KindNumber && b.kind == KindNumber {
			if op == luacode.OpLt {
				return a.n < b.n, nil
			}
			return a.n <= b.n, nil
		}
		if a.kind == KindString && b.kind == KindString {
			if op == luacode.OpLt {
				return a.obj.(*String).s < b.obj.(*String).s, nil
			}
			return a.obj.(*String).s <= b.obj.(*String).s, nil
		}
		name := "__lt"
		if op == luacode.OpLe {
			name = "__le"
		}
		if mm := g.getMetamethod(a, name); !mm.IsNil() {
			r, err := th.callValue(ctx, mm, []Value{a, b}, 1, 0)
			if err != nil {
				return false, err
			}
			return first(r).Truthy(), nil
		}
		if mm := g.getMetamethod(b, name); !mm.IsNil() {
			r, err := th.callValue(ctx, mm, []Value{a, b}, 1, 0)
			if err != nil {
				return false, err
			}
			return first(r).Truthy(), nil
		}
		return false, newRuntimeError(th.where(), "attempt to compare %s with %s", a.TypeName(), b.TypeName())
	default:
		return false, nil
	}
}

// index implements spec §4.6's __index dispatch: a table-or-function
// metamethod chain, bounded by maxMetaDepth the same way __call is.
func (g *GlobalState) index(ctx context.Context, th *Thread, obj, key Value, depth int) (Value, error) {
	if depth > maxMetaDepth {
		return Nil, newRuntimeError(th.where(), "'__index' chain too long; possible loop")
	}
	if obj.kind == KindTable {
		t := obj.obj.(*Table)
		v := t.rawGet(key)
		if !v.IsNil() || t.metatable == nil {
			return v, nil
		}
		idx := t.metatable.rawGetString("__index")
		if idx.IsNil() {
			return Nil, nil
		}
		if idx.IsFunction() {
			r, err := th.callValue(ctx, idx, []Value{obj, key}, 1, 0)
			if err != nil {
				return Nil, err
			}
			return first(r), nil
		}
		return g.index(ctx, th, idx, key, depth+1)
	}
	mm := g.getMetamethod(obj, "__index")
	if mm.IsNil() {
		return Nil, newRuntimeError(th.where(), "attempt to index a %s value", obj.TypeName())
	}
	if mm.IsFunction() {
		r, err := th.callValue(ctx, mm, []Value{obj, key}, 1, 0)
		if err != nil {
			return Nil, err
		}
		return first(r), nil
	}
	return g.index(ctx, th, mm, key, depth+1)
}

// newindex implements spec §4.6's __newindex dispatch, symmetric to
// index.
func (g *GlobalState) newindex(ctx context.Context, th *Thread, obj, key, val Value, depth int) error {
	if depth > maxMetaDepth {
		return newRuntimeError(th.where(), "'__newindex' chain too long; possible loop")
	}
	if obj.kind == KindTable {
		t := obj.obj.(*Table)
		if !t.rawGet(key).IsNil() || t.metatable == nil {
			if err := t.rawSet(key, val); err != nil {
				return newRuntimeError(th.where(), "table index is NaN or nil")
			}
			g.gc.BarrierForward(t, val.heapObject())
			return nil
		}
		ni := t.metatable.rawGetString("__newindex")
		if ni.IsNil() {
			if err := t.rawSet(key, val); err != nil {
				return newRuntimeError(th.where(), "table index is NaN or nil")
			}
			return nil
		}
		if ni.IsFunction() {
			_, err := th.callValue(ctx, ni, []Value{obj, key, val}, 0, 0)
			return err
		}
		return g.newindex(ctx, th, ni, key, val, depth+1)
	}
	mm := g.getMetamethod(obj, "__newindex")
	if mm.IsNil() {
		return newRuntimeError(th.where(), "attempt to index a %s value", obj.TypeName())
	}
	if mm.IsFunction() {
		_, err := th.callValue(ctx, mm, []Value{obj, key, val}, 0, 0)
		return err
	}
	return g.newindex(ctx, th, mm, key, val, depth+1)
}
