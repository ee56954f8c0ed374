// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"strconv"
	"strings"

	"lua51.dev/runtime/internal/lualex"
)

// primaryExpr parses "Name | '(' expr ')'" and any following suffixes.
func (c *compiler) primaryExpr() dest {
	line := c.tok.Position.Line
	switch c.tok.Kind {
	case lualex.IdentifierToken:
		name := c.tok.Value
		c.advance()
		return c.exprFromName(name, line)
	case lualex.LParenToken:
		c.advance()
		d := c.expr(0)
		c.expect(lualex.RParenToken)
		// Parenthesizing truncates a multi-value expression to one value.
		if d.kind == destCall || d.kind == destVararg {
			r := c.discharge1(d)
			return dest{kind: destRegister, reg: r}
		}
		return d
	default:
		c.fail("unexpected symbol near %v", c.tok)
		panic("unreachable")
	}
}

// suffixedExpr parses a primaryExpr followed by any chain of "." / "[]" /
// ":" method-call / call suffixes.
func (c *compiler) suffixedExpr() dest {
	d := c.primaryExpr()
	for {
		line := c.tok.Position.Line
		switch c.tok.Kind {
		case lualex.DotToken:
			c.advance()
			d = c.indexByName(d, c.expectName(), line)
		case lualex.LBracketToken:
			c.advance()
			key := c.expr(0)
			c.expect(lualex.RBracketToken)
			d = c.indexByExpr(d, key, line)
		case lualex.ColonToken:
			c.advance()
			method := c.expectName()
			d = c.methodCall(d, method, line)
		case lualex.LParenToken, lualex.StringToken, lualex.LBraceToken:
			d = c.call(d, line)
		default:
			return d
		}
	}
}

// call compiles a non-method call "f(args)".
func (c *compiler) call(fn dest, line int) dest {
	var fnReg uint8
	switch {
	case fn.kind == destIndexed && (len(c.fs.actLocals) == 0 || fn.reg > c.fs.actLocals[len(c.fs.actLocals)-1].reg):
		// The table sits in a temporary register: load the function over it.
		c.fs.freeTo(fn.reg)
		fnReg = c.fs.reserveRegs(1)
		c.compileExprTo(fn, fnReg)
	case fn.kind == destLocal:
		// CALL writes results over fnReg, so a local's own register is not used.
		fnReg = c.fs.reserveRegs(1)
		c.compileExprTo(fn, fnReg)
	default:
		fnReg = c.discharge1(fn)
	}
	_, n := c.compileArgs()
	var nargs uint16
	if n < 0 {
		nargs = 0
	} else {
		nargs = uint16(n + 1)
	}
	pc := c.fs.emit(ABC(OpCall, fnReg, nargs, 2), line)
	c.fs.freeTo(fnReg + 1)
	return dest{kind: destCall, reg: fnReg, pc: pc}
}

// methodCall compiles "obj:method(args)" using SELF to fetch both the
// method function and obj (as the implicit first argument) in one step,
// per spec.md's opcode table ("SELF (for t:m sugar)").
func (c *compiler) methodCall(obj dest, method string, line int) dest {
	objReg := c.discharge1(obj)
	selfBase := c.fs.reserveRegs(2)
	k := c.fs.addConstant(StringConstant(method))
	c.fs.emit(ABC(OpSelf, selfBase, uint16(objReg), RKAsConstant(k)), line)
	c.fs.freeTo(selfBase + 2)
	_, n := c.compileArgs()
	var nargs uint16
	if n < 0 {
		nargs = 0
	} else {
		nargs = uint16(n + 2) // +1 for self, +1 for the count-encoding bias
	}
	pc := c.fs.emit(ABC(OpCall, selfBase, nargs, 2), line)
	c.fs.freeTo(selfBase + 1)
	return dest{kind: destCall, reg: selfBase, pc: pc}
}

// compileArgs parses a call's argument list ("(explist)", a single string
// literal, or a table constructor) immediately above the current free
// register (where the callee, and for methods "self", already sit) and
// returns how many values ended up there (-1 if only known at run time).
func (c *compiler) compileArgs() (base uint8, n int) {
	line := c.tok.Position.Line
	switch c.tok.Kind {
	case lualex.LParenToken:
		c.advance()
		if c.check(lualex.RParenToken) {
			c.advance()
			return c.fs.freeReg, 0
		}
		base, n := c.compileExprListWant(-1)
		c.expect(lualex.RParenToken)
		return base, n
	case lualex.StringToken:
		r := c.fs.reserveRegs(1)
		k := c.fs.addConstant(StringConstant(c.tok.Value))
		c.fs.emit(ABx(OpLoadK, r, uint32(k)), line)
		c.advance()
		return r, 1
	case lualex.LBraceToken:
		r := c.fs.freeReg
		c.tableConstructor()
		return r, 1
	default:
		c.fail("function arguments expected near %v", c.tok)
		panic("unreachable")
	}
}

// simpleExpr parses literals, table/function constructors, "...", and
// suffixed expressions — everything at tighter precedence than any binary
// operator.
func (c *compiler) simpleExpr() dest {
	line := c.tok.Position.Line
	switch c.tok.Kind {
	case lualex.NumeralToken:
		n := parseNumeral(c.tok.Value)
		c.advance()
		return dest{kind: destConstantNumber, num: n}
	case lualex.StringToken:
		s := c.tok.Value
		c.advance()
		return dest{kind: destConstantString, str: s}
	case lualex.NilToken:
		c.advance()
		return dest{kind: destConstantNil}
	case lualex.TrueToken:
		c.advance()
		return dest{kind: destConstantBool, b: true}
	case lualex.FalseToken:
		c.advance()
		return dest{kind: destConstantBool, b: false}
	case lualex.VarargToken:
		c.advance()
		if !c.fs.proto.IsVararg {
			c.fail("cannot use '...' outside a vararg function")
		}
		r := c.fs.reserveRegs(1)
		pc := c.fs.emit(ABC(OpVararg, r, 2, 0), line)
		return dest{kind: destVararg, reg: r, pc: pc}
	case lualex.LBraceToken:
		r := c.fs.freeReg
		c.tableConstructor()
		return dest{kind: destRegister, reg: r}
	case lualex.FunctionToken:
		c.advance()
		return c.functionBody(line, false)
	default:
		return c.suffixedExpr()
	}
}

func parseNumeral(s string) float64 {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			uv, _ := strconv.ParseUint(s[2:], 16, 64)
			return float64(uv)
		}
		return float64(v)
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// unaryOps/binary precedence, matching the reference Lua 5.1 grammar: "or"
// binds loosest, "^" tightest (and is right-associative, unlike every other
// binary operator), unary operators bind tighter than every binary operator
// except "^".
type binOp struct {
	left, right int // precedence; right < left means right-associative
	op          OpCode
	isConcat    bool
	isCompare   bool
	swapForLT   bool // true if this is ">" or ">=", compiled as LT/LE with operands swapped
	wantTrue    bool // EQ/LT/LE's expected-boolean operand
}

var binOps = map[lualex.TokenKind]binOp{
	lualex.OrToken:            {1, 1, 0, false, false, false, false},
	lualex.AndToken:           {2, 2, 0, false, false, false, false},
	lualex.LessToken:          {3, 3, OpLt, false, true, false, true},
	lualex.GreaterToken:       {3, 3, OpLt, false, true, true, true},
	lualex.LessEqualToken:     {3, 3, OpLe, false, true, false, true},
	lualex.GreaterEqualToken:  {3, 3, OpLe, false, true, true, true},
	lualex.NotEqualToken:      {3, 3, OpEq, false, true, false, false},
	lualex.EqualToken:         {3, 3, OpEq, false, true, false, true},
	lualex.ConcatToken:        {5, 4, 0, true, false, false, false}, // right-assoc
	lualex.AddToken:           {6, 6, OpAdd, false, false, false, false},
	lualex.SubToken:           {6, 6, OpSub, false, false, false, false},
	lualex.MulToken:           {7, 7, OpMul, false, false, false, false},
	lualex.DivToken:           {7, 7, OpDiv, false, false, false, false},
	lualex.ModToken:           {7, 7, OpMod, false, false, false, false},
	lualex.PowToken:           {10, 9, OpPow, false, false, false, false}, // right-assoc
}

const unaryPrecedence = 8

// expr parses a (sub)expression whose binary operators all bind tighter
// than limit, implementing standard precedence climbing.
func (c *compiler) expr(limit int) dest {
	var left dest
	line := c.tok.Position.Line
	switch c.tok.Kind {
	case lualex.NotToken, lualex.SubToken, lualex.LenToken:
		op := c.tok.Kind
		c.advance()
		operand := c.expr(unaryPrecedence)
		left = c.emitUnary(op, operand, line)
	default:
		left = c.simpleExpr()
	}
	for {
		info, ok := binOps[c.tok.Kind]
		if !ok || info.left <= limit {
			return left
		}
		op := c.tok.Kind
		opLine := c.tok.Position.Line
		c.advance()
		switch op {
		case lualex.AndToken:
			left = c.compileAnd(left, opLine)
		case lualex.OrToken:
			left = c.compileOr(left, opLine)
		default:
			right := c.expr(info.right)
			left = c.emitBinary(info, left, right, opLine)
		}
	}
}

func (c *compiler) emitUnary(op lualex.TokenKind, d dest, line int) dest {
	r := c.discharge1(d)
	if d.kind != destLocal {
		c.fs.freeTo(r)
	}
	target := c.fs.reserveRegs(1)
	switch op {
	case lualex.NotToken:
		c.fs.emit(ABC(OpNot, target, uint16(r), 0), line)
	case lualex.SubToken:
		c.fs.emit(ABC(OpUnm, target, uint16(r), 0), line)
	case lualex.LenToken:
		c.fs.emit(ABC(OpLen, target, uint16(r), 0), line)
	}
	return dest{kind: destRegister, reg: target}
}

func (c *compiler) emitBinary(info binOp, left, right dest, line int) dest {
	if info.isConcat {
		return c.emitConcat(left, right, line)
	}
	lrk := c.valueRK(left)
	rrk := c.valueRK(right)
	target := c.fs.reserveRegs(1)
	if info.isCompare {
		a, b := lrk, rrk
		if info.swapForLT {
			a, b = b, a
		}
		want := uint16(0)
		if info.wantTrue {
			want = 1
		}
		c.fs.emit(ABC(info.op, 0, a, b).withA(want), line)
		c.fs.emit(AsBx(OpJmp, 0, 1), line)
		c.fs.emit(ABC(OpLoadBool, target, 0, 1), line)
		c.fs.emit(ABC(OpLoadBool, target, 1, 0), line)
		return dest{kind: destRegister, reg: target}
	}
	c.fs.emit(ABC(info.op, target, lrk, rrk), line)
	return dest{kind: destRegister, reg: target}
}

func (i Instruction) withA(a uint16) Instruction { return ABC(i.OpCode(), uint8(a), i.B(), i.C()) }

// emitConcat copies left and right into two freshly reserved consecutive
// registers and emits one CONCAT over that two-register range. Since
// expr() recurses to the right for the right-associative ".." operator, a
// chain of n concatenations compiles to n CONCAT instructions, the
// rightmost first.
func (c *compiler) emitConcat(left, right dest, line int) dest {
	lr := c.fs.reserveRegs(1)
	c.compileExprTo(left, lr)
	rr := c.fs.reserveRegs(1)
	c.compileExprTo(right, rr)
	c.fs.freeTo(lr)
	target := c.fs.reserveRegs(1)
	c.fs.emit(ABC(OpConcat, target, uint16(lr), uint16(rr)), line)
	return dest{kind: destRegister, reg: target}
}

// andOrTarget discharges d and returns a register safe to overwrite with
// the "and"/"or" expression's eventual result: d's own register if it's
// already a disposable temporary, or a fresh copy if d is a named local
// still in scope (registers below the active-local count), since the
// short-circuit result is written back into this register once the right
// operand is evaluated.
func (c *compiler) andOrTarget(d dest, line int) uint8 {
	r := c.discharge1(d)
	if r < uint8(len(c.fs.actLocals)) {
		fresh := c.fs.reserveRegs(1)
		c.fs.emit(ABC(OpMove, fresh, uint16(r), 0), line)
		return fresh
	}
	c.fs.freeTo(r)
	return r
}

func (c *compiler) compileAnd(left dest, line int) dest {
	target := c.andOrTarget(left, line)
	c.fs.emit(ABC(OpTest, target, 0, 0), line)
	jmp := c.fs.emit(AsBx(OpJmp, 0, 0), line)
	right := c.expr(2)
	c.compileExprTo(right, target)
	c.fs.patchJump(jmp, c.fs.pc())
	return dest{kind: destRegister, reg: target}
}

func (c *compiler) compileOr(left dest, line int) dest {
	target := c.andOrTarget(left, line)
	c.fs.emit(ABC(OpTest, target, 0, 1), line)
	jmp := c.fs.emit(AsBx(OpJmp, 0, 0), line)
	right := c.expr(1)
	c.compileExprTo(right, target)
	c.fs.patchJump(jmp, c.fs.pc())
	return dest{kind: destRegister, reg: target}
}
