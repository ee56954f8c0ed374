// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"lua51.dev/runtime/internal/lualex"
)

// destKind enumerates the shapes an expression can be in immediately after
// parsing, before it has necessarily been placed into a specific register.
// This mirrors (in simplified form) the reference compiler's "expdesc":
// deferring the decision of exactly which instruction finally materializes
// a value lets the compiler fold constants into RK operands and lets calls
// and "..." stay "open" (multi-result) until their context (an explist
// tail) is known.
type destKind int

const (
	destConstantNil destKind = iota
	destConstantBool
	destConstantNumber
	destConstantString
	destLocal
	destUpvalue
	destGlobal
	destIndexed
	destCall
	destVararg
	destClosure
	destRegister // a value already sitting in register `reg`
)

type dest struct {
	kind destKind
	reg  uint8  // meaning depends on kind: local reg / table reg / call-or-vararg base reg / register holding value / upvalue index
	reg2 uint16 // global name const index / indexed RK key / prototype index
	pc   int    // pc of the CALL or VARARG instruction, for destCall/destVararg
	num  float64
	str  string
	b    bool
}

// exprFromName resolves a bare identifier to a local, upvalue, or global
// reference, in that priority order — standard Lua scoping.
func (c *compiler) exprFromName(name string, line int) dest {
	if reg, ok := c.fs.resolveLocal(name); ok {
		return dest{kind: destLocal, reg: reg}
	}
	if idx, ok := c.fs.resolveUpvalue(name); ok {
		return dest{kind: destUpvalue, reg: idx}
	}
	k := c.fs.addConstant(StringConstant(name))
	return dest{kind: destGlobal, reg2: uint16(k)}
}

func (c *compiler) indexByName(base dest, field string, line int) dest {
	baseReg := c.discharge1(base)
	k := c.fs.addConstant(StringConstant(field))
	return dest{kind: destIndexed, reg: baseReg, reg2: RKAsConstant(k)}
}

func (c *compiler) indexByExpr(base dest, key dest, line int) dest {
	baseReg := c.discharge1(base)
	keyRK := c.valueRK(key)
	return dest{kind: destIndexed, reg: baseReg, reg2: keyRK}
}

// valueRK returns an RK-encoded operand for d: a constant-pool reference
// for literal numbers/strings, or a register holding the materialized
// value for anything else.
func (c *compiler) valueRK(d dest) uint16 {
	switch d.kind {
	case destConstantNumber:
		return RKAsConstant(c.fs.addConstant(NumberConstant(d.num)))
	case destConstantString:
		return RKAsConstant(c.fs.addConstant(StringConstant(d.str)))
	default:
		return RKAsRegister(c.discharge1(d))
	}
}

// compileExprTo emits whatever code is necessary so that d's value ends up
// in register target.
func (c *compiler) compileExprTo(d dest, target uint8) {
	line := c.tok.Position.Line
	switch d.kind {
	case destConstantNil:
		c.fs.emit(ABC(OpLoadNil, target, 0, 0), line)
	case destConstantBool:
		v := uint16(0)
		if d.b {
			v = 1
		}
		c.fs.emit(ABC(OpLoadBool, target, v, 0), line)
	case destConstantNumber:
		k := c.fs.addConstant(NumberConstant(d.num))
		c.fs.emit(ABx(OpLoadK, target, uint32(k)), line)
	case destConstantString:
		k := c.fs.addConstant(StringConstant(d.str))
		c.fs.emit(ABx(OpLoadK, target, uint32(k)), line)
	case destLocal:
		if d.reg != target {
			c.fs.emit(ABC(OpMove, target, uint16(d.reg), 0), line)
		}
	case destUpvalue:
		c.fs.emit(ABC(OpGetUpval, target, uint16(d.reg), 0), line)
	case destGlobal:
		c.fs.emit(ABx(OpGetGlobal, target, uint32(d.reg2)), line)
	case destIndexed:
		c.fs.emit(ABC(OpGetTable, target, uint16(d.reg), d.reg2), line)
	case destRegister:
		if d.reg != target {
			c.fs.emit(ABC(OpMove, target, uint16(d.reg), 0), line)
		}
	case destCall:
		c.fs.patchInstruction(d.pc, withC(c.fs.proto.Code[d.pc], 2))
		if d.reg != target {
			c.fs.emit(ABC(OpMove, target, uint16(d.reg), 0), line)
		}
	case destVararg:
		c.fs.patchInstruction(d.pc, withB(c.fs.proto.Code[d.pc], 2))
		if d.reg != target {
			c.fs.emit(ABC(OpMove, target, uint16(d.reg), 0), line)
		}
	case destClosure:
		c.fs.emit(ABx(OpClosure, target, uint32(d.reg2)), line)
	}
}

func withB(i Instruction, b uint16) Instruction { return ABC(i.OpCode(), i.A(), b, i.C()) }
func withC(i Instruction, cc uint16) Instruction { return ABC(i.OpCode(), i.A(), i.B(), cc) }

// discharge1 returns a register holding d's value: a local's own register,
// or else a freshly reserved one that d is materialized into, forcing a
// call or "..." to exactly one result.
func (c *compiler) discharge1(d dest) uint8 {
	if d.kind == destLocal {
		return d.reg
	}
	r := c.fs.reserveRegs(1)
	c.compileExprTo(d, r)
	return r
}

// exprList parses a comma-separated expression list, materializing every
// expression but the last into consecutive fresh registers starting at the
// returned base. The last expression is left un-materialized (its dest is
// returned) so the caller can decide, from context, how many results it
// should expand to.
func (c *compiler) exprList() (base uint8, count int, last dest) {
	base = c.fs.freeReg
	for {
		d := c.expr(0)
		count++
		if !c.accept(lualex.CommaToken) {
			last = d
			return base, count, last
		}
		r := base + uint8(count-1)
		c.compileExprTo(d, r)
		c.fs.freeTo(r)
		c.fs.reserveRegs(1)
	}
}

// finishExprList materializes the deferred last expression from an
// exprList call, expanding it to fill out to want total values when it is
// a call or "..." and want is known, padding with nil or leaving the
// instruction open (want < 0, meaning "as many as available") otherwise.
// It returns the number of values now occupying consecutive registers from
// base, or -1 if that count is only known at run time.
func (c *compiler) finishExprList(base uint8, count int, last dest, want int) int {
	lastReg := base + uint8(count-1)
	for c.fs.freeReg <= lastReg {
		c.fs.reserveRegs(1)
	}
	switch last.kind {
	case destCall, destVararg:
		if want < 0 {
			if last.kind == destCall {
				c.fs.patchInstruction(last.pc, withC(c.fs.proto.Code[last.pc], 0))
			} else {
				c.fs.patchInstruction(last.pc, withB(c.fs.proto.Code[last.pc], 0))
			}
			if last.reg != lastReg {
				c.compileExprTo(dest{kind: destRegister, reg: last.reg}, lastReg)
			}
			return -1
		}
		extra := want - (count - 1)
		if extra < 1 {
			extra = 1
		}
		if last.kind == destCall {
			c.fs.patchInstruction(last.pc, withC(c.fs.proto.Code[last.pc], uint16(extra+1)))
		} else {
			c.fs.patchInstruction(last.pc, withB(c.fs.proto.Code[last.pc], uint16(extra+1)))
		}
		for i := 1; i < extra; i++ {
			c.fs.reserveRegs(1)
		}
		produced := count - 1 + extra
		if want >= 0 && produced < want {
			pad := want - produced
			c.emitLoadNil(lastReg+uint8(extra), pad)
			c.fs.reserveRegs(pad)
			produced = want
		}
		return produced
	default:
		c.compileExprTo(last, lastReg)
		produced := count
		if want >= 0 && produced < want {
			pad := want - produced
			c.emitLoadNil(lastReg+1, pad)
			c.fs.reserveRegs(pad)
			produced = want
		}
		return produced
	}
}

// compileExprListWant is the common case: parse a list and immediately
// resolve it to exactly `want` values (want < 0 means "whatever's there").
func (c *compiler) compileExprListWant(want int) (base uint8, produced int) {
	base, count, last := c.exprList()
	produced = c.finishExprList(base, count, last, want)
	return base, produced
}

