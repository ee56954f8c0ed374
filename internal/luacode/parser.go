// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"fmt"

	"lua51.dev/runtime/internal/lualex"
)

// Compile parses and compiles a Lua 5.1 chunk into a top-level [Prototype].
// The returned Prototype is variadic, matching the reference implementation
// treating every chunk as "function(...)". This is the sole entry point the
// rest of the repository uses to turn source text into something the VM
// (package lua) can load; everything else in this file is unexported detail
// of getting there.
func Compile(chunkName string, src []byte) (proto *Prototype, err error) {
	c := &compiler{
		scan:      lualex.NewScanner(chunkName, src),
		chunkName: chunkName,
	}
	if err := c.advance(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(parseError); ok {
				err = error(perr)
				return
			}
			panic(r)
		}
	}()
	c.fs = newFuncState(nil, chunkName, 0)
	c.fs.proto.IsVararg = true
	c.block()
	c.expect(lualex.EOFToken)
	c.fs.emit(ABC(OpReturn, 0, 1, 0), c.tok.Position.Line)
	return c.fs.proto, nil
}

type parseError struct {
	pos lualex.Position
	msg string
}

func (e parseError) Error() string { return fmt.Sprintf("%v: %s", e.pos, e.msg) }

// compiler combines a token stream with the funcState chain (package-level
// type funcState, see funcstate.go) to parse and emit code in one pass, the
// same structure the reference Lua compiler uses (no separate AST stage).
type compiler struct {
	scan      *lualex.Scanner
	tok       lualex.Token
	chunkName string
	fs        *funcState

	hasAhead bool
	ahead    lualex.Token
}

func (c *compiler) advance() error {
	if c.hasAhead {
		c.tok = c.ahead
		c.hasAhead = false
		return nil
	}
	tok, err := c.scan.Scan()
	if err != nil {
		return err
	}
	c.tok = tok
	return nil
}

// peekAhead returns the token following the current one without consuming
// it, caching it so the next advance is free. Only the table constructor's
// "Name =" vs. bare-expression ambiguity needs more than one token of
// lookahead.
func (c *compiler) peekAhead() lualex.Token {
	if !c.hasAhead {
		tok, err := c.scan.Scan()
		if err != nil {
			c.fail("%v", err)
		}
		c.ahead = tok
		c.hasAhead = true
	}
	return c.ahead
}

func (c *compiler) fail(format string, args ...any) {
	panic(parseError{pos: c.tok.Position, msg: fmt.Sprintf(format, args...)})
}

func (c *compiler) check(k lualex.TokenKind) bool { return c.tok.Kind == k }

func (c *compiler) accept(k lualex.TokenKind) bool {
	if c.tok.Kind != k {
		return false
	}
	if err := c.advance(); err != nil {
		c.fail("%v", err)
	}
	return true
}

func (c *compiler) expect(k lualex.TokenKind) lualex.Token {
	if c.tok.Kind != k {
		c.fail("%v expected near %v", k, c.tok)
	}
	tok := c.tok
	if err := c.advance(); err != nil {
		c.fail("%v", err)
	}
	return tok
}

func (c *compiler) expectName() string {
	return c.expect(lualex.IdentifierToken).Value
}

func blockFollow(k lualex.TokenKind) bool {
	switch k {
	case lualex.EOFToken, lualex.EndToken, lualex.ElseToken, lualex.ElseifToken, lualex.UntilToken:
		return true
	default:
		return false
	}
}

// block parses a sequence of statements up to (not including) a
// block-terminating token, per standard Lua grammar.
func (c *compiler) block() {
	for !blockFollow(c.tok.Kind) {
		if c.tok.Kind == lualex.ReturnToken {
			c.returnStatement()
			break
		}
		c.statement()
	}
}

func (c *compiler) statement() {
	line := c.tok.Position.Line
	switch c.tok.Kind {
	case lualex.SemiToken:
		c.advance()
	case lualex.IfToken:
		c.ifStatement()
	case lualex.WhileToken:
		c.whileStatement()
	case lualex.DoToken:
		c.advance()
		c.fs.enterBlock(false)
		c.block()
		c.fs.leaveBlock(c.fs.pc())
		c.expect(lualex.EndToken)
	case lualex.ForToken:
		c.forStatement()
	case lualex.RepeatToken:
		c.repeatStatement()
	case lualex.FunctionToken:
		c.functionStatement()
	case lualex.LocalToken:
		c.advance()
		if c.accept(lualex.FunctionToken) {
			c.localFunctionStatement()
		} else {
			c.localStatement()
		}
	case lualex.BreakToken:
		c.advance()
		if reg, ok := c.fs.innermostLoopFirstLocal(); ok {
			c.fs.emit(ABC(OpClose, reg, 0, 0), line)
		}
		pc := c.fs.emit(AsBx(OpJmp, 0, 0), line)
		if err := c.fs.addBreak(pc); err != nil {
			c.fail("%v", err)
		}
	default:
		c.exprStatement()
	}
}

func (c *compiler) returnStatement() {
	line := c.tok.Position.Line
	c.expect(lualex.ReturnToken)
	base := c.fs.freeReg
	n := 0
	if !blockFollow(c.tok.Kind) && !c.check(lualex.SemiToken) {
		var count int
		var last dest
		base, count, last = c.exprList()
		n = c.finishExprList(base, count, last, -1)
		// "return f(...)" in isolation is a tail call: the whole return
		// list is a single, not-parenthesized call expression. Rewriting
		// the CALL to a TAILCALL lets the VM reuse this frame's register
		// window instead of growing the CallInfo stack for it (spec §4.6).
		if count == 1 && last.kind == destCall {
			instr := c.fs.proto.Code[last.pc]
			c.fs.patchInstruction(last.pc, ABC(OpTailCall, instr.A(), instr.B(), instr.C()))
		}
	}
	c.accept(lualex.SemiToken)
	var b uint16
	if n < 0 {
		b = 0
	} else {
		b = uint16(n + 1)
	}
	c.fs.emit(ABC(OpReturn, base, b, 0), line)
}

func (c *compiler) exprStatement() {
	line := c.tok.Position.Line
	first := c.suffixedExpr()
	if c.check(lualex.AssignToken) || c.check(lualex.CommaToken) {
		c.assignment(first, line)
		return
	}
	if first.kind != destCall {
		c.fail("syntax error near %v", c.tok)
	}
	// A bare call statement: discard its results.
	c.fs.freeTo(first.reg)
}

type assignTarget struct {
	kind targetKind
	reg  uint8 // local register
	// for global/upvalue/indexed targets
	nameConst int // constant index for global name
	isUpval   bool
	upvalIdx  uint8
	tableReg  uint8
	keyRK     uint16
}

type targetKind int

const (
	targetLocal targetKind = iota
	targetUpvalue
	targetGlobal
	targetIndexed
)

func (c *compiler) assignment(first dest, line int) {
	targets := []assignTarget{c.destToTarget(first)}
	for c.accept(lualex.CommaToken) {
		targets = append(targets, c.destToTarget(c.suffixedExpr()))
	}
	c.expect(lualex.AssignToken)
	base, n := c.compileExprListWant(len(targets))
	if n < len(targets) {
		c.fail("internal: assignment produced fewer values than targets")
	}
	for i, t := range targets {
		c.storeTarget(t, base+uint8(i), line)
	}
	c.fs.freeTo(base)
}

func (c *compiler) destToTarget(d dest) assignTarget {
	switch d.kind {
	case destLocal:
		return assignTarget{kind: targetLocal, reg: d.reg}
	case destUpvalue:
		return assignTarget{kind: targetUpvalue, upvalIdx: d.reg}
	case destGlobal:
		return assignTarget{kind: targetGlobal, nameConst: int(d.reg2)}
	case destIndexed:
		return assignTarget{kind: targetIndexed, tableReg: d.reg, keyRK: d.reg2}
	default:
		c.fail("cannot assign to this expression")
		panic("unreachable")
	}
}

func (c *compiler) storeTarget(t assignTarget, valueReg uint8, line int) {
	switch t.kind {
	case targetLocal:
		if t.reg != valueReg {
			c.fs.emit(ABC(OpMove, t.reg, uint16(valueReg), 0), line)
		}
	case targetUpvalue:
		c.fs.emit(ABC(OpSetUpval, valueReg, 0, 0).withB(uint16(t.upvalIdx)), line)
	case targetGlobal:
		c.fs.emit(ABx(OpSetGlobal, valueReg, uint32(t.nameConst)), line)
	case targetIndexed:
		c.fs.emit(ABC(OpSetTable, t.tableReg, t.keyRK, uint16(valueReg)), line)
	}
}

// withB is a tiny helper for opcodes (like SETUPVAL here) where we want to
// keep A as the already-placed argument and set B afterward for readability
// at the call site above.
func (i Instruction) withB(b uint16) Instruction {
	return ABC(i.OpCode(), i.A(), b, i.C())
}

func (c *compiler) ifStatement() {
	var endJumps []int
	c.expect(lualex.IfToken)
	endJumps = append(endJumps, c.ifBranch()...)
	for c.accept(lualex.ElseifToken) {
		endJumps = append(endJumps, c.ifBranch()...)
	}
	if c.accept(lualex.ElseToken) {
		c.fs.enterBlock(false)
		c.block()
		c.fs.leaveBlock(c.fs.pc())
	}
	c.expect(lualex.EndToken)
	end := c.fs.pc()
	for _, j := range endJumps {
		c.fs.patchJump(j, end)
	}
}

// ifBranch compiles "cond then block" and returns the pc of the JMP that
// should be patched to the statement's overall end (skipping later
// branches), after having patched the condition's own false-jump to the
// point right after this branch.
func (c *compiler) ifBranch() []int {
	condLine := c.tok.Position.Line
	condReg := c.discharge1(c.expr(0))
	c.fs.emit(ABC(OpTest, condReg, 0, 0), condLine)
	falseJump := c.fs.emit(AsBx(OpJmp, 0, 0), condLine)
	c.expect(lualex.ThenToken)
	c.fs.enterBlock(false)
	c.block()
	c.fs.leaveBlock(c.fs.pc())
	var out []int
	if !c.check(lualex.EndToken) {
		out = append(out, c.fs.emit(AsBx(OpJmp, 0, 0), c.tok.Position.Line))
	}
	c.fs.patchJump(falseJump, c.fs.pc())
	return out
}

func (c *compiler) whileStatement() {
	line := c.tok.Position.Line
	c.expect(lualex.WhileToken)
	top := c.fs.pc()
	condReg := c.discharge1(c.expr(0))
	c.fs.emit(ABC(OpTest, condReg, 0, 0), line)
	exitJump := c.fs.emit(AsBx(OpJmp, 0, 0), line)
	c.expect(lualex.DoToken)
	c.fs.enterBlock(true)
	c.block()
	c.fs.emit(ABC(OpClose, c.fs.topBlockFirstLocal(), 0, 0), line)
	c.fs.emit(AsBx(OpJmp, 0, int32(top-(c.fs.pc()+1))), line)
	end := c.fs.pc()
	c.fs.leaveBlock(end)
	c.fs.patchJump(exitJump, end)
	c.expect(lualex.EndToken)
}

func (c *compiler) repeatStatement() {
	line := c.tok.Position.Line
	c.expect(lualex.RepeatToken)
	top := c.fs.pc()
	c.fs.enterBlock(true)
	c.block()
	c.expect(lualex.UntilToken)
	condReg := c.discharge1(c.expr(0))
	// The until-condition may reference the block's own locals, so CLOSE
	// must come after evaluating it but before branching either way: both
	// looping back and exiting start the next iteration's (or outer
	// scope's) registers fresh.
	c.fs.emit(ABC(OpClose, c.fs.topBlockFirstLocal(), 0, 0), line)
	c.fs.emit(ABC(OpTest, condReg, 0, 0), line)
	c.fs.emit(AsBx(OpJmp, 0, int32(top-(c.fs.pc()+1))), line)
	c.fs.leaveBlock(c.fs.pc())
}

func (c *compiler) forStatement() {
	line := c.tok.Position.Line
	c.expect(lualex.ForToken)
	name := c.expectName()
	if c.check(lualex.AssignToken) {
		c.numericFor(name, line)
	} else {
		names := []string{name}
		for c.accept(lualex.CommaToken) {
			names = append(names, c.expectName())
		}
		c.genericFor(names, line)
	}
}

func (c *compiler) numericFor(name string, line int) {
	c.expect(lualex.AssignToken)
	base := c.fs.reserveRegs(3) // initial, limit, step (control registers)
	c.compileExprTo(c.expr(0), base)
	c.expect(lualex.CommaToken)
	c.compileExprTo(c.expr(0), base+1)
	if c.accept(lualex.CommaToken) {
		c.compileExprTo(c.expr(0), base+2)
	} else {
		k := c.fs.addConstant(NumberConstant(1))
		c.fs.emit(ABx(OpLoadK, base+2, uint32(k)), line)
	}
	c.expect(lualex.DoToken)
	loopVar := c.fs.reserveRegs(1)
	prepJump := c.fs.emit(AsBx(OpForPrep, base, 0), line)
	c.fs.enterBlock(true)
	c.fs.actLocals = append(c.fs.actLocals, localVar{name: name, reg: loopVar})
	c.block()
	c.expect(lualex.EndToken)
	c.fs.emit(ABC(OpClose, loopVar, 0, 0), line)
	loopPC := c.fs.pc()
	c.fs.emit(AsBx(OpForLoop, base, int32(prepJump+1-(loopPC+1))), line)
	c.fs.patchInstruction(prepJump, AsBx(OpForPrep, base, int32(loopPC-(prepJump+1))))
	c.fs.leaveBlock(c.fs.pc())
}

func (c *compiler) genericFor(names []string, line int) {
	c.expect(lualex.InToken)
	base, _ := c.compileExprListWant(3) // iterator function, state, initial control value
	c.expect(lualex.DoToken)
	firstVar := c.fs.reserveRegs(len(names))
	prepJump := c.fs.emit(AsBx(OpJmp, 0, 0), line)
	c.fs.enterBlock(true)
	for i, n := range names {
		c.fs.actLocals = append(c.fs.actLocals, localVar{name: n, reg: firstVar + uint8(i)})
	}
	c.block()
	c.expect(lualex.EndToken)
	c.fs.emit(ABC(OpClose, firstVar, 0, 0), line)
	c.fs.patchJump(prepJump, c.fs.pc())
	c.fs.emit(ABC(OpTForLoop, base, 0, uint16(len(names))), line)
	c.fs.emit(AsBx(OpJmp, 0, int32(prepJump+1-(c.fs.pc()+1))), line)
	c.fs.leaveBlock(c.fs.pc())
}

func (c *compiler) localStatement() {
	line := c.tok.Position.Line
	var names []string
	names = append(names, c.expectName())
	for c.accept(lualex.CommaToken) {
		names = append(names, c.expectName())
	}
	base := c.fs.freeReg
	if c.accept(lualex.AssignToken) {
		base, _ = c.compileExprListWant(len(names))
	} else {
		c.fs.reserveRegs(len(names))
		c.emitLoadNil(base, len(names), line)
	}
	for i, n := range names {
		c.fs.actLocals = append(c.fs.actLocals, localVar{name: n, reg: base + uint8(i)})
	}
}

func (c *compiler) localFunctionStatement() {
	line := c.tok.Position.Line
	name := c.expectName()
	reg := c.fs.reserveRegs(1)
	c.fs.actLocals = append(c.fs.actLocals, localVar{name: name, reg: reg})
	d := c.functionBody(line, false)
	c.compileExprTo(d, reg)
}

func (c *compiler) functionStatement() {
	line := c.tok.Position.Line
	c.expect(lualex.FunctionToken)
	name := c.expectName()
	base := c.exprFromName(name, line)
	isMethod := false
	for {
		if c.accept(lualex.DotToken) {
			field := c.expectName()
			base = c.indexByName(base, field, line)
		} else if c.accept(lualex.ColonToken) {
			field := c.expectName()
			base = c.indexByName(base, field, line)
			isMethod = true
			break
		} else {
			break
		}
	}
	d := c.functionBody(line, isMethod)
	valueReg := c.discharge1(d)
	t := c.destToTarget(base)
	c.storeTarget(t, valueReg, line)
	c.fs.freeTo(valueReg)
}

// functionBody parses "(params) block end" (the "function" keyword and
// name have already been consumed) and returns a dest describing the
// freshly compiled closure, not yet placed in a register.
func (c *compiler) functionBody(line int, isMethod bool) dest {
	child := newFuncState(c.fs, c.chunkName, line)
	parent := c.fs
	c.fs = child
	if isMethod {
		r := c.fs.reserveRegs(1)
		c.fs.actLocals = append(c.fs.actLocals, localVar{name: "self", reg: r})
	}
	c.expect(lualex.LParenToken)
	if !c.check(lualex.RParenToken) {
		for {
			if c.accept(lualex.VarargToken) {
				c.fs.proto.IsVararg = true
				break
			}
			pname := c.expectName()
			r := c.fs.reserveRegs(1)
			c.fs.actLocals = append(c.fs.actLocals, localVar{name: pname, reg: r})
			c.fs.proto.NumParams++
			if !c.accept(lualex.CommaToken) {
				break
			}
		}
	}
	c.expect(lualex.RParenToken)
	c.block()
	c.fs.emit(ABC(OpReturn, 0, 1, 0), c.tok.Position.Line)
	c.expect(lualex.EndToken)
	proto := c.fs.proto
	parent.proto.Prototypes = append(parent.proto.Prototypes, proto)
	protoIdx := len(parent.proto.Prototypes) - 1
	c.fs = parent
	return dest{kind: destClosure, reg2: uint16(protoIdx)}
}

func (c *compiler) emitLoadNil(base uint8, n int, line ...int) {
	ln := 0
	if len(line) > 0 {
		ln = line[0]
	}
	c.fs.emit(ABC(OpLoadNil, base, uint16(n-1), 0), ln)
}
