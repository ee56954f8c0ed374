// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import "lua51.dev/runtime/internal/lualex"

// setListBatch is the largest run of array-part items flushed by a single
// SETLIST, matching the reference implementation's LFIELDS_PER_FLUSH so
// constructors with very long array parts don't need an unbounded number of
// live registers above the table.
const setListBatch = 50

// tableConstructor parses "{ [field {sep field}] [sep] }" (the opening "{"
// has not yet been consumed) and leaves the freshly built table in a
// register it reserves itself, at whatever the free-register mark was on
// entry — callers rely on that (see simpleExpr and compileArgs).
//
// Every array-part item is materialized to exactly one value, including the
// last; a trailing call or "..." is truncated to its first result rather
// than expanding, unlike the reference implementation's constructors.
func (c *compiler) tableConstructor() {
	line := c.tok.Position.Line
	t := c.fs.reserveRegs(1)
	newTablePC := c.fs.emit(ABC(OpNewTable, t, 0, 0), line)
	c.expect(lualex.LBraceToken)

	arrayCount := 0
	hashCount := 0
	pending := 0 // array items reserved above t but not yet flushed via SETLIST
	batch := 0
	flush := func() {
		if pending == 0 {
			return
		}
		batch++
		c.fs.emit(ABC(OpSetList, t, uint16(pending+1), uint16(batch)), line)
		c.fs.freeTo(t + 1)
		pending = 0
	}

	for !c.check(lualex.RBraceToken) {
		switch {
		case c.check(lualex.LBracketToken):
			c.advance()
			key := c.expr(0)
			c.expect(lualex.RBracketToken)
			c.expect(lualex.AssignToken)
			val := c.expr(0)
			c.fs.emit(ABC(OpSetTable, t, c.valueRK(key), c.valueRK(val)), line)
			hashCount++
		case c.check(lualex.IdentifierToken) && c.peekAhead().Kind == lualex.AssignToken:
			name := c.tok.Value
			c.advance()
			c.advance() // consume '='
			k := c.fs.addConstant(StringConstant(name))
			val := c.expr(0)
			c.fs.emit(ABC(OpSetTable, t, RKAsConstant(k), c.valueRK(val)), line)
			hashCount++
		default:
			d := c.expr(0)
			r := c.fs.reserveRegs(1)
			c.compileExprTo(d, r)
			arrayCount++
			pending++
			if pending >= setListBatch {
				flush()
			}
		}
		if !c.accept(lualex.CommaToken) && !c.accept(lualex.SemiToken) {
			break
		}
	}
	c.expect(lualex.RBraceToken)
	flush()
	c.fs.patchInstruction(newTablePC, ABC(OpNewTable, t, uint16(arrayCount), uint16(hashCount)))
	c.fs.freeTo(t + 1)
}
