// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import "fmt"

// localVar tracks one active local variable: its name and the register it
// occupies for the remainder of its scope.
type localVar struct {
	name string
	reg  uint8
}

// blockInfo tracks one lexical block for break-statement patching and
// repeat/until's visibility of the block's locals in its condition.
type blockInfo struct {
	isLoop     bool
	firstLocal int   // index into funcState.actLocals active on block entry
	breakJumps []int // pc of JMP instructions pending patch to the block's end
}

// funcState accumulates a single [Prototype] during compilation. Nested
// function literals push a new funcState parented to the enclosing one, so
// that closures can resolve names in lexically enclosing scopes into
// upvalues — the same shape as the reference compiler's FuncState chain and
// the mechanism spec.md §4.6 calls "find_or_create_upvalue" on the VM side.
type funcState struct {
	parent *funcState
	proto  *Prototype

	actLocals []localVar
	blocks    []blockInfo
	freeReg   uint8

	upvalIndex map[string]uint8
}

func newFuncState(parent *funcState, source string, line int) *funcState {
	return &funcState{
		parent: parent,
		proto: &Prototype{
			Source:      source,
			LineDefined: line,
		},
		upvalIndex: make(map[string]uint8),
	}
}

func (fs *funcState) emit(instr Instruction, line int) int {
	fs.proto.Code = append(fs.proto.Code, instr)
	fs.proto.Lines = append(fs.proto.Lines, LineInfo{Line: line})
	return len(fs.proto.Code) - 1
}

func (fs *funcState) pc() int { return len(fs.proto.Code) }

func (fs *funcState) patchInstruction(pc int, instr Instruction) {
	fs.proto.Code[pc] = instr
}

// reserveRegs allocates n consecutive registers starting at the current
// free-register mark and returns the first one.
func (fs *funcState) reserveRegs(n int) uint8 {
	r := fs.freeReg
	fs.freeReg += uint8(n)
	if int(fs.freeReg) > int(fs.proto.MaxStackSize) {
		fs.proto.MaxStackSize = fs.freeReg
	}
	return r
}

// freeTo resets the free-register mark, discarding any temporaries above
// the given register (but never below the number of active locals).
func (fs *funcState) freeTo(r uint8) {
	if r < uint8(len(fs.actLocals)) {
		r = uint8(len(fs.actLocals))
	}
	fs.freeReg = r
}

func (fs *funcState) addConstant(c Constant) int {
	for i, existing := range fs.proto.Constants {
		if existing.kind == c.kind && existing.num == c.num && existing.str == c.str {
			return i
		}
	}
	fs.proto.Constants = append(fs.proto.Constants, c)
	return len(fs.proto.Constants) - 1
}

// resolveLocal reports the register holding the innermost active local
// named name, if any.
func (fs *funcState) resolveLocal(name string) (reg uint8, ok bool) {
	for i := len(fs.actLocals) - 1; i >= 0; i-- {
		if fs.actLocals[i].name == name {
			return fs.actLocals[i].reg, true
		}
	}
	return 0, false
}

// resolveUpvalue finds or creates an upvalue descriptor in fs capturing the
// binding named name from an enclosing function, mirroring the VM's
// find_or_create_upvalue (spec.md §4.6, §9) but at compile time: the
// descriptor records where the *running* closure should pull the value
// from, and the VM does the actual register-identity sharing at CLOSURE
// time.
func (fs *funcState) resolveUpvalue(name string) (idx uint8, ok bool) {
	if i, already := fs.upvalIndex[name]; already {
		return i, true
	}
	if fs.parent == nil {
		return 0, false
	}
	if reg, ok := fs.parent.resolveLocal(name); ok {
		i := uint8(len(fs.proto.Upvalues))
		fs.proto.Upvalues = append(fs.proto.Upvalues, UpvalueDescriptor{
			Name: name, Source: UpvalueFromStack, Index: reg,
		})
		fs.upvalIndex[name] = i
		return i, true
	}
	if pidx, ok := fs.parent.resolveUpvalue(name); ok {
		i := uint8(len(fs.proto.Upvalues))
		fs.proto.Upvalues = append(fs.proto.Upvalues, UpvalueDescriptor{
			Name: name, Source: UpvalueFromParent, Index: pidx,
		})
		fs.upvalIndex[name] = i
		return i, true
	}
	return 0, false
}

func (fs *funcState) enterBlock(isLoop bool) {
	fs.blocks = append(fs.blocks, blockInfo{isLoop: isLoop, firstLocal: len(fs.actLocals)})
}

func (fs *funcState) leaveBlock(endPC int) {
	b := fs.blocks[len(fs.blocks)-1]
	fs.blocks = fs.blocks[:len(fs.blocks)-1]
	fs.actLocals = fs.actLocals[:b.firstLocal]
	fs.freeTo(uint8(len(fs.actLocals)))
	for _, jmp := range b.breakJumps {
		fs.patchJump(jmp, endPC)
	}
}

// topBlockFirstLocal returns the register of the first local declared in
// the innermost open block, i.e. the register CLOSE should target when that
// block exits: every upvalue pointing at a register >= this one must be
// closed, since they all go out of scope together. Must be called before
// leaveBlock, while actLocals still holds the block's own locals.
func (fs *funcState) topBlockFirstLocal() uint8 {
	i := fs.blocks[len(fs.blocks)-1].firstLocal
	if i >= len(fs.actLocals) {
		return uint8(i)
	}
	return fs.actLocals[i].reg
}

func (fs *funcState) addBreak(pc int) error {
	for i := len(fs.blocks) - 1; i >= 0; i-- {
		if fs.blocks[i].isLoop {
			fs.blocks[i].breakJumps = append(fs.blocks[i].breakJumps, pc)
			return nil
		}
	}
	return fmt.Errorf("break outside a loop")
}

// innermostLoopFirstLocal returns the register CLOSE should target for a
// break statement jumping out of the nearest enclosing loop.
func (fs *funcState) innermostLoopFirstLocal() (reg uint8, ok bool) {
	for i := len(fs.blocks) - 1; i >= 0; i-- {
		if fs.blocks[i].isLoop {
			idx := fs.blocks[i].firstLocal
			if idx >= len(fs.actLocals) {
				return uint8(idx), true
			}
			return fs.actLocals[idx].reg, true
		}
	}
	return 0, false
}

// patchJump rewrites the JMP instruction at pc so that it jumps to target.
func (fs *funcState) patchJump(pc int, target int) {
	sbx := int32(target - (pc + 1))
	fs.proto.Code[pc] = AsBx(OpJmp, 0, sbx)
}
