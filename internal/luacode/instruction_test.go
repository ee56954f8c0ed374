// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import "testing"

func TestInstructionABC(t *testing.T) {
	tests := []struct {
		op   OpCode
		a    uint8
		b, c uint16
	}{
		{OpMove, 1, 2, 0},
		{OpAdd, 0, RKAsConstant(3), RKAsRegister(4)},
		{OpCall, 5, 2, 1},
		{OpSetList, 0, 0, 3},
	}
	for _, test := range tests {
		instr := ABC(test.op, test.a, test.b, test.c)
		if got := instr.OpCode(); got != test.op {
			t.Errorf("ABC(%v, %d, %d, %d).OpCode() = %v, want %v", test.op, test.a, test.b, test.c, got, test.op)
		}
		if got := instr.A(); got != test.a {
			t.Errorf("ABC(%v, %d, %d, %d).A() = %d, want %d", test.op, test.a, test.b, test.c, got, test.a)
		}
		if got := instr.B(); got != test.b {
			t.Errorf("ABC(%v, %d, %d, %d).B() = %d, want %d", test.op, test.a, test.b, test.c, got, test.b)
		}
		if got := instr.C(); got != test.c {
			t.Errorf("ABC(%v, %d, %d, %d).C() = %d, want %d", test.op, test.a, test.b, test.c, got, test.c)
		}
	}
}

func TestInstructionAsBx(t *testing.T) {
	tests := []int32{0, 1, -1, 100, -100, 1 << 16, -(1 << 16)}
	for _, sbx := range tests {
		instr := AsBx(OpJmp, 0, sbx)
		if got := instr.SBx(); got != sbx {
			t.Errorf("AsBx(OpJmp, 0, %d).SBx() = %d, want %d", sbx, got, sbx)
		}
	}
}

func TestRKRoundTrip(t *testing.T) {
	for i := 0; i < 10; i++ {
		rk := RKAsConstant(i)
		if !IsConstant(rk) {
			t.Errorf("IsConstant(RKAsConstant(%d)) = false, want true", i)
		}
		if got := ConstantIndex(rk); got != i {
			t.Errorf("ConstantIndex(RKAsConstant(%d)) = %d, want %d", i, got, i)
		}
	}
	for r := uint8(0); r < 10; r++ {
		rk := RKAsRegister(r)
		if IsConstant(rk) {
			t.Errorf("IsConstant(RKAsRegister(%d)) = true, want false", r)
		}
	}
}
