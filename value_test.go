// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import "testing"

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"Nil", Nil, false},
		{"False", BoolValue(false), false},
		{"True", BoolValue(true), true},
		{"ZeroNumber", NumberValue(0), true},
		{"EmptyString", StringValue(""), true},
	}
	for _, test := range tests {
		if got := test.v.Truthy(); got != test.want {
			t.Errorf("%s.Truthy() = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestRawEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"NilNil", Nil, Nil, true},
		{"SameNumber", NumberValue(1), NumberValue(1), true},
		{"DifferentNumber", NumberValue(1), NumberValue(2), false},
		{"SameStringContent", StringValue("a"), StringValue("a"), true},
		{"DifferentKind", NumberValue(0), BoolValue(false), false},
		{"TrueTrue", BoolValue(true), BoolValue(true), true},
	}
	for _, test := range tests {
		if got := test.a.RawEqual(test.b); got != test.want {
			t.Errorf("%s: RawEqual() = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestToNumber(t *testing.T) {
	g := NewGlobalState(Options{})
	tests := []struct {
		name string
		v    Value
		want float64
		ok   bool
	}{
		{"Number", NumberValue(3.5), 3.5, true},
		{"DecimalString", StringValue("42"), 42, true},
		{"HexString", StringValue("0x1A"), 26, true},
		{"NegativeString", StringValue("-5"), -5, true},
		{"Whitespace", StringValue("  7  "), 7, true},
		{"NotANumber", StringValue("abc"), 0, false},
		{"Table", tableValue(g.NewTable()), 0, false},
	}
	for _, test := range tests {
		got, ok := test.v.ToNumber()
		if ok != test.ok || (ok && got != test.want) {
			t.Errorf("%s: ToNumber() = (%v, %v), want (%v, %v)", test.name, got, ok, test.want, test.ok)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    float64
		want string
	}{
		{3, "3"},
		{3.5, "3.5"},
		{0, "0"},
		{-2, "-2"},
	}
	for _, test := range tests {
		if got := formatNumber(test.n); got != test.want {
			t.Errorf("formatNumber(%v) = %q, want %q", test.n, got, test.want)
		}
	}
}

func TestSameType(t *testing.T) {
	if !NumberValue(1).SameType(NumberValue(2)) {
		t.Error("SameType(number, number) = false, want true")
	}
	if NumberValue(1).SameType(StringValue("1")) {
		t.Error("SameType(number, string) = true, want false")
	}
}
