// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"strings"
	"testing"
)

func TestStringLibrary(t *testing.T) {
	g := runLua(t, `
		len_result = string.len("hello")
		sub_result = string.sub("hello world", 1, 5)
		upper_result = string.upper("abc")
		rep_result = string.rep("ab", 3)
		format_result = string.format("%d-%s", 7, "x")
		byte_result = string.byte("A")
		char_result = string.char(65, 66)
	`)
	checks := []struct {
		name string
		v    Value
		want string
	}{
		{"upper_result", g.GetGlobal("upper_result"), "ABC"},
		{"rep_result", g.GetGlobal("rep_result"), "ababab"},
		{"format_result", g.GetGlobal("format_result"), "7-x"},
		{"char_result", g.GetGlobal("char_result"), "AB"},
		{"sub_result", g.GetGlobal("sub_result"), "hello"},
	}
	for _, c := range checks {
		if got := c.v.AsString(); got != c.want {
			t.Errorf("%s = %q, want %q", c.name, got, c.want)
		}
	}
	if got := g.GetGlobal("len_result").AsNumber(); got != 5 {
		t.Errorf("len_result = %v, want 5", got)
	}
	if got := g.GetGlobal("byte_result").AsNumber(); got != 65 {
		t.Errorf("byte_result = %v, want 65", got)
	}
}

func TestMathLibrary(t *testing.T) {
	g := runLua(t, `
		floor_result = math.floor(3.7)
		ceil_result = math.ceil(3.2)
		abs_result = math.abs(-5)
		sqrt_result = math.sqrt(16)
		max_result = math.max(1, 9, 3)
		min_result = math.min(1, 9, 3)
	`)
	tests := []struct {
		name string
		want float64
	}{
		{"floor_result", 3},
		{"ceil_result", 4},
		{"abs_result", 5},
		{"sqrt_result", 4},
		{"max_result", 9},
		{"min_result", 1},
	}
	for _, test := range tests {
		if got := g.GetGlobal(test.name).AsNumber(); got != test.want {
			t.Errorf("%s = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestDebugTracebackMentionsThreadID(t *testing.T) {
	g := runLua(t, `result = debug.traceback("boom")`)
	got := g.GetGlobal("result").AsString()
	if !strings.HasPrefix(got, "thread ") || !strings.HasSuffix(got, "boom") {
		t.Errorf("debug.traceback result = %q, want prefix %q and suffix %q", got, "thread ", "boom")
	}
}

func TestPackageLibraryExposesLoadedTable(t *testing.T) {
	g := runLua(t, `result = type(package.loaded)`)
	if got := g.GetGlobal("result").AsString(); got != "table" {
		t.Errorf("type(package.loaded) = %q, want %q", got, "table")
	}
}
