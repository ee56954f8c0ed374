// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import "testing"

func TestCompileSmoke(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"Empty", ""},
		{"LocalAssign", "local x = 1"},
		{"Arithmetic", "local x = 1 + 2 * 3"},
		{"IfElse", "if true then return 1 else return 2 end"},
		{"NumericFor", "local s = 0\nfor i = 1, 10 do s = s + i end"},
		{"GenericFor", "for k, v in pairs({}) do end"},
		{"WhileLoop", "local i = 0\nwhile i < 10 do i = i + 1 end"},
		{"FunctionDef", "local function f(a, b) return a + b end\nreturn f(1, 2)"},
		{"TableConstructor", "local t = {1, 2, 3, x = 4}"},
		{"Closure", "local function counter()\n  local n = 0\n  return function() n = n + 1; return n end\nend"},
		{"Varargs", "local function f(...) return ... end"},
		{"MethodCall", "local t = {}\nfunction t:m() return self end\nt:m()"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			proto, err := Compile(test.name, []byte(test.src))
			if err != nil {
				t.Fatalf("Compile(%q) error: %v", test.src, err)
			}
			if proto == nil {
				t.Fatalf("Compile(%q) returned nil prototype", test.src)
			}
			if len(proto.Code) == 0 {
				t.Errorf("Compile(%q) produced no instructions", test.src)
			}
		})
	}
}

func TestCompileSyntaxError(t *testing.T) {
	tests := []string{
		"local x = ",
		"if true then",
		"function (",
	}
	for _, src := range tests {
		if _, err := Compile("syntax", []byte(src)); err == nil {
			t.Errorf("Compile(%q) succeeded, want syntax error", src)
		}
	}
}
