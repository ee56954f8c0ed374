// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"testing"
)

func runLua(t *testing.T, src string) *GlobalState {
	t.Helper()
	g := NewGlobalState(Options{})
	g.OpenLibs()
	if _, err := g.DoString(context.Background(), []byte(src), t.Name()); err != nil {
		t.Fatalf("DoString(%q): %v", src, err)
	}
	return g
}

func TestArithmetic(t *testing.T) {
	g := runLua(t, `result = 1 + 2 * 3 - 4 / 2`)
	got := g.GetGlobal("result")
	if got.AsNumber() != 5 {
		t.Errorf("result = %v, want 5", got.AsNumber())
	}
}

func TestStringConcat(t *testing.T) {
	g := runLua(t, `result = "foo" .. "bar" .. 1`)
	got := g.GetGlobal("result")
	if got.AsString() != "foobar1" {
		t.Errorf("result = %q, want %q", got.AsString(), "foobar1")
	}
}

func TestIfElse(t *testing.T) {
	g := runLua(t, `
		if 1 > 2 then
			result = "no"
		else
			result = "yes"
		end
	`)
	if got := g.GetGlobal("result").AsString(); got != "yes" {
		t.Errorf("result = %q, want %q", got, "yes")
	}
}

func TestNumericForAccumulates(t *testing.T) {
	g := runLua(t, `
		local s = 0
		for i = 1, 10 do
			s = s + i
		end
		result = s
	`)
	if got := g.GetGlobal("result").AsNumber(); got != 55 {
		t.Errorf("result = %v, want 55", got)
	}
}

func TestClosureCapturesUpvalue(t *testing.T) {
	g := runLua(t, `
		local function counter()
			local n = 0
			return function()
				n = n + 1
				return n
			end
		end
		local c = counter()
		result = c() + c() + c()
	`)
	if got := g.GetGlobal("result").AsNumber(); got != 6 {
		t.Errorf("result = %v, want 6", got)
	}
}

func TestMultipleReturnValues(t *testing.T) {
	g := runLua(t, `
		local function pair()
			return 1, 2
		end
		local a, b = pair()
		result = a + b
	`)
	if got := g.GetGlobal("result").AsNumber(); got != 3 {
		t.Errorf("result = %v, want 3", got)
	}
}

func TestVarargForwarding(t *testing.T) {
	g := runLua(t, `
		local function sum(...)
			local s = 0
			local n = select("#", ...)
			for i = 1, n do
				s = s + select(i, ...)
			end
			return s
		end
		result = sum(1, 2, 3, 4)
	`)
	if got := g.GetGlobal("result").AsNumber(); got != 10 {
		t.Errorf("result = %v, want 10", got)
	}
}

func TestConcatRejectsBoolean(t *testing.T) {
	g := NewGlobalState(Options{})
	g.OpenLibs()
	_, err := g.DoString(context.Background(), []byte(`return true .. "x"`), t.Name())
	if err == nil {
		t.Fatal("DoString succeeded, want error concatenating a boolean")
	}
}

func TestTailCallDoesNotGrowCallStack(t *testing.T) {
	g := runLua(t, `
		local function loop(n, acc)
			if n == 0 then
				return acc
			end
			return loop(n - 1, acc + n)
		end
		result = loop(100000, 0)
	`)
	if got, want := g.GetGlobal("result").AsNumber(), 100000*100001/2.0; got != want {
		t.Errorf("result = %v, want %v", got, want)
	}
}

func TestGCFinalizerRunsOnCollection(t *testing.T) {
	g := runLua(t, `
		finalized = false
		local mt = { __gc = function(t) finalized = true end }
		local function make()
			local t = setmetatable({}, mt)
		end
		make()
	`)
	g.CollectGarbage(context.Background())
	if !g.GetGlobal("finalized").Truthy() {
		t.Error("finalized = false after CollectGarbage, want true")
	}
}

func TestTableConstructorAndLibrary(t *testing.T) {
	g := runLua(t, `
		local t = {10, 20, 30}
		table.insert(t, 40)
		table.remove(t, 1)
		result = table.concat(t, ",")
	`)
	if got := g.GetGlobal("result").AsString(); got != "20,30,40" {
		t.Errorf("result = %q, want %q", got, "20,30,40")
	}
}

func TestMetatableIndexAndArithmetic(t *testing.T) {
	g := runLua(t, `
		local mt = {}
		mt.__index = function(t, k) return "default" end
		mt.__add = function(a, b) return 99 end
		local t = setmetatable({}, mt)
		result = t.missing
		result2 = t + 1
	`)
	if got := g.GetGlobal("result").AsString(); got != "default" {
		t.Errorf("result = %q, want %q", got, "default")
	}
	if got := g.GetGlobal("result2").AsNumber(); got != 99 {
		t.Errorf("result2 = %v, want 99", got)
	}
}

func TestPCallCatchesError(t *testing.T) {
	g := runLua(t, `
		local ok, err = pcall(function() error("boom") end)
		ok_result = ok
		err_result = err
	`)
	if g.GetGlobal("ok_result").Truthy() {
		t.Error("ok_result = true, want false")
	}
	if got := g.GetGlobal("err_result").AsString(); got == "" {
		t.Error("err_result is empty, want error message")
	}
}

func TestCoroutineResumeYield(t *testing.T) {
	g := runLua(t, `
		local co = coroutine.create(function(a)
			local b = coroutine.yield(a + 1)
			return b + 1
		end)
		local ok1, v1 = coroutine.resume(co, 1)
		local ok2, v2 = coroutine.resume(co, 10)
		ok1_result, v1_result = ok1, v1
		ok2_result, v2_result = ok2, v2
		status_result = coroutine.status(co)
	`)
	if !g.GetGlobal("ok1_result").Truthy() || g.GetGlobal("v1_result").AsNumber() != 2 {
		t.Errorf("first resume = (%v, %v), want (true, 2)", g.GetGlobal("ok1_result").Truthy(), g.GetGlobal("v1_result").AsNumber())
	}
	if !g.GetGlobal("ok2_result").Truthy() || g.GetGlobal("v2_result").AsNumber() != 11 {
		t.Errorf("second resume = (%v, %v), want (true, 11)", g.GetGlobal("ok2_result").Truthy(), g.GetGlobal("v2_result").AsNumber())
	}
	if got := g.GetGlobal("status_result").AsString(); got != "dead" {
		t.Errorf("status = %q, want %q", got, "dead")
	}
}

func TestCoroutineErrorPropagatesAsFalseAndMessage(t *testing.T) {
	g := runLua(t, `
		local co = coroutine.create(function()
			error("failure inside coroutine")
		end)
		ok_result, err_result = coroutine.resume(co)
		status_result = coroutine.status(co)
	`)
	if g.GetGlobal("ok_result").Truthy() {
		t.Error("ok_result = true, want false")
	}
	if got := g.GetGlobal("err_result").AsString(); got == "" {
		t.Error("err_result is empty, want error message")
	}
	if got := g.GetGlobal("status_result").AsString(); got != "dead" {
		t.Errorf("status = %q, want %q", got, "dead")
	}
}

func TestGenericForPairs(t *testing.T) {
	g := runLua(t, `
		local t = {a = 1, b = 2, c = 3}
		local sum = 0
		for k, v in pairs(t) do
			sum = sum + v
		end
		result = sum
	`)
	if got := g.GetGlobal("result").AsNumber(); got != 6 {
		t.Errorf("result = %v, want 6", got)
	}
}

func TestCollectGarbageRunsWithoutError(t *testing.T) {
	g := runLua(t, `local t = {1, 2, 3}`)
	g.CollectGarbage(context.Background())
	stats := g.GCStats()
	if stats.Cycles == 0 {
		t.Error("GCStats().Cycles = 0 after CollectGarbage, want > 0")
	}
}
