// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"strings"
	"testing"
)

// These mirror the literal end-to-end examples used to validate this
// runtime's behavior against reference Lua 5.1 semantics.

func runScenario(t *testing.T, src string) []Value {
	t.Helper()
	g := NewGlobalState(Options{})
	g.OpenLibs()
	results, err := g.DoString(context.Background(), []byte(src), t.Name())
	if err != nil {
		t.Fatalf("DoString(%q): %v", src, err)
	}
	return results
}

func TestScenarioArithmeticPrecedence(t *testing.T) {
	results := runScenario(t, `return 1 + 2 * 3`)
	if len(results) != 1 || results[0].AsNumber() != 7 {
		t.Errorf("results = %v, want (7)", results)
	}
}

func TestScenarioArrayBuildAndLength(t *testing.T) {
	results := runScenario(t, `
		local t = {}
		for i=1,5 do t[i] = i*i end
		return t[1], t[5], #t
	`)
	if len(results) != 3 || results[0].AsNumber() != 1 || results[1].AsNumber() != 25 || results[2].AsNumber() != 5 {
		t.Errorf("results = %v, want (1, 25, 5)", results)
	}
}

func TestScenarioClosureCounterSequence(t *testing.T) {
	results := runScenario(t, `
		local function mk()
			local x = 0
			return function() x = x + 1; return x end
		end
		local c = mk()
		return c(), c(), c()
	`)
	if len(results) != 3 || results[0].AsNumber() != 1 || results[1].AsNumber() != 2 || results[2].AsNumber() != 3 {
		t.Errorf("results = %v, want (1, 2, 3)", results)
	}
}

func TestScenarioCoroutineYieldThenDead(t *testing.T) {
	results := runScenario(t, `
		local co = coroutine.create(function(a)
			local b = coroutine.yield(a + 1)
			return b * 2
		end)
		local ok1, v1 = coroutine.resume(co, 10)
		local ok2, v2 = coroutine.resume(co, 5)
		return ok1, v1, ok2, v2, coroutine.status(co)
	`)
	if len(results) != 5 {
		t.Fatalf("results = %v, want 5 values", results)
	}
	if !results[0].Truthy() || results[1].AsNumber() != 11 || !results[2].Truthy() || results[3].AsNumber() != 10 || results[4].AsString() != "dead" {
		t.Errorf("results = %v, want (true, 11, true, 10, \"dead\")", results)
	}
}

func TestScenarioMetamethodAdd(t *testing.T) {
	results := runScenario(t, `
		local mt = { __add = function(a,b) return "added" end }
		local x = setmetatable({}, mt)
		return x + 1
	`)
	if len(results) != 1 || results[0].AsString() != "added" {
		t.Errorf("results = %v, want (\"added\")", results)
	}
}

func TestScenarioStringConcatLoopInternsAndCollects(t *testing.T) {
	g := NewGlobalState(Options{})
	g.OpenLibs()
	results, err := g.DoString(context.Background(), []byte(`
		local s = ""
		for i=1,10000 do s = s .. "x" end
		return #s
	`), t.Name())
	if err != nil {
		t.Fatalf("DoString: %v", err)
	}
	if len(results) != 1 || results[0].AsNumber() != 10000 {
		t.Errorf("results = %v, want (10000)", results)
	}
	g.CollectGarbage(context.Background())
	if stats := g.GCStats(); stats.Cycles == 0 {
		t.Error("GCStats().Cycles = 0 after CollectGarbage, want > 0")
	}
}

func TestScenarioResumeDeadCoroutine(t *testing.T) {
	results := runScenario(t, `
		local co = coroutine.create(function() return 1 end)
		coroutine.resume(co)
		local ok, err = coroutine.resume(co)
		return ok, err, coroutine.status(co)
	`)
	if len(results) != 3 {
		t.Fatalf("results = %v, want 3 values", results)
	}
	if results[0].Truthy() {
		t.Error("resume of dead coroutine succeeded, want false")
	}
	if !strings.Contains(results[1].AsString(), "dead") {
		t.Errorf("error message = %q, want it to mention a dead coroutine", results[1].AsString())
	}
	if got := results[2].AsString(); got != "dead" {
		t.Errorf("status = %q, want %q", got, "dead")
	}
}

func TestScenarioDivisionByZero(t *testing.T) {
	results := runScenario(t, `return 1/0, -1/0, 0/0`)
	if len(results) != 3 {
		t.Fatalf("results = %v, want 3 values", results)
	}
	posInf, negInf, nanVal := results[0].AsNumber(), results[1].AsNumber(), results[2].AsNumber()
	if posInf*0 == posInf*0 && posInf <= 0 {
		t.Errorf("1/0 = %v, want +Inf", posInf)
	}
	if negInf >= 0 {
		t.Errorf("-1/0 = %v, want -Inf", negInf)
	}
	if nanVal == nanVal {
		t.Errorf("0/0 = %v, want NaN", nanVal)
	}
}

func TestScenarioEmptyTableBoundary(t *testing.T) {
	results := runScenario(t, `
		local t = {}
		local k = next(t, nil)
		return #t, k
	`)
	if len(results) != 2 {
		t.Fatalf("results = %v, want 2 values", results)
	}
	if results[0].AsNumber() != 0 {
		t.Errorf("#t = %v, want 0", results[0].AsNumber())
	}
	if results[1].Kind() != KindNil {
		t.Errorf("next(t, nil) = %v, want nil", results[1])
	}
}
