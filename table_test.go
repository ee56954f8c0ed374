// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import "testing"

func TestTableRawSetGet(t *testing.T) {
	g := NewGlobalState(Options{})
	tbl := g.NewTable()

	if err := tbl.rawSet(NumberValue(1), g.NewString("one")); err != nil {
		t.Fatalf("rawSet(1, \"one\"): %v", err)
	}
	if got := tbl.rawGet(NumberValue(1)); got.AsString() != "one" {
		t.Errorf("rawGet(1) = %q, want %q", got.AsString(), "one")
	}

	if err := tbl.rawSet(g.NewString("key"), NumberValue(42)); err != nil {
		t.Fatalf("rawSet(\"key\", 42): %v", err)
	}
	if got := tbl.rawGetString("key"); got.AsNumber() != 42 {
		t.Errorf("rawGetString(\"key\") = %v, want 42", got.AsNumber())
	}

	if err := tbl.rawSet(Nil, NumberValue(1)); err == nil {
		t.Error("rawSet(nil, 1) succeeded, want error")
	}
	if err := tbl.rawSet(NumberValue(nan()), NumberValue(1)); err == nil {
		t.Error("rawSet(NaN, 1) succeeded, want error")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestTableLength(t *testing.T) {
	g := NewGlobalState(Options{})
	tbl := g.NewTable()
	for i := 1; i <= 5; i++ {
		tbl.rawSet(NumberValue(float64(i)), NumberValue(float64(i*10)))
	}
	if got := tbl.Length(); got != 5 {
		t.Errorf("Length() = %d, want 5", got)
	}

	tbl.rawSet(NumberValue(5), Nil)
	if got := tbl.Length(); got != 4 {
		t.Errorf("Length() after removing last element = %d, want 4", got)
	}
}

func TestTableNextIteratesAllEntries(t *testing.T) {
	g := NewGlobalState(Options{})
	tbl := g.NewTable()
	want := map[string]float64{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		tbl.rawSet(g.NewString(k), NumberValue(v))
	}

	got := make(map[string]float64)
	k, v, done, err := tbl.Next(Nil)
	for !done {
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got[k.AsString()] = v.AsNumber()
		k, v, done, err = tbl.Next(k)
	}
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("Next iterated %d entries, want %d", len(got), len(want))
	}
	for key, val := range want {
		if got[key] != val {
			t.Errorf("entry %q = %v, want %v", key, got[key], val)
		}
	}
}

func TestTableMetatable(t *testing.T) {
	g := NewGlobalState(Options{})
	tbl := g.NewTable()
	if tbl.Metatable() != nil {
		t.Fatal("new table has non-nil metatable")
	}
	mt := g.NewTable()
	tbl.SetMetatable(mt)
	if tbl.Metatable() != mt {
		t.Error("Metatable() did not return the table set by SetMetatable")
	}
}
