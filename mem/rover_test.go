// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import "testing"

type roverStep struct {
	addr uint64
	val  *byte
}

func drain(r *Rover, max int) []roverStep {
	var out []roverStep
	for i := 0; i < max; i++ {
		addr, v, ok := r.Next()
		if !ok {
			break
		}
		out = append(out, roverStep{addr, v})
	}
	return out
}

func bp(v byte) *byte { return &v }

func TestRoverForwardOverGapsAndBlocks(t *testing.T) {
	m := scenarioMemory(t) // blocks: 1:"ABCD", 6:"$", 8:"xyz" -> spans [1,11)
	r := m.NewRover(true, 1, 11, nil, false)
	got := drain(r, 100)
	want := []roverStep{
		{1, bp('A')}, {2, bp('B')}, {3, bp('C')}, {4, bp('D')},
		{5, nil},
		{6, bp('$')},
		{7, nil},
		{8, bp('x')}, {9, bp('y')}, {10, bp('z')},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d steps, want %d: %+v", len(got), len(want), got)
	}
	for i := range got {
		if got[i].addr != want[i].addr {
			t.Fatalf("step %d addr = %d, want %d", i, got[i].addr, want[i].addr)
		}
		if (got[i].val == nil) != (want[i].val == nil) {
			t.Fatalf("step %d nilness mismatch", i)
		}
		if got[i].val != nil && *got[i].val != *want[i].val {
			t.Fatalf("step %d val = %c, want %c", i, *got[i].val, *want[i].val)
		}
	}
	if _, _, ok := r.Next(); ok {
		t.Fatalf("exhausted forward rover should not yield more")
	}
}

func TestRoverReverseOverGapsAndBlocks(t *testing.T) {
	m := scenarioMemory(t)
	r := m.NewRover(false, 1, 11, nil, false)
	got := drain(r, 100)
	want := []roverStep{
		{10, bp('z')}, {9, bp('y')}, {8, bp('x')},
		{7, nil},
		{6, bp('$')},
		{5, nil},
		{4, bp('D')}, {3, bp('C')}, {2, bp('B')}, {1, bp('A')},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d steps, want %d: %+v", len(got), len(want), got)
	}
	for i := range got {
		if got[i].addr != want[i].addr {
			t.Fatalf("step %d addr = %d, want %d", i, got[i].addr, want[i].addr)
		}
	}
}

func TestRoverWithPatternFillsGaps(t *testing.T) {
	m := scenarioMemory(t)
	r := m.NewRover(true, 1, 11, []byte("12"), false)
	got := drain(r, 100)
	// patOff advances by one on every step (gap or not); the gap at address 5
	// is the 5th step (patOff cycles 0,1,0,1,0 -> pattern[0]='1'), and the gap
	// at address 7 is the 7th step, two steps later with a period-2 pattern,
	// so it lands on the same phase: pattern[0]='1'.
	if got[4].addr != 5 || got[4].val == nil || *got[4].val != '1' {
		t.Fatalf("gap at 5 = %+v, want pattern '1'", got[4])
	}
	if got[6].addr != 7 || got[6].val == nil || *got[6].val != '1' {
		t.Fatalf("gap at 7 = %+v, want pattern '1'", got[6])
	}
}

func TestRoverInfiniteNeverExhausts(t *testing.T) {
	m := scenarioMemory(t)
	r := m.NewRover(true, 1, 11, []byte("X"), true)
	got := drain(r, 20)
	if len(got) != 20 {
		t.Fatalf("infinite rover stopped early after %d steps", len(got))
	}
	last := got[len(got)-1]
	if last.val == nil || *last.val != 'X' {
		t.Fatalf("past-endex infinite step = %+v, want pattern 'X'", last)
	}
}

func TestRoverInfiniteNoPatternYieldsNilForever(t *testing.T) {
	m := scenarioMemory(t)
	r := m.NewRover(true, 1, 11, nil, true)
	got := drain(r, 15)
	if len(got) != 15 {
		t.Fatalf("infinite rover stopped early after %d steps", len(got))
	}
	last := got[len(got)-1]
	if last.val != nil {
		t.Fatalf("past-endex infinite step with no pattern = %+v, want nil", last)
	}
}

func TestRoverClosesHeldBlockOnExhaustion(t *testing.T) {
	m := scenarioMemory(t)
	b, _ := m.rack.Get(m.rack.Len() - 1)
	before := b.References()
	r := m.NewRover(true, 8, 11, nil, false)
	drain(r, 100)
	if b.References() != before {
		t.Fatalf("references leaked after rover exhaustion: before=%d after=%d", before, b.References())
	}
}
