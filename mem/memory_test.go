// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"testing"

	"github.com/cznic/sparsemem/block"
)

func mustFromBlocks(t *testing.T, entries []BlockEntry) *Memory {
	t.Helper()
	m, err := FromBlocks(entries, Options{})
	if err != nil {
		t.Fatalf("FromBlocks: %v", err)
	}
	return m
}

func scenarioMemory(t *testing.T) *Memory {
	return mustFromBlocks(t, []BlockEntry{
		{1, []byte("ABCD")},
		{6, []byte("$")},
		{8, []byte("xyz")},
	})
}

func dump(t *testing.T, m *Memory) []BlockEntry {
	t.Helper()
	return m.ToBlocks(m.ContentStart(), m.ContentEndex())
}

func assertBlocks(t *testing.T, m *Memory, want []BlockEntry) {
	t.Helper()
	got := dump(t, m)
	if len(got) != len(want) {
		t.Fatalf("got %d blocks %v, want %v", len(got), got, want)
	}
	for i := range got {
		if got[i].Address != want[i].Address || string(got[i].Data) != string(want[i].Data) {
			t.Fatalf("block %d = (%d,%q), want (%d,%q)", i, got[i].Address, got[i].Data, want[i].Address, want[i].Data)
		}
	}
}

func TestPeekPoke(t *testing.T) {
	m := scenarioMemory(t)
	v, ok := m.Peek(2)
	if !ok || v != 'B' {
		t.Fatalf("Peek(2) = %v,%v", v, ok)
	}
	if _, ok := m.Peek(5); ok {
		t.Fatalf("Peek(5) should be a gap")
	}
	nv := byte('Z')
	if err := m.Poke(2, &nv); err != nil {
		t.Fatal(err)
	}
	v, _ = m.Peek(2)
	if v != 'Z' {
		t.Fatalf("after poke, Peek(2) = %v", v)
	}
}

func TestWriteMergesWithNeighbors(t *testing.T) {
	m := scenarioMemory(t)
	// Bridges the [5,6) and [7,8) gaps, merging all three blocks into one.
	if err := m.Write(5, []byte("E_w"), true); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{{1, []byte("ABCDE_wxyz")}})
}

func TestInsertShiftsLaterBlocks(t *testing.T) {
	m := scenarioMemory(t)
	if err := m.Insert(6, []byte("##")); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{
		{1, []byte("ABCD")},
		{6, []byte("##$")},
		{10, []byte("xyz")},
	})
}

func TestInsertStrictlyInsideBlockShiftsLater(t *testing.T) {
	m := scenarioMemory(t)
	// Inserting at offset 2 of the "ABCD" block (address 1) must keep that
	// block's own address fixed at 1 and shift everything from address 3
	// onward (the "CD" tail, and every later block) right by len(data).
	if err := m.Insert(3, []byte("XY")); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{
		{1, []byte("ABXYCD")},
		{8, []byte("$")},
		{10, []byte("xyz")},
	})
}

func TestDeleteShiftsLaterBlocksLeft(t *testing.T) {
	m := scenarioMemory(t)
	if err := m.Delete(2, 4); err != nil { // removes "BC", shifts the rest left by 2
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{
		{1, []byte("AD")},
		{4, []byte("$")},
		{6, []byte("xyz")},
	})
}

func TestClearWithoutShift(t *testing.T) {
	m := scenarioMemory(t)
	if err := m.Clear(2, 4); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{
		{1, []byte("A")},
		{4, []byte("D")},
		{6, []byte("$")},
		{8, []byte("xyz")},
	})
}

func TestFillOverwrites(t *testing.T) {
	m := scenarioMemory(t)
	if err := m.Fill(0, 11, []byte("-")); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{{0, []byte("-----------")}})
}

func TestFloodPreservesContent(t *testing.T) {
	m := scenarioMemory(t)
	if err := m.Flood(0, 11, []byte(".")); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{{0, []byte(".ABCD.$.xyz")}})
}

func TestShiftComposition(t *testing.T) {
	m := scenarioMemory(t)
	before := dump(t, m)
	if err := m.Shift(5); err != nil {
		t.Fatal(err)
	}
	if err := m.Shift(-5); err != nil {
		t.Fatal(err)
	}
	after := dump(t, m)
	if len(before) != len(after) {
		t.Fatalf("shift composition changed block count")
	}
	for i := range before {
		if before[i].Address != after[i].Address || string(before[i].Data) != string(after[i].Data) {
			t.Fatalf("shift composition not identity: %v vs %v", before, after)
		}
	}
}

func TestReverse(t *testing.T) {
	m := scenarioMemory(t)
	if err := m.Reverse(); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{
		{1, []byte("zyx")},
		{5, []byte("$")},
		{7, []byte("DCBA")},
	})
}

func TestReverseTwiceIsIdentity(t *testing.T) {
	m := scenarioMemory(t)
	before := dump(t, m)
	if err := m.Reverse(); err != nil {
		t.Fatal(err)
	}
	if err := m.Reverse(); err != nil {
		t.Fatal(err)
	}
	after := dump(t, m)
	if len(before) != len(after) {
		t.Fatalf("reverse-reverse changed block count")
	}
	for i := range before {
		if before[i].Address != after[i].Address || string(before[i].Data) != string(after[i].Data) {
			t.Fatalf("reverse-reverse not identity: %v vs %v", before, after)
		}
	}
}

func TestFindRFindCount(t *testing.T) {
	m := scenarioMemory(t)
	if got := m.Find([]byte("BC"), 0, 11); got != 2 {
		t.Fatalf("Find = %d", got)
	}
	if got := m.Find([]byte("D$"), 0, 11); got != -1 {
		t.Fatalf("Find across gap should fail, got %d", got)
	}
	if got := m.RFind([]byte("z"), 0, 11); got != 10 {
		t.Fatalf("RFind = %d", got)
	}
	if got := m.Count([]byte("x"), 0, 11); got != 1 {
		t.Fatalf("Count = %d", got)
	}
}

func TestGapsAndIntervals(t *testing.T) {
	m := scenarioMemory(t)
	gaps := m.Gaps(0, 11)
	want := []Range{{0, 1}, {5, 6}, {7, 8}}
	if len(gaps) != len(want) {
		t.Fatalf("gaps = %v", gaps)
	}
	for i := range gaps {
		if gaps[i] != want[i] {
			t.Fatalf("gap %d = %v, want %v", i, gaps[i], want[i])
		}
	}
	ivs := m.Intervals(0, 11)
	wantIvs := []Range{{1, 5}, {6, 7}, {8, 11}}
	for i := range ivs {
		if ivs[i] != wantIvs[i] {
			t.Fatalf("interval %d = %v, want %v", i, ivs[i], wantIvs[i])
		}
	}
}

func TestBlockSpanAndEqualSpan(t *testing.T) {
	m := scenarioMemory(t)
	start, endex, v := m.BlockSpan(2)
	if start != 1 || endex != 5 || v == nil || *v != 'B' {
		t.Fatalf("BlockSpan(2) = %d,%d,%v", start, endex, v)
	}
	start, endex, v = m.BlockSpan(5)
	if start != 5 || endex != 6 || v != nil {
		t.Fatalf("BlockSpan(5) (gap) = %d,%d,%v", start, endex, v)
	}

	eq := mustFromBlocks(t, []BlockEntry{{0, []byte("aabbbbc")}})
	start, endex, v = eq.EqualSpan(3)
	if start != 2 || endex != 6 || v == nil || *v != 'b' {
		t.Fatalf("EqualSpan(3) = %d,%d,%v", start, endex, v)
	}
}

func TestContiguous(t *testing.T) {
	m := mustFromBlocks(t, []BlockEntry{{0, []byte("abc")}})
	if !m.Contiguous() {
		t.Fatalf("single block should be contiguous")
	}
	m2 := scenarioMemory(t)
	if m2.Contiguous() {
		t.Fatalf("scenario memory has gaps, should not be contiguous")
	}
}

func TestExtractAndCut(t *testing.T) {
	m := scenarioMemory(t)
	sub, err := m.Extract(2, 9, nil, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, sub, []BlockEntry{
		{2, []byte("BCD")},
		{6, []byte("$")},
		{8, []byte("x")},
	})

	m2 := scenarioMemory(t)
	cut, err := m2.Cut(2, 9, false)
	if err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, cut, []BlockEntry{
		{2, []byte("BCD")},
		{6, []byte("$")},
		{8, []byte("x")},
	})
	// After cutting [2,9), the remaining "A" at 1 and "yz" (shifted left by 7) join into one block.
	assertBlocks(t, m2, []BlockEntry{{1, []byte("Ayz")}})
}

func TestExtractRoundTripsThroughWrite(t *testing.T) {
	m := scenarioMemory(t)
	sub, err := m.Extract(1, 11, nil, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	fresh := New()
	for _, e := range sub.ToBlocks(sub.ContentStart(), sub.ContentEndex()) {
		if err := fresh.Write(e.Address, e.Data, true); err != nil {
			t.Fatal(err)
		}
	}
	if !fresh.Equal(m) {
		t.Fatalf("round trip via extract+write changed content")
	}
}

func TestDeleteBackupRestore(t *testing.T) {
	m := scenarioMemory(t)
	backup, err := m.DeleteBackup(2, 7)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(2, 7); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteRestore(backup, 2, 7); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{
		{1, []byte("ABCD")},
		{6, []byte("$")},
		{8, []byte("xyz")},
	})
}

func TestWriteBackupRestore(t *testing.T) {
	m := scenarioMemory(t)
	backup, err := m.WriteBackup(2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Write(2, []byte("ZZZZZ"), true); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteRestore(backup, 2, 5); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{
		{1, []byte("ABCD")},
		{6, []byte("$")},
		{8, []byte("xyz")},
	})
}

func TestCropIdempotent(t *testing.T) {
	m := scenarioMemory(t)
	if err := m.Crop(2, 9); err != nil {
		t.Fatal(err)
	}
	first := dump(t, m)
	if err := m.Crop(2, 9); err != nil {
		t.Fatal(err)
	}
	second := dump(t, m)
	if len(first) != len(second) {
		t.Fatalf("crop not idempotent: %v vs %v", first, second)
	}
	for i := range first {
		if first[i].Address != second[i].Address || string(first[i].Data) != string(second[i].Data) {
			t.Fatalf("crop not idempotent: %v vs %v", first, second)
		}
	}
}

func TestTrimClipsWrite(t *testing.T) {
	ts := block.Address(2)
	te := block.Address(9)
	m := New()
	if err := m.SetTrimStart(ts); err != nil {
		t.Fatal(err)
	}
	if err := m.SetTrimEnd(te); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(0, []byte("0123456789"), true); err != nil {
		t.Fatal(err)
	}
	assertBlocks(t, m, []BlockEntry{{2, []byte("2345678")}})
}

func TestFromItemsLaterOverwritesEarlier(t *testing.T) {
	a := byte('A')
	b := byte('B')
	m, err := FromItems([]Item{
		{Address: 0, Value: &a},
		{Address: 0, Value: &b},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	v, ok := m.Peek(0)
	if !ok || v != 'B' {
		t.Fatalf("Peek(0) = %v,%v", v, ok)
	}
}

func TestValidateRejectsOverlap(t *testing.T) {
	_, err := FromBlocks([]BlockEntry{
		{0, []byte("ab")},
		{1, []byte("cd")},
	}, Options{Validate: true})
	if err == nil {
		t.Fatalf("expected overlap to be rejected")
	}
}
