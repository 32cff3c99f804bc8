// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package block implements Block, a reference-counted, heap-allocated,
// growable byte buffer tagged with a logical address. Blocks use a
// split-margin layout - head and tail slack around the live bytes - so
// that prepend and append are amortized O(1), the same trick lldb's
// MemFiler uses per-page and lldb's Allocator uses per-atom, applied here
// to a single contiguous buffer.
package block

import (
	"bytes"
	"fmt"

	"github.com/cznic/mathutil"

	"github.com/cznic/sparsemem/errs"
)

// Address is a logical byte address; Value is a single stored byte.
// Offsets into a Block's live bytes are plain ints. Find, RFind, Count,
// ReadSlice and ViewSlice wrap negative offsets from the end, as in a
// slice expression; the other methods reject them.
type (
	Address = uint64
	Value   = byte
)

// MaxAddress is the highest representable Address (ADDR_MAX).
const MaxAddress Address = ^Address(0)

// margin is MARGIN from the spec: unused capacity reserved at the head or
// tail of a buffer to amortize growth. The spec's literal suggestion
// ("half the machine word size in bytes") is 4 on a 64-bit machine, which
// is impractically fine-grained for real buffers; 64 is used instead. See
// DESIGN.md.
const margin = 64

// Block is a contiguous run of bytes [Address(), Address()+Len()).
//
// A Block with References() > 1 MUST NOT be structurally or elementwise
// mutated; callers clone it first (Clone). Mutating methods return
// *errs.Shared if called on a shared Block.
type Block struct {
	address uint64
	data    []byte // data[0:cap(data)] is the full backing buffer
	start   int    // start <= endex <= len(data)
	endex   int
	refs    int32
}

// New creates a Block at address holding a copy of data. A zero-length
// Block is permitted only as a transient value; Rack never stores one.
func New(address Address, data []byte) (*Block, error) {
	return newBlock(address, data)
}

// NewZero creates a Block at address holding size zero bytes.
func NewZero(address Address, size int) (*Block, error) {
	if size < 0 {
		return nil, &errs.IndexOutOfRange{Op: "block.NewZero", Index: int64(size)}
	}
	return newBlock(address, make([]byte, size))
}

func newBlock(address Address, data []byte) (*Block, error) {
	n := len(data)
	if err := checkSize(n); err != nil {
		return nil, err
	}
	if MaxAddress-address < Address(n) {
		return nil, &errs.AddressOverflow{Op: "block.New", Addr: address}
	}
	cap_ := upsize(0, n)
	buf := make([]byte, cap_)
	start := margin
	if start+n > cap_ {
		start = 0
	}
	copy(buf[start:start+n], data)
	return &Block{address: address, data: buf, start: start, endex: start + n, refs: 1}, nil
}

func checkSize(n int) error {
	if n < 0 || uint64(n) > sizeCeiling {
		return &errs.SizeOverflow{Op: "block", Size: uint64(n)}
	}
	return nil
}

// sizeCeiling mirrors the spec's SIZE_MAX/2 ceiling.
const sizeCeiling = uint64(1)<<63 - 1

// --- capacity policy -------------------------------------------------

func roundUpMargin(x int) int {
	if x <= 0 {
		return margin
	}
	return (x+margin-1)/margin*margin
}

func upsize(current, requested int) int {
	var next int
	if requested <= current+current/8 {
		next = requested + requested/8
	} else {
		next = requested
	}
	next = roundUpMargin(next) + margin
	return mathutil.Max(next, 2*margin)
}

func downsize(current, requested int) int {
	if requested < current/2 {
		return mathutil.Max(roundUpMargin(requested)+margin, 2*margin)
	}
	return current
}

// --- basic accessors ---------------------------------------------------

// Address returns the logical address of the first live byte.
func (b *Block) Address() Address { return b.address }

// EndAddress returns Address() + Len(), the first address past the block.
func (b *Block) EndAddress() Address { return b.address + Address(b.Len()) }

// Rebase retags the block with a new base address, leaving its bytes
// untouched. It is a structural mutation and fails on a shared block.
func (b *Block) Rebase(address Address) error {
	if err := b.checkMutable("block.Rebase"); err != nil {
		return err
	}
	if MaxAddress-address < Address(b.Len()) {
		return &errs.AddressOverflow{Op: "block.Rebase", Addr: address}
	}
	b.address = address
	return nil
}

// Len returns the number of live bytes.
func (b *Block) Len() int { return b.endex - b.start }

// References returns the current reference count.
func (b *Block) References() int32 { return b.refs }

// Acquire increments the reference count and returns the same Block.
func (b *Block) Acquire() *Block {
	b.refs++
	return b
}

// Release decrements the reference count.
func (b *Block) Release() {
	if b.refs > 0 {
		b.refs--
	}
}

// Clone returns an independent, uniquely-owned copy of b.
func (b *Block) Clone() *Block {
	nb, _ := newBlock(b.address, b.data[b.start:b.endex])
	return nb
}

func (b *Block) checkMutable(op string) error {
	if b.refs > 1 {
		return &errs.Shared{Op: op, References: b.refs}
	}
	return nil
}

// Bytes returns the live bytes as a direct slice of the internal buffer.
// Callers must not retain it across a mutating call, and must not mutate
// it unless they hold the only reference to the Block.
func (b *Block) Bytes() []byte { return b.data[b.start:b.endex] }

func resolveIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	switch {
	case i < 0:
		return 0
	case i > length:
		return length
	default:
		return i
	}
}

// At returns the byte at offset (0-indexed into live bytes).
func (b *Block) At(offset int) (Value, error) {
	if offset < 0 || offset >= b.Len() {
		return 0, &errs.IndexOutOfRange{Op: "block.At", Index: int64(offset), Length: int64(b.Len())}
	}
	return b.data[b.start+offset], nil
}

// Set overwrites the byte at offset.
func (b *Block) Set(offset int, v Value) error {
	if err := b.checkMutable("block.Set"); err != nil {
		return err
	}
	if offset < 0 || offset >= b.Len() {
		return &errs.IndexOutOfRange{Op: "block.Set", Index: int64(offset), Length: int64(b.Len())}
	}
	b.data[b.start+offset] = v
	return nil
}

// --- equality / comparison ---------------------------------------------

// Eq reports whether the live bytes of b and other are equal.
func (b *Block) Eq(other *Block) bool {
	return bytes.Equal(b.Bytes(), other.Bytes())
}

// Cmp lexicographically compares the live bytes of b and other.
func (b *Block) Cmp(other *Block) int {
	return bytes.Compare(b.Bytes(), other.Bytes())
}

// --- search --------------------------------------------------------------

func (b *Block) clampRange(start, end int) (int, int) {
	length := b.Len()
	s := resolveIndex(start, length)
	e := resolveIndex(end, length)
	if e < s {
		e = s
	}
	return s, e
}

// Find returns the index of the first occurrence of needle within
// [start, end), or -1. An empty needle returns -1.
func (b *Block) Find(needle []byte, start, end int) int {
	if len(needle) == 0 {
		return -1
	}
	s, e := b.clampRange(start, end)
	hay := b.Bytes()[s:e]
	i := bytes.Index(hay, needle)
	if i < 0 {
		return -1
	}
	return s + i
}

// RFind returns the index of the last occurrence of needle within
// [start, end), or -1.
func (b *Block) RFind(needle []byte, start, end int) int {
	if len(needle) == 0 {
		return -1
	}
	s, e := b.clampRange(start, end)
	hay := b.Bytes()[s:e]
	i := bytes.LastIndex(hay, needle)
	if i < 0 {
		return -1
	}
	return s + i
}

// Count returns the number of non-overlapping occurrences of needle
// within [start, end).
func (b *Block) Count(needle []byte, start, end int) int {
	if len(needle) == 0 {
		return 0
	}
	s, e := b.clampRange(start, end)
	return bytes.Count(b.Bytes()[s:e], needle)
}

// --- structural edits: reserve / delete ---------------------------------

// Reserve opens a gap of size bytes at offset (0-indexed live bytes),
// optionally zero-filling it. It shifts whichever side (head or tail) is
// shorter, growing or recentering the buffer when neither side has
// sufficient margin.
func (b *Block) Reserve(offset, size int, zero bool) error {
	if err := b.checkMutable("block.Reserve"); err != nil {
		return err
	}
	length := b.Len()
	if offset < 0 || offset > length {
		return &errs.IndexOutOfRange{Op: "block.Reserve", Index: int64(offset), Length: int64(length)}
	}
	if size == 0 {
		return nil
	}
	if err := checkSize(length + size); err != nil {
		return err
	}
	if MaxAddress-b.address < Address(length+size) {
		return &errs.AddressOverflow{Op: "block.Reserve", Addr: b.address}
	}
	if offset == 0 && b.address < Address(size) {
		return &errs.AddressOverflow{Op: "block.Reserve", Addr: b.address}
	}

	headMargin := b.start
	tailMargin := len(b.data) - b.endex
	leftPart := offset
	rightPart := length - offset
	preferLeft := leftPart <= rightPart

	shiftLeft := func() {
		copy(b.data[b.start-size:b.start-size+offset], b.data[b.start:b.start+offset])
		b.start -= size
		if zero {
			zeroRange(b.data, b.start+offset, b.start+offset+size)
		}
	}
	shiftRight := func() {
		copy(b.data[b.start+offset+size:b.endex+size], b.data[b.start+offset:b.endex])
		b.endex += size
		if zero {
			zeroRange(b.data, b.start+offset, b.start+offset+size)
		}
	}

	switch {
	case preferLeft && headMargin >= size:
		shiftLeft()
	case !preferLeft && tailMargin >= size:
		shiftRight()
	case headMargin >= size:
		shiftLeft()
	case tailMargin >= size:
		shiftRight()
	default:
		b.reallocCentered(offset, size, length, zero)
	}
	if offset == 0 {
		b.address -= Address(size)
	}
	return nil
}

func (b *Block) reallocCentered(offset, size, length int, zero bool) {
	newLength := length + size
	newCap := upsize(len(b.data), newLength)
	nd := make([]byte, newCap)
	newStart := (newCap - newLength) / 2
	copy(nd[newStart:newStart+offset], b.data[b.start:b.start+offset])
	copy(nd[newStart+offset+size:newStart+newLength], b.data[b.start+offset:b.endex])
	if zero {
		zeroRange(nd, newStart+offset, newStart+offset+size)
	}
	b.data = nd
	b.start = newStart
	b.endex = newStart + newLength
}

func zeroRange(buf []byte, start, end int) {
	for i := start; i < end; i++ {
		buf[i] = 0
	}
}

// Delete removes size bytes starting at offset, shifting the shorter
// side, and downsizes the buffer if the new length justifies it.
func (b *Block) Delete(offset, size int) error {
	if err := b.checkMutable("block.Delete"); err != nil {
		return err
	}
	length := b.Len()
	if offset < 0 || size < 0 || offset+size > length {
		return &errs.IndexOutOfRange{Op: "block.Delete", Index: int64(offset + size), Length: int64(length)}
	}
	if size == 0 {
		return nil
	}

	leftPart := offset
	rightPart := length - offset - size
	if leftPart <= rightPart {
		copy(b.data[b.start+size:b.start+size+offset], b.data[b.start:b.start+offset])
		b.start += size
	} else {
		copy(b.data[b.start+offset:b.start+offset+rightPart], b.data[b.start+offset+size:b.endex])
		b.endex -= size
	}

	newLength := length - size
	if newCap := downsize(len(b.data), newLength); newCap != len(b.data) {
		nd := make([]byte, newCap)
		newStart := margin
		if newStart+newLength > newCap {
			newStart = 0
		}
		copy(nd[newStart:newStart+newLength], b.data[b.start:b.start+newLength])
		b.data = nd
		b.start = newStart
		b.endex = newStart + newLength
	}
	if offset == 0 {
		b.address += Address(size)
	}
	return nil
}

// --- deque-style operations ---------------------------------------------

// Pop removes and returns the last byte.
func (b *Block) Pop() (Value, error) {
	if b.Len() == 0 {
		return 0, &errs.EmptyContainer{Op: "block.Pop"}
	}
	v, _ := b.At(b.Len() - 1)
	if err := b.Delete(b.Len()-1, 1); err != nil {
		return 0, err
	}
	return v, nil
}

// PopLeft removes and returns the first byte.
func (b *Block) PopLeft() (Value, error) {
	if b.Len() == 0 {
		return 0, &errs.EmptyContainer{Op: "block.PopLeft"}
	}
	v, _ := b.At(0)
	if err := b.Delete(0, 1); err != nil {
		return 0, err
	}
	return v, nil
}

// Append adds v to the end.
func (b *Block) Append(v Value) error {
	if err := b.Reserve(b.Len(), 1, false); err != nil {
		return err
	}
	return b.Set(b.Len()-1, v)
}

// AppendLeft adds v to the front.
func (b *Block) AppendLeft(v Value) error {
	if err := b.Reserve(0, 1, false); err != nil {
		return err
	}
	return b.Set(0, v)
}

// Insert adds v at offset, shifting later bytes right.
func (b *Block) Insert(offset int, v Value) error {
	if err := b.Reserve(offset, 1, false); err != nil {
		return err
	}
	return b.Set(offset, v)
}

// Extend appends data to the end.
func (b *Block) Extend(data []byte) error {
	return b.WriteAt(b.Len(), data)
}

// ExtendLeft prepends data to the front.
func (b *Block) ExtendLeft(data []byte) error {
	if err := b.Reserve(0, len(data), false); err != nil {
		return err
	}
	copy(b.data[b.start:b.start+len(data)], data)
	return nil
}

// Rotate rotates the live bytes left by k (modulo Len()), using three
// reversals. Negative k rotates right. A zero-length block is a no-op.
func (b *Block) Rotate(k int) error {
	if err := b.checkMutable("block.Rotate"); err != nil {
		return err
	}
	length := b.Len()
	if length == 0 {
		return nil
	}
	k %= length
	if k < 0 {
		k += length
	}
	if k == 0 {
		return nil
	}
	buf := b.Bytes()
	reverse(buf[:k])
	reverse(buf[k:])
	reverse(buf)
	return nil
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// Repeat multiplies the live content n times in place (n >= 1).
func (b *Block) Repeat(n int) error {
	if n < 1 {
		return &errs.IndexOutOfRange{Op: "block.Repeat", Index: int64(n)}
	}
	if n == 1 {
		return nil
	}
	length := b.Len()
	return b.RepeatToSize(length * n)
}

// RepeatToSize grows or shrinks the block to exactly n bytes by repeating
// (and truncating) its current content. It is an error on an empty block.
func (b *Block) RepeatToSize(n int) error {
	if err := b.checkMutable("block.RepeatToSize"); err != nil {
		return err
	}
	length := b.Len()
	if length == 0 {
		return &errs.EmptyPattern{Op: "block.RepeatToSize"}
	}
	if n < 0 {
		return &errs.IndexOutOfRange{Op: "block.RepeatToSize", Index: int64(n)}
	}
	src := make([]byte, length)
	copy(src, b.Bytes())
	if n < length {
		if err := b.Delete(n, length-n); err != nil {
			return err
		}
		return nil
	}
	if err := b.Reserve(length, n-length, false); err != nil {
		return err
	}
	buf := b.Bytes()
	for i := length; i < n; i++ {
		buf[i] = src[i%length]
	}
	return nil
}

// --- slice-addressed bulk I/O -------------------------------------------

// Read copies up to len(dst) live bytes starting at offset into dst,
// returning the number of bytes copied.
func (b *Block) Read(dst []byte, offset int) (int, error) {
	if offset < 0 || offset > b.Len() {
		return 0, &errs.IndexOutOfRange{Op: "block.Read", Index: int64(offset), Length: int64(b.Len())}
	}
	n := copy(dst, b.Bytes()[offset:])
	return n, nil
}

// WriteAt overwrites (or, past the current end, grows the block to fit)
// bytes starting at offset with src.
func (b *Block) WriteAt(offset int, src []byte) error {
	if err := b.checkMutable("block.WriteAt"); err != nil {
		return err
	}
	if offset < 0 || offset > b.Len() {
		return &errs.IndexOutOfRange{Op: "block.WriteAt", Index: int64(offset), Length: int64(b.Len())}
	}
	end := offset + len(src)
	if end > b.Len() {
		if err := b.Reserve(b.Len(), end-b.Len(), false); err != nil {
			return err
		}
	}
	copy(b.data[b.start+offset:b.start+end], src)
	return nil
}

// ReadSlice returns a copy of the live bytes in [i, j).
func (b *Block) ReadSlice(i, j int) ([]byte, error) {
	length := b.Len()
	i = resolveIndex(i, length)
	j = resolveIndex(j, length)
	if j < i {
		j = i
	}
	out := make([]byte, j-i)
	copy(out, b.Bytes()[i:j])
	return out, nil
}

// WriteSlice is an alias of WriteAt, for symmetry with ReadSlice.
func (b *Block) WriteSlice(offset int, src []byte) error {
	return b.WriteAt(offset, src)
}

// SetSlice overwrites [offset, offset+src.Len()) in place with the bytes
// of src. Unlike WriteAt it never grows the block.
func (b *Block) SetSlice(offset int, src *Block) error {
	if err := b.checkMutable("block.SetSlice"); err != nil {
		return err
	}
	n := src.Len()
	if offset < 0 || offset+n > b.Len() {
		return &errs.IndexOutOfRange{Op: "block.SetSlice", Index: int64(offset + n), Length: int64(b.Len())}
	}
	copy(b.data[b.start+offset:b.start+offset+n], src.Bytes())
	return nil
}

// DelSlice removes [offset, offset+size) from the block; an alias of
// Delete for symmetry with SetSlice.
func (b *Block) DelSlice(offset, size int) error {
	return b.Delete(offset, size)
}

// --- views ---------------------------------------------------------------

// View is a read-only handle over a Block's bytes. It holds an acquired
// reference, freezing the underlying Block against structural mutation
// for as long as the view is alive.
type View struct {
	b    *Block
	data []byte
}

// Bytes returns the viewed bytes.
func (v *View) Bytes() []byte { return v.data }

// Release drops the view's reference to its Block.
func (v *View) Release() { v.b.Release() }

// View acquires a read-only view over the whole block.
func (b *Block) View() *View {
	b.Acquire()
	return &View{b: b, data: b.Bytes()}
}

// ViewSlice acquires a read-only view over [i, j) of the block.
func (b *Block) ViewSlice(i, j int) (*View, error) {
	length := b.Len()
	i = resolveIndex(i, length)
	j = resolveIndex(j, length)
	if j < i {
		j = i
	}
	b.Acquire()
	return &View{b: b, data: b.Bytes()[i:j]}, nil
}

func (b *Block) String() string {
	return fmt.Sprintf("block@%#x[%d]", b.address, b.Len())
}
