// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rack implements Rack, a reference-counted, ordered collection
// of Block handles sorted by address. Like Block, it uses a split-margin
// layout - this time over pointer-sized slots rather than bytes - so
// insert/pop at either end is amortized O(1). Its three binary-search
// primitives (IndexAt/IndexStart/IndexEndex) are the only navigation the
// mem package needs.
package rack

import (
	"sort"

	"github.com/cznic/mathutil"

	"github.com/cznic/sparsemem/block"
	"github.com/cznic/sparsemem/errs"
)

const slotMargin = 8

func roundUpSlotMargin(x int) int {
	if x <= 0 {
		return slotMargin
	}
	return (x+slotMargin-1)/slotMargin*slotMargin
}

func upsizeSlots(current, requested int) int {
	var next int
	if requested <= current+current/8 {
		next = requested + requested/8
	} else {
		next = requested
	}
	next = roundUpSlotMargin(next) + slotMargin
	return mathutil.Max(next, 2*slotMargin)
}

func downsizeSlots(current, requested int) int {
	if requested < current/2 {
		return mathutil.Max(roundUpSlotMargin(requested)+slotMargin, 2*slotMargin)
	}
	return current
}

// Rack is an ordered, non-overlapping, non-touching collection of
// *block.Block, sorted by Address().
type Rack struct {
	slots        []*block.Block
	start, endex int
	refs         int32
}

// New returns a new, empty Rack.
func New() *Rack {
	return &Rack{refs: 1}
}

// Len returns the number of blocks held.
func (r *Rack) Len() int { return r.endex - r.start }

// References returns the current reference count.
func (r *Rack) References() int32 { return r.refs }

// Acquire increments the reference count and returns the same Rack.
func (r *Rack) Acquire() *Rack {
	r.refs++
	return r
}

// Release decrements the reference count.
func (r *Rack) Release() {
	if r.refs > 0 {
		r.refs--
	}
}

func (r *Rack) checkMutable(op string) error {
	if r.refs > 1 {
		return &errs.Shared{Op: op, References: r.refs}
	}
	return nil
}

// ShallowCopy returns a new Rack over the same Blocks, each acquired.
func (r *Rack) ShallowCopy() *Rack {
	n := r.Len()
	nr := &Rack{slots: make([]*block.Block, n), endex: n, refs: 1}
	for i := 0; i < n; i++ {
		nr.slots[i] = r.slots[r.start+i].Acquire()
	}
	return nr
}

// DeepCopy returns a new Rack holding independent clones of every Block.
func (r *Rack) DeepCopy() *Rack {
	n := r.Len()
	nr := &Rack{slots: make([]*block.Block, n), endex: n, refs: 1}
	for i := 0; i < n; i++ {
		nr.slots[i] = r.slots[r.start+i].Clone()
	}
	return nr
}

// Get returns the block at index i.
func (r *Rack) Get(i int) (*block.Block, error) {
	if i < 0 || i >= r.Len() {
		return nil, &errs.IndexOutOfRange{Op: "rack.Get", Index: int64(i), Length: int64(r.Len())}
	}
	return r.slots[r.start+i], nil
}

// Set replaces the block at index i, returning the displaced block.
func (r *Rack) Set(i int, b *block.Block) (*block.Block, error) {
	if err := r.checkMutable("rack.Set"); err != nil {
		return nil, err
	}
	if i < 0 || i >= r.Len() {
		return nil, &errs.IndexOutOfRange{Op: "rack.Set", Index: int64(i), Length: int64(r.Len())}
	}
	old := r.slots[r.start+i]
	r.slots[r.start+i] = b.Acquire()
	return old, nil
}

// --- binary search -------------------------------------------------------

// IndexAt returns the index of the block containing address, or -1.
func (r *Rack) IndexAt(address block.Address) int {
	n := r.Len()
	i := sort.Search(n, func(i int) bool {
		return r.slots[r.start+i].EndAddress() > address
	})
	if i < n {
		b := r.slots[r.start+i]
		if b.Address() <= address && address < b.EndAddress() {
			return i
		}
	}
	return -1
}

// IndexStart returns the smallest index i such that B[i].EndAddress() >
// address, or Len() if there is none. Equivalently, the insertion point
// for a new block starting at address.
func (r *Rack) IndexStart(address block.Address) int {
	n := r.Len()
	return sort.Search(n, func(i int) bool {
		return r.slots[r.start+i].EndAddress() > address
	})
}

// IndexEndex returns the smallest index i such that B[i].EndAddress() >
// address, incremented by one when address falls strictly inside B[i].
func (r *Rack) IndexEndex(address block.Address) int {
	i := r.IndexStart(address)
	if i < r.Len() {
		b := r.slots[r.start+i]
		if b.Address() < address && address < b.EndAddress() {
			i++
		}
	}
	return i
}

// --- slot-level deque operations -----------------------------------------

// Reserve opens a gap of n empty slots at index offset.
func (r *Rack) Reserve(offset, n int) error {
	if err := r.checkMutable("rack.Reserve"); err != nil {
		return err
	}
	length := r.Len()
	if offset < 0 || offset > length {
		return &errs.IndexOutOfRange{Op: "rack.Reserve", Index: int64(offset), Length: int64(length)}
	}
	if n == 0 {
		return nil
	}

	headMargin := r.start
	tailMargin := len(r.slots) - r.endex
	leftPart := offset
	rightPart := length - offset
	preferLeft := leftPart <= rightPart

	shiftLeft := func() {
		copy(r.slots[r.start-n:r.start-n+offset], r.slots[r.start:r.start+offset])
		r.start -= n
	}
	shiftRight := func() {
		copy(r.slots[r.start+offset+n:r.endex+n], r.slots[r.start+offset:r.endex])
		r.endex += n
	}

	switch {
	case preferLeft && headMargin >= n:
		shiftLeft()
	case !preferLeft && tailMargin >= n:
		shiftRight()
	case headMargin >= n:
		shiftLeft()
	case tailMargin >= n:
		shiftRight()
	default:
		newLength := length + n
		newCap := upsizeSlots(len(r.slots), newLength)
		ns := make([]*block.Block, newCap)
		newStart := (newCap - newLength) / 2
		copy(ns[newStart:newStart+offset], r.slots[r.start:r.start+offset])
		copy(ns[newStart+offset+n:newStart+newLength], r.slots[r.start+offset:r.endex])
		r.slots = ns
		r.start = newStart
		r.endex = newStart + newLength
	}
	for i := 0; i < n; i++ {
		r.slots[r.start+offset+i] = nil
	}
	return nil
}

// Delete removes n blocks starting at index offset, releasing each.
func (r *Rack) Delete(offset, n int) error {
	if err := r.checkMutable("rack.Delete"); err != nil {
		return err
	}
	length := r.Len()
	if offset < 0 || n < 0 || offset+n > length {
		return &errs.IndexOutOfRange{Op: "rack.Delete", Index: int64(offset + n), Length: int64(length)}
	}
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		r.slots[r.start+offset+i].Release()
	}

	leftPart := offset
	rightPart := length - offset - n
	if leftPart <= rightPart {
		copy(r.slots[r.start+n:r.start+n+offset], r.slots[r.start:r.start+offset])
		r.start += n
	} else {
		copy(r.slots[r.start+offset:r.start+offset+rightPart], r.slots[r.start+offset+n:r.endex])
		r.endex -= n
	}

	newLength := length - n
	if newCap := downsizeSlots(len(r.slots), newLength); newCap != len(r.slots) {
		ns := make([]*block.Block, newCap)
		newStart := slotMargin
		if newStart+newLength > newCap {
			newStart = 0
		}
		copy(ns[newStart:newStart+newLength], r.slots[r.start:r.start+newLength])
		r.slots = ns
		r.start = newStart
		r.endex = newStart + newLength
	}
	return nil
}

// Insert adds b at index offset, acquiring it.
func (r *Rack) Insert(offset int, b *block.Block) error {
	if err := r.Reserve(offset, 1); err != nil {
		return err
	}
	r.slots[r.start+offset] = b.Acquire()
	return nil
}

// Append adds b at the end.
func (r *Rack) Append(b *block.Block) error {
	return r.Insert(r.Len(), b)
}

// AppendLeft adds b at the front.
func (r *Rack) AppendLeft(b *block.Block) error {
	return r.Insert(0, b)
}

// Pop removes and returns the last block, transferring its reference to
// the caller.
func (r *Rack) Pop() (*block.Block, error) {
	if r.Len() == 0 {
		return nil, &errs.EmptyContainer{Op: "rack.Pop"}
	}
	b := r.slots[r.endex-1]
	r.slots[r.endex-1] = nil
	r.endex--
	return b, nil
}

// PopLeft removes and returns the first block, transferring its
// reference to the caller.
func (r *Rack) PopLeft() (*block.Block, error) {
	if r.Len() == 0 {
		return nil, &errs.EmptyContainer{Op: "rack.PopLeft"}
	}
	b := r.slots[r.start]
	r.slots[r.start] = nil
	r.start++
	return b, nil
}

// Extend appends blocks, acquiring each.
func (r *Rack) Extend(blocks []*block.Block) error {
	for _, b := range blocks {
		if err := r.Append(b); err != nil {
			return err
		}
	}
	return nil
}

// ExtendLeft prepends blocks (in the given order), acquiring each.
func (r *Rack) ExtendLeft(blocks []*block.Block) error {
	for i := len(blocks) - 1; i >= 0; i-- {
		if err := r.AppendLeft(blocks[i]); err != nil {
			return err
		}
	}
	return nil
}

// Slice returns the blocks in [i, j) as a shared (not copied) slice.
func (r *Rack) Slice(i, j int) ([]*block.Block, error) {
	length := r.Len()
	if i < 0 || j < i || j > length {
		return nil, &errs.IndexOutOfRange{Op: "rack.Slice", Index: int64(j), Length: int64(length)}
	}
	return r.slots[r.start+i : r.start+j], nil
}

// GetSlice is an alias of Slice.
func (r *Rack) GetSlice(i, j int) ([]*block.Block, error) { return r.Slice(i, j) }

// DelSlice removes the blocks in [i, j).
func (r *Rack) DelSlice(i, j int) error {
	if j < i {
		return &errs.IndexOutOfRange{Op: "rack.DelSlice", Index: int64(j), Length: int64(r.Len())}
	}
	return r.Delete(i, j-i)
}

// SetSlice replaces the blocks in [i, j) with blocks, acquiring each new
// one and releasing each displaced one.
func (r *Rack) SetSlice(i, j int, blocks []*block.Block) error {
	if err := r.DelSlice(i, j); err != nil {
		return err
	}
	for k, b := range blocks {
		if err := r.Insert(i+k, b); err != nil {
			return err
		}
	}
	return nil
}

// Consolidate replaces every block with References() > 1 by a fresh,
// uniquely-owned copy, preparing the Rack for in-place mutation.
func (r *Rack) Consolidate() error {
	if err := r.checkMutable("rack.Consolidate"); err != nil {
		return err
	}
	for i := r.start; i < r.endex; i++ {
		if r.slots[i].References() > 1 {
			old := r.slots[i]
			r.slots[i] = old.Clone()
			old.Release()
		}
	}
	return nil
}

// Eq reports whether r and other have the same length and pairwise equal
// blocks, addresses included.
func (r *Rack) Eq(other *Rack) bool {
	if r.Len() != other.Len() {
		return false
	}
	for i := 0; i < r.Len(); i++ {
		a := r.slots[r.start+i]
		b := other.slots[other.start+i]
		if a.Address() != b.Address() || !a.Eq(b) {
			return false
		}
	}
	return true
}

// Shift adds a signed delta to every block's address.
func (r *Rack) Shift(delta int64) error {
	if err := r.checkMutable("rack.Shift"); err != nil {
		return err
	}
	n := r.Len()
	if n == 0 {
		return nil
	}
	if delta > 0 {
		last := r.slots[r.endex-1]
		if block.MaxAddress-last.EndAddress() < block.Address(delta) {
			return &errs.AddressOverflow{Op: "rack.Shift", Addr: last.EndAddress()}
		}
	} else if delta < 0 {
		first := r.slots[r.start]
		if first.Address() < block.Address(-delta) {
			return &errs.AddressOverflow{Op: "rack.Shift", Addr: first.Address()}
		}
	}
	for i := r.start; i < r.endex; i++ {
		if err := r.slots[i].Rebase(block.Address(int64(r.slots[i].Address()) + delta)); err != nil {
			return err
		}
	}
	return nil
}

// Free releases every block's reference. The Rack must not be used
// afterwards.
func (r *Rack) Free() {
	for i := r.start; i < r.endex; i++ {
		r.slots[i].Release()
	}
	r.slots = nil
	r.start, r.endex = 0, 0
}
