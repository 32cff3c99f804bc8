// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"github.com/cznic/mathutil"

	"github.com/cznic/sparsemem/block"
	"github.com/cznic/sparsemem/errs"
	"github.com/cznic/sparsemem/rack"
)

// Range is a half-open address interval [Start, Endex).
type Range struct {
	Start, Endex block.Address
}

// Len reports the number of addresses in the range.
func (r Range) Len() uint64 { return uint64(r.Endex - r.Start) }

// BlockEntry pairs an address with the bytes stored there, for
// construction and export (FromBlocks, ToBlocks).
type BlockEntry struct {
	Address block.Address
	Data    []byte
}

// Item is a single (address, value) pair, used by FromItems; an item
// with a nil Value is skipped.
type Item struct {
	Address block.Address
	Value   *byte
}

// Options configures construction: an optional trim window and whether
// the constructed layout is validated for ordering/overlap. Mirrors the
// Options-struct construction convention used throughout this module's
// ambient stack.
type Options struct {
	TrimStart *block.Address
	TrimEnd   *block.Address
	Validate  bool
}

// Memory is a sparse, address-addressable byte space backed by a
// rack.Rack of block.Block. See the package doc for the trimming and
// backup/restore model.
type Memory struct {
	rack             *rack.Rack
	trimStart        block.Address
	trimEndex        block.Address
	trimStartEnabled bool
	trimEndexEnabled bool
}

// New returns a new, empty, untrimmed Memory.
func New() *Memory {
	return &Memory{rack: rack.New()}
}

func newWithOptions(opts Options) *Memory {
	m := &Memory{rack: rack.New()}
	if opts.TrimStart != nil {
		m.trimStart = *opts.TrimStart
		m.trimStartEnabled = true
	}
	if opts.TrimEnd != nil {
		m.trimEndex = *opts.TrimEnd
		m.trimEndexEnabled = true
	}
	if m.trimStartEnabled && m.trimEndexEnabled && m.trimEndex < m.trimStart {
		m.trimEndex = m.trimStart
	}
	return m
}

// FromBlocks builds a Memory from an ordered, non-overlapping sequence of
// (address, data) pairs. Touching pairs are merged; overlapping or
// out-of-order pairs are rejected with *errs.InvalidLayout.
func FromBlocks(entries []BlockEntry, opts Options) (*Memory, error) {
	m := newWithOptions(opts)
	r := rack.New()
	var prevEnd block.Address
	havePrev := false
	for _, e := range entries {
		if len(e.Data) == 0 {
			continue
		}
		if havePrev && e.Address < prevEnd {
			return nil, &errs.InvalidLayout{Op: "mem.FromBlocks", Reason: "overlapping or unordered blocks"}
		}
		if havePrev && e.Address == prevEnd {
			prev, _ := r.Get(r.Len() - 1)
			if err := prev.Extend(e.Data); err != nil {
				return nil, err
			}
		} else {
			nb, err := block.New(e.Address, e.Data)
			if err != nil {
				return nil, err
			}
			if err := r.Append(nb); err != nil {
				return nil, err
			}
			nb.Release()
		}
		prevEnd = e.Address + block.Address(len(e.Data))
		havePrev = true
	}
	m.rack = r
	if err := m.cropToTrim(); err != nil {
		return nil, err
	}
	if opts.Validate {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FromBytes builds a Memory holding a single contiguous run of data
// starting at address.
func FromBytes(address block.Address, data []byte, opts Options) (*Memory, error) {
	return FromBlocks([]BlockEntry{{Address: address, Data: data}}, opts)
}

// FromItems builds a Memory by poking each item in order; later items
// overwrite earlier ones at the same address. A nil Value leaves that
// address untouched (it does not erase a previous poke).
func FromItems(items []Item, opts Options) (*Memory, error) {
	m := newWithOptions(opts)
	for _, it := range items {
		if it.Value == nil {
			continue
		}
		if err := m.Poke(it.Address, it.Value); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FromValues builds a Memory from a value sequence starting at start; a
// nil entry denotes a gap.
func FromValues(start block.Address, values []*byte, opts Options) (*Memory, error) {
	m := newWithOptions(opts)
	for i, v := range values {
		if v == nil {
			continue
		}
		if err := m.Poke(start+block.Address(i), v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FromMemory builds a deep copy of src, optionally shifted by delta.
func FromMemory(src *Memory, delta int64, opts Options) (*Memory, error) {
	m := newWithOptions(opts)
	m.rack = src.rack.DeepCopy()
	if delta != 0 {
		if err := m.rack.Shift(delta); err != nil {
			return nil, err
		}
	}
	if err := m.cropToTrim(); err != nil {
		return nil, err
	}
	if opts.Validate {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// --- bounds --------------------------------------------------------------

// Start returns the trim start if enabled, else the address of the first
// stored byte, else 0.
func (m *Memory) Start() block.Address {
	if m.trimStartEnabled {
		return m.trimStart
	}
	if m.rack.Len() > 0 {
		b, _ := m.rack.Get(0)
		return b.Address()
	}
	return 0
}

// Endex returns the trim end if enabled, else the address past the last
// stored byte, else Start().
func (m *Memory) Endex() block.Address {
	if m.trimEndexEnabled {
		return m.trimEndex
	}
	if m.rack.Len() > 0 {
		b, _ := m.rack.Get(m.rack.Len() - 1)
		return b.EndAddress()
	}
	return m.Start()
}

// ContentStart returns the address of the first stored byte, ignoring
// trimming, or the trim start, or 0.
func (m *Memory) ContentStart() block.Address {
	if m.rack.Len() > 0 {
		b, _ := m.rack.Get(0)
		return b.Address()
	}
	if m.trimStartEnabled {
		return m.trimStart
	}
	return 0
}

// ContentEndex returns the address past the last stored byte, ignoring
// trimming, or ContentStart().
func (m *Memory) ContentEndex() block.Address {
	if m.rack.Len() > 0 {
		b, _ := m.rack.Get(m.rack.Len() - 1)
		return b.EndAddress()
	}
	return m.ContentStart()
}

// SetTrimStart enables a lower address bound, cropping any data below it.
func (m *Memory) SetTrimStart(addr block.Address) error {
	m.trimStart = addr
	m.trimStartEnabled = true
	if m.trimEndexEnabled && m.trimEndex < m.trimStart {
		m.trimStart = m.trimEndex
	}
	return m.cropToTrim()
}

// ClearTrimStart disables the lower address bound.
func (m *Memory) ClearTrimStart() { m.trimStartEnabled = false }

// SetTrimEnd enables an upper address bound, cropping any data at or
// above it.
func (m *Memory) SetTrimEnd(addr block.Address) error {
	m.trimEndex = addr
	m.trimEndexEnabled = true
	if m.trimStartEnabled && m.trimEndex < m.trimStart {
		m.trimEndex = m.trimStart
	}
	return m.cropToTrim()
}

// ClearTrimEnd disables the upper address bound.
func (m *Memory) ClearTrimEnd() { m.trimEndexEnabled = false }

// bound clips [a, b) (either may be nil, meaning "unbounded on that
// side") to [Start(), Endex()].
func (m *Memory) bound(a, b *block.Address) (block.Address, block.Address) {
	s, e := m.Start(), m.Endex()
	aa, bb := s, e
	if a != nil {
		aa = *a
	}
	if b != nil {
		bb = *b
	}
	aa = mathutil.MinUint64(mathutil.MaxUint64(aa, s), e)
	bb = mathutil.MinUint64(mathutil.MaxUint64(bb, s), e)
	bb = mathutil.MaxUint64(bb, aa)
	return aa, bb
}

// Validate checks that stored blocks are ordered, non-overlapping,
// non-empty, non-touching, and within the trim window (if any).
func (m *Memory) Validate() error {
	n := m.rack.Len()
	var prevEnd block.Address
	for i := 0; i < n; i++ {
		b, _ := m.rack.Get(i)
		if b.Len() == 0 {
			return &errs.InvalidLayout{Op: "mem.Validate", Reason: "empty block"}
		}
		if i > 0 && b.Address() <= prevEnd {
			return &errs.InvalidLayout{Op: "mem.Validate", Reason: "overlapping or touching blocks"}
		}
		if m.trimStartEnabled && b.Address() < m.trimStart {
			return &errs.InvalidLayout{Op: "mem.Validate", Reason: "data before trim start"}
		}
		if m.trimEndexEnabled && b.EndAddress() > m.trimEndex {
			return &errs.InvalidLayout{Op: "mem.Validate", Reason: "data past trim end"}
		}
		prevEnd = b.EndAddress()
	}
	if m.trimStartEnabled && m.trimEndexEnabled && m.trimEndex < m.trimStart {
		return &errs.InvalidLayout{Op: "mem.Validate", Reason: "trim end precedes trim start"}
	}
	return nil
}

// Equal reports whether m and other hold the same bytes at the same
// addresses.
func (m *Memory) Equal(other *Memory) bool {
	return m.rack.Eq(other.rack)
}

// --- internal helpers ------------------------------------------------------

func ensureUniqueAt(r *rack.Rack, i int) error {
	b, err := r.Get(i)
	if err != nil {
		return err
	}
	if b.References() <= 1 {
		return nil
	}
	clone := b.Clone()
	old, err := r.Set(i, clone)
	if err != nil {
		return err
	}
	clone.Release()
	old.Release()
	return nil
}

func maxAddr(a, b block.Address) block.Address { return mathutil.MaxUint64(a, b) }

func minAddr(a, b block.Address) block.Address { return mathutil.MinUint64(a, b) }

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// cropToTrim erases any content outside an enabled trim window.
func (m *Memory) cropToTrim() error {
	if m.trimStartEnabled {
		if err := m.erase(0, m.trimStart, false); err != nil {
			return err
		}
	}
	if m.trimEndexEnabled {
		if err := m.erase(m.trimEndex, block.MaxAddress, false); err != nil {
			return err
		}
	}
	return nil
}

// clip clips [address, address+len(data)) to the trim window, returning
// the (possibly shortened) sub-slice of data that lands inside it and
// its adjusted start address.
func (m *Memory) clip(address block.Address, data []byte) (block.Address, []byte) {
	end := address + block.Address(len(data))
	s, e := address, end
	if m.trimStartEnabled && s < m.trimStart {
		s = m.trimStart
	}
	if m.trimEndexEnabled && e > m.trimEndex {
		e = m.trimEndex
	}
	if e <= s {
		return address, nil
	}
	return s, data[int(s-address):int(e-address)]
}

// mergeAll restores the non-touching invariant by merging every pair of
// address-adjacent blocks. It is called after any edit that could have
// introduced a new adjacency (place, erase-with-shift).
func (m *Memory) mergeAll() error {
	r := m.rack
	i := 0
	for i+1 < r.Len() {
		a, _ := r.Get(i)
		b, _ := r.Get(i + 1)
		if a.EndAddress() == b.Address() {
			if err := ensureUniqueAt(r, i); err != nil {
				return err
			}
			a, _ = r.Get(i)
			if err := a.Extend(b.Bytes()); err != nil {
				return err
			}
			if err := r.Delete(i+1, 1); err != nil {
				return err
			}
			continue
		}
		i++
	}
	return nil
}

// --- the two core primitives ------------------------------------------------

// place writes data at address. If shiftAfter, blocks at or past address
// are shifted right by len(data) first (insert semantics); otherwise any
// existing content in [address, address+len(data)) is overwritten
// (write semantics). Either way the result is clipped to the trim
// window and merged with touching neighbors.
func (m *Memory) place(address block.Address, data []byte, shiftAfter bool) error {
	if len(data) == 0 {
		return nil
	}
	r := m.rack
	if shiftAfter {
		// Reserve opens a gap of exactly len(data) at address - splitting a
		// straddled block and rebasing it plus everything after, the same
		// as a standalone Reserve call - then the gap is overwritten like
		// any other write, merging with whatever now borders it.
		if err := m.Reserve(address, len(data)); err != nil {
			return err
		}
		return m.place(address, data, false)
	}

	end := address + block.Address(len(data))
	if err := m.erase(address, end, false); err != nil {
		return err
	}
	startIdx := r.IndexStart(address)
	nb, err := block.New(address, data)
	if err != nil {
		return err
	}
	if err := r.Insert(startIdx, nb); err != nil {
		return err
	}
	if err := m.mergeAll(); err != nil {
		return err
	}
	return m.cropToTrim()
}

// erase removes [start, end). If shiftAfter, blocks at or past end are
// shifted left by (end - start), closing the gap (delete semantics);
// otherwise later blocks keep their address (clear semantics).
func (m *Memory) erase(start, end block.Address, shiftAfter bool) error {
	if end <= start {
		return nil
	}
	r := m.rack
	i := r.IndexStart(start)
	for i < r.Len() {
		b, _ := r.Get(i)
		if b.Address() >= end {
			break
		}
		bs, be := b.Address(), b.EndAddress()
		switch {
		case bs >= start && be <= end:
			if err := r.Delete(i, 1); err != nil {
				return err
			}
			continue
		case bs < start && be > end:
			if err := ensureUniqueAt(r, i); err != nil {
				return err
			}
			b, _ = r.Get(i)
			suffixLen := int(be - end)
			suffixData := make([]byte, suffixLen)
			copy(suffixData, b.Bytes()[int(end-bs):])
			if err := b.Delete(int(start-bs), int(be-start)); err != nil {
				return err
			}
			nb, err := block.New(end, suffixData)
			if err != nil {
				return err
			}
			if err := r.Insert(i+1, nb); err != nil {
				return err
			}
			i += 2
			continue
		case bs < start:
			if err := ensureUniqueAt(r, i); err != nil {
				return err
			}
			b, _ = r.Get(i)
			if err := b.Delete(int(start-bs), int(be-start)); err != nil {
				return err
			}
			i++
			continue
		default:
			if err := ensureUniqueAt(r, i); err != nil {
				return err
			}
			b, _ = r.Get(i)
			if err := b.Delete(0, int(end-bs)); err != nil {
				return err
			}
			i++
			continue
		}
	}
	if shiftAfter {
		delta := int64(end) - int64(start)
		for k := 0; k < r.Len(); k++ {
			b, _ := r.Get(k)
			if b.Address() >= end {
				if err := ensureUniqueAt(r, k); err != nil {
					return err
				}
				b, _ = r.Get(k)
				if err := b.Rebase(block.Address(int64(b.Address()) - delta)); err != nil {
					return err
				}
			}
		}
		return m.mergeAll()
	}
	return nil
}

// --- peek / poke -----------------------------------------------------------

// Peek returns the byte at a and true, or (0, false) if a is a gap.
func (m *Memory) Peek(a block.Address) (byte, bool) {
	idx := m.rack.IndexAt(a)
	if idx < 0 {
		return 0, false
	}
	b, _ := m.rack.Get(idx)
	v, _ := b.At(int(a - b.Address()))
	return v, true
}

// Poke writes a single byte at a, or clears it if v is nil.
func (m *Memory) Poke(a block.Address, v *byte) error {
	if v == nil {
		return m.Clear(a, a+1)
	}
	return m.Write(a, []byte{*v}, true)
}

// --- higher-level operations ------------------------------------------------

// Write overwrites [address, address+len(data)) with data, clipped to the
// trim window. clear is accepted for API symmetry with the specification;
// the resulting bytes are identical either way, since data fully
// determines the target range's content regardless of how the
// implementation reuses or discards the blocks that used to occupy it.
func (m *Memory) Write(address block.Address, data []byte, clear bool) error {
	if len(data) == 0 {
		return nil
	}
	s, clipped := m.clip(address, data)
	if len(clipped) == 0 {
		return nil
	}
	return m.place(s, clipped, false)
}

// Insert shifts [address, Endex()) right by len(data) and writes data at
// address.
func (m *Memory) Insert(address block.Address, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return m.place(address, data, true)
}

// Delete removes [start, end), shifting later content left to close the
// gap.
func (m *Memory) Delete(start, end block.Address) error {
	return m.erase(start, end, true)
}

// Clear removes [start, end) without shifting later content.
func (m *Memory) Clear(start, end block.Address) error {
	return m.erase(start, end, false)
}

// Reserve opens a gap of n empty (unwritten) bytes at address, shifting
// [address, Endex()) right by n.
func (m *Memory) Reserve(address block.Address, n int) error {
	if n <= 0 {
		return nil
	}
	r := m.rack
	idx := r.IndexAt(address)
	if idx >= 0 {
		b, _ := r.Get(idx)
		offset := int(address - b.Address())
		if offset > 0 && offset < b.Len() {
			if err := ensureUniqueAt(r, idx); err != nil {
				return err
			}
			b, _ = r.Get(idx)
			suffixLen := b.Len() - offset
			suffixData := make([]byte, suffixLen)
			copy(suffixData, b.Bytes()[offset:])
			if err := b.Delete(offset, suffixLen); err != nil {
				return err
			}
			nb, err := block.New(address, suffixData)
			if err != nil {
				return err
			}
			if err := r.Insert(idx+1, nb); err != nil {
				return err
			}
		}
	}
	start := r.IndexStart(address)
	for k := start; k < r.Len(); k++ {
		if err := ensureUniqueAt(r, k); err != nil {
			return err
		}
		b, _ := r.Get(k)
		if err := b.Rebase(b.Address() + block.Address(n)); err != nil {
			return err
		}
	}
	return m.cropToTrim()
}

// patternByteAt resolves the pattern byte for address, rotated so that
// position anchor aligns with pattern[0].
func patternByteAt(anchor, address block.Address, pattern []byte) byte {
	pos := (int64(address) - int64(anchor)) % int64(len(pattern))
	if pos < 0 {
		pos += int64(len(pattern))
	}
	return pattern[pos]
}

// Fill overwrites [start, end) with pattern, repeated and rotated so that
// Start() (at call time) aligns with pattern[0].
func (m *Memory) Fill(start, end block.Address, pattern []byte) error {
	if len(pattern) == 0 {
		return &errs.EmptyPattern{Op: "mem.Fill"}
	}
	if end <= start {
		return nil
	}
	anchor := m.Start()
	data := make([]byte, int(end-start))
	for i := range data {
		data[i] = patternByteAt(anchor, start+block.Address(i), pattern)
	}
	return m.place(start, data, false)
}

// Flood fills only the gaps within [start, end) with pattern, leaving
// existing content untouched.
func (m *Memory) Flood(start, end block.Address, pattern []byte) error {
	if len(pattern) == 0 {
		return &errs.EmptyPattern{Op: "mem.Flood"}
	}
	if end <= start {
		return nil
	}
	anchor := m.Start()
	for _, gap := range m.Gaps(start, end) {
		data := make([]byte, int(gap.Endex-gap.Start))
		for i := range data {
			data[i] = patternByteAt(anchor, gap.Start+block.Address(i), pattern)
		}
		if err := m.place(gap.Start, data, false); err != nil {
			return err
		}
	}
	return nil
}

// Shift adds delta to every stored address.
func (m *Memory) Shift(delta int64) error {
	if delta == 0 {
		return nil
	}
	if err := m.rack.Consolidate(); err != nil {
		return err
	}
	if err := m.rack.Shift(delta); err != nil {
		return err
	}
	return m.cropToTrim()
}

// Crop discards all content outside [start, end).
func (m *Memory) Crop(start, end block.Address) error {
	if err := m.erase(0, start, false); err != nil {
		return err
	}
	return m.erase(end, block.MaxAddress, false)
}

// Reverse reverses the whole [Start(), Endex()) span: both the order of
// bytes and, per block, their internal order and position.
func (m *Memory) Reverse() error {
	start, endex := m.Start(), m.Endex()
	r := m.rack
	n := r.Len()
	if n == 0 {
		return nil
	}
	newBlocks := make([]*block.Block, n)
	for i := 0; i < n; i++ {
		b, _ := r.Get(i)
		data := make([]byte, b.Len())
		copy(data, b.Bytes())
		reverseBytes(data)
		newAddr := start + (endex - b.EndAddress())
		nb, err := block.New(newAddr, data)
		if err != nil {
			return err
		}
		newBlocks[n-1-i] = nb
	}
	newRack := rack.New()
	for _, nb := range newBlocks {
		if err := newRack.Append(nb); err != nil {
			return err
		}
	}
	m.rack.Free()
	m.rack = newRack
	return nil
}

// Contiguous reports whether the stored content has no internal gap and,
// if trimmed, exactly spans the trim window.
func (m *Memory) Contiguous() bool {
	n := m.rack.Len()
	if n == 0 {
		if m.trimStartEnabled && m.trimEndexEnabled {
			return m.trimStart == m.trimEndex
		}
		return true
	}
	for i := 0; i+1 < n; i++ {
		a, _ := m.rack.Get(i)
		b, _ := m.rack.Get(i + 1)
		if a.EndAddress() != b.Address() {
			return false
		}
	}
	if m.trimStartEnabled || m.trimEndexEnabled {
		first, _ := m.rack.Get(0)
		last, _ := m.rack.Get(n - 1)
		if m.trimStartEnabled && first.Address() != m.trimStart {
			return false
		}
		if m.trimEndexEnabled && last.EndAddress() != m.trimEndex {
			return false
		}
	}
	return true
}

// Extract returns a new Memory holding [start, end). With step == 1 it is
// a verbatim sub-copy (gaps preserved). With step > 1 it samples every
// step-th address, compacting the samples into consecutive output
// addresses starting at 0; a gap sample is filled from pattern (rotated)
// if pattern is non-empty, else skipped.
func (m *Memory) Extract(start, end block.Address, pattern []byte, step int, bound bool) (*Memory, error) {
	if step <= 0 {
		step = 1
	}
	if bound {
		start, end = m.bound(&start, &end)
	}
	out := New()
	if end <= start {
		return out, nil
	}
	if step == 1 {
		addr := start
		for addr < end {
			idx := m.rack.IndexAt(addr)
			if idx < 0 {
				ni := m.rack.IndexStart(addr)
				if ni >= m.rack.Len() {
					break
				}
				nb, _ := m.rack.Get(ni)
				if nb.Address() >= end {
					break
				}
				addr = nb.Address()
				continue
			}
			b, _ := m.rack.Get(idx)
			hi := minAddr(end, b.EndAddress())
			off := int(addr - b.Address())
			data := make([]byte, int(hi-addr))
			copy(data, b.Bytes()[off:off+len(data)])
			if err := out.Write(addr, data, true); err != nil {
				return nil, err
			}
			addr = hi
		}
		return out, nil
	}
	var outAddr block.Address
	for addr := start; addr < end; addr += block.Address(step) {
		if v, ok := m.Peek(addr); ok {
			if err := out.Write(outAddr, []byte{v}, true); err != nil {
				return nil, err
			}
		} else if len(pattern) > 0 {
			pv := patternByteAt(start, addr, pattern)
			if err := out.Write(outAddr, []byte{pv}, true); err != nil {
				return nil, err
			}
		}
		outAddr++
	}
	return out, nil
}

// Cut extracts [start, end) into a new Memory and removes it from m,
// shifting later content left to close the gap.
func (m *Memory) Cut(start, end block.Address, bound bool) (*Memory, error) {
	out, err := m.Extract(start, end, nil, 1, bound)
	if err != nil {
		return nil, err
	}
	if bound {
		start, end = m.bound(&start, &end)
	}
	if err := m.erase(start, end, true); err != nil {
		return nil, err
	}
	return out, nil
}

// --- search ------------------------------------------------------------

// Find returns the lowest address in [start, end) where needle occurs, or
// -1. A needle is never matched across a block boundary.
func (m *Memory) Find(needle []byte, start, end block.Address) int64 {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i < m.rack.Len(); i++ {
		b, _ := m.rack.Get(i)
		if b.EndAddress() <= start {
			continue
		}
		if b.Address() >= end {
			break
		}
		lo := maxAddr(start, b.Address())
		hi := minAddr(end, b.EndAddress())
		if hi <= lo || hi-lo < block.Address(len(needle)) {
			continue
		}
		off := int(lo - b.Address())
		endOff := int(hi - b.Address())
		if idx := b.Find(needle, off, endOff); idx >= 0 {
			return int64(b.Address()) + int64(idx)
		}
	}
	return -1
}

// RFind returns the highest address in [start, end) where needle occurs,
// or -1.
func (m *Memory) RFind(needle []byte, start, end block.Address) int64 {
	if len(needle) == 0 {
		return -1
	}
	for i := m.rack.Len() - 1; i >= 0; i-- {
		b, _ := m.rack.Get(i)
		if b.Address() >= end {
			continue
		}
		if b.EndAddress() <= start {
			break
		}
		lo := maxAddr(start, b.Address())
		hi := minAddr(end, b.EndAddress())
		if hi <= lo || hi-lo < block.Address(len(needle)) {
			continue
		}
		off := int(lo - b.Address())
		endOff := int(hi - b.Address())
		if idx := b.RFind(needle, off, endOff); idx >= 0 {
			return int64(b.Address()) + int64(idx)
		}
	}
	return -1
}

// Count returns the number of non-overlapping occurrences of needle in
// [start, end), none crossing a block boundary.
func (m *Memory) Count(needle []byte, start, end block.Address) int {
	if len(needle) == 0 {
		return 0
	}
	total := 0
	for i := 0; i < m.rack.Len(); i++ {
		b, _ := m.rack.Get(i)
		if b.EndAddress() <= start || b.Address() >= end {
			continue
		}
		lo := maxAddr(start, b.Address())
		hi := minAddr(end, b.EndAddress())
		if hi <= lo {
			continue
		}
		total += b.Count(needle, int(lo-b.Address()), int(hi-b.Address()))
	}
	return total
}

// --- spans / gaps / intervals -----------------------------------------------

func (m *Memory) gapBoundsAt(a block.Address) (block.Address, block.Address) {
	idx := m.rack.IndexStart(a)
	var lo block.Address
	if idx > 0 {
		prev, _ := m.rack.Get(idx - 1)
		lo = prev.EndAddress()
	}
	hi := block.MaxAddress
	if idx < m.rack.Len() {
		nb, _ := m.rack.Get(idx)
		hi = nb.Address()
	}
	return lo, hi
}

// BlockSpan returns the bounds of the block containing a (or the
// enclosing gap) and, if a lands in a block, the value at a.
func (m *Memory) BlockSpan(a block.Address) (start, endex block.Address, value *byte) {
	idx := m.rack.IndexAt(a)
	if idx < 0 {
		s, e := m.gapBoundsAt(a)
		return s, e, nil
	}
	b, _ := m.rack.Get(idx)
	v, _ := b.At(int(a - b.Address()))
	return b.Address(), b.EndAddress(), &v
}

// EqualSpan returns the bounds of the maximal run of bytes equal to the
// byte at a (or the enclosing gap if a is unwritten).
func (m *Memory) EqualSpan(a block.Address) (start, endex block.Address, value *byte) {
	idx := m.rack.IndexAt(a)
	if idx < 0 {
		s, e := m.gapBoundsAt(a)
		return s, e, nil
	}
	b, _ := m.rack.Get(idx)
	data := b.Bytes()
	off := int(a - b.Address())
	v := data[off]
	lo, hi := off, off+1
	for lo > 0 && data[lo-1] == v {
		lo--
	}
	for hi < len(data) && data[hi] == v {
		hi++
	}
	start = b.Address() + block.Address(lo)
	endex = b.Address() + block.Address(hi)
	return start, endex, &v
}

// Gaps returns the unwritten sub-ranges of [start, end).
func (m *Memory) Gaps(start, end block.Address) []Range {
	var out []Range
	cur := start
	n := m.rack.Len()
	idx := m.rack.IndexStart(start)
	for i := idx; i < n; i++ {
		b, _ := m.rack.Get(i)
		if b.Address() >= end {
			break
		}
		bs := b.Address()
		if bs > cur {
			hi := minAddr(bs, end)
			if hi > cur {
				out = append(out, Range{cur, hi})
			}
		}
		if b.EndAddress() > cur {
			cur = b.EndAddress()
		}
	}
	if cur < end {
		out = append(out, Range{cur, end})
	}
	return out
}

// Intervals returns the written sub-ranges of [start, end).
func (m *Memory) Intervals(start, end block.Address) []Range {
	var out []Range
	n := m.rack.Len()
	idx := m.rack.IndexStart(start)
	for i := idx; i < n; i++ {
		b, _ := m.rack.Get(i)
		if b.Address() >= end {
			break
		}
		lo := maxAddr(start, b.Address())
		hi := minAddr(end, b.EndAddress())
		if hi > lo {
			out = append(out, Range{lo, hi})
		}
	}
	return out
}

// --- export ------------------------------------------------------------

// ToBlocks returns copies of the written sub-ranges of [start, end) as
// BlockEntry values.
func (m *Memory) ToBlocks(start, end block.Address) []BlockEntry {
	ivs := m.Intervals(start, end)
	out := make([]BlockEntry, 0, len(ivs))
	for _, iv := range ivs {
		idx := m.rack.IndexAt(iv.Start)
		b, _ := m.rack.Get(idx)
		data := make([]byte, int(iv.Endex-iv.Start))
		copy(data, b.Bytes()[int(iv.Start-b.Address()):int(iv.Endex-b.Address())])
		out = append(out, BlockEntry{Address: iv.Start, Data: data})
	}
	return out
}

// ToBytes concatenates [start, end), failing with *errs.NotContiguous if
// the range contains a gap.
func (m *Memory) ToBytes(start, end block.Address) ([]byte, error) {
	if len(m.Gaps(start, end)) > 0 {
		return nil, &errs.NotContiguous{Op: "mem.ToBytes", Start: start, Endex: end}
	}
	out := make([]byte, 0, int(end-start))
	for _, iv := range m.Intervals(start, end) {
		idx := m.rack.IndexAt(iv.Start)
		b, _ := m.rack.Get(idx)
		out = append(out, b.Bytes()[int(iv.Start-b.Address()):int(iv.Endex-b.Address())]...)
	}
	return out, nil
}

// View returns a zero-copy view over [start, end), which must lie
// entirely within a single stored block.
func (m *Memory) View(start, end block.Address) (*block.View, error) {
	if end <= start {
		return nil, &errs.NotContiguous{Op: "mem.View", Start: start, Endex: end}
	}
	idx := m.rack.IndexAt(start)
	if idx < 0 {
		return nil, &errs.NotContiguous{Op: "mem.View", Start: start, Endex: end}
	}
	b, _ := m.rack.Get(idx)
	if end > b.EndAddress() {
		return nil, &errs.NotContiguous{Op: "mem.View", Start: start, Endex: end}
	}
	i := int(start - b.Address())
	j := int(end - b.Address())
	return b.ViewSlice(i, j)
}

// --- backup / restore --------------------------------------------------

func (m *Memory) writeFromMemory(src *Memory, start, end block.Address) error {
	for i := 0; i < src.rack.Len(); i++ {
		b, _ := src.rack.Get(i)
		if b.EndAddress() <= start || b.Address() >= end {
			continue
		}
		lo := maxAddr(start, b.Address())
		hi := minAddr(end, b.EndAddress())
		data := make([]byte, int(hi-lo))
		copy(data, b.Bytes()[int(lo-b.Address()):int(hi-b.Address())])
		if err := m.Write(lo, data, true); err != nil {
			return err
		}
	}
	return nil
}

// WriteBackup captures the content a subsequent Write(address, data,
// clear) would overwrite.
func (m *Memory) WriteBackup(address block.Address, dataLen int) (*Memory, error) {
	return m.Extract(address, address+block.Address(dataLen), nil, 1, false)
}

// WriteRestore undoes a Write using a backup from WriteBackup.
func (m *Memory) WriteRestore(backup *Memory, address block.Address, dataLen int) error {
	end := address + block.Address(dataLen)
	if err := m.Clear(address, end); err != nil {
		return err
	}
	return m.writeFromMemory(backup, address, end)
}

// FillBackup captures the content a subsequent Fill(start, end, ...)
// would overwrite.
func (m *Memory) FillBackup(start, end block.Address) (*Memory, error) {
	return m.Extract(start, end, nil, 1, false)
}

// FillRestore undoes a Fill using a backup from FillBackup.
func (m *Memory) FillRestore(backup *Memory, start, end block.Address) error {
	if err := m.Clear(start, end); err != nil {
		return err
	}
	return m.writeFromMemory(backup, start, end)
}

// FloodBackup captures the content a subsequent Flood(start, end, ...)
// would overwrite (the gaps it would fill).
func (m *Memory) FloodBackup(start, end block.Address) (*Memory, error) {
	return m.Extract(start, end, nil, 1, false)
}

// FloodRestore undoes a Flood using a backup from FloodBackup.
func (m *Memory) FloodRestore(backup *Memory, start, end block.Address) error {
	return m.FillRestore(backup, start, end)
}

// ClearBackup captures [start, end) before a subsequent Clear.
func (m *Memory) ClearBackup(start, end block.Address) (*Memory, error) {
	return m.Extract(start, end, nil, 1, false)
}

// ClearRestore undoes a Clear using a backup from ClearBackup.
func (m *Memory) ClearRestore(backup *Memory, start, end block.Address) error {
	return m.writeFromMemory(backup, start, end)
}

// DeleteBackup captures [start, end) before a subsequent Delete.
func (m *Memory) DeleteBackup(start, end block.Address) (*Memory, error) {
	return m.Extract(start, end, nil, 1, false)
}

// DeleteRestore undoes a Delete using a backup from DeleteBackup: it
// reopens the gap and writes the captured content (and sub-gaps) back.
func (m *Memory) DeleteRestore(backup *Memory, start, end block.Address) error {
	if err := m.Reserve(start, int(end-start)); err != nil {
		return err
	}
	return m.writeFromMemory(backup, start, end)
}

// ReserveBackup captures the tail content that Reserve(address, n) would
// push past Endex() (and potentially crop, if trimmed).
func (m *Memory) ReserveBackup(address block.Address, n int) (*Memory, error) {
	e := m.Endex()
	s := e
	if block.Address(n) <= e {
		s = e - block.Address(n)
	}
	return m.Extract(s, e, nil, 1, false)
}

// ReserveRestore undoes a Reserve using a backup from ReserveBackup.
func (m *Memory) ReserveRestore(backup *Memory, address block.Address, n int) error {
	if err := m.Delete(address, address+block.Address(n)); err != nil {
		return err
	}
	e := m.Endex()
	s := e
	if block.Address(n) <= e {
		s = e - block.Address(n)
	}
	return m.writeFromMemory(backup, s, e)
}

// InsertBackup captures the tail content that Insert(address, data) would
// push past Endex() (and potentially crop, if trimmed).
func (m *Memory) InsertBackup(address block.Address, dataLen int) (*Memory, error) {
	return m.ReserveBackup(address, dataLen)
}

// InsertRestore undoes an Insert using a backup from InsertBackup.
func (m *Memory) InsertRestore(backup *Memory, address block.Address, dataLen int) error {
	return m.ReserveRestore(backup, address, dataLen)
}

// CropBackup captures the whole content before a subsequent Crop.
func (m *Memory) CropBackup() (*Memory, error) {
	return m.Extract(m.ContentStart(), m.ContentEndex(), nil, 1, false)
}

// CropRestore undoes a Crop using a backup from CropBackup.
func (m *Memory) CropRestore(backup *Memory) error {
	if backup.rack.Len() == 0 {
		return nil
	}
	return m.writeFromMemory(backup, backup.ContentStart(), backup.ContentEndex())
}

// ShiftBackup records enough to attempt ShiftRestore; the only exact
// inverse of Shift is shifting back by the same delta (the Testable
// Properties' shift-composition law holds "when no trimming clips" - if
// trimming cropped data during the original Shift, ShiftRestore cannot
// recover it, same as the law's own caveat).
func (m *Memory) ShiftBackup() (*Memory, error) {
	return m.Extract(m.ContentStart(), m.ContentEndex(), nil, 1, false)
}

// ShiftRestore undoes a Shift(delta) by shifting back by -delta.
func (m *Memory) ShiftRestore(backup *Memory, delta int64) error {
	_ = backup
	return m.Shift(-delta)
}

// ReverseBackup needs no state: Reverse is its own inverse.
func (m *Memory) ReverseBackup() *Memory { return nil }

// ReverseRestore undoes a Reverse by reversing again.
func (m *Memory) ReverseRestore(_ *Memory) error {
	return m.Reverse()
}
