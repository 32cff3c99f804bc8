// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import "github.com/cznic/sparsemem/block"

// Rover is a forward or reverse cursor over a Memory's [start, endex)
// span, yielding (address, value) pairs where value is nil over a gap
// unless a repeating pattern is supplied. With infinite set, the cursor
// never reports exhaustion and keeps advancing past endex (forward) or
// below start (reverse), sourcing every byte from the rotating pattern
// once real content runs out.
type Rover struct {
	m       *Memory
	forward bool
	start   block.Address
	endex   block.Address
	cur     block.Address
	pattern []byte
	patOff  int
	infinite bool

	haveHeld bool
	heldIdx  int
	heldView *block.View
}

// NewRover returns a cursor over [start, endex) in the given direction.
// pattern may be nil or empty (gaps then yield a nil value).
func (m *Memory) NewRover(forward bool, start, endex block.Address, pattern []byte, infinite bool) *Rover {
	r := &Rover{
		m: m, forward: forward, start: start, endex: endex,
		pattern: pattern, infinite: infinite, heldIdx: -2,
	}
	if forward {
		r.cur = start
	} else {
		r.cur = endex
	}
	return r
}

// Next returns the next (address, value) pair and true, or (0, nil,
// false) once the non-infinite cursor is exhausted.
func (r *Rover) Next() (block.Address, *byte, bool) {
	if r.forward {
		if !r.infinite && r.cur >= r.endex {
			r.Close()
			return 0, nil, false
		}
		addr := r.cur
		v := r.valueAt(addr)
		r.cur++
		r.advancePattern(1)
		return addr, v, true
	}
	if !r.infinite && r.cur <= r.start {
		r.Close()
		return 0, nil, false
	}
	r.cur--
	addr := r.cur
	r.advancePattern(-1)
	v := r.valueAt(addr)
	return addr, v, true
}

// Close releases any block reference the Rover is holding. Safe to call
// more than once; called automatically when a finite Rover is exhausted.
func (r *Rover) Close() {
	if r.heldView != nil {
		r.heldView.Release()
		r.heldView = nil
	}
	r.haveHeld = false
	r.heldIdx = -2
}

func (r *Rover) advancePattern(dir int) {
	if len(r.pattern) == 0 {
		return
	}
	r.patOff = (r.patOff + dir) % len(r.pattern)
	if r.patOff < 0 {
		r.patOff += len(r.pattern)
	}
}

// valueAt resolves the value at addr, acquiring a view over whichever
// block currently holds addr (or releasing any held view while addr is
// in a gap), for the duration that addr stays within the same block.
func (r *Rover) valueAt(addr block.Address) *byte {
	idx := r.m.rack.IndexAt(addr)
	if !r.haveHeld || idx != r.heldIdx {
		if r.heldView != nil {
			r.heldView.Release()
			r.heldView = nil
		}
		r.heldIdx = idx
		r.haveHeld = true
		if idx >= 0 {
			b, _ := r.m.rack.Get(idx)
			r.heldView = b.View()
		}
	}
	if idx < 0 {
		if len(r.pattern) == 0 {
			return nil
		}
		v := r.pattern[r.patOff]
		return &v
	}
	b, _ := r.m.rack.Get(idx)
	v, _ := b.At(int(addr - b.Address()))
	return &v
}
