// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs collects the error kinds shared by block, rack and mem.
//
// Each kind is its own struct type, following the one-struct-per-kind
// convention of the lower layer this module builds on, rather than a
// single sentinel error with a wrapped reason.
package errs

import "fmt"

// AddressOverflow is returned when checked address arithmetic would exceed
// the address space ceiling or go negative.
type AddressOverflow struct {
	Op   string
	Addr uint64
}

func (e *AddressOverflow) Error() string {
	return fmt.Sprintf("%s: address overflow at %#x", e.Op, e.Addr)
}

// SizeOverflow is returned when a capacity or length computation would
// exceed the implementation ceiling.
type SizeOverflow struct {
	Op   string
	Size uint64
}

func (e *SizeOverflow) Error() string {
	return fmt.Sprintf("%s: size overflow (%d)", e.Op, e.Size)
}

// AllocationFailure is returned when the allocator could not satisfy a
// request.
type AllocationFailure struct {
	Op   string
	Size int
}

func (e *AllocationFailure) Error() string {
	return fmt.Sprintf("%s: allocation failure for %d bytes", e.Op, e.Size)
}

// IndexOutOfRange is returned when an offset or index addresses outside a
// container's live range.
type IndexOutOfRange struct {
	Op     string
	Index  int64
	Length int64
}

func (e *IndexOutOfRange) Error() string {
	return fmt.Sprintf("%s: index %d out of range [0, %d)", e.Op, e.Index, e.Length)
}

// Shared is returned when a structural or elementwise mutation is
// attempted on an entity whose reference count is greater than one.
type Shared struct {
	Op         string
	References int32
}

func (e *Shared) Error() string {
	return fmt.Sprintf("%s: entity is shared (references=%d), cannot mutate", e.Op, e.References)
}

// NotContiguous is returned when a view or bytes export is requested over
// a range containing a gap.
type NotContiguous struct {
	Op          string
	Start, Endex uint64
}

func (e *NotContiguous) Error() string {
	return fmt.Sprintf("%s: range [%#x, %#x) is not contiguous", e.Op, e.Start, e.Endex)
}

// EmptyPattern is returned when fill/flood/rotate-to-size is requested
// with an empty pattern.
type EmptyPattern struct {
	Op string
}

func (e *EmptyPattern) Error() string {
	return fmt.Sprintf("%s: empty pattern", e.Op)
}

// InvalidLayout is returned when validate() detects overlap, wrong order,
// an empty block, or a bound violation.
type InvalidLayout struct {
	Op     string
	Reason string
}

func (e *InvalidLayout) Error() string {
	return fmt.Sprintf("%s: invalid layout: %s", e.Op, e.Reason)
}

// NotFound is returned by the index/rindex family (as opposed to the
// find/rfind family, which return a sentinel instead).
type NotFound struct {
	Op string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s: not found", e.Op)
}

// EmptyContainer is returned on pop from an empty container.
type EmptyContainer struct {
	Op string
}

func (e *EmptyContainer) Error() string {
	return fmt.Sprintf("%s: empty container", e.Op)
}
