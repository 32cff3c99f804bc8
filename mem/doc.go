// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*

Package mem implements Memory, a sparse, address-addressable byte space.

A Memory behaves like a mutable byte array, except addresses form a wide
(64-bit unsigned) integer space and an address that was never written
reads back as "empty" rather than as the zero byte. Only explicitly
written regions consume storage: internally, Memory keeps a rack.Rack of
block.Block handles, sorted by address, non-overlapping and never
touching (touching blocks are always merged).

Trimming

A Memory optionally carries a lower and/or upper address bound
(SetTrimStart/SetTrimEnd). Writes landing outside an enabled bound are
silently discarded, and writes crossing a bound are clipped. Setting a
bound crops any data already outside it.

Concurrency

A Memory is not safe for concurrent use by multiple goroutines; it is
designed for single-threaded use, or external synchronization by the
caller, same as the rack.Rack and block.Block it is built from.

Backups

Every destructive operation (Write, Insert, Delete, Clear, Reserve, Fill,
Flood, Shift, Crop, Reverse) has a matching *Backup/*Restore pair. A
backup is itself a Memory - typically the Extract of the affected range
before the operation runs - so restoring is just writing it back. This
gives callers transactional undo at their own discretion; Memory itself
keeps no undo log.

*/
package mem
