// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package arena owns the large page-aligned buffer that hammering passes
// write to and the corruption detector reads back. The buffer is mapped
// directly from the kernel (not the Go heap) so that page-granularity
// reasoning about its backing frames is meaningful.
package arena

import (
	"unsafe"

	"github.com/pkg/errors"
)

// Pattern is a deterministic reference function: the expected value of the
// byte at a given offset. It is the ground truth for corruption detection.
type Pattern func(off int) byte

// Solid is a constant-byte pattern (0xAA, 0xFF, ...).
func Solid(b byte) Pattern {
	return func(off int) byte { return b }
}

// Mixed derives each byte from its offset, so that any displacement of
// data is detectable, not only bit flips in place.
func Mixed() Pattern {
	return func(off int) byte { return byte(off*37 + off%13) }
}

// Complement inverts a pattern. Used by the retention test to rewrite
// every cell before restoring the original reference.
func Complement(p Pattern) Pattern {
	return func(off int) byte { return ^p(off) }
}

type Region struct {
	data     []byte
	pageSize int
	huge     bool
}

// Allocate maps an anonymous region of at least size bytes, rounded up to
// the page size. If hugepages is set, a hugetlb mapping is attempted first
// and silently degrades to normal pages. Every page is touched once so the
// kernel backs it with a physical frame before any hammering starts.
func Allocate(size int, hugepages bool) (*Region, error) {
	if size <= 0 {
		return nil, errors.Errorf("bad arena size %v", size)
	}
	pageSize := osPageSize()
	size = (size + pageSize - 1) / pageSize * pageSize
	data, huge, err := osAllocate(size, hugepages)
	if err != nil {
		return nil, errors.Wrap(err, "arena mmap failed")
	}
	r := &Region{
		data:     data,
		pageSize: pageSize,
		huge:     huge,
	}
	for off := 0; off < size; off += pageSize {
		WriteOnce(&r.data[off], 0)
	}
	return r, nil
}

func (r *Region) Size() int       { return len(r.data) }
func (r *Region) PageSize() int   { return r.pageSize }
func (r *Region) Pages() int      { return len(r.data) / r.pageSize }
func (r *Region) HugePages() bool { return r.huge }

// Data exposes the raw buffer for bulk read-only walks (detector scan,
// entropy sampling). Callers must not hold it across a hammering pass.
func (r *Region) Data() []byte { return r.data }

// Ptr returns the address of the byte at off for fenced accesses.
func (r *Region) Ptr(off int) *byte { return &r.data[off] }

// Addr returns the virtual address of the byte at off, for page table
// lookups.
func (r *Region) Addr(off int) uintptr { return uintptr(unsafe.Pointer(&r.data[off])) }

// FlushLine evicts the cache line containing off, so that the next access
// to it reaches DRAM. A no-op on architectures without a line flush.
func (r *Region) FlushLine(off int) { clflush(unsafe.Pointer(&r.data[off])) }

// Fill writes the pattern across the whole region and pushes it out of the
// cache, line by line, so the written values are committed to the cells
// the detector will later re-read.
func (r *Region) Fill(p Pattern) {
	r.FillRange(0, len(r.data), p)
}

// FillRange fills [off, off+n) with the pattern.
func (r *Region) FillRange(off, n int, p Pattern) {
	for i := off; i < off+n; i++ {
		r.data[i] = p(i)
	}
	for i := off &^ (cacheLine - 1); i < off+n; i += cacheLine {
		clflush(unsafe.Pointer(&r.data[i]))
	}
	sfence()
}

// Free unmaps the region. The Region must not be used afterwards.
func (r *Region) Free() error {
	data := r.data
	r.data = nil
	return osFree(data)
}

// Fence orders all prior loads and stores before any later ones.
func Fence() { mfence() }

// StoreFence orders prior stores.
func StoreFence() { sfence() }

// LineFlushSupported reports whether FlushLine actually evicts a line on
// this architecture. Without it the engine only measures cache behavior.
func LineFlushSupported() bool { return lineFlush }

const cacheLine = 64

// ReadOnce performs a read the compiler may not elide or reorder past the
// surrounding fences.
//
//go:noinline
func ReadOnce(p *byte) byte { return *p }

// WriteOnce is the store counterpart of ReadOnce.
//
//go:noinline
func WriteOnce(p *byte, v byte) { *p = v }
