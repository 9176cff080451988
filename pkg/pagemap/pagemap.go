// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package pagemap resolves virtual addresses to the physical frames
// backing them. Physical adjacency is what double-sided hammering is
// about, but the lookup needs a privileged kernel interface, so the
// resolver is an interface with a "no information" implementation and the
// rest of the system degrades to virtual-offset targeting when that is all
// it gets.
package pagemap

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

// Resolver maps a virtual address to the physical address backing it.
// Resolve never blocks on anything but the lookup itself and never
// mutates memory. ok is false when the page is not resident or the
// mechanism cannot tell (insufficient privilege, unsupported platform).
type Resolver interface {
	Resolve(addr uintptr) (phys uint64, ok bool)
	Close() error
}

// Null is the "no information available" resolver.
type Null struct{}

func (Null) Resolve(addr uintptr) (uint64, bool) { return 0, false }
func (Null) Close() error                        { return nil }

const (
	pagemapPath = "/proc/self/pagemap"

	// Per pagemap.rst: bit 63 = page present, bits 0-54 = PFN.
	// PFNs are zeroed for unprivileged readers since 4.2.
	entrySize  = 8
	presentBit = uint64(1) << 63
	pfnMask    = uint64(1)<<55 - 1
)

// Proc resolves through /proc/self/pagemap.
type Proc struct {
	f        *os.File
	pageSize uint64
}

// Open opens the pagemap interface for the current process. An error here
// is not fatal for the caller: the scan falls back to virtual-offset mode.
func Open(pageSize int) (*Proc, error) {
	f, err := os.Open(pagemapPath)
	if err != nil {
		return nil, errors.Wrap(err, "pagemap unavailable")
	}
	return &Proc{f: f, pageSize: uint64(pageSize)}, nil
}

func (p *Proc) Resolve(addr uintptr) (uint64, bool) {
	var buf [entrySize]byte
	off := int64(uint64(addr) / p.pageSize * entrySize)
	if n, err := p.f.ReadAt(buf[:], off); err != nil || n != entrySize {
		return 0, false
	}
	entry := binary.LittleEndian.Uint64(buf[:])
	if entry&presentBit == 0 {
		return 0, false
	}
	pfn := entry & pfnMask
	if pfn == 0 {
		// Kernel hides PFNs without CAP_SYS_ADMIN.
		return 0, false
	}
	return pfn*p.pageSize + uint64(addr)%p.pageSize, true
}

func (p *Proc) Close() error {
	return p.f.Close()
}
