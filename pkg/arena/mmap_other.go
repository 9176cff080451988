// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package arena

import (
	"os"
	"unsafe"
)

// Non-Linux fallback: a page-aligned heap slice. Good enough for running
// the unit tests; physical-frame reasoning is Linux-only anyway.

func osPageSize() int {
	return os.Getpagesize()
}

func osAllocate(size int, hugepages bool) ([]byte, bool, error) {
	pageSize := osPageSize()
	buf := make([]byte, size+pageSize)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&buf[0])) % uintptr(pageSize)); rem != 0 {
		off = pageSize - rem
	}
	return buf[off : off+size : off+size], false, nil
}

func osFree(data []byte) error {
	return nil
}
