// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package arena

import (
	"golang.org/x/sys/unix"
)

func osPageSize() int {
	return unix.Getpagesize()
}

// osAllocate maps size bytes of anonymous memory. Hugetlb is best effort:
// most hosts have no hugepages reserved and the mapping fails with ENOMEM,
// in which case we degrade to normal pages (the locator then has fewer
// physically contiguous triplets to find, nothing else changes).
func osAllocate(size int, hugepages bool) ([]byte, bool, error) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if hugepages {
		data, err := unix.Mmap(-1, 0, size, prot,
			unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB)
		if err == nil {
			return data, true, nil
		}
	}
	data, err := unix.Mmap(-1, 0, size, prot, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func osFree(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
