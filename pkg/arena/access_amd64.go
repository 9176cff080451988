// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package arena

import "unsafe"

const lineFlush = true

// Implemented in access_amd64.s. The flush+access+fence sequence is what
// forces accesses past the cache hierarchy to the DRAM row buffer; without
// CLFLUSH the engine stresses the cache, not the memory cells.

func clflush(p unsafe.Pointer)

func mfence()

func sfence()
