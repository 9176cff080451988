// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !amd64

package arena

import (
	"sync/atomic"
	"unsafe"
)

// No user-space line flush on this architecture. The fences below only
// provide ordering; pkg/feature reports line flush as unsupported so runs
// here are understood to measure cache behavior.

const lineFlush = false

var fenceWord uint32

func clflush(p unsafe.Pointer) {}

func mfence() { atomic.AddUint32(&fenceWord, 1) }

func sfence() { atomic.AddUint32(&fenceWord, 1) }
