// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package hammer

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pin restricts the calling thread to a single logical CPU, chosen
// round-robin from the worker id. The caller must hold LockOSThread.
func pin(worker int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(worker % runtime.NumCPU())
	return unix.SchedSetaffinity(0, &set)
}
