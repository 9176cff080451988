// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides functionality similar to standard log package with some extensions:
//   - verbosity levels
//   - global verbosity setting that can be used by multiple packages
//   - ability to disable all output
package log

import (
	"flag"
	"fmt"
	golog "log"
	"os"
	"sync"
	"time"
)

var (
	flagV          = flag.Int("vv", 0, "verbosity")
	flagTimestamps = flag.Bool("timestamps", true, "prefix log lines with timestamps")

	mu       sync.Mutex
	prependT time.Time
)

func init() {
	golog.SetFlags(0)
	prependT = time.Now()
}

// V reports whether logging at the given verbosity level is enabled.
func V(level int) bool {
	return level <= *flagV
}

// Logf writes the message to stderr if the current verbosity is at least v.
func Logf(v int, msg string, args ...interface{}) {
	if !V(v) {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if *flagTimestamps {
		golog.Printf("%v %s", time.Since(prependT).Round(time.Millisecond), fmt.Sprintf(msg, args...))
		return
	}
	golog.Printf(msg, args...)
}

func Fatal(err error) {
	Fatalf("%v", err)
}

func Fatalf(msg string, args ...interface{}) {
	Logf(0, "FATAL: "+msg, args...)
	os.Exit(1)
}
