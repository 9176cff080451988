// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package report writes the machine-readable corruption log. One CSV row
// per event, fixed schema, append-only; the log survives even if the
// process is killed mid-session because every row is flushed as written.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nsram/hammer/pkg/detect"
	"github.com/nsram/hammer/pkg/locate"
)

const header = "event,timestamp,offset,expected,actual,delta_bits\n"

type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
	f  *os.File // nil when writing to a caller-owned stream
}

// New wraps an existing stream. The header is written immediately.
func New(w io.Writer) *Writer {
	r := &Writer{w: bufio.NewWriter(w)}
	r.w.WriteString(header)
	r.w.Flush()
	return r
}

// Create opens path for writing, truncating any previous log.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create corruption log")
	}
	r := New(f)
	r.f = f
	return r, nil
}

func (r *Writer) row(event string, t time.Time, off int, expected, actual byte, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s,%d.%09d,0x%x,0x%02x,0x%02x,%d\n",
		event, t.Unix(), t.Nanosecond(), off, expected, actual, delta)
	r.w.Flush()
}

// Flip records one corrupted byte.
func (r *Writer) Flip(f detect.FlipRecord) {
	r.row("FLIP", f.Time, f.Offset, f.Expected, f.Actual, f.DeltaBits)
}

// Retention records the post-rewrite state of a previously flipped byte.
// The delta_bits column carries the persistence verdict: 1 for a stuck
// cell, 0 for a transient upset.
func (r *Writer) Retention(expected byte, res detect.RetentionResult) {
	verdict := 0
	if res.Persistent {
		verdict = 1
	}
	r.row("RETENTION", time.Now(), res.Offset, expected, res.Actual, verdict)
}

// Summary closes out a session: regions tested, total flips, wall time in
// seconds.
func (r *Writer) Summary(regions, totalFlips int, elapsed time.Duration) {
	r.aux("SUMMARY,%d,%d,%.3f\n", regions, totalFlips, elapsed.Seconds())
}

// aux appends a short-form auxiliary record. These rows carry fewer
// columns than the flip schema; consumers key on the event name.
func (r *Writer) aux(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
	r.w.Flush()
}

// Entropy records the sampled state of one subregion after a round: which
// window, which round, its entropy in bits, and how many flips the round's
// scan found there.
func (r *Writer) Entropy(subregion, round int, h float64, flips int) {
	r.aux("ENTROPY,%d,%d,%.4f,%d\n", subregion, round, h, flips)
}

// Decay records the rescan result after one idle phase.
func (r *Writer) Decay(phase, flips int, h float64) {
	r.aux("DECAY,%d,%d,%.4f\n", phase, flips, h)
}

// Candidate records the per-candidate result: the three physical
// addresses (virtual offsets when no mapping was available) and the flip
// count observed while hammering it.
func (r *Writer) Candidate(c locate.Candidate, flips int) {
	a1, v, a2 := uint64(c.Aggr1), uint64(c.Victim), uint64(c.Aggr2)
	if !c.Virtual {
		a1, v, a2 = c.Phys[0], c.Phys[1], c.Phys[2]
	}
	r.aux("CANDIDATE,0x%x,0x%x,0x%x,%d\n", a1, v, a2, flips)
}

func (r *Writer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.w.Flush()
	if r.f != nil {
		if cerr := r.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
