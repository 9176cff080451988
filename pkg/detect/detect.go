// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package detect re-reads the arena after a hammering pass and classifies
// what it finds: which bytes changed, whether repeated runs agree, and
// whether a flip survives a rewrite of the cell.
package detect

import (
	"math/bits"
	"time"

	"github.com/nsram/hammer/pkg/arena"
)

// FlipRecord describes one corrupted byte.
type FlipRecord struct {
	Offset    int
	Expected  byte
	Actual    byte
	DeltaBits int // popcount of Expected^Actual
	Time      time.Time
}

// Scan walks [start, start+n) comparing every byte against the reference
// and returns the mismatches, at most maxPositions records, plus the total
// mismatch count. The cap bounds memory on a catastrophically corrupted
// region; the count is exact regardless.
func Scan(r *arena.Region, ref arena.Pattern, start, n, maxPositions int) ([]FlipRecord, int) {
	data := r.Data()
	now := time.Now()
	var flips []FlipRecord
	total := 0
	for off := start; off < start+n; off++ {
		want := ref(off)
		got := data[off]
		if got == want {
			continue
		}
		total++
		if maxPositions > 0 && len(flips) >= maxPositions {
			continue
		}
		flips = append(flips, FlipRecord{
			Offset:    off,
			Expected:  want,
			Actual:    got,
			DeltaBits: bits.OnesCount8(want ^ got),
			Time:      now,
		})
	}
	return flips, total
}

// RunResult is the outcome of one complete fill-hammer-scan run.
type RunResult struct {
	Run     int
	Flips   []FlipRecord
	Total   int
	Elapsed time.Duration
}

type Outcome int

const (
	// NoEffect: every run completed with zero flips. The memory withstood
	// the workload; distinct from agreement about a nonzero flip set.
	NoEffect Outcome = iota
	// Consistent: all runs produced the same nonzero flip set, which
	// points at the cells rather than at measurement noise.
	Consistent
	// Inconsistent: runs disagree about which bytes flipped.
	Inconsistent
)

func (o Outcome) String() string {
	switch o {
	case NoEffect:
		return "no effect"
	case Consistent:
		return "consistent"
	case Inconsistent:
		return "inconsistent"
	}
	return "unknown"
}

// Validate compares the flip sets of repeated identical runs. Two runs
// agree when they have the same total flip count and flipped the same
// offsets to the same values; timestamps and record order do not matter.
// Totals are compared separately because the recorded sets are capped and
// can coincide while the true counts differ.
func Validate(runs []RunResult) Outcome {
	if len(runs) == 0 {
		return NoEffect
	}
	first := flipSet(runs[0])
	for _, run := range runs[1:] {
		if run.Total != runs[0].Total {
			return Inconsistent
		}
		set := flipSet(run)
		if len(set) != len(first) {
			return Inconsistent
		}
		for off, actual := range first {
			if set[off] != actual {
				return Inconsistent
			}
		}
	}
	if len(first) == 0 && runs[0].Total == 0 {
		return NoEffect
	}
	return Consistent
}

func flipSet(run RunResult) map[int]byte {
	set := make(map[int]byte, len(run.Flips))
	for _, f := range run.Flips {
		set[f.Offset] = f.Actual
	}
	return set
}

// Histogram splits flips into single-bit upsets (the classic disturbance
// signature) and multi-bit ones.
type Histogram struct {
	Single int
	Multi  int
}

func DeltaHistogram(flips []FlipRecord) Histogram {
	var h Histogram
	for _, f := range flips {
		if f.DeltaBits == 1 {
			h.Single++
		} else {
			h.Multi++
		}
	}
	return h
}

// RetentionResult classifies one previously flipped byte after a full
// rewrite cycle.
type RetentionResult struct {
	Offset     int
	Persistent bool // still wrong after complement+restore: a stuck cell
	Actual     byte // value observed after the rewrite cycle
}

// CheckRetention rewrites the whole region with the complement of the
// reference, restores the reference, then re-reads each flipped offset.
// A byte that is still wrong did not retain a freshly written value, so
// the cell itself is damaged; a byte that reads back correctly was a
// transient disturbance. The region is left filled with the reference.
func CheckRetention(r *arena.Region, ref arena.Pattern, flips []FlipRecord) []RetentionResult {
	r.Fill(arena.Complement(ref))
	r.Fill(ref)
	results := make([]RetentionResult, 0, len(flips))
	data := r.Data()
	for _, f := range flips {
		got := data[f.Offset]
		results = append(results, RetentionResult{
			Offset:     f.Offset,
			Persistent: got != ref(f.Offset),
			Actual:     got,
		})
	}
	return results
}
