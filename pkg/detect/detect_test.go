// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nsram/hammer/pkg/arena"
)

func fillAndCorrupt(t *testing.T, corrupt map[int]byte) *arena.Region {
	r, err := arena.Allocate(4*4096, false)
	assert.NoError(t, err)
	r.Fill(arena.Mixed())
	for off, v := range corrupt {
		r.Data()[off] = v
	}
	return r
}

func TestScanClean(t *testing.T) {
	a := assert.New(t)
	r := fillAndCorrupt(t, nil)
	defer r.Free()
	flips, total := Scan(r, arena.Mixed(), 0, r.Size(), 0)
	a.Empty(flips)
	a.Equal(total, 0)
}

func TestScanFindsFlips(t *testing.T) {
	a := assert.New(t)
	ref := arena.Mixed()
	// Offset 100: single-bit flip. Offset 5000: multi-bit garbage.
	r := fillAndCorrupt(t, map[int]byte{
		100:  ref(100) ^ 0x08,
		5000: ref(5000) ^ 0xFF,
	})
	defer r.Free()
	flips, total := Scan(r, ref, 0, r.Size(), 0)
	a.Equal(total, 2)
	a.Len(flips, 2)
	a.Equal(flips[0].Offset, 100)
	a.Equal(flips[0].Expected, ref(100))
	a.Equal(flips[0].Actual, ref(100)^0x08)
	a.Equal(flips[0].DeltaBits, 1)
	a.Equal(flips[1].Offset, 5000)
	a.Equal(flips[1].DeltaBits, 8)
	a.False(flips[0].Time.IsZero())
}

func TestScanCap(t *testing.T) {
	a := assert.New(t)
	ref := arena.Solid(0x00)
	corrupt := make(map[int]byte)
	for i := 0; i < 50; i++ {
		corrupt[i*16] = 0x01
	}
	r := fillAndCorrupt(t, nil)
	defer r.Free()
	r.Fill(ref)
	for off, v := range corrupt {
		r.Data()[off] = v
	}
	flips, total := Scan(r, ref, 0, r.Size(), 10)
	a.Len(flips, 10)
	a.Equal(total, 50)
}

func TestScanRange(t *testing.T) {
	a := assert.New(t)
	ref := arena.Mixed()
	r := fillAndCorrupt(t, map[int]byte{100: ref(100) ^ 1, 9000: ref(9000) ^ 1})
	defer r.Free()
	// Only the window containing offset 100 is scanned.
	flips, total := Scan(r, ref, 0, 4096, 0)
	a.Equal(total, 1)
	a.Equal(flips[0].Offset, 100)
}

func TestValidate(t *testing.T) {
	a := assert.New(t)
	flip := func(off int, actual byte) FlipRecord {
		return FlipRecord{Offset: off, Expected: actual ^ 1, Actual: actual}
	}
	clean := RunResult{}
	one := RunResult{Flips: []FlipRecord{flip(100, 0x42)}, Total: 1}
	same := RunResult{Flips: []FlipRecord{flip(100, 0x42)}, Total: 1}
	otherOff := RunResult{Flips: []FlipRecord{flip(200, 0x42)}, Total: 1}
	otherVal := RunResult{Flips: []FlipRecord{flip(100, 0x43)}, Total: 1}

	a.Equal(Validate(nil), NoEffect)
	a.Equal(Validate([]RunResult{clean, clean, clean}), NoEffect)
	a.Equal(Validate([]RunResult{one, same, one}), Consistent)
	a.Equal(Validate([]RunResult{one, otherOff}), Inconsistent)
	a.Equal(Validate([]RunResult{one, otherVal}), Inconsistent)
	a.Equal(Validate([]RunResult{one, clean}), Inconsistent)
	a.Equal(Validate([]RunResult{clean, one}), Inconsistent)
}

func TestValidateCappedRuns(t *testing.T) {
	a := assert.New(t)
	// Two runs whose recorded sets are identical because of the record
	// cap, but whose true totals differ, must not be called consistent.
	rec := []FlipRecord{{Offset: 100, Expected: 0x42, Actual: 0x43}}
	a.Equal(Validate([]RunResult{
		{Flips: rec, Total: 5},
		{Flips: rec, Total: 9},
	}), Inconsistent)
	a.Equal(Validate([]RunResult{
		{Flips: rec, Total: 5},
		{Flips: rec, Total: 5},
	}), Consistent)
}

func TestOutcomeString(t *testing.T) {
	a := assert.New(t)
	a.Equal(NoEffect.String(), "no effect")
	a.Equal(Consistent.String(), "consistent")
	a.Equal(Inconsistent.String(), "inconsistent")
}

func TestDeltaHistogram(t *testing.T) {
	a := assert.New(t)
	h := DeltaHistogram([]FlipRecord{
		{DeltaBits: 1}, {DeltaBits: 1}, {DeltaBits: 3}, {DeltaBits: 8},
	})
	a.Equal(h.Single, 2)
	a.Equal(h.Multi, 2)
}

func TestCheckRetentionTransient(t *testing.T) {
	a := assert.New(t)
	ref := arena.Mixed()
	r := fillAndCorrupt(t, map[int]byte{300: ref(300) ^ 0x10})
	defer r.Free()
	flips, _ := Scan(r, ref, 0, r.Size(), 0)
	a.Len(flips, 1)
	// On healthy memory a rewrite cycle heals the corruption: transient.
	results := CheckRetention(r, ref, flips)
	a.Len(results, 1)
	a.Equal(results[0].Offset, 300)
	a.False(results[0].Persistent)
	a.Equal(results[0].Actual, ref(300))
	// Region must be left fully restored.
	_, total := Scan(r, ref, 0, r.Size(), 0)
	a.Equal(total, 0)
}
