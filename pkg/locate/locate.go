// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package locate scans the arena for aggressor-victim-aggressor triplets.
// With a working physical resolver it finds pages whose backing frames are
// consecutive (true double-sided hammering); otherwise it falls back to
// fixed-distance virtual triplets, which still exercise the engine but
// carry no adjacency guarantee.
package locate

import (
	"sort"
	"time"

	"github.com/nsram/hammer/pkg/arena"
	"github.com/nsram/hammer/pkg/pagemap"
)

type Candidate struct {
	Aggr1  int // byte offset of the first aggressor page
	Victim int // byte offset of the victim region
	Aggr2  int // byte offset of the second aggressor page

	// Physical addresses of the three pages; zero in virtual mode.
	Phys [3]uint64

	// Virtual is set when no physical information backs this candidate.
	// Virtual candidates must not be used for comparisons that require
	// physical adjacency.
	Virtual bool

	// Latency is the average flush+reload time of Aggr1, filled by Probe.
	Latency time.Duration
}

type Config struct {
	VictimSize      int    // size of the victim region to check, bytes
	ScanStepDivisor int    // scan step = VictimSize / divisor, min 1
	MinPhysAddr     uint64 // skip frames below this (reserved low memory)
	Distance        int    // aggressor offset for virtual fallback, bytes
}

func (cfg Config) scanStep() int {
	if cfg.ScanStepDivisor <= 0 {
		return cfg.VictimSize
	}
	step := cfg.VictimSize / cfg.ScanStepDivisor
	if step < 1 {
		step = 1
	}
	return step
}

// Find returns candidates in scan order, each at most once. Zero
// candidates is a valid result; the caller reports "no physically
// suitable memory found" and moves on.
func Find(r *arena.Region, res pagemap.Resolver, cfg Config) []Candidate {
	cands := findPhysical(r, res, cfg)
	if len(cands) > 0 {
		return cands
	}
	return findVirtual(r, cfg)
}

func findPhysical(r *arena.Region, res pagemap.Resolver, cfg Config) []Candidate {
	ps := r.PageSize()
	step := cfg.scanStep()
	var cands []Candidate
	seen := make(map[int]bool)
	for off := 0; off+3*ps <= r.Size(); off += step {
		start := off / ps * ps // triplets are page-aligned
		if seen[start] {
			continue
		}
		p0, ok0 := res.Resolve(r.Addr(start))
		p1, ok1 := res.Resolve(r.Addr(start + ps))
		p2, ok2 := res.Resolve(r.Addr(start + 2*ps))
		if !ok0 || !ok1 || !ok2 {
			continue
		}
		if p0 < cfg.MinPhysAddr || p1 < cfg.MinPhysAddr || p2 < cfg.MinPhysAddr {
			continue
		}
		if p1 != p0+uint64(ps) || p2 != p0+2*uint64(ps) {
			continue
		}
		seen[start] = true
		cands = append(cands, Candidate{
			Aggr1:  start,
			Victim: start + ps,
			Aggr2:  start + 2*ps,
			Phys:   [3]uint64{p0, p1, p2},
		})
	}
	return cands
}

// findVirtual mirrors the physical scan over plain virtual offsets: the
// victim slides across the arena in scan-step increments with aggressors
// a fixed distance on both sides.
func findVirtual(r *arena.Region, cfg Config) []Candidate {
	dist := cfg.Distance
	if dist <= 0 {
		dist = 2 * r.PageSize()
	}
	step := cfg.scanStep()
	var cands []Candidate
	seen := make(map[int]bool)
	for victim := dist; victim+cfg.VictimSize+dist <= r.Size(); victim += step {
		if seen[victim] {
			continue
		}
		seen[victim] = true
		cands = append(cands, Candidate{
			Aggr1:   victim - dist,
			Victim:  victim,
			Aggr2:   victim + dist,
			Virtual: true,
		})
	}
	return cands
}

const latencyProbes = 10

// Probe measures the average uncached access latency of each candidate's
// first aggressor and sorts the candidates by it, slowest first. A slow
// access is one that made a real DRAM round trip, so in virtual mode this
// is the best available proxy for "actually reaches the cells".
func Probe(r *arena.Region, cands []Candidate) {
	for i := range cands {
		cands[i].Latency = probeOne(r, cands[i].Aggr1)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Latency > cands[j].Latency
	})
}

func probeOne(r *arena.Region, off int) time.Duration {
	var total time.Duration
	for i := 0; i < latencyProbes; i++ {
		r.FlushLine(off)
		arena.Fence()
		start := time.Now()
		arena.ReadOnce(r.Ptr(off))
		total += time.Since(start)
	}
	return total / latencyProbes
}
