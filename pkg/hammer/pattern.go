// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package hammer

import (
	"fmt"

	"github.com/nsram/hammer/pkg/arena"
)

// AccessPattern selects how the per-access offsets are generated within an
// outer iteration.
type AccessPattern int

const (
	// Sequential walks the pattern positions in ascending distance order.
	Sequential AccessPattern = iota
	// Random picks uniformly distributed offsets across the usable span.
	Random
	// Stride keeps advancing by a fixed distance, wrapping at the span.
	Stride
	// Alternating hits position pairs, writing complementary values into
	// the second element of each pair.
	Alternating
	// Reverse is Sequential walked backwards.
	Reverse
	// VictimAggressor round-robins over the explicit aggressor offsets
	// only. This is the pattern used for double-sided hammering.
	VictimAggressor
)

var patternNames = map[string]AccessPattern{
	"sequential":       Sequential,
	"random":           Random,
	"stride":           Stride,
	"alternating":      Alternating,
	"reverse":          Reverse,
	"victim_aggressor": VictimAggressor,
}

func ParseAccessPattern(name string) (AccessPattern, error) {
	if p, ok := patternNames[name]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("unknown access pattern %q", name)
}

func (p AccessPattern) String() string {
	for name, pat := range patternNames {
		if pat == p {
			return name
		}
	}
	return fmt.Sprintf("pattern(%d)", int(p))
}

// FlushMode selects cache eviction behavior within the hot loop.
type FlushMode int

const (
	// FlushNone performs no eviction; accesses mostly hit cache.
	FlushNone FlushMode = iota
	// FlushLines evicts the target's cache line before every access.
	FlushLines
	// FlushAll fences at the end of each outer iteration in addition to
	// per-access fencing.
	FlushAll
)

var flushNames = map[string]FlushMode{
	"none":  FlushNone,
	"lines": FlushLines,
	"all":   FlushAll,
}

func ParseFlushMode(name string) (FlushMode, error) {
	if m, ok := flushNames[name]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("unknown cache flush mode %q", name)
}

func (m FlushMode) String() string {
	for name, mode := range flushNames {
		if mode == m {
			return name
		}
	}
	return fmt.Sprintf("flush(%d)", int(m))
}

// lcg is the classic glibc-constants linear congruential generator. Not
// statistically strong, but cheap enough to live inside the hot loop and
// fully reproducible from the seed.
type lcg struct {
	state uint32
}

func (g *lcg) next() uint32 {
	g.state = (g.state*1103515245 + 12345) & 0x7fffffff
	return g.state
}

// plan turns (iteration, position) into a concrete byte offset and write
// value. One plan per worker; workers never share PRNG state.
type plan struct {
	r        *arena.Region
	targets  []int
	cfg      Config
	rng      lcg
	span     int // usable offset range above targets[0]
	strideAt int // accumulating position for the stride pattern
}

func newPlan(r *arena.Region, targets []int, cfg Config, worker int) *plan {
	pl := &plan{
		r:       r,
		targets: targets,
		cfg:     cfg,
		rng:     lcg{state: uint32(cfg.Seed) ^ uint32(worker)*0x9e3779b9},
	}
	pl.span = r.Size() - targets[0]
	if pl.span < 1 {
		pl.span = 1
	}
	return pl
}

func (pl *plan) access(i, p int) (off int, val byte) {
	base := pl.targets[0]
	val = byte(i + p)
	switch pl.cfg.Pattern {
	case Sequential:
		off = base + p*pl.cfg.Distance%pl.span
	case Reverse:
		off = base + (pl.cfg.PatternLength-1-p)*pl.cfg.Distance%pl.span
	case Random:
		off = base + int(pl.rng.next())%pl.span
	case Stride:
		off = base + pl.strideAt
		pl.strideAt = (pl.strideAt + pl.cfg.Distance) % pl.span
	case Alternating:
		off = base + (p/2)*pl.cfg.Distance%pl.span
		if p%2 == 1 {
			off = base + ((p/2)*pl.cfg.Distance+pl.cfg.Distance/2)%pl.span
			val = ^byte(i)
		}
	case VictimAggressor:
		off = pl.targets[(i*pl.cfg.PatternLength+p)%len(pl.targets)]
	}
	return off, val
}
