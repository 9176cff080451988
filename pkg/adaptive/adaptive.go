// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package adaptive steers a long hammering session from feedback. After
// each pass the controller looks at the byte entropy of the current target
// subregion and the flip count, and decides whether to move on, back off,
// or keep going. The controller is the only writer of the pacing delay;
// the engine just reads whatever value the last decision produced.
package adaptive

import (
	"math"
	"time"
)

// Entropy returns the Shannon entropy of the data in bits per byte, in
// [0, 8]. Zero for empty or constant input, 8 for a uniform byte
// distribution.
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	total := float64(len(data))
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return h
}

type Config struct {
	SubregionSize int           // granularity of the entropy sample window
	LowEntropy    float64       // below this (and zero flips) the region is calm
	HighEntropy   float64       // above this the region is too noisy to read
	DelayStep     time.Duration // backoff increment per hot observation
	MaxDelay      time.Duration // backoff ceiling
	Decay         float64       // multiplicative delay decay in steady state
}

func (cfg *Config) normalize(regionSize int) {
	if cfg.SubregionSize <= 0 || cfg.SubregionSize > regionSize {
		cfg.SubregionSize = regionSize
	}
	if cfg.HighEntropy <= 0 {
		cfg.HighEntropy = 7.5
	}
	if cfg.DelayStep <= 0 {
		cfg.DelayStep = 100 * time.Microsecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Millisecond
	}
	if cfg.Decay <= 0 || cfg.Decay >= 1 {
		cfg.Decay = 0.5
	}
}

type Decision int

const (
	// Advance: the subregion is calm, move the target to the next one and
	// drop any pacing delay.
	Advance Decision = iota
	// Backoff: the subregion is hot, increase the pacing delay.
	Backoff
	// Nudge: steady state, let the delay decay toward zero.
	Nudge
)

func (d Decision) String() string {
	switch d {
	case Advance:
		return "advance"
	case Backoff:
		return "backoff"
	case Nudge:
		return "nudge"
	}
	return "unknown"
}

type Controller struct {
	cfg        Config
	regionSize int
	subregions int
	target     int
	delay      time.Duration
}

func New(cfg Config, regionSize int) *Controller {
	cfg.normalize(regionSize)
	n := regionSize / cfg.SubregionSize
	if n < 1 {
		n = 1
	}
	return &Controller{
		cfg:        cfg,
		regionSize: regionSize,
		subregions: n,
	}
}

// Target returns the byte window the next pass should aim at.
func (c *Controller) Target() (start, n int) {
	start = c.target * c.cfg.SubregionSize
	n = c.cfg.SubregionSize
	if start+n > c.regionSize {
		n = c.regionSize - start
	}
	return start, n
}

// TargetID returns the ordinal of the current target subregion.
func (c *Controller) TargetID() int { return c.target }

// Delay returns the pacing delay set by the last decision.
func (c *Controller) Delay() time.Duration { return c.delay }

func (c *Controller) Subregions() int { return c.subregions }

// Observe consumes the entropy of the current target window and the flip
// count of the pass that just ran, updates target and delay, and reports
// which way it moved. No other code path mutates the delay.
func (c *Controller) Observe(entropy float64, flips int) Decision {
	switch {
	case entropy < c.cfg.LowEntropy && flips == 0:
		c.target = (c.target + 1) % c.subregions
		c.delay = 0
		return Advance
	case entropy > c.cfg.HighEntropy:
		c.delay += c.cfg.DelayStep
		if c.delay > c.cfg.MaxDelay {
			c.delay = c.cfg.MaxDelay
		}
		return Backoff
	default:
		c.delay = time.Duration(float64(c.delay) * c.cfg.Decay)
		if c.delay < time.Microsecond {
			c.delay = 0
		}
		return Nudge
	}
}
