// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package adaptive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntropyBounds(t *testing.T) {
	a := assert.New(t)
	a.Equal(Entropy(nil), 0.0)
	a.Equal(Entropy([]byte{0xAA, 0xAA, 0xAA, 0xAA}), 0.0)

	// Uniform distribution over all byte values: exactly 8 bits.
	uniform := make([]byte, 256)
	for i := range uniform {
		uniform[i] = byte(i)
	}
	a.InDelta(Entropy(uniform), 8.0, 1e-9)

	// Two equiprobable values: exactly 1 bit.
	a.InDelta(Entropy([]byte{0, 1, 0, 1}), 1.0, 1e-9)

	// Anything stays within [0, 8].
	mixed := make([]byte, 4096)
	for i := range mixed {
		mixed[i] = byte(i*37 + i%13)
	}
	h := Entropy(mixed)
	a.GreaterOrEqual(h, 0.0)
	a.LessOrEqual(h, 8.0)
}

func TestControllerAdvance(t *testing.T) {
	a := assert.New(t)
	c := New(Config{
		SubregionSize: 4096,
		LowEntropy:    0.5,
		HighEntropy:   7.5,
		DelayStep:     time.Millisecond,
	}, 4*4096)
	a.Equal(c.Subregions(), 4)

	start, n := c.Target()
	a.Equal(start, 0)
	a.Equal(n, 4096)

	// Calm observation: target advances, delay resets.
	c.delay = 5 * time.Millisecond
	a.Equal(c.Observe(0.0, 0), Advance)
	start, _ = c.Target()
	a.Equal(start, 4096)
	a.Equal(c.TargetID(), 1)
	a.Equal(c.Delay(), time.Duration(0))

	// Low entropy with flips is not calm.
	a.Equal(c.Observe(0.0, 3), Nudge)
	start, _ = c.Target()
	a.Equal(start, 4096)

	// Target wraps around the region.
	for i := 0; i < 3; i++ {
		c.Observe(0.0, 0)
	}
	start, _ = c.Target()
	a.Equal(start, 0)
}

func TestControllerBackoff(t *testing.T) {
	a := assert.New(t)
	c := New(Config{
		SubregionSize: 4096,
		LowEntropy:    0.5,
		HighEntropy:   7.5,
		DelayStep:     time.Millisecond,
		MaxDelay:      3 * time.Millisecond,
	}, 4*4096)

	for i := 1; i <= 3; i++ {
		a.Equal(c.Observe(7.9, 0), Backoff)
		a.Equal(c.Delay(), time.Duration(i)*time.Millisecond)
	}
	// Capped at MaxDelay.
	c.Observe(7.9, 0)
	a.Equal(c.Delay(), 3*time.Millisecond)

	// Steady state decays the delay and eventually snaps to zero.
	a.Equal(c.Observe(4.0, 1), Nudge)
	a.Equal(c.Delay(), 1500*time.Microsecond)
	for i := 0; i < 20; i++ {
		c.Observe(4.0, 1)
	}
	a.Equal(c.Delay(), time.Duration(0))
}

func TestControllerSingleSubregion(t *testing.T) {
	a := assert.New(t)
	c := New(Config{LowEntropy: 0.5}, 10000)
	a.Equal(c.Subregions(), 1)
	start, n := c.Target()
	a.Equal(start, 0)
	a.Equal(n, 10000)
	c.Observe(0.0, 0)
	start, _ = c.Target()
	a.Equal(start, 0)
}
