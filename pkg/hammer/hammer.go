// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package hammer implements the hot loop: a fixed set of workers
// repeatedly accessing aggressor addresses with cache eviction between
// accesses. Workers are spawned and joined once per pass; the join is the
// barrier that makes a subsequent detector scan of the region safe.
package hammer

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nsram/hammer/pkg/arena"
	"github.com/nsram/hammer/pkg/log"
)

type Config struct {
	Reps          int           // outer iterations per worker
	Threads       int           // workers per pass
	Pattern       AccessPattern // how per-access offsets are generated
	Flush         FlushMode     // cache eviction between accesses
	Writes        bool          // write (aggressive) instead of read
	Distance      int           // offset step for sequential/stride, bytes
	PatternLength int           // accesses per outer iteration
	SetAffinity   bool          // pin workers to distinct logical CPUs
	Seed          int64         // per-run PRNG seed for the random pattern
	Delay         time.Duration // pacing sleep between bursts (adaptive backoff)
}

// Iterations per burst; the pacing delay is slept once per burst so that
// even the maximum backoff keeps a multi-million-rep pass bounded.
const burstLen = 100000

func (cfg *Config) normalize() {
	if cfg.PatternLength <= 0 {
		cfg.PatternLength = 1
	}
	if cfg.Distance <= 0 {
		cfg.Distance = 8192
	}
}

// Watch periodically compares a slice of the region against the reference
// while the pass runs and trips the cancellation flag on the first
// mismatch ("stop on first flip"). Only valid for read-mode passes:
// concurrent reads of the region are safe, a concurrent writer would make
// the comparison meaningless.
type Watch struct {
	Ref   arena.Pattern
	Start int
	Len   int
	Every time.Duration
}

// Run executes one hammering pass over the given aggressor byte offsets
// and returns once every worker has finished (the join barrier). The
// cancel flag may be shared with other passes; workers poll it once per
// outer iteration to keep it off the hot path.
func Run(r *arena.Region, targets []int, cfg Config, cancel *atomic.Bool, watch *Watch) error {
	cfg.normalize()
	if cfg.Reps <= 0 {
		return fmt.Errorf("reps must be positive")
	}
	if cfg.Threads <= 0 {
		return fmt.Errorf("thread count must be positive")
	}
	if len(targets) == 0 {
		return fmt.Errorf("no aggressor addresses")
	}
	if cfg.Pattern == VictimAggressor && len(targets) < 2 {
		return fmt.Errorf("%v pattern needs at least 2 aggressors", cfg.Pattern)
	}
	if watch != nil && cfg.Writes {
		return fmt.Errorf("corruption watch is meaningless with writes enabled")
	}
	if cancel == nil {
		cancel = new(atomic.Bool)
	}
	done := make(chan struct{})
	if watch != nil {
		go watchLoop(r, watch, cancel, done)
	}
	var g errgroup.Group
	for t := 0; t < cfg.Threads; t++ {
		id := t
		g.Go(func() error {
			worker(r, targets, cfg, cancel, id)
			return nil
		})
	}
	err := g.Wait()
	close(done)
	return err
}

func worker(r *arena.Region, targets []int, cfg Config, cancel *atomic.Bool, id int) {
	if cfg.SetAffinity {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := pin(id); err != nil {
			// Not fatal: the workers just may share cores.
			log.Logf(0, "warning: could not pin worker %v: %v", id, err)
		}
	}
	pl := newPlan(r, targets, cfg, id)
	for i := 0; i < cfg.Reps; i++ {
		if cancel.Load() {
			return
		}
		for p := 0; p < cfg.PatternLength; p++ {
			off, val := pl.access(i, p)
			if cfg.Flush == FlushLines {
				r.FlushLine(off)
			}
			if cfg.Writes {
				arena.WriteOnce(r.Ptr(off), val)
			} else {
				arena.ReadOnce(r.Ptr(off))
			}
			arena.Fence()
		}
		if cfg.Flush == FlushAll {
			// No true full-cache flush from user space; the fence at
			// least drains the store buffers each iteration.
			arena.Fence()
		}
		arena.StoreFence()
		if cfg.Delay > 0 && (i+1)%burstLen == 0 {
			time.Sleep(cfg.Delay)
		}
	}
}

func watchLoop(r *arena.Region, watch *Watch, cancel *atomic.Bool, done chan struct{}) {
	every := watch.Every
	if every <= 0 {
		every = 10 * time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		data := r.Data()
		for off := watch.Start; off < watch.Start+watch.Len; off++ {
			if data[off] != watch.Ref(off) {
				cancel.Store(true)
				return
			}
		}
	}
}
