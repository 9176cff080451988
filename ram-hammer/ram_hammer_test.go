// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nsram/hammer/pkg/arena"
	"github.com/nsram/hammer/pkg/config"
	"github.com/nsram/hammer/pkg/hammer"
	"github.com/nsram/hammer/pkg/locate"
	"github.com/nsram/hammer/pkg/pagemap"
)

func newTestSession(t *testing.T) (*session, []locate.Candidate) {
	a := assert.New(t)
	r, err := arena.Allocate(16*4096, false)
	a.NoError(err)
	t.Cleanup(func() { r.Free() })
	cfg := config.Default()
	cfg.Reps = 50
	cfg.Threads = 2
	cfg.Runs = 2
	cfg.VictimSize = r.PageSize()
	cands := locate.Find(r, pagemap.Null{}, locate.Config{
		VictimSize:      cfg.VictimSize,
		ScanStepDivisor: 1,
		Distance:        2 * r.PageSize(),
	})
	a.NotEmpty(cands)
	s := &session{
		r:       r,
		cfg:     cfg,
		pattern: hammer.VictimAggressor,
		flush:   hammer.FlushNone,
		seed:    1,
		cancel:  new(atomic.Bool),
		started: time.Now(),
	}
	return s, cands[:1]
}

func TestScanHealthyMemory(t *testing.T) {
	a := assert.New(t)
	s, cands := newTestSession(t)
	a.Equal(s.scan(cands), 0)
	a.Equal(s.totalFlips, 0)
	a.Equal(s.regions, 1)
}

func TestScanDetectsCorruption(t *testing.T) {
	a := assert.New(t)
	s, cands := newTestSession(t)
	victim := cands[0].Victim
	// Flip one victim bit after every pass; each run must detect it and
	// the session must exit with the corruption code.
	s.postPass = func() { s.r.Data()[victim] ^= 0x04 }
	a.Equal(s.scan(cands), exitFlips)
	a.Equal(s.totalFlips, s.cfg.Runs)
}

func TestValidateFlags(t *testing.T) {
	a := assert.New(t)
	a.NoError(validateFlags())
	for _, f := range []struct {
		flag *int
		bad  int
	}{
		{flagSample, 0},
		{flagRounds, 0},
		{flagCandidates, 0},
		{flagDecay, -1},
	} {
		old := *f.flag
		*f.flag = f.bad
		a.Error(validateFlags())
		*f.flag = old
	}
	a.NoError(validateFlags())
}
