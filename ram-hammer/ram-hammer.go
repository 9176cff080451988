// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// ram-hammer drives a DRAM fault-injection session: allocate and fill a
// large arena, locate aggressor/victim row candidates, hammer them with
// cache-bypassing access loops, and report every corrupted byte it can
// find afterwards.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nsram/hammer/pkg/adaptive"
	"github.com/nsram/hammer/pkg/arena"
	"github.com/nsram/hammer/pkg/bgload"
	"github.com/nsram/hammer/pkg/config"
	"github.com/nsram/hammer/pkg/detect"
	"github.com/nsram/hammer/pkg/feature"
	"github.com/nsram/hammer/pkg/hammer"
	"github.com/nsram/hammer/pkg/locate"
	"github.com/nsram/hammer/pkg/log"
	"github.com/nsram/hammer/pkg/osutil"
	"github.com/nsram/hammer/pkg/pagemap"
	"github.com/nsram/hammer/pkg/report"
	"github.com/nsram/hammer/pkg/stats"
)

var (
	flagConfig     = flag.String("config", "", "YAML tuning profile, flags win over file values")
	flagMemoryMB   = flag.Int("memory-mb", 64, "arena size in megabytes")
	flagVictimSize = flag.Int("victim-size", 4096, "victim window size in bytes")
	flagAggrOffset = flag.Int("aggressor-offset", 8192, "aggressor distance for virtual-mode triplets, bytes")
	flagScanDiv    = flag.Int("scan-step-divisor", 2, "scan step = victim size / divisor")
	flagReps       = flag.Int("reps", 2000000, "hammer iterations per worker per pass")
	flagThreads    = flag.Int("threads", 4, "hammer workers per pass")
	flagPattern    = flag.String("access-pattern", "victim_aggressor",
		"one of: sequential, random, stride, alternating, reverse, victim_aggressor")
	flagFlush      = flag.String("cache-flush", "lines", "cache eviction per access: none/lines/all")
	flagWrite      = flag.Bool("write", false, "write instead of read in the hot loop (skips detection)")
	flagRuns       = flag.Int("runs", 3, "identical runs per candidate for consistency validation")
	flagStopFirst  = flag.Bool("stop-on-first-flip", false, "cancel the session at the first detected flip")
	flagAffinity   = flag.Bool("set-affinity", false, "pin hammer workers to CPUs (best effort)")
	flagSeed       = flag.Int64("seed", 0, "seed for the random access pattern (0 = time-based)")
	flagRetention  = flag.Bool("retention", false, "classify detected flips as persistent/transient")
	flagAdaptive   = flag.Bool("adaptive", false, "entropy-guided adaptive session")
	flagRounds     = flag.Int("rounds", 100, "adaptive: number of rounds")
	flagSample     = flag.Int("sample-every", 1, "adaptive: sample entropy every that many rounds")
	flagDecay      = flag.Int("decay-phases", 0, "run a decay test with that many idle phases instead")
	flagDecayWait  = flag.Duration("decay-wait", 10*time.Second, "idle time per decay phase")
	flagHugepages  = flag.Bool("hugepages", false, "attempt a hugetlb-backed arena")
	flagBgLoad     = flag.String("bgload", "", "background load command (e.g. \"stress-ng --vm 2\")")
	flagCandidates = flag.Int("max-candidates", 16, "hammer at most that many candidates")
	flagLog        = flag.String("log", "", "write the CSV corruption log to this file")
	flagHTTP       = flag.String("http", "", "serve stats and prometheus metrics on this address")
	flagOSReport   = flag.Bool("os-report", false, "print the host capability report and exit")
)

var (
	statPasses = stats.Create("hammer passes", "completed hammering passes",
		stats.Console, stats.Rate{}, stats.Prometheus("ram_hammer_passes"))
	statFlips = stats.Create("bit flips", "total corrupted bytes detected",
		stats.Console, stats.Prometheus("ram_hammer_flips"))
	statCandidates = stats.Create("candidates", "aggressor/victim triplets located",
		stats.Console)
	statPassNanos = stats.Create("pass ns", "mean hammering pass duration, ns",
		stats.Distribution{})
	statFlipsPerPass = stats.Create("flips per pass", "mean flips per detector scan",
		stats.Distribution{})
)

// Records kept per scan; the total count is exact regardless.
const maxFlipRecords = 1024

const exitFlips = 2 // corruption detected; fatal errors exit 1

func main() {
	flag.Parse()
	if err := validateFlags(); err != nil {
		log.Fatal(err)
	}
	cfg := loadConfig()
	feats := feature.Check()
	if *flagOSReport {
		feats.Log()
		return
	}
	if log.V(1) {
		feats.Log()
	}
	os.Exit(run(cfg, feats))
}

// validateFlags rejects flag values that would otherwise fail deep inside
// a session; configuration errors exit 1 up front.
func validateFlags() error {
	if *flagSample < 1 {
		return fmt.Errorf("-sample-every must be at least 1, got %v", *flagSample)
	}
	if *flagRounds < 1 {
		return fmt.Errorf("-rounds must be at least 1, got %v", *flagRounds)
	}
	if *flagCandidates < 1 {
		return fmt.Errorf("-max-candidates must be at least 1, got %v", *flagCandidates)
	}
	if *flagDecay < 0 {
		return fmt.Errorf("-decay-phases must not be negative, got %v", *flagDecay)
	}
	return nil
}

// loadConfig overlays the optional YAML profile with explicitly set flags.
func loadConfig() *config.Config {
	cfg := config.Default()
	if *flagConfig != "" {
		c, err := config.Load(*flagConfig)
		if err != nil {
			log.Fatal(err)
		}
		cfg = c
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "memory-mb":
			cfg.MemoryMB = *flagMemoryMB
		case "victim-size":
			cfg.VictimSize = *flagVictimSize
		case "aggressor-offset":
			cfg.AggressorOffset = *flagAggrOffset
		case "scan-step-divisor":
			cfg.ScanStepDivisor = *flagScanDiv
		case "reps":
			cfg.Reps = *flagReps
		case "threads":
			cfg.Threads = *flagThreads
		case "access-pattern":
			cfg.AccessPattern = *flagPattern
		case "cache-flush":
			cfg.CacheFlush = *flagFlush
		case "runs":
			cfg.Runs = *flagRuns
		case "bgload":
			cfg.BgLoad = *flagBgLoad
		}
	})
	return cfg
}

func run(cfg *config.Config, feats feature.Set) int {
	pattern, err := hammer.ParseAccessPattern(cfg.AccessPattern)
	if err != nil {
		log.Fatal(err)
	}
	flush, err := hammer.ParseFlushMode(cfg.CacheFlush)
	if err != nil {
		log.Fatal(err)
	}
	if flush == hammer.FlushLines && !feats[feature.LineFlush].Enabled {
		log.Logf(0, "no cache line flush on this host, accesses will mostly hit cache")
	}
	seed := *flagSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if *flagHTTP != "" {
		serveHTTP(*flagHTTP)
	}

	r, err := arena.Allocate(cfg.MemoryMB<<20, *flagHugepages)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Free()
	log.Logf(0, "arena: %v MB, page size %v, hugepages=%v",
		cfg.MemoryMB, r.PageSize(), r.HugePages())

	var cancel atomic.Bool
	shutdown := make(chan struct{})
	osutil.HandleInterrupts(shutdown)
	go func() {
		<-shutdown
		cancel.Store(true)
	}()

	if cfg.BgLoad != "" {
		gen, err := bgload.Start(cfg.BgLoad)
		if err != nil {
			log.Fatal(err)
		}
		defer gen.Stop()
	}

	var res pagemap.Resolver = pagemap.Null{}
	if p, err := pagemap.Open(r.PageSize()); err == nil {
		res = p
	} else {
		log.Logf(0, "physical address resolution unavailable: %v", err)
	}
	defer res.Close()

	var rep *report.Writer
	if *flagLog != "" {
		rep, err = report.Create(*flagLog)
		if err != nil {
			log.Fatal(err)
		}
		defer rep.Close()
	}

	sess := &session{
		r:       r,
		cfg:     cfg,
		pattern: pattern,
		flush:   flush,
		seed:    seed,
		rep:     rep,
		cancel:  &cancel,
		started: time.Now(),
	}
	if *flagDecay > 0 {
		return sess.decay(*flagDecay, *flagDecayWait)
	}

	cands := locate.Find(r, res, locate.Config{
		VictimSize:      cfg.VictimSize,
		ScanStepDivisor: cfg.ScanStepDivisor,
		MinPhysAddr:     uint64(cfg.MinPhysAddrGB) << 30,
		Distance:        cfg.AggressorOffset,
	})
	if len(cands) == 0 {
		log.Logf(0, "no physically suitable memory found")
		return 0
	}
	if cands[0].Virtual {
		log.Logf(0, "no physical adjacency information, using virtual triplets")
	}
	locate.Probe(r, cands)
	statCandidates.Add(len(cands))
	log.Logf(0, "located %v candidates, slowest aggressor latency %v",
		len(cands), cands[0].Latency)
	if len(cands) > *flagCandidates {
		cands = cands[:*flagCandidates]
	}

	if *flagAdaptive {
		return sess.adaptive(cands)
	}
	return sess.scan(cands)
}

type session struct {
	r       *arena.Region
	cfg     *config.Config
	pattern hammer.AccessPattern
	flush   hammer.FlushMode
	seed    int64
	rep     *report.Writer
	cancel  *atomic.Bool
	started time.Time

	// Called between a pass join and the detector scan; tests plant
	// faults here.
	postPass func()

	regions    int
	totalFlips int
}

func (s *session) hammerCfg(delay time.Duration) hammer.Config {
	patternLen := 8
	if s.pattern == hammer.VictimAggressor {
		patternLen = 2
	}
	return hammer.Config{
		Reps:          s.cfg.Reps,
		Threads:       s.cfg.Threads,
		Pattern:       s.pattern,
		Flush:         s.flush,
		Writes:        *flagWrite,
		Distance:      s.cfg.AggressorOffset,
		PatternLength: patternLen,
		SetAffinity:   *flagAffinity,
		Seed:          s.seed,
		Delay:         delay,
	}
}

// scan is the default mode: hammer each candidate for the configured
// number of identical runs and validate that the runs agree.
func (s *session) scan(cands []locate.Candidate) int {
	ref := arena.Mixed()
	bestCand, bestFlips := -1, 0
	for ci, c := range cands {
		if s.cancel.Load() {
			break
		}
		s.regions++
		log.Logf(1, "candidate %v: aggressors 0x%x/0x%x victim 0x%x latency %v virtual %v",
			ci, c.Aggr1, c.Aggr2, c.Victim, c.Latency, c.Virtual)
		var runs []detect.RunResult
		candFlips := 0
		vicStart, vicLen := s.victimWindow(c)
		for run := 0; run < s.cfg.Runs && !s.cancel.Load(); run++ {
			s.r.Fill(ref)
			var watch *hammer.Watch
			if *flagStopFirst && !*flagWrite {
				watch = &hammer.Watch{Ref: ref, Start: vicStart, Len: vicLen}
			}
			start := time.Now()
			if err := hammer.Run(s.r, []int{c.Aggr1, c.Aggr2}, s.hammerCfg(0),
				s.cancel, watch); err != nil {
				log.Fatal(err)
			}
			elapsed := time.Since(start)
			statPasses.Add(1)
			statPassNanos.Add(int(elapsed))
			if s.postPass != nil {
				s.postPass()
			}
			if *flagWrite {
				log.Logf(1, "candidate %v run %v: aggressive mode, detection skipped", ci, run)
				continue
			}
			flips, total := detect.Scan(s.r, ref, vicStart, vicLen, maxFlipRecords)
			statFlipsPerPass.Add(total)
			runs = append(runs, detect.RunResult{Run: run, Flips: flips, Total: total, Elapsed: elapsed})
			candFlips += total
			s.recordFlips(flips)
			if total > 0 {
				hist := detect.DeltaHistogram(flips)
				log.Logf(0, "candidate %v run %v: %v flips (%v single-bit, %v multi-bit)",
					ci, run, total, hist.Single, hist.Multi)
				if *flagRetention {
					s.retention(ref, flips)
				}
				if *flagStopFirst {
					s.cancel.Store(true)
				}
			}
		}
		s.totalFlips += candFlips
		statFlips.Add(candFlips)
		if s.rep != nil {
			s.rep.Candidate(c, candFlips)
		}
		if len(runs) > 1 {
			log.Logf(0, "candidate %v consistency over %v runs: %v",
				ci, len(runs), detect.Validate(runs))
		}
		if candFlips > bestFlips {
			bestCand, bestFlips = ci, candFlips
		}
	}
	if bestCand >= 0 {
		log.Logf(0, "best candidate: %v with %v flips", bestCand, bestFlips)
	}
	return s.summary()
}

// victimWindow clamps the configured victim size to the arena end; the
// last physical triplet's victim page can sit closer to the end than the
// window is wide.
func (s *session) victimWindow(c locate.Candidate) (start, n int) {
	n = s.cfg.VictimSize
	if c.Victim+n > s.r.Size() {
		n = s.r.Size() - c.Victim
	}
	return c.Victim, n
}

func (s *session) recordFlips(flips []detect.FlipRecord) {
	for _, f := range flips {
		log.Logf(0, "FLIP at 0x%x: 0x%02x -> 0x%02x (%v bits)",
			f.Offset, f.Expected, f.Actual, f.DeltaBits)
		if s.rep != nil {
			s.rep.Flip(f)
		}
	}
}

func (s *session) retention(ref arena.Pattern, flips []detect.FlipRecord) {
	for _, res := range detect.CheckRetention(s.r, ref, flips) {
		kind := "transient"
		if res.Persistent {
			kind = "PERSISTENT"
		}
		log.Logf(0, "retention at 0x%x: %v (reads 0x%02x)", res.Offset, kind, res.Actual)
		if s.rep != nil {
			s.rep.Retention(ref(res.Offset), res)
		}
	}
}

// adaptive lets the controller walk the arena: hammer the current target
// subregion, sample its entropy, and let the controller retarget or pace.
func (s *session) adaptive(cands []locate.Candidate) int {
	// Constant fill: an intact window has zero entropy, so any entropy at
	// all is corruption signal and the thresholds mean what they say.
	ref := arena.Solid(0xAA)
	s.r.Fill(ref)
	ctl := adaptive.New(adaptive.Config{
		SubregionSize: s.cfg.SubregionKB << 10,
		LowEntropy:    s.cfg.LowEntropy,
		HighEntropy:   s.cfg.HighEntropy,
		DelayStep:     time.Duration(s.cfg.DelayStepUS) * time.Microsecond,
		MaxDelay:      time.Duration(s.cfg.MaxDelayMS) * time.Millisecond,
	}, s.r.Size())
	log.Logf(0, "adaptive: %v rounds over %v subregions of %v KB",
		*flagRounds, ctl.Subregions(), s.cfg.SubregionKB)
	visited := make(map[int]bool)
	for round := 0; round < *flagRounds && !s.cancel.Load(); round++ {
		start, n := ctl.Target()
		if !visited[start] {
			visited[start] = true
			s.regions++
		}
		passStart := time.Now()
		if err := hammer.Run(s.r, s.targetsFor(cands, start, n),
			s.hammerCfg(ctl.Delay()), s.cancel, nil); err != nil {
			log.Fatal(err)
		}
		statPasses.Add(1)
		statPassNanos.Add(int(time.Since(passStart)))
		flips := 0
		if !*flagWrite {
			records, total := detect.Scan(s.r, ref, start, n, maxFlipRecords)
			flips = total
			statFlipsPerPass.Add(total)
			s.recordFlips(records)
			if total > 0 {
				s.totalFlips += total
				statFlips.Add(total)
				s.r.FillRange(start, n, ref)
				if *flagStopFirst {
					s.cancel.Store(true)
				}
			}
		}
		if round%*flagSample == 0 {
			h := adaptive.Entropy(s.r.Data()[start : start+n])
			id := ctl.TargetID() // Observe may retarget, record first
			d := ctl.Observe(h, flips)
			log.Logf(1, "round %v: window 0x%x entropy %.3f flips %v -> %v (delay %v)",
				round, start, h, flips, d, ctl.Delay())
			if s.rep != nil {
				s.rep.Entropy(id, round, h, flips)
			}
		}
	}
	return s.summary()
}

// targetsFor picks aggressors for the window: a located candidate whose
// victim falls inside it if there is one, plain window offsets otherwise.
func (s *session) targetsFor(cands []locate.Candidate, start, n int) []int {
	for _, c := range cands {
		if c.Victim >= start && c.Victim < start+n {
			return []int{c.Aggr1, c.Aggr2}
		}
	}
	a2 := start + s.cfg.AggressorOffset
	if a2 >= s.r.Size() {
		a2 = s.r.Size() - 1
	}
	return []int{start, a2}
}

// decay fills the arena once and rescans it after idle phases, looking
// for cells that lose their charge without any hammering at all.
func (s *session) decay(phases int, wait time.Duration) int {
	ref := arena.Mixed()
	s.r.Fill(ref)
	s.regions = 1
	log.Logf(0, "decay test: %v phases of %v idle", phases, wait)
	for phase := 1; phase <= phases; phase++ {
		if !s.idle(wait) {
			break
		}
		records, total := detect.Scan(s.r, ref, 0, s.r.Size(), maxFlipRecords)
		h := adaptive.Entropy(s.r.Data()[:s.r.PageSize()])
		log.Logf(0, "decay phase %v: %v flips, entropy %.3f", phase, total, h)
		s.recordFlips(records)
		if s.rep != nil {
			s.rep.Decay(phase, total, h)
		}
		// The arena is never refilled, so flips accumulate; the final
		// total is the session total.
		s.totalFlips = total
		statFlips.Add(total - statFlips.Val())
	}
	return s.summary()
}

// idle sleeps for the given duration in short slices so an interrupt
// still stops the session promptly. Reports false when cancelled.
func (s *session) idle(wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if s.cancel.Load() {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !s.cancel.Load()
}

func (s *session) summary() int {
	elapsed := time.Since(s.started)
	log.Logf(0, "tested %v regions, total flips: %v, elapsed %v",
		s.regions, s.totalFlips, elapsed.Round(time.Millisecond))
	for _, ui := range stats.Collect(stats.Console) {
		log.Logf(0, "%v: %v", ui.Name, ui.Value)
	}
	if s.rep != nil {
		s.rep.Summary(s.regions, s.totalFlips, elapsed)
	}
	if s.totalFlips > 0 {
		log.Logf(0, "MEMORY CORRUPTION DETECTED")
		return exitFlips
	}
	log.Logf(0, "no bit flips detected")
	return 0
}

func serveHTTP(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		for _, ui := range stats.Collect(stats.All) {
			fmt.Fprintf(w, "%-24v %v\n", ui.Name, ui.Value)
		}
	})
	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Fatalf("failed to serve on %v: %v", addr, err)
		}
	}()
	log.Logf(0, "serving stats on http://%v", addr)
}
