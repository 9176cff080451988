// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stats provides a registry of named counters and distributions
// for the hammering engine. Values are cheap to update from hot paths
// (a single atomic add) and are periodically collected for the console
// summary; values can additionally be exported as Prometheus gauges.
package stats

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsm/histogram/v3"
	"github.com/prometheus/client_golang/prometheus"
)

type UI struct {
	Name  string
	Desc  string
	Level Level
	Value string
	V     int
}

func Create(name, desc string, opts ...any) *Val {
	return global.Create(name, desc, opts...)
}

func Collect(level Level) []UI {
	return global.Collect(level)
}

var global = newSet()

type set struct {
	mu      sync.Mutex
	started time.Time
	vals    map[string]*Val
}

const histogramBuckets = 255

func newSet() *set {
	return &set{
		started: time.Now(),
		vals:    make(map[string]*Val),
	}
}

type Level int

const (
	All Level = iota
	Simple
	Console
)

type Rate struct{}
type Distribution struct{}
type Prometheus string

func (set *set) Create(name, desc string, opts ...any) *Val {
	val := &Val{
		name: name,
		desc: desc,
		fmt:  func(v int, period time.Duration) string { return fmt.Sprint(v) },
	}
	for _, o := range opts {
		switch opt := o.(type) {
		case Level:
			val.level = opt
		case Rate:
			val.rate = true
			val.fmt = formatRate
		case Distribution:
			val.hist = true
		case func() int:
			val.ext = opt
		case func(int, time.Duration) string:
			val.fmt = opt
		case Prometheus:
			// Prometheus instrumentation https://prometheus.io/docs/guides/go-application.
			prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: string(opt),
				Help: desc,
			},
				func() float64 { return float64(val.Val()) },
			))
		default:
			panic(fmt.Sprintf("unknown stats option %#v", o))
		}
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	set.vals[name] = val
	return val
}

func (set *set) Collect(level Level) []UI {
	set.mu.Lock()
	defer set.mu.Unlock()
	period := time.Since(set.started)
	if period < time.Second {
		period = time.Second
	}
	var res []UI
	for _, val := range set.vals {
		if val.level < level {
			continue
		}
		v := val.Val()
		res = append(res, UI{
			Name:  val.name,
			Desc:  val.desc,
			Level: val.level,
			Value: val.fmt(v, period),
			V:     v,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Level != res[j].Level {
			return res[i].Level > res[j].Level
		}
		return res[i].Name < res[j].Name
	})
	return res
}

type Val struct {
	name    string
	desc    string
	level   Level
	v       atomic.Uint64
	ext     func() int
	fmt     func(int, time.Duration) string
	rate    bool
	hist    bool
	histMu  sync.Mutex
	histVal *histogram.Histogram
}

func (val *Val) Name() string {
	return val.name
}

func (val *Val) Add(v int) {
	if val.ext != nil {
		panic(fmt.Sprintf("stat %v is in external mode", val.name))
	}
	if val.hist {
		val.histMu.Lock()
		if val.histVal == nil {
			val.histVal = histogram.New(histogramBuckets)
		}
		val.histVal.Add(float64(v))
		val.histMu.Unlock()
		return
	}
	val.v.Add(uint64(v))
}

func (val *Val) Val() int {
	if val.ext != nil {
		return val.ext()
	}
	if val.hist {
		val.histMu.Lock()
		defer val.histMu.Unlock()
		if val.histVal == nil {
			return 0
		}
		return int(val.histVal.Mean())
	}
	return int(val.v.Load())
}

// Quantile reports the given quantile of a Distribution value.
func (val *Val) Quantile(q float64) float64 {
	if !val.hist {
		panic(fmt.Sprintf("stat %v is not a distribution", val.name))
	}
	val.histMu.Lock()
	defer val.histMu.Unlock()
	if val.histVal == nil {
		return 0
	}
	return val.histVal.Quantile(q)
}

func formatRate(v int, period time.Duration) string {
	secs := int(period.Seconds())
	if x := v / secs; x >= 10 {
		return fmt.Sprintf("%v (%v/sec)", v, x)
	}
	if x := v * 60 / secs; x >= 10 {
		return fmt.Sprintf("%v (%v/min)", v, x)
	}
	x := v * 60 * 60 / secs
	return fmt.Sprintf("%v (%v/hour)", v, x)
}
