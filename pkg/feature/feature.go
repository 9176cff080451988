// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package feature probes what the host actually supports before a session
// starts, so degraded modes (no physical addresses, no line flush) are
// announced up front instead of discovered from confusing results.
package feature

import (
	"os"
	"os/exec"
	"runtime"
	"sort"
	"unsafe"

	"github.com/nsram/hammer/pkg/arena"
	"github.com/nsram/hammer/pkg/log"
	"github.com/nsram/hammer/pkg/pagemap"
)

type ID int

const (
	LineFlush ID = iota
	Pagemap
	Affinity
	HugePages
	StressNG
	numFeatures
)

type Feature struct {
	Name    string
	Enabled bool
	Reason  string // explanation when disabled
}

type Set map[ID]Feature

// Check probes every capability. Probes are cheap and side-effect free;
// the pagemap probe resolves the address of a local to distinguish
// "interface missing" from "PFNs hidden".
func Check() Set {
	set := Set{
		LineFlush: checkLineFlush(),
		Pagemap:   checkPagemap(),
		Affinity:  checkAffinity(),
		HugePages: checkHugePages(),
		StressNG:  checkStressNG(),
	}
	return set
}

func (s Set) Log() {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		f := s[id]
		status := "enabled"
		if !f.Enabled {
			status = "disabled (" + f.Reason + ")"
		}
		log.Logf(0, "feature %-24v: %v", f.Name, status)
	}
}

func checkLineFlush() Feature {
	f := Feature{Name: "cache line flush"}
	if !arena.LineFlushSupported() {
		f.Reason = "no CLFLUSH on " + runtime.GOARCH
		return f
	}
	f.Enabled = true
	return f
}

func checkPagemap() Feature {
	f := Feature{Name: "physical addresses"}
	p, err := pagemap.Open(os.Getpagesize())
	if err != nil {
		f.Reason = err.Error()
		return f
	}
	defer p.Close()
	x := new([1]byte)
	x[0] = 1
	if _, ok := p.Resolve(uintptr(unsafe.Pointer(&x[0]))); !ok {
		f.Reason = "PFNs hidden, need CAP_SYS_ADMIN"
		return f
	}
	f.Enabled = true
	return f
}

func checkAffinity() Feature {
	f := Feature{Name: "thread affinity"}
	if runtime.GOOS != "linux" {
		f.Reason = "not supported on " + runtime.GOOS
		return f
	}
	f.Enabled = true
	return f
}

func checkHugePages() Feature {
	f := Feature{Name: "huge pages"}
	if _, err := os.Stat("/sys/kernel/mm/hugepages"); err != nil {
		f.Reason = "hugetlbfs not available"
		return f
	}
	f.Enabled = true
	return f
}

func checkStressNG() Feature {
	f := Feature{Name: "background load"}
	if _, err := exec.LookPath("stress-ng"); err != nil {
		f.Reason = "stress-ng not in PATH"
		return f
	}
	f.Enabled = true
	return f
}
