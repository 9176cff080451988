// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config holds the session parameters that are impractical to
// pass as flags on every invocation (tuning profiles for particular
// machines). Flags still win over the file: the file sets the profile,
// the command line overrides for one run.
package config

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Arena and scan parameters.
	MemoryMB        int `yaml:"memory_mb"`
	VictimSize      int `yaml:"victim_size"`
	ScanStepDivisor int `yaml:"scan_step_divisor"`
	MinPhysAddrGB   int `yaml:"min_phys_addr_gb"`
	AggressorOffset int `yaml:"aggressor_offset"`

	// Hammering parameters.
	Reps          int    `yaml:"reps"`
	Threads       int    `yaml:"threads"`
	AccessPattern string `yaml:"access_pattern"`
	CacheFlush    string `yaml:"cache_flush"`
	Runs          int    `yaml:"runs"`

	// Adaptive controller thresholds.
	LowEntropy  float64 `yaml:"low_entropy"`
	HighEntropy float64 `yaml:"high_entropy"`
	SubregionKB int     `yaml:"subregion_kb"`
	DelayStepUS int     `yaml:"delay_step_us"`
	MaxDelayMS  int     `yaml:"max_delay_ms"`

	// External load generator command line, empty to disable.
	BgLoad string `yaml:"bgload"`
}

func Default() *Config {
	return &Config{
		MemoryMB:        64,
		VictimSize:      4096,
		ScanStepDivisor: 2,
		MinPhysAddrGB:   1,
		AggressorOffset: 8192,
		Reps:            2000000,
		Threads:         4,
		AccessPattern:   "victim_aggressor",
		CacheFlush:      "lines",
		Runs:            3,
		LowEntropy:      0.5,
		HighEntropy:     7.5,
		SubregionKB:     64,
		DelayStepUS:     100,
		MaxDelayMS:      10,
	}
}

// Load reads path over the defaults. Unknown keys are errors: a typo in a
// tuning profile silently reverting a threshold to its default is exactly
// the failure mode a strict decode prevents.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %v", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "bad config %v", path)
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.MemoryMB <= 0 {
		return errors.New("memory_mb must be positive")
	}
	if cfg.VictimSize <= 0 {
		return errors.New("victim_size must be positive")
	}
	if cfg.Threads <= 0 {
		return errors.New("threads must be positive")
	}
	if cfg.LowEntropy < 0 || cfg.HighEntropy > 8 || cfg.LowEntropy >= cfg.HighEntropy {
		return errors.New("entropy thresholds must satisfy 0 <= low < high <= 8")
	}
	return nil
}
