// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func write(t *testing.T, data string) string {
	path := filepath.Join(t.TempDir(), "hammer.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(data), 0640))
	return path
}

func TestDefault(t *testing.T) {
	a := assert.New(t)
	cfg := Default()
	a.NoError(cfg.validate())
	a.Equal(cfg.AccessPattern, "victim_aggressor")
	a.Equal(cfg.CacheFlush, "lines")
	a.Equal(cfg.MinPhysAddrGB, 1)
}

func TestLoadOverlay(t *testing.T) {
	a := assert.New(t)
	cfg, err := Load(write(t, `
memory_mb: 256
threads: 8
high_entropy: 7.0
bgload: "stress-ng --vm 2 --vm-bytes 75%"
`))
	a.NoError(err)
	a.Equal(cfg.MemoryMB, 256)
	a.Equal(cfg.Threads, 8)
	a.Equal(cfg.HighEntropy, 7.0)
	a.Equal(cfg.BgLoad, "stress-ng --vm 2 --vm-bytes 75%")
	// Unset keys keep their defaults.
	a.Equal(cfg.Reps, 2000000)
	a.Equal(cfg.VictimSize, 4096)
}

func TestLoadUnknownKey(t *testing.T) {
	a := assert.New(t)
	_, err := Load(write(t, "memory_mbb: 256\n"))
	a.Error(err)
}

func TestLoadBadValues(t *testing.T) {
	a := assert.New(t)
	_, err := Load(write(t, "memory_mb: -1\n"))
	a.Error(err)
	_, err = Load(write(t, "low_entropy: 7.5\nhigh_entropy: 0.5\n"))
	a.Error(err)
	_, err = Load(write(t, "threads: 0\n"))
	a.Error(err)
}

func TestLoadMissing(t *testing.T) {
	a := assert.New(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	a.Error(err)
}
