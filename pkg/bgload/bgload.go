// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package bgload runs an external memory/cpu load generator (typically
// stress-ng) for the duration of a hammering session, to create the bus
// contention that makes marginal cells fail.
package bgload

import (
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/nsram/hammer/pkg/log"
	"github.com/nsram/hammer/pkg/osutil"
)

type Generator struct {
	cmd *exec.Cmd
}

// Start launches the given command line in its own process group so that
// Stop can take down the whole tree. Output is discarded; the generator
// is load, not signal.
func Start(command string) (*Generator, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("empty background load command")
	}
	cmd := osutil.Command(fields[0], fields[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start background load %q", command)
	}
	log.Logf(1, "background load started: %v (pid %v)", command, cmd.Process.Pid)
	return &Generator{cmd: cmd}, nil
}

// Stop kills the generator's process group and reaps it. Safe to call
// once; the generator is unusable afterwards.
func (g *Generator) Stop() {
	syscall.Kill(-g.cmd.Process.Pid, syscall.SIGKILL)
	g.cmd.Wait()
	log.Logf(1, "background load stopped")
}
