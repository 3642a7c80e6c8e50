// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build !unix

package backend

import (
	"errors"
	"os"
	"time"

	"github.com/tomtom215/praefectus/config"
)

// ProcessSpawner requires POSIX process control; configuration validation
// rejects worker_type=process before this can ever run elsewhere.
type ProcessSpawner struct {
	Exe        string
	Args       []string
	ConfigPath string
	ExtraEnv   []string
}

// Spawn always fails on non-POSIX platforms.
func (s *ProcessSpawner) Spawn(int, string, *os.File) (*ProcessHandle, error) {
	return nil, errors.New("worker child processes are not supported on this platform")
}

// ProcessHandle is never constructed on non-POSIX platforms.
type ProcessHandle struct{}

func (h *ProcessHandle) Alive() bool                  { return false }
func (h *ProcessHandle) Pid() int                     { return 0 }
func (h *ProcessHandle) Signal(Sig) error             { return ErrUnsupported }
func (h *ProcessHandle) Join(time.Duration) bool      { return true }
func (h *ProcessHandle) ForceKill() error             { return ErrUnsupported }
func (h *ProcessHandle) Reload(*config.Config) error  { return ErrUnsupported }
func (h *ProcessHandle) ExitCode() int                { return -1 }
func (h *ProcessHandle) SelfHeartbeat() bool          { return false }
