// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build !unix

package supervisor

import (
	"errors"
)

// ExecSpawner requires POSIX process control; on other platforms Spawn
// always returns an error. Configuration validation does not reject
// supervisor mode on these platforms.
type ExecSpawner struct {
	Exe        string
	Args       []string
	ConfigPath string
}

// Spawn always fails on non-POSIX platforms.
func (s *ExecSpawner) Spawn(string) (Child, error) {
	return nil, errors.New("server child processes are not supported on this platform")
}
