// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Package backend abstracts worker execution over the three worker types.
//
// A Handle is one spawned worker runtime. The process backend wraps a real
// OS child with full TERM/QUIT/KILL escalation; the goroutine and embedded
// backends run the worker in-process, where only the cooperative stop
// exists and liveness is self-certified.
package backend

import (
	"errors"
	"time"

	"github.com/tomtom215/praefectus/config"
)

// Sig is a stage-level termination request, mapped per backend onto an OS
// signal or a cooperative call.
type Sig int

const (
	// SigGraceful asks the worker to stop cooperatively (SIGTERM / Stop()).
	SigGraceful Sig = iota

	// SigImmediate asks the OS to terminate the worker (SIGQUIT).
	SigImmediate

	// SigForce kills the worker without appeal (SIGKILL).
	SigForce
)

func (s Sig) String() string {
	switch s {
	case SigGraceful:
		return "graceful"
	case SigImmediate:
		return "immediate"
	case SigForce:
		return "force"
	default:
		return "unknown"
	}
}

// ErrUnsupported is returned for operations a backend cannot perform, such
// as immediate or forced termination of an in-process worker. Callers log
// it at warn and drop the request.
var ErrUnsupported = errors.New("operation not supported by worker backend")

// Handle is a live (or exited, not yet reaped) worker runtime.
//
// Handles are owned by exactly one monitor and are not safe for concurrent
// use; all calls happen on the server loop.
type Handle interface {
	// Alive reports whether the runtime has not yet exited.
	Alive() bool

	// Pid returns the OS process id, or 0 for in-process workers.
	Pid() int

	// Signal delivers a stage-level termination request.
	Signal(sig Sig) error

	// Join waits up to timeout for the runtime to exit and reports whether
	// it has. A negative timeout waits forever.
	Join(timeout time.Duration) bool

	// ForceKill terminates the runtime without appeal.
	ForceKill() error

	// Reload notifies the worker of a new configuration snapshot.
	Reload(cfg *config.Config) error

	// ExitCode returns the worker's exit code. Only meaningful after the
	// handle is no longer Alive; crashes by signal report -1.
	ExitCode() int

	// SelfHeartbeat reports whether liveness is self-certified rather than
	// observed through a heartbeat pipe.
	SelfHeartbeat() bool
}
