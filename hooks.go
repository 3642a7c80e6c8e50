// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package praefectus

import (
	"github.com/rs/zerolog"

	"github.com/tomtom215/praefectus/config"
)

// Worker is the required user contract: a Run body and a cooperative Stop.
//
// Run executes the worker's main loop and returns when the work is done or
// Stop was requested. Stop must be safe to call from another goroutine (or
// a signal handler, for process workers) while Run is in flight; pairing a
// blockflag.Flag with the Run loop is the intended pattern.
type Worker interface {
	Run() error
	Stop()
}

// WorkerInitializer is an optional capability: Initialize runs before Run.
// For in-process backends it runs in the server before the worker starts;
// for the process backend it runs in the worker child. An error fails that
// start: the in-process spawn returns an error, and a worker child exits
// with status 1. Either way the slot is retried under start pacing.
type WorkerInitializer interface {
	Initialize() error
}

// WorkerReloader is an optional capability: Reload is invoked with the new
// snapshot whenever configuration is reloaded.
type WorkerReloader interface {
	Reload(cfg *config.Config) error
}

// RunContext is handed to the worker factory. It carries everything a
// worker may depend on; workers hold onto it rather than reaching for
// globals.
type RunContext struct {
	// Config is the immutable snapshot the worker was started under.
	// WorkerReloader delivers newer snapshots.
	Config *config.Config

	// Logger is pre-tagged with worker_id and generation.
	Logger zerolog.Logger

	// WorkerID is the slot index in [0, workers).
	WorkerID int

	// Generation is the uuid of this spawn, stable for the worker's
	// lifetime and shared with the server's logs.
	Generation string
}

// ServerHooks are the optional server-level lifecycle callbacks. Each is a
// nil-checked function pointer; errors and panics are logged and contained.
type ServerHooks struct {
	// Initialize runs in the launching process at construction, before
	// daemonization.
	Initialize func() error

	// BeforeRun runs in the server process before any worker starts.
	BeforeRun func() error

	// AfterRun runs in the server process after every worker finished.
	AfterRun func() error

	// ReloadConfig runs in the server process when a reload is applied.
	ReloadConfig func(cfg *config.Config) error
}

// WorkerHooks are the optional per-spawn callbacks that run in the server
// process.
type WorkerHooks struct {
	// BeforeFork runs immediately before a worker child is spawned
	// (process backend only).
	BeforeFork func(workerID int) error

	// AfterStart runs after a worker spawn; pid is 0 for in-process
	// workers.
	AfterStart func(workerID, pid int) error
}
