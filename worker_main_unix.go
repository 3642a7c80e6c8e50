// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build unix

package praefectus

import (
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/backend"
	"github.com/tomtom215/praefectus/internal/heartbeat"
	"github.com/tomtom215/praefectus/internal/procenv"
	"github.com/tomtom215/praefectus/logging"
)

// runWorkerChild is the worker-process runtime: it builds the user worker,
// pumps heartbeats to the inherited pipe, and maps its own signals onto
// the worker contract (TERM cooperative stop, QUIT hard stop, USR2
// reload).
func runWorkerChild(opts Options, cfg *config.Config, loader func() (*config.Config, error)) int {
	workerID, _ := strconv.Atoi(os.Getenv(backend.EnvWorkerID))
	generation := os.Getenv(backend.EnvGeneration)
	hbFd := backend.FirstExtraFd
	if v := os.Getenv(backend.EnvHeartbeatFD); v != "" {
		if fd, err := strconv.Atoi(v); err == nil {
			hbFd = fd
		}
	}

	procenv.SetProcessTitle(cfg.WorkerProcessName)

	rc := &RunContext{
		Config:     cfg,
		Logger:     logging.Logger().With().Int("worker_id", workerID).Str("generation", generation).Logger(),
		WorkerID:   workerID,
		Generation: generation,
	}
	w := opts.NewWorker(rc)
	if w == nil {
		rc.Logger.Error().Msg("worker factory returned nil")
		return 1
	}
	if init, ok := w.(WorkerInitializer); ok {
		if err := init.Initialize(); err != nil {
			rc.Logger.Error().Err(err).Msg("worker initialize failed")
			return 1
		}
	}

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(containStop(w, rc))
	}

	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, unix.SIGTERM, unix.SIGQUIT, unix.SIGUSR2, unix.SIGCONT)
	signal.Ignore(unix.SIGINT, unix.SIGUSR1, unix.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case unix.SIGTERM:
				rc.Logger.Debug().Msg("worker received graceful stop")
				go stop()
			case unix.SIGQUIT:
				rc.Logger.Warn().Msg("worker received immediate stop, exiting")
				go stop()
				os.Exit(2)
			case unix.SIGUSR2:
				reloadWorker(w, rc, loader)
			case unix.SIGCONT:
				procenv.WriteDump(map[string]any{
					"role":       "worker",
					"worker_id":  workerID,
					"generation": generation,
					"pid":        os.Getpid(),
				})
			}
		}
	}()

	// Heartbeat pump. A write error means the monitor is gone, which is a
	// stop request of its own kind.
	hw := heartbeat.NewWriter(uintptr(hbFd))
	defer hw.Close() //nolint:errcheck
	go func() {
		ticker := time.NewTicker(cfg.WorkerHeartbeatInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := hw.Beat(); err != nil {
				rc.Logger.Warn().Err(err).Msg("heartbeat pipe broken, stopping worker")
				stop()
				return
			}
		}
	}()

	rc.Logger.Info().Msg("worker started")
	if err := containRun(w, rc)(); err != nil {
		rc.Logger.Error().Err(err).Msg("worker run failed")
		return 1
	}
	rc.Logger.Info().Msg("worker finished")
	return 0
}

// reloadWorker re-runs the loader and notifies the worker. Invalid
// snapshots are dropped here exactly as in the server.
func reloadWorker(w Worker, rc *RunContext, loader func() (*config.Config, error)) {
	fresh, err := loader()
	if err != nil {
		rc.Logger.Error().Err(err).Msg("worker reload rejected")
		return
	}
	merged := fresh.MergeStatic(rc.Config)
	if verr := merged.Validate(); verr != nil {
		rc.Logger.Error().Err(verr).Msg("worker reload rejected, new snapshot invalid")
		return
	}
	logging.SetLevel(merged.LogLevel)
	if r, ok := w.(WorkerReloader); ok {
		if rerr := r.Reload(merged); rerr != nil {
			rc.Logger.Error().Err(rerr).Msg("worker reload callback failed")
		}
	}
	rc.Logger.Info().Msg("worker configuration reloaded")
}
