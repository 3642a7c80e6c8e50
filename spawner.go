// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package praefectus

import (
	"fmt"
	"time"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/backend"
	"github.com/tomtom215/praefectus/internal/heartbeat"
	"github.com/tomtom215/praefectus/internal/worker"
	"github.com/tomtom215/praefectus/logging"
)

// newSpawner builds the worker.Spawner for the configured backend. The
// backend is a static option, but the choice is deferred to spawn time so
// one spawner value serves the server for its whole life.
func newSpawner(opts Options, configPath string) worker.Spawner {
	return &dispatchSpawner{opts: opts, configPath: configPath}
}

type dispatchSpawner struct {
	opts       Options
	configPath string
}

func (d *dispatchSpawner) Spawn(workerID int, generation string, now time.Time, cfg *config.Config) (backend.Handle, *heartbeat.Pipe, error) {
	if cfg.WorkerType == config.BackendProcess {
		return d.spawnProcess(workerID, generation, now, cfg)
	}
	return d.spawnInProcess(workerID, generation, now, cfg)
}

// spawnProcess creates the heartbeat pipe and the worker child around it.
func (d *dispatchSpawner) spawnProcess(workerID int, generation string, now time.Time, cfg *config.Config) (backend.Handle, *heartbeat.Pipe, error) {
	if d.opts.WorkerHooks.BeforeFork != nil {
		if err := d.opts.WorkerHooks.BeforeFork(workerID); err != nil {
			return nil, nil, fmt.Errorf("before_fork hook: %w", err)
		}
	}

	hb, err := heartbeat.New(now)
	if err != nil {
		return nil, nil, err
	}

	ps := &backend.ProcessSpawner{ConfigPath: d.configPath}
	h, err := ps.Spawn(workerID, generation, hb.WriteEnd())
	hb.CloseWriteEnd()
	if err != nil {
		hb.Close()
		return nil, nil, err
	}

	d.afterStart(workerID, h.Pid())
	return h, hb, nil
}

// spawnInProcess builds the worker in the server process and runs it on a
// goroutine. Used by both the goroutine and embedded backends.
func (d *dispatchSpawner) spawnInProcess(workerID int, generation string, now time.Time, cfg *config.Config) (backend.Handle, *heartbeat.Pipe, error) {
	rc := &RunContext{
		Config:     cfg,
		Logger:     logging.Logger().With().Int("worker_id", workerID).Str("generation", generation).Logger(),
		WorkerID:   workerID,
		Generation: generation,
	}
	w := d.opts.NewWorker(rc)
	if w == nil {
		return nil, nil, fmt.Errorf("worker factory returned nil for worker %d", workerID)
	}

	if init, ok := w.(WorkerInitializer); ok {
		if err := init.Initialize(); err != nil {
			return nil, nil, fmt.Errorf("worker %d initialize: %w", workerID, err)
		}
	}

	proc := backend.Proc{
		Run:  containRun(w, rc),
		Stop: containStop(w, rc),
	}
	if r, ok := w.(WorkerReloader); ok {
		proc.Reload = r.Reload
	}

	h := backend.StartInProcess(proc)
	d.afterStart(workerID, 0)
	return h, heartbeat.Self(now), nil
}

func (d *dispatchSpawner) afterStart(workerID, pid int) {
	if d.opts.WorkerHooks.AfterStart == nil {
		return
	}
	if err := d.opts.WorkerHooks.AfterStart(workerID, pid); err != nil {
		logging.Error().Err(err).Int("worker_id", workerID).Msg("after_start hook failed")
	}
}

// containRun wraps the worker's Run so a panic is logged and surfaces as a
// crash instead of taking the server down.
func containRun(w Worker, rc *RunContext) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				rc.Logger.Error().Interface("panic", r).Msg("worker run panicked")
				err = fmt.Errorf("worker %d run panicked: %v", rc.WorkerID, r)
			}
		}()
		return w.Run()
	}
}

// containStop wraps the worker's Stop the same way.
func containStop(w Worker, rc *RunContext) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				rc.Logger.Error().Interface("panic", r).Msg("worker stop panicked")
			}
		}()
		w.Stop()
	}
}
