// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Package server implements the worker-pool owner: a single-threaded event
// loop that drains the signal queue, polls heartbeats, advances every
// worker monitor, and enforces the wanted-count policy.
//
// All state-machine mutation happens on the loop; the only concurrent
// visitors are the signal/command enqueuers (which touch nothing but the
// queue) and the status reads from the health endpoint, which go through
// the server mutex.
package server

import (
	"context"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/metrics"
	"github.com/tomtom215/praefectus/internal/procenv"
	"github.com/tomtom215/praefectus/internal/sigqueue"
	"github.com/tomtom215/praefectus/internal/worker"
	"github.com/tomtom215/praefectus/logging"
)

// Hooks are the user's server-level lifecycle callbacks. Any nil hook is
// skipped; any panic or error inside one is logged and contained.
type Hooks struct {
	BeforeRun    func() error
	AfterRun     func() error
	ReloadConfig func(cfg *config.Config) error
}

// Options configures a Server.
type Options struct {
	// Config is the initial snapshot. Required.
	Config *config.Config

	// ConfigPath is the file the snapshot came from; used by the config
	// watcher and handed to worker children.
	ConfigPath string

	// Loader produces a fresh snapshot on reload.
	Loader func() (*config.Config, error)

	// Spawner creates worker runtimes for the configured backend. Required.
	Spawner worker.Spawner

	// Hooks are the user's server lifecycle callbacks.
	Hooks Hooks

	// Queue receives lifecycle events. A nil queue is created internally.
	Queue *sigqueue.Queue

	// CommandFile is the inherited supervisor command pipe read end, nil
	// when the server runs without a supervisor parent.
	CommandFile *os.File

	// InstallSignals subscribes process signals into the queue. Disabled
	// in tests, which drive the queue directly.
	InstallSignals bool
}

// Server owns the worker pool.
type Server struct {
	mu   sync.Mutex
	opts Options
	cfg  *config.Config

	queue      *sigqueue.Queue
	monitors   []*worker.Monitor
	rng        *rand.Rand
	generation string

	stopping    bool
	noNewStarts bool
}

// New builds a Server from options.
func New(opts Options) *Server {
	q := opts.Queue
	if q == nil {
		q = sigqueue.New()
	}
	return &Server{
		opts:       opts,
		cfg:        opts.Config,
		queue:      q,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		generation: uuid.NewString(),
	}
}

// Queue exposes the event queue, for embedding code and tests.
func (s *Server) Queue() *sigqueue.Queue {
	return s.queue
}

// Run executes the server lifecycle: before_run, the event loop until all
// workers are finished and no more are wanted, then after_run. Returns the
// process exit code.
func (s *Server) Run() int {
	logging.Info().
		Str("generation", s.generation).
		Int("workers", s.cfg.Workers).
		Str("worker_type", string(s.cfg.WorkerType)).
		Msg("server starting")
	metrics.WorkersDesired.Set(float64(s.cfg.Workers))

	s.runHook("before_run", s.opts.Hooks.BeforeRun)

	if s.opts.InstallSignals {
		uninstall := sigqueue.Install(s.queue, s.cfg.EnableDetach)
		defer uninstall()
	}
	if s.opts.CommandFile != nil {
		go watchCommands(s.opts.CommandFile, s.queue)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.startAux(ctx)

	for {
		now := time.Now()

		s.mu.Lock()
		s.applyEvents(now)
		s.tick(now)
		s.reconcile(now)
		done := s.finishedLocked()
		s.mu.Unlock()

		if done {
			break
		}
		s.sleep(now)
	}

	s.runHook("after_run", s.opts.Hooks.AfterRun)
	logging.Info().Str("generation", s.generation).Msg("server stopped")
	return 0
}

// runHook executes a user hook, containing errors and panics.
func (s *Server) runHook(name string, hook func() error) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("hook", name).Msg("hook panicked")
		}
	}()
	if err := hook(); err != nil {
		logging.Error().Err(err).Str("hook", name).Msg("hook failed")
	}
}

// applyEvents drains the queue and translates events into pool transitions.
// Must hold mu.
func (s *Server) applyEvents(now time.Time) {
	for _, ev := range s.queue.Drain() {
		logging.Debug().Str("event", ev.String()).Msg("server event")

		switch ev {
		case sigqueue.EventGracefulStop:
			s.beginStop(now, false)

		case sigqueue.EventImmediateStop:
			if !s.processBackend() {
				logging.Warn().Str("event", ev.String()).Msg("immediate stop unsupported by backend, request dropped")
				continue
			}
			s.beginStop(now, true)

		case sigqueue.EventGracefulRestart:
			if s.cfg.RestartServerProcess {
				s.beginStop(now, false)
			} else {
				s.restartWorkers(now, false)
			}

		case sigqueue.EventImmediateRestart:
			if !s.processBackend() {
				logging.Warn().Str("event", ev.String()).Msg("immediate restart unsupported by backend, request dropped")
				continue
			}
			if s.cfg.RestartServerProcess {
				s.beginStop(now, true)
			} else {
				s.restartWorkers(now, true)
			}

		case sigqueue.EventReload:
			s.reload()

		case sigqueue.EventDetach:
			// The supervisor is replacing this server: it starts the
			// replacement once this one exits or its detach wait runs out.
			// This one winds down its pool and exits when the last worker
			// finishes.
			s.beginStop(now, false)

		case sigqueue.EventDump:
			s.dumpLocked()
		}
	}
}

func (s *Server) processBackend() bool {
	return s.cfg.WorkerType == config.BackendProcess
}

// beginStop stops the whole pool. Idempotent: a second stop request finds
// every monitor already in (or past) the requested stage.
func (s *Server) beginStop(now time.Time, immediate bool) {
	s.stopping = true
	s.noNewStarts = true
	for _, m := range s.monitors {
		m.RequestStop(now, s.cfg, immediate)
	}
}

// restartWorkers stops workers without inhibiting respawn, producing a
// rolling restart under the usual start pacing.
func (s *Server) restartWorkers(now time.Time, immediate bool) {
	logging.Info().Bool("immediate", immediate).Msg("restarting workers")
	for _, m := range s.monitors {
		m.RequestStop(now, s.cfg, immediate)
	}
}

// reload re-runs the loader and installs the new snapshot at this safe
// point. A loader error or invalid snapshot leaves the previous one in
// place.
func (s *Server) reload() {
	if s.cfg.DisableReload {
		logging.Info().Msg("reload requested but disabled by configuration")
		metrics.Reloads.WithLabelValues("disabled").Inc()
		return
	}
	if s.opts.Loader == nil {
		logging.Warn().Msg("reload requested but no loader configured")
		metrics.Reloads.WithLabelValues("rejected").Inc()
		return
	}

	fresh, err := s.opts.Loader()
	if err != nil {
		logging.Error().Err(err).Msg("reload rejected, keeping previous configuration")
		metrics.Reloads.WithLabelValues("rejected").Inc()
		return
	}

	merged := fresh.MergeStatic(s.cfg)
	if err := merged.Validate(); err != nil {
		logging.Error().Err(err).Msg("reload rejected, new snapshot invalid")
		metrics.Reloads.WithLabelValues("rejected").Inc()
		return
	}

	s.cfg = merged
	logging.SetLevel(merged.LogLevel)
	metrics.WorkersDesired.Set(float64(merged.Workers))
	metrics.Reloads.WithLabelValues("applied").Inc()

	if s.opts.Hooks.ReloadConfig != nil {
		s.runHook("reload_config", func() error { return s.opts.Hooks.ReloadConfig(merged) })
	}
	for _, m := range s.monitors {
		m.Reload(merged)
	}
	logging.Info().Int("workers", merged.Workers).Msg("configuration reloaded")
}

// dumpLocked writes the sigdump file with the pool status attached.
func (s *Server) dumpLocked() {
	procenv.WriteDump(s.statusLocked())
}

// tick advances every monitor's time-driven transitions. Must hold mu.
func (s *Server) tick(now time.Time) {
	running := 0
	for _, m := range s.monitors {
		m.Tick(now, s.cfg)
		if m.State() == worker.StateRunning {
			running++
		}
	}
	metrics.WorkersRunning.Set(float64(running))
}

// reconcile applies the wanted-count policy: grow the monitor set, stop
// surplus slots gracefully, start wanted idle slots under pacing. Low slot
// indices always survive a shrink. Must hold mu.
func (s *Server) reconcile(now time.Time) {
	for len(s.monitors) < s.cfg.Workers {
		s.monitors = append(s.monitors, worker.NewMonitor(len(s.monitors), s.opts.Spawner, s.rng))
	}

	for i := s.cfg.Workers; i < len(s.monitors); i++ {
		m := s.monitors[i]
		if m.Live() && !m.State().Stopping() {
			logging.Info().Int("worker_id", m.ID()).Msg("stopping surplus worker")
			m.RequestStop(now, s.cfg, false)
		}
	}

	if s.noNewStarts {
		return
	}
	for i := 0; i < s.cfg.Workers && i < len(s.monitors); i++ {
		s.monitors[i].MaybeStart(now, s.cfg)
	}
}

// finishedLocked reports whether the loop should exit: shutdown requested
// (or nothing wanted) and no runtime left alive.
func (s *Server) finishedLocked() bool {
	if !s.stopping && s.cfg.Workers > 0 {
		return false
	}
	for _, m := range s.monitors {
		if m.Live() {
			return false
		}
	}
	return true
}

// sleep blocks until the earliest monitor deadline, the heartbeat poll
// tick, or a new event.
func (s *Server) sleep(now time.Time) {
	s.mu.Lock()
	deadline := now.Add(s.cfg.WorkerHeartbeatInterval)
	for i, m := range s.monitors {
		wantStart := !s.noNewStarts && i < s.cfg.Workers
		if d := m.NextDeadline(wantStart); !d.IsZero() && d.Before(deadline) {
			deadline = d
		}
	}
	s.mu.Unlock()

	d := deadline.Sub(now)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.queue.Notify():
	}
}

// startAux launches the suture tree with whichever side-services the
// configuration enables.
func (s *Server) startAux(ctx context.Context) {
	wantWatcher := s.cfg.WatchConfig && s.opts.ConfigPath != ""
	if s.cfg.MetricsAddress == "" && !wantWatcher {
		return
	}

	tree := NewAuxTree(logging.NewSlogLogger(), DefaultTreeConfig())
	if s.cfg.MetricsAddress != "" {
		tree.Add(metrics.NewExporterService(s.cfg.MetricsAddress, func() any { return s.Status() }))
	}
	if wantWatcher {
		tree.Add(&watchService{path: s.opts.ConfigPath, queue: s.queue})
	}
	tree.ServeBackground(ctx)
}

// Status is a point-in-time view of the server for dumps and /healthz.
type Status struct {
	Role       string          `json:"role"`
	Pid        int             `json:"pid"`
	Generation string          `json:"generation"`
	Workers    int             `json:"workers"`
	Stopping   bool            `json:"stopping"`
	Pool       []worker.Status `json:"pool"`
}

// Status snapshots the server under the mutex.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Server) statusLocked() Status {
	st := Status{
		Role:       "server",
		Pid:        os.Getpid(),
		Generation: s.generation,
		Workers:    s.cfg.Workers,
		Stopping:   s.stopping,
	}
	for _, m := range s.monitors {
		st.Pool = append(st.Pool, m.Status())
	}
	return st
}
