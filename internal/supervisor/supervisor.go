// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Package supervisor keeps exactly one server child alive.
//
// The supervisor's whole job is narrow: spawn the server, forward lifecycle
// signals to it over the command pipe, respawn it when it dies (paced by
// server_restart_wait), and orchestrate the live-restart (detach) protocol.
// It deliberately has no backoff beyond the flat restart wait; callers who
// want more layer it outside.
package supervisor

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/metrics"
	"github.com/tomtom215/praefectus/internal/procenv"
	"github.com/tomtom215/praefectus/internal/sigqueue"
	"github.com/tomtom215/praefectus/logging"
)

// Child is one spawned server process, abstracted for tests.
type Child interface {
	// Send forwards a lifecycle event over the command pipe.
	Send(ev sigqueue.Event) error

	// Done is closed once the child has exited and been reaped.
	Done() <-chan struct{}

	// ExitCode is valid after Done is closed.
	ExitCode() int

	// Pid returns the child's process id.
	Pid() int
}

// SpawnFunc creates a server child. generation tags the spawn in logs.
type SpawnFunc func(generation string) (Child, error)

// Options configures a Supervisor.
type Options struct {
	// Config is the daemon's configuration snapshot. Required.
	Config *config.Config

	// Spawn creates server children. Required (the praefectus root package
	// supplies the exec-based spawner).
	Spawn SpawnFunc

	// Queue receives lifecycle events. A nil queue is created internally.
	Queue *sigqueue.Queue

	// InstallSignals subscribes process signals into the queue. Disabled
	// in tests, which drive the queue directly.
	InstallSignals bool
}

// Supervisor monitors one server child.
type Supervisor struct {
	opts  Options
	cfg   *config.Config
	queue *sigqueue.Queue

	current   Child
	old       Child // detaching predecessor, if any
	lastStart time.Time

	shuttingDown bool
	detaching    bool
	lastExitCode int
}

// New builds a Supervisor from options.
func New(opts Options) *Supervisor {
	q := opts.Queue
	if q == nil {
		q = sigqueue.New()
	}
	return &Supervisor{
		opts:  opts,
		cfg:   opts.Config,
		queue: q,
	}
}

// Queue exposes the event queue, for embedding code and tests.
func (s *Supervisor) Queue() *sigqueue.Queue {
	return s.queue
}

// Run supervises until shutdown and returns the process exit code: the
// server's last exit code, or 0 when no server ever ran.
func (s *Supervisor) Run() int {
	if s.opts.InstallSignals {
		uninstall := sigqueue.Install(s.queue, s.cfg.EnableDetach)
		defer uninstall()
	}

	var respawnCh, detachCh <-chan time.Time

	if !s.spawn() {
		respawnCh = time.After(s.cfg.ServerRestartWait)
	}

	for {
		var currentDone, oldDone <-chan struct{}
		if s.current != nil {
			currentDone = s.current.Done()
		}
		if s.old != nil {
			oldDone = s.old.Done()
		}

		select {
		case <-currentDone:
			s.lastExitCode = s.current.ExitCode()
			logging.Info().
				Int("pid", s.current.Pid()).
				Int("exit_code", s.lastExitCode).
				Msg("server exited")
			s.current = nil

			if s.shuttingDown {
				if s.old == nil {
					return s.lastExitCode
				}
				continue
			}

			wait := time.Until(s.lastStart.Add(s.cfg.ServerRestartWait))
			if wait < 0 {
				wait = 0
			}
			logging.Warn().Dur("restart_wait", wait).Msg("server down, scheduling respawn")
			respawnCh = time.After(wait)

		case <-respawnCh:
			respawnCh = nil
			if !s.shuttingDown && s.current == nil {
				metrics.ServerRestarts.Inc()
				if !s.spawn() {
					respawnCh = time.After(s.cfg.ServerRestartWait)
				}
			}

		case <-oldDone:
			exitedBeforeDeadline := s.detaching && s.current == nil
			s.lastExitCode = s.old.ExitCode()
			logging.Info().
				Int("pid", s.old.Pid()).
				Int("exit_code", s.lastExitCode).
				Msg("detached server finished")
			s.old = nil
			s.detaching = false

			if s.shuttingDown && s.current == nil {
				return s.lastExitCode
			}
			if exitedBeforeDeadline && !s.shuttingDown {
				detachCh = nil
				if s.cfg.ExitOnDetach {
					return s.lastExitCode
				}
				if !s.spawn() {
					respawnCh = time.After(s.cfg.ServerRestartWait)
				}
			}

		case <-detachCh:
			detachCh = nil
			// Deadline hit with the old server still running: the two
			// coexist until the old one finishes.
			if s.detaching && s.current == nil && !s.shuttingDown {
				logging.Info().Msg("detach deadline reached, starting replacement server")
				if !s.spawn() {
					respawnCh = time.After(s.cfg.ServerRestartWait)
				}
			}

		case <-s.queue.Notify():
			if ch := s.applyEvents(); ch != nil {
				detachCh = ch
			}
		}

		if s.shuttingDown && s.current == nil && s.old == nil {
			return s.lastExitCode
		}
	}
}

// applyEvents drains the queue. It returns a new detach deadline channel
// when a detach sequence starts.
func (s *Supervisor) applyEvents() <-chan time.Time {
	var detachCh <-chan time.Time

	for _, ev := range s.queue.Drain() {
		logging.Debug().Str("event", ev.String()).Msg("supervisor event")

		switch ev {
		case sigqueue.EventGracefulStop, sigqueue.EventImmediateStop:
			s.shuttingDown = true
			s.forward(ev)

		case sigqueue.EventGracefulRestart, sigqueue.EventImmediateRestart:
			s.forward(ev)

		case sigqueue.EventReload:
			if s.cfg.DisableReload {
				logging.Info().Msg("reload requested but disabled by configuration")
				continue
			}
			s.forward(ev)

		case sigqueue.EventDetach:
			if !s.cfg.EnableDetach {
				continue
			}
			if s.detaching {
				logging.Debug().Msg("detach already in progress, ignoring")
				continue
			}
			if s.current == nil {
				continue
			}
			logging.Info().Int("pid", s.current.Pid()).Msg("detaching server for live restart")
			metrics.Detaches.Inc()
			s.detaching = true
			s.old = s.current
			s.current = nil
			if err := s.old.Send(sigqueue.EventDetach); err != nil {
				logging.Warn().Err(err).Msg("failed to send detach command")
			}
			detachCh = time.After(s.cfg.ServerDetachWait)

		case sigqueue.EventDump:
			procenv.WriteDump(s.status())
		}
	}
	return detachCh
}

// forward relays an event to every live server child.
func (s *Supervisor) forward(ev sigqueue.Event) {
	for _, c := range []Child{s.current, s.old} {
		if c == nil {
			continue
		}
		if err := c.Send(ev); err != nil {
			logging.Warn().Err(err).Str("event", ev.String()).Int("pid", c.Pid()).Msg("failed to forward command")
		}
	}
}

// spawn starts a new server child and records the pacing baseline.
// Reports whether the spawn succeeded; on failure the caller schedules a
// paced retry.
func (s *Supervisor) spawn() bool {
	generation := uuid.NewString()
	child, err := s.opts.Spawn(generation)
	s.lastStart = time.Now()
	if err != nil {
		logging.Error().Err(err).Msg("failed to spawn server")
		return false
	}
	s.current = child
	logging.Info().
		Int("pid", child.Pid()).
		Str("generation", generation).
		Msg("server spawned")
	return true
}

// status feeds the CONT dump.
func (s *Supervisor) status() map[string]any {
	st := map[string]any{
		"role":          "supervisor",
		"pid":           os.Getpid(),
		"shutting_down": s.shuttingDown,
		"detaching":     s.detaching,
	}
	if s.current != nil {
		st["server_pid"] = s.current.Pid()
	}
	if s.old != nil {
		st["old_server_pid"] = s.old.Pid()
	}
	return st
}
