// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Package worker implements the per-slot monitor state machine.
//
// One Monitor owns one logical worker slot for the life of the server. The
// runtime handle inside it is created and destroyed repeatedly as the
// worker crashes, finishes, or is restarted. All methods run on the server
// loop with an explicit now, which keeps every transition deterministic and
// directly testable; the monitor itself never sleeps and never spawns
// timers.
package worker

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/backend"
	"github.com/tomtom215/praefectus/internal/heartbeat"
	"github.com/tomtom215/praefectus/internal/metrics"
	"github.com/tomtom215/praefectus/logging"
)

// State is the monitor's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStoppingGraceful
	StateStoppingImmediate
	StateStoppingForced
	StateFinished
)

// String returns the state name used in logs, metrics, and status dumps.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStoppingGraceful:
		return "stopping_graceful"
	case StateStoppingImmediate:
		return "stopping_immediate"
	case StateStoppingForced:
		return "stopping_forced"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Stopping reports whether the state is one of the three kill stages.
func (s State) Stopping() bool {
	return s == StateStoppingGraceful || s == StateStoppingImmediate || s == StateStoppingForced
}

// Stage indices within a kill sequence.
const (
	stageGraceful  = 0
	stageImmediate = 1
	stageForced    = 2
)

const noPendingStop = -1

// Spawner creates the runtime for one worker slot. The praefectus root
// package supplies one per backend. cfg is the snapshot current at spawn
// time, so a freshly respawned worker always sees the latest reload.
type Spawner interface {
	Spawn(workerID int, generation string, now time.Time, cfg *config.Config) (backend.Handle, *heartbeat.Pipe, error)
}

// Monitor drives one worker slot through its lifecycle.
type Monitor struct {
	id      int
	spawner Spawner
	rng     *rand.Rand

	state      State
	handle     backend.Handle
	hb         *heartbeat.Pipe
	generation string

	stageIndex     int
	signalsSent    int
	stageEnteredAt time.Time
	nextSignalAt   time.Time
	nextStartAt    time.Time

	// pendingStop holds a stop stage requested while STARTING; it is
	// applied on the STARTING -> RUNNING edge.
	pendingStop int
}

// NewMonitor returns an idle monitor for the given slot.
func NewMonitor(id int, spawner Spawner, rng *rand.Rand) *Monitor {
	return &Monitor{
		id:          id,
		spawner:     spawner,
		rng:         rng,
		state:       StateIdle,
		pendingStop: noPendingStop,
	}
}

// ID returns the worker slot index.
func (m *Monitor) ID() int { return m.id }

// State returns the current lifecycle state.
func (m *Monitor) State() State { return m.state }

// Generation returns the uuid of the current (or last) spawn.
func (m *Monitor) Generation() string { return m.generation }

// Pid returns the worker's pid, or 0 when not running or in-process.
func (m *Monitor) Pid() int {
	if m.handle == nil {
		return 0
	}
	return m.handle.Pid()
}

// NextStartAt returns the earliest allowed respawn time.
func (m *Monitor) NextStartAt() time.Time { return m.nextStartAt }

// StageIndex returns the kill stage (0 graceful, 1 immediate, 2 forced).
// It is monotonically non-decreasing within one stop sequence and resets
// only when the slot returns to idle.
func (m *Monitor) StageIndex() int { return m.stageIndex }

// MaybeStart spawns the worker if the slot is idle and pacing allows it.
// The server calls this only for wanted slots.
func (m *Monitor) MaybeStart(now time.Time, cfg *config.Config) {
	if m.state != StateIdle || now.Before(m.nextStartAt) {
		return
	}

	m.generation = uuid.NewString()
	handle, hb, err := m.spawner.Spawn(m.id, m.generation, now, cfg)
	if err != nil {
		logging.Error().Err(err).Int("worker_id", m.id).Msg("failed to start worker")
		m.nextStartAt = now.Add(m.respawnDelay(cfg))
		return
	}

	m.handle = handle
	m.hb = hb
	m.state = StateStarting
	metrics.WorkerStarts.Inc()
	logging.Info().
		Int("worker_id", m.id).
		Str("generation", m.generation).
		Int("pid", handle.Pid()).
		Msg("worker starting")

	// In-process workers are live the moment the goroutine exists; process
	// workers stay STARTING until the first heartbeat arrives.
	if handle.SelfHeartbeat() {
		m.becomeRunning(now, cfg)
	}
}

func (m *Monitor) becomeRunning(now time.Time, cfg *config.Config) {
	m.state = StateRunning
	m.hb.Touch(now)
	logging.Debug().Int("worker_id", m.id).Str("generation", m.generation).Msg("worker running")

	if m.pendingStop != noPendingStop {
		stage := m.pendingStop
		m.pendingStop = noPendingStop
		m.enterStage(now, cfg, stage)
	}
}

// RequestStop drives the slot toward termination. immediate selects the
// stage to enter; a later immediate request escalates an in-flight
// graceful stop, never the reverse.
func (m *Monitor) RequestStop(now time.Time, cfg *config.Config, immediate bool) {
	stage := stageGraceful
	if immediate {
		stage = stageImmediate
	}

	switch {
	case m.state == StateIdle || m.state == StateFinished:
		// Nothing running; the server's wanted-count policy simply stops
		// starting this slot.
	case m.state == StateStarting:
		if stage > m.pendingStop {
			m.pendingStop = stage
		}
	case m.state == StateRunning:
		m.enterStage(now, cfg, stage)
	case m.state.Stopping():
		if stage > m.stageIndex {
			m.enterStage(now, cfg, stage)
		}
	}
}

// enterStage moves to the given kill stage and emits its first signal.
// Stages only move forward.
func (m *Monitor) enterStage(now time.Time, cfg *config.Config, stage int) {
	if m.state.Stopping() && stage <= m.stageIndex {
		return
	}

	m.stageIndex = stage
	m.signalsSent = 0
	m.stageEnteredAt = now

	switch stage {
	case stageGraceful:
		m.state = StateStoppingGraceful
	case stageImmediate:
		m.state = StateStoppingImmediate
	case stageForced:
		m.state = StateStoppingForced
	}
	logging.Info().
		Int("worker_id", m.id).
		Str("stage", m.state.String()).
		Msg("worker entering stop stage")

	m.emitStageSignal(now, cfg)
}

// emitStageSignal sends the stage-appropriate signal and schedules the next
// emission: the gap grows by the stage's increment for every signal already
// sent in this stage.
func (m *Monitor) emitStageSignal(now time.Time, cfg *config.Config) {
	var sig backend.Sig
	var base, incr time.Duration
	switch m.stageIndex {
	case stageGraceful:
		sig = backend.SigGraceful
		base = cfg.WorkerGracefulKillInterval
		incr = cfg.WorkerGracefulKillIntervalIncrement
	case stageImmediate:
		sig = backend.SigImmediate
		base = cfg.WorkerImmediateKillInterval
		incr = cfg.WorkerImmediateKillIntervalIncrement
	case stageForced:
		if err := m.handle.ForceKill(); err != nil {
			logging.Warn().Err(err).Int("worker_id", m.id).Msg("forced kill unavailable, waiting for worker to finish")
		}
		return
	}

	if err := m.handle.Signal(sig); err != nil {
		logging.Warn().Err(err).
			Int("worker_id", m.id).
			Str("signal", sig.String()).
			Msg("stop signal dropped")
	}
	m.nextSignalAt = now.Add(base + incr*time.Duration(m.signalsSent))
	m.signalsSent++
}

// Tick advances all time-driven transitions: the STARTING->RUNNING edge,
// heartbeat-stall detection, stage timeout escalation, and scheduled signal
// re-emission. It also reaps an exited runtime.
func (m *Monitor) Tick(now time.Time, cfg *config.Config) {
	if m.handle == nil {
		return
	}

	// Reap first: an exited worker needs no further driving.
	if !m.handle.Alive() {
		m.reap(now, cfg)
		return
	}

	if m.hb != nil && !m.handle.SelfHeartbeat() {
		got := m.hb.Drain(now)

		if m.state == StateStarting && got {
			m.becomeRunning(now, cfg)
		}

		if (m.state == StateStarting || m.state == StateRunning || m.state == StateStoppingGraceful) &&
			m.hb.Stalled(now, cfg.WorkerHeartbeatTimeout) {
			logging.Warn().
				Int("worker_id", m.id).
				Time("last_heartbeat_at", m.hb.LastAt()).
				Msg("worker heartbeat timed out")
			metrics.WorkerHeartbeatTimeouts.Inc()
			m.enterStage(now, cfg, stageImmediate)
		}
	}

	switch m.state {
	case StateStoppingGraceful:
		if t := cfg.WorkerGracefulKillTimeout; !config.NeverEscalate(t) && now.Sub(m.stageEnteredAt) > t {
			m.enterStage(now, cfg, stageImmediate)
		}
	case StateStoppingImmediate:
		if t := cfg.WorkerImmediateKillTimeout; !config.NeverEscalate(t) && now.Sub(m.stageEnteredAt) > t {
			m.enterStage(now, cfg, stageForced)
		}
	}

	if (m.state == StateStoppingGraceful || m.state == StateStoppingImmediate) && !now.Before(m.nextSignalAt) {
		m.emitStageSignal(now, cfg)
	}
}

// reap records the exit, releases the runtime, and schedules the paced
// respawn. FINISHED is observable only through logs; book-keeping returns
// the slot to IDLE within the same tick.
func (m *Monitor) reap(now time.Time, cfg *config.Config) {
	m.state = StateFinished
	code := m.handle.ExitCode()

	event := logging.Info()
	if m.stageIndex == stageGraceful && m.signalsSent == 0 {
		// Nobody asked this worker to stop.
		event = logging.Warn()
		metrics.WorkerCrashes.Inc()
	}
	event.
		Int("worker_id", m.id).
		Str("generation", m.generation).
		Int("exit_code", code).
		Msg("worker finished")

	if m.hb != nil {
		m.hb.Close()
		m.hb = nil
	}
	m.handle = nil

	m.state = StateIdle
	m.stageIndex = stageGraceful
	m.signalsSent = 0
	m.pendingStop = noPendingStop
	m.nextSignalAt = time.Time{}
	m.nextStartAt = now.Add(m.respawnDelay(cfg))
}

// respawnDelay computes start_worker_delay with its jitter band applied.
func (m *Monitor) respawnDelay(cfg *config.Config) time.Duration {
	delay := cfg.StartWorkerDelay
	if delay <= 0 {
		return 0
	}
	if cfg.StartWorkerDelayRand > 0 && m.rng != nil {
		jitter := 1 + (m.rng.Float64()*2-1)*cfg.StartWorkerDelayRand
		delay = time.Duration(float64(delay) * jitter)
	}
	return delay
}

// Reload forwards the new snapshot to a live worker.
func (m *Monitor) Reload(cfg *config.Config) {
	if m.handle == nil || !m.handle.Alive() {
		return
	}
	if err := m.handle.Reload(cfg); err != nil {
		logging.Warn().Err(err).Int("worker_id", m.id).Msg("worker reload notification failed")
	}
}

// Live reports whether the slot currently owns a runtime handle.
func (m *Monitor) Live() bool {
	return m.handle != nil
}

// NextDeadline returns the earliest wall-clock time at which this monitor
// needs another Tick, or the zero time if it has no scheduled work.
// wantStart tells it whether the server still wants this slot running; for
// surplus or stopping pools the pending respawn time is not a deadline.
func (m *Monitor) NextDeadline(wantStart bool) time.Time {
	var deadline time.Time
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if deadline.IsZero() || t.Before(deadline) {
			deadline = t
		}
	}

	if m.state == StateIdle && wantStart {
		consider(m.nextStartAt)
	}
	if m.state == StateStoppingGraceful || m.state == StateStoppingImmediate {
		consider(m.nextSignalAt)
	}
	return deadline
}

// Status is a point-in-time view of the slot for dumps and the health
// endpoint.
type Status struct {
	WorkerID        int       `json:"worker_id"`
	State           string    `json:"state"`
	Pid             int       `json:"pid,omitempty"`
	Generation      string    `json:"generation,omitempty"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	StageIndex      int       `json:"stage_index"`
	NextStartAt     time.Time `json:"next_start_at"`
}

// Status snapshots the monitor.
func (m *Monitor) Status() Status {
	s := Status{
		WorkerID:   m.id,
		State:      m.state.String(),
		Pid:        m.Pid(),
		Generation: m.generation,
		StageIndex: m.stageIndex,
	}
	if m.hb != nil {
		s.LastHeartbeatAt = m.hb.LastAt()
	}
	s.NextStartAt = m.nextStartAt
	return s
}
