// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package worker

import (
	"math/rand"
	"testing"
	"time"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/backend"
	"github.com/tomtom215/praefectus/internal/heartbeat"
)

// fakeHandle scripts a backend.Handle for deterministic transition tests.
type fakeHandle struct {
	alive      bool
	selfHB     bool
	pid        int
	signals    []backend.Sig
	forceKills int
	reloads    int
	exitCode   int
	signalErr  error
}

func (h *fakeHandle) Alive() bool { return h.alive }
func (h *fakeHandle) Pid() int    { return h.pid }

func (h *fakeHandle) Signal(sig backend.Sig) error {
	if h.signalErr != nil {
		return h.signalErr
	}
	h.signals = append(h.signals, sig)
	return nil
}

func (h *fakeHandle) Join(time.Duration) bool { return !h.alive }

func (h *fakeHandle) ForceKill() error {
	h.forceKills++
	return nil
}

func (h *fakeHandle) Reload(*config.Config) error {
	h.reloads++
	return nil
}

func (h *fakeHandle) ExitCode() int       { return h.exitCode }
func (h *fakeHandle) SelfHeartbeat() bool { return h.selfHB }

// fakeSpawner hands out a fresh fakeHandle per spawn.
type fakeSpawner struct {
	selfHB bool
	spawns int
	last   *fakeHandle
	lastHB *heartbeat.Pipe
	err    error
}

func (s *fakeSpawner) Spawn(_ int, _ string, now time.Time, _ *config.Config) (backend.Handle, *heartbeat.Pipe, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	s.spawns++
	s.last = &fakeHandle{alive: true, selfHB: s.selfHB, pid: 1000 + s.spawns}

	if s.selfHB {
		s.lastHB = heartbeat.Self(now)
	} else {
		hb, err := heartbeat.New(now)
		if err != nil {
			return nil, nil, err
		}
		s.lastHB = hb
	}
	return s.last, s.lastHB, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.WorkerType = config.BackendProcess
	cfg.Workers = 1
	cfg.WorkerHeartbeatTimeout = 3 * time.Second
	cfg.WorkerGracefulKillInterval = 1 * time.Second
	cfg.WorkerGracefulKillIntervalIncrement = 0
	cfg.WorkerGracefulKillTimeout = 5 * time.Second
	cfg.WorkerImmediateKillInterval = 1 * time.Second
	cfg.WorkerImmediateKillIntervalIncrement = 0
	cfg.WorkerImmediateKillTimeout = 3 * time.Second
	cfg.StartWorkerDelay = 0
	cfg.StartWorkerDelayRand = 0
	return cfg
}

func newTestMonitor(s Spawner) *Monitor {
	return NewMonitor(0, s, rand.New(rand.NewSource(1)))
}

func beat(t *testing.T, hb *heartbeat.Pipe) {
	t.Helper()
	if _, err := hb.WriteEnd().Write([]byte{0}); err != nil {
		t.Fatalf("heartbeat write failed: %v", err)
	}
}

func TestSelfHeartbeatWorkerRunsImmediately(t *testing.T) {
	s := &fakeSpawner{selfHB: true}
	m := newTestMonitor(s)
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, testConfig())
	if m.State() != StateRunning {
		t.Fatalf("state = %v, want running", m.State())
	}
	if m.Generation() == "" {
		t.Error("generation not assigned on spawn")
	}
}

func TestProcessWorkerRunsOnFirstHeartbeat(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	if m.State() != StateStarting {
		t.Fatalf("state = %v, want starting before first heartbeat", m.State())
	}

	m.Tick(t0.Add(time.Second), cfg)
	if m.State() != StateStarting {
		t.Fatalf("state = %v, want starting with no heartbeat yet", m.State())
	}

	beat(t, s.lastHB)
	m.Tick(t0.Add(2*time.Second), cfg)
	if m.State() != StateRunning {
		t.Fatalf("state = %v, want running after heartbeat", m.State())
	}
}

func TestGracefulStopEmitsOnSchedule(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)

	m.RequestStop(t0, cfg, false)
	if m.State() != StateStoppingGraceful {
		t.Fatalf("state = %v, want stopping_graceful", m.State())
	}
	if len(s.last.signals) != 1 || s.last.signals[0] != backend.SigGraceful {
		t.Fatalf("signals = %v, want one graceful on stage entry", s.last.signals)
	}

	// interval=1s, increment=0: one TERM per second. Heartbeats keep
	// flowing so the stall path stays out of the picture.
	for i := 1; i <= 4; i++ {
		beat(t, s.lastHB)
		m.Tick(t0.Add(time.Duration(i)*time.Second), cfg)
	}
	if got := len(s.last.signals); got != 5 {
		t.Errorf("signals sent = %d, want 5 (t=0..4)", got)
	}
	for _, sig := range s.last.signals {
		if sig != backend.SigGraceful {
			t.Errorf("unexpected signal %v during graceful stage", sig)
		}
	}
}

func TestSignalIntervalIncrementGrowsGaps(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	cfg.WorkerGracefulKillInterval = 1 * time.Second
	cfg.WorkerGracefulKillIntervalIncrement = 2 * time.Second
	cfg.WorkerGracefulKillTimeout = -1
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)
	m.RequestStop(t0, cfg, false)

	// Gaps grow by the increment per signal already sent: 1s, 3s, 5s.
	// Emissions land at t=0, 1, 4, 9.
	wantCounts := map[time.Duration]int{
		0 * time.Second:  1,
		1 * time.Second:  2,
		3 * time.Second:  2,
		4 * time.Second:  3,
		8 * time.Second:  3,
		9 * time.Second:  4,
	}
	for _, at := range []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9} {
		beat(t, s.lastHB)
		m.Tick(t0.Add(at*time.Second), cfg)
		if want, checked := wantCounts[at*time.Second]; checked {
			if got := len(s.last.signals); got != want {
				t.Errorf("at t+%v: signals = %d, want %d", at*time.Second, got, want)
			}
		}
	}
}

func TestGracefulEscalatesToImmediateThenForced(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)
	m.RequestStop(t0, cfg, false)

	// graceful timeout is 5s.
	beat(t, s.lastHB)
	m.Tick(t0.Add(5*time.Second+time.Millisecond), cfg)
	if m.State() != StateStoppingImmediate {
		t.Fatalf("state = %v, want stopping_immediate after graceful timeout", m.State())
	}
	if m.StageIndex() != 1 {
		t.Errorf("stage index = %d, want 1", m.StageIndex())
	}
	last := s.last.signals[len(s.last.signals)-1]
	if last != backend.SigImmediate {
		t.Errorf("last signal = %v, want immediate on stage entry", last)
	}

	// immediate timeout is 3s from stage entry.
	m.Tick(t0.Add(9*time.Second), cfg)
	if m.State() != StateStoppingForced {
		t.Fatalf("state = %v, want stopping_forced after immediate timeout", m.State())
	}
	if s.last.forceKills != 1 {
		t.Errorf("force kills = %d, want 1", s.last.forceKills)
	}
}

func TestNeverEscalateTimeoutHoldsStage(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	cfg.WorkerGracefulKillTimeout = -1
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)
	m.RequestStop(t0, cfg, false)

	// Hours later, still graceful.
	beat(t, s.lastHB)
	m.Tick(t0.Add(5*time.Hour), cfg)
	if m.State() != StateStoppingGraceful {
		t.Fatalf("state = %v, want stopping_graceful held by -1 timeout", m.State())
	}
}

func TestExplicitImmediateStillEscalatesAfterNeverEscalate(t *testing.T) {
	// -1 disables only automatic escalation out of the stage; an explicit
	// immediate stop proceeds, and its own finite timeout then forces.
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	cfg.WorkerGracefulKillTimeout = -1
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)
	m.RequestStop(t0, cfg, false)
	m.RequestStop(t0.Add(time.Second), cfg, true)

	if m.State() != StateStoppingImmediate {
		t.Fatalf("state = %v, want stopping_immediate after explicit request", m.State())
	}

	m.Tick(t0.Add(time.Second+cfg.WorkerImmediateKillTimeout+time.Millisecond), cfg)
	if m.State() != StateStoppingForced {
		t.Fatalf("state = %v, want stopping_forced", m.State())
	}
}

func TestHeartbeatStallEscalates(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig() // heartbeat timeout 3s
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)
	if m.State() != StateRunning {
		t.Fatalf("state = %v, want running", m.State())
	}

	// No heartbeats after t0; one tick past the timeout must escalate.
	m.Tick(t0.Add(4*time.Second), cfg)
	if m.State() != StateStoppingImmediate {
		t.Fatalf("state = %v, want stopping_immediate after stall", m.State())
	}
}

func TestStageIndexMonotonic(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)

	m.RequestStop(t0, cfg, true)
	if m.StageIndex() != 1 {
		t.Fatalf("stage index = %d, want 1", m.StageIndex())
	}

	// A later graceful request must not regress the stage.
	m.RequestStop(t0.Add(time.Second), cfg, false)
	if m.StageIndex() != 1 {
		t.Errorf("stage index regressed to %d", m.StageIndex())
	}
	if m.State() != StateStoppingImmediate {
		t.Errorf("state = %v, want stopping_immediate", m.State())
	}
}

func TestDoubleGracefulStopIsIdempotent(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)

	m.RequestStop(t0, cfg, false)
	m.RequestStop(t0, cfg, false)

	if got := len(s.last.signals); got != 1 {
		t.Errorf("signals = %d, want 1 (second request coalesced)", got)
	}
	if m.State() != StateStoppingGraceful {
		t.Errorf("state = %v, want stopping_graceful", m.State())
	}
}

func TestStopWhileStartingIsDeferred(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	m.RequestStop(t0, cfg, false)
	if m.State() != StateStarting {
		t.Fatalf("state = %v, want starting (stop deferred)", m.State())
	}
	if len(s.last.signals) != 0 {
		t.Fatalf("signals sent while starting: %v", s.last.signals)
	}

	beat(t, s.lastHB)
	m.Tick(t0.Add(time.Second), cfg)
	if m.State() != StateStoppingGraceful {
		t.Fatalf("state = %v, want stopping_graceful applied on running edge", m.State())
	}
	if len(s.last.signals) != 1 || s.last.signals[0] != backend.SigGraceful {
		t.Errorf("signals = %v, want one graceful", s.last.signals)
	}
}

func TestReapSchedulesPacedRespawn(t *testing.T) {
	s := &fakeSpawner{selfHB: true}
	m := newTestMonitor(s)
	cfg := testConfig()
	cfg.WorkerType = config.BackendGoroutine
	cfg.StartWorkerDelay = 2 * time.Second
	cfg.StartWorkerDelayRand = 0 // deterministic schedule
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	s.last.alive = false
	s.last.exitCode = 0

	m.Tick(t0.Add(time.Second), cfg)
	if m.State() != StateIdle {
		t.Fatalf("state = %v, want idle after reap", m.State())
	}
	want := t0.Add(time.Second).Add(2 * time.Second)
	if !m.NextStartAt().Equal(want) {
		t.Errorf("NextStartAt = %v, want %v", m.NextStartAt(), want)
	}

	// Respawn never occurs before next_start_at.
	m.MaybeStart(want.Add(-time.Millisecond), cfg)
	if s.spawns != 1 {
		t.Fatalf("respawned before next_start_at (spawns=%d)", s.spawns)
	}
	m.MaybeStart(want, cfg)
	if s.spawns != 2 {
		t.Fatalf("did not respawn at next_start_at (spawns=%d)", s.spawns)
	}
}

func TestRespawnJitterStaysInBand(t *testing.T) {
	s := &fakeSpawner{selfHB: true}
	m := newTestMonitor(s)
	cfg := testConfig()
	cfg.WorkerType = config.BackendGoroutine
	cfg.StartWorkerDelay = 10 * time.Second
	cfg.StartWorkerDelayRand = 0.2
	t0 := time.Unix(1000, 0)

	for i := 0; i < 20; i++ {
		m.MaybeStart(t0, cfg)
		s.last.alive = false
		m.Tick(t0, cfg)

		delay := m.NextStartAt().Sub(t0)
		if delay < 8*time.Second || delay > 12*time.Second {
			t.Fatalf("respawn delay %v outside +/-20%% band", delay)
		}
		t0 = m.NextStartAt()
	}
}

func TestCrashedWorkerReturnsToIdle(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	t0 := time.Unix(1000, 0)

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)

	// Worker dies without any stop request.
	s.last.alive = true
	first := s.last
	first.alive = false
	first.exitCode = 2

	m.Tick(t0.Add(time.Second), cfg)
	if m.State() != StateIdle {
		t.Fatalf("state = %v, want idle after crash reap", m.State())
	}
	if m.StageIndex() != 0 {
		t.Errorf("stage index = %d, want reset to 0", m.StageIndex())
	}
	if m.Pid() != 0 {
		t.Errorf("pid = %d, want 0 with no live handle", m.Pid())
	}
}

func TestSpawnFailureRetriesWithPacing(t *testing.T) {
	s := &fakeSpawner{selfHB: true}
	m := newTestMonitor(s)
	cfg := testConfig()
	cfg.WorkerType = config.BackendGoroutine
	cfg.StartWorkerDelay = 1 * time.Second
	cfg.StartWorkerDelayRand = 0
	t0 := time.Unix(1000, 0)

	s.err = errTestSpawn
	m.MaybeStart(t0, cfg)
	if m.State() != StateIdle {
		t.Fatalf("state = %v, want idle after failed spawn", m.State())
	}
	if m.NextStartAt() != t0.Add(time.Second) {
		t.Errorf("NextStartAt = %v, want paced retry", m.NextStartAt())
	}

	s.err = nil
	m.MaybeStart(t0.Add(time.Second), cfg)
	if m.State() != StateRunning {
		t.Fatalf("state = %v, want running after retry", m.State())
	}
}

var errTestSpawn = &spawnError{}

type spawnError struct{}

func (*spawnError) Error() string { return "spawn refused" }

func TestNextDeadline(t *testing.T) {
	s := &fakeSpawner{}
	m := newTestMonitor(s)
	cfg := testConfig()
	t0 := time.Unix(1000, 0)

	if !m.NextDeadline(true).IsZero() {
		t.Errorf("fresh idle monitor has deadline %v, want zero", m.NextDeadline(true))
	}

	m.MaybeStart(t0, cfg)
	beat(t, s.lastHB)
	m.Tick(t0, cfg)
	m.RequestStop(t0, cfg, false)

	want := t0.Add(cfg.WorkerGracefulKillInterval)
	if !m.NextDeadline(false).Equal(want) {
		t.Errorf("NextDeadline = %v, want next signal at %v", m.NextDeadline(false), want)
	}

	if !m.Live() {
		t.Error("monitor with a handle must report Live")
	}
}
