// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package praefectus

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/praefectus/blockflag"
	"github.com/tomtom215/praefectus/config"
)

// capWorker exercises every optional capability.
type capWorker struct {
	stop        *blockflag.Flag
	initialized atomic.Int32
	reloaded    atomic.Int32
	stopped     atomic.Int32
}

func newCapWorker() *capWorker {
	return &capWorker{stop: blockflag.New()}
}

func (w *capWorker) Run() error {
	w.stop.WaitSet(-1)
	return nil
}

func (w *capWorker) Stop() {
	w.stopped.Add(1)
	w.stop.Set()
}

func (w *capWorker) Initialize() error {
	w.initialized.Add(1)
	return nil
}

func (w *capWorker) Reload(*config.Config) error {
	w.reloaded.Add(1)
	return nil
}

func inProcessConfig() *config.Config {
	cfg := config.Default()
	cfg.WorkerType = config.BackendGoroutine
	return cfg
}

func TestSpawnInProcessWiresCapabilities(t *testing.T) {
	w := newCapWorker()
	var afterStarts atomic.Int32

	d := &dispatchSpawner{opts: Options{
		NewWorker:   func(*RunContext) Worker { return w },
		WorkerHooks: WorkerHooks{AfterStart: func(_, _ int) error { afterStarts.Add(1); return nil }},
	}}

	h, hb, err := d.Spawn(0, "gen", time.Unix(1000, 0), inProcessConfig())
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if hb == nil {
		t.Fatal("Spawn returned nil heartbeat channel")
	}
	if w.initialized.Load() != 1 {
		t.Errorf("Initialize ran %d times, want 1", w.initialized.Load())
	}
	if afterStarts.Load() != 1 {
		t.Errorf("AfterStart ran %d times, want 1", afterStarts.Load())
	}

	if err := h.Reload(config.Default()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if w.reloaded.Load() != 1 {
		t.Errorf("Reload ran %d times, want 1", w.reloaded.Load())
	}

	if err := h.Signal(0); err != nil { // SigGraceful
		t.Fatalf("Signal failed: %v", err)
	}
	if !h.Join(2 * time.Second) {
		t.Fatal("worker did not stop")
	}
	if w.stopped.Load() != 1 {
		t.Errorf("Stop ran %d times, want 1", w.stopped.Load())
	}
}

func TestSpawnInProcessRejectsNilWorker(t *testing.T) {
	d := &dispatchSpawner{opts: Options{
		NewWorker: func(*RunContext) Worker { return nil },
	}}
	if _, _, err := d.Spawn(0, "gen", time.Unix(1000, 0), inProcessConfig()); err == nil {
		t.Fatal("Spawn accepted a nil worker")
	}
}

type initFailWorker struct{ capWorker }

func (w *initFailWorker) Initialize() error { return errors.New("init refused") }

func TestSpawnInProcessInitializeFailureIsSpawnError(t *testing.T) {
	d := &dispatchSpawner{opts: Options{
		NewWorker: func(*RunContext) Worker {
			w := &initFailWorker{}
			w.stop = blockflag.New()
			return w
		},
	}}
	_, _, err := d.Spawn(0, "gen", time.Unix(1000, 0), inProcessConfig())
	if err == nil || !strings.Contains(err.Error(), "initialize") {
		t.Fatalf("Spawn error = %v, want initialize failure", err)
	}
}

type panicWorker struct{}

func (panicWorker) Run() error { panic("run blew up") }
func (panicWorker) Stop()      { panic("stop blew up") }

func TestContainRunAndStopRecoverPanics(t *testing.T) {
	rc := &RunContext{WorkerID: 7}

	err := containRun(panicWorker{}, rc)()
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("containRun error = %v, want panic surfaced as error", err)
	}

	// Must not propagate.
	containStop(panicWorker{}, rc)()
}

func TestBeforeForkFailureAbortsProcessSpawn(t *testing.T) {
	d := &dispatchSpawner{opts: Options{
		NewWorker:   func(*RunContext) Worker { return newCapWorker() },
		WorkerHooks: WorkerHooks{BeforeFork: func(int) error { return errors.New("fork vetoed") }},
	}}

	cfg := config.Default()
	cfg.WorkerType = config.BackendProcess
	_, _, err := d.Spawn(0, "gen", time.Unix(1000, 0), cfg)
	if err == nil || !strings.Contains(err.Error(), "before_fork") {
		t.Fatalf("Spawn error = %v, want before_fork failure", err)
	}
}

func TestRunRequiresWorkerFactory(t *testing.T) {
	if code := Run(Options{}); code != 1 {
		t.Errorf("Run without NewWorker = %d, want 1", code)
	}
}
