// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package heartbeat

import (
	"testing"
	"time"
)

func TestDrainUpdatesLastAt(t *testing.T) {
	t0 := time.Unix(1000, 0)
	p, err := New(t0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if p.LastAt() != t0 {
		t.Errorf("LastAt = %v, want seed time %v", p.LastAt(), t0)
	}

	if _, err := p.WriteEnd().Write([]byte{0, 0, 0}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t1 := t0.Add(2 * time.Second)
	if !p.Drain(t1) {
		t.Fatal("Drain found no bytes after write")
	}
	if p.LastAt() != t1 {
		t.Errorf("LastAt = %v, want %v", p.LastAt(), t1)
	}
}

func TestDrainEmptyDoesNotBlockOrUpdate(t *testing.T) {
	t0 := time.Unix(1000, 0)
	p, err := New(t0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	done := make(chan bool, 1)
	go func() {
		done <- p.Drain(t0.Add(time.Second))
	}()

	select {
	case got := <-done:
		if got {
			t.Error("Drain reported bytes on an empty pipe")
		}
	case <-time.After(time.Second):
		t.Fatal("Drain blocked on an empty pipe")
	}
	if p.LastAt() != t0 {
		t.Errorf("LastAt moved without heartbeats: %v", p.LastAt())
	}
}

func TestStalled(t *testing.T) {
	t0 := time.Unix(1000, 0)
	p := Self(t0)

	if p.Stalled(t0.Add(time.Second), 3*time.Second) {
		t.Error("stalled too early")
	}
	if !p.Stalled(t0.Add(4*time.Second), 3*time.Second) {
		t.Error("not stalled after timeout elapsed")
	}

	p.Touch(t0.Add(4 * time.Second))
	if p.Stalled(t0.Add(5*time.Second), 3*time.Second) {
		t.Error("stalled right after Touch")
	}
}

func TestWriterBeatReachesReader(t *testing.T) {
	t0 := time.Unix(1000, 0)
	p, err := New(t0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	w := &Writer{f: p.WriteEnd()}
	for i := 0; i < 5; i++ {
		if err := w.Beat(); err != nil {
			t.Fatalf("Beat failed: %v", err)
		}
	}

	if !p.Drain(t0.Add(time.Second)) {
		t.Fatal("Drain saw no heartbeats")
	}
	// All five bytes must be consumed in one drain.
	if p.Drain(t0.Add(2 * time.Second)) {
		t.Error("second Drain found leftover bytes")
	}
}

func TestSelfDrainNoop(t *testing.T) {
	p := Self(time.Unix(1000, 0))
	if p.Drain(time.Unix(1001, 0)) {
		t.Error("Drain on self-certified channel returned true")
	}
}
