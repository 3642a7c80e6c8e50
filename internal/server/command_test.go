// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package server

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/praefectus/internal/sigqueue"
)

func TestEncodeCommandIsNewlineFramedJSON(t *testing.T) {
	data, err := EncodeCommand(sigqueue.EventGracefulRestart)
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}
	if got := string(data); got != `{"command":"graceful_restart"}`+"\n" {
		t.Errorf("encoded = %q", got)
	}
}

func TestWatchCommandsEnqueuesEvents(t *testing.T) {
	r, w := io.Pipe()
	q := sigqueue.New()
	go watchCommands(r, q)

	for _, ev := range []sigqueue.Event{sigqueue.EventReload, sigqueue.EventDetach} {
		data, err := EncodeCommand(ev)
		if err != nil {
			t.Fatalf("EncodeCommand failed: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("pipe write failed: %v", err)
		}
	}

	waitForEvents := func(want ...sigqueue.Event) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		var got []sigqueue.Event
		for time.Now().Before(deadline) && len(got) < len(want) {
			got = append(got, q.Drain()...)
			time.Sleep(5 * time.Millisecond)
		}
		if len(got) != len(want) {
			t.Fatalf("events = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("events = %v, want %v", got, want)
			}
		}
	}
	waitForEvents(sigqueue.EventReload, sigqueue.EventDetach)

	// Malformed and unknown lines are skipped.
	if _, err := w.Write([]byte("not-json\n{\"command\":\"bogus\"}\n")); err != nil {
		t.Fatalf("pipe write failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if evs := q.Drain(); len(evs) != 0 {
		t.Errorf("unexpected events from garbage input: %v", evs)
	}

	// EOF means the supervisor is gone: the server winds down.
	w.Close() //nolint:errcheck
	waitForEvents(sigqueue.EventGracefulStop)
}

func TestWatchCommandsGracefulStopOnEOF(t *testing.T) {
	q := sigqueue.New()
	watchCommands(strings.NewReader(""), q)

	evs := q.Drain()
	if len(evs) != 1 || evs[0] != sigqueue.EventGracefulStop {
		t.Errorf("events = %v, want [graceful_stop]", evs)
	}
}
