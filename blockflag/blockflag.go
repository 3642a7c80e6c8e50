// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Package blockflag provides a thread-safe boolean flag that goroutines can
// wait on with a timeout.
//
// Workers use a Flag in place of sleep loops so that a cooperative stop
// takes effect immediately:
//
//	for !f.WaitSet(time.Second) {
//	    doPeriodicWork()
//	}
//
// Stop() on the worker then just calls f.Set() and the wait returns at once.
package blockflag

import (
	"sync"
	"time"
)

// Flag is a boolean with blocking wait support. The zero value is unusable;
// use New.
type Flag struct {
	mu  sync.Mutex
	set bool
	// changed is closed and replaced on every state transition, waking all
	// current waiters. Waiters re-check the state, so spurious wakeups
	// never surface to callers.
	changed chan struct{}
}

// New returns a Flag in the reset state.
func New() *Flag {
	return &Flag{changed: make(chan struct{})}
}

// Set sets the flag and wakes all waiters.
func (f *Flag) Set() {
	f.transition(true)
}

// Reset clears the flag and wakes all waiters.
func (f *Flag) Reset() {
	f.transition(false)
}

func (f *Flag) transition(to bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set == to {
		return
	}
	f.set = to
	close(f.changed)
	f.changed = make(chan struct{})
}

// IsSet reports whether the flag is currently set.
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// WaitSet blocks until the flag is set or the timeout elapses, and reports
// whether the flag was set. It returns true immediately if already set.
// A negative timeout waits forever.
func (f *Flag) WaitSet(timeout time.Duration) bool {
	return f.wait(true, timeout)
}

// WaitReset blocks until the flag is reset or the timeout elapses, and
// reports whether the flag was reset. It returns true immediately if
// already reset. A negative timeout waits forever.
func (f *Flag) WaitReset(timeout time.Duration) bool {
	return f.wait(false, timeout)
}

func (f *Flag) wait(want bool, timeout time.Duration) bool {
	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		f.mu.Lock()
		if f.set == want {
			f.mu.Unlock()
			return true
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
			// State changed; loop and re-check. The flag may already have
			// flipped back, which is exactly the spurious wakeup this loop
			// absorbs.
		case <-deadline:
			f.mu.Lock()
			ok := f.set == want
			f.mu.Unlock()
			return ok
		}
	}
}
