// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build unix

package sigqueue

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Install subscribes the process's lifecycle signals and enqueues the
// corresponding events. enableDetach controls whether INT maps to detach or
// to graceful_stop. The returned function unsubscribes.
//
// The handler goroutine performs only the enqueue; all interpretation
// (including dropping operations the backend cannot support) happens on the
// owning loop.
func Install(q *Queue, enableDetach bool) func() {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch,
		unix.SIGTERM, unix.SIGQUIT, unix.SIGUSR1, unix.SIGUSR2,
		unix.SIGINT, unix.SIGHUP, unix.SIGCONT,
	)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				if e := eventFor(sig, enableDetach); e != 0 {
					q.Enqueue(e)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func eventFor(sig os.Signal, enableDetach bool) Event {
	switch sig {
	case unix.SIGTERM:
		return EventGracefulStop
	case unix.SIGQUIT:
		return EventImmediateStop
	case unix.SIGUSR1:
		return EventGracefulRestart
	case unix.SIGHUP:
		return EventImmediateRestart
	case unix.SIGUSR2:
		return EventReload
	case unix.SIGINT:
		if enableDetach {
			return EventDetach
		}
		return EventGracefulStop
	case unix.SIGCONT:
		return EventDump
	default:
		return 0
	}
}
