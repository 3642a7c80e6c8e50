// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Package heartbeat implements the one-way liveness channel between a worker
// and its monitor.
//
// The server creates the pipe before spawning a worker process and passes
// the write end through ExtraFiles. The worker writes one byte per
// heartbeat interval; the monitor drains the read end non-blockingly on
// every loop tick and records the last time any byte arrived. In-process
// backends skip the pipe entirely and call Touch, since a goroutine cannot
// usefully detect its own stall.
package heartbeat

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Pipe is the monitor-side view of a heartbeat channel.
type Pipe struct {
	r      *os.File
	w      *os.File
	lastAt time.Time
}

// New creates a pipe whose read end is non-blocking. now seeds the last
// heartbeat time so a freshly spawned worker is not instantly stalled.
func New(now time.Time) (*Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create heartbeat pipe: %w", err)
	}
	if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
		r.Close() //nolint:errcheck
		w.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to set heartbeat pipe non-blocking: %w", err)
	}
	return &Pipe{r: r, w: w, lastAt: now}, nil
}

// Self returns a pipeless channel for backends whose liveness is
// self-certified (goroutine, embedded). Drain is a no-op on it; the monitor
// keeps it fresh with Touch.
func Self(now time.Time) *Pipe {
	return &Pipe{lastAt: now}
}

// WriteEnd returns the child's write end, for exec.Cmd.ExtraFiles.
func (p *Pipe) WriteEnd() *os.File {
	return p.w
}

// CloseWriteEnd closes the parent's copy of the write end after spawn, so
// that worker exit produces EOF rather than a silently writable pipe.
func (p *Pipe) CloseWriteEnd() {
	if p.w != nil {
		p.w.Close() //nolint:errcheck
		p.w = nil
	}
}

// Drain consumes all bytes currently readable and, if any arrived, records
// now as the last heartbeat time. It never blocks.
func (p *Pipe) Drain(now time.Time) bool {
	if p.r == nil {
		return false
	}
	// os.File.Read would park on the runtime poller until data arrives, so
	// read the raw non-blocking descriptor and stop at EAGAIN or EOF.
	rc, err := p.r.SyscallConn()
	if err != nil {
		return false
	}
	got := false
	buf := make([]byte, 64)
	rc.Read(func(fd uintptr) bool { //nolint:errcheck
		for {
			n, rerr := unix.Read(int(fd), buf)
			if n > 0 {
				got = true
			}
			if rerr != nil || n < len(buf) {
				return true
			}
		}
	})
	if got {
		p.lastAt = now
	}
	return got
}

// Touch records now as the last heartbeat time directly. Used by
// self-certified backends and on the STARTING→RUNNING edge.
func (p *Pipe) Touch(now time.Time) {
	p.lastAt = now
}

// LastAt returns the time of the most recent heartbeat.
func (p *Pipe) LastAt() time.Time {
	return p.lastAt
}

// Stalled reports whether no heartbeat has arrived within timeout.
func (p *Pipe) Stalled(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.lastAt) > timeout
}

// Close releases both ends.
func (p *Pipe) Close() {
	if p.r != nil {
		p.r.Close() //nolint:errcheck
		p.r = nil
	}
	p.CloseWriteEnd()
}

// Writer is the worker-side handle on an inherited heartbeat pipe.
type Writer struct {
	f *os.File
}

// NewWriter wraps the inherited file descriptor (fd 3 by convention).
func NewWriter(fd uintptr) *Writer {
	return &Writer{f: os.NewFile(fd, "heartbeat")}
}

// Beat writes one liveness byte. Errors are returned so the worker runtime
// can notice a vanished parent.
func (w *Writer) Beat() error {
	if w.f == nil {
		return os.ErrClosed
	}
	_, err := w.f.Write([]byte{0})
	return err
}

// Close closes the write end.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
