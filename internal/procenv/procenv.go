// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Package procenv owns the process-wide resources a daemon touches exactly
// once: the pid file, privilege drop, umask, the process title, and the
// CONT status dump. Everything here is acquired at daemon start and
// released on exit by the single owning process.
package procenv

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/praefectus/logging"
)

// PidFile is an exclusively held pid file.
type PidFile struct {
	path string
}

// WritePidFile records the current pid at path. A live pid already present
// in the file is a collision and a fatal startup error; a stale file left
// by a dead process is replaced.
func WritePidFile(path string) (*PidFile, error) {
	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && pidAlive(pid) {
			return nil, fmt.Errorf("pid file %s held by running process %d", path, pid)
		}
		logging.Warn().Str("path", path).Msg("replacing stale pid file")
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write pid file %s: %w", path, err)
	}
	return &PidFile{path: path}, nil
}

// Update rewrites the pid file with a new owner pid. The framework itself
// never calls it: server respawns and live restarts leave the file naming
// the process that wrote it.
func (p *PidFile) Update(pid int) error {
	return os.WriteFile(p.path, []byte(fmt.Sprintf("%d\n", pid)), 0o644)
}

// Remove deletes the pid file. Only the owner calls this, on clean exit.
func (p *PidFile) Remove() {
	if p == nil {
		return
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Str("path", p.path).Msg("failed to remove pid file")
	}
}

// DumpPath returns the stacktrace dump destination for a pid.
func DumpPath(pid int) string {
	return fmt.Sprintf("/tmp/sigdump-%d.log", pid)
}

// WriteDump appends a status header (JSON) and a full goroutine stack dump
// to the sigdump file for this process. Used by the CONT handler; failures
// are logged, never fatal.
func WriteDump(status any) {
	path := DumpPath(os.Getpid())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("failed to open dump file")
		return
	}
	defer f.Close() //nolint:errcheck

	fmt.Fprintf(f, "=== praefectus dump pid=%d at %s ===\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if status != nil {
		if data, jerr := json.MarshalIndent(status, "", "  "); jerr == nil {
			f.Write(data)          //nolint:errcheck
			f.Write([]byte{'\n'}) //nolint:errcheck
		}
	}

	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			f.Write(buf[:n]) //nolint:errcheck
			break
		}
		buf = make([]byte, len(buf)*2)
	}
	f.Write([]byte{'\n'}) //nolint:errcheck

	logging.Info().Str("path", path).Msg("wrote status dump")
}
