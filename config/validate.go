// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"
)

// Sentinel errors for configuration failures.
var (
	// ErrUnknownOption is returned when the config file or environment
	// carries a key outside the recognized option set.
	ErrUnknownOption = errors.New("unknown configuration option")

	// ErrUnsupportedBackend is returned for an unrecognized worker_type, or
	// for worker_type=process on a platform without POSIX process control.
	ErrUnsupportedBackend = errors.New("unsupported worker type")
)

// logLevels is the closed set of accepted log_level values.
var logLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
}

// Validate checks that the snapshot is internally consistent. It is called
// by Load for every snapshot, including reload snapshots, so an invalid
// reload is rejected before it can replace a valid running configuration.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	switch c.WorkerType {
	case BackendEmbedded, BackendGoroutine:
		return nil
	case BackendProcess:
		// The platforms covered by the "unix" build constraint, which is
		// where the process backend is compiled in.
		switch runtime.GOOS {
		case "aix", "android", "darwin", "dragonfly", "freebsd", "hurd",
			"illumos", "ios", "linux", "netbsd", "openbsd", "solaris":
			return nil
		}
		return fmt.Errorf("%w: %q requires POSIX process control", ErrUnsupportedBackend, c.WorkerType)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, c.WorkerType)
	}
}

func (c *Config) validatePool() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.WorkerType == BackendEmbedded && c.Workers > 1 {
		return fmt.Errorf("worker_type=embedded supports at most 1 worker, got %d", c.Workers)
	}
	if c.StartWorkerDelay < 0 {
		return fmt.Errorf("start_worker_delay must be >= 0, got %v", c.StartWorkerDelay)
	}
	if c.StartWorkerDelayRand < 0 || c.StartWorkerDelayRand > 1 {
		return fmt.Errorf("start_worker_delay_rand must be in [0, 1], got %v", c.StartWorkerDelayRand)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	if c.WorkerHeartbeatInterval <= 0 {
		return fmt.Errorf("worker_heartbeat_interval must be > 0, got %v", c.WorkerHeartbeatInterval)
	}
	if c.WorkerHeartbeatTimeout <= 0 {
		return fmt.Errorf("worker_heartbeat_timeout must be > 0, got %v", c.WorkerHeartbeatTimeout)
	}

	// The kill stage intervals must be positive; the stage timeouts may be
	// negative (never auto-escalate) but not zero.
	stages := []struct {
		name     string
		interval time.Duration
		incr     time.Duration
		timeout  time.Duration
	}{
		{"graceful", c.WorkerGracefulKillInterval, c.WorkerGracefulKillIntervalIncrement, c.WorkerGracefulKillTimeout},
		{"immediate", c.WorkerImmediateKillInterval, c.WorkerImmediateKillIntervalIncrement, c.WorkerImmediateKillTimeout},
	}
	for _, s := range stages {
		if s.interval <= 0 {
			return fmt.Errorf("worker_%s_kill_interval must be > 0, got %v", s.name, s.interval)
		}
		if s.incr < 0 {
			return fmt.Errorf("worker_%s_kill_interval_increment must be >= 0, got %v", s.name, s.incr)
		}
		if s.timeout == 0 {
			return fmt.Errorf("worker_%s_kill_timeout must be positive or -1, got 0", s.name)
		}
	}

	if c.ServerRestartWait < 0 {
		return fmt.Errorf("server_restart_wait must be >= 0, got %v", c.ServerRestartWait)
	}
	if c.ServerDetachWait < 0 {
		return fmt.Errorf("server_detach_wait must be >= 0, got %v", c.ServerDetachWait)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.DaemonizeErrorExitCode < 0 || c.DaemonizeErrorExitCode > 255 {
		return fmt.Errorf("daemonize_error_exit_code must be in [0, 255], got %d", c.DaemonizeErrorExitCode)
	}
	if c.Chumask != "" {
		if _, err := ParseUmask(c.Chumask); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of trace/debug/info/warn/error/fatal, got %q", c.LogLevel)
	}
	if c.LogRotateAge < 0 {
		return fmt.Errorf("log_rotate_age must be >= 0, got %d", c.LogRotateAge)
	}
	if c.LogRotateSize <= 0 {
		return fmt.Errorf("log_rotate_size must be > 0, got %d", c.LogRotateSize)
	}
	return nil
}

// ParseUmask parses an octal umask string such as "0022" or "22".
func ParseUmask(s string) (int, error) {
	mask, err := strconv.ParseInt(s, 8, 32)
	if err != nil || mask < 0 || mask > 0o777 {
		return 0, fmt.Errorf("chumask must be an octal mask like \"0022\", got %q", s)
	}
	return int(mask), nil
}
