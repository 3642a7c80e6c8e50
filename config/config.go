// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package config

import (
	"time"
)

// Backend selects how workers are executed.
type Backend string

const (
	// BackendEmbedded runs a single worker inside the server's own process.
	BackendEmbedded Backend = "embedded"

	// BackendGoroutine runs each worker on its own goroutine in the server
	// process. Immediate and forced termination are unavailable; only the
	// cooperative stop is.
	BackendGoroutine Backend = "goroutine"

	// BackendProcess runs each worker as a child OS process with a heartbeat
	// pipe and full TERM/QUIT/KILL escalation.
	BackendProcess Backend = "process"
)

// Config is one immutable configuration snapshot.
//
// Field names map 1:1 onto the recognized option keys via koanf tags.
// Options marked "dynamic" take effect on reload; all others are pinned by
// MergeStatic for the lifetime of the process that loaded them.
type Config struct {
	// Daemon options.
	Daemonize              bool   `koanf:"daemonize"`
	PidPath                string `koanf:"pid_path"`
	Supervisor             bool   `koanf:"supervisor"`
	DaemonProcessName      string `koanf:"daemon_process_name"`
	Chuser                 string `koanf:"chuser"`
	Chgroup                string `koanf:"chgroup"`
	Chumask                string `koanf:"chumask"`
	DaemonizeErrorExitCode int    `koanf:"daemonize_error_exit_code"`

	// Supervisor options.
	ServerProcessName    string        `koanf:"server_process_name"`
	RestartServerProcess bool          `koanf:"restart_server_process"`
	EnableDetach         bool          `koanf:"enable_detach"`
	ExitOnDetach         bool          `koanf:"exit_on_detach"`
	DisableReload        bool          `koanf:"disable_reload"`
	ServerRestartWait    time.Duration `koanf:"server_restart_wait"`    // dynamic
	ServerDetachWait     time.Duration `koanf:"server_detach_wait"`     // dynamic

	// Pool options.
	WorkerType           Backend       `koanf:"worker_type"`
	Workers              int           `koanf:"workers"`                 // dynamic
	StartWorkerDelay     time.Duration `koanf:"start_worker_delay"`      // dynamic
	StartWorkerDelayRand float64       `koanf:"start_worker_delay_rand"` // dynamic

	// Process backend options. All dynamic.
	WorkerProcessName                   string        `koanf:"worker_process_name"`
	WorkerHeartbeatInterval             time.Duration `koanf:"worker_heartbeat_interval"`
	WorkerHeartbeatTimeout              time.Duration `koanf:"worker_heartbeat_timeout"`
	WorkerGracefulKillInterval          time.Duration `koanf:"worker_graceful_kill_interval"`
	WorkerGracefulKillIntervalIncrement time.Duration `koanf:"worker_graceful_kill_interval_increment"`
	WorkerGracefulKillTimeout           time.Duration `koanf:"worker_graceful_kill_timeout"`
	WorkerImmediateKillInterval         time.Duration `koanf:"worker_immediate_kill_interval"`
	WorkerImmediateKillIntervalIncrement time.Duration `koanf:"worker_immediate_kill_interval_increment"`
	WorkerImmediateKillTimeout          time.Duration `koanf:"worker_immediate_kill_timeout"`

	// Logger options.
	Log           string `koanf:"log"`
	LogLevel      string `koanf:"log_level"` // dynamic
	LogRotateAge  int    `koanf:"log_rotate_age"`
	LogRotateSize int64  `koanf:"log_rotate_size"`
	LogStdout     bool   `koanf:"log_stdout"`
	LogStderr     bool   `koanf:"log_stderr"`

	// Observability options.
	MetricsAddress string `koanf:"metrics_address"`
	WatchConfig    bool   `koanf:"watch_config"`
}

// Default returns a Config with every option at its documented default.
// These defaults are loaded first, then overridden by config file and env.
func Default() *Config {
	return &Config{
		Daemonize:              false,
		PidPath:                "",
		Supervisor:             false,
		DaemonProcessName:      "",
		Chuser:                 "",
		Chgroup:                "",
		Chumask:                "",
		DaemonizeErrorExitCode: 1,

		ServerProcessName:    "",
		RestartServerProcess: false,
		EnableDetach:         true,
		ExitOnDetach:         false,
		DisableReload:        false,
		ServerRestartWait:    1 * time.Second,
		ServerDetachWait:     10 * time.Second,

		WorkerType:           BackendEmbedded,
		Workers:              1,
		StartWorkerDelay:     0,
		StartWorkerDelayRand: 0.2,

		WorkerProcessName:                    "",
		WorkerHeartbeatInterval:              1 * time.Second,
		WorkerHeartbeatTimeout:               180 * time.Second,
		WorkerGracefulKillInterval:           15 * time.Second,
		WorkerGracefulKillIntervalIncrement:  10 * time.Second,
		WorkerGracefulKillTimeout:            600 * time.Second,
		WorkerImmediateKillInterval:          10 * time.Second,
		WorkerImmediateKillIntervalIncrement: 10 * time.Second,
		WorkerImmediateKillTimeout:           600 * time.Second,

		Log:           "",
		LogLevel:      "debug",
		LogRotateAge:  5,
		LogRotateSize: 1048576,
		LogStdout:     true,
		LogStderr:     true,

		MetricsAddress: "",
		WatchConfig:    false,
	}
}

// MergeStatic returns a copy of the new snapshot with every non-dynamic
// option replaced by the value from prev. Reload installs the result, so a
// reload can only ever change dynamically reloadable options.
func (c *Config) MergeStatic(prev *Config) *Config {
	merged := *c

	merged.Daemonize = prev.Daemonize
	merged.PidPath = prev.PidPath
	merged.Supervisor = prev.Supervisor
	merged.DaemonProcessName = prev.DaemonProcessName
	merged.Chuser = prev.Chuser
	merged.Chgroup = prev.Chgroup
	merged.Chumask = prev.Chumask
	merged.DaemonizeErrorExitCode = prev.DaemonizeErrorExitCode

	merged.ServerProcessName = prev.ServerProcessName
	merged.RestartServerProcess = prev.RestartServerProcess
	merged.EnableDetach = prev.EnableDetach
	merged.ExitOnDetach = prev.ExitOnDetach
	merged.DisableReload = prev.DisableReload

	merged.WorkerType = prev.WorkerType

	merged.Log = prev.Log
	merged.LogRotateAge = prev.LogRotateAge
	merged.LogRotateSize = prev.LogRotateSize
	merged.LogStdout = prev.LogStdout
	merged.LogStderr = prev.LogStderr

	merged.MetricsAddress = prev.MetricsAddress
	merged.WatchConfig = prev.WatchConfig

	return &merged
}

// NeverEscalate reports whether d carries the "never auto-escalate"
// sentinel. Any negative duration counts; -1 is the conventional spelling.
func NeverEscalate(d time.Duration) bool {
	return d < 0
}
