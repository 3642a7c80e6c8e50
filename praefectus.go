// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package praefectus

import (
	"os"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/backend"
	"github.com/tomtom215/praefectus/internal/procenv"
	"github.com/tomtom215/praefectus/internal/server"
	"github.com/tomtom215/praefectus/internal/supervisor"
	"github.com/tomtom215/praefectus/logging"
)

// Options configures the daemon.
type Options struct {
	// NewWorker builds one worker instance. Required. It is called in the
	// process the worker will run in: the server for embedded/goroutine
	// workers, the worker child for process workers.
	NewWorker func(rc *RunContext) Worker

	// ServerHooks are the optional server lifecycle callbacks.
	ServerHooks ServerHooks

	// WorkerHooks are the optional per-spawn callbacks.
	WorkerHooks WorkerHooks

	// ConfigPath points at the YAML config file. Empty means discovery via
	// PRAEFECTUS_CONFIG and the default search paths.
	ConfigPath string

	// LoadConfig replaces the built-in koanf loader. It runs at startup,
	// on every reload, and in every spawned child.
	LoadConfig func() (*config.Config, error)
}

// Main runs the daemon and exits the process with its exit code.
func Main(opts Options) {
	os.Exit(Run(opts))
}

// Run executes whichever role this process was spawned for and returns the
// process exit code. It must be reachable in every invocation of the
// binary; see the package documentation.
func Run(opts Options) int {
	if opts.NewWorker == nil {
		logging.Error().Msg("praefectus.Options.NewWorker is required")
		return 1
	}

	path := opts.ConfigPath
	if path == "" {
		path = config.FindConfigFile()
	}
	loader := opts.LoadConfig
	if loader == nil {
		loader = func() (*config.Config, error) { return config.Load(path) }
	}

	cfg, err := loader()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Path:       cfg.Log,
		RotateAge:  cfg.LogRotateAge,
		RotateSize: cfg.LogRotateSize,
		Stdout:     cfg.LogStdout,
		Stderr:     cfg.LogStderr,
	}); err != nil {
		logging.Error().Err(err).Msg("failed to initialize logging")
		return 1
	}

	switch os.Getenv(backend.EnvRole) {
	case backend.RoleWorker:
		return runWorkerChild(opts, cfg, loader)
	case backend.RoleServer:
		return runServerRole(opts, cfg, loader, path)
	default:
		return runLauncher(opts, cfg, loader, path)
	}
}

// runLauncher is the path taken by the process the operator started: it
// acquires the process environment (daemonization, privileges, pid file)
// and becomes either the supervisor or a standalone server.
func runLauncher(opts Options, cfg *config.Config, loader func() (*config.Config, error), path string) int {
	runContainedHook("initialize", opts.ServerHooks.Initialize)

	if cfg.Daemonize {
		parent, err := procenv.Daemonize()
		if err != nil {
			logging.Error().Err(err).Msg("daemonization failed")
			return cfg.DaemonizeErrorExitCode
		}
		if parent {
			return 0
		}
	}

	if err := procenv.ApplyPrivileges(cfg); err != nil {
		logging.Error().Err(err).Msg("privilege drop failed")
		return cfg.DaemonizeErrorExitCode
	}

	var pidFile *procenv.PidFile
	if cfg.PidPath != "" {
		var err error
		pidFile, err = procenv.WritePidFile(cfg.PidPath)
		if err != nil {
			logging.Error().Err(err).Msg("pid file acquisition failed")
			return cfg.DaemonizeErrorExitCode
		}
		defer pidFile.Remove()
	}

	if cfg.Supervisor {
		procenv.SetProcessTitle(cfg.DaemonProcessName)
		sup := supervisor.New(supervisor.Options{
			Config:         cfg,
			Spawn:          (&supervisor.ExecSpawner{ConfigPath: path}).Spawn,
			InstallSignals: true,
		})
		return sup.Run()
	}

	title := cfg.ServerProcessName
	if title == "" {
		title = cfg.DaemonProcessName
	}
	procenv.SetProcessTitle(title)
	return newServer(opts, cfg, loader, path, nil).Run()
}

// runServerRole is the path taken by a server child the supervisor
// spawned; the command pipe arrives on the first inherited fd.
func runServerRole(opts Options, cfg *config.Config, loader func() (*config.Config, error), path string) int {
	procenv.SetProcessTitle(cfg.ServerProcessName)
	cmdFile := os.NewFile(uintptr(backend.FirstExtraFd), "command-pipe")
	return newServer(opts, cfg, loader, path, cmdFile).Run()
}

func newServer(opts Options, cfg *config.Config, loader func() (*config.Config, error), path string, cmdFile *os.File) *server.Server {
	return server.New(server.Options{
		Config:     cfg,
		ConfigPath: path,
		Loader:     loader,
		Spawner:    newSpawner(opts, path),
		Hooks: server.Hooks{
			BeforeRun:    opts.ServerHooks.BeforeRun,
			AfterRun:     opts.ServerHooks.AfterRun,
			ReloadConfig: opts.ServerHooks.ReloadConfig,
		},
		CommandFile:    cmdFile,
		InstallSignals: true,
	})
}

// runContainedHook executes a user hook, containing errors and panics.
func runContainedHook(name string, hook func() error) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("hook", name).Msg("hook panicked")
		}
	}()
	if err := hook(); err != nil {
		logging.Error().Err(err).Str("hook", name).Msg("hook failed")
	}
}
