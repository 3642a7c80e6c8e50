// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package backend

// Environment variables carrying process plumbing between the supervisor,
// server and worker processes. Go has no fork-without-exec, so the
// hierarchy re-executes the embedding binary and announces roles and
// inherited file descriptors through the environment.
const (
	// EnvRole selects the code path praefectus.Run takes: empty for the
	// launcher, RoleServer for a server child, RoleWorker for a worker child.
	EnvRole = "PRAEFECTUS_ROLE"

	RoleServer = "server"
	RoleWorker = "worker"

	// EnvWorkerID carries the worker slot index to a worker child.
	EnvWorkerID = "PRAEFECTUS_WORKER_ID"

	// EnvGeneration carries the spawn generation uuid, for log correlation.
	EnvGeneration = "PRAEFECTUS_GENERATION"

	// EnvHeartbeatFD names the inherited heartbeat pipe write end.
	EnvHeartbeatFD = "PRAEFECTUS_HEARTBEAT_FD"

	// EnvCommandFD names the inherited supervisor command pipe read end.
	EnvCommandFD = "PRAEFECTUS_COMMAND_FD"

	// EnvDaemonized marks the re-executed detached child during
	// daemonization, so it does not daemonize again.
	EnvDaemonized = "PRAEFECTUS_DAEMONIZED"

	// FirstExtraFd is the fd number of ExtraFiles[0] in a child process.
	FirstExtraFd = 3
)
