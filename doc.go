// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

/*
Package praefectus turns user-supplied worker logic into a supervised,
long-running daemon.

An application provides a Worker (a Run body and a cooperative Stop) and
hands control to Run near the top of main:

	func main() {
	    praefectus.Main(praefectus.Options{
	        NewWorker: func(rc *praefectus.RunContext) praefectus.Worker {
	            return &myWorker{rc: rc, stop: blockflag.New()}
	        },
	    })
	}

Praefectus then supplies the production machinery around it: a supervisor
process that keeps the server alive, a server process that owns a pool of
workers, per-worker heartbeat monitoring, graceful → immediate → forced
kill escalation, paced respawn with jitter, live restart without downtime
(SIGINT detach), and dynamic reconfiguration (SIGUSR2 or config file
watching).

# Process model

Go cannot fork without exec, so the supervisor → server → worker hierarchy
re-executes the embedding binary. Run inspects PRAEFECTUS_ROLE and becomes
the right process; the embedding application never sees the difference.
Because of this, Run (or Main) must be reached in every role: do not gate
it behind CLI subcommands that a re-executed child would not pass.

# Worker types

worker_type selects the execution backend:

  - embedded: one worker inside the server process.
  - goroutine: N workers, each on its own goroutine.
  - process: N worker child processes with heartbeat pipes and full
    TERM/QUIT/KILL escalation. POSIX only.

In-process backends cannot be force-killed; only the cooperative Stop
exists there, and that limitation is logged when escalation is requested.

# Signals

The daemon responds to TERM (graceful stop), QUIT (immediate stop, process
backend), USR1 (graceful restart), HUP (immediate restart, process
backend), USR2 (reload), INT (live restart when enable_detach, else
graceful stop), and CONT (status dump to /tmp/sigdump-<pid>.log).
*/
package praefectus
