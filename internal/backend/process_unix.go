// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build unix

package backend

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tomtom215/praefectus/config"
)

// ProcessSpawner spawns worker children by re-executing the embedding
// binary with the worker role in the environment and the heartbeat pipe
// write end as the first extra file.
type ProcessSpawner struct {
	// Exe is the binary to execute; defaults to os.Executable().
	Exe string

	// Args are the arguments passed to the child (argv[1:]).
	Args []string

	// ConfigPath is handed to the child so its loader reads the same file.
	ConfigPath string

	// ExtraEnv is appended after the plumbing variables.
	ExtraEnv []string
}

// BuildCmd constructs (without starting) the child command for a slot.
func (s *ProcessSpawner) BuildCmd(workerID int, generation string, hbWrite *os.File) (*exec.Cmd, error) {
	exe := s.Exe
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable for worker spawn: %w", err)
		}
	}

	args := s.Args
	if args == nil {
		// Keep the embedding binary's own flags so its main() parses the
		// same way in the child.
		args = os.Args[1:]
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(),
		EnvRole+"="+RoleWorker,
		fmt.Sprintf("%s=%d", EnvWorkerID, workerID),
		EnvGeneration+"="+generation,
		fmt.Sprintf("%s=%d", EnvHeartbeatFD, FirstExtraFd),
	)
	if s.ConfigPath != "" {
		cmd.Env = append(cmd.Env, config.ConfigPathEnvVar+"="+s.ConfigPath)
	}
	cmd.Env = append(cmd.Env, s.ExtraEnv...)
	cmd.ExtraFiles = []*os.File{hbWrite}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

// Spawn starts a worker child. The returned handle reaps the child on its
// own goroutine so the server loop never blocks in wait.
func (s *ProcessSpawner) Spawn(workerID int, generation string, hbWrite *os.File) (*ProcessHandle, error) {
	cmd, err := s.BuildCmd(workerID, generation, hbWrite)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn worker %d: %w", workerID, err)
	}

	h := &ProcessHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.waitErr = cmd.Wait()
	}()
	return h, nil
}

// ProcessHandle wraps one worker child process.
type ProcessHandle struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// Alive reports whether the child has not yet been reaped.
func (h *ProcessHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Pid returns the child's process id.
func (h *ProcessHandle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Signal maps the stage request onto the corresponding OS signal.
func (h *ProcessHandle) Signal(sig Sig) error {
	var s unix.Signal
	switch sig {
	case SigGraceful:
		s = unix.SIGTERM
	case SigImmediate:
		s = unix.SIGQUIT
	case SigForce:
		s = unix.SIGKILL
	default:
		return ErrUnsupported
	}
	return h.kill(s)
}

// Join waits up to timeout for the child to be reaped.
func (h *ProcessHandle) Join(timeout time.Duration) bool {
	if timeout < 0 {
		<-h.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// ForceKill sends the unblockable kill.
func (h *ProcessHandle) ForceKill() error {
	return h.kill(unix.SIGKILL)
}

// Reload tells the child to reload via SIGUSR2; the worker runtime re-runs
// the loader and invokes the worker's reload callback.
func (h *ProcessHandle) Reload(*config.Config) error {
	return h.kill(unix.SIGUSR2)
}

func (h *ProcessHandle) kill(sig unix.Signal) error {
	if !h.Alive() {
		return nil
	}
	if err := unix.Kill(h.Pid(), sig); err != nil && err != unix.ESRCH {
		return fmt.Errorf("failed to signal worker pid %d with %s: %w", h.Pid(), unix.SignalName(sig), err)
	}
	return nil
}

// ExitCode returns the child's exit code; -1 while running or when the
// child died on a signal.
func (h *ProcessHandle) ExitCode() int {
	if h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

// SelfHeartbeat is false: process workers prove liveness over the pipe.
func (h *ProcessHandle) SelfHeartbeat() bool {
	return false
}
