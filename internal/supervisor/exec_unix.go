// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build unix

package supervisor

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/backend"
	"github.com/tomtom215/praefectus/internal/server"
	"github.com/tomtom215/praefectus/internal/sigqueue"
)

// ExecSpawner produces server children by re-executing the embedding
// binary with the server role and the command pipe read end on fd 3.
type ExecSpawner struct {
	// Exe is the binary to execute; defaults to os.Executable().
	Exe string

	// Args are the arguments passed to the child (argv[1:]).
	Args []string

	// ConfigPath is handed to the child so its loader reads the same file.
	ConfigPath string
}

// Spawn implements SpawnFunc.
func (s *ExecSpawner) Spawn(generation string) (Child, error) {
	exe := s.Exe
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable for server spawn: %w", err)
		}
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create command pipe: %w", err)
	}

	args := s.Args
	if args == nil {
		args = os.Args[1:]
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(),
		backend.EnvRole+"="+backend.RoleServer,
		fmt.Sprintf("%s=%d", backend.EnvCommandFD, backend.FirstExtraFd),
		backend.EnvGeneration+"="+generation,
	)
	if s.ConfigPath != "" {
		cmd.Env = append(cmd.Env, config.ConfigPathEnvVar+"="+s.ConfigPath)
	}
	cmd.ExtraFiles = []*os.File{r}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		r.Close() //nolint:errcheck
		w.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to spawn server: %w", err)
	}
	r.Close() //nolint:errcheck

	c := &execChild{cmd: cmd, pipe: w, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.waitErr = cmd.Wait()
		c.pipe.Close() //nolint:errcheck
	}()
	return c, nil
}

// execChild is a real server child process.
type execChild struct {
	cmd     *exec.Cmd
	pipe    *os.File
	done    chan struct{}
	waitErr error
}

// Send writes one newline-framed JSON command onto the pipe.
func (c *execChild) Send(ev sigqueue.Event) error {
	data, err := server.EncodeCommand(ev)
	if err != nil {
		return err
	}
	_, err = c.pipe.Write(data)
	return err
}

// Done is closed once the child is reaped.
func (c *execChild) Done() <-chan struct{} {
	return c.done
}

// ExitCode returns the child's exit code, -1 for death by signal.
func (c *execChild) ExitCode() int {
	if c.cmd.ProcessState == nil {
		return -1
	}
	return c.cmd.ProcessState.ExitCode()
}

// Pid returns the child's process id.
func (c *execChild) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}
