// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build unix

package procenv

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/backend"
)

// pidAlive reports whether a process with the given pid exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// Daemonize re-executes the binary as a detached session leader and exits
// the foreground parent. The child carries EnvDaemonized so it skips this
// branch; stdio is pointed at /dev/null, with log output going wherever the
// logging config says.
//
// Returns true in the parent (which should exit 0) and false in a process
// that is already the daemon.
func Daemonize() (bool, error) {
	if os.Getenv(backend.EnvDaemonized) != "" {
		return false, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("failed to resolve executable for daemonize: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close() //nolint:errcheck

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), backend.EnvDaemonized+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start daemon process: %w", err)
	}
	return true, nil
}

// ApplyPrivileges applies chumask, chgroup, and chuser in that order.
// Group must drop before user or the setgid call loses permission.
func ApplyPrivileges(cfg *config.Config) error {
	if cfg.Chumask != "" {
		mask, err := config.ParseUmask(cfg.Chumask)
		if err != nil {
			return err
		}
		unix.Umask(mask)
	}

	if cfg.Chgroup != "" {
		g, err := user.LookupGroup(cfg.Chgroup)
		if err != nil {
			return fmt.Errorf("chgroup %q: %w", cfg.Chgroup, err)
		}
		gid, _ := strconv.Atoi(g.Gid)
		if err := unix.Setgid(gid); err != nil {
			return fmt.Errorf("failed to setgid %d: %w", gid, err)
		}
	}

	if cfg.Chuser != "" {
		u, err := user.Lookup(cfg.Chuser)
		if err != nil {
			return fmt.Errorf("chuser %q: %w", cfg.Chuser, err)
		}
		uid, _ := strconv.Atoi(u.Uid)
		if err := unix.Setuid(uid); err != nil {
			return fmt.Errorf("failed to setuid %d: %w", uid, err)
		}
	}

	return nil
}
