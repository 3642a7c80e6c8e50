// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build !unix

package procenv

import (
	"errors"
	"os"

	"github.com/tomtom215/praefectus/config"
)

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

// Daemonize is unavailable without POSIX session control.
func Daemonize() (bool, error) {
	return false, errors.New("daemonize is not supported on this platform")
}

// ApplyPrivileges rejects privilege-drop options on non-POSIX platforms.
func ApplyPrivileges(cfg *config.Config) error {
	if cfg.Chuser != "" || cfg.Chgroup != "" || cfg.Chumask != "" {
		return errors.New("chuser/chgroup/chumask are not supported on this platform")
	}
	return nil
}
