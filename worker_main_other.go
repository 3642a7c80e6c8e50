// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build !unix

package praefectus

import (
	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/logging"
)

// runWorkerChild can only be reached via worker_type=process, which
// configuration validation rejects on non-POSIX platforms.
func runWorkerChild(Options, *config.Config, func() (*config.Config, error)) int {
	logging.Error().Msg("worker child processes are not supported on this platform")
	return 1
}
