// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

//go:build !linux

package procenv

// SetProcessTitle is a no-op outside Linux.
func SetProcessTitle(string) {}
