// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package procenv

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SetProcessTitle renames the process comm (as seen by ps -o comm and
// /proc/<pid>/comm). Best effort: the kernel truncates to 15 bytes and the
// call can fail in restricted sandboxes, which is not worth failing
// startup over.
func SetProcessTitle(name string) {
	if name == "" {
		return
	}
	b := append([]byte(name), 0)
	unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0) //nolint:errcheck
}
