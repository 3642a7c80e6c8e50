// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

/*
Package config loads and validates the daemon configuration using Koanf v2.

Configuration is assembled from three layers, later layers overriding
earlier ones:

 1. Built-in defaults (Default)
 2. Optional YAML config file (PRAEFECTUS_CONFIG or the default search paths)
 3. Environment variables with the PRAEFECTUS_ prefix

The resulting Config is an immutable snapshot: nothing in the framework
mutates a Config after Load returns. A reload produces a brand-new snapshot
via the same loader; keys that are not dynamically reloadable are carried
over from the previous snapshot by MergeStatic, so a reload can never change
them mid-flight.

The option set is closed. Unknown keys in the config file are rejected at
startup and cause the new snapshot to be discarded on reload.

Duration options accept Go duration strings ("15s", "1.5s") or plain
numbers of nanoseconds from YAML. The two kill-stage timeouts
(worker_graceful_kill_timeout and worker_immediate_kill_timeout)
additionally accept any negative value, conventionally -1, meaning "never
auto-escalate out of this stage".
*/
package config
