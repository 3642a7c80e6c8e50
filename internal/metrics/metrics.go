// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Package metrics instruments the supervision hierarchy with Prometheus.
//
// Counters and gauges cover worker lifecycle churn (starts, crashes,
// heartbeat timeouts), server restarts at the supervisor, and reload
// outcomes. The optional exporter (metrics_address) serves them locally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Worker lifecycle metrics.
	WorkerStarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praefectus_worker_starts_total",
			Help: "Total number of worker spawns, including respawns",
		},
	)

	WorkerCrashes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praefectus_worker_crashes_total",
			Help: "Total number of workers that exited without being asked to stop",
		},
	)

	WorkerHeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praefectus_worker_heartbeat_timeouts_total",
			Help: "Total number of workers killed for missing heartbeats",
		},
	)

	WorkersDesired = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "praefectus_workers_desired",
			Help: "Configured number of worker slots",
		},
	)

	WorkersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "praefectus_workers_running",
			Help: "Worker slots currently in the running state",
		},
	)

	// Server / supervisor metrics.
	ServerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praefectus_server_restarts_total",
			Help: "Total number of server child respawns by the supervisor",
		},
	)

	Reloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praefectus_reloads_total",
			Help: "Total number of configuration reloads by outcome",
		},
		[]string{"outcome"}, // "applied", "rejected", "disabled"
	)

	Detaches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praefectus_detaches_total",
			Help: "Total number of live-restart (detach) sequences started",
		},
	)
)
