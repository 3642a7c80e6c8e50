// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the auxiliary supervisor tree configuration.
//
// The aux tree runs the server's side-services (metrics exporter, config
// watcher). It is deliberately separate from the worker pool: workers are
// supervised by the bespoke monitor state machine, which speaks OS signals
// and heartbeat pipes; suture supervises in-process goroutine services.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's production defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// AuxTree supervises the server's side-services.
type AuxTree struct {
	root   *suture.Supervisor
	config TreeConfig
}

// NewAuxTree creates the tree with a sutureslog event hook so service
// starts, stops, and failures land in the shared log.
func NewAuxTree(logger *slog.Logger, config TreeConfig) *AuxTree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	root := suture.New("praefectus-aux", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	})

	return &AuxTree{root: root, config: config}
}

// Add registers a service with the tree.
func (t *AuxTree) Add(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// ServeBackground starts the tree; the returned channel yields the
// terminal error once the context is canceled.
func (t *AuxTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
