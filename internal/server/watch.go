// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package server

import (
	"context"

	"github.com/tomtom215/praefectus/config"
	"github.com/tomtom215/praefectus/internal/sigqueue"
	"github.com/tomtom215/praefectus/logging"
)

// watchService enqueues a reload event whenever the config file changes.
// It runs under the aux tree so a watcher failure is retried with backoff.
type watchService struct {
	path  string
	queue *sigqueue.Queue
}

// Serve implements suture.Service.
func (w *watchService) Serve(ctx context.Context) error {
	err := config.Watch(w.path, func() {
		logging.Info().Str("path", w.path).Msg("config file changed, scheduling reload")
		w.queue.Enqueue(sigqueue.EventReload)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// String names the service in suture's event log.
func (w *watchService) String() string {
	return "config-watcher"
}
