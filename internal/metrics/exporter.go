// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/praefectus/logging"
)

// StatusFunc supplies the health endpoint's JSON body.
type StatusFunc func() any

// ExporterService serves /metrics and /healthz on a local address. It
// implements suture.Service and runs under the server's auxiliary tree, so
// a listener failure is retried with the tree's backoff instead of taking
// the worker pool down.
type ExporterService struct {
	Addr   string
	Status StatusFunc
}

// NewExporterService returns an exporter bound to addr.
func NewExporterService(addr string, status StatusFunc) *ExporterService {
	return &ExporterService{Addr: addr, Status: status}
}

// Serve implements suture.Service. It blocks until the context is canceled
// or the listener fails.
func (s *ExporterService) Serve(ctx context.Context) error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body any = map[string]string{"status": "ok"}
		if s.Status != nil {
			body = s.Status()
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logging.Warn().Err(err).Msg("failed to encode health status")
		}
	})

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logging.Info().Str("addr", s.Addr).Msg("metrics exporter listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// String names the service in suture's event log.
func (s *ExporterService) String() string {
	return "metrics-exporter"
}
