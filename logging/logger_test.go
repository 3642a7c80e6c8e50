// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"FATAL", zerolog.FatalLevel},
		{"nonsense", zerolog.DebugLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetLoggerRoundTrip(t *testing.T) {
	orig := Logger()
	defer SetLogger(orig)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	Info().Str("component", "test").Msg("hello")

	if !strings.Contains(buf.String(), `"component":"test"`) {
		t.Errorf("log output missing structured field: %s", buf.String())
	}
}

func TestRotatingWriterRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "praefectus.log")

	w, err := NewRotatingWriter(path, 64, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 30) + "\n")
	for i := 0; i < 8; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("active log file missing: %v", err)
	}
	if _, err := os.Stat(path + ".0"); err != nil {
		t.Errorf("rotated log file .0 missing: %v", err)
	}

	// Age bound: no generation beyond .2 may exist.
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Error("rotation kept more generations than log_rotate_age allows")
	}
}

func TestRotatingWriterKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "praefectus.log")

	w, err := NewRotatingWriter(path, 16, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer w.Close()

	for i := 0; i < 4; i++ {
		if _, err := fmt.Fprintf(w, "generation-%d-padding\n", i); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	newest, err := os.ReadFile(path + ".0")
	if err != nil {
		t.Fatalf("reading rotated file: %v", err)
	}
	older, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("reading rotated file: %v", err)
	}
	if !bytes.Contains(newest, []byte("generation-2")) {
		t.Errorf(".0 should hold the most recently rotated data, got %q", newest)
	}
	if !bytes.Contains(older, []byte("generation-1")) {
		t.Errorf(".1 should hold the older generation, got %q", older)
	}
}

func TestSlogHandlerRoutesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	handler := NewSlogHandlerWithLogger(zerolog.New(&buf))
	logger := slog.New(handler)

	logger.Info("service started", "service", "metrics", "port", int64(9090))

	out := buf.String()
	if !strings.Contains(out, `"service":"metrics"`) {
		t.Errorf("missing string attr in %s", out)
	}
	if !strings.Contains(out, `"port":9090`) {
		t.Errorf("missing int attr in %s", out)
	}
	if !strings.Contains(out, "service started") {
		t.Errorf("missing message in %s", out)
	}
}

func TestSlogHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf)))

	logger.WithGroup("supervisor").Info("restarting", "attempt", int64(2))

	if !strings.Contains(buf.String(), `"supervisor.attempt":2`) {
		t.Errorf("group prefix not applied: %s", buf.String())
	}
}
