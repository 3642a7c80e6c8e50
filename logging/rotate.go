// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package logging

import (
	"fmt"
	"os"
	"sync"
)

// RotatingWriter is an io.Writer that appends to a file and rotates it by
// size, keeping up to age older generations as path.0 (newest) through
// path.<age-1> (oldest).
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	age     int
	file    *os.File
	size    int64
}

// NewRotatingWriter opens (or creates) the log file at path.
// maxSize <= 0 or age <= 0 disables rotation; the file then grows unbounded.
func NewRotatingWriter(path string, maxSize int64, age int) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, maxSize: maxSize, age: age}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Path returns the active log file path.
func (w *RotatingWriter) Path() string {
	return w.path
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("failed to stat log file %s: %w", w.path, err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first if the write would cross maxSize.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxSize > 0 && w.age > 0 && w.size+int64(len(p)) > w.maxSize && w.size > 0 {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate shifts path.<n> to path.<n+1>, dropping the oldest, then reopens
// a fresh file at path. Must be called with mu held.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	for i := w.age - 2; i >= 0; i-- {
		from := fmt.Sprintf("%s.%d", w.path, i)
		to := fmt.Sprintf("%s.%d", w.path, i+1)
		if _, err := os.Stat(from); err == nil {
			os.Rename(from, to) //nolint:errcheck
		}
	}
	if err := os.Rename(w.path, w.path+".0"); err != nil {
		return err
	}
	return w.open()
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
