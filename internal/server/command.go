// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

package server

import (
	"bufio"
	"io"

	"github.com/goccy/go-json"

	"github.com/tomtom215/praefectus/internal/sigqueue"
	"github.com/tomtom215/praefectus/logging"
)

// Command is one newline-framed JSON message on the supervisor command
// pipe. The name field carries the event's wire name from sigqueue.
type Command struct {
	Name string `json:"command"`
}

// EncodeCommand renders a command line for the pipe, newline included.
func EncodeCommand(e sigqueue.Event) ([]byte, error) {
	data, err := json.Marshal(Command{Name: e.String()})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// watchCommands reads commands from the supervisor pipe and enqueues them
// as events. EOF means the supervisor is gone; an orphaned server winds
// down gracefully rather than running unsupervised forever.
func watchCommands(r io.Reader, q *sigqueue.Queue) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			logging.Warn().Err(err).Msg("malformed command from supervisor")
			continue
		}
		ev := sigqueue.EventFromString(cmd.Name)
		if ev == 0 {
			logging.Warn().Str("command", cmd.Name).Msg("unknown command from supervisor")
			continue
		}
		q.Enqueue(ev)
	}

	logging.Warn().Msg("supervisor command pipe closed, requesting graceful stop")
	q.Enqueue(sigqueue.EventGracefulStop)
}
