// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Command praefectusd is a demonstration daemon built on praefectus.
//
// Its worker does nothing but tick and log; the point is the machinery
// around it. Start it, then exercise the lifecycle:
//
//	praefectusd -c config.yaml
//	kill -USR2 $(cat praefectusd.pid)   # reload
//	kill -USR1 $(cat praefectusd.pid)   # rolling restart
//	kill -INT  $(cat praefectusd.pid)   # live restart (detach)
//	kill -CONT $(cat praefectusd.pid)   # status dump
//	kill -TERM $(cat praefectusd.pid)   # graceful stop
package main

import (
	"flag"
	"time"

	"github.com/tomtom215/praefectus"
	"github.com/tomtom215/praefectus/blockflag"
	"github.com/tomtom215/praefectus/config"
)

// tickWorker logs a heartbeat-paced tick until stopped.
type tickWorker struct {
	rc       *praefectus.RunContext
	stop     *blockflag.Flag
	interval time.Duration
}

func (w *tickWorker) Run() error {
	w.rc.Logger.Info().Msg("tick worker running")
	for !w.stop.WaitSet(w.interval) {
		w.rc.Logger.Debug().Msg("tick")
	}
	w.rc.Logger.Info().Msg("tick worker stopping")
	return nil
}

func (w *tickWorker) Stop() {
	w.stop.Set()
}

// Reload picks up a changed heartbeat interval on the next tick.
func (w *tickWorker) Reload(cfg *config.Config) error {
	w.interval = cfg.WorkerHeartbeatInterval
	w.rc.Logger.Info().Dur("interval", w.interval).Msg("tick worker reloaded")
	return nil
}

func main() {
	configPath := flag.String("c", "", "path to config file")
	flag.Parse()

	praefectus.Main(praefectus.Options{
		ConfigPath: *configPath,
		NewWorker: func(rc *praefectus.RunContext) praefectus.Worker {
			return &tickWorker{
				rc:       rc,
				stop:     blockflag.New(),
				interval: rc.Config.WorkerHeartbeatInterval,
			}
		},
	})
}
