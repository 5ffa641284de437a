// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine coordinates the packet-processing workers. Each worker
// owns disjoint flow tables and a local stats set; the engine routes
// packets by canonical key so one flow always lands on one worker, and
// merges statistics at quiescent points.
package engine

import (
	"sync"
	"time"

	"grimm.is/streamgate/internal/config"
	"grimm.is/streamgate/internal/decode"
	"grimm.is/streamgate/internal/errors"
	"grimm.is/streamgate/internal/flow"
	"grimm.is/streamgate/internal/flowkey"
	"grimm.is/streamgate/internal/logging"
	"grimm.is/streamgate/internal/stats"
)

// Options configures engine construction.
type Options struct {
	Config *config.Config
	Logger *logging.Logger
	// Accounting receives session-close reports; optional.
	Accounting flow.CloseAccounting
	// SweepInterval overrides how often workers evict idle flows.
	SweepInterval time.Duration
}

// Engine owns the workers and the statistics aggregator.
type Engine struct {
	cfg    *config.Config
	logger *logging.Logger
	agg    *stats.Aggregator

	workers []*Worker
	sweep   time.Duration

	wg      sync.WaitGroup
	started bool
}

// New builds an engine from validated options. A nil or invalid config is
// a startup error.
func New(opts Options) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "engine setup")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	n := opts.Config.Workers
	if n < 1 {
		n = 1
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = 10 * time.Second
	}

	e := &Engine{
		cfg:    opts.Config,
		logger: logger.WithComponent("engine"),
		agg:    stats.NewAggregator("icmp"),
		sweep:  sweep,
	}

	tableCfg := func(proto string) flow.TableConfig {
		s := opts.Config.StreamFor(proto)
		return flow.TableConfig{
			Timeout:  time.Duration(s.SessionTimeout) * time.Second,
			MaxFlows: s.MaxFlows,
		}
	}
	tcpCfg := tableCfg(config.StreamTCP)
	udpCfg := tableCfg(config.StreamUDP)
	icmpCfg := tableCfg(config.StreamICMP)

	for i := 0; i < n; i++ {
		ctrl := flow.NewController(tcpCfg, udpCfg, icmpCfg, e.logger)
		e.workers = append(e.workers, newWorker(i, ctrl, e.agg.NewSet(), opts.Accounting, e.logger))
	}

	return e, nil
}

// Workers returns the worker list. Tests drive workers directly; the
// normal path goes through Start/Dispatch/Stop.
func (e *Engine) Workers() []*Worker { return e.workers }

// Stats returns the aggregator holding the cumulative counters.
func (e *Engine) Stats() *stats.Aggregator { return e.agg }

// Start launches the worker goroutines.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true
	for _, w := range e.workers {
		e.wg.Add(1)
		go w.run(e.sweep, e.wg.Done)
	}
	e.logger.Info("Engine started",
		"workers", len(e.workers),
		"icmp_timeout", e.cfg.ICMPSessionTimeout().String())
}

// Dispatch routes a packet to the worker owning its flow. An ICMP error
// carrying an embedded header routes by the embedded flow's key instead,
// so the correlator runs on the worker whose tables hold the target flow.
// The error packet's own pseudo-flow is then tracked on that worker too,
// which can differ from where the rest of its outer src/dst pair lands;
// errors about distinct flows are distinct events, so the split is
// accepted in exchange for lock-free correlation.
func (e *Engine) Dispatch(pkt *decode.Packet) {
	var key flowkey.Key
	if orig := pkt.Orig; orig != nil {
		key = flowkey.Canonical(orig.Proto, orig.Src, orig.SrcPort, orig.Dst, orig.DstPort, pkt.VLAN)
	} else {
		key = flowkey.Canonical(pkt.Proto, pkt.Src, pkt.SrcPort, pkt.Dst, pkt.DstPort, pkt.VLAN)
	}
	w := e.workers[key.Hash()%uint64(len(e.workers))]
	w.in <- pkt
}

// Stop closes the worker inputs, waits for the workers to drain, runs a
// final sweep and folds the statistics. After Stop the engine is quiescent
// and Report/Totals are exact.
func (e *Engine) Stop() {
	if !e.started {
		return
	}
	e.started = false
	for _, w := range e.workers {
		close(w.in)
	}
	e.wg.Wait()
	for _, w := range e.workers {
		w.Sweep()
	}
	e.agg.Merge()
	e.logger.Info("Engine stopped")
}

// Report merges and emits the session statistics. Callers must ensure the
// workers are quiescent, as with any merge.
func (e *Engine) Report() stats.SessionStats {
	return e.agg.Report(e.logger)
}
