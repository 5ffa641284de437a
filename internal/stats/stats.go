// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package stats tracks session lifecycle counters. Each worker owns a Set
// it mutates freely; an Aggregator folds the worker sets into a cumulative
// total at quiescent points chosen by the coordinator.
package stats

import (
	"sync"

	"grimm.is/streamgate/internal/logging"
)

// SessionStats is the counter set kept per protocol, once cumulatively and
// once per worker.
type SessionStats struct {
	Created  uint64 `json:"created" yaml:"created"`
	Released uint64 `json:"released" yaml:"released"`
	Timeouts uint64 `json:"timeouts" yaml:"timeouts"`
	Prunes   uint64 `json:"prunes" yaml:"prunes"`
	Discards uint64 `json:"discards" yaml:"discards"`
}

func (s *SessionStats) add(from *SessionStats) {
	s.Created += from.Created
	s.Released += from.Released
	s.Timeouts += from.Timeouts
	s.Prunes += from.Prunes
	s.Discards += from.Discards
}

func (s *SessionStats) zero() {
	*s = SessionStats{}
}

// Set is one worker's counter set. It must only be mutated by the worker
// that owns it.
type Set struct {
	SessionStats
}

// Reset zeroes the worker-local counters. The cumulative set is untouched;
// resetting the flow controller's prune counter is wired by the caller.
func (s *Set) Reset() {
	s.zero()
}

// Aggregator owns the cumulative counter set for one protocol and the
// worker sets that feed it.
type Aggregator struct {
	proto string

	// mu guards the cumulative set and the worker registry. Worker sets
	// themselves are mutated lock-free by their owners; Merge must only
	// run while the workers are quiesced.
	mu     sync.Mutex
	global SessionStats
	sets   []*Set
}

// NewAggregator creates an aggregator for the named protocol.
func NewAggregator(proto string) *Aggregator {
	return &Aggregator{proto: proto}
}

// Proto returns the protocol name the aggregator reports under.
func (a *Aggregator) Proto() string { return a.proto }

// NewSet registers and returns a worker-local counter set.
func (a *Aggregator) NewSet() *Set {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := &Set{}
	a.sets = append(a.sets, s)
	return s
}

// Merge folds every worker set into the cumulative set and zeroes the
// worker sets, so repeated merges never double-count. Addition commutes,
// so the fold order across workers is irrelevant. Callers must ensure the
// workers are quiescent.
func (a *Aggregator) Merge() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.sets {
		a.global.add(&s.SessionStats)
		s.zero()
	}
}

// Totals returns the cumulative counters as of the last merge.
func (a *Aggregator) Totals() SessionStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.global
}

// Report merges and logs the cumulative counters under the protocol name,
// and mirrors them into the Prometheus registry. The counters themselves
// are unaffected beyond the merge.
func (a *Aggregator) Report(logger *logging.Logger) SessionStats {
	a.Merge()
	totals := a.Totals()
	if logger != nil {
		logger.Info("Session statistics",
			"proto", a.proto,
			"created", totals.Created,
			"released", totals.Released,
			"timeouts", totals.Timeouts,
			"prunes", totals.Prunes,
			"discards", totals.Discards)
	}
	Get().Publish(a.proto, totals)
	return totals
}
