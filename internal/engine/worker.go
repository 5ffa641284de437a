// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"time"

	"grimm.is/streamgate/internal/clock"
	"grimm.is/streamgate/internal/decode"
	"grimm.is/streamgate/internal/flow"
	"grimm.is/streamgate/internal/flowkey"
	"grimm.is/streamgate/internal/logging"
	"grimm.is/streamgate/internal/session"
	"grimm.is/streamgate/internal/stats"
)

// Worker processes one disjoint packet stream. It exclusively owns its
// flow tables and its stats set; nothing here locks. The engine guarantees
// a given flow's packets always land on the same worker.
type Worker struct {
	id         int
	ctrl       *flow.Controller
	set        *stats.Set
	accounting flow.CloseAccounting
	logger     *logging.Logger

	in chan *decode.Packet
}

func newWorker(id int, ctrl *flow.Controller, set *stats.Set, accounting flow.CloseAccounting, logger *logging.Logger) *Worker {
	if accounting == nil {
		accounting = flow.NopCloseAccounting{}
	}
	return &Worker{
		id:         id,
		ctrl:       ctrl,
		set:        set,
		accounting: accounting,
		logger:     logger,
		in:         make(chan *decode.Packet, 256),
	}
}

// Controller exposes the worker's flow tables, mainly for tests and the
// coordinator's final sweep.
func (w *Worker) Controller() *flow.Controller { return w.ctrl }

// Stats exposes the worker-local counter set.
func (w *Worker) Stats() *stats.Set { return w.set }

// Process runs one packet through the worker's tables and sessions.
// It never fails; per-packet problems are absorbed as no-ops.
func (w *Worker) Process(pkt *decode.Packet) flow.Status {
	switch pkt.Proto {
	case flowkey.ProtoTCP, flowkey.ProtoUDP:
		w.trackPlain(pkt)
		return flow.StatusOK
	case flowkey.ProtoICMP:
		return w.processICMP(pkt)
	default:
		w.set.Discards++
		return flow.StatusOK
	}
}

// trackPlain keeps a flow record for TCP/UDP traffic so ICMP errors have
// something to correlate against. The full TCP/UDP session machinery lives
// outside this core; only the record and its key matter here.
func (w *Worker) trackPlain(pkt *decode.Packet) {
	key := flowkey.Canonical(pkt.Proto, pkt.Src, pkt.SrcPort, pkt.Dst, pkt.DstPort, pkt.VLAN)
	table := w.ctrl.TableFor(pkt.Proto)

	f := table.Lookup(key)
	if f == nil {
		var err error
		f, err = table.Create(key)
		if err != nil {
			return
		}
		f.SenderAddr, f.ResponderAddr = pkt.Src, pkt.Dst
		f.SenderPort, f.ResponderPort = pkt.SrcPort, pkt.DstPort
		w.set.Created++
	}
	f.LastSeen = clock.Now()
}

func (w *Worker) processICMP(pkt *decode.Packet) flow.Status {
	key := flowkey.Canonical(pkt.Proto, pkt.Src, pkt.SrcPort, pkt.Dst, pkt.DstPort, pkt.VLAN)
	table := w.ctrl.TableFor(flowkey.ProtoICMP)

	f := table.Lookup(key)
	if f == nil {
		var err error
		f, err = table.Create(key)
		if err != nil {
			return flow.StatusOK
		}
		f.SenderAddr, f.ResponderAddr = pkt.Src, pkt.Dst
		f.SenderPort, f.ResponderPort = pkt.SrcPort, pkt.DstPort
		session.NewICMP(f, table, session.Deps{
			Controller: w.ctrl,
			Accounting: w.accounting,
			Stats:      w.set,
			Logger:     w.logger,
		})
	}
	f.LastSeen = clock.Now()

	role := flow.DirSender
	if pkt.Src == f.ResponderAddr {
		role = flow.DirResponder
	}
	f.Session.UpdateDirection(role, pkt.Src, pkt.SrcPort)

	return f.Session.Process(pkt)
}

// Sweep evicts idle flows from every table the worker owns.
func (w *Worker) Sweep() int {
	return w.ctrl.Sweep()
}

// ResetStats zeroes the worker-local counters and the ICMP prune counter
// of the worker's flow controller. The cumulative set is untouched.
func (w *Worker) ResetStats() {
	w.set.Reset()
	w.ctrl.ResetPrunes(flowkey.ProtoICMP)
}

// run is the worker goroutine: packets interleaved with periodic sweeps,
// until the input channel closes.
func (w *Worker) run(sweepEvery time.Duration, done func()) {
	defer done()

	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case pkt, ok := <-w.in:
			if !ok {
				return
			}
			w.Process(pkt)
		case <-ticker.C:
			w.Sweep()
		}
	}
}
