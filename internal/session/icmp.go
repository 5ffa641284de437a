// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package session implements the per-protocol session state attached to
// flow records. ICMP has no handshake, so its "session" is a pseudo-session
// anchoring counters and the unreachable correlation logic.
package session

import (
	"net/netip"
	"time"

	"github.com/google/uuid"

	"grimm.is/streamgate/internal/clock"
	"grimm.is/streamgate/internal/decode"
	"grimm.is/streamgate/internal/flow"
	"grimm.is/streamgate/internal/flowkey"
	"grimm.is/streamgate/internal/logging"
	"grimm.is/streamgate/internal/stats"
)

// Deps are the collaborators an ICMP session needs. All fields are
// required except Logger.
type Deps struct {
	// Controller provides the protocol-dispatched table lookup for
	// unreachable correlation.
	Controller *flow.Controller
	// Accounting receives close classifications at teardown.
	Accounting flow.CloseAccounting
	// Stats is the owning worker's counter set.
	Stats  *stats.Set
	Logger *logging.Logger
}

// ICMPSession is the pseudo-session tracked per ICMP flow. It holds a
// stable flow identifier rather than the record itself; the owning table's
// arena resolves it on demand.
type ICMPSession struct {
	flowID uuid.UUID
	owner  *flow.Table
	deps   Deps

	// EchoCount counts echo request/reply messages seen on this flow.
	EchoCount uint32
	// SsnTime is when the first packet was processed, zero until then.
	SsnTime time.Time
}

// NewICMP creates the pseudo-session for f, attaches it to the record and
// runs Setup. This is the only constructor path; ICMP sessions have no
// reconnect semantics.
func NewICMP(f *flow.Flow, owner *flow.Table, deps Deps) *ICMPSession {
	if deps.Accounting == nil {
		deps.Accounting = flow.NopCloseAccounting{}
	}
	s := &ICMPSession{flowID: f.ID, owner: owner, deps: deps}
	f.Session = s
	s.Setup()
	if deps.Stats != nil {
		deps.Stats.Created++
	}
	return s
}

// Flow resolves the owning record through the table arena. Nil after the
// flow has been removed.
func (s *ICMPSession) Flow() *flow.Flow {
	return s.owner.Get(s.flowID)
}

// Setup initializes the session state.
func (s *ICMPSession) Setup() {
	s.EchoCount = 0
	s.SsnTime = time.Time{}
}

// Process dispatches on the ICMP message type. Destination unreachable
// feeds the correlator; echo traffic bumps the echo counter; every other
// type is deliberately ignored. Adding message types means adding arms
// here, nothing else changes.
func (s *ICMPSession) Process(pkt *decode.Packet) flow.Status {
	if s.SsnTime.IsZero() {
		s.SsnTime = clock.Now()
	}

	switch pkt.ICMPType {
	case decode.ICMPDestUnreach:
		return s.handleUnreachable(pkt)

	case decode.ICMPEcho, decode.ICMPEchoReply:
		s.EchoCount++
		return flow.StatusOK

	default:
		return flow.StatusOK
	}
}

// UpdateDirection reconciles the flow's sender/responder address bindings
// with the roles observed on a new packet. When bindings already match the
// observed role nothing happens; otherwise the two addresses are swapped.
// The flow's direction flag is left untouched, and the port is accepted
// only for signature symmetry with TCP/UDP.
func (s *ICMPSession) UpdateDirection(dir flow.Direction, addr netip.Addr, _ uint16) {
	f := s.Flow()
	if f == nil {
		return
	}

	if f.SenderAddr == addr {
		if dir == flow.DirSender && f.Direction == flow.DirSender {
			return
		}
	} else if f.ResponderAddr == addr {
		if dir == flow.DirResponder && f.Direction == flow.DirResponder {
			return
		}
	}

	f.SenderAddr, f.ResponderAddr = f.ResponderAddr, f.SenderAddr
}

// Clear tears the session down: classify the close reason from the flow's
// flags (pruned wins over timed-out, neither means normal), report it,
// clear the flow's transient state and count the release. Callers invoke
// this at most once per session.
func (s *ICMPSession) Clear() {
	f := s.Flow()
	if f == nil {
		return
	}

	reason := f.CloseReason()
	s.deps.Accounting.SessionClosed(flowkey.ProtoICMP, reason)

	if s.deps.Stats != nil {
		switch reason {
		case flow.ClosePruned:
			s.deps.Stats.Prunes++
		case flow.CloseTimedOut:
			s.deps.Stats.Timeouts++
		}
	}

	f.Reset()

	if s.deps.Stats != nil {
		s.deps.Stats.Released++
	}
}
