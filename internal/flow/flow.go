// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flow holds the per-flow record shared between the stream tables
// and the protocol sessions, plus the keyed table that stores them.
package flow

import (
	"net/netip"
	"time"

	"github.com/google/uuid"

	"grimm.is/streamgate/internal/decode"
	"grimm.is/streamgate/internal/flowkey"
)

// Status is the outcome of a per-packet session operation. Correlation is
// best effort; nothing in the packet path is allowed to fail the pipeline,
// so StatusOK covers both "handled" and "deliberately ignored".
type Status int

const (
	StatusOK Status = iota
)

// SessionFlags is the bitfield of session-level state on a flow.
type SessionFlags uint32

const (
	// FlagDropClient and FlagDropServer mark a flow whose traffic should
	// be dropped in the respective direction.
	FlagDropClient SessionFlags = 1 << iota
	FlagDropServer
	// FlagPruned marks eviction under resource pressure.
	FlagPruned
	// FlagTimedOut marks idle-timeout eviction.
	FlagTimedOut
)

// StreamState is the bitfield of protocol-level stream state on a flow.
type StreamState uint32

const (
	// StateUnreach is set when an ICMP unreachable named this flow.
	StateUnreach StreamState = 1 << iota
)

// Direction identifies which logical role a packet was observed in.
type Direction uint8

const (
	DirSender Direction = iota
	DirResponder
)

// CloseReason classifies why a session was torn down.
type CloseReason uint8

const (
	CloseNormal CloseReason = iota
	CloseTimedOut
	ClosePruned
)

func (r CloseReason) String() string {
	switch r {
	case ClosePruned:
		return "pruned"
	case CloseTimedOut:
		return "timed_out"
	default:
		return "normal"
	}
}

// Session is the per-protocol state attached to a flow. Implementations
// live in the session package; the flow record only holds the handle.
type Session interface {
	Setup()
	Process(pkt *decode.Packet) Status
	UpdateDirection(dir Direction, addr netip.Addr, port uint16)
	Clear()
}

// Flow is one tracked pseudo-connection. It is owned by exactly one table
// and, per the worker model, only ever touched from the worker that owns
// that table's packet stream.
type Flow struct {
	ID  uuid.UUID
	Key flowkey.Key

	SessionFlags SessionFlags
	StreamState  StreamState
	Direction    Direction

	// SenderAddr and ResponderAddr are role bindings, not identity; the
	// ICMP session swaps them when the observed roles flip. The Key is
	// what identifies the flow.
	SenderAddr    netip.Addr
	ResponderAddr netip.Addr
	SenderPort    uint16
	ResponderPort uint16

	CreatedAt time.Time
	LastSeen  time.Time

	Session Session
}

// SetFlags sets the given session flag bits.
func (f *Flow) SetFlags(flags SessionFlags) {
	f.SessionFlags |= flags
}

// HasFlags reports whether all given flag bits are set.
func (f *Flow) HasFlags(flags SessionFlags) bool {
	return f.SessionFlags&flags == flags
}

// SetState sets the given stream state bits.
func (f *Flow) SetState(state StreamState) {
	f.StreamState |= state
}

// HasState reports whether all given stream state bits are set.
func (f *Flow) HasState(state StreamState) bool {
	return f.StreamState&state == state
}

// CloseReason classifies teardown from the flow's flags. Pruning takes
// precedence over timeout; a flow with neither closed normally.
func (f *Flow) CloseReason() CloseReason {
	switch {
	case f.HasFlags(FlagPruned):
		return ClosePruned
	case f.HasFlags(FlagTimedOut):
		return CloseTimedOut
	default:
		return CloseNormal
	}
}

// Reset clears the flow's transient state. Identity fields (ID, Key) and
// the session handle survive; a torn-down flow is removed from its table
// separately.
func (f *Flow) Reset() {
	f.SessionFlags = 0
	f.StreamState = 0
	f.LastSeen = time.Time{}
}
