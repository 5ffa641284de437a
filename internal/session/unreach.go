// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package session

import (
	"grimm.is/streamgate/internal/decode"
	"grimm.is/streamgate/internal/flow"
	"grimm.is/streamgate/internal/flowkey"
)

// handleUnreachable correlates an ICMP destination-unreachable message back
// to the flow it reports on. The key is built from the embedded original
// header with the observed packet's VLAN tag, so it matches the key the
// provoking flow was created under regardless of direction.
//
// Everything here is best effort: a missing embedded header, an embedded
// protocol we do not track, or an already-expired flow are all quiet
// no-ops. This path must never fail the packet pipeline.
func (s *ICMPSession) handleUnreachable(pkt *decode.Packet) flow.Status {
	orig := pkt.Orig
	if orig == nil {
		return flow.StatusOK
	}

	// Only TCP, UDP and ICMP flows are tracked; anything else embedded in
	// the error gets no lookup at all.
	switch orig.Proto {
	case flowkey.ProtoTCP, flowkey.ProtoUDP, flowkey.ProtoICMP:
	default:
		return flow.StatusOK
	}

	key := flowkey.Canonical(orig.Proto, orig.Src, orig.SrcPort, orig.Dst, orig.DstPort, pkt.VLAN)

	target := s.deps.Controller.Lookup(key)
	if target == nil {
		// The flow may simply have expired already.
		return flow.StatusOK
	}

	// Mark the flow dead: drop both directions and record why.
	if s.deps.Logger != nil {
		s.deps.Logger.Debug("Marking flow as dead per ICMP unreachable", "key", key.String())
	}
	target.SetFlags(flow.FlagDropClient | flow.FlagDropServer)
	target.SetState(flow.StateUnreach)

	return flow.StatusOK
}
