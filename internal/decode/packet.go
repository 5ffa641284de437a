// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package decode defines the structured packet model the stream core
// consumes, and an adapter that fills it from gopacket-decoded traffic.
// The core never touches raw bytes; everything arrives pre-decoded here.
package decode

import (
	"net/netip"
	"time"
)

// ICMPv4 message types the stream core dispatches on.
const (
	ICMPEchoReply   uint8 = 0
	ICMPDestUnreach uint8 = 3
	ICMPEcho        uint8 = 8
)

// OrigHeader carries the fields recovered from the original IP header that
// an ICMP error message embeds in its payload. The embedded bytes are
// attacker-controlled; consumers must treat these values as untrusted input
// usable only for table lookups.
type OrigHeader struct {
	Proto   uint8
	Src     netip.Addr
	Dst     netip.Addr
	SrcPort uint16
	DstPort uint16
}

// Packet is a decoded packet as seen by the stream core.
type Packet struct {
	Timestamp time.Time

	Proto   uint8
	Src     netip.Addr
	Dst     netip.Addr
	SrcPort uint16
	DstPort uint16

	// VLAN is the 802.1Q tag of the observed packet, 0 when untagged.
	// It belongs to the outer envelope, never to an embedded header.
	VLAN uint16

	// ICMPType is valid when Proto is ICMP.
	ICMPType uint8

	// Orig is the embedded original header of an ICMP error message,
	// nil when absent or unparseable. Absence is normal, not an error.
	Orig *OrigHeader
}

// HasOrigHeader reports whether an embedded original header was decoded.
func (p *Packet) HasOrigHeader() bool {
	return p.Orig != nil
}
