// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flowkey defines the orientation-independent flow identifier used
// to key session tables. Two packets of the same flow produce the same Key
// regardless of which endpoint sent them, which is what makes it possible
// to match an ICMP error's embedded header against a live flow.
package flowkey

import (
	"fmt"
	"net/netip"
)

// Well-known IP protocol numbers handled by the stream tables.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// Key identifies a bidirectional flow. Addresses and ports are stored in
// canonical low/high order, not source/destination order. The zero VLAN
// means the packet carried no 802.1Q tag.
type Key struct {
	Proto  uint8
	LoAddr netip.Addr
	HiAddr netip.Addr
	LoPort uint16
	HiPort uint16
	VLAN   uint16
}

// Canonical builds the Key for a packet observed as src -> dst.
//
// Ordering: the numerically smaller address takes the low slot together
// with its port. Equal addresses are a distinct branch ordered by port
// alone. Otherwise the destination takes the low slot.
func Canonical(proto uint8, src netip.Addr, srcPort uint16, dst netip.Addr, dstPort uint16, vlan uint16) Key {
	src = src.Unmap()
	dst = dst.Unmap()

	k := Key{Proto: proto, VLAN: vlan}
	switch cmp := src.Compare(dst); {
	case cmp < 0:
		k.LoAddr, k.LoPort = src, srcPort
		k.HiAddr, k.HiPort = dst, dstPort
	case cmp == 0:
		k.LoAddr, k.HiAddr = src, src
		if srcPort < dstPort {
			k.LoPort, k.HiPort = srcPort, dstPort
		} else {
			k.LoPort, k.HiPort = dstPort, srcPort
		}
	default:
		k.LoAddr, k.LoPort = dst, dstPort
		k.HiAddr, k.HiPort = src, srcPort
	}
	return k
}

// Hash folds the key into a uint64 for worker routing. Not cryptographic.
func (k Key) Hash() uint64 {
	h := uint64(k.Proto)
	for _, b := range k.LoAddr.As16() {
		h = h*31 + uint64(b)
	}
	for _, b := range k.HiAddr.As16() {
		h = h*31 + uint64(b)
	}
	h = h*31 + uint64(k.LoPort)
	h = h*31 + uint64(k.HiPort)
	h = h*31 + uint64(k.VLAN)
	return h
}

func (k Key) String() string {
	return fmt.Sprintf("proto=%d %s:%d<->%s:%d vlan=%d",
		k.Proto, k.LoAddr, k.LoPort, k.HiAddr, k.HiPort, k.VLAN)
}
