// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package decode

import (
	"encoding/binary"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"grimm.is/streamgate/internal/flowkey"
)

// FromGoPacket translates a gopacket-decoded packet into the stream core's
// model. It returns false for packets the stream tables do not track
// (non-IP, or IP protocols other than TCP/UDP/ICMP).
func FromGoPacket(pkt gopacket.Packet) (*Packet, bool) {
	out := &Packet{Timestamp: pkt.Metadata().Timestamp}

	if dot1q := pkt.Layer(layers.LayerTypeDot1Q); dot1q != nil {
		out.VLAN = dot1q.(*layers.Dot1Q).VLANIdentifier
	}

	switch {
	case pkt.Layer(layers.LayerTypeIPv4) != nil:
		ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		out.Proto = uint8(ip.Protocol)
		out.Src, _ = netip.AddrFromSlice(ip.SrcIP.To4())
		out.Dst, _ = netip.AddrFromSlice(ip.DstIP.To4())
	case pkt.Layer(layers.LayerTypeIPv6) != nil:
		ip := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		out.Proto = uint8(ip.NextHeader)
		out.Src, _ = netip.AddrFromSlice(ip.SrcIP)
		out.Dst, _ = netip.AddrFromSlice(ip.DstIP)
	default:
		return nil, false
	}

	switch out.Proto {
	case flowkey.ProtoTCP:
		if tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok && tcp != nil {
			out.SrcPort = uint16(tcp.SrcPort)
			out.DstPort = uint16(tcp.DstPort)
		}
	case flowkey.ProtoUDP:
		if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok && udp != nil {
			out.SrcPort = uint16(udp.SrcPort)
			out.DstPort = uint16(udp.DstPort)
		}
	case flowkey.ProtoICMP:
		icmp, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
		if !ok || icmp == nil {
			return nil, false
		}
		out.ICMPType = icmp.TypeCode.Type()
		if out.ICMPType == ICMPDestUnreach {
			out.Orig = decodeOrigHeader(icmp.Payload)
		}
	default:
		return nil, false
	}

	return out, true
}

// decodeOrigHeader recovers the original IP header an ICMP error embeds.
// The payload is the offending datagram's IP header plus at least the first
// eight bytes of its transport header, which is where the ports live.
// Anything short or malformed yields nil; callers treat that as no header.
func decodeOrigHeader(payload []byte) *OrigHeader {
	embedded := gopacket.NewPacket(payload, layers.LayerTypeIPv4, gopacket.NoCopy)
	ipLayer := embedded.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil
	}
	ip := ipLayer.(*layers.IPv4)

	src, okSrc := netip.AddrFromSlice(ip.SrcIP.To4())
	dst, okDst := netip.AddrFromSlice(ip.DstIP.To4())
	if !okSrc || !okDst {
		return nil
	}

	orig := &OrigHeader{
		Proto: uint8(ip.Protocol),
		Src:   src,
		Dst:   dst,
	}

	// The embedded transport header is usually truncated to 8 bytes, too
	// short for gopacket's TCP decoder, so the ports are read directly.
	switch orig.Proto {
	case flowkey.ProtoTCP, flowkey.ProtoUDP:
		if len(ip.Payload) < 4 {
			return nil
		}
		orig.SrcPort = binary.BigEndian.Uint16(ip.Payload[0:2])
		orig.DstPort = binary.BigEndian.Uint16(ip.Payload[2:4])
	}

	return orig
}
