// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package decode

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"grimm.is/streamgate/internal/flowkey"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func TestFromGoPacketUDP(t *testing.T) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum layer: %v", err)
	}
	raw := serialize(t, ip, udp, gopacket.Payload([]byte("query")))

	pkt, ok := FromGoPacket(gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.Default))
	if !ok {
		t.Fatal("expected UDP packet to decode")
	}
	if pkt.Proto != flowkey.ProtoUDP {
		t.Errorf("proto = %d, want UDP", pkt.Proto)
	}
	if pkt.Src != netip.MustParseAddr("10.0.0.1") || pkt.Dst != netip.MustParseAddr("10.0.0.2") {
		t.Errorf("addresses wrong: %v -> %v", pkt.Src, pkt.Dst)
	}
	if pkt.SrcPort != 5353 || pkt.DstPort != 53 {
		t.Errorf("ports wrong: %d -> %d", pkt.SrcPort, pkt.DstPort)
	}
	if pkt.HasOrigHeader() {
		t.Error("plain UDP packet must not carry an embedded header")
	}
}

func TestFromGoPacketICMPUnreachable(t *testing.T) {
	// Offending datagram: TCP 10.0.0.5:1000 -> 192.168.1.50:80.
	embIP := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 5),
		DstIP:    net.IPv4(192, 168, 1, 50),
	}
	embTCP := &layers.TCP{SrcPort: 1000, DstPort: 80, SYN: true}
	if err := embTCP.SetNetworkLayerForChecksum(embIP); err != nil {
		t.Fatalf("checksum layer: %v", err)
	}
	embedded := serialize(t, embIP, embTCP)

	outerIP := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IPv4(192, 168, 1, 1),
		DstIP:    net.IPv4(10, 0, 0, 5),
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(
			layers.ICMPv4TypeDestinationUnreachable,
			layers.ICMPv4CodePort),
	}
	raw := serialize(t, outerIP, icmp, gopacket.Payload(embedded))

	pkt, ok := FromGoPacket(gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.Default))
	if !ok {
		t.Fatal("expected ICMP packet to decode")
	}
	if pkt.ICMPType != ICMPDestUnreach {
		t.Errorf("icmp type = %d, want %d", pkt.ICMPType, ICMPDestUnreach)
	}
	if !pkt.HasOrigHeader() {
		t.Fatal("expected embedded original header")
	}
	orig := pkt.Orig
	if orig.Proto != flowkey.ProtoTCP {
		t.Errorf("embedded proto = %d, want TCP", orig.Proto)
	}
	if orig.Src != netip.MustParseAddr("10.0.0.5") || orig.Dst != netip.MustParseAddr("192.168.1.50") {
		t.Errorf("embedded addresses wrong: %v -> %v", orig.Src, orig.Dst)
	}
	if orig.SrcPort != 1000 || orig.DstPort != 80 {
		t.Errorf("embedded ports wrong: %d -> %d", orig.SrcPort, orig.DstPort)
	}
}

func TestFromGoPacketICMPEchoNoOrig(t *testing.T) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       7,
		Seq:      1,
	}
	raw := serialize(t, ip, icmp, gopacket.Payload([]byte("ping")))

	pkt, ok := FromGoPacket(gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.Default))
	if !ok {
		t.Fatal("expected ICMP echo to decode")
	}
	if pkt.ICMPType != ICMPEcho {
		t.Errorf("icmp type = %d, want %d", pkt.ICMPType, ICMPEcho)
	}
	if pkt.HasOrigHeader() {
		t.Error("echo request must not carry an embedded header")
	}
}

func TestFromGoPacketNonIP(t *testing.T) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   make([]byte, 6),
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{255, 255, 255, 255, 255, 255},
		EthernetType: layers.EthernetTypeARP,
	}
	raw := serialize(t, eth, arp)

	if _, ok := FromGoPacket(gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.Default)); ok {
		t.Error("ARP must not produce a stream packet")
	}
}
