// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/streamgate/internal/config"
	"grimm.is/streamgate/internal/decode"
	"grimm.is/streamgate/internal/errors"
	"grimm.is/streamgate/internal/flow"
	"grimm.is/streamgate/internal/flowkey"
)

var (
	hostA  = netip.MustParseAddr("10.0.0.5")
	hostB  = netip.MustParseAddr("192.168.1.50")
	router = netip.MustParseAddr("192.168.1.1")
)

func tcpPacket(src netip.Addr, sport uint16, dst netip.Addr, dport uint16) *decode.Packet {
	return &decode.Packet{Proto: flowkey.ProtoTCP, Src: src, SrcPort: sport, Dst: dst, DstPort: dport}
}

func unreachable(from, to netip.Addr, orig *decode.OrigHeader) *decode.Packet {
	return &decode.Packet{
		Proto:    flowkey.ProtoICMP,
		Src:      from,
		Dst:      to,
		ICMPType: decode.ICMPDestUnreach,
		Orig:     orig,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Options{Config: nil})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	_, err = New(Options{Config: &config.Config{LogLevel: "loud"}})
	require.Error(t, err)
}

func TestWorkerCorrelatesUnreachable(t *testing.T) {
	e, err := New(Options{Config: config.Default()})
	require.NoError(t, err)
	w := e.Workers()[0]

	// Client talks TCP to a server behind a router.
	w.Process(tcpPacket(hostA, 1000, hostB, 80))

	target := w.Controller().Lookup(
		flowkey.Canonical(flowkey.ProtoTCP, hostA, 1000, hostB, 80, 0))
	require.NotNil(t, target, "TCP flow should be tracked")
	assert.Zero(t, target.SessionFlags)

	// The router reports the destination dead, quoting the flow from the
	// direction the server saw it.
	w.Process(unreachable(router, hostA, &decode.OrigHeader{
		Proto: flowkey.ProtoTCP, Src: hostB, SrcPort: 80, Dst: hostA, DstPort: 1000,
	}))

	assert.True(t, target.HasFlags(flow.FlagDropClient|flow.FlagDropServer))
	assert.True(t, target.HasState(flow.StateUnreach))
}

func TestWorkerUnknownProtoDiscards(t *testing.T) {
	e, err := New(Options{Config: config.Default()})
	require.NoError(t, err)
	w := e.Workers()[0]

	w.Process(&decode.Packet{Proto: 47, Src: hostA, Dst: hostB})
	assert.Equal(t, uint64(1), w.Stats().Discards)
	assert.Zero(t, w.Controller().TableFor(flowkey.ProtoTCP).Count())
}

func TestEngineRunAndReport(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 2
	e, err := New(Options{Config: cfg})
	require.NoError(t, err)

	e.Start()
	e.Dispatch(tcpPacket(hostA, 1000, hostB, 80))
	e.Dispatch(&decode.Packet{
		Proto: flowkey.ProtoICMP, Src: hostA, Dst: hostB, ICMPType: decode.ICMPEcho,
	})
	e.Dispatch(&decode.Packet{
		Proto: flowkey.ProtoICMP, Src: hostB, Dst: hostA, ICMPType: decode.ICMPEchoReply,
	})
	e.Dispatch(unreachable(router, hostA, &decode.OrigHeader{
		Proto: flowkey.ProtoTCP, Src: hostB, SrcPort: 80, Dst: hostA, DstPort: 1000,
	}))
	e.Stop()

	totals := e.Report()
	// One TCP flow plus one ICMP pseudo-flow for the echo pair, plus one
	// for the unreachable message itself.
	assert.Equal(t, uint64(3), totals.Created)
	assert.Zero(t, totals.Discards)
}

func TestWorkerResetStats(t *testing.T) {
	e, err := New(Options{Config: config.Default()})
	require.NoError(t, err)
	w := e.Workers()[0]

	w.Process(&decode.Packet{
		Proto: flowkey.ProtoICMP, Src: hostA, Dst: hostB, ICMPType: decode.ICMPEcho,
	})
	require.NotZero(t, w.Stats().Created)

	w.ResetStats()
	assert.Zero(t, w.Stats().Created)
	assert.Zero(t, w.Controller().Prunes(flowkey.ProtoICMP))
}
