// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"grimm.is/streamgate/internal/decode"
	"grimm.is/streamgate/internal/engine"
	"grimm.is/streamgate/internal/logging"
)

// replay feeds every trackable packet of a pcap file into the engine and
// returns how many were dispatched.
func replay(path string, eng *engine.Engine, logger *logging.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pcap: %w", err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("read pcap header: %w", err)
	}

	src := gopacket.NewPacketSource(reader, reader.LinkType())
	src.NoCopy = true

	dispatched := 0
	for {
		pkt, err := src.NextPacket()
		if err == io.EOF {
			return dispatched, nil
		}
		if err != nil {
			// Truncated or corrupt frames are skipped, not fatal.
			logger.Debug("Skipping undecodable frame", "error", err)
			continue
		}
		decoded, ok := decode.FromGoPacket(pkt)
		if !ok {
			continue
		}
		eng.Dispatch(decoded)
		dispatched++
	}
}
