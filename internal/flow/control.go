// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"grimm.is/streamgate/internal/flowkey"
	"grimm.is/streamgate/internal/logging"
)

// CloseAccounting receives session-close classifications. The reporting
// subsystem implements it; tests substitute their own.
type CloseAccounting interface {
	SessionClosed(proto uint8, reason CloseReason)
}

// NopCloseAccounting discards close reports.
type NopCloseAccounting struct{}

func (NopCloseAccounting) SessionClosed(uint8, CloseReason) {}

// Controller bundles the per-protocol tables one worker owns and provides
// the protocol-dispatched lookup the ICMP correlator uses.
type Controller struct {
	tcp  *Table
	udp  *Table
	icmp *Table
}

// NewController creates TCP, UDP and ICMP tables with the given configs.
func NewController(tcpCfg, udpCfg, icmpCfg TableConfig, logger *logging.Logger) *Controller {
	return &Controller{
		tcp:  NewTable(flowkey.ProtoTCP, tcpCfg, logger),
		udp:  NewTable(flowkey.ProtoUDP, udpCfg, logger),
		icmp: NewTable(flowkey.ProtoICMP, icmpCfg, logger),
	}
}

// TableFor returns the table tracking proto, or nil for protocols the
// stream core does not handle.
func (c *Controller) TableFor(proto uint8) *Table {
	switch proto {
	case flowkey.ProtoTCP:
		return c.tcp
	case flowkey.ProtoUDP:
		return c.udp
	case flowkey.ProtoICMP:
		return c.icmp
	default:
		return nil
	}
}

// Lookup dispatches a key to the table for its protocol. Unhandled
// protocols and untracked keys both return nil.
func (c *Controller) Lookup(key flowkey.Key) *Flow {
	t := c.TableFor(key.Proto)
	if t == nil {
		return nil
	}
	return t.Lookup(key)
}

// Sweep runs idle-timeout eviction on every table and returns the total
// number of flows removed.
func (c *Controller) Sweep() int {
	return c.tcp.Sweep() + c.udp.Sweep() + c.icmp.Sweep()
}

// ResetPrunes zeroes the prune counter of proto's table.
func (c *Controller) ResetPrunes(proto uint8) {
	if t := c.TableFor(proto); t != nil {
		t.ResetPrunes()
	}
}

// Prunes returns the prune counter of proto's table.
func (c *Controller) Prunes(proto uint8) uint64 {
	if t := c.TableFor(proto); t != nil {
		return t.Prunes()
	}
	return 0
}
