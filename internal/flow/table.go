// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"time"

	"github.com/google/uuid"

	"grimm.is/streamgate/internal/clock"
	"grimm.is/streamgate/internal/errors"
	"grimm.is/streamgate/internal/flowkey"
	"grimm.is/streamgate/internal/logging"
)

// TableConfig sizes one protocol's flow table.
type TableConfig struct {
	// Timeout is the idle time after which a flow is swept.
	Timeout time.Duration
	// MaxFlows caps the table; creation beyond the cap prunes the
	// longest-idle flow to make room.
	MaxFlows int
}

// DefaultTableConfig returns the default sizing for proto's table.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		Timeout:  30 * time.Second,
		MaxFlows: 65536,
	}
}

// Table is the keyed store for one protocol's flows. A table belongs to a
// single worker; it is not safe for concurrent use and does not lock.
// Cross-worker flow distribution is the packet router's invariant.
type Table struct {
	proto  uint8
	cfg    TableConfig
	logger *logging.Logger

	flows map[flowkey.Key]*Flow
	byID  map[uuid.UUID]*Flow

	// prunes counts resource-pressure evictions since the last reset.
	prunes uint64
}

// NewTable creates an empty table for proto.
func NewTable(proto uint8, cfg TableConfig, logger *logging.Logger) *Table {
	if cfg.MaxFlows <= 0 {
		cfg = DefaultTableConfig()
	}
	return &Table{
		proto:  proto,
		cfg:    cfg,
		logger: logger,
		flows:  make(map[flowkey.Key]*Flow),
		byID:   make(map[uuid.UUID]*Flow),
	}
}

// Proto returns the IP protocol this table tracks.
func (t *Table) Proto() uint8 { return t.proto }

// Lookup returns the flow for key, or nil when none is tracked.
func (t *Table) Lookup(key flowkey.Key) *Flow {
	return t.flows[key]
}

// Get returns the flow with the given stable ID, or nil.
func (t *Table) Get(id uuid.UUID) *Flow {
	return t.byID[id]
}

// Create tracks a new flow under key. When the table is full the
// longest-idle flow is pruned first. Creating over an existing key is a
// caller bug and reported as a conflict on the existing record.
func (t *Table) Create(key flowkey.Key) (*Flow, error) {
	if existing := t.flows[key]; existing != nil {
		return existing, errors.Errorf(errors.KindInternal, "flow already tracked: %s", key)
	}

	if len(t.flows) >= t.cfg.MaxFlows {
		t.pruneOne()
	}

	now := clock.Now()
	f := &Flow{
		ID:        uuid.New(),
		Key:       key,
		CreatedAt: now,
		LastSeen:  now,
	}
	t.flows[key] = f
	t.byID[f.ID] = f
	return f, nil
}

// Remove drops a flow from the table without touching its state. Teardown
// of the session is the caller's responsibility.
func (t *Table) Remove(f *Flow) {
	delete(t.flows, f.Key)
	delete(t.byID, f.ID)
}

// Count returns the number of tracked flows.
func (t *Table) Count() int { return len(t.flows) }

// Prunes returns the prune counter.
func (t *Table) Prunes() uint64 { return t.prunes }

// ResetPrunes zeroes the prune counter.
func (t *Table) ResetPrunes() { t.prunes = 0 }

// Sweep tears down flows idle past the configured timeout and returns how
// many were removed. The session sees FlagTimedOut before Clear so it can
// classify the close.
func (t *Table) Sweep() int {
	deadline := clock.Now().Add(-t.cfg.Timeout)
	var expired []*Flow
	for _, f := range t.flows {
		if f.LastSeen.Before(deadline) {
			expired = append(expired, f)
		}
	}
	for _, f := range expired {
		f.SetFlags(FlagTimedOut)
		if f.Session != nil {
			f.Session.Clear()
		}
		t.Remove(f)
	}
	if len(expired) > 0 && t.logger != nil {
		t.logger.Debug("Swept idle flows", "proto", t.proto, "count", len(expired))
	}
	return len(expired)
}

// pruneOne evicts the longest-idle flow to make room for a new one.
func (t *Table) pruneOne() {
	var victim *Flow
	for _, f := range t.flows {
		if victim == nil || f.LastSeen.Before(victim.LastSeen) {
			victim = f
		}
	}
	if victim == nil {
		return
	}
	victim.SetFlags(FlagPruned)
	if victim.Session != nil {
		victim.Session.Clear()
	}
	t.Remove(victim)
	t.prunes++
	if t.logger != nil {
		t.logger.Debug("Pruned flow under pressure", "proto", t.proto, "key", victim.Key.String())
	}
}
