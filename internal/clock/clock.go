// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides a time source that can be swapped for a mock in
// tests, so timeout and sweep behavior is deterministic.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source interface.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real returns the wall-clock time source.
func Real() Clock { return realClock{} }

var (
	mu      sync.RWMutex
	current Clock = realClock{}
)

// Now returns the current time from the active time source.
func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return current.Now()
}

// Set replaces the active time source. Intended for tests and simulation.
func Set(c Clock) {
	mu.Lock()
	defer mu.Unlock()
	if c == nil {
		c = realClock{}
	}
	current = c
}

// MockClock is a manually advanced time source.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock returns a MockClock starting at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
