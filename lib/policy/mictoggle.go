// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MicToggle implements the microphone-toggle sampling-rate cap: while
// engaged, it clamps any requested sampling period down to the
// configured floor, independent of and composable with the
// permission-based cap in [Access.AdjustSamplingPeriod].
// Physical mic-mute toggles can flap rapidly (a user tapping a
// hardware switch, or a buggy driver bouncing the GPIO line); a
// [rate.Limiter] debounces engagement changes so a flapping input
// doesn't thrash every direct channel's mic-cap backup on every
// transition.
type MicToggle struct {
	mu          sync.Mutex
	engaged     bool
	capPeriodNs int64
	limiter     *rate.Limiter
}

// NewMicToggle returns a MicToggle with the given cap rate in Hz (0
// disables capping entirely) and at most one engagement-state change
// accepted per debounce interval.
func NewMicToggle(capRateHz float64, debounce time.Duration) *MicToggle {
	var capPeriodNs int64
	if capRateHz > 0 {
		capPeriodNs = int64(time.Second / time.Duration(capRateHz))
	}
	limit := rate.Inf
	if debounce > 0 {
		limit = rate.Every(debounce)
	}
	return &MicToggle{
		capPeriodNs: capPeriodNs,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// SetEngaged attempts to change the engagement state, subject to the
// debounce limiter. Returns whether the state actually changed -- a
// rapid flap that the limiter rejects leaves the previous state in
// effect.
func (m *MicToggle) SetEngaged(engaged bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.engaged == engaged {
		return false
	}
	if !m.limiter.Allow() {
		return false
	}
	m.engaged = engaged
	return true
}

// Engaged reports whether the cap is currently in effect.
func (m *MicToggle) Engaged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engaged
}

// AdjustPeriod clamps periodNs to the configured cap when the toggle
// is engaged and the cap is tighter than the requested period.
// Returns periodNs unchanged when disengaged or uncapped.
func (m *MicToggle) AdjustPeriod(periodNs int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.engaged || m.capPeriodNs == 0 || periodNs >= m.capPeriodNs {
		return periodNs
	}
	return m.capPeriodNs
}
