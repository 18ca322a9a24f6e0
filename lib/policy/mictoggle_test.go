// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"testing"
	"time"
)

func TestMicToggleCapsPeriodWhenEngaged(t *testing.T) {
	m := NewMicToggle(100, 0) // 100 Hz cap -> 10ms period
	m.SetEngaged(true)

	got := m.AdjustPeriod(1_000_000) // 1ms requested, faster than cap
	want := int64(time.Second / 100)
	if got != want {
		t.Fatalf("AdjustPeriod = %d, want %d", got, want)
	}
}

func TestMicToggleLeavesPeriodAloneWhenDisengaged(t *testing.T) {
	m := NewMicToggle(100, 0)
	got := m.AdjustPeriod(1_000_000)
	if got != 1_000_000 {
		t.Fatalf("AdjustPeriod = %d, want unchanged 1000000", got)
	}
}

func TestMicToggleZeroCapDisablesCapping(t *testing.T) {
	m := NewMicToggle(0, 0)
	m.SetEngaged(true)
	got := m.AdjustPeriod(1_000_000)
	if got != 1_000_000 {
		t.Fatalf("AdjustPeriod with zero cap = %d, want unchanged", got)
	}
}

func TestMicToggleDebounceRejectsRapidFlap(t *testing.T) {
	m := NewMicToggle(100, time.Hour)

	if !m.SetEngaged(true) {
		t.Fatal("first SetEngaged should succeed")
	}
	if m.SetEngaged(false) {
		t.Fatal("second SetEngaged within the debounce window should be rejected")
	}
	if !m.Engaged() {
		t.Fatal("state should remain engaged after a rejected flap")
	}
}

func TestMicToggleSameStateIsNoOp(t *testing.T) {
	m := NewMicToggle(100, time.Hour)
	if m.SetEngaged(false) {
		t.Fatal("setting to the already-current state should report no change")
	}
}
