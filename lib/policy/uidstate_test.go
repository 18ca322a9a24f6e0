// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "testing"

func TestUIDActivityDefaultActive(t *testing.T) {
	u := NewUIDActivity()
	if !u.IsActive(500) {
		t.Error("unknown UID should default to active")
	}
}

func TestUIDActivitySetIdleAndActive(t *testing.T) {
	u := NewUIDActivity()
	u.SetIdle(500)
	if u.IsActive(500) {
		t.Error("UID should be idle after SetIdle")
	}
	u.SetActive(500)
	if !u.IsActive(500) {
		t.Error("UID should be active after SetActive")
	}
}

func TestUIDActivityReset(t *testing.T) {
	u := NewUIDActivity()
	u.SetIdle(500)
	u.Reset(500)
	if !u.IsActive(500) {
		t.Error("UID should be active after Reset")
	}
}
