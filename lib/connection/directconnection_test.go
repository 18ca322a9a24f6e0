// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"testing"

	"github.com/sensormux/sensord/lib/hal"
)

func TestDirectConnectionRegisterAndConfigure(t *testing.T) {
	mock := hal.NewMock(nil)
	dc, err := NewDirectConnection(1, "com.example.app", 0, 5, 4096, mock)
	if err != nil {
		t.Fatalf("NewDirectConnection error = %v", err)
	}
	if err := dc.ConfigureRate(testAccel, 3); err != nil {
		t.Fatalf("ConfigureRate error = %v", err)
	}
	if dc.record.PerSensorRate[testAccel] != 3 {
		t.Errorf("PerSensorRate[testAccel] = %d, want 3", dc.record.PerSensorRate[testAccel])
	}
}

func TestDirectConnectionPauseResume(t *testing.T) {
	mock := hal.NewMock(nil)
	dc, _ := NewDirectConnection(1, "com.example.app", 0, 5, 4096, mock)
	_ = dc.ConfigureRate(testAccel, 3)

	if err := dc.Pause(); err != nil {
		t.Fatalf("Pause error = %v", err)
	}
	if len(dc.record.PerSensorRate) != 0 {
		t.Error("rates should be zeroed while paused")
	}
	if !dc.record.Paused() {
		t.Error("record should report Paused()")
	}

	if err := dc.Resume(); err != nil {
		t.Fatalf("Resume error = %v", err)
	}
	if dc.record.PerSensorRate[testAccel] != 3 {
		t.Errorf("rate not restored after Resume: %v", dc.record.PerSensorRate)
	}
	if dc.record.Paused() {
		t.Error("record should not report Paused() after Resume")
	}
}

func TestDirectConnectionMicCapIndependentOfPause(t *testing.T) {
	mock := hal.NewMock(nil)
	dc, _ := NewDirectConnection(1, "com.example.app", 0, 5, 4096, mock)
	_ = dc.ConfigureRate(testAccel, 5)

	if err := dc.ApplyMicCap(2); err != nil {
		t.Fatalf("ApplyMicCap error = %v", err)
	}
	if dc.record.PerSensorRate[testAccel] != 2 {
		t.Errorf("rate after mic cap = %d, want 2", dc.record.PerSensorRate[testAccel])
	}

	if err := dc.Pause(); err != nil {
		t.Fatalf("Pause error = %v", err)
	}
	if !dc.record.MicCapped() {
		t.Error("mic cap backup should survive a pause")
	}

	if err := dc.Resume(); err != nil {
		t.Fatalf("Resume error = %v", err)
	}
	// Resume restores the mic-capped rate (2), not the pre-cap rate (5):
	// the two backups compose independently rather than stacking.
	if dc.record.PerSensorRate[testAccel] != 2 {
		t.Errorf("rate after resume = %d, want 2 (mic cap still engaged)", dc.record.PerSensorRate[testAccel])
	}

	if err := dc.ReleaseMicCap(); err != nil {
		t.Fatalf("ReleaseMicCap error = %v", err)
	}
	if dc.record.PerSensorRate[testAccel] != 5 {
		t.Errorf("rate after releasing mic cap = %d, want 5", dc.record.PerSensorRate[testAccel])
	}
}

func TestDirectConnectionDestroy(t *testing.T) {
	mock := hal.NewMock(nil)
	dc, _ := NewDirectConnection(1, "com.example.app", 0, 5, 4096, mock)
	if err := dc.Destroy(); err != nil {
		t.Fatalf("Destroy error = %v", err)
	}
}
