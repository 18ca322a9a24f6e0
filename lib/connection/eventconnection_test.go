// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"testing"

	"github.com/sensormux/sensord/lib/hal"
	"github.com/sensormux/sensord/lib/policy"
	"github.com/sensormux/sensord/lib/recentlog"
	"github.com/sensormux/sensord/lib/registry"
	"github.com/sensormux/sensord/lib/ring"
	"github.com/sensormux/sensord/lib/schema"
)

type fakeSink struct {
	events []schema.Event
}

func (f *fakeSink) SendEvent(event schema.Event) error {
	f.events = append(f.events, event)
	return nil
}

func newTestDeps(sensors []schema.Sensor) (*hal.Mock, EventConnectionDeps) {
	mock := hal.NewMock(sensors)
	reg := registry.New()
	for _, s := range sensors {
		reg.Add(s)
	}
	pm := policy.NewStaticPackageManager()
	access := policy.NewAccess(pm, pm, nil)
	return mock, EventConnectionDeps{
		HAL:     mock,
		Reg:     reg,
		Records: NewRecordTable(),
		Access:  access,
		Log:     recentlog.New(),
		Ring:    ring.New(16),
	}
}

const testAccel = schema.Handle(1)

func testAccelSensor() schema.Sensor {
	return schema.Sensor{
		Handle: testAccel, Type: schema.TypeAccelerometer, Name: "accel",
		MinDelayNs: 1_000_000, MaxDelayNs: 1_000_000_000, ReportingMode: schema.ReportingContinuous,
	}
}

func TestEnableActivatesSensorOnHAL(t *testing.T) {
	mock, deps := newTestDeps([]schema.Sensor{testAccelSensor()})
	sink := &fakeSink{}
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, sink)

	if err := conn.Enable(testAccel, 10_000_000, 0); err != nil {
		t.Fatalf("Enable error = %v", err)
	}
	if !mock.IsActive(testAccel) {
		t.Error("sensor should be active on HAL after Enable")
	}
	entries := deps.Ring.Entries()
	if len(entries) != 1 || !entries[0].Success() {
		t.Errorf("ring entries = %+v, want one successful entry", entries)
	}
}

func TestEnableUnknownHandle(t *testing.T) {
	_, deps := newTestDeps([]schema.Sensor{testAccelSensor()})
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, &fakeSink{})

	if err := conn.Enable(schema.Handle(999), 10_000_000, 0); err == nil {
		t.Fatal("expected error for unknown handle")
	}
}

func TestDisableDeactivatesSensorWhenLastSubscriberLeaves(t *testing.T) {
	mock, deps := newTestDeps([]schema.Sensor{testAccelSensor()})
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, &fakeSink{})
	_ = conn.Enable(testAccel, 10_000_000, 0)

	if err := conn.Disable(testAccel); err != nil {
		t.Fatalf("Disable error = %v", err)
	}
	if mock.IsActive(testAccel) {
		t.Error("sensor should be deactivated on HAL after last subscriber leaves")
	}
}

func TestDisableNotSubscribed(t *testing.T) {
	_, deps := newTestDeps([]schema.Sensor{testAccelSensor()})
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, &fakeSink{})

	if err := conn.Disable(testAccel); err == nil {
		t.Fatal("expected error disabling an unsubscribed handle")
	}
}

func TestOnChangeReplayOnSecondSubscriber(t *testing.T) {
	onChange := schema.Sensor{
		Handle: 2, Type: schema.TypeProximity, Name: "proximity", ReportingMode: schema.ReportingOnChange,
		MaxDelayNs: 1_000_000_000,
	}
	mock, deps := newTestDeps([]schema.Sensor{onChange})
	conn1 := NewEventConnection(1, "com.example.app1", 10000, false, deps, &fakeSink{})
	_ = conn1.Enable(onChange.Handle, 0, 0)

	deps.Log.Record(schema.Event{SensorHandle: onChange.Handle, Kind: schema.EventData, TimestampNs: 42})

	sink2 := &fakeSink{}
	conn2 := NewEventConnection(2, "com.example.app2", 10001, false, deps, sink2)
	if err := conn2.Enable(onChange.Handle, 0, 0); err != nil {
		t.Fatalf("Enable error = %v", err)
	}
	if len(sink2.events) != 1 || sink2.events[0].TimestampNs != 42 {
		t.Fatalf("sink2.events = %+v, want replay of last value", sink2.events)
	}
	_ = mock
}

// Replaying a wake-up sensor's cached value must acquire the
// service-global wakelock before the refcount is charged, so the ack
// timeout recovery is armed for the replayed event too.
func TestOnChangeReplayOfWakeSensorAcquiresWakelock(t *testing.T) {
	wakeOnChange := schema.Sensor{
		Handle: 3, Type: schema.TypeProximity, Name: "proximity", ReportingMode: schema.ReportingOnChange,
		Flags: schema.FlagWakeUp, MaxDelayNs: 1_000_000_000,
	}
	_, deps := newTestDeps([]schema.Sensor{wakeOnChange})
	acquired := 0
	deps.AcquireWakelock = func() { acquired++ }

	conn1 := NewEventConnection(1, "com.example.app1", 10000, false, deps, &fakeSink{})
	if err := conn1.Enable(wakeOnChange.Handle, 0, 0); err != nil {
		t.Fatalf("Enable conn1: %v", err)
	}
	deps.Log.Record(schema.Event{
		SensorHandle: wakeOnChange.Handle, Kind: schema.EventData,
		TimestampNs: 7, Flags: schema.FlagWakeUpNeedsAck,
	})
	if acquired != 0 {
		t.Fatalf("no replay yet, acquired = %d", acquired)
	}

	conn2 := NewEventConnection(2, "com.example.app2", 10001, false, deps, &fakeSink{})
	if err := conn2.Enable(wakeOnChange.Handle, 0, 0); err != nil {
		t.Fatalf("Enable conn2: %v", err)
	}
	if acquired != 1 {
		t.Errorf("wakelock acquire calls = %d, want 1", acquired)
	}
	if !conn2.NeedsWakelock() {
		t.Error("replayed wake event should charge conn2's refcount")
	}
}

func TestSendEventsFiltersBySubscription(t *testing.T) {
	_, deps := newTestDeps([]schema.Sensor{testAccelSensor()})
	sink := &fakeSink{}
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, sink)
	_ = conn.Enable(testAccel, 10_000_000, 0)

	conn.SendEvents([]schema.Event{
		{SensorHandle: testAccel, Kind: schema.EventData, TimestampNs: 1},
		{SensorHandle: schema.Handle(999), Kind: schema.EventData, TimestampNs: 2},
	})
	if len(sink.events) != 1 {
		t.Fatalf("sink.events = %+v, want exactly the subscribed-handle event", sink.events)
	}
}

func TestSendEventsAutoDisablesOneShot(t *testing.T) {
	oneShot := schema.Sensor{Handle: 3, Type: schema.TypeStepDetector, Name: "significant-motion", ReportingMode: schema.ReportingOneShot}
	mock, deps := newTestDeps([]schema.Sensor{oneShot})
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, &fakeSink{})
	_ = conn.Enable(oneShot.Handle, 0, 0)

	conn.SendEvents([]schema.Event{{SensorHandle: oneShot.Handle, Kind: schema.EventData}})

	if err := conn.Disable(oneShot.Handle); err == nil {
		t.Fatal("one-shot sensor should already be auto-disabled after its event")
	}
	if mock.IsActive(oneShot.Handle) {
		t.Error("one-shot sensor should be deactivated on HAL after firing")
	}
}

func TestSendEventsChargesWakelockForWakeUpEvents(t *testing.T) {
	wakeUp := schema.Sensor{Handle: 4, Type: schema.TypeProximity, Name: "proximity", Flags: schema.FlagWakeUp, ReportingMode: schema.ReportingOnChange}
	_, deps := newTestDeps([]schema.Sensor{wakeUp})
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, &fakeSink{})
	_ = conn.Enable(wakeUp.Handle, 0, 0)

	if conn.NeedsWakelock() {
		t.Fatal("should not need wakelock before any wake event delivered")
	}
	conn.SendEvents([]schema.Event{{SensorHandle: wakeUp.Handle, Kind: schema.EventData, Flags: schema.FlagWakeUpNeedsAck}})
	if !conn.NeedsWakelock() {
		t.Fatal("should need wakelock after a wake-up event is delivered")
	}
	conn.Ack()
	if conn.NeedsWakelock() {
		t.Fatal("should not need wakelock after Ack")
	}
}

func TestForceClearWakelock(t *testing.T) {
	wakeUp := schema.Sensor{Handle: 4, Type: schema.TypeProximity, Flags: schema.FlagWakeUp, ReportingMode: schema.ReportingOnChange}
	_, deps := newTestDeps([]schema.Sensor{wakeUp})
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, &fakeSink{})
	_ = conn.Enable(wakeUp.Handle, 0, 0)
	conn.SendEvents([]schema.Event{{SensorHandle: wakeUp.Handle, Flags: schema.FlagWakeUpNeedsAck}})
	conn.SendEvents([]schema.Event{{SensorHandle: wakeUp.Handle, Flags: schema.FlagWakeUpNeedsAck}})

	conn.ForceClearWakelock()
	if conn.NeedsWakelock() {
		t.Fatal("ForceClearWakelock should zero the refcount regardless of how many acks are outstanding")
	}
}

func TestDestroyIsIdempotentAndDeactivates(t *testing.T) {
	mock, deps := newTestDeps([]schema.Sensor{testAccelSensor()})
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, &fakeSink{})
	_ = conn.Enable(testAccel, 10_000_000, 0)

	conn.Destroy()
	if mock.IsActive(testAccel) {
		t.Error("sensor should be deactivated after Destroy")
	}
	conn.Destroy() // must not panic or double-unwind
}

func TestEnableUnwindsOnActivateFailure(t *testing.T) {
	mock, deps := newTestDeps([]schema.Sensor{testAccelSensor()})
	mock.FailActivate[testAccel] = true
	conn := NewEventConnection(1, "com.example.app", 10000, false, deps, &fakeSink{})

	if err := conn.Enable(testAccel, 10_000_000, 0); err == nil {
		t.Fatal("expected error when hal.activate fails")
	}
	if _, ok := deps.Records.Get(testAccel); ok {
		t.Error("record should be unwound after activate failure")
	}
	entries := deps.Ring.Entries()
	if len(entries) != 1 || entries[0].Success() {
		t.Errorf("ring entry should record the failure: %+v", entries)
	}
}
