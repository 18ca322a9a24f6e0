// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sensormux/sensord/lib/clock"
	"github.com/sensormux/sensord/lib/config"
	"github.com/sensormux/sensord/lib/hal"
	"github.com/sensormux/sensord/lib/policy"
	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
	"github.com/sensormux/sensord/lib/testutil"
)

const (
	accelHandle schema.Handle = 1
	gyroHandle  schema.Handle = 2
	magHandle   schema.Handle = 3
	lightHandle schema.Handle = 4
	proxHandle  schema.Handle = 5
)

func testSensors() []schema.Sensor {
	return []schema.Sensor{
		{Handle: accelHandle, Type: schema.TypeAccelerometer, Name: "Accelerometer",
			MinDelayNs: 10_000_000, ReportingMode: schema.ReportingContinuous},
		{Handle: gyroHandle, Type: schema.TypeGyroscope, Name: "Gyroscope",
			MinDelayNs: 10_000_000, ReportingMode: schema.ReportingContinuous},
		{Handle: magHandle, Type: schema.TypeMagnetometer, Name: "Magnetometer",
			MinDelayNs: 20_000_000, ReportingMode: schema.ReportingContinuous},
		{Handle: lightHandle, Type: schema.TypeLight, Name: "Light",
			ReportingMode: schema.ReportingOnChange},
		{Handle: proxHandle, Type: schema.TypeProximity, Name: "Proximity",
			ReportingMode: schema.ReportingOnChange, Flags: schema.FlagWakeUp},
	}
}

// recordingSink collects delivered events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []schema.Event
}

func (s *recordingSink) SendEvent(event schema.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) drain() []schema.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, mutate func(*config.Config)) (*Service, *hal.Mock, *policy.StaticPackageManager) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.State = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	pm := policy.NewStaticPackageManager()
	pm.UIDs["com.test"] = 10001
	pm.UIDs["com.other"] = 10002
	pm.TargetSDKs["com.test"] = 34
	pm.TargetSDKs["com.other"] = 34

	mock := hal.NewMock(testSensors())
	svc, err := New(cfg, Deps{
		HAL:      mock,
		Packages: pm,
		AppOps:   pm,
		Clock:    clock.Fake(time.Unix(1_700_000_000, 0)),
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	t.Cleanup(svc.Close)
	svc.initialized.Store(true)
	return svc, mock, pm
}

func TestVirtualSensorSynthesis(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	// Accel+gyro+mag with no fusion sensors in the HAL catalog means
	// the full set is synthesized.
	for _, want := range []schema.Type{
		schema.TypeRotationVector,
		schema.TypeGravity,
		schema.TypeLinearAcceleration,
		schema.TypeGameRotationVector,
	} {
		if !svc.activeVirtual[want] {
			t.Errorf("virtual type %d not synthesized", int32(want))
		}
		handle, ok := svc.virtualHandles[want]
		if !ok {
			t.Errorf("no handle for virtual type %d", int32(want))
			continue
		}
		sensor, found := svc.registry.Lookup(handle)
		if !found || !sensor.Virtual {
			t.Errorf("registry entry for virtual type %d missing or not marked virtual", int32(want))
		}
	}
	if svc.activeVirtual[schema.TypeLimitedAxesAccelerometer] {
		t.Error("limited-axes family synthesized without automotive mode")
	}
	if svc.dynamicMeta == 0 {
		t.Error("no meta-sensor handle reserved")
	}
}

func TestVirtualSensorSynthesisAutomotive(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *config.Config) {
		cfg.Policy.Automotive = true
	})
	for _, want := range []schema.Type{
		schema.TypeLimitedAxesAccelerometer,
		schema.TypeLimitedAxesGyroscope,
		schema.TypeLimitedAxesMagnetometer,
	} {
		if !svc.activeVirtual[want] {
			t.Errorf("automotive virtual type %d not synthesized", int32(want))
		}
	}
}

// After the last subscriber leaves an on-change sensor, its
// active record is destroyed and the recent event marked stale; the
// next subscriber gets no replayed value.
func TestOnChangeNoReplayAfterTeardown(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	sinkA := &recordingSink{}
	connA, err := svc.OpenEventConnection("com.test", 10001, sinkA)
	if err != nil {
		t.Fatalf("open A: %v", err)
	}
	if err := connA.Enable(lightHandle, 0, 0); err != nil {
		t.Fatalf("enable A: %v", err)
	}

	// A light value arrives while A is subscribed.
	svc.recentLog.Record(schema.Event{
		Version: schema.EventVersion, SensorHandle: lightHandle,
		SensorType: schema.TypeLight, Kind: schema.EventData, TimestampNs: 100,
	})

	if err := connA.Disable(lightHandle); err != nil {
		t.Fatalf("disable A: %v", err)
	}
	svc.CloseEventConnection(connA)

	sinkB := &recordingSink{}
	connB, err := svc.OpenEventConnection("com.other", 10002, sinkB)
	if err != nil {
		t.Fatalf("open B: %v", err)
	}
	if err := connB.Enable(lightHandle, 0, 0); err != nil {
		t.Fatalf("enable B: %v", err)
	}
	if events := sinkB.drain(); len(events) != 0 {
		t.Errorf("B should get no replayed value after record teardown, got %d events", len(events))
	}
}

// The counterpart: while the record survives, a second subscriber
// does get the replay (property 6).
func TestOnChangeReplayWhileRecordLive(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	sinkA := &recordingSink{}
	connA, err := svc.OpenEventConnection("com.test", 10001, sinkA)
	if err != nil {
		t.Fatalf("open A: %v", err)
	}
	if err := connA.Enable(lightHandle, 0, 0); err != nil {
		t.Fatalf("enable A: %v", err)
	}
	svc.recentLog.Record(schema.Event{
		Version: schema.EventVersion, SensorHandle: lightHandle,
		SensorType: schema.TypeLight, Kind: schema.EventData, TimestampNs: 42,
	})

	sinkB := &recordingSink{}
	connB, err := svc.OpenEventConnection("com.other", 10002, sinkB)
	if err != nil {
		t.Fatalf("open B: %v", err)
	}
	if err := connB.Enable(lightHandle, 0, 0); err != nil {
		t.Fatalf("enable B: %v", err)
	}
	events := sinkB.drain()
	if len(events) != 1 || events[0].TimestampNs != 42 {
		t.Fatalf("B should get exactly the replayed value, got %#v", events)
	}
}

func openTestDirectChannel(t *testing.T, svc *Service, pkg string, uid int32) schema.ConnectionID {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shm")
	if err := os.WriteFile(path, make([]byte, 4096), 0o600); err != nil {
		t.Fatalf("shm file: %v", err)
	}
	id, err := svc.OpenDirectChannel(pkg, uid, 0, path, 4096)
	if err != nil {
		t.Fatalf("open direct channel: %v", err)
	}
	return id
}

// Entering Restricted pauses direct channels with their rates
// saved, rejects enables from non-allowlisted packages with
// InvalidOperation, and returning to Normal restores the saved rates.
func TestRestrictedModeGatesAndPauses(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	id := openTestDirectChannel(t, svc, "com.other", 10002)
	if err := svc.ConfigureDirectChannel(id, accelHandle, 3); err != nil {
		t.Fatalf("configure: %v", err)
	}

	// The client connects before restriction lands.
	sink := &recordingSink{}
	conn, err := svc.OpenEventConnection("com.other", 10002, sink)
	if err != nil {
		t.Fatalf("open connection: %v", err)
	}

	if err := svc.SetOperatingMode(schema.ModeRestricted, []string{"com.test"}); err != nil {
		t.Fatalf("enter restricted: %v", err)
	}

	err = conn.Enable(accelHandle, 20_000_000, 0)
	if err == nil {
		t.Fatal("enable from non-allowlisted package should fail in Restricted")
	}
	if sensorerr.KindOf(err) != sensorerr.InvalidOperation {
		t.Errorf("want InvalidOperation, got %s", sensorerr.KindOf(err))
	}

	svc.mu.Lock()
	dc := svc.direct[id]
	svc.mu.Unlock()
	rates, paused, _ := dc.conn.DumpState()
	if !paused {
		t.Error("direct channel should be paused in Restricted")
	}
	if len(rates) != 0 {
		t.Errorf("live rates should be cleared while paused, got %v", rates)
	}

	if err := svc.SetOperatingMode(schema.ModeNormal, nil); err != nil {
		t.Fatalf("back to normal: %v", err)
	}
	rates, paused, _ = dc.conn.DumpState()
	if paused {
		t.Error("direct channel should resume on return to Normal")
	}
	if rates[accelHandle] != 3 {
		t.Errorf("rate should restore to 3, got %v", rates)
	}
}

func TestDataInjectionConnectionGate(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	if err := svc.SetOperatingMode(schema.ModeDataInjection, []string{"com.test"}); err != nil {
		t.Fatalf("enter data injection: %v", err)
	}

	if _, err := svc.OpenEventConnection("com.other", 10002, &recordingSink{}); err == nil {
		t.Fatal("non-allowlisted connection should be rejected in DataInjection")
	} else if sensorerr.KindOf(err) != sensorerr.PermissionDenied {
		t.Errorf("want PermissionDenied, got %s", sensorerr.KindOf(err))
	}

	if _, err := svc.OpenEventConnection("com.test", 10001, &recordingSink{}); err != nil {
		t.Fatalf("allowlisted connection should be admitted: %v", err)
	}
}

func TestUIDIdlePausesDirectChannels(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	id := openTestDirectChannel(t, svc, "com.test", 10001)
	if err := svc.ConfigureDirectChannel(id, accelHandle, 2); err != nil {
		t.Fatalf("configure: %v", err)
	}

	if err := svc.SetUIDState("com.test", 0, false); err != nil {
		t.Fatalf("set idle: %v", err)
	}
	svc.mu.Lock()
	dc := svc.direct[id]
	svc.mu.Unlock()
	if _, paused, _ := dc.conn.DumpState(); !paused {
		t.Fatal("direct channel should pause when its UID goes idle")
	}

	if err := svc.SetUIDState("com.test", 0, true); err != nil {
		t.Fatalf("set active: %v", err)
	}
	rates, paused, _ := dc.conn.DumpState()
	if paused || rates[accelHandle] != 2 {
		t.Errorf("rates should restore on active, got paused=%v rates=%v", paused, rates)
	}

	if err := svc.SetUIDState("com.missing", 0, false); err == nil {
		t.Error("unknown package should error")
	}
}

func TestMicToggleCapsDirectChannels(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *config.Config) {
		cfg.Policy.MicToggleRateCapHz = 200
	})

	id := openTestDirectChannel(t, svc, "com.test", 10001)
	if err := svc.ConfigureDirectChannel(id, accelHandle, 3); err != nil {
		t.Fatalf("configure: %v", err)
	}

	svc.SetMicToggle(true)
	svc.mu.Lock()
	dc := svc.direct[id]
	svc.mu.Unlock()
	rates, _, micCapped := dc.conn.DumpState()
	if !micCapped || rates[accelHandle] != micCapRateLevel {
		t.Fatalf("rate should cap to %d while engaged, got capped=%v rates=%v", micCapRateLevel, micCapped, rates)
	}

	// New configurations while engaged are clamped too.
	if err := svc.ConfigureDirectChannel(id, gyroHandle, 3); err != nil {
		t.Fatalf("configure while capped: %v", err)
	}
	rates, _, _ = dc.conn.DumpState()
	if rates[gyroHandle] != micCapRateLevel {
		t.Errorf("new rate while capped should clamp, got %v", rates)
	}

	// An immediate release is within the debounce window and ignored;
	// the cap stays applied rather than thrashing the backups.
	svc.SetMicToggle(false)
	if _, _, micCapped := dc.conn.DumpState(); !micCapped {
		t.Error("debounced release should leave the cap in place")
	}
}

func TestSensorPrivacyPausesDirectChannels(t *testing.T) {
	svc, mock, _ := newTestService(t, nil)

	sink := &recordingSink{}
	conn, err := svc.OpenEventConnection("com.test", 10001, sink)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.Enable(accelHandle, 20_000_000, 0); err != nil {
		t.Fatalf("enable: %v", err)
	}
	id := openTestDirectChannel(t, svc, "com.test", 10001)
	if err := svc.ConfigureDirectChannel(id, accelHandle, 2); err != nil {
		t.Fatalf("configure: %v", err)
	}

	svc.SetSensorPrivacy(true)
	svc.mu.Lock()
	dc := svc.direct[id]
	svc.mu.Unlock()
	waitFor(t, func() bool {
		_, paused, _ := dc.conn.DumpState()
		return paused && !mock.IsActive(accelHandle)
	}, "privacy should disable sensors and pause direct channels")

	svc.SetSensorPrivacy(false)
	waitFor(t, func() bool {
		_, paused, _ := dc.conn.DumpState()
		return !paused && mock.IsActive(accelHandle)
	}, "privacy release should re-enable sensors and resume channels")
}

// waitFor polls cond until it holds or the deadline passes. The
// privacy mirror delivers on its own worker goroutine, so these
// assertions are inherently asynchronous.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestProximityListenerFollowsSubscription(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	transitions := make(chan bool, 4)
	if err := svc.AddProximityListener("display", func(active bool) { transitions <- active }); err != nil {
		t.Fatalf("add listener: %v", err)
	}

	sink := &recordingSink{}
	conn, err := svc.OpenEventConnection("com.test", 10001, sink)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.Enable(proxHandle, 0, 0); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if v := testutil.RequireReceive(t, transitions, 5*time.Second, "activation"); !v {
		t.Error("first transition should be active")
	}

	if err := conn.Disable(proxHandle); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if v := testutil.RequireReceive(t, transitions, 5*time.Second, "deactivation"); v {
		t.Error("second transition should be inactive")
	}

	if err := svc.RemoveProximityListener("display"); err != nil {
		t.Errorf("remove listener: %v", err)
	}
}

func TestOpenDirectChannelSizeMismatch(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	path := filepath.Join(t.TempDir(), "shm")
	if err := os.WriteFile(path, make([]byte, 1024), 0o600); err != nil {
		t.Fatalf("shm file: %v", err)
	}
	_, err := svc.OpenDirectChannel("com.test", 10001, 0, path, 4096)
	if err == nil {
		t.Fatal("undersized shared memory should be rejected")
	}
	if sensorerr.KindOf(err) != sensorerr.BadValue {
		t.Errorf("want BadValue, got %s", sensorerr.KindOf(err))
	}
}

func TestOpenDirectChannelRuntimeDeviceRequiresCallback(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	path := filepath.Join(t.TempDir(), "shm")
	if err := os.WriteFile(path, make([]byte, 4096), 0o600); err != nil {
		t.Fatalf("shm file: %v", err)
	}
	_, err := svc.OpenDirectChannel("com.test", 10001, 7, path, 4096)
	if sensorerr.KindOf(err) != sensorerr.Unsupported {
		t.Fatalf("want Unsupported for unregistered runtime device, got %v", err)
	}
}

func TestInjectEventRequiresInjectionMode(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	err := svc.InjectEvent(schema.Event{
		Version: schema.EventVersion, SensorHandle: accelHandle,
		SensorType: schema.TypeAccelerometer, Kind: schema.EventData,
	})
	if sensorerr.KindOf(err) != sensorerr.InvalidOperation {
		t.Fatalf("injection outside an injection mode should be InvalidOperation, got %v", err)
	}
}

func TestAddRuntimeSensorAllocatesFromRuntimeRange(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	if err := svc.RegisterRuntimeDevice(7, &fakeRuntimeCallback{}); err != nil {
		t.Fatalf("register device: %v", err)
	}
	if err := svc.RegisterRuntimeDevice(7, &fakeRuntimeCallback{}); sensorerr.KindOf(err) != sensorerr.AlreadyExists {
		t.Errorf("duplicate device registration should be AlreadyExists, got %v", err)
	}

	handle, err := svc.AddRuntimeSensor(schema.Sensor{
		Type: schema.TypeHeadTracker, Name: "Remote Head Tracker",
		ReportingMode: schema.ReportingContinuous,
	}, 7)
	if err != nil {
		t.Fatalf("add runtime sensor: %v", err)
	}
	if handle < schema.RuntimeHandleBase || handle >= schema.RuntimeHandleEnd {
		t.Errorf("runtime handle %#x outside runtime range", uint32(handle))
	}
	sensor, ok := svc.registry.Lookup(handle)
	if !ok || sensor.DeviceID != 7 {
		t.Errorf("runtime sensor not registered with device id, got %+v ok=%v", sensor, ok)
	}
}

type fakeRuntimeCallback struct {
	mu       sync.Mutex
	channels map[int32]map[schema.Handle]int32
	next     int32
}

func (f *fakeRuntimeCallback) RegisterDirectChannel(memoryFD int, size int64) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channels == nil {
		f.channels = make(map[int32]map[schema.Handle]int32)
	}
	f.next++
	f.channels[f.next] = make(map[schema.Handle]int32)
	return f.next, nil
}

func (f *fakeRuntimeCallback) ConfigureDirectChannel(channel int32, sensor schema.Handle, rateLevel int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rateLevel == 0 {
		delete(f.channels[channel], sensor)
	} else {
		f.channels[channel][sensor] = rateLevel
	}
	return nil
}

func (f *fakeRuntimeCallback) UnregisterDirectChannel(channel int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channel)
	return nil
}

func TestDirectChannelRoutesToRuntimeCallback(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	cb := &fakeRuntimeCallback{}
	if err := svc.RegisterRuntimeDevice(7, cb); err != nil {
		t.Fatalf("register device: %v", err)
	}
	path := filepath.Join(t.TempDir(), "shm")
	if err := os.WriteFile(path, make([]byte, 4096), 0o600); err != nil {
		t.Fatalf("shm file: %v", err)
	}
	id, err := svc.OpenDirectChannel("com.test", 10001, 7, path, 4096)
	if err != nil {
		t.Fatalf("open direct: %v", err)
	}
	if err := svc.ConfigureDirectChannel(id, accelHandle, 2); err != nil {
		t.Fatalf("configure: %v", err)
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.channels) != 1 {
		t.Fatalf("runtime callback should own the channel, got %v", cb.channels)
	}
	for _, rates := range cb.channels {
		if rates[accelHandle] != 2 {
			t.Errorf("rate should reach the runtime callback, got %v", rates)
		}
	}
}
