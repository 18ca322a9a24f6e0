// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hal

import (
	"context"
	"sync"

	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

// Mock is a deterministic, in-memory [Adapter] for tests and local
// development. Test code pushes events with [Mock.Push]; Poll blocks
// until at least one is available or ctx is cancelled.
type Mock struct {
	mu sync.Mutex

	sensors []schema.Sensor
	pending []schema.Event
	notify  chan struct{}

	active      map[schema.Handle]bool
	periodNs    map[schema.Handle]int64
	latencyNs   map[schema.Handle]int64
	mode        schema.OperatingModeKind
	reconnectCt int
	dead        bool
	reconnectOK bool

	directChannels map[int32]bool
	nextChannel    int32

	wakeLockHandledCalls int
	wakeLockHandledTotal int

	// FailActivate, when set, causes Activate to fail for the named
	// handle -- used to test enable() unwind on HAL failure.
	FailActivate map[schema.Handle]bool
}

// NewMock returns a Mock exposing the given static sensor list.
func NewMock(sensors []schema.Sensor) *Mock {
	return &Mock{
		sensors:        sensors,
		notify:         make(chan struct{}, 1),
		active:         make(map[schema.Handle]bool),
		periodNs:       make(map[schema.Handle]int64),
		latencyNs:      make(map[schema.Handle]int64),
		directChannels: make(map[int32]bool),
		FailActivate:   make(map[schema.Handle]bool),
	}
}

// Push enqueues an event to be returned by a subsequent Poll.
func (m *Mock) Push(event schema.Event) {
	m.mu.Lock()
	m.pending = append(m.pending, event)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Kill marks the HAL as dead; the next Poll returns a DeadObject
// error. The reconnecting argument sets IsReconnecting's subsequent answer.
func (m *Mock) Kill(reconnecting bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = true
	m.reconnectOK = reconnecting
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Mock) InitCheck() error { return nil }

func (m *Mock) SensorList() []schema.Sensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schema.Sensor, len(m.sensors))
	copy(out, m.sensors)
	return out
}

func (m *Mock) Poll(ctx context.Context, buf []schema.Event) (int, error) {
	for {
		m.mu.Lock()
		if m.dead {
			m.mu.Unlock()
			return 0, sensorerr.New(sensorerr.DeadObject, "hal.poll", "hal connection lost")
		}
		if len(m.pending) > 0 {
			n := copy(buf, m.pending)
			m.pending = m.pending[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-m.notify:
		}
	}
}

func (m *Mock) Activate(handle schema.Handle, enable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enable && m.FailActivate[handle] {
		return sensorerr.New(sensorerr.TransactionFailed, "hal.activate", "simulated failure")
	}
	m.active[handle] = enable
	return nil
}

func (m *Mock) Batch(handle schema.Handle, flags uint32, periodNs, latencyNs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periodNs[handle] = periodNs
	m.latencyNs[handle] = latencyNs
	return nil
}

func (m *Mock) Flush(handle schema.Handle) error {
	m.Push(schema.Event{
		Version: schema.EventVersion,
		Kind:    schema.EventMetaData,
		Meta:    &schema.MetaPayload{Handle: handle},
	})
	return nil
}

func (m *Mock) InjectSensorData(event schema.Event) error {
	m.Push(event)
	return nil
}

func (m *Mock) SetMode(mode schema.OperatingModeKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	return nil
}

func (m *Mock) WriteWakeLockHandled(count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wakeLockHandledCalls++
	m.wakeLockHandledTotal += count
	return nil
}

// WakeLockHandledCalls reports how many times WriteWakeLockHandled
// was invoked and the running sum of its count arguments, for test
// assertions.
func (m *Mock) WakeLockHandledCalls() (calls, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wakeLockHandledCalls, m.wakeLockHandledTotal
}

func (m *Mock) RegisterDirectChannel(memoryFD int, size int64) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextChannel++
	m.directChannels[m.nextChannel] = true
	return m.nextChannel, nil
}

func (m *Mock) ConfigureDirectChannel(channel int32, sensor schema.Handle, rateLevel int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.directChannels[channel] {
		return sensorerr.New(sensorerr.BadValue, "hal.configure_direct_channel", "unknown channel")
	}
	return nil
}

func (m *Mock) UnregisterDirectChannel(channel int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.directChannels, channel)
	return nil
}

func (m *Mock) HandleDynamicSensorConnection(handle schema.Handle, connected bool) error {
	return nil
}

func (m *Mock) IsReconnecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dead && m.reconnectOK
}

func (m *Mock) Reconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = false
	m.reconnectCt++
	return nil
}

func (m *Mock) GetDynamicSensorHandles() []schema.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schema.Handle
	for _, s := range m.sensors {
		if s.IsDynamic() {
			out = append(out, s.Handle)
		}
	}
	return out
}

func (m *Mock) EnableAllSensors() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.active {
		m.active[h] = true
	}
	return nil
}

func (m *Mock) DisableAllSensors() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.active {
		m.active[h] = false
	}
	return nil
}

func (m *Mock) SetUIDStateForConnection(id schema.ConnectionID, active bool) error { return nil }

// ReconnectCount returns how many times Reconnect has been called --
// used by reconnection-protocol tests.
func (m *Mock) ReconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectCt
}

// IsActive reports whether handle is currently activated, for test
// assertions.
func (m *Mock) IsActive(handle schema.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[handle]
}
