// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hal

import (
	"context"

	"github.com/sensormux/sensord/lib/schema"
)

// Adapter is the hardware abstraction layer contract. All
// methods may return a *sensorerr.Error; Poll additionally returns a
// DeadObject kind when the underlying HAL connection has dropped.
type Adapter interface {
	// InitCheck reports whether the HAL is ready to serve requests.
	InitCheck() error

	// SensorList returns the static catalog of sensors the HAL
	// exposes at init. The registry classifies and imports these.
	SensorList() []schema.Sensor

	// Poll blocks until at least one event is available, ctx is
	// cancelled, or the HAL dies, then fills buf and returns the
	// number of events written (0 < n <= len(buf)).
	Poll(ctx context.Context, buf []schema.Event) (int, error)

	// Activate enables or disables delivery for handle.
	Activate(handle schema.Handle, enable bool) error

	// Batch configures sampling period and max batch latency for
	// handle. flags is reserved for HAL-specific batching options.
	Batch(handle schema.Handle, flags uint32, periodNs, latencyNs int64) error

	// Flush requests the HAL drain any hardware FIFO for handle.
	// Completion is signaled asynchronously via a META_DATA event
	// from Poll.
	Flush(handle schema.Handle) error

	// InjectSensorData delivers an externally-provided event as if it
	// came from the HAL. Valid only in a data-injection operating
	// mode.
	InjectSensorData(event schema.Event) error

	// SetMode transitions the HAL's injection posture. HalBypass
	// injection never reaches the HAL at all -- callers should not
	// invoke SetMode for that mode.
	SetMode(mode schema.OperatingModeKind) error

	// WriteWakeLockHandled informs the HAL that count wake-up events
	// from the most recent poll have been accounted for.
	WriteWakeLockHandled(count int) error

	// RegisterDirectChannel registers a shared-memory region
	// (identified by a duplicated file descriptor and its declared
	// size) for direct delivery, returning a HAL-assigned channel
	// token.
	RegisterDirectChannel(memoryFD int, size int64) (channelHandle int32, err error)

	// ConfigureDirectChannel sets or clears (rateLevel == 0) the rate
	// at which sensor events are delivered into channel.
	ConfigureDirectChannel(channel int32, sensor schema.Handle, rateLevel int32) error

	// UnregisterDirectChannel tears down a previously registered
	// direct channel.
	UnregisterDirectChannel(channel int32) error

	// HandleDynamicSensorConnection is invoked once when a dynamic
	// sensor is registered or deregistered in the registry, so the
	// HAL can track its own bookkeeping for that handle.
	HandleDynamicSensorConnection(handle schema.Handle, connected bool) error

	// IsReconnecting reports whether the HAL identifies itself as
	// mid-reconnect after a dead-object indication from Poll.
	IsReconnecting() bool

	// Reconnect re-establishes the HAL connection after a dead-object
	// indication has been handled by the reconnection protocol.
	Reconnect() error

	// GetDynamicSensorHandles returns every dynamic sensor handle
	// currently known to the HAL, used by the reconnection protocol
	// to emit synthetic disconnect events.
	GetDynamicSensorHandles() []schema.Handle

	// EnableAllSensors re-activates every sensor active before a
	// Restricted-mode transition.
	EnableAllSensors() error

	// DisableAllSensors deactivates every active sensor, used when
	// entering Restricted mode or reacting to sensor privacy.
	DisableAllSensors() error

	// SetUIDStateForConnection informs the HAL that the UID owning a
	// connection became active or idle, for HALs that apply their own
	// power gating.
	SetUIDStateForConnection(id schema.ConnectionID, active bool) error
}
