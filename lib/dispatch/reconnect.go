// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"

	"github.com/sensormux/sensord/lib/schema"
)

// runReconnection implements the HAL reconnection protocol: emit a synthetic disconnect for every dynamic sensor the HAL
// still thinks is attached, deregister each, broadcast the
// disconnects, then ask the HAL to reconnect. The fusion engine's
// accumulated state is reset since stale samples from before the gap
// would otherwise produce a discontinuous jump in the next orientation
// estimate.
func (l *Loop) runReconnection(ctx context.Context) {
	l.logger.Warn("hal reported dead object while reconnecting, running reconnection protocol")

	for _, handle := range l.hal.GetDynamicSensorHandles() {
		l.unregisterDynamicSensor(handle)
	}

	l.fusion.Reset()

	if err := l.hal.Reconnect(); err != nil {
		l.logger.Error("hal.reconnect failed", "error", err)
		return
	}
	l.logger.Info("hal reconnected")
}

// synthesizeDisconnect builds the DYNAMIC_SENSOR_META(connected=false)
// event unregisterDynamicSensor broadcasts, stamped with the
// designated meta-sensor handle discovered at init.
func (l *Loop) synthesizeDisconnect(handle schema.Handle) schema.Event {
	return schema.Event{
		Version:       schema.EventVersion,
		SensorHandle:  l.dynamicMetaHandle,
		Kind:          schema.EventDynamicSensorMeta,
		TimestampNs:   l.clock.Now().UnixNano(),
		DynamicSensor: &schema.DynamicSensorPayload{Connected: false, Handle: handle},
	}
}
