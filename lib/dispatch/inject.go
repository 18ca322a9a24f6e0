// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"github.com/sensormux/sensord/lib/registry"
	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

// ValidateInjectedEvent checks an externally-supplied event before it
// is handed to hal.InjectSensorData. The HAL contract only accepts
// injection while the operating mode is one of the three injection
// variants; this additionally rejects an event whose sensor_handle
// does not name a registered sensor, whose type disagrees with that
// sensor's registered type, or that targets a one-shot sensor, since a
// one-shot subscription auto-disables on its first delivery and
// injecting a second event for it can never be observed by any
// subscriber.
func ValidateInjectedEvent(mode schema.OperatingMode, reg *registry.Registry, event schema.Event) error {
	if !mode.IsInjection() {
		return sensorerr.New(sensorerr.InvalidOperation, "dispatch.validate_injected_event", "not in a data-injection mode")
	}

	sensor, ok := reg.Lookup(event.SensorHandle)
	if !ok {
		return sensorerr.New(sensorerr.BadValue, "dispatch.validate_injected_event", "unknown sensor handle")
	}
	if sensor.Type != event.SensorType {
		return sensorerr.New(sensorerr.BadValue, "dispatch.validate_injected_event", "event sensor_type does not match the registered sensor")
	}
	if sensor.ReportingMode == schema.ReportingOneShot {
		return sensorerr.New(sensorerr.InvalidOperation, "dispatch.validate_injected_event", "injection is not supported for one-shot sensors")
	}
	return nil
}
