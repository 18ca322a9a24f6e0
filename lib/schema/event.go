// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/google/uuid"

// EventKind distinguishes ordinary sensor data from the meta-events
// the dispatch loop handles specially.
type EventKind int32

const (
	// EventData carries an ordinary sensor reading.
	EventData EventKind = iota
	// EventMetaData signals flush completion for the sensor named in
	// Event.Meta.Handle.
	EventMetaData
	// EventDynamicSensorMeta announces the registration or
	// deregistration of a dynamic sensor.
	EventDynamicSensorMeta
	// EventAdditionalInfo carries out-of-band sensor metadata that is
	// neither a data sample nor a meta-completion signal; skipped by
	// the Recent-Event Log and by virtual sensor expansion.
	EventAdditionalInfo
)

// EventFlags is a bitmask carried on every Event.
type EventFlags uint32

const (
	// FlagWakeUpNeedsAck marks an event that increments the
	// delivering connection's wakelock refcount; the client must
	// acknowledge it.
	FlagWakeUpNeedsAck EventFlags = 1 << iota
)

// EventVersion is the wire layout version for Event.
const EventVersion int32 = 1

// MetaPayload is the payload for EventMetaData events.
type MetaPayload struct {
	Handle Handle `cbor:"handle"`
}

// DynamicSensorPayload is the payload for EventDynamicSensorMeta
// events.
type DynamicSensorPayload struct {
	Connected bool      `cbor:"connected"`
	Handle    Handle    `cbor:"handle"`
	UUID      uuid.UUID `cbor:"uuid"`
}

// Event is the fixed-layout record delivered from the HAL (or
// synthesized by the Virtual Sensor Engine) through to subscribers.
// Exactly one of Data, Meta, or DynamicSensor is meaningful, selected
// by Kind. Data is a fixed-size payload rather than a tagged union of
// Go types because the wire format must stay self-describing across
// CBOR encode/decode without reflection games at the hot path.
type Event struct {
	Version       int32                 `cbor:"version"`
	SensorHandle  Handle                `cbor:"sensor_handle"`
	SensorType    Type                  `cbor:"sensor_type"`
	Kind          EventKind             `cbor:"kind"`
	TimestampNs   int64                 `cbor:"timestamp_ns"`
	Flags         EventFlags            `cbor:"flags"`
	Data          [16]float32           `cbor:"data,omitempty"`
	Meta          *MetaPayload          `cbor:"meta,omitempty"`
	DynamicSensor *DynamicSensorPayload `cbor:"dynamic_sensor,omitempty"`
}

// NeedsAck reports whether this event requires a client acknowledgment
// before the wakelock it charged can be released.
func (e Event) NeedsAck() bool { return e.Flags&FlagWakeUpNeedsAck != 0 }

// IsMeta reports whether this is a meta-sensor event (flush completion
// or dynamic-sensor announcement), as opposed to ordinary sample data.
func (e Event) IsMeta() bool {
	return e.Kind == EventMetaData || e.Kind == EventDynamicSensorMeta
}
