// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"sync"

	"github.com/sensormux/sensord/lib/schema"
)

// gravityAlpha is the low-pass filter constant used to separate
// gravity from linear acceleration: gravity = alpha*gravity +
// (1-alpha)*accel. 0.8 matches the time constant commonly used for a
// ~200ms high-pass cutoff at typical accelerometer sampling rates.
const gravityAlpha = 0.8

// geomagneticCorrectionWeight is the fraction of the geomagnetic
// reference orientation blended into the gyro-integrated estimate on
// every accelerometer/magnetometer update, bounding gyro drift.
const geomagneticCorrectionWeight = 0.02

// Engine owns the fusion state shared across all virtual sensors: the
// latest raw samples, the gravity estimate, and the integrated
// orientation quaternion. One Engine serves the whole dispatch loop;
// it is not per-connection.
type Engine struct {
	mu sync.Mutex

	haveAccel, haveGyro, haveMag bool
	accel, gyro, mag             vec3
	lastGyroTimestampNs          int64

	gravity         vec3
	haveGravity     bool
	gyroOrientation quat // integrated from gyro alone (game rotation vector)
	fullOrientation quat // gyro integration corrected by geomagnetic reference
}

// New returns an Engine with no accumulated state.
func New() *Engine {
	return &Engine{
		gyroOrientation: identityQuat(),
		fullOrientation: identityQuat(),
	}
}

// Reset clears all accumulated fusion state, used after a HAL
// reconnection since stale samples from before the gap would produce
// a discontinuous jump.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	*e = Engine{gyroOrientation: identityQuat(), fullOrientation: identityQuat()}
}

// Process updates the Engine's internal state from in and, for each
// type in active that can be derived from the data seen so far,
// returns at most one synthesized event per type. Types requiring
// inputs not yet seen (e.g. rotation vector before any magnetometer
// sample) are silently skipped, matching "at most one output" per
// input event.
func (e *Engine) Process(active map[schema.Type]bool, in schema.Event) []schema.Event {
	if in.Kind != schema.EventData {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sample := vec3{in.Data[0], in.Data[1], in.Data[2]}

	switch in.SensorType {
	case schema.TypeAccelerometer:
		e.accel = sample
		e.haveAccel = true
		if e.haveGravity {
			e.gravity = e.gravity.scale(gravityAlpha).add(sample.scale(1 - gravityAlpha))
		} else {
			e.gravity = sample
			e.haveGravity = true
		}
	case schema.TypeGyroscope:
		dt := float32(0)
		if e.lastGyroTimestampNs != 0 {
			dt = float32(in.TimestampNs-e.lastGyroTimestampNs) / 1e9
		}
		e.lastGyroTimestampNs = in.TimestampNs
		e.gyro = sample
		e.haveGyro = true
		if dt > 0 && dt < 1 {
			e.gyroOrientation = integrateGyro(e.gyroOrientation, sample, dt)
			e.fullOrientation = integrateGyro(e.fullOrientation, sample, dt)
		}
	case schema.TypeMagnetometer:
		e.mag = sample
		e.haveMag = true
		if e.haveGravity && e.haveMag {
			reference := fromTriad(e.gravity, e.mag)
			e.fullOrientation = slerpTowards(e.fullOrientation, reference, geomagneticCorrectionWeight)
		}
	default:
		return nil
	}

	var out []schema.Event
	emit := func(ty schema.Type, data [16]float32) {
		out = append(out, schema.Event{
			Version:     schema.EventVersion,
			SensorType:  ty,
			Kind:        schema.EventData,
			TimestampNs: in.TimestampNs,
			Data:        data,
		})
	}

	if active[schema.TypeGravity] && e.haveGravity {
		emit(schema.TypeGravity, vecData(e.gravity))
	}
	if active[schema.TypeLinearAcceleration] && e.haveGravity && e.haveAccel {
		emit(schema.TypeLinearAcceleration, vecData(e.accel.sub(e.gravity)))
	}
	if active[schema.TypeGameRotationVector] && e.haveGyro {
		emit(schema.TypeGameRotationVector, quatData(e.gyroOrientation))
	}
	if active[schema.TypeGeomagneticRotationVector] && e.haveGravity && e.haveMag {
		emit(schema.TypeGeomagneticRotationVector, quatData(fromTriad(e.gravity, e.mag)))
	}
	if active[schema.TypeRotationVector] && e.haveGyro && e.haveGravity && e.haveMag {
		emit(schema.TypeRotationVector, quatData(e.fullOrientation))
	}
	if active[schema.TypeLimitedAxesAccelerometer] && e.haveAccel {
		emit(schema.TypeLimitedAxesAccelerometer, vecData(e.accel))
	}
	if active[schema.TypeLimitedAxesGyroscope] && e.haveGyro {
		emit(schema.TypeLimitedAxesGyroscope, vecData(e.gyro))
	}
	if active[schema.TypeLimitedAxesMagnetometer] && e.haveMag {
		emit(schema.TypeLimitedAxesMagnetometer, vecData(e.mag))
	}

	// Each active virtual sensor contributes at most one output event
	// per input event; a single accelerometer
	// sample can therefore legitimately produce both a gravity and a
	// linear-acceleration event in the same call.
	return out
}

func vecData(v vec3) [16]float32 {
	var d [16]float32
	d[0], d[1], d[2] = v[0], v[1], v[2]
	return d
}

func quatData(q quat) [16]float32 {
	var d [16]float32
	d[0], d[1], d[2], d[3] = q[0], q[1], q[2], q[3]
	return d
}
