// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import "github.com/sensormux/sensord/lib/schema"

// Capabilities summarizes which raw physical sensors a HAL reports,
// as input to the virtual-sensor synthesis decision.
type Capabilities struct {
	Accelerometer bool
	Gyroscope     bool
	Magnetometer  bool
}

// DecideVirtualSensors returns the set of software (fusion) sensors
// that must be synthesized given which physical sensors the HAL
// already supplies, plus the complementary set already present among
// {gravity, linear-acc, rotation-vector, geomagnetic-rotation-vector,
// game-rotation-vector}. When automotive is true, an additional
// limited-axes IMU family is synthesized per base sensor present.
func DecideVirtualSensors(caps Capabilities, alreadyPresent map[schema.Type]bool, automotive bool) []schema.Type {
	var synth []schema.Type

	add := func(t schema.Type) {
		if !alreadyPresent[t] {
			synth = append(synth, t)
		}
	}

	switch {
	case caps.Gyroscope && caps.Accelerometer && caps.Magnetometer:
		add(schema.TypeRotationVector)
		add(schema.TypeGravity)
		add(schema.TypeLinearAcceleration)
		add(schema.TypeGameRotationVector)
	case caps.Gyroscope && caps.Accelerometer:
		add(schema.TypeGravity)
		add(schema.TypeLinearAcceleration)
		add(schema.TypeGameRotationVector)
	case caps.Accelerometer && caps.Magnetometer:
		add(schema.TypeGeomagneticRotationVector)
	}

	if automotive {
		if caps.Accelerometer {
			add(schema.TypeLimitedAxesAccelerometer)
		}
		if caps.Gyroscope {
			add(schema.TypeLimitedAxesGyroscope)
		}
		if caps.Magnetometer {
			add(schema.TypeLimitedAxesMagnetometer)
		}
	}

	return synth
}
