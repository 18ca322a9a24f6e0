// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fusion

import "math"

// vec3 is a 3-component float32 vector: x, y, z.
type vec3 [3]float32

func (v vec3) sub(o vec3) vec3      { return vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v vec3) add(o vec3) vec3      { return vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v vec3) scale(s float32) vec3 { return vec3{v[0] * s, v[1] * s, v[2] * s} }

func (v vec3) norm() float32 {
	return float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
}

func (v vec3) normalize() vec3 {
	n := v.norm()
	if n == 0 {
		return v
	}
	return v.scale(1 / n)
}

func (v vec3) cross(o vec3) vec3 {
	return vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

func (v vec3) dot(o vec3) float32 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// quat is a unit quaternion [x, y, z, w], the rotation-vector wire
// encoding used throughout the HAL event payload.
type quat [4]float32

func identityQuat() quat { return quat{0, 0, 0, 1} }

func (q quat) normalize() quat {
	n := float32(math.Sqrt(float64(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])))
	if n == 0 {
		return identityQuat()
	}
	return quat{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

// multiply computes q * o (Hamilton product), applying o's rotation
// followed by q's.
func (q quat) multiply(o quat) quat {
	return quat{
		q[3]*o[0] + q[0]*o[3] + q[1]*o[2] - q[2]*o[1],
		q[3]*o[1] - q[0]*o[2] + q[1]*o[3] + q[2]*o[0],
		q[3]*o[2] + q[0]*o[1] - q[1]*o[0] + q[2]*o[3],
		q[3]*o[3] - q[0]*o[0] - q[1]*o[1] - q[2]*o[2],
	}
}

// integrateGyro advances orientation q by angular velocity omega
// (rad/s) over dtSeconds using the small-angle quaternion
// approximation, then renormalizes to counter drift from the
// linearization.
func integrateGyro(q quat, omega vec3, dtSeconds float32) quat {
	halfDt := dtSeconds * 0.5
	delta := quat{omega[0] * halfDt, omega[1] * halfDt, omega[2] * halfDt, 1}
	return q.multiply(delta).normalize()
}

// fromTriad builds a unit quaternion whose frame has +Z along gravity
// and +Y pointing towards magnetic north, the standard accelerometer
// + magnetometer attitude determination method (TRIAD).
func fromTriad(gravity, magnetic vec3) quat {
	z := gravity.normalize()
	east := z.cross(magnetic).normalize()
	north := east.cross(z).normalize()

	// Build a rotation matrix [east, north, z] (columns) and convert
	// to a quaternion via the standard trace method.
	m00, m01, m02 := east[0], north[0], z[0]
	m10, m11, m12 := east[1], north[1], z[1]
	m20, m21, m22 := east[2], north[2], z[2]

	trace := m00 + m11 + m22
	var q quat
	switch {
	case trace > 0:
		s := float32(math.Sqrt(float64(trace+1))) * 2
		q = quat{(m21 - m12) / s, (m02 - m20) / s, (m10 - m01) / s, s / 4}
	case m00 > m11 && m00 > m22:
		s := float32(math.Sqrt(float64(1+m00-m11-m22))) * 2
		q = quat{s / 4, (m01 + m10) / s, (m02 + m20) / s, (m21 - m12) / s}
	case m11 > m22:
		s := float32(math.Sqrt(float64(1+m11-m00-m22))) * 2
		q = quat{(m01 + m10) / s, s / 4, (m12 + m21) / s, (m02 - m20) / s}
	default:
		s := float32(math.Sqrt(float64(1+m22-m00-m11))) * 2
		q = quat{(m02 + m20) / s, (m12 + m21) / s, s / 4, (m10 - m01) / s}
	}
	return q.normalize()
}

// slerpTowards nudges q a small fraction weight (0..1) towards target,
// the complementary-filter correction step used to fuse gyro
// integration with the geomagnetic reference without gyro drift
// accumulating unbounded.
func slerpTowards(q, target quat, weight float32) quat {
	dot := q[0]*target[0] + q[1]*target[1] + q[2]*target[2] + q[3]*target[3]
	if dot < 0 {
		target = quat{-target[0], -target[1], -target[2], -target[3]}
	}
	return quat{
		q[0] + (target[0]-q[0])*weight,
		q[1] + (target[1]-q[1])*weight,
		q[2] + (target[2]-q[2])*weight,
		q[3] + (target[3]-q[3])*weight,
	}.normalize()
}
