// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fusion implements the Virtual Sensor Engine: pure functions over recent physical samples producing
// derived samples for gravity, linear acceleration, rotation vector,
// geomagnetic rotation vector, game rotation vector, and the
// automotive limited-axes IMU family.
// [Engine] owns the shared fusion state (a gravity estimate and an
// orientation quaternion, updated as physical events arrive) and
// exposes [Engine.Process], which the dispatch loop calls once per
// input event with the set of active virtual sensors; it produces at
// most one output event per active virtual sensor, the bound the
// dispatch loop relies on for its batch-expansion headroom.
package fusion
