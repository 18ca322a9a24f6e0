// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the Sensor Registry: the
// catalog of platform, dynamic, runtime, and virtual sensors, indexed
// by handle. [Registry] enforces the handle-uniqueness invariant
// (handles are never reused) and the disjoint-range allocation scheme
// for runtime sensors.
// [DecideVirtualSensors] implements the init-time decision of which
// software fusion sensors must be synthesized given the physical
// sensors a HAL reports, including the automotive limited-axes family.
// Registry is protected by its own mutex, intended to be held under
// sensord's single coarse outer lock alongside the active-sensor
// records and operating mode -- callers in lib/dispatch and
// lib/connection are expected to serialize through that outer lock,
// not through Registry's internal lock alone.
package registry
