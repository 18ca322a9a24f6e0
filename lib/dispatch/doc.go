// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch implements the single-producer event dispatch
// loop, the secondary runtime-sensor producer, the HAL reconnection
// protocol, and wakelock arbitration.
//
// The dispatch loop is the one place that calls hal.Poll. Every other
// package operates on snapshots the loop hands it (the Connection
// Holder snapshot) or on state the loop mutates under the outer lock
// (the Sensor Registry, Active Sensor Records). This package owns no
// locks of its own beyond the Wakelock's and the RuntimeQueue's; it composes lib/registry,
// lib/connection, lib/fusion, lib/recentlog, and lib/hal.
package dispatch
