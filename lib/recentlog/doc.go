// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package recentlog implements the Recent-Event Log:
// a per-handle last-value cache with a staleness flag, used for
// on-change replay to new subscribers and for the privileged
// diagnostic dump.
// An entry becomes stale when its Active Sensor Record is destroyed
// (the last subscriber left) and fresh again on the next delivered
// event for that handle -- [Log.MarkStale] and [Log.Record]
// implement that transition. [Log.Clear] removes an entry entirely,
// called when a sensor is removed from the registry.
package recentlog
