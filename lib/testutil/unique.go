// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for handles, request IDs, or sensor
// names that must be distinguishable within a single test run.
//
//	handle := testutil.UniqueID("handle")     // "handle-1", "handle-2", ...
//	name := testutil.UniqueID("sensor")       // "sensor-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
