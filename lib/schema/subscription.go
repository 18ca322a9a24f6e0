// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Subscription is one Event Connection's bookkeeping for one
// subscribed sensor handle.
type Subscription struct {
	SamplingPeriodNs  int64  `cbor:"sampling_period_ns"`
	MaxBatchLatencyNs int64  `cbor:"max_batch_latency_ns"`
	AppOp             string `cbor:"app_op,omitempty"`
	// FirstFlushPending is set when enable() issued an implicit flush
	// (because the sensor was already active elsewhere) whose
	// completion has not yet been observed.
	FirstFlushPending bool `cbor:"first_flush_pending"`
	// PendingFlushCount counts explicit flush() calls awaiting a
	// META_DATA completion, not counting the implicit first flush.
	PendingFlushCount int `cbor:"pending_flush_count"`
}
