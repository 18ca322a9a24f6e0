// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// ActiveSensorRecord exists for a handle iff at least one connection
// is subscribed to it (invariant enforced by lib/registry and
// lib/connection together: the record is created on the first enable
// and destroyed when the last subscriber leaves, which also
// deactivates the sensor on the HAL).
// Connections is a set of connection IDs rather than a set of strong
// references: the record never keeps a connection alive by itself,
// matching the weak-reference discipline in the design notes.
type ActiveSensorRecord struct {
	Handle Handle `cbor:"handle"`

	// Connections is the set of connections currently subscribed to
	// Handle.
	Connections map[ConnectionID]struct{} `cbor:"-"`

	// PendingFlush is a FIFO of connections awaiting a flush-complete
	// (META_DATA) response for Handle, oldest first. A flush() call
	// appends; a delivered META_DATA event pops the head.
	PendingFlush []ConnectionID `cbor:"-"`
}

// NewActiveSensorRecord returns an empty record for handle.
func NewActiveSensorRecord(handle Handle) *ActiveSensorRecord {
	return &ActiveSensorRecord{
		Handle:      handle,
		Connections: make(map[ConnectionID]struct{}),
	}
}

// Empty reports whether no connection is subscribed any longer.
func (r *ActiveSensorRecord) Empty() bool { return len(r.Connections) == 0 }

// PushFlush enqueues a connection awaiting flush completion.
func (r *ActiveSensorRecord) PushFlush(id ConnectionID) {
	r.PendingFlush = append(r.PendingFlush, id)
}

// PopFlush dequeues the oldest connection awaiting flush completion.
// Returns false if the queue is empty.
func (r *ActiveSensorRecord) PopFlush() (ConnectionID, bool) {
	if len(r.PendingFlush) == 0 {
		return 0, false
	}
	id := r.PendingFlush[0]
	r.PendingFlush = r.PendingFlush[1:]
	return id, true
}
