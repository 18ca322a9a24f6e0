// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"sync"

	"github.com/sensormux/sensord/lib/schema"
)

// RecordTable is the map of Active Sensor Records,
// kept alongside the Sensor Registry and operating mode under the
// same outer lock discipline: a record exists for handle iff at least
// one connection is currently subscribed to it.
type RecordTable struct {
	mu      sync.Mutex
	records map[schema.Handle]*schema.ActiveSensorRecord

	onActiveChange func(handle schema.Handle, active bool)
}

// NewRecordTable returns an empty RecordTable.
func NewRecordTable() *RecordTable {
	return &RecordTable{records: make(map[schema.Handle]*schema.ActiveSensorRecord)}
}

// SetActiveChangeHook installs fn, called outside the table's lock
// whenever a record is created (active=true) or destroyed
// (active=false). The service uses this to drive proximity
// active-state listeners. Set once before any record exists; fn must
// not call back into the RecordTable.
func (t *RecordTable) SetActiveChangeHook(fn func(handle schema.Handle, active bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onActiveChange = fn
}

// GetOrCreate returns the existing record for handle, or creates and
// stores a new empty one. The second return reports whether a new
// record was created.
func (t *RecordTable) GetOrCreate(handle schema.Handle) (*schema.ActiveSensorRecord, bool) {
	t.mu.Lock()
	if r, ok := t.records[handle]; ok {
		t.mu.Unlock()
		return r, false
	}
	r := schema.NewActiveSensorRecord(handle)
	t.records[handle] = r
	hook := t.onActiveChange
	t.mu.Unlock()
	if hook != nil {
		hook(handle, true)
	}
	return r, true
}

// Get returns the record for handle, if any.
func (t *RecordTable) Get(handle schema.Handle) (*schema.ActiveSensorRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[handle]
	return r, ok
}

// RemoveIfEmpty deletes the record for handle if it has no remaining
// subscribers, returning whether it was removed.
func (t *RecordTable) RemoveIfEmpty(handle schema.Handle) bool {
	t.mu.Lock()
	r, ok := t.records[handle]
	if !ok || !r.Empty() {
		t.mu.Unlock()
		return false
	}
	delete(t.records, handle)
	hook := t.onActiveChange
	t.mu.Unlock()
	if hook != nil {
		hook(handle, false)
	}
	return true
}

// Remove deletes the record for handle unconditionally, used when a
// dynamic sensor is deregistered out from under its subscribers.
func (t *RecordTable) Remove(handle schema.Handle) {
	t.mu.Lock()
	_, existed := t.records[handle]
	delete(t.records, handle)
	hook := t.onActiveChange
	t.mu.Unlock()
	if existed && hook != nil {
		hook(handle, false)
	}
}

// ForEach calls fn for every record. fn must not call back into the
// RecordTable.
func (t *RecordTable) ForEach(fn func(*schema.ActiveSensorRecord)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		fn(r)
	}
}
