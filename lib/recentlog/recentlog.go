// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recentlog

import (
	"sync"

	"github.com/sensormux/sensord/lib/schema"
)

// entry is one handle's cached last value plus its staleness flag.
type entry struct {
	event schema.Event
	stale bool
}

// Log is a per-handle last-value cache. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries map[schema.Handle]*entry
}

// New returns an empty Log.
func New() *Log {
	return &Log{entries: make(map[schema.Handle]*entry)}
}

// Record stores event as the last value for its sensor handle and
// clears the stale flag. Called by the dispatch loop for every
// non-meta, non-additional-info event.
func (l *Log) Record(event schema.Event) {
	if event.Kind != schema.EventData {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[event.SensorHandle] = &entry{event: event, stale: false}
}

// Lookup returns the last recorded event for handle and whether it is
// fresh (present and not stale). A stale or absent entry returns
// ok=false, matching the on-change replay contract: a torn-down
// Active Sensor Record must not replay its old value to a new
// subscriber.
func (l *Log) Lookup(handle schema.Handle) (schema.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[handle]
	if !ok || e.stale {
		return schema.Event{}, false
	}
	return e.event, true
}

// MarkStale flags handle's cached value as stale without discarding
// it, so a privileged dump can still show the last value while
// on-change replay treats it as absent. Called when the last
// subscriber to handle leaves and its Active Sensor Record is
// destroyed.
func (l *Log) MarkStale(handle schema.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[handle]; ok {
		e.stale = true
	}
}

// Clear removes handle's entry entirely, called when a sensor is
// removed from the registry.
func (l *Log) Clear(handle schema.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, handle)
}

// DumpEntry is a snapshot of one Log entry for the diagnostic dump.
type DumpEntry struct {
	Handle schema.Handle
	Event  schema.Event
	Stale  bool
}

// Dump returns a snapshot of every entry, for the diagnostic dump
// command. maskData, when true, zeroes the payload (used when the
// caller is not privileged).
func (l *Log) Dump(maskData bool) []DumpEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]DumpEntry, 0, len(l.entries))
	for h, e := range l.entries {
		ev := e.event
		if maskData {
			ev.Data = [16]float32{}
		}
		out = append(out, DumpEntry{Handle: h, Event: ev, Stale: e.stale})
	}
	return out
}
