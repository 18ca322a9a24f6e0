// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"sync"

	"github.com/sensormux/sensord/lib/schema"
)

// Registry is the catalog of sensors known to the service, indexed by
// handle. A handle, once returned successfully from Add, is never
// reused for the lifetime of the process -- Remove does not free it
// for reallocation.
type Registry struct {
	mu sync.Mutex

	sensors map[schema.Handle]schema.Sensor
	// used records every handle ever allocated, including removed
	// ones, so handles are never reused.
	used map[schema.Handle]bool

	nextRuntimeHandle schema.Handle
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		sensors:           make(map[schema.Handle]schema.Sensor),
		used:              make(map[schema.Handle]bool),
		nextRuntimeHandle: schema.RuntimeHandleBase,
	}
}

// Add inserts sensor into the registry. Returns false if the handle
// collides with an existing or previously-used handle.
func (r *Registry) Add(sensor schema.Sensor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.used[sensor.Handle] {
		return false
	}
	r.sensors[sensor.Handle] = sensor
	r.used[sensor.Handle] = true
	return true
}

// NextRuntimeHandle allocates the next sequential handle from the
// runtime sensor range [RuntimeHandleBase, RuntimeHandleEnd). Returns
// false if the range is exhausted.
func (r *Registry) NextRuntimeHandle() (schema.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nextRuntimeHandle >= schema.RuntimeHandleEnd {
		return 0, false
	}
	h := r.nextRuntimeHandle
	r.nextRuntimeHandle++
	return h, true
}

// Remove deletes handle from the registry. Returns false if handle was
// never present. The handle remains marked "used" and will never be
// reallocated.
func (r *Registry) Remove(handle schema.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sensors[handle]; !ok {
		return false
	}
	delete(r.sensors, handle)
	return true
}

// Lookup returns the sensor registered at handle, if any.
func (r *Registry) Lookup(handle schema.Handle) (schema.Sensor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sensors[handle]
	return s, ok
}

// ForEach calls fn for every registered sensor in an unspecified
// order. Iteration stops early if fn returns false. fn must not call
// back into the Registry.
func (r *Registry) ForEach(fn func(schema.Sensor) bool) {
	r.mu.Lock()
	snapshot := make([]schema.Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

// IsNewHandle reports whether handle has never been allocated by this
// registry (neither currently present nor previously removed).
func (r *Registry) IsNewHandle(handle schema.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.used[handle]
}

// UserSensors returns every non-debug sensor, the set ordinary
// (non-privileged) callers may see.
func (r *Registry) UserSensors() []schema.Sensor {
	return r.filter(func(s schema.Sensor) bool { return !s.Debug })
}

// UserDebugSensors returns every debug-only sensor.
func (r *Registry) UserDebugSensors() []schema.Sensor {
	return r.filter(func(s schema.Sensor) bool { return s.Debug })
}

// DynamicSensors returns every currently registered dynamic sensor.
func (r *Registry) DynamicSensors() []schema.Sensor {
	return r.filter(func(s schema.Sensor) bool { return s.IsDynamic() })
}

// DeviceSensors returns every sensor belonging to deviceID.
func (r *Registry) DeviceSensors(deviceID int32) []schema.Sensor {
	return r.filter(func(s schema.Sensor) bool { return s.DeviceID == deviceID })
}

func (r *Registry) filter(pred func(schema.Sensor) bool) []schema.Sensor {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []schema.Sensor
	for _, s := range r.sensors {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}
