// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"sync"

	"github.com/sensormux/sensord/lib/schema"
)

// Connection is the common surface the holder and dispatch loop need
// from either an Event Connection or a Direct Connection.
type Connection interface {
	ID() schema.ConnectionID
	// Package returns the owning client's package name, used for
	// access-policy and operating-mode allowlist checks.
	Package() string
}

// Holder is the Connection Holder: it owns the
// authoritative map from connection ID to connection and exposes a
// read-only snapshot for the dispatch hot path.
type Holder struct {
	mu    sync.Mutex
	conns map[schema.ConnectionID]Connection
	next  schema.ConnectionID
}

// NewHolder returns an empty Holder.
func NewHolder() *Holder {
	return &Holder{conns: make(map[schema.ConnectionID]Connection)}
}

// NextID allocates a fresh, never-reused connection ID.
func (h *Holder) NextID() schema.ConnectionID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	return h.next
}

// Add registers conn under its own ID. Replaces any previous
// connection registered under the same ID (callers should not reuse
// IDs; NextID guarantees freshness).
func (h *Holder) Add(conn Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID()] = conn
}

// Remove drops conn from the holder, called from destroy().
func (h *Holder) Remove(id schema.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

// Lookup returns the connection registered under id, if any.
func (h *Holder) Lookup(id schema.ConnectionID) (Connection, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	return c, ok
}

// Snapshot returns every currently-registered connection. Taken under
// the outer lock; the returned slice is safe to range over afterward
// without holding it.
func (h *Holder) Snapshot() []Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Len reports the number of registered connections.
func (h *Holder) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
