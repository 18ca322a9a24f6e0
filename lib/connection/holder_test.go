// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"testing"

	"github.com/sensormux/sensord/lib/schema"
)

type fakeConn struct {
	id  schema.ConnectionID
	pkg string
}

func (f *fakeConn) ID() schema.ConnectionID { return f.id }
func (f *fakeConn) Package() string         { return f.pkg }

func TestHolderNextIDNeverRepeats(t *testing.T) {
	h := NewHolder()
	seen := make(map[schema.ConnectionID]bool)
	for i := 0; i < 100; i++ {
		id := h.NextID()
		if seen[id] {
			t.Fatalf("NextID returned duplicate %d", id)
		}
		seen[id] = true
	}
}

func TestHolderAddLookupRemove(t *testing.T) {
	h := NewHolder()
	conn := &fakeConn{id: h.NextID(), pkg: "com.example.app"}
	h.Add(conn)

	if got, ok := h.Lookup(conn.id); !ok || got != conn {
		t.Fatalf("Lookup = %v, %v, want conn, true", got, ok)
	}
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}

	h.Remove(conn.id)
	if _, ok := h.Lookup(conn.id); ok {
		t.Fatal("connection should be gone after Remove")
	}
}

func TestHolderSnapshotIsIndependentOfLaterMutation(t *testing.T) {
	h := NewHolder()
	c1 := &fakeConn{id: h.NextID()}
	h.Add(c1)

	snapshot := h.Snapshot()
	c2 := &fakeConn{id: h.NextID()}
	h.Add(c2)

	if len(snapshot) != 1 {
		t.Fatalf("len(snapshot) = %d, want 1 (taken before c2 was added)", len(snapshot))
	}
}
