// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sensormux/sensord/lib/clock"
	"github.com/sensormux/sensord/lib/connection"
	"github.com/sensormux/sensord/lib/fusion"
	"github.com/sensormux/sensord/lib/hal"
	"github.com/sensormux/sensord/lib/policy"
	"github.com/sensormux/sensord/lib/recentlog"
	"github.com/sensormux/sensord/lib/registry"
	"github.com/sensormux/sensord/lib/ring"
	"github.com/sensormux/sensord/lib/schema"
)

// fakeSink records every event delivered to it, for test assertions.
type fakeSink struct {
	mu     sync.Mutex
	events []schema.Event
}

func (s *fakeSink) SendEvent(event schema.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) drain() []schema.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

// harness bundles one fully-wired dispatch test fixture.
type harness struct {
	reg     *registry.Registry
	records *connection.RecordTable
	holder  *connection.Holder
	access  *policy.Access
	log     *recentlog.Log
	ring    *ring.Ring
	mock    *hal.Mock
	fusion  *fusion.Engine
	clk     *clock.FakeClock
	loop    *Loop
}

func newHarness(sensors []schema.Sensor) *harness {
	reg := registry.New()
	for _, s := range sensors {
		reg.Add(s)
	}
	h := &harness{
		reg:     reg,
		records: connection.NewRecordTable(),
		holder:  connection.NewHolder(),
		access:  policy.NewAccess(policy.NewStaticPackageManager(), nil, nil),
		log:     recentlog.New(),
		ring:    ring.New(16),
		mock:    hal.NewMock(sensors),
		fusion:  fusion.New(),
		clk:     clock.Fake(time.Unix(1_700_000_000, 0)),
	}
	h.loop = New(Deps{
		HAL:          h.mock,
		Registry:     h.reg,
		Records:      h.records,
		Holder:       h.holder,
		Fusion:       h.fusion,
		RecentLog:    h.log,
		Wakelock:     NewWakelock(),
		Clock:        h.clk,
		BufferEvents: 64,
	})
	return h
}

// newConnection registers a fresh EventConnection with sink in the
// harness, returning it and its sink.
func (h *harness) newConnection(packageName string) (*connection.EventConnection, *fakeSink) {
	sink := &fakeSink{}
	id := h.holder.NextID()
	conn := connection.NewEventConnection(id, packageName, 0, false, connection.EventConnectionDeps{
		HAL:     h.mock,
		Reg:     h.reg,
		Records: h.records,
		Access:  h.access,
		Log:     h.log,
		Ring:    h.ring,
	}, sink)
	h.holder.Add(conn)
	return conn, sink
}

func testUUID(n byte) uuid.UUID {
	var u uuid.UUID
	u[len(u)-1] = n
	return u
}
