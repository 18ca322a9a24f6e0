// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hal

import (
	"context"
	"testing"
	"time"

	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

func TestMockPollBlocksUntilPush(t *testing.T) {
	m := NewMock(nil)
	buf := make([]schema.Event, 4)

	done := make(chan int, 1)
	go func() {
		n, err := m.Poll(context.Background(), buf)
		if err != nil {
			t.Errorf("Poll: %v", err)
		}
		done <- n
	}()

	select {
	case <-done:
		t.Fatal("Poll returned before any event was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	m.Push(schema.Event{SensorHandle: 1, TimestampNs: 10})

	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("Poll returned %d events, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Poll did not return after Push")
	}
}

func TestMockPollRespectsContextCancellation(t *testing.T) {
	m := NewMock(nil)
	ctx, cancel := context.WithCancel(context.Background())
	buf := make([]schema.Event, 4)

	done := make(chan error, 1)
	go func() {
		_, err := m.Poll(ctx, buf)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Poll should return an error after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Poll did not return after cancellation")
	}
}

func TestMockKillReturnsDeadObject(t *testing.T) {
	m := NewMock(nil)
	m.Kill(true)

	buf := make([]schema.Event, 1)
	_, err := m.Poll(context.Background(), buf)

	sErr, ok := sensorerr.As(err)
	if !ok || sErr.Kind != sensorerr.DeadObject {
		t.Fatalf("Poll after Kill = %v, want DeadObject", err)
	}
	if !m.IsReconnecting() {
		t.Error("IsReconnecting should be true after Kill(true)")
	}
}

func TestMockReconnect(t *testing.T) {
	m := NewMock(nil)
	m.Kill(true)

	if err := m.Reconnect(); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if m.IsReconnecting() {
		t.Error("IsReconnecting should be false after Reconnect")
	}
	if m.ReconnectCount() != 1 {
		t.Errorf("ReconnectCount = %d, want 1", m.ReconnectCount())
	}
}

func TestMockActivateFailure(t *testing.T) {
	m := NewMock(nil)
	m.FailActivate[5] = true

	err := m.Activate(5, true)
	if err == nil {
		t.Fatal("Activate should fail for a handle marked FailActivate")
	}
	if m.IsActive(5) {
		t.Error("handle should not be marked active after a failed Activate")
	}
}

func TestMockFlushDeliversMetaData(t *testing.T) {
	m := NewMock(nil)
	if err := m.Flush(7); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	buf := make([]schema.Event, 1)
	n, err := m.Poll(context.Background(), buf)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 || buf[0].Kind != schema.EventMetaData || buf[0].Meta.Handle != 7 {
		t.Fatalf("unexpected flush event: n=%d event=%+v", n, buf[0])
	}
}
