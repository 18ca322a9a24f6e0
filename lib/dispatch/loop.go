// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"log/slog"
	"sort"

	"github.com/sensormux/sensord/lib/clock"
	"github.com/sensormux/sensord/lib/connection"
	"github.com/sensormux/sensord/lib/fusion"
	"github.com/sensormux/sensord/lib/hal"
	"github.com/sensormux/sensord/lib/recentlog"
	"github.com/sensormux/sensord/lib/registry"
	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

// fanoutTarget is what a connection must support to receive an
// ordinary data batch and participate in wakelock arbitration. Only
// *connection.EventConnection satisfies it; direct connections do not
// receive the normal event stream.
type fanoutTarget interface {
	connection.Connection
	SendEvents(batch []schema.Event)
	NeedsWakelock() bool
	ForceClearWakelock()
}

// flushTarget is what a connection must support to receive a routed
// flush-complete (META_DATA) delivery.
type flushTarget interface {
	connection.Connection
	DeliverFlushComplete(handle schema.Handle)
}

// dynamicMetaTarget is what a connection must support to be notified
// of a dynamic sensor's registration or deregistration.
type dynamicMetaTarget interface {
	connection.Connection
	DropSubscription(handle schema.Handle)
	DeliverDynamicMeta(event schema.Event)
}

// Deps bundles the collaborators the dispatch loop composes. HAL,
// Registry, Records, Holder, Fusion, RecentLog, Wakelock and Clock are
// required; Logger and BufferEvents fall back to defaults when unset,
// and the virtual-sensor and meta-handle fields may be left empty.
type Deps struct {
	HAL       hal.Adapter
	Registry  *registry.Registry
	Records   *connection.RecordTable
	Holder    *connection.Holder
	Fusion    *fusion.Engine
	RecentLog *recentlog.Log
	Wakelock  *Wakelock
	Clock     clock.Clock
	Logger    *slog.Logger

	// BufferEvents is the HAL poll buffer size before the
	// virtual-sensor headroom division.
	BufferEvents int

	// ActiveVirtualSensors is the fixed set of synthesized sensor
	// types decided at init by registry.DecideVirtualSensors. Never mutated after construction.
	ActiveVirtualSensors map[schema.Type]bool

	// VirtualHandles maps each type in ActiveVirtualSensors to the
	// registry handle it was assigned at init, since fusion.Engine
	// synthesizes events by type alone and the dispatch loop must
	// stamp a handle before subscription-based fanout can match them.
	VirtualHandles map[schema.Type]schema.Handle

	// DynamicMetaHandle is the designated meta-sensor handle
	// discovered at init, stamped onto synthetic
	// DYNAMIC_SENSOR_META events during reconnection.
	DynamicMetaHandle schema.Handle
}

// Loop is the dispatch loop producer thread.
type Loop struct {
	hal       hal.Adapter
	registry  *registry.Registry
	records   *connection.RecordTable
	holder    *connection.Holder
	fusion    *fusion.Engine
	recentLog *recentlog.Log
	wakelock  *Wakelock
	clock     clock.Clock
	logger    *slog.Logger

	bufferEvents      int
	activeVirtual     map[schema.Type]bool
	virtualHandles    map[schema.Type]schema.Handle
	dynamicMetaHandle schema.Handle

	pollBuf []schema.Event
}

// New constructs a Loop. Panics if a required dependency is missing --
// a misconfigured dispatch loop is a programming error, not a runtime
// condition to recover from.
func New(deps Deps) *Loop {
	if deps.HAL == nil || deps.Registry == nil || deps.Records == nil || deps.Holder == nil ||
		deps.Fusion == nil || deps.RecentLog == nil || deps.Wakelock == nil || deps.Clock == nil {
		panic("dispatch.New: missing required dependency")
	}
	bufferEvents := deps.BufferEvents
	if bufferEvents <= 0 {
		bufferEvents = 256
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		hal:               deps.HAL,
		registry:          deps.Registry,
		records:           deps.Records,
		holder:            deps.Holder,
		fusion:            deps.Fusion,
		recentLog:         deps.RecentLog,
		wakelock:          deps.Wakelock,
		clock:             deps.Clock,
		logger:            logger,
		bufferEvents:      bufferEvents,
		activeVirtual:     deps.ActiveVirtualSensors,
		virtualHandles:    deps.VirtualHandles,
		dynamicMetaHandle: deps.DynamicMetaHandle,
		pollBuf:           make([]schema.Event, bufferEvents),
	}
}

// Run drives the dispatch loop until ctx is cancelled or the HAL
// reports a fatal (non-reconnectable) failure. Each iteration is
// runOnce; Run never returns a non-nil error for ordinary recoverable
// conditions.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := l.runOnce(ctx); err != nil {
			return err
		}
	}
}

// pollMax returns the buffer size passed to hal.Poll, leaving room for
// virtual-sensor fanout expansion: min_buffer /
// (1 + virtual_sensor_count).
func (l *Loop) pollMax() int {
	max := l.bufferEvents / (1 + len(l.activeVirtual))
	if max < 1 {
		max = 1
	}
	if max > len(l.pollBuf) {
		max = len(l.pollBuf)
	}
	return max
}

func (l *Loop) runOnce(ctx context.Context) error {
	buf := l.pollBuf[:l.pollMax()]
	n, err := l.hal.Poll(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if sensorerr.KindOf(err) == sensorerr.DeadObject && l.hal.IsReconnecting() {
			l.runReconnection(ctx)
			return nil
		}
		l.logger.Error("hal poll failed", "error", err)
		return nil
	}
	if n == 0 {
		return nil
	}

	// buf is reused across iterations; copy so later steps can append
	// and reorder without racing the next Poll call's writes.
	batch := append([]schema.Event(nil), buf[:n]...)

	l.acquireWakelockIfNeeded(batch)

	batch = l.expandVirtualSensors(batch)

	sort.Slice(batch, func(i, j int) bool { return batch[i].TimestampNs < batch[j].TimestampNs })

	dataBatch := make([]schema.Event, 0, len(batch))
	for _, event := range batch {
		switch event.Kind {
		case schema.EventMetaData:
			l.routeFlushCompletion(event)
		case schema.EventDynamicSensorMeta:
			l.handleDynamicSensorMeta(event)
		default:
			l.recentLog.Record(event)
			dataBatch = append(dataBatch, event)
		}
	}

	snapshot := l.holder.Snapshot()
	for _, conn := range snapshot {
		if target, ok := conn.(fanoutTarget); ok {
			target.SendEvents(dataBatch)
		}
	}

	l.releaseWakelockIfUnneeded(snapshot)
	return nil
}

// acquireWakelockIfNeeded: if the batch carries at least one wake-up
// event, acquire the wakelock (a no-op when already held) and inform
// the HAL how many wake events this cycle accounted for. The HAL
// write happens every cycle with wake events, not just on the
// released-to-held transition: the HAL decrements its own pending
// wake count per batch regardless of our lock state.
func (l *Loop) acquireWakelockIfNeeded(batch []schema.Event) {
	wakeCount := 0
	for _, event := range batch {
		if event.NeedsAck() {
			wakeCount++
		}
	}
	if wakeCount == 0 {
		return
	}
	l.wakelock.Acquire()
	if err := l.hal.WriteWakeLockHandled(wakeCount); err != nil {
		l.logger.Warn("hal.write_wake_lock_handled failed", "error", err)
	}
}

// releaseWakelockIfUnneeded: after
// fanout, release the wakelock once every surviving connection
// reports it no longer needs it.
func (l *Loop) releaseWakelockIfUnneeded(snapshot []connection.Connection) {
	if !l.wakelock.Held() {
		return
	}
	for _, conn := range snapshot {
		if target, ok := conn.(fanoutTarget); ok && target.NeedsWakelock() {
			return
		}
	}
	l.wakelock.Release()
}

// expandVirtualSensors: for each active
// virtual sensor and each input event, invoke Process to produce at
// most one output; appended outputs extend the batch. Extras beyond
// the poll buffer's capacity are dropped with a warning rather than
// silently growing the batch without bound.
func (l *Loop) expandVirtualSensors(batch []schema.Event) []schema.Event {
	if len(l.activeVirtual) == 0 {
		return batch
	}
	limit := cap(l.pollBuf)
	out := batch
	for _, event := range batch {
		for _, synthesized := range l.fusion.Process(l.activeVirtual, event) {
			synthesized.SensorHandle = l.virtualHandles[synthesized.SensorType]
			if len(out) >= limit {
				l.logger.Warn("virtual sensor output buffer full, dropping synthesized event",
					"type", synthesized.SensorType)
				continue
			}
			out = append(out, synthesized)
		}
	}
	return out
}

// routeFlushCompletion handles META_DATA
// events: pop the head of the named handle's pending-flush FIFO and
// deliver the completion to that connection alone.
func (l *Loop) routeFlushCompletion(event schema.Event) {
	handle := event.SensorHandle
	if event.Meta != nil {
		handle = event.Meta.Handle
	}
	record, ok := l.records.Get(handle)
	if !ok {
		return
	}
	connID, ok := record.PopFlush()
	if !ok {
		return
	}
	conn, ok := l.holder.Lookup(connID)
	if !ok {
		return
	}
	if target, ok := conn.(flushTarget); ok {
		target.DeliverFlushComplete(handle)
	}
}

// handleDynamicSensorMeta handles DYNAMIC_SENSOR_META events:
// register or unregister the named
// dynamic sensor.
func (l *Loop) handleDynamicSensorMeta(event schema.Event) {
	if event.DynamicSensor == nil {
		return
	}
	if event.DynamicSensor.Connected {
		l.registerDynamicSensor(event)
	} else {
		l.unregisterDynamicSensor(event.DynamicSensor.Handle)
	}
}

// registerDynamicSensor adds a fresh registry entry for a
// HAL-announced dynamic sensor, notifies the HAL once, and broadcasts
// the announcement to every connection.
func (l *Loop) registerDynamicSensor(event schema.Event) {
	payload := event.DynamicSensor
	sensor := schema.Sensor{
		Handle:        payload.Handle,
		Type:          event.SensorType,
		Name:          dynamicSensorName(payload.Handle),
		ReportingMode: schema.ReportingContinuous,
		Flags:         schema.FlagDynamic,
		UUID:          payload.UUID,
	}
	if !l.registry.Add(sensor) {
		l.logger.Error("dynamic sensor registration collided with an existing handle", "handle", payload.Handle)
		return
	}
	if err := l.hal.HandleDynamicSensorConnection(payload.Handle, true); err != nil {
		l.logger.Error("hal.handle_dynamic_sensor_connection(connect) failed", "handle", payload.Handle, "error", err)
	}
	l.broadcastDynamicMeta(event)
}

// unregisterDynamicSensor reverses registerDynamicSensor: it removes
// the registry entry and Active Sensor Record, notifies the HAL, and
// tells every connection currently subscribed to drop it -- without
// touching the HAL per-subscription, since the sensor itself is
// already gone.
func (l *Loop) unregisterDynamicSensor(handle schema.Handle) {
	l.recentLog.Clear(handle)
	l.registry.Remove(handle)
	l.records.Remove(handle)
	if err := l.hal.HandleDynamicSensorConnection(handle, false); err != nil {
		l.logger.Error("hal.handle_dynamic_sensor_connection(disconnect) failed", "handle", handle, "error", err)
	}

	for _, conn := range l.holder.Snapshot() {
		if target, ok := conn.(dynamicMetaTarget); ok {
			target.DropSubscription(handle)
		}
	}
	l.broadcastDynamicMeta(l.synthesizeDisconnect(handle))
}

// broadcastDynamicMeta delivers event to every connection
// unconditionally, bypassing the subscription filter ordinary data
// uses.
func (l *Loop) broadcastDynamicMeta(event schema.Event) {
	for _, conn := range l.holder.Snapshot() {
		if target, ok := conn.(dynamicMetaTarget); ok {
			target.DeliverDynamicMeta(event)
		}
	}
}

func dynamicSensorName(handle schema.Handle) string {
	return "dynamic-sensor-" + schemaHandleString(handle)
}

// schemaHandleString avoids importing strconv at the top of the file
// just for one call site; Handle is a small signed int32 alias.
func schemaHandleString(h schema.Handle) string {
	if h == 0 {
		return "0"
	}
	neg := h < 0
	if neg {
		h = -h
	}
	var digits [12]byte
	i := len(digits)
	for h > 0 {
		i--
		digits[i] = byte('0' + h%10)
		h /= 10
	}
	if neg {
		i--
		digits[i] = '-'
	}
	return string(digits[i:])
}

// HandleAck processes a client acknowledgment of a wake-up event for
// connID, then immediately re-checks whether the wakelock can be
// released -- without this, a client ack arriving between dispatch
// cycles would otherwise wait for the next HAL poll or the ack
// receiver's 5s timeout before the wakelock came down.
func (l *Loop) HandleAck(connID schema.ConnectionID) {
	conn, ok := l.holder.Lookup(connID)
	if ok {
		if acker, ok := conn.(interface{ Ack() }); ok {
			acker.Ack()
		}
	}
	l.releaseWakelockIfUnneeded(l.holder.Snapshot())
}
