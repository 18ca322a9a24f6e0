// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"sync"
	"sync/atomic"

	"github.com/sensormux/sensord/lib/hal"
	"github.com/sensormux/sensord/lib/policy"
	"github.com/sensormux/sensord/lib/recentlog"
	"github.com/sensormux/sensord/lib/registry"
	"github.com/sensormux/sensord/lib/ring"
	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

// EventSink delivers events to the client on the other end of an
// Event Connection. A real implementation writes CBOR frames to a
// socket (lib/service); tests use an in-memory fake.
type EventSink interface {
	SendEvent(event schema.Event) error
}

// subscriptionEntry pairs a subscription with the sensor it was
// created against, so send_events can test reporting-mode-specific
// behavior (on-change replay, one-shot auto-disable) without a
// registry round trip on every event.
type subscriptionEntry struct {
	sensor schema.Sensor
	sub    schema.Subscription
}

// EventConnection is one client's subscription set plus its wakelock
// refcount. Safe for concurrent use; its own mutex
// protects subscriptions independent of the outer registry lock.
type EventConnection struct {
	id          schema.ConnectionID
	packageName string
	callerUID   int32
	privileged  bool

	hal             hal.Adapter
	reg             *registry.Registry
	records         *RecordTable
	access          *policy.Access
	log             *recentlog.Log
	regRing         *ring.Ring
	modeGate        func(packageName string) error
	adjustPeriod    func(periodNs int64) int64
	acquireWakelock func()
	sink            EventSink

	mu            sync.Mutex
	subscriptions map[schema.Handle]*subscriptionEntry
	destroyed     bool

	wakelockRefcount atomic.Int32
}

// EventConnectionDeps bundles the collaborators an EventConnection
// needs, constructed once per service instance and shared across
// connections.
type EventConnectionDeps struct {
	HAL     hal.Adapter
	Reg     *registry.Registry
	Records *RecordTable
	Access  *policy.Access
	Log     *recentlog.Log
	Ring    *ring.Ring

	// ModeGate, when non-nil, is consulted before every Enable: the
	// operating-mode state machine rejects enables from packages not
	// on the active allowlist. nil means no gating.
	ModeGate func(packageName string) error

	// AdjustPeriod, when non-nil, applies the microphone-toggle clamp
	// after the permission-based one.
	AdjustPeriod func(periodNs int64) int64

	// AcquireWakelock, when non-nil, acquires the service-global
	// wakelock. Called before a wake-up sensor's cached value is
	// replayed to a new subscriber: the replay charges this
	// connection's refcount, so the wakelock (and with it the
	// ack-receiver's timeout recovery) must be armed exactly as it is
	// for a dispatched batch.
	AcquireWakelock func()
}

// NewEventConnection returns a connection for packageName/callerUID,
// delivering events to sink.
func NewEventConnection(id schema.ConnectionID, packageName string, callerUID int32, privileged bool, deps EventConnectionDeps, sink EventSink) *EventConnection {
	return &EventConnection{
		id:              id,
		packageName:     packageName,
		callerUID:       callerUID,
		privileged:      privileged,
		hal:             deps.HAL,
		reg:             deps.Reg,
		records:         deps.Records,
		access:          deps.Access,
		log:             deps.Log,
		regRing:         deps.Ring,
		modeGate:        deps.ModeGate,
		adjustPeriod:    deps.AdjustPeriod,
		acquireWakelock: deps.AcquireWakelock,
		sink:            sink,
		subscriptions:   make(map[schema.Handle]*subscriptionEntry),
	}
}

func (c *EventConnection) ID() schema.ConnectionID { return c.id }
func (c *EventConnection) Package() string         { return c.packageName }

// NeedsWakelock reports whether this connection still holds
// outstanding wake-up acknowledgments.
func (c *EventConnection) NeedsWakelock() bool { return c.wakelockRefcount.Load() > 0 }

// Ack decrements the wakelock refcount by one, called by the ack
// receiver when the client acknowledges a wake-up event.
func (c *EventConnection) Ack() {
	for {
		cur := c.wakelockRefcount.Load()
		if cur <= 0 {
			return
		}
		if c.wakelockRefcount.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// ForceClearWakelock resets the refcount to zero, used by the
// ack-receiver timeout recovery path.
func (c *EventConnection) ForceClearWakelock() { c.wakelockRefcount.Store(0) }

// Enable implements enable(handle, period_ns, batch_latency_ns, flags).
func (c *EventConnection) Enable(handle schema.Handle, periodNs, batchLatencyNs int64) (err error) {
	if c.regRing != nil {
		defer func() {
			result := sensorerr.OK
			if err != nil {
				result = sensorerr.KindOf(err)
			}
			c.regRing.Push(schema.RegistrationEntry{
				Package: c.packageName, Handle: handle, PeriodNs: periodNs,
				LatencyNs: batchLatencyNs, Action: schema.RegistrationActivate, ResultCode: result,
			})
		}()
	}

	if c.modeGate != nil {
		if err := c.modeGate(c.packageName); err != nil {
			return err
		}
	}

	sensor, ok := c.reg.Lookup(handle)
	if !ok {
		return sensorerr.New(sensorerr.BadValue, "connection.enable", "unknown handle")
	}

	allowed, err := c.access.CanAccess(sensor, c.packageName, c.callerUID)
	if err != nil {
		return err
	}
	if !allowed {
		return sensorerr.New(sensorerr.PermissionDenied, "connection.enable", "access denied for "+sensor.Name)
	}

	periodNs, err = c.access.AdjustSamplingPeriod(periodNs, c.packageName)
	if err != nil {
		return err
	}
	if c.adjustPeriod != nil {
		periodNs = c.adjustPeriod(periodNs)
	}
	periodNs = sensor.ClampPeriod(periodNs)

	c.mu.Lock()
	_, alreadySubscribed := c.subscriptions[handle]
	c.mu.Unlock()

	record, created := c.records.GetOrCreate(handle)
	if created {
		c.log.MarkStale(handle)
	}

	if !created && !alreadySubscribed && sensor.ReportingMode == schema.ReportingOnChange {
		if last, fresh := c.log.Lookup(handle); fresh {
			if sensor.IsWakeUp() {
				if c.acquireWakelock != nil {
					c.acquireWakelock()
				}
				c.wakelockRefcount.Add(1)
			}
			_ = c.sink.SendEvent(last)
		}
	}

	needsFlush := !created && sensor.ReportingMode == schema.ReportingContinuous

	if err := c.hal.Batch(handle, 0, periodNs, batchLatencyNs); err != nil {
		c.unwindRecord(handle, record, alreadySubscribed)
		return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.enable", "hal.batch failed", err)
	}

	entry := &subscriptionEntry{sensor: sensor, sub: schema.Subscription{
		SamplingPeriodNs:  periodNs,
		MaxBatchLatencyNs: batchLatencyNs,
		AppOp:             sensor.RequiredAppOp,
	}}

	if needsFlush {
		if err := c.hal.Flush(handle); err != nil {
			c.unwindRecord(handle, record, alreadySubscribed)
			return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.enable", "hal.flush failed", err)
		}
		entry.sub.FirstFlushPending = true
		record.PushFlush(c.id)
	}

	if err := c.hal.Activate(handle, true); err != nil {
		c.unwindRecord(handle, record, alreadySubscribed)
		return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.enable", "hal.activate failed", err)
	}

	c.mu.Lock()
	c.subscriptions[handle] = entry
	c.mu.Unlock()
	record.Connections[c.id] = struct{}{}

	return nil
}

// unwindRecord removes this connection's membership from record if it
// was added this call and deletes the record entirely if it is now
// unreferenced -- used to unwind a failed Enable partway through.
func (c *EventConnection) unwindRecord(handle schema.Handle, record *schema.ActiveSensorRecord, wasAlreadySubscribed bool) {
	if !wasAlreadySubscribed {
		delete(record.Connections, c.id)
	}
	c.records.RemoveIfEmpty(handle)
}

// Disable implements disable(handle).
func (c *EventConnection) Disable(handle schema.Handle) (err error) {
	if c.regRing != nil {
		defer func() {
			result := sensorerr.OK
			if err != nil {
				result = sensorerr.KindOf(err)
			}
			c.regRing.Push(schema.RegistrationEntry{
				Package: c.packageName, Handle: handle, Action: schema.RegistrationDeactivate, ResultCode: result,
			})
		}()
	}

	c.mu.Lock()
	_, ok := c.subscriptions[handle]
	if ok {
		delete(c.subscriptions, handle)
	}
	c.mu.Unlock()
	if !ok {
		return sensorerr.New(sensorerr.BadValue, "connection.disable", "not subscribed to handle")
	}
	return c.detachFromRecord(handle)
}

func (c *EventConnection) detachFromRecord(handle schema.Handle) error {
	record, ok := c.records.Get(handle)
	if !ok {
		return nil
	}
	delete(record.Connections, c.id)
	if record.Empty() {
		if err := c.hal.Activate(handle, false); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.disable", "hal.activate(false) failed", err)
		}
		c.records.RemoveIfEmpty(handle)
		c.log.MarkStale(handle)
	}
	return nil
}

// SetEventRate implements set_event_rate(handle, period_ns).
func (c *EventConnection) SetEventRate(handle schema.Handle, periodNs int64) error {
	c.mu.Lock()
	entry, ok := c.subscriptions[handle]
	c.mu.Unlock()
	if !ok {
		return sensorerr.New(sensorerr.BadValue, "connection.set_event_rate", "not subscribed to handle")
	}

	periodNs, err := c.access.AdjustSamplingPeriod(periodNs, c.packageName)
	if err != nil {
		return err
	}
	if c.adjustPeriod != nil {
		periodNs = c.adjustPeriod(periodNs)
	}
	periodNs = entry.sensor.ClampPeriod(periodNs)

	if err := c.hal.Batch(handle, 0, periodNs, entry.sub.MaxBatchLatencyNs); err != nil {
		return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.set_event_rate", "hal.batch failed", err)
	}

	c.mu.Lock()
	entry.sub.SamplingPeriodNs = periodNs
	c.mu.Unlock()
	return nil
}

// Flush implements flush() -- requests a flush for every subscribed
// handle, queuing this connection on each record's pending-flush FIFO.
func (c *EventConnection) Flush() error {
	c.mu.Lock()
	handles := make([]schema.Handle, 0, len(c.subscriptions))
	for h := range c.subscriptions {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	if len(handles) == 0 {
		return sensorerr.New(sensorerr.BadValue, "connection.flush", "no active subscriptions")
	}

	for _, h := range handles {
		if err := c.hal.Flush(h); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.flush", "hal.flush failed", err)
		}
		if record, ok := c.records.Get(h); ok {
			record.PushFlush(c.id)
		}
		c.mu.Lock()
		c.subscriptions[h].sub.PendingFlushCount++
		c.mu.Unlock()
	}
	return nil
}

// DeliverFlushComplete is called by the dispatch loop when this
// connection reaches the head of a record's pending-flush FIFO,
// delivering the META_DATA completion event.
func (c *EventConnection) DeliverFlushComplete(handle schema.Handle) {
	c.mu.Lock()
	entry, ok := c.subscriptions[handle]
	if ok {
		if entry.sub.FirstFlushPending {
			entry.sub.FirstFlushPending = false
		} else if entry.sub.PendingFlushCount > 0 {
			entry.sub.PendingFlushCount--
		}
	}
	c.mu.Unlock()

	_ = c.sink.SendEvent(schema.Event{
		Version: schema.EventVersion, SensorHandle: handle, Kind: schema.EventMetaData,
		Meta: &schema.MetaPayload{Handle: handle},
	})
}

// SendEvents delivers a batch of dispatch-loop events to this
// connection, filtering by subscription, charging the wakelock
// refcount for wake-up events, and auto-disabling one-shot sensors after
// their single delivery. Event payloads are delivered as received; no
// data masking is applied here.
func (c *EventConnection) SendEvents(batch []schema.Event) {
	for _, event := range batch {
		c.mu.Lock()
		entry, ok := c.subscriptions[event.SensorHandle]
		c.mu.Unlock()
		if !ok {
			continue
		}

		if event.NeedsAck() {
			c.wakelockRefcount.Add(1)
		}
		if err := c.sink.SendEvent(event); err != nil {
			continue
		}

		if entry.sensor.ReportingMode == schema.ReportingOneShot {
			_ = c.Disable(event.SensorHandle)
		}
	}
}

// Destroy implements destroy(): idempotent teardown of every
// subscription, synchronous with respect to the caller.
func (c *EventConnection) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	handles := make([]schema.Handle, 0, len(c.subscriptions))
	for h := range c.subscriptions {
		handles = append(handles, h)
	}
	c.subscriptions = make(map[schema.Handle]*subscriptionEntry)
	c.mu.Unlock()

	for _, h := range handles {
		_ = c.detachFromRecord(h)
	}
}

// Privileged reports whether this connection's caller is privileged
// for the purposes of recent-value masking and UUID anonymization.
func (c *EventConnection) Privileged() bool { return c.privileged }

// UID returns the calling client's UID.
func (c *EventConnection) UID() int32 { return c.callerUID }

// Sink returns the delivery sink, exposed so the diagnostic dump can
// interrogate queue depth without the connection knowing the sink's
// concrete type.
func (c *EventConnection) Sink() EventSink { return c.sink }

// SubscribedHandles returns the handles this connection is currently
// subscribed to, for the diagnostic dump and UID-state bookkeeping.
func (c *EventConnection) SubscribedHandles() []schema.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.Handle, 0, len(c.subscriptions))
	for h := range c.subscriptions {
		out = append(out, h)
	}
	return out
}

// DropSubscription removes handle from this connection's subscription
// map without touching the HAL, used when a dynamic sensor is
// deregistered out from under an active subscriber. The
// HAL side of the teardown has already happened by the time this is
// called, so unlike Disable this never issues hal.Activate.
func (c *EventConnection) DropSubscription(handle schema.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, handle)
}

// DeliverDynamicMeta sends a DYNAMIC_SENSOR_META event to this
// connection unconditionally, bypassing the subscription filter that
// SendEvents applies to ordinary sample data -- these events are
// informational broadcasts to every connection, not data for
// subscribers of a particular handle.
func (c *EventConnection) DeliverDynamicMeta(event schema.Event) {
	_ = c.sink.SendEvent(event)
}
