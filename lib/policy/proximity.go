// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"sync"

	"github.com/sensormux/sensord/lib/sensorerr"
)

// ProximityListener is notified when the proximity sensor's active
// state changes (any subscriber appears or the last one leaves). The
// display and power stacks key off this to gate touch input while a
// call is held to the ear.
type ProximityListener func(active bool)

// ProximityNotifier fans proximity active-state transitions out to
// registered listeners. Like PrivacyMirror it uses a single ordered
// worker goroutine: transitions are delivered to every listener in
// the order they were observed, without dedicating an OS thread per
// transition.
type ProximityNotifier struct {
	mu        sync.Mutex
	active    bool
	listeners []proximityEntry

	queue chan bool
	done  chan struct{}
}

// proximityEntry keeps listeners in registration order so every
// transition reaches them in the same sequence.
type proximityEntry struct {
	name string
	fn   ProximityListener
}

// NewProximityNotifier returns a ProximityNotifier in the inactive
// state with its delivery worker running. Call Close to stop it.
func NewProximityNotifier() *ProximityNotifier {
	n := &ProximityNotifier{
		queue: make(chan bool, 64),
		done:  make(chan struct{}),
	}
	go n.deliver()
	return n
}

// AddListener registers l under name. Returns an AlreadyExists error
// if the name is taken.
func (n *ProximityNotifier) AddListener(name string, l ProximityListener) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, entry := range n.listeners {
		if entry.name == name {
			return sensorerr.New(sensorerr.AlreadyExists, "policy.proximity", "listener "+name+" already registered")
		}
	}
	n.listeners = append(n.listeners, proximityEntry{name: name, fn: l})
	return nil
}

// RemoveListener unregisters the named listener. Returns a
// NameNotFound error if it was never registered.
func (n *ProximityNotifier) RemoveListener(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, entry := range n.listeners {
		if entry.name == name {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return nil
		}
	}
	return sensorerr.New(sensorerr.NameNotFound, "policy.proximity", "no listener named "+name)
}

// Active reports the current proximity active state.
func (n *ProximityNotifier) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// SetActive records a state change and enqueues delivery. Redundant
// transitions are dropped; delivery never blocks the caller.
func (n *ProximityNotifier) SetActive(active bool) {
	n.mu.Lock()
	changed := n.active != active
	n.active = active
	n.mu.Unlock()

	if !changed {
		return
	}
	select {
	case n.queue <- active:
	case <-n.done:
	}
}

func (n *ProximityNotifier) deliver() {
	for {
		select {
		case active := <-n.queue:
			n.mu.Lock()
			listeners := append([]proximityEntry(nil), n.listeners...)
			n.mu.Unlock()
			for _, entry := range listeners {
				entry.fn(active)
			}
		case <-n.done:
			return
		}
	}
}

// Close stops the delivery worker. Pending queued transitions are
// dropped.
func (n *ProximityNotifier) Close() {
	close(n.done)
}
