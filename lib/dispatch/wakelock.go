// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import "sync"

// Wakelock models the single system suspend-blocker the dispatch loop
// arbitrates, named SensorService_wakelock in the source system. Acquire is idempotent: acquiring an already-held wakelock is
// a no-op that reports it did nothing. AcquiredCh and ReleasedCh let
// the ack receiver observe transitions without polling.
type Wakelock struct {
	mu   sync.Mutex
	held bool

	acquired chan struct{}
	released chan struct{}
}

// NewWakelock returns a Wakelock in the released state.
func NewWakelock() *Wakelock {
	return &Wakelock{
		acquired: make(chan struct{}, 1),
		released: make(chan struct{}, 1),
	}
}

// Acquire marks the wakelock held. Returns true if this call performed
// the acquisition, false if it was already held.
func (w *Wakelock) Acquire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held {
		return false
	}
	w.held = true
	nonBlockingSend(w.acquired)
	return true
}

// Release marks the wakelock released. A no-op if not currently held.
func (w *Wakelock) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.held {
		return
	}
	w.held = false
	nonBlockingSend(w.released)
}

// Held reports whether the wakelock is currently acquired.
func (w *Wakelock) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}

// AcquiredCh receives a signal every time Acquire transitions the
// wakelock from released to held.
func (w *Wakelock) AcquiredCh() <-chan struct{} { return w.acquired }

// ReleasedCh receives a signal every time Release transitions the
// wakelock from held to released.
func (w *Wakelock) ReleasedCh() <-chan struct{} { return w.released }

func nonBlockingSend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
