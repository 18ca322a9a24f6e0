// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "sync"

// UIDActivity tracks which UIDs the service currently considers
// "active" for the purposes of direct-channel pause/resume. A UID not present in the set is treated as active; UIDs are
// marked idle explicitly via SetIdle (mirroring the shell command
// surface's set-uid-state).
type UIDActivity struct {
	mu    sync.Mutex
	idle  map[int32]bool
	reset map[int32]bool // UIDs whose state was explicitly reset to the default
}

// NewUIDActivity returns a tracker with every UID initially active.
func NewUIDActivity() *UIDActivity {
	return &UIDActivity{idle: make(map[int32]bool), reset: make(map[int32]bool)}
}

// SetActive marks uid active.
func (u *UIDActivity) SetActive(uid int32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.idle, uid)
	delete(u.reset, uid)
}

// SetIdle marks uid idle.
func (u *UIDActivity) SetIdle(uid int32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.idle[uid] = true
	delete(u.reset, uid)
}

// Reset clears any explicit state for uid, returning it to the
// default (active).
func (u *UIDActivity) Reset(uid int32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.idle, uid)
	u.reset[uid] = true
}

// IsActive reports whether uid is currently active.
func (u *UIDActivity) IsActive(uid int32) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.idle[uid]
}
