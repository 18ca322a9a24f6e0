// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy implements the Access Policy and Operating Mode State
// Machine: the can-access gate checked before a
// client may register for a sensor, the sampling-rate caps applied to
// unprivileged and microphone-restricted callers, UID active/idle
// tracking, the sensor-privacy mirror, and the five-state operating
// mode machine that governs whether sensors run at all.
// The proximity-state notifier in this package replaces the
// thread-per-transition design the service historically used with a
// single ordered worker queue: callbacks still fire in the order their
// transitions were observed, but delivery no longer blocks an OS
// thread per transition.
package policy
