// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ring implements the Registration Ring: a bounded
// ring buffer of registration decisions (enable/disable outcomes) kept
// for forensic diagnostic dumps. The buffer silently overwrites its
// oldest entry once full; [Ring.Entries] returns entries in
// reverse-chronological order, matching the diagnostic dump's
// ordering requirement.
package ring
