// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire and in-memory data model shared by
// every sensord component: sensor descriptors, event records,
// per-connection subscription state, active-sensor bookkeeping, direct
// channels, the operating-mode state machine, and the registration
// ring used for forensic dumps.
// Types in this package carry `cbor` struct tags: they cross the
// event and control socket boundary via lib/codec. None of them embed
// behavior; the packages that own a concept (lib/registry,
// lib/connection, lib/dispatch, lib/policy) hold and mutate these
// values behind their own locks.
package schema
