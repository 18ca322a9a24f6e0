// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hal defines the hardware abstraction layer contract sensord
// dispatches against and a deterministic in-memory
// implementation ([Mock]) for tests and local development.
// The real HAL is an opaque collaborator: a platform-specific driver
// reachable only through this interface. Nothing in sensord depends
// on how a concrete HAL talks to silicon; [Adapter] is the entire
// contract.
package hal
