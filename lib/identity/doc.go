// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity implements sensord's anonymized dynamic-sensor
// identity scheme: a 128-byte HMAC key persisted once at
// init and used thereafter to derive stable, per-app anonymized
// sensor IDs from a sensor's UUID and the caller's UID.
// [LoadOrGenerate] reads the key from a restricted file, generating
// and persisting a fresh key on first run. The persisted file is
// written atomically (temporary file, fsync, rename, parent directory
// fsync) using the same durability discipline sensord's other
// persisted state files use, so a reader never observes a partial
// key. Persistence failure is not fatal -- the in-memory key is still
// usable for the lifetime of the process; only cross-reboot ID
// stability is lost.
// [IDFromUUID] derives the anonymized ID. [AnonymizeUUID] implements
// the non-privileged caller redaction described in the same section.
package identity
