// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// ConnectionID identifies an Event Connection or Direct Connection for
// the lifetime of the client session that owns it. IDs are never
// reused within a process lifetime, so a stale ID can always be
// recognized as stale rather than accidentally matching a new
// connection.
type ConnectionID uint64
