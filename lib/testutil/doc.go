// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for sensord packages.
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. This exists because Unix domain sockets have a
// 108-byte path limit (sun_path in sockaddr_un), and t.TempDir() paths
// are often too deeply nested to fit a socket file underneath them.
// The directory is automatically removed when the test completes.
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. A few tests
// still use real wall-clock waits of their own (direct time.After
// selects, and a polling helper in the service tests that sleeps).
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// handles, request IDs, or sensor names distinguishable within a
// single test run.
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
// This package has no sensord-internal dependencies.
package testutil
