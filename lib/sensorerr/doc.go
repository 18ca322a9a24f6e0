// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sensorerr defines the typed error taxonomy returned across
// every sensord package boundary. Every exported function that can
// fail returns either nil, a *sensorerr.Error, or an error wrapping one
// via fmt.Errorf("...: %w", err) -- nothing crosses a boundary as a
// bare string.
// Callers distinguish error kinds with errors.As:
//
//	var sErr *sensorerr.Error
//	if errors.As(err, &sErr) && sErr.Kind == sensorerr.PermissionDenied {
//	    ...
//	}
//
// Kind values mirror the taxonomy a sensor-multiplexing HAL boundary
// needs: NoInit, BadValue, InvalidOperation, PermissionDenied,
// AlreadyExists, NameNotFound, Unsupported, TransactionFailed, and
// DeadObject. DeadObject is handled internally by the HAL reconnection
// protocol and should never reach a client.
package sensorerr
