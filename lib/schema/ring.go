// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"time"

	"github.com/sensormux/sensord/lib/sensorerr"
)

// RegistrationAction distinguishes activation from deactivation in a
// RegistrationEntry.
type RegistrationAction int32

const (
	RegistrationActivate RegistrationAction = iota
	RegistrationDeactivate
)

// RegistrationEntry records one enable/disable decision for the
// forensic Registration Ring dump.
type RegistrationEntry struct {
	Timestamp  time.Time          `cbor:"timestamp"`
	Package    string             `cbor:"package"`
	Handle     Handle             `cbor:"handle"`
	PeriodNs   int64              `cbor:"period_ns"`
	LatencyNs  int64              `cbor:"latency_ns"`
	Action     RegistrationAction `cbor:"action"`
	ResultCode sensorerr.Kind     `cbor:"result_code"`
}

// Success reports whether the registration decision succeeded.
func (e RegistrationEntry) Success() bool { return e.ResultCode == sensorerr.OK }
