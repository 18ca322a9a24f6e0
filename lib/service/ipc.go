// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "github.com/sensormux/sensord/lib/schema"

// Request is one CBOR-encoded client request on the event socket.
// The first request on a fresh connection must be ActionHello; the
// caller's UID is taken from SO_PEERCRED, never from the request.
type Request struct {
	// Action selects the operation: one of the Action* constants.
	Action string `cbor:"action"`

	// Package is the client's package name (ActionHello only). The
	// access policy and operating-mode allowlist key off it.
	Package string `cbor:"package,omitempty"`

	// Handle names the target sensor for enable/disable/set-rate and
	// config-direct.
	Handle schema.Handle `cbor:"handle,omitempty"`

	// PeriodNs and LatencyNs are the sampling period and max batch
	// latency for enable; PeriodNs alone for set-rate.
	PeriodNs  int64 `cbor:"period_ns,omitempty"`
	LatencyNs int64 `cbor:"latency_ns,omitempty"`

	// DeviceID routes open-direct to a runtime device's callback
	// instead of the HAL when non-zero.
	DeviceID int32 `cbor:"device_id,omitempty"`

	// MemoryPath is the shared-memory file backing a direct channel
	// (open-direct). The daemon opens its own descriptor and
	// validates the file's size against MemorySize before the HAL is
	// told about it.
	MemoryPath string `cbor:"memory_path,omitempty"`
	MemorySize int64  `cbor:"memory_size,omitempty"`

	// Channel names an open direct channel for config-direct and
	// close-direct.
	Channel uint64 `cbor:"channel,omitempty"`

	// RateLevel is the direct-delivery rate for config-direct; 0
	// stops delivery for Handle.
	RateLevel int32 `cbor:"rate_level,omitempty"`
}

// Request actions.
const (
	ActionHello        = "hello"
	ActionListSensors  = "list-sensors"
	ActionEnable       = "enable"
	ActionDisable      = "disable"
	ActionSetRate      = "set-rate"
	ActionFlush        = "flush"
	ActionAck          = "ack"
	ActionOpenDirect   = "open-direct"
	ActionConfigDirect = "config-direct"
	ActionCloseDirect  = "close-direct"
)

// Response answers one Request.
type Response struct {
	OK bool `cbor:"ok"`

	// Error and ErrorKind describe the failure when OK is false.
	// ErrorKind is the sensorerr.Kind slug ("bad-value",
	// "permission-denied", ...) so clients can branch without parsing
	// the message.
	Error     string `cbor:"error,omitempty"`
	ErrorKind string `cbor:"error_kind,omitempty"`

	// Sensors is the catalog for list-sensors, filtered and
	// anonymized per the caller's privilege.
	Sensors []schema.Sensor `cbor:"sensors,omitempty"`

	// Channel is the daemon-assigned direct channel ID for
	// open-direct.
	Channel uint64 `cbor:"channel,omitempty"`
}

// Frame is one item in the server-to-client CBOR stream. Responses
// and pushed events share the socket, so every outbound item is
// wrapped in a Frame the client can switch on.
type Frame struct {
	// Kind is "response" or "event".
	Kind     string        `cbor:"kind"`
	Response *Response     `cbor:"response,omitempty"`
	Event    *schema.Event `cbor:"event,omitempty"`
}

const (
	frameResponse = "response"
	frameEvent    = "event"
)

// ControlRequest is the shell command surface's wire form: the argv
// the operator typed, parsed server-side so sensordctl stays a thin
// transport.
type ControlRequest struct {
	Args []string `cbor:"args"`
}

// ControlResponse carries the command result. Binary dump output
// (dump --proto) travels in Data; everything else in Output.
type ControlResponse struct {
	ExitCode int    `cbor:"exit_code"`
	Output   string `cbor:"output,omitempty"`
	Data     []byte `cbor:"data,omitempty"`
}
