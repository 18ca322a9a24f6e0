// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service composes the sensord daemon: registry
// initialization from the HAL catalog, virtual-sensor synthesis, the
// dispatch and runtime-sensor loops, the ack receiver, the policy
// reactions (sensor privacy, UID activity, mic toggle, operating
// mode), and the two Unix sockets clients talk to -- the event socket
// for subscriptions and delivery, and the control socket for the
// privileged shell command surface and the diagnostic dump.
package service
