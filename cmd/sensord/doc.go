// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command sensord is the sensor multiplexing daemon. It loads its
// YAML configuration, attaches to a simulated sensor HAL (selected with
// --simulated-hal, the only HAL transport it has; without the flag it
// exits with an error), and serves the event and control sockets until
// terminated.
package main
