// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// ElevateScheduling pins the calling goroutine to its OS thread and
// requests SCHED_FIFO at the given priority for it. A
// priority of 0 or below disables the attempt entirely.
// Failure is not fatal: containers and unprivileged test runs lack
// CAP_SYS_NICE, and the loop is still correct at normal priority, just
// more exposed to scheduling jitter under load.
func ElevateScheduling(priority int, logger *slog.Logger) {
	if priority <= 0 {
		return
	}
	runtime.LockOSThread()
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("dispatch thread FIFO elevation failed",
			"priority", priority,
			"error", err)
	}
}
