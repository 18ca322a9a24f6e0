// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/sensormux/sensord/lib/clock"
	"github.com/sensormux/sensord/lib/connection"
)

// DefaultAckTimeout is the grace period the ack receiver waits for
// every wakelock-charged connection to acknowledge before force
// clearing refcounts.
const DefaultAckTimeout = 5 * time.Second

// AckReceiver is the last-resort safety net: if the
// wakelock is still held for the configured timeout (DefaultAckTimeout
// when none is given) after it was acquired, some
// client failed to acknowledge its wake-up events (crashed, hung, or
// simply slow), and every connection's refcount is force-cleared so
// the system can suspend again.
type AckReceiver struct {
	wakelock *Wakelock
	holder   *connection.Holder
	clock    clock.Clock
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAckReceiver returns an AckReceiver watching wakelock. timeout
// defaults to DefaultAckTimeout when zero.
func NewAckReceiver(wakelock *Wakelock, holder *connection.Holder, clk clock.Clock, timeout time.Duration, logger *slog.Logger) *AckReceiver {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AckReceiver{wakelock: wakelock, holder: holder, clock: clk, timeout: timeout, logger: logger}
}

// Run watches for wakelock acquisitions until ctx is cancelled. Each
// acquisition starts a fresh timeout window; Run never returns early
// on a single timeout firing, since the wakelock may be legitimately
// re-acquired again later in the process lifetime.
func (a *AckReceiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.wakelock.AcquiredCh():
			a.waitForRelease(ctx)
		}
	}
}

func (a *AckReceiver) waitForRelease(ctx context.Context) {
	timer := a.clock.After(a.timeout)
	select {
	case <-ctx.Done():
		return
	case <-a.wakelock.ReleasedCh():
		return
	case <-timer:
		if !a.wakelock.Held() {
			// Released between the timer firing and this goroutine
			// observing it; nothing to clean up.
			return
		}
		a.logger.Warn("ack timeout elapsed with wakelock still held, force-clearing connection refcounts",
			"timeout", a.timeout)
		for _, conn := range a.holder.Snapshot() {
			if target, ok := conn.(fanoutTarget); ok {
				target.ForceClearWakelock()
			}
		}
		a.wakelock.Release()
	}
}
