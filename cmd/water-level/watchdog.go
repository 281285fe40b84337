package main

import (
	"context"
	"time"

	"github.com/henrique-kyke/water-level-controller/internal/supervisor"
)

// watchdogSleeper returns a Sleeper that pings at least every interval while
// it waits, so that a long reconnect backoff does not look like a hang to
// the systemd watchdog. A non-positive interval means no watchdog.
func watchdogSleeper(interval time.Duration, ping func()) supervisor.Sleeper {
	if interval <= 0 {
		return supervisor.SleepContext
	}
	return func(ctx context.Context, d time.Duration) bool {
		for {
			ping()
			if d <= interval {
				return supervisor.SleepContext(ctx, d)
			}
			if !supervisor.SleepContext(ctx, interval) {
				return false
			}
			d -= interval
		}
	}
}
