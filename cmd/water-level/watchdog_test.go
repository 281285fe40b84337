package main

import (
	"context"
	"testing"
	"time"
)

func TestWatchdogSleeperPingsDuringLongWait(t *testing.T) {
	pings := 0
	sleep := watchdogSleeper(10*time.Millisecond, func() { pings++ })

	start := time.Now()
	if !sleep(context.Background(), 35*time.Millisecond) {
		t.Fatal("sleep returned false without cancellation")
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("slept %v, want at least 35ms", elapsed)
	}
	if pings != 4 {
		t.Errorf("pings: got %d, want 4", pings)
	}
}

func TestWatchdogSleeperShortWaitPingsOnce(t *testing.T) {
	pings := 0
	sleep := watchdogSleeper(time.Second, func() { pings++ })

	if !sleep(context.Background(), time.Millisecond) {
		t.Fatal("sleep returned false without cancellation")
	}
	if pings != 1 {
		t.Errorf("pings: got %d, want 1", pings)
	}
}

func TestWatchdogSleeperCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pings := 0
	sleep := watchdogSleeper(time.Millisecond, func() { pings++ })
	if sleep(ctx, time.Hour) {
		t.Error("sleep returned true after cancellation")
	}
	if pings != 1 {
		t.Errorf("pings: got %d, want 1", pings)
	}
}

func TestWatchdogSleeperDisabled(t *testing.T) {
	sleep := watchdogSleeper(0, func() { t.Error("ping without a watchdog") })
	if !sleep(context.Background(), time.Millisecond) {
		t.Error("sleep returned false without cancellation")
	}
}
