package shutdown

import (
	"testing"
	"time"

	"github.com/exchangecollector/core/pkg/xlog"
)

func TestShutdownWithTimeout(t *testing.T) {
	s := NewShutdown(xlog.Noop())

	quickCompleted := false
	slowCompleted := false
	timeoutDetectorCompleted := false

	s.HookShutdownCallback("quick", func() {
		time.Sleep(50 * time.Millisecond)
		quickCompleted = true
	}, 1*time.Second)

	s.HookShutdownCallback("slow", func() {
		time.Sleep(2 * time.Second)
		slowCompleted = true
	}, 100*time.Millisecond)

	s.HookShutdownCallback("timeout-detector", func() {
		time.Sleep(200 * time.Millisecond)
		timeoutDetectorCompleted = true
	}, 50*time.Millisecond)

	s.ShutdownNow()

	if !quickCompleted {
		t.Error("quick callback should have completed")
	}
	if slowCompleted {
		t.Error("slow callback should not have completed due to timeout")
	}
	if timeoutDetectorCompleted {
		t.Error("timeout detector should not have completed due to timeout")
	}
}

func TestShutdownWithoutTimeout(t *testing.T) {
	s := NewShutdown(xlog.Noop())

	completed := false
	s.HookShutdownCallback("no-timeout", func() {
		time.Sleep(100 * time.Millisecond)
		completed = true
	}, 0)

	s.ShutdownNow()

	if !completed {
		t.Error("callback without timeout should have completed")
	}
}
