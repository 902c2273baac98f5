package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBurstCollapsesToOneCall(t *testing.T) {
	d := New(10 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	done := make(chan struct{}, 1)
	for i := 0; i < 10; i++ {
		d.Trigger(func() {
			calls.Add(1)
			select {
			case done <- struct{}{}:
			default:
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call after burst, got %d", got)
	}
}

func TestSupersededTriggerNeverRuns(t *testing.T) {
	d := New(10 * time.Millisecond)
	defer d.Stop()

	var firstRan atomic.Bool
	d.Trigger(func() { firstRan.Store(true) })

	done := make(chan struct{})
	d.Trigger(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second trigger never fired")
	}
	if firstRan.Load() {
		t.Error("superseded trigger ran")
	}
}

func TestSeparateWindowsEachFire(t *testing.T) {
	d := New(5 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		fired := make(chan struct{})
		d.Trigger(func() {
			calls.Add(1)
			close(fired)
		})
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("trigger never fired")
		}
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestStopCancelsPending(t *testing.T) {
	d := New(10 * time.Millisecond)

	var ran atomic.Bool
	d.Trigger(func() { ran.Store(true) })
	d.Stop()

	time.Sleep(30 * time.Millisecond)
	if ran.Load() {
		t.Error("pending trigger ran after Stop")
	}

	// Triggers after Stop are rejected.
	d.Trigger(func() { ran.Store(true) })
	time.Sleep(30 * time.Millisecond)
	if ran.Load() {
		t.Error("trigger after Stop ran")
	}
}
