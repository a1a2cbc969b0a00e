package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	limiter := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Errorf("request over the limit should be denied")
	}
}

func TestAddressesAreIndependent(t *testing.T) {
	limiter := New(1, time.Minute)

	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("first address should be allowed")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Errorf("second address should have its own window")
	}
	if limiter.Allow("10.0.0.1") {
		t.Errorf("first address should now be denied")
	}
}

func TestWindowRollsOver(t *testing.T) {
	limiter := New(1, 10*time.Millisecond)

	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("first request should be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("second request in the same window should be denied")
	}

	time.Sleep(15 * time.Millisecond)
	if !limiter.Allow("10.0.0.1") {
		t.Errorf("request after the window rolled over should be allowed")
	}
}

func TestZeroLimitDeniesEverything(t *testing.T) {
	limiter := New(0, time.Minute)

	if limiter.Allow("10.0.0.1") {
		t.Errorf("a zero limit should deny every request")
	}
}
