package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoffMonotonic(t *testing.T) {
	b := DefaultBackoff()
	prev := time.Duration(0)
	for attempts := 1; attempts <= b.MaxAttempts; attempts++ {
		d := b.Next(attempts)
		if d < prev || (d == prev && d != b.Cap) {
			t.Fatalf("backoff not strictly increasing below cap at attempt %d", attempts)
		}
		if d > b.Cap {
			t.Fatalf("backoff exceeded cap at attempt %d: %s", attempts, d)
		}
		prev = d
	}
}

func TestBackoffCap(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 4 * time.Second, MaxAttempts: 10}
	if got := b.Next(1); got != time.Second {
		t.Fatalf("expected 1s, got %s", got)
	}
	if got := b.Next(3); got != 4*time.Second {
		t.Fatalf("expected cap 4s, got %s", got)
	}
	if got := b.Next(100); got != 4*time.Second {
		t.Fatalf("expected cap 4s for large attempts, got %s", got)
	}
}

func TestBackoffClampsAttempts(t *testing.T) {
	b := DefaultBackoff()
	if got := b.Next(0); got != b.Base {
		t.Fatalf("expected base for attempt 0, got %s", got)
	}
}

func TestExhausted(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Minute, MaxAttempts: 3}
	if b.Exhausted(2) {
		t.Fatal("should not be exhausted at 2 of 3")
	}
	if !b.Exhausted(3) {
		t.Fatal("should be exhausted at 3 of 3")
	}
}

func TestTerminalError(t *testing.T) {
	base := errors.New("schema rejected")
	err := Terminal(base)
	if !IsTerminal(err) {
		t.Fatal("expected terminal")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected unwrap to reach base error")
	}
	wrapped := fmt.Errorf("publish: %w", err)
	if !IsTerminal(wrapped) {
		t.Fatal("expected terminal through wrapping")
	}
	if IsTerminal(errors.New("transient")) {
		t.Fatal("plain errors are retryable")
	}
	if Terminal(nil) != nil {
		t.Fatal("Terminal(nil) must be nil")
	}
}
