package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, 4*time.Millisecond)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := NewPolicy(5, time.Millisecond, 4*time.Millisecond)
	permanent := errors.New("bad request")

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return permanent
	}, func(err error) bool { return false })

	if !errors.Is(err, permanent) {
		t.Fatalf("Do() = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, 2*time.Millisecond)
	transient := errors.New("timeout")

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return transient
	}, func(err error) bool { return true })

	if !errors.Is(err, transient) {
		t.Fatalf("Do() = %v, want %v", err, transient)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	p := NewPolicy(10, 50*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() = %v, want context.Canceled", err)
	}
	if calls == 0 {
		t.Fatal("fn was never called")
	}
}
