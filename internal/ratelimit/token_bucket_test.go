package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurst(t *testing.T) {
	tb := NewTokenBucket(1, 3)
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := tb.Wait(ctx, 1)
		cancel()
		if err != nil {
			t.Fatalf("Wait() #%d = %v, want nil within burst", i, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx, 1); err == nil {
		t.Error("Wait() = nil after burst exhausted")
	}
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	tb := NewTokenBucket(0.001, 1)
	if err := tb.Wait(context.Background(), 1); err != nil {
		t.Fatalf("first token should be available: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx, 1); err == nil {
		t.Error("Wait() returned nil although no token could arrive before the deadline")
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	tb := NewTokenBucket(0, 10)
	if tb != nil {
		t.Fatal("NewTokenBucket(0, ...) should disable limiting")
	}
	for i := 0; i < 1000; i++ {
		if err := tb.Wait(context.Background(), 1); err != nil {
			t.Fatalf("Wait() on disabled bucket = %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tb.Wait(ctx, 1); err == nil {
		t.Error("Wait() on disabled bucket ignored a cancelled context")
	}
}
