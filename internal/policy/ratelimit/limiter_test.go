package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	// 10 requests per second = one token every 100ms, starting with one.
	l := New(Config{RequestsPerSecond: 10, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	if err := l.Wait(ctx, "webservices.amazon.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	start = time.Now()
	if err := l.Wait(ctx, "webservices.amazon.com"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "webservices.amazon.com"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "webservices.amazon.com.br"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur > 50*time.Millisecond {
		t.Errorf("expected hosts to have independent buckets, waited %v", dur)
	}
}

func TestLimiter_ContextCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 0.1, Burst: 1})
	if err := l.Wait(context.Background(), "webservices.amazon.com"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "webservices.amazon.com")
	if err == nil {
		t.Fatal("expected wait to fail once the context expires")
	}
	// rate.Limiter fails fast when the wait would exceed the deadline.
	if !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		t.Logf("wait returned %v before deadline", err)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 5; i++ {
		if err := l.Wait(context.Background(), "webservices.amazon.com"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLimiter_NormalizesHost(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for _, host := range []string{"WebServices.Amazon.com", "webservices.amazon.com:443", "https://webservices.amazon.com/paapi5"} {
		if err := l.Wait(context.Background(), host); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Wait(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.limiters["webservices.amazon.com"]; !ok {
		t.Fatalf("expected normalized host bucket, got %v", l.limiters)
	}
	if len(l.limiters) != 2 {
		t.Fatalf("expected 2 buckets (host and unknown), got %d", len(l.limiters))
	}
}
