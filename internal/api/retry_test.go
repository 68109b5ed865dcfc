package api

import (
	"context"
	"testing"
	"time"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", p.MaxRetries)
	}
	if p.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", p.BaseDelay)
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.expected {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestRetryPolicy_ScheduleMatchesDelay(t *testing.T) {
	for _, base := range []time.Duration{time.Second, 10 * time.Millisecond, 3 * time.Second} {
		p := RetryPolicy{MaxRetries: 6, BaseDelay: base}
		schedule := p.schedule()

		for n := 0; n < 6; n++ {
			got := schedule.NextBackOff()
			if want := p.Delay(n); got != want {
				t.Errorf("base %v: NextBackOff #%d = %v, want %v", base, n+1, got, want)
			}
		}
	}
}

func TestRetryPolicy_ScheduleIsFreshPerCall(t *testing.T) {
	p := DefaultRetryPolicy()

	first := p.schedule()
	first.NextBackOff()
	first.NextBackOff()

	second := p.schedule()
	if got := second.NextBackOff(); got != time.Second {
		t.Errorf("fresh schedule starts at %v, want 1s", got)
	}
}

func TestSleepContext(t *testing.T) {
	start := time.Now()
	if err := sleepContext(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("sleepContext() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 10ms", elapsed)
	}
}

func TestSleepContext_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := sleepContext(ctx, 10*time.Second)
	if err != context.Canceled {
		t.Errorf("sleepContext() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("sleepContext() took %v, should have returned after cancel", elapsed)
	}
}

func TestSleepContext_ZeroDelay(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("sleepContext(0) error = %v", err)
	}
}

func BenchmarkRetryPolicy_Delay(b *testing.B) {
	p := DefaultRetryPolicy()
	for i := 0; i < b.N; i++ {
		_ = p.Delay(i % 5)
	}
}
