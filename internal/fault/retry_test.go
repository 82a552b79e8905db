package fault

import (
	"testing"
	"time"
)

func TestNextDelayBackoff(t *testing.T) {
	engine := NewRetryPolicyEngine()

	// NETWORK_ERROR: 2s基础、2倍退避，延迟严格递增
	var prev time.Duration
	for attempt := 1; attempt <= engine.MaxAttempts(CategoryNetwork); attempt++ {
		d := engine.NextDelay(CategoryNetwork, attempt)
		if d == nil {
			t.Fatalf("attempt %d: expected delay, got nil", attempt)
		}
		if *d <= prev {
			t.Fatalf("attempt %d: delay %v not greater than previous %v", attempt, *d, prev)
		}
		prev = *d
	}

	if engine.NextDelay(CategoryNetwork, engine.MaxAttempts(CategoryNetwork)+1) != nil {
		t.Fatalf("expected nil once attempts are exhausted")
	}
}

func TestNextDelayNonRetryable(t *testing.T) {
	engine := NewRetryPolicyEngine()
	for _, cat := range []Category{CategoryValidation, CategoryAuthentication, CategoryExchangeRejected, CategoryInsufficientBalance} {
		if engine.NextDelay(cat, 1) != nil {
			t.Errorf("%s: non-retryable category must return nil", cat)
		}
		if engine.MaxAttempts(cat) != 1 {
			t.Errorf("%s: non-retryable category gets exactly one attempt", cat)
		}
	}
}

func TestNextDelayCapped(t *testing.T) {
	engine := NewRetryPolicyEngineWith(map[Category]RetryPolicy{
		CategoryNetwork: {MaxAttempts: 20, BaseDelay: time.Minute, BackoffMultiplier: 10},
	})
	d := engine.NextDelay(CategoryNetwork, 10)
	if d == nil {
		t.Fatalf("expected delay")
	}
	if *d != 5*time.Minute {
		t.Fatalf("expected delay capped at 5m, got %v", *d)
	}
}

func TestNextDelayRateLimitSlower(t *testing.T) {
	engine := NewRetryPolicyEngine()
	rl := engine.NextDelay(CategoryRateLimit, 1)
	net := engine.NextDelay(CategoryNetwork, 1)
	if rl == nil || net == nil {
		t.Fatalf("expected delays for both categories")
	}
	if *rl <= *net {
		t.Fatalf("rate limit backoff (%v) should start slower than network (%v)", *rl, *net)
	}
}

func TestNextDelayInvalidAttempt(t *testing.T) {
	engine := NewRetryPolicyEngine()
	if engine.NextDelay(CategoryNetwork, 0) != nil {
		t.Fatalf("attempt numbers are 1-based")
	}
}
