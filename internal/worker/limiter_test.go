package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 20; i++ {
		if !limiter.Allow("http://search.example") {
			t.Fatalf("request %d throttled with rate disabled", i)
		}
	}
}

func TestLimiter_PerHost(t *testing.T) {
	limiter := NewLimiter(1, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "http://search.example/_search"); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}

	if limiter.Allow("http://search.example/other") {
		t.Errorf("expected same host to be exhausted")
	}

	if !limiter.Allow("http://checkpoints.example") {
		t.Errorf("expected other host to pass")
	}
}

func TestLimiter_SetHostRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetHostRate("slow.example", 0.1, 1)

	if !limiter.Allow("http://slow.example") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("http://slow.example") {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("http://fast.example") {
		t.Errorf("other host should pass")
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	limiter := NewLimiter(0.01, 1)
	limiter.Allow("http://slow.example")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "http://slow.example"); err == nil {
		t.Errorf("expected wait to fail once the context expires")
	}
}

func TestExtractHost(t *testing.T) {
	host, err := extractHost("http://example.com:9200/foo")
	if err != nil {
		t.Fatalf("extractHost failed: %v", err)
	}
	if host != "example.com:9200" {
		t.Errorf("expected example.com:9200, got %s", host)
	}

	if _, err := extractHost("::invalid"); err == nil {
		t.Errorf("expected error for invalid URL")
	}
	if _, err := extractHost("/relative"); err == nil {
		t.Errorf("expected error for URL without host")
	}
}
