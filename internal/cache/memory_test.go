package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := p.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("unexpected get: %q %v", got, err)
	}
	got[0] = 'x'
	again, _ := p.Get(ctx, "k")
	if string(again) != "v" {
		t.Fatalf("stored value mutated through returned slice")
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	_ = p.Set(ctx, "k", []byte("v"), time.Minute)
	now = now.Add(30 * time.Second)
	if _, err := p.Get(ctx, "k"); err != nil {
		t.Fatalf("expected hit before ttl, got %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}

func TestNoopProvider(t *testing.T) {
	var p Provider = NoopProvider{}
	_ = p.Set(context.Background(), "k", []byte("v"), time.Minute)
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("noop provider should always miss")
	}
}

func TestNewValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
