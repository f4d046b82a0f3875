package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemory_FixedWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	l := NewMemory(MemoryConfig{Now: clock.Now})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.Allow(ctx, "login:a@b.test", 5, 15*time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
		if d.Remaining != 5-i {
			t.Errorf("attempt %d: expected remaining %d, got %d", i, 5-i, d.Remaining)
		}
	}

	d, _ := l.Allow(ctx, "login:a@b.test", 5, 15*time.Minute)
	if d.Allowed {
		t.Fatal("sixth attempt should be rejected")
	}
	if got := d.RetryAfter(clock.Now()); got != 15*time.Minute {
		t.Errorf("expected retry after 15m, got %s", got)
	}

	clock.Advance(15 * time.Minute)
	d, _ = l.Allow(ctx, "login:a@b.test", 5, 15*time.Minute)
	if !d.Allowed {
		t.Error("expected a fresh window after expiry")
	}
}

func TestMemory_KeysIndependent(t *testing.T) {
	l := NewMemory(MemoryConfig{})
	ctx := context.Background()

	if d, _ := l.Allow(ctx, "a", 1, time.Minute); !d.Allowed {
		t.Fatal("expected first hit on a to pass")
	}
	if d, _ := l.Allow(ctx, "a", 1, time.Minute); d.Allowed {
		t.Fatal("expected second hit on a to fail")
	}
	if d, _ := l.Allow(ctx, "b", 1, time.Minute); !d.Allowed {
		t.Fatal("expected b to be unaffected")
	}
}

func TestMemory_Reset(t *testing.T) {
	l := NewMemory(MemoryConfig{})
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k", 1, time.Minute)
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if d, _ := l.Allow(ctx, "k", 1, time.Minute); !d.Allowed {
		t.Error("expected counter cleared by Reset")
	}
}

func TestMemory_Capacity(t *testing.T) {
	l := NewMemory(MemoryConfig{MaxKeys: 1})
	ctx := context.Background()

	if _, err := l.Allow(ctx, "a", 1, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.Allow(ctx, "b", 1, time.Minute); err == nil {
		t.Error("expected capacity error")
	}
}

func TestMemory_ZeroLimitDisables(t *testing.T) {
	l := NewMemory(MemoryConfig{})
	for i := 0; i < 10; i++ {
		if d, _ := l.Allow(context.Background(), "k", 0, time.Minute); !d.Allowed {
			t.Fatal("expected zero limit to disable throttling")
		}
	}
}

// fakeScripter emulates the INCR/PEXPIRE script without a Redis server.
type fakeScripter struct {
	counts  map[string]int64
	ttl     int64
	deleted []string
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{counts: make(map[string]int64), ttl: 60000}
}

func (f *fakeScripter) run(keys []string) *redis.Cmd {
	f.counts[keys[0]]++
	return redis.NewCmdResult([]interface{}{f.counts[keys[0]], f.ttl}, nil)
}

func (f *fakeScripter) Eval(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) EvalRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) EvalShaRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeScripter) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (f *fakeScripter) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.counts, k)
		f.deleted = append(f.deleted, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedis_AllowAndReset(t *testing.T) {
	fake := newFakeScripter()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	l, err := NewRedis(fake, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "login:x", 2, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("hit %d should pass", i+1)
		}
	}
	d, _ := l.Allow(ctx, "login:x", 2, time.Minute)
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("expected third hit rejected, got %+v", d)
	}
	if !d.ResetAt.Equal(now.Add(time.Minute)) {
		t.Errorf("expected reset at %s, got %s", now.Add(time.Minute), d.ResetAt)
	}
	if fake.counts[keyPrefix+"login:x"] != 3 {
		t.Errorf("expected prefixed key, got %v", fake.counts)
	}

	if err := l.Reset(ctx, "login:x"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != keyPrefix+"login:x" {
		t.Errorf("expected prefixed key deleted, got %v", fake.deleted)
	}
}

func TestNewRedis_RequiresClient(t *testing.T) {
	if _, err := NewRedis(nil, nil); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestNewRedisFromURL_InvalidURL(t *testing.T) {
	if _, _, err := NewRedisFromURL(context.Background(), "http://not-redis"); err == nil {
		t.Error("expected error for non-redis url")
	}
}
