package redispresence

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"nido/internal/adapters/store/memory"
	"nido/internal/schema"
)

// fakeRedis registra las operaciones sin servidor de por medio.
type fakeRedis struct {
	keys map[string]time.Duration
}

func newFakeRedis() *fakeRedis { return &fakeRedis{keys: map[string]time.Duration{}} }

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.keys[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	n := 0
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(int64(n), nil)
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	n := 0
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(int64(n), nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestHeartbeatAndOffline(t *testing.T) {
	rdb := newFakeRedis()
	st := memory.New()
	tr := newTracker(rdb, st, 30*time.Second)
	tr.now = func() time.Time { return time.UnixMilli(1714558200000) }
	ctx := context.Background()

	if err := tr.Heartbeat(ctx, "u1", "android", "2.4.0"); err != nil {
		t.Fatalf("Heartbeat error: %v", err)
	}

	if ttl := rdb.keys["presence:u1"]; ttl != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %v", ttl)
	}
	on, err := tr.IsOnline(ctx, "u1")
	if err != nil || !on {
		t.Fatalf("expected online, got %v %v", on, err)
	}

	doc, _ := st.Get(ctx, schema.PresencePath("u1"))
	want := map[string]any{
		"state":          "online",
		"lastChanged":    float64(1714558200000),
		"platform":       "android",
		"currentVersion": "2.4.0",
	}
	if !reflect.DeepEqual(doc, want) {
		t.Fatalf("unexpected mirror:\n got %#v\nwant %#v", doc, want)
	}

	if err := tr.SetOffline(ctx, "u1"); err != nil {
		t.Fatalf("SetOffline error: %v", err)
	}
	on, _ = tr.IsOnline(ctx, "u1")
	if on {
		t.Fatalf("expected offline after SetOffline")
	}
	doc, _ = st.Get(ctx, schema.PresencePath("u1"))
	m, _ := doc.(map[string]any)
	if m["state"] != "offline" {
		t.Fatalf("mirror not downgraded: %#v", doc)
	}
	if _, tagged := m["platform"]; tagged {
		t.Fatalf("offline mirror must not carry platform tags: %#v", m)
	}
}

func TestDefaultTTL(t *testing.T) {
	rdb := newFakeRedis()
	tr := newTracker(rdb, memory.New(), 0)

	if err := tr.Heartbeat(context.Background(), "u1", "", ""); err != nil {
		t.Fatalf("Heartbeat error: %v", err)
	}
	if ttl := rdb.keys["presence:u1"]; ttl != 60*time.Second {
		t.Fatalf("expected default 60s ttl, got %v", ttl)
	}
}
