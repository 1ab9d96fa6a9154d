package keycache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Unix(1000, 0)}
	m := NewMemory(c.now)

	if _, err := m.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty cache error = %v", err)
	}

	key := []byte("0123456789abcdef0123456789abcdef")
	if err := m.Put(ctx, key, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := m.Get(ctx)
	if err != nil || !bytes.Equal(got, key) {
		t.Fatalf("Get = %x, %v", got, err)
	}

	c.t = c.t.Add(50 * time.Second)
	m.Touch(ctx, time.Minute)
	c.t = c.t.Add(50 * time.Second)
	if _, err := m.Get(ctx); err != nil {
		t.Errorf("Get after Touch error = %v, want present", err)
	}

	c.t = c.t.Add(time.Minute)
	if _, err := m.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry error = %v, want ErrNotFound", err)
	}

	// Touch must not revive an expired export
	m.Touch(ctx, time.Hour)
	if _, err := m.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Touch revived expired export")
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	m.Put(ctx, []byte("k"), time.Hour)
	if err := m.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v", err)
	}
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	r, err := ConnectRedis(ctx, "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("ConnectRedis failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty cache error = %v", err)
	}

	key := []byte{0, 1, 2, 3, 250, 251}
	if err := r.Put(ctx, key, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := r.Get(ctx)
	if err != nil || !bytes.Equal(got, key) {
		t.Fatalf("Get = %x, %v", got, err)
	}
	if ttl := mr.TTL(RedisKey); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(40 * time.Second)
	if err := r.Touch(ctx, time.Minute); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	mr.FastForward(40 * time.Second)
	if _, err := r.Get(ctx); err != nil {
		t.Errorf("Get after Touch error = %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := r.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry error = %v, want ErrNotFound", err)
	}

	r.Put(ctx, key, time.Minute)
	if err := r.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists(RedisKey) {
		t.Error("key still present after Delete")
	}
}

func TestConnectRedisEmptyURL(t *testing.T) {
	if _, err := ConnectRedis(context.Background(), ""); !errors.Is(err, ErrEmptyConnectionURL) {
		t.Errorf("ConnectRedis(\"\") error = %v", err)
	}
}
