package persistence

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// exerciseBackend checks the Backend contract shared by every implementation.
func exerciseBackend(t *testing.T, ctx context.Context, b Backend) {
	t.Helper()

	if _, ok, err := b.Get(ctx, "tickets"); err != nil || ok {
		t.Fatalf("Get() on empty backend = ok %v, err %v", ok, err)
	}
	if err := b.Set(ctx, "tickets", "[]"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Set(ctx, "tickets", `[{"id":1}]`); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	val, ok, err := b.Get(ctx, "tickets")
	if err != nil || !ok || val != `[{"id":1}]` {
		t.Fatalf("Get() = %q, %v, %v", val, ok, err)
	}
	if err := b.Delete(ctx, "tickets"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := b.Get(ctx, "tickets"); ok {
		t.Fatalf("expected key to be gone after Delete")
	}
	if err := b.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}
	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, context.Background(), NewMemoryBackend())
}

func TestExpiringMemoryBackend(t *testing.T) {
	exerciseBackend(t, context.Background(), NewExpiringMemoryBackend(time.Minute))

	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	b := NewExpiringMemoryBackend(time.Minute)
	b.now = func() time.Time { return now }

	if err := b.Set(ctx, "session:a:tickets", "[]"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Set(ctx, "session:b:tickets", "[]"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Reading a keeps it alive; b is left idle.
	now = now.Add(40 * time.Second)
	if _, ok, _ := b.Get(ctx, "session:a:tickets"); !ok {
		t.Fatalf("expected a to be present")
	}
	now = now.Add(40 * time.Second)
	if _, ok, _ := b.Get(ctx, "session:a:tickets"); !ok {
		t.Fatalf("expected a read to extend the ttl")
	}
	if _, ok, _ := b.Get(ctx, "session:b:tickets"); ok {
		t.Fatalf("expected b to expire")
	}

	now = now.Add(2 * time.Minute)
	if err := b.Set(ctx, "session:c:tickets", "[]"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := len(b.entries); got != 1 {
		t.Fatalf("expected expired entries swept on write, %d left", got)
	}
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseBackend(t, context.Background(), NewRedisBackend(client, "intake:", 0))
}

func TestRedisBackendTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := NewRedisBackend(client, "intake:", time.Minute)
	ctx := context.Background()
	if err := b.Set(ctx, "tickets", "[]"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := mr.TTL("intake:tickets"); got != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", got)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := b.Get(ctx, "tickets"); ok {
		t.Fatalf("expected value to expire")
	}
}

func TestSessionBackendIsolatesSessions(t *testing.T) {
	inner := NewMemoryBackend()
	b := NewSessionBackend(inner)
	tabA := WithSession(context.Background(), "tab-a")
	tabB := WithSession(context.Background(), "tab-b")

	exerciseBackend(t, tabA, b)

	if err := b.Set(tabA, "tickets", "a"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := b.Get(tabB, "tickets"); ok {
		t.Fatalf("tab-b must not see tab-a data")
	}
	if raw, ok, _ := inner.Get(context.Background(), "session:tab-a:tickets"); !ok || raw != "a" {
		t.Fatalf("expected namespaced key in inner backend, got %q %v", raw, ok)
	}
	if _, _, err := b.Get(context.Background(), "tickets"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := RunMigrations(ctx, pool, zap.NewNop()); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM kv_store WHERE key='tickets'`); err != nil {
		t.Fatalf("reset: %v", err)
	}
	exerciseBackend(t, ctx, NewPostgresBackend(pool))
}

func TestUnconfiguredBackends(t *testing.T) {
	ctx := context.Background()
	for _, b := range []Backend{NewPostgresBackend(nil), NewRedisBackend(nil, "", 0)} {
		if err := b.Set(ctx, "k", "v"); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("%s: expected ErrNotConfigured, got %v", b.Name(), err)
		}
		if err := b.Ping(ctx); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("%s: expected ErrNotConfigured from Ping, got %v", b.Name(), err)
		}
	}
}
