package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, "lock:", time.Second)

	unlock, err := l.Lock(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}
	if !mr.Exists("lock:a@x.io") {
		t.Fatal("expected lock key to exist")
	}
	if ttl := mr.TTL("lock:a@x.io"); ttl <= 0 || ttl > time.Second {
		t.Errorf("TTL = %v, want (0, 1s]", ttl)
	}

	unlock()
	if mr.Exists("lock:a@x.io") {
		t.Error("expected lock key to be deleted after unlock")
	}
}

// 保持中のロックは取得できずErrNotAcquiredになることを検証
func TestRedisLocker_Contended(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, "lock:", time.Second,
		WithMaxWait(50*time.Millisecond),
		WithRetryWait(5*time.Millisecond),
	)

	unlock, err := l.Lock(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}
	defer unlock()

	if _, err := l.Lock(context.Background(), "a@x.io"); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("err = %v, want ErrNotAcquired", err)
	}
}

// 解放後は待機中の取得が成功することを検証
func TestRedisLocker_WaitsForRelease(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, "lock:", time.Second,
		WithMaxWait(time.Second),
		WithRetryWait(5*time.Millisecond),
	)

	unlock, err := l.Lock(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		unlock()
	}()

	second, err := l.Lock(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("second Lock returned error: %v", err)
	}
	second()
}

// 他の所有者のロックを誤って削除しないことを検証
func TestRedisLocker_UnlockOnlyOwnToken(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, "lock:", time.Second)

	unlock, err := l.Lock(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}

	// TTL切れ後に別の所有者が取得した状況を再現する
	mr.FastForward(2 * time.Second)
	if err := mr.Set("lock:a@x.io", "someone-else"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	unlock()

	got, err := mr.Get("lock:a@x.io")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "someone-else" {
		t.Errorf("lock value = %q, want %q", got, "someone-else")
	}
}
