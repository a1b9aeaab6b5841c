package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua は所有者トークンが一致する場合のみキーを削除する。
var unlockLua = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker はRedisのSET NX PXを使用した分散ロック。
// TTLを過ぎたロックは自動的に解放されるため、プロセス停止時にも残らない。
type RedisLocker struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
	maxWait   time.Duration
}

// RedisOption はRedisLockerの設定を変更する関数。
type RedisOption func(*RedisLocker)

// WithRetryWait は取得再試行の間隔を設定する。
func WithRetryWait(d time.Duration) RedisOption {
	return func(l *RedisLocker) { l.retryWait = d }
}

// WithMaxWait は取得を諦めるまでの最大待ち時間を設定する。
func WithMaxWait(d time.Duration) RedisOption {
	return func(l *RedisLocker) { l.maxWait = d }
}

// NewRedisLocker はRedisLockerを生成する。maxWaitの既定値はttlと同じ。
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:    client,
		prefix:    prefix,
		ttl:       ttl,
		retryWait: 25 * time.Millisecond,
		maxWait:   ttl,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock はkeyのロックを取得する。maxWait以内に取得できない場合はErrNotAcquiredを返す。
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	ticker := time.NewTicker(l.retryWait)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			return l.unlockFunc(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrNotAcquired
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(redisKey, token string) func() {
	return func() {
		// 解放は呼び出し元のctxに依存しない
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := unlockLua.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			slog.Warn("failed to release lock",
				slog.String("key", redisKey),
				slog.String("error", err.Error()),
			)
		}
	}
}

var _ Locker = (*RedisLocker)(nil)
