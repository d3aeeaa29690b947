package gcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired はリトライ上限までにロックを取得できなかったことを示す。
var ErrLockNotAcquired = errors.New("refresh lock not acquired")

// RefreshLocker はユーザー単位のトークン更新を直列化するロック。
type RefreshLocker interface {
	// Lock はkeyのロックを取得し、解放関数を返す。
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NoopRefreshLocker は何もロックしない。REDIS_URL未設定時に使う。
// 同一ユーザーの同時リクエストがそれぞれ更新を行う可能性は残る。
type NoopRefreshLocker struct{}

// Lock は即座に空の解放関数を返す。
func (NoopRefreshLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

// 自分が取得したロックのみ削除する
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	defaultLockRetries  = 20
	defaultLockInterval = 100 * time.Millisecond
	lockKeyPrefix       = "collegetrack:token-refresh:"
)

// RedisRefreshLocker はRedisのSET NX PXによる分散ロック。
type RedisRefreshLocker struct {
	client   *redis.Client
	ttl      time.Duration
	retries  int
	interval time.Duration
}

// NewRedisRefreshLocker はRedisRefreshLockerを生成する。
// ttlはロック保持者が異常終了した場合に自動解放されるまでの時間。
func NewRedisRefreshLocker(client *redis.Client, ttl time.Duration) *RedisRefreshLocker {
	return &RedisRefreshLocker{
		client:   client,
		ttl:      ttl,
		retries:  defaultLockRetries,
		interval: defaultLockInterval,
	}
}

// Lock はロックを取得するまで一定間隔で再試行する。
func (l *RedisRefreshLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	for attempt := 0; attempt <= l.retries; attempt++ {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire refresh lock: %w", err)
		}
		if ok {
			return func() {
				// 呼び出し元のcontextがキャンセル済みでも解放する
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
					slog.Warn("トークン更新ロックの解放に失敗しました",
						slog.String("key", redisKey),
						slog.String("error", err.Error()),
					)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.interval):
		}
	}
	return nil, ErrLockNotAcquired
}

// compile-time interface check
var (
	_ RefreshLocker = NoopRefreshLocker{}
	_ RefreshLocker = (*RedisRefreshLocker)(nil)
)
