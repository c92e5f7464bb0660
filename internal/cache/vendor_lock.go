package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dujiao-next/commission-engine/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultVendorLockTTL     = 2 * time.Minute
	vendorLockReleaseTimeout = 5 * time.Second
)

// unlockScript 仅删除自己持有的锁，避免误删过期后被他人重新获取的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// RedisVendorLocker 基于 Redis SET NX 的商家结算锁
type RedisVendorLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisVendorLocker 创建 Redis 商家锁
func NewRedisVendorLocker(client *redis.Client, ttl time.Duration) *RedisVendorLocker {
	if ttl <= 0 {
		ttl = defaultVendorLockTTL
	}
	return &RedisVendorLocker{client: client, ttl: ttl}
}

// TryLock 尝试获取商家锁，已被占用时返回 false
func (l *RedisVendorLocker) TryLock(ctx context.Context, vendorID uint) (func(), bool, error) {
	key := vendorLockKey(vendorID)
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire vendor lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	var once sync.Once
	release := func() {
		once.Do(func() { l.release(key, token) })
	}
	return release, true, nil
}

// release 使用独立上下文，调用方上下文取消后仍需释放锁
func (l *RedisVendorLocker) release(key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.Background(), vendorLockReleaseTimeout)
	defer cancel()
	deleted, err := unlockScript.Run(releaseCtx, l.client, []string{key}, token).Int64()
	if err != nil {
		logger.Warnw("vendor_lock_release_failed", "key", key, "error", err)
		return
	}
	if deleted == 0 {
		logger.Warnw("vendor_lock_lost_before_release", "key", key)
	}
}

// LocalVendorLocker 进程内商家锁（未启用 Redis 时使用）
type LocalVendorLocker struct {
	mu   sync.Mutex
	held map[uint]struct{}
}

// NewLocalVendorLocker 创建进程内商家锁
func NewLocalVendorLocker() *LocalVendorLocker {
	return &LocalVendorLocker{held: make(map[uint]struct{})}
}

// TryLock 尝试获取商家锁，已被占用时返回 false
func (l *LocalVendorLocker) TryLock(_ context.Context, vendorID uint) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[vendorID]; ok {
		return nil, false, nil
	}
	l.held[vendorID] = struct{}{}
	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, vendorID)
			l.mu.Unlock()
		})
	}
	return release, true, nil
}

func vendorLockKey(vendorID uint) string {
	return buildKey(fmt.Sprintf("lock:payout:vendor:%d", vendorID))
}
