package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 转账幂等缓存
// ============================================================================
//
// 【为什么需要幂等？】
//
// 客户端网络抖动重发同一笔转账请求时，绝不能扣两次款。
// 请求方携带 requestId，服务端第一次执行时占位并记录结果，
// 重复请求直接重放已记录的结果。
//
// 【占位的意义】占位用 SETNX：两条相同请求同时到达时只有一条
// 能占到位，另一条看到 PENDING 占位，返回「处理中」让客户端稍后
// 查询，而不是并发执行两次。
//
// ============================================================================

var (
	// ErrInFlight 同一 requestId 的请求正在处理中
	ErrInFlight = errors.New("请求处理中，请勿重复提交")
)

// Result 幂等记录的内容：转账成功后的最终结果
type Result struct {
	NewBalance int64 `json:"newBalance"`
}

// Cache 幂等缓存接口
type Cache interface {
	// Claim 尝试为 requestId 占位。
	// claimed=true 表示本请求获得执行权；
	// claimed=false 且 existing 非 nil 表示此前已执行完，直接重放结果；
	// claimed=false 且 existing 为 nil 表示仍在处理中（ErrInFlight）。
	Claim(ctx context.Context, requestID string) (claimed bool, existing *Result, err error)

	// Complete 记录执行结果，供后续重复请求重放
	Complete(ctx context.Context, requestID string, res Result) error

	// Release 执行失败时释放占位，允许客户端原样重试
	Release(ctx context.Context, requestID string) error
}

const pendingMarker = "PENDING"

// ---------------------------------------------------------------------------
// Redis 实现：重启后幂等记录仍然有效
// ---------------------------------------------------------------------------

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) key(requestID string) string {
	return "transfer:idem:" + requestID
}

func (c *RedisCache) Claim(ctx context.Context, requestID string) (bool, *Result, error) {
	ok, err := c.client.SetNX(ctx, c.key(requestID), pendingMarker, c.ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}

	val, err := c.client.Get(ctx, c.key(requestID)).Result()
	if err == redis.Nil {
		// 占位刚好过期，视作可执行
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if val == pendingMarker {
		return false, nil, nil
	}
	var res Result
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		return false, nil, err
	}
	return false, &res, nil
}

func (c *RedisCache) Complete(ctx context.Context, requestID string, res Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(requestID), payload, c.ttl).Err()
}

func (c *RedisCache) Release(ctx context.Context, requestID string) error {
	return c.client.Del(ctx, c.key(requestID)).Err()
}

// ---------------------------------------------------------------------------
// 内存实现：未启用 Redis 时的兜底，进程内语义完全一致
// ---------------------------------------------------------------------------

type memEntry struct {
	result    *Result // nil 表示 PENDING
	expiresAt time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*memEntry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]*memEntry)}
}

func (c *MemoryCache) Claim(_ context.Context, requestID string) (bool, *Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if e, ok := c.entries[requestID]; ok && now.Before(e.expiresAt) {
		return false, e.result, nil
	}
	c.entries[requestID] = &memEntry{expiresAt: now.Add(c.ttl)}
	return true, nil, nil
}

func (c *MemoryCache) Complete(_ context.Context, requestID string, res Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[requestID] = &memEntry{result: &res, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Release(_ context.Context, requestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, requestID)
	return nil
}
