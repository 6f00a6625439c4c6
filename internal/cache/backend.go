package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Entry addresses one cached value.
type Entry struct {
	Group string
	Key   string
}

// Backend 通用 KV 缓存，支持分组；全局分组在所有节点/站点间共享
type Backend interface {
	// Get 返回 (value, found, err)；未命中不是错误
	Get(ctx context.Context, group, key string) ([]byte, bool, error)
	Set(ctx context.Context, group, key string, val []byte) error
	Delete(ctx context.Context, entries ...Entry) error
	// FlushGroup 清空整个分组
	FlushGroup(ctx context.Context, group string) error
	AddGlobalGroups(groups ...string)
	IsGlobal(group string) bool
}

// RedisBackend stores groups under prefix:[scope:]group:key.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	scope  string
	ttl    time.Duration

	mu      sync.RWMutex
	globals map[string]struct{}
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend 创建 redis 缓存后端；ttl 只是兜底过期时间，正确性依赖写时失效
func NewRedisBackend(client redis.UniversalClient, prefix, scope string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		client:  client,
		prefix:  prefix,
		scope:   scope,
		ttl:     ttl,
		globals: make(map[string]struct{}),
	}
}

func (b *RedisBackend) AddGlobalGroups(groups ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, g := range groups {
		b.globals[g] = struct{}{}
	}
}

func (b *RedisBackend) IsGlobal(group string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.globals[group]
	return ok
}

func (b *RedisBackend) groupPrefix(group string) string {
	var sb strings.Builder
	if b.prefix != "" {
		sb.WriteString(b.prefix)
		sb.WriteByte(':')
	}
	if b.scope != "" && !b.IsGlobal(group) {
		sb.WriteString(b.scope)
		sb.WriteByte(':')
	}
	sb.WriteString(group)
	sb.WriteByte(':')
	return sb.String()
}

// Key returns the redis key for (group, key).
func (b *RedisBackend) Key(group, key string) string {
	return b.groupPrefix(group) + key
}

func (b *RedisBackend) Get(ctx context.Context, group, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, b.Key(group, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "cache get %s/%s", group, key)
	}
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, group, key string, val []byte) error {
	if err := b.client.Set(ctx, b.Key(group, key), val, b.ttl).Err(); err != nil {
		return errors.Wrapf(err, "cache set %s/%s", group, key)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	// 逐个 DEL，兼容 cluster 跨 slot
	pipe := b.client.Pipeline()
	for _, e := range entries {
		pipe.Del(ctx, b.Key(e.Group, e.Key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "cache delete %d keys", len(entries))
	}
	return nil
}

func (b *RedisBackend) FlushGroup(ctx context.Context, group string) error {
	match := b.groupPrefix(group) + "*"
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, match, 500).Result()
		if err != nil {
			return errors.Wrapf(err, "cache flush %s", group)
		}
		if len(keys) > 0 {
			pipe := b.client.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return errors.Wrapf(err, "cache flush %s", group)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// NopBackend 关闭缓存时使用：永远未命中
type NopBackend struct{}

var _ Backend = NopBackend{}

func (NopBackend) Get(context.Context, string, string) ([]byte, bool, error) { return nil, false, nil }
func (NopBackend) Set(context.Context, string, string, []byte) error         { return nil }
func (NopBackend) Delete(context.Context, ...Entry) error                    { return nil }
func (NopBackend) FlushGroup(context.Context, string) error                  { return nil }
func (NopBackend) AddGlobalGroups(...string)                                 {}
func (NopBackend) IsGlobal(string) bool                                      { return false }
