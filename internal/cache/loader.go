// Package cache 提供按 key 加载的缓存，同一 key 的并发未命中只触发一次加载
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc 缓存未命中时的加载函数
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Loader 带过期时间的加载缓存
type Loader[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	group   singleflight.Group
	load    LoadFunc[K, V]
	ttl     time.Duration
	now     func() time.Time
}

// NewLoader 创建加载缓存，ttl 为 0 表示永不过期
func NewLoader[K comparable, V any](ttl time.Duration, load LoadFunc[K, V]) *Loader[K, V] {
	return &Loader[K, V]{
		entries: make(map[K]entry[V]),
		load:    load,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get 读取缓存，未命中时加载，加载失败不缓存
func (l *Loader[K, V]) Get(ctx context.Context, key K) (V, error) {
	if value, ok := l.lookup(key); ok {
		return value, nil
	}

	result, err, _ := l.group.Do(fmt.Sprint(key), func() (interface{}, error) {
		if value, ok := l.lookup(key); ok {
			return value, nil
		}
		value, err := l.load(ctx, key)
		if err != nil {
			return value, err
		}
		l.Set(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Set 写入缓存
func (l *Loader[K, V]) Set(key K, value V) {
	e := entry[V]{value: value}
	if l.ttl > 0 {
		e.expiresAt = l.now().Add(l.ttl)
	}

	l.mu.Lock()
	l.entries[key] = e
	l.mu.Unlock()
}

// Invalidate 删除缓存
func (l *Loader[K, V]) Invalidate(key K) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Len 当前缓存条目数
func (l *Loader[K, V]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Loader[K, V]) lookup(key K) (V, bool) {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt) {
		l.Invalidate(key)
		var zero V
		return zero, false
	}
	return e.value, true
}
