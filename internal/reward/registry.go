package reward

import (
	"context"
	"sort"
	"sync"

	"github.com/blues/wallet-reward/internal/logger"
)

// Plugin 积分来源
type Plugin interface {
	ID() string
	IsEnabled() bool
	// GetEarnedPoints 返回 [start, end) 内每个用户获得的积分，未获得积分的用户可以缺省
	GetEarnedPoints(ctx context.Context, identityIds []int64, start, end int64) (map[int64]float64, error)
}

// Registry 积分插件注册表
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry 创建插件注册表
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[string]Plugin)}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register 注册插件，同 ID 覆盖
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins[p.ID()] = p
	logger.Info("Registered reward plugin: %s", p.ID())
}

// Get 获取插件
func (r *Registry) Get(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[id]
	return p, ok
}

// Enabled 按配置返回启用的插件，ids 为空时返回全部已启用插件
func (r *Registry) Enabled(ids []string) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(ids) == 0 {
		ids = make([]string, 0, len(r.plugins))
		for id := range r.plugins {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	seen := make(map[string]bool, len(ids))
	plugins := make([]Plugin, 0, len(ids))
	for _, id := range ids {
		p, ok := r.plugins[id]
		if !ok {
			logger.Warn("Reward plugin %s is configured but not registered", id)
			continue
		}
		if seen[id] || !p.IsEnabled() {
			continue
		}
		seen[id] = true
		plugins = append(plugins, p)
	}
	return plugins
}
