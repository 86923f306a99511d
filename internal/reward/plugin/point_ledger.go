package plugin

import (
	"context"

	"github.com/blues/wallet-reward/internal/repository"
)

// PointLedgerPlugin 从积分流水表汇总积分，每个来源对应一个插件
type PointLedgerPlugin struct {
	id      string
	enabled bool
	records *repository.PointRecordRepository
}

// NewPointLedgerPlugin 创建积分流水插件
func NewPointLedgerPlugin(id string, records *repository.PointRecordRepository) *PointLedgerPlugin {
	return &PointLedgerPlugin{id: id, enabled: true, records: records}
}

// ID 插件 ID，同时也是积分来源
func (p *PointLedgerPlugin) ID() string {
	return p.id
}

// IsEnabled 是否启用
func (p *PointLedgerPlugin) IsEnabled() bool {
	return p.enabled
}

// SetEnabled 启用或停用
func (p *PointLedgerPlugin) SetEnabled(enabled bool) {
	p.enabled = enabled
}

// GetEarnedPoints 汇总 [start, end) 内的积分
func (p *PointLedgerPlugin) GetEarnedPoints(ctx context.Context, identityIds []int64, start, end int64) (map[int64]float64, error) {
	return p.records.SumPoints(ctx, p.id, identityIds, start, end)
}
