package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blues/wallet-reward/internal/config"
	"github.com/shopspring/decimal"
)

// Settings 奖励全局配置
type Settings struct {
	PeriodType     PeriodType
	TimeZone       string
	Budget         Budget
	Threshold      float64  // 低于该积分不发放
	EnabledPlugins []string // 为空表示全部已注册插件
}

// Validate 校验配置
func (s *Settings) Validate() error {
	if s.PeriodType == "" {
		return errors.New("no period type")
	}
	if _, err := ParsePeriodType(string(s.PeriodType)); err != nil {
		return err
	}
	if _, err := time.LoadLocation(s.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone %q: %w", s.TimeZone, err)
	}
	if _, err := ParseBudgetType(string(s.Budget.Type)); err != nil {
		return err
	}
	if s.Budget.Amount.IsNegative() || s.Budget.MaxBudget.IsNegative() {
		return errors.New("negative budget")
	}
	return nil
}

// SettingsProvider 提供当前奖励配置，未配置时返回 nil
type SettingsProvider interface {
	GetSettings(ctx context.Context) (*Settings, error)
}

// StaticSettingsProvider 固定配置
type StaticSettingsProvider struct {
	settings *Settings
}

// NewStaticSettingsProvider 创建固定配置，settings 为 nil 表示未启用奖励
func NewStaticSettingsProvider(settings *Settings) *StaticSettingsProvider {
	return &StaticSettingsProvider{settings: settings}
}

// GetSettings 实现 SettingsProvider
func (p *StaticSettingsProvider) GetSettings(context.Context) (*Settings, error) {
	if p.settings == nil {
		return nil, nil
	}
	copied := *p.settings
	copied.EnabledPlugins = append([]string(nil), p.settings.EnabledPlugins...)
	return &copied, nil
}

// SettingsFromConfig 从配置文件构造奖励配置，未启用时返回 nil
func SettingsFromConfig(cfg config.RewardConfig) (*Settings, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	periodType, err := ParsePeriodType(cfg.PeriodType)
	if err != nil {
		return nil, err
	}
	budgetType, err := ParseBudgetType(cfg.BudgetType)
	if err != nil {
		return nil, err
	}
	amount, err := parseDecimal(cfg.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid reward amount: %w", err)
	}
	maxBudget, err := parseDecimal(cfg.MaxBudget)
	if err != nil {
		return nil, fmt.Errorf("invalid reward max budget: %w", err)
	}

	settings := &Settings{
		PeriodType:     periodType,
		TimeZone:       cfg.TimeZone,
		Budget:         Budget{Type: budgetType, Amount: amount, MaxBudget: maxBudget},
		Threshold:      cfg.Threshold,
		EnabledPlugins: cfg.EnabledPlugins,
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
