package reward

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BudgetType 预算策略
type BudgetType string

const (
	BudgetFixed          BudgetType = "FIXED"            // 总额按积分比例分配
	BudgetFixedPerMember BudgetType = "FIXED_PER_MEMBER" // 总额平均分配
	BudgetFixedPerPoint  BudgetType = "FIXED_PER_POINT"  // 每积分固定奖励
)

// ParseBudgetType 解析预算策略
func ParseBudgetType(s string) (BudgetType, error) {
	switch t := BudgetType(strings.ToUpper(strings.TrimSpace(s))); t {
	case BudgetFixed, BudgetFixedPerMember, BudgetFixedPerPoint:
		return t, nil
	default:
		return "", fmt.Errorf("unknown budget type %q", s)
	}
}

// Budget 预算配置
type Budget struct {
	Type BudgetType
	// Amount FIXED 与 FIXED_PER_MEMBER 为总额，FIXED_PER_POINT 为每积分奖励
	Amount decimal.Decimal
	// MaxBudget FIXED_PER_POINT 的总额上限，零表示不限
	MaxBudget decimal.Decimal
}

// Cap 本周期可发放的总额上限，无上限时返回 false
func (b Budget) Cap() (decimal.Decimal, bool) {
	switch b.Type {
	case BudgetFixed, BudgetFixedPerMember:
		return b.Amount, true
	case BudgetFixedPerPoint:
		if b.MaxBudget.IsPositive() {
			return b.MaxBudget, true
		}
	}
	return decimal.Zero, false
}

// Distribute 将积分换算为奖励金额，points 只应包含合格钱包
func (b Budget) Distribute(points map[int64]float64) map[int64]decimal.Decimal {
	amounts := make(map[int64]decimal.Decimal, len(points))
	if len(points) == 0 {
		return amounts
	}

	switch b.Type {
	case BudgetFixed:
		total := decimal.Zero
		for _, p := range points {
			total = total.Add(decimal.NewFromFloat(p))
		}
		for id, p := range points {
			if !total.IsPositive() {
				amounts[id] = decimal.Zero
				continue
			}
			amounts[id] = b.Amount.Mul(decimal.NewFromFloat(p)).Div(total)
		}
	case BudgetFixedPerMember:
		share := b.Amount.Div(decimal.NewFromInt(int64(len(points))))
		for id := range points {
			amounts[id] = share
		}
	case BudgetFixedPerPoint:
		total := decimal.Zero
		for id, p := range points {
			amounts[id] = b.Amount.Mul(decimal.NewFromFloat(p))
			total = total.Add(amounts[id])
		}
		if b.MaxBudget.IsPositive() && total.GreaterThan(b.MaxBudget) {
			for id, amount := range amounts {
				amounts[id] = amount.Mul(b.MaxBudget).Div(total)
			}
		}
	}
	return amounts
}
