package reward

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBudgetFixedPerMember(t *testing.T) {
	budget := Budget{Type: BudgetFixedPerMember, Amount: dec("200")}

	amounts := budget.Distribute(map[int64]float64{1: 10, 2: 50, 3: 40})

	share := decimal.NewFromInt(200).Div(decimal.NewFromInt(3))
	assert.Len(t, amounts, 3)
	for id, amount := range amounts {
		assert.True(t, share.Equal(amount), "identity %d got %s", id, amount)
	}
}

func TestBudgetFixedIsProportional(t *testing.T) {
	budget := Budget{Type: BudgetFixed, Amount: dec("1000")}

	amounts := budget.Distribute(map[int64]float64{1: 10, 2: 50, 3: 40})

	assert.True(t, dec("100").Equal(amounts[1]))
	assert.True(t, dec("500").Equal(amounts[2]))
	assert.True(t, dec("400").Equal(amounts[3]))
}

func TestBudgetFixedPerPoint(t *testing.T) {
	budget := Budget{Type: BudgetFixedPerPoint, Amount: dec("0.5")}

	amounts := budget.Distribute(map[int64]float64{1: 10, 2: 30})
	assert.True(t, dec("5").Equal(amounts[1]))
	assert.True(t, dec("15").Equal(amounts[2]))

	// 超出上限时按比例缩减
	budget.MaxBudget = dec("10")
	amounts = budget.Distribute(map[int64]float64{1: 10, 2: 30})
	assert.True(t, dec("2.5").Equal(amounts[1]))
	assert.True(t, dec("7.5").Equal(amounts[2]))

	total := amounts[1].Add(amounts[2])
	assert.False(t, total.GreaterThan(budget.MaxBudget))

	capValue, ok := budget.Cap()
	assert.True(t, ok)
	assert.True(t, dec("10").Equal(capValue))
}

func TestBudgetEdgeCases(t *testing.T) {
	assert.Empty(t, Budget{Type: BudgetFixed, Amount: dec("10")}.Distribute(nil))

	amounts := Budget{Type: BudgetFixed, Amount: dec("10")}.Distribute(map[int64]float64{1: 0})
	assert.True(t, amounts[1].IsZero())

	_, ok := Budget{Type: BudgetFixedPerPoint, Amount: dec("1")}.Cap()
	assert.False(t, ok)

	bt, err := ParseBudgetType("fixed_per_point")
	assert.NoError(t, err)
	assert.Equal(t, BudgetFixedPerPoint, bt)

	_, err = ParseBudgetType("random")
	assert.Error(t, err)
}
