package plugin

import (
	"context"
	"testing"

	"github.com/blues/wallet-reward/internal/database/dbtest"
	"github.com/blues/wallet-reward/internal/model"
	"github.com/blues/wallet-reward/internal/repository"
	"github.com/blues/wallet-reward/internal/reward"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointLedgerPlugin(t *testing.T) {
	ctx := context.Background()
	records := repository.NewPointRecordRepository(dbtest.New(t))
	require.NoError(t, records.Create(ctx, &model.PointRecordModel{Source: "activity", IdentityId: 1, Points: 4, EarnedAt: 10}))
	require.NoError(t, records.Create(ctx, &model.PointRecordModel{Source: "activity", IdentityId: 1, Points: 6, EarnedAt: 11}))
	require.NoError(t, records.Create(ctx, &model.PointRecordModel{Source: "referral", IdentityId: 1, Points: 50, EarnedAt: 11}))

	activity := NewPointLedgerPlugin("activity", records)
	var _ reward.Plugin = activity

	points, err := activity.GetEarnedPoints(ctx, []int64{1, 2}, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{1: 10}, points)

	activity.SetEnabled(false)
	registry := reward.NewRegistry(activity, NewPointLedgerPlugin("referral", records))
	enabled := registry.Enabled(nil)
	require.Len(t, enabled, 1)
	assert.Equal(t, "referral", enabled[0].ID())
}
