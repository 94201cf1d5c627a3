package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeRoundsUpForPlatform(t *testing.T) {
	cases := []struct {
		name         string
		cost         int64
		feePercent   int64
		wantPlatform int64
		wantEarner   int64
	}{
		{name: "default_fee", cost: 10, feePercent: 5, wantPlatform: 1, wantEarner: 9},
		{name: "exact_division", cost: 100, feePercent: 5, wantPlatform: 5, wantEarner: 95},
		{name: "remainder_to_platform", cost: 1, feePercent: 5, wantPlatform: 1, wantEarner: 0},
		{name: "zero_cost", cost: 0, feePercent: 5, wantPlatform: 0, wantEarner: 0},
		{name: "zero_fee", cost: 37, feePercent: 0, wantPlatform: 0, wantEarner: 37},
		{name: "full_fee", cost: 37, feePercent: 100, wantPlatform: 37, wantEarner: 0},
		{name: "large_cost", cost: 1_000_003, feePercent: 3, wantPlatform: 30_001, wantEarner: 970_002},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			split := Compute(tc.cost, tc.feePercent)
			assert.Equal(t, tc.cost, split.Total)
			assert.Equal(t, tc.wantPlatform, split.PlatformShare)
			assert.Equal(t, tc.wantEarner, split.EarnerShare)
		})
	}
}

func TestComputeSharesAlwaysSumToCost(t *testing.T) {
	for cost := int64(0); cost <= 250; cost++ {
		for fee := int64(0); fee <= 100; fee += 7 {
			split := Compute(cost, fee)
			assert.Equal(t, cost, split.PlatformShare+split.EarnerShare,
				"cost=%d fee=%d", cost, fee)
			assert.GreaterOrEqual(t, split.PlatformShare, int64(0))
			assert.GreaterOrEqual(t, split.EarnerShare, int64(0))
		}
	}
}

func TestComputeClampsOutOfRangeInputs(t *testing.T) {
	split := Compute(50, 120)
	assert.Equal(t, int64(50), split.PlatformShare)
	assert.Equal(t, int64(0), split.EarnerShare)

	split = Compute(50, -3)
	assert.Equal(t, int64(0), split.PlatformShare)
	assert.Equal(t, int64(50), split.EarnerShare)

	split = Compute(-10, 5)
	assert.Equal(t, int64(0), split.Total)
}
