package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewBillingConfigHolderFallsBackToDefaults(t *testing.T) {
	holder, err := NewBillingConfigHolder(zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, DefaultBillingConfig(), holder.Get())
}

func TestBucketFor(t *testing.T) {
	cfg := DefaultBillingConfig()

	cases := []struct {
		ageDays int
		label   string
		weight  float64
	}{
		{0, "0-30", 1},
		{30, "0-30", 1},
		{31, "31-60", 2},
		{60, "31-60", 2},
		{61, "61-90", 3},
		{90, "61-90", 3},
		{91, "90+", 5},
		{400, "90+", 5},
	}
	for _, tc := range cases {
		label, weight := cfg.BucketFor(tc.ageDays)
		assert.Equal(t, tc.label, label, "age %d", tc.ageDays)
		assert.Equal(t, tc.weight, weight, "age %d", tc.ageDays)
	}
}

func TestIsDenialCode(t *testing.T) {
	cfg := DefaultBillingConfig()

	assert.True(t, cfg.IsDenialCode("CO-50"))
	assert.True(t, cfg.IsDenialCode("  co-96 "))
	assert.False(t, cfg.IsDenialCode("CO-45"))
	assert.False(t, cfg.IsDenialCode(""))
}

func TestApplyBillingDefaultsFillsGaps(t *testing.T) {
	defaults := DefaultBillingConfig()

	cfg := BillingConfig{AutoMatchThreshold: 0.9}
	applyBillingDefaults(&cfg, defaults)

	assert.Equal(t, 0.9, cfg.AutoMatchThreshold)
	assert.Equal(t, defaults.AgeBasis, cfg.AgeBasis)
	assert.Equal(t, defaults.MatcherWeights, cfg.MatcherWeights)
	assert.Len(t, cfg.AgingBuckets, len(defaults.AgingBuckets))
	assert.Equal(t, defaults.DenialCodes, cfg.DenialCodes)
}

func TestValidateBillingConfig(t *testing.T) {
	valid := DefaultBillingConfig()
	assert.NoError(t, validateBillingConfig(valid))

	badBasis := valid
	badBasis.AgeBasis = "invoice_date"
	assert.Error(t, validateBillingConfig(badBasis))

	badThreshold := valid
	badThreshold.AutoMatchThreshold = 1.5
	assert.Error(t, validateBillingConfig(badThreshold))

	noBuckets := valid
	noBuckets.AgingBuckets = nil
	assert.Error(t, validateBillingConfig(noBuckets))
}
