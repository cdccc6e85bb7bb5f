package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestTimeframe_IsIntraday(t *testing.T) {
	assert.True(t, TimeframeTick.IsIntraday())
	assert.True(t, Timeframe1Minute.IsIntraday())
	assert.False(t, TimeframeDaily.IsIntraday())
	assert.False(t, TimeframeWeekly.IsIntraday())
	assert.False(t, TimeframeMonthly.IsIntraday())
}

func TestProviderCapability_AcceptsFiltersByAssetMarketTimeframeAndSymbolCount(t *testing.T) {
	cap := ProviderCapability{
		AssetKinds:       []AssetKind{AssetStock},
		Markets:          []string{"cn"},
		Timeframes:       []Timeframe{TimeframeDaily},
		MaxSymbolsPerReq: 2,
	}

	assert.True(t, cap.Accepts(DataQuery{Asset: AssetStock, Market: "cn", Timeframe: TimeframeDaily, Symbols: []string{"a"}}))
	assert.False(t, cap.Accepts(DataQuery{Asset: AssetCrypto, Market: "cn", Timeframe: TimeframeDaily}))
	assert.False(t, cap.Accepts(DataQuery{Asset: AssetStock, Market: "us", Timeframe: TimeframeDaily}))
	assert.False(t, cap.Accepts(DataQuery{Asset: AssetStock, Market: "cn", Timeframe: Timeframe1Minute}))
	assert.False(t, cap.Accepts(DataQuery{Asset: AssetStock, Market: "cn", Timeframe: TimeframeDaily, Symbols: []string{"a", "b", "c"}}))
}

func TestClampHistory_BoundsToConfiguredRange(t *testing.T) {
	assert.Equal(t, 0.1, ClampHistory(-5))
	assert.Equal(t, 2.0, ClampHistory(5))
	assert.Equal(t, 1.5, ClampHistory(1.5))
}

func TestLevelFor_BucketsOverallScore(t *testing.T) {
	assert.Equal(t, QualityExcellent, LevelFor(0.95))
	assert.Equal(t, QualityGood, LevelFor(0.85))
	assert.Equal(t, QualityFair, LevelFor(0.70))
	assert.Equal(t, QualityPoor, LevelFor(0.50))
	assert.Equal(t, QualityUnacceptable, LevelFor(0.1))
}
