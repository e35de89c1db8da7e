package watchdog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradekit/pair-engine/internal/entity"
)

func TestCalculateForOpenPositionLongDefaults(t *testing.T) {
	calculator := NewRiskRewardRatioCalculator()
	position := entity.NewPositionFromAmount("BTCUSDT", decimal.NewFromInt(1), decimal.NewFromFloat(6501.76))
	require.NotNil(t, position)

	ratio, err := calculator.CalculateForOpenPosition(position, RiskRewardOptions{})
	require.NoError(t, err)

	assert.Equal(t, "6306.7", ratio.Stop.StringFixed(1))
	assert.Equal(t, "6891.9", ratio.Target.StringFixed(1))
}

func TestCalculateForOpenPositionShortDefaults(t *testing.T) {
	calculator := NewRiskRewardRatioCalculator()
	position := entity.NewPositionFromAmount("BTCUSDT", decimal.NewFromInt(-1), decimal.NewFromFloat(6501.76))
	require.NotNil(t, position)

	ratio, err := calculator.CalculateForOpenPosition(position, RiskRewardOptions{})
	require.NoError(t, err)

	assert.Equal(t, "6696.8", ratio.Stop.StringFixed(1))
	assert.Equal(t, "6111.7", ratio.Target.StringFixed(1))
}

func TestCalculateForOpenPositionCustomPercents(t *testing.T) {
	calculator := NewRiskRewardRatioCalculator()
	position := entity.NewPositionFromAmount("BTCUSDT", decimal.NewFromInt(1), decimal.NewFromInt(100))
	require.NotNil(t, position)

	ratio, err := calculator.CalculateForOpenPosition(position, RiskRewardOptions{
		StopPercent:   decimal.NewFromInt(10),
		TargetPercent: decimal.NewFromInt(20),
	})
	require.NoError(t, err)

	assert.Equal(t, "90", ratio.Stop.String())
	assert.Equal(t, "120", ratio.Target.String())
}

func TestCalculateForOpenPositionRequiresEntry(t *testing.T) {
	calculator := NewRiskRewardRatioCalculator()
	position := entity.NewPositionFromAmount("BTCUSDT", decimal.NewFromInt(1), decimal.Zero)
	require.NotNil(t, position)

	_, err := calculator.CalculateForOpenPosition(position, RiskRewardOptions{})
	assert.ErrorIs(t, err, ErrNoPositionEntry)
}

func TestSyncRatioRewardOrdersCreatesMissingBracket(t *testing.T) {
	calculator := NewRiskRewardRatioCalculator()
	position := entity.NewPositionFromAmount("BTCUSDT", decimal.NewFromFloat(0.5), decimal.NewFromFloat(6501.76))
	require.NotNil(t, position)

	stop, target, err := calculator.SyncRatioRewardOrders(position, nil, RiskRewardOptions{})
	require.NoError(t, err)
	require.NotNil(t, stop)
	require.NotNil(t, target)

	// long positions close by selling, both bracket prices carry the short sign
	assert.Equal(t, "-6306.7072", stop.Price.String())
	assert.Equal(t, entity.OrderTypeStop, stop.Type)
	assert.True(t, stop.Amount.Equal(decimal.NewFromFloat(0.5)))

	assert.Equal(t, "-6891.8656", target.Price.String())
	assert.Equal(t, entity.OrderTypeLimit, target.Type)
}

func TestSyncRatioRewardOrdersShortBracketIsPositive(t *testing.T) {
	calculator := NewRiskRewardRatioCalculator()
	position := entity.NewPositionFromAmount("BTCUSDT", decimal.NewFromFloat(-0.5), decimal.NewFromFloat(6501.76))
	require.NotNil(t, position)

	stop, target, err := calculator.SyncRatioRewardOrders(position, nil, RiskRewardOptions{})
	require.NoError(t, err)
	require.NotNil(t, stop)
	require.NotNil(t, target)

	assert.True(t, stop.Price.IsPositive())
	assert.True(t, target.Price.IsPositive())
}

func TestSyncRatioRewardOrdersUpdatesDriftedAmount(t *testing.T) {
	calculator := NewRiskRewardRatioCalculator()
	position := entity.NewPositionFromAmount("BTCUSDT", decimal.NewFromFloat(0.5), decimal.NewFromFloat(6501.76))
	require.NotNil(t, position)

	orders := []*entity.ExchangeOrder{
		{ID: "stop-1", Status: entity.OrderStatusOpen, Amount: decimal.NewFromFloat(0.4), Type: entity.OrderTypeStop},
		{ID: "target-1", Status: entity.OrderStatusOpen, Amount: decimal.NewFromFloat(0.5), Type: entity.OrderTypeLimit},
	}

	stop, target, err := calculator.SyncRatioRewardOrders(position, orders, RiskRewardOptions{})
	require.NoError(t, err)

	require.NotNil(t, stop)
	assert.Equal(t, "stop-1", stop.ID)
	assert.True(t, stop.Amount.Equal(decimal.NewFromFloat(-0.5)))

	assert.Nil(t, target)
}

func TestCreateRiskRewardOrdersTargetFirst(t *testing.T) {
	calculator := NewRiskRewardRatioCalculator()
	position := entity.NewPositionFromAmount("BTCUSDT", decimal.NewFromFloat(0.5), decimal.NewFromFloat(6501.76))
	require.NotNil(t, position)

	changes, err := calculator.CreateRiskRewardOrders(position, nil, RiskRewardOptions{})
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, entity.OrderTypeLimit, changes[0].Type)
	assert.Equal(t, entity.OrderTypeStop, changes[1].Type)
}
