package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/storage"
)

func newPaperFixture(t *testing.T) (*PaperExchange, *storage.TickerStore) {
	t.Helper()

	tickers := storage.NewTickerStore()
	tickers.Set(entity.NewTicker("paper", "BTCUSDT", decimal.NewFromInt(6500), decimal.NewFromInt(6502)))

	return NewPaperExchange(tickers, decimal.NewFromInt(10000)), tickers
}

func TestPaperMarketOrderFillsAndOpensPosition(t *testing.T) {
	venue, _ := newPaperFixture(t)

	order, err := venue.Order(context.Background(), entity.NewMarketOrder("BTCUSDT", decimal.NewFromInt(1)))
	require.NoError(t, err)

	assert.Equal(t, entity.OrderStatusDone, order.Status)
	assert.True(t, order.Price.Equal(decimal.NewFromInt(6502)))

	position, err := venue.GetPositionForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.True(t, position.IsLong())
	assert.True(t, position.Entry.Equal(decimal.NewFromInt(6502)))
}

func TestPaperMarketShortFillsAtBidWithNegativePrice(t *testing.T) {
	venue, _ := newPaperFixture(t)

	order, err := venue.Order(context.Background(), entity.NewMarketOrder("BTCUSDT", decimal.NewFromInt(-1)))
	require.NoError(t, err)

	assert.Equal(t, entity.OrderStatusDone, order.Status)
	assert.True(t, order.Price.Equal(decimal.NewFromInt(-6500)))

	position, err := venue.GetPositionForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.True(t, position.IsShort())
}

func TestPaperRejectsZeroAmount(t *testing.T) {
	venue, _ := newPaperFixture(t)

	order, err := entity.NewOrder("id", "BTCUSDT", entity.OrderSideLong, decimal.NewFromInt(6000), decimal.Zero, entity.OrderTypeLimit, entity.OrderOptions{})
	require.NoError(t, err)

	_, err = venue.Order(context.Background(), order)
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestPaperMarketOrderNeedsTicker(t *testing.T) {
	venue := NewPaperExchange(storage.NewTickerStore(), decimal.NewFromInt(10000))

	_, err := venue.Order(context.Background(), entity.NewMarketOrder("BTCUSDT", decimal.NewFromInt(1)))
	assert.ErrorIs(t, err, ErrNoTickerForSymbol)
}

func TestPaperLimitOrderRestsUntilCrossed(t *testing.T) {
	venue, _ := newPaperFixture(t)

	limit, err := entity.NewLimitPostOnlyOrder("BTCUSDT", entity.OrderSideLong, decimal.NewFromInt(6400), decimal.NewFromInt(1), entity.OrderOptions{})
	require.NoError(t, err)

	placed, err := venue.Order(context.Background(), limit)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusOpen, placed.Status)

	// market still above the limit, nothing fills
	venue.FillOpenOrders(entity.NewTicker("paper", "BTCUSDT", decimal.NewFromInt(6500), decimal.NewFromInt(6502)))
	open, err := venue.GetOrdersForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// ask dropped through the limit price
	venue.FillOpenOrders(entity.NewTicker("paper", "BTCUSDT", decimal.NewFromInt(6398), decimal.NewFromInt(6399)))
	open, err = venue.GetOrdersForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, open)

	position, err := venue.GetPositionForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.True(t, position.Amount.Equal(decimal.NewFromInt(1)))
}

func TestPaperOppositeFillFlattensPosition(t *testing.T) {
	venue, _ := newPaperFixture(t)

	_, err := venue.Order(context.Background(), entity.NewMarketOrder("BTCUSDT", decimal.NewFromInt(1)))
	require.NoError(t, err)

	_, err = venue.Order(context.Background(), entity.NewMarketOrder("BTCUSDT", decimal.NewFromInt(-1)))
	require.NoError(t, err)

	position, err := venue.GetPositionForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, position)
}

func TestPaperPartialCloseKeepsEntry(t *testing.T) {
	venue, _ := newPaperFixture(t)

	_, err := venue.Order(context.Background(), entity.NewMarketOrder("BTCUSDT", decimal.NewFromInt(2)))
	require.NoError(t, err)

	_, err = venue.Order(context.Background(), entity.NewMarketOrder("BTCUSDT", decimal.NewFromInt(-1)))
	require.NoError(t, err)

	position, err := venue.GetPositionForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.True(t, position.Amount.Equal(decimal.NewFromInt(1)))
	assert.True(t, position.Entry.Equal(decimal.NewFromInt(6502)))
}

func TestPaperCancelOrder(t *testing.T) {
	venue, _ := newPaperFixture(t)

	limit, err := entity.NewLimitPostOnlyOrder("BTCUSDT", entity.OrderSideLong, decimal.NewFromInt(6400), decimal.NewFromInt(1), entity.OrderOptions{})
	require.NoError(t, err)

	placed, err := venue.Order(context.Background(), limit)
	require.NoError(t, err)

	canceled, err := venue.CancelOrder(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCanceled, canceled.Status)

	open, err := venue.GetOrdersForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = venue.CancelOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPaperCancelAllOnlyTouchesSymbol(t *testing.T) {
	venue, tickers := newPaperFixture(t)
	tickers.Set(entity.NewTicker("paper", "ETHUSDT", decimal.NewFromInt(200), decimal.NewFromInt(201)))

	btc, err := entity.NewLimitPostOnlyOrder("BTCUSDT", entity.OrderSideLong, decimal.NewFromInt(6400), decimal.NewFromInt(1), entity.OrderOptions{})
	require.NoError(t, err)
	_, err = venue.Order(context.Background(), btc)
	require.NoError(t, err)

	eth, err := entity.NewLimitPostOnlyOrder("ETHUSDT", entity.OrderSideLong, decimal.NewFromInt(190), decimal.NewFromInt(1), entity.OrderOptions{})
	require.NoError(t, err)
	_, err = venue.Order(context.Background(), eth)
	require.NoError(t, err)

	canceled, err := venue.CancelAll(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, canceled, 1)

	open, err := venue.GetOrdersForSymbol(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestPaperUpdateOrderChangesPriceAndAmount(t *testing.T) {
	venue, _ := newPaperFixture(t)

	limit, err := entity.NewLimitPostOnlyOrder("BTCUSDT", entity.OrderSideLong, decimal.NewFromInt(6400), decimal.NewFromInt(1), entity.OrderOptions{})
	require.NoError(t, err)

	placed, err := venue.Order(context.Background(), limit)
	require.NoError(t, err)

	updated, err := venue.UpdateOrder(context.Background(), placed.ID, entity.NewUpdateOrder(placed.ID, decimal.NewFromInt(6450), decimal.Zero))
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(6450)))
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(1)))

	_, err = venue.UpdateOrder(context.Background(), "missing", entity.NewUpdateOrder("missing", decimal.NewFromInt(1), decimal.Zero))
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPaperTradeableBalance(t *testing.T) {
	venue, _ := newPaperFixture(t)

	balance, err := venue.GetTradeableBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(10000)))
}
