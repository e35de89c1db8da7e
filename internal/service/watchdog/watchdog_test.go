package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradekit/pair-engine/internal/config"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/service/exchange"
	"github.com/tradekit/pair-engine/internal/service/orderexecutor"
	"github.com/tradekit/pair-engine/internal/service/pairstate"
	"github.com/tradekit/pair-engine/internal/storage"
)

type noopExecution struct{}

func (noopExecution) OnPairStateExecutionTick(context.Context, *entity.PairState) {}
func (noopExecution) OnCancelPair(context.Context, *entity.PairState)             {}

type listenerFixture struct {
	listener   *Listener
	venue      *exchange.PaperExchange
	tickers    *storage.TickerStore
	pairStates *pairstate.Manager
}

func newListenerFixture(t *testing.T) *listenerFixture {
	t.Helper()

	tickers := storage.NewTickerStore()
	venue := exchange.NewPaperExchange(tickers, decimal.NewFromInt(10000))

	exchanges := exchange.NewManager()
	exchanges.Register(venue)

	executor := orderexecutor.NewExecutor(exchanges, tickers, nil, config.OrderConfig{Retry: 1, RetryMs: time.Millisecond})
	pairStates := pairstate.NewManager(pairstate.NewIntervalRunner(), noopExecution{}, executor, nil, time.Hour)

	listener := NewListener(
		exchanges,
		pairStates,
		executor,
		NewStopLossCalculator(tickers),
		NewRiskRewardRatioCalculator(),
		tickers,
		nil,
	)

	return &listenerFixture{
		listener:   listener,
		venue:      venue,
		tickers:    tickers,
		pairStates: pairStates,
	}
}

func (f *listenerFixture) setTicker(t *testing.T, bid, ask int64) {
	t.Helper()
	f.tickers.Set(entity.NewTicker("paper", "BTCUSDT", decimal.NewFromInt(bid), decimal.NewFromInt(ask)))
}

// openLongPosition fills a market order so the venue carries a real position.
func (f *listenerFixture) openLongPosition(t *testing.T, amount decimal.Decimal) *entity.Position {
	t.Helper()

	_, err := f.venue.Order(context.Background(), entity.NewMarketOrder("BTCUSDT", amount))
	require.NoError(t, err)

	position, err := f.venue.GetPositionForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, position)

	return position
}

func (f *listenerFixture) openOrdersOfType(t *testing.T, orderType entity.OrderType) []*entity.ExchangeOrder {
	t.Helper()

	orders, err := f.venue.GetOrdersForSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	matching := make([]*entity.ExchangeOrder, 0)
	for _, order := range orders {
		if order.Type == orderType {
			matching = append(matching, order)
		}
	}

	return matching
}

func withWatchdogConfig(t *testing.T, watchdogs ...config.WatchdogConfig) {
	t.Helper()

	previous := config.Env
	config.Env = &config.EnvConfig{Pairs: []config.PairConfig{{
		Exchange:  "paper",
		Symbol:    "BTCUSDT",
		Watchdogs: watchdogs,
	}}}
	t.Cleanup(func() { config.Env = previous })
}

func TestStopLossWatchdogCreatesProtectiveOrder(t *testing.T) {
	fixture := newListenerFixture(t)
	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))

	watchdogConfig := config.WatchdogConfig{Name: WatchdogStopLoss, Percent: decimal.NewFromInt(5)}
	fixture.listener.stopLossWatchdog(context.Background(), fixture.venue, position, watchdogConfig)

	stops := fixture.openOrdersOfType(t, entity.OrderTypeStop)
	require.Len(t, stops, 1)

	// entry 6502, 5 percent below, negated because a long closes by selling
	assert.Equal(t, "-6176.9", stops[0].Price.String())
	assert.True(t, stops[0].GetAmount().Equal(decimal.NewFromFloat(0.5)))

	// a second pass sees the stop in place and leaves it alone
	fixture.listener.stopLossWatchdog(context.Background(), fixture.venue, position, watchdogConfig)
	assert.Len(t, fixture.openOrdersOfType(t, entity.OrderTypeStop), 1)
}

func TestStopLossWatchdogResizesAfterPositionGrows(t *testing.T) {
	fixture := newListenerFixture(t)
	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))

	watchdogConfig := config.WatchdogConfig{Name: WatchdogStopLoss, Percent: decimal.NewFromInt(5)}
	fixture.listener.stopLossWatchdog(context.Background(), fixture.venue, position, watchdogConfig)

	position = fixture.openLongPosition(t, decimal.NewFromFloat(0.2))
	require.True(t, position.Amount.Equal(decimal.NewFromFloat(0.7)))

	fixture.listener.stopLossWatchdog(context.Background(), fixture.venue, position, watchdogConfig)

	stops := fixture.openOrdersOfType(t, entity.OrderTypeStop)
	require.Len(t, stops, 1)
	assert.True(t, stops[0].GetAmount().Equal(decimal.NewFromFloat(0.7)))
}

func TestRiskRewardRatioWatchdogCreatesBracket(t *testing.T) {
	fixture := newListenerFixture(t)
	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))

	watchdogConfig := config.WatchdogConfig{
		Name:          WatchdogRiskRewardRatio,
		StopPercent:   decimal.NewFromInt(3),
		TargetPercent: decimal.NewFromInt(6),
	}
	fixture.listener.riskRewardRatioWatchdog(context.Background(), fixture.venue, position, watchdogConfig)

	stops := fixture.openOrdersOfType(t, entity.OrderTypeStop)
	require.Len(t, stops, 1)
	assert.Equal(t, "-6306.94", stops[0].Price.String())

	targets := fixture.openOrdersOfType(t, entity.OrderTypeLimit)
	require.Len(t, targets, 1)
	assert.Equal(t, "-6892.12", targets[0].Price.String())
	assert.True(t, targets[0].IsReduceOnly())

	// the bracket is in place, a second pass must not double it
	fixture.listener.riskRewardRatioWatchdog(context.Background(), fixture.venue, position, watchdogConfig)
	assert.Len(t, fixture.openOrdersOfType(t, entity.OrderTypeStop), 1)
	assert.Len(t, fixture.openOrdersOfType(t, entity.OrderTypeLimit), 1)
}

func TestStopLossWatchRequestsCloseOnExcessLoss(t *testing.T) {
	fixture := newListenerFixture(t)
	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))

	// market fell roughly 7.7 percent below the entry
	fixture.setTicker(t, 6000, 6002)

	watchdogConfig := config.WatchdogConfig{Name: WatchdogStopLossWatch, Stop: decimal.NewFromFloat(2.5)}
	fixture.listener.stopLossWatch(context.Background(), fixture.venue, position, watchdogConfig)

	pairState := fixture.pairStates.Get("paper", "BTCUSDT")
	require.NotNil(t, pairState)
	assert.Equal(t, entity.PairStateClose, pairState.State)
}

func TestStopLossWatchStaysQuietWithinStop(t *testing.T) {
	fixture := newListenerFixture(t)
	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))

	// roughly one percent down, inside the allowed loss
	fixture.setTicker(t, 6440, 6442)

	watchdogConfig := config.WatchdogConfig{Name: WatchdogStopLossWatch, Stop: decimal.NewFromFloat(2.5)}
	fixture.listener.stopLossWatch(context.Background(), fixture.venue, position, watchdogConfig)

	assert.True(t, fixture.pairStates.IsNeutral("paper", "BTCUSDT"))
}

func TestStopLossWatchRejectsInvalidStop(t *testing.T) {
	fixture := newListenerFixture(t)
	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))
	fixture.setTicker(t, 5000, 5002)

	watchdogConfig := config.WatchdogConfig{Name: WatchdogStopLossWatch, Stop: decimal.NewFromInt(80)}
	fixture.listener.stopLossWatch(context.Background(), fixture.venue, position, watchdogConfig)

	assert.True(t, fixture.pairStates.IsNeutral("paper", "BTCUSDT"))
}

func TestTrailingStopWatchWaitsForProfitZone(t *testing.T) {
	fixture := newListenerFixture(t)
	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))

	watchdogConfig := config.WatchdogConfig{
		Name:          WatchdogTrailingStop,
		StopPercent:   decimal.NewFromInt(1),
		TargetPercent: decimal.NewFromInt(3),
	}

	// activation sits 3 percent into profit, the market is still at the entry
	fixture.listener.trailingStopWatch(context.Background(), fixture.venue, position, watchdogConfig)
	assert.Empty(t, fixture.openOrdersOfType(t, entity.OrderTypeTrailingStop))

	// market reached the profit zone, the trailing stop goes out
	fixture.setTicker(t, 7000, 7002)
	fixture.listener.trailingStopWatch(context.Background(), fixture.venue, position, watchdogConfig)

	trailing := fixture.openOrdersOfType(t, entity.OrderTypeTrailingStop)
	require.Len(t, trailing, 1)

	// one percent of the activation price, negated for the closing sell
	assert.Equal(t, "-66.9706", trailing[0].Price.String())
	assert.True(t, trailing[0].GetAmount().Equal(decimal.NewFromFloat(0.5)))
}

func TestOnTickBlockedByPendingPairAction(t *testing.T) {
	fixture := newListenerFixture(t)
	withWatchdogConfig(t, config.WatchdogConfig{Name: WatchdogStopLoss, Percent: decimal.NewFromInt(5)})

	fixture.setTicker(t, 6500, 6502)
	fixture.openLongPosition(t, decimal.NewFromFloat(0.5))

	_, err := fixture.pairStates.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateClose, entity.PairStateOptions{})
	require.NoError(t, err)

	fixture.listener.OnTick(context.Background())

	assert.Empty(t, fixture.openOrdersOfType(t, entity.OrderTypeStop))
}

func TestOnTickRunsConfiguredWatchdogs(t *testing.T) {
	fixture := newListenerFixture(t)
	withWatchdogConfig(t, config.WatchdogConfig{Name: WatchdogStopLoss, Percent: decimal.NewFromInt(5)})

	fixture.setTicker(t, 6500, 6502)
	fixture.openLongPosition(t, decimal.NewFromFloat(0.5))

	fixture.listener.OnTick(context.Background())

	assert.Len(t, fixture.openOrdersOfType(t, entity.OrderTypeStop), 1)
}

func TestOnPositionChangedCleansUpProtectiveOrders(t *testing.T) {
	fixture := newListenerFixture(t)
	withWatchdogConfig(t, config.WatchdogConfig{Name: WatchdogStopLoss, Percent: decimal.NewFromInt(5)})

	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))
	fixture.listener.stopLossWatchdog(context.Background(), fixture.venue, position, config.WatchdogConfig{Name: WatchdogStopLoss, Percent: decimal.NewFromInt(5)})
	require.Len(t, fixture.openOrdersOfType(t, entity.OrderTypeStop), 1)

	event := &entity.PositionStateChangeEvent{
		State:    entity.PositionStateClosed,
		Exchange: "paper",
		Symbol:   "BTCUSDT",
	}
	fixture.listener.OnPositionChanged(context.Background(), event)

	assert.Empty(t, fixture.openOrdersOfType(t, entity.OrderTypeStop))
}

func TestOnPositionChangedIgnoresOpenedEvents(t *testing.T) {
	fixture := newListenerFixture(t)
	withWatchdogConfig(t, config.WatchdogConfig{Name: WatchdogStopLoss, Percent: decimal.NewFromInt(5)})

	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))
	fixture.listener.stopLossWatchdog(context.Background(), fixture.venue, position, config.WatchdogConfig{Name: WatchdogStopLoss, Percent: decimal.NewFromInt(5)})

	event := &entity.PositionStateChangeEvent{
		State:    entity.PositionStateOpened,
		Exchange: "paper",
		Symbol:   "BTCUSDT",
	}
	fixture.listener.OnPositionChanged(context.Background(), event)

	assert.Len(t, fixture.openOrdersOfType(t, entity.OrderTypeStop), 1)
}

func TestOnPositionChangedWithoutProtectiveWatchdogKeepsOrders(t *testing.T) {
	fixture := newListenerFixture(t)
	withWatchdogConfig(t, config.WatchdogConfig{Name: WatchdogStopLossWatch, Stop: decimal.NewFromFloat(2.5)})

	fixture.setTicker(t, 6500, 6502)
	position := fixture.openLongPosition(t, decimal.NewFromFloat(0.5))
	fixture.listener.stopLossWatchdog(context.Background(), fixture.venue, position, config.WatchdogConfig{Name: WatchdogStopLoss, Percent: decimal.NewFromInt(5)})
	require.Len(t, fixture.openOrdersOfType(t, entity.OrderTypeStop), 1)

	event := &entity.PositionStateChangeEvent{
		State:    entity.PositionStateClosed,
		Exchange: "paper",
		Symbol:   "BTCUSDT",
	}
	fixture.listener.OnPositionChanged(context.Background(), event)

	assert.Len(t, fixture.openOrdersOfType(t, entity.OrderTypeStop), 1)
}
