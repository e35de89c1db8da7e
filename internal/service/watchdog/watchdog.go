package watchdog

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tradekit/pair-engine/internal/config"
	"github.com/tradekit/pair-engine/internal/constant"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/service/exchange"
	"github.com/tradekit/pair-engine/internal/service/orderexecutor"
	"github.com/tradekit/pair-engine/internal/service/pairstate"
	"github.com/tradekit/pair-engine/internal/storage"
	"github.com/tradekit/pair-engine/internal/util"
)

const (
	WatchdogStopLoss        = "stoploss"
	WatchdogRiskRewardRatio = "risk_reward_ratio"
	WatchdogStopLossWatch   = "stoploss_watch"
	WatchdogTrailingStop    = "trailing_stop"
)

var (
	minWatchPercent = decimal.NewFromFloat(0.1)
	maxWatchPercent = decimal.NewFromInt(50)
)

// Listener guards every open position with the watchdog rules configured for
// its pair. It runs on a fixed tick and backs off whenever the pair already
// has a pending intent.
type Listener struct {
	exchanges  *exchange.Manager
	pairStates *pairstate.Manager
	executor   *orderexecutor.Executor
	stopLoss   *StopLossCalculator
	riskReward *RiskRewardRatioCalculator
	tickers    *storage.TickerStore
	js         nats.JetStreamContext
}

func NewListener(
	exchanges *exchange.Manager,
	pairStates *pairstate.Manager,
	executor *orderexecutor.Executor,
	stopLoss *StopLossCalculator,
	riskReward *RiskRewardRatioCalculator,
	tickers *storage.TickerStore,
	js nats.JetStreamContext,
) *Listener {
	return &Listener{
		exchanges:  exchanges,
		pairStates: pairStates,
		executor:   executor,
		stopLoss:   stopLoss,
		riskReward: riskReward,
		tickers:    tickers,
		js:         js,
	}
}

func (l *Listener) OnTick(ctx context.Context) {
	for _, venue := range l.exchanges.All() {
		positions, err := venue.GetPositions(ctx)
		if err != nil {
			logrus.WithField("exchange", venue.Name()).Errorf("watchdog position fetch failed: %v", err)
			continue
		}

		for _, position := range positions {
			watchdogs := l.watchdogsForPair(venue.Name(), position.Symbol)
			if len(watchdogs) == 0 {
				continue
			}

			if !l.pairStates.IsNeutral(venue.Name(), position.Symbol) {
				logrus.WithFields(logrus.Fields{
					"exchange": venue.Name(),
					"symbol":   position.Symbol,
				}).Debug("watchdog blocked, pair action in place")
				continue
			}

			for _, watchdogConfig := range watchdogs {
				switch watchdogConfig.Name {
				case WatchdogStopLoss:
					l.stopLossWatchdog(ctx, venue, position, watchdogConfig)
				case WatchdogRiskRewardRatio:
					l.riskRewardRatioWatchdog(ctx, venue, position, watchdogConfig)
				case WatchdogStopLossWatch:
					l.stopLossWatch(ctx, venue, position, watchdogConfig)
				case WatchdogTrailingStop:
					l.trailingStopWatch(ctx, venue, position, watchdogConfig)
				}
			}
		}
	}
}

// OnPositionChanged cleans up leftover protective orders once their position
// is gone.
func (l *Listener) OnPositionChanged(ctx context.Context, event *entity.PositionStateChangeEvent) {
	if !event.IsClosed() {
		return
	}

	watchdogs := l.watchdogsForPair(event.Exchange, event.Symbol)

	hasProtectiveWatchdog := false
	for _, watchdogConfig := range watchdogs {
		switch watchdogConfig.Name {
		case WatchdogTrailingStop, WatchdogStopLoss, WatchdogRiskRewardRatio:
			hasProtectiveWatchdog = true
		}
	}

	if !hasProtectiveWatchdog {
		return
	}

	logrus.WithFields(logrus.Fields{
		"exchange": event.Exchange,
		"symbol":   event.Symbol,
	}).Info("watchdog: position closed, cleaning up orders")

	if _, err := l.executor.CancelAll(ctx, event.Exchange, event.Symbol); err != nil {
		logrus.Errorf("watchdog cleanup failed: %v", err)
	}
}

func (l *Listener) stopLossWatchdog(ctx context.Context, venue entity.Exchange, position *entity.Position, watchdogConfig config.WatchdogConfig) {
	orders, err := venue.GetOrdersForSymbol(ctx, position.Symbol)
	if err != nil {
		logrus.Errorf("stoploss order fetch failed: %v", err)
		return
	}

	for _, orderChange := range SyncStopLossOrder(position, orders) {
		logrus.WithFields(logrus.Fields{
			"exchange": venue.Name(),
			"symbol":   position.Symbol,
			"order_id": orderChange.ID,
			"amount":   orderChange.Amount.String(),
		}).Info("stoploss update")

		if orderChange.ID != "" {
			amount := orderChange.Amount.Abs()
			if position.IsLong() {
				amount = amount.Neg()
			}

			if _, err := venue.UpdateOrder(ctx, orderChange.ID, entity.NewUpdateOrder(orderChange.ID, decimal.Zero, amount)); err != nil {
				logrus.Errorf("stoploss update failed: %v", err)
			}

			continue
		}

		price, err := l.stopLoss.CalculateForOpenPosition(venue.Name(), position, watchdogConfig.Percent)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"exchange": venue.Name(),
				"symbol":   position.Symbol,
			}).Infof("stoploss price skipped: %v", err)
			continue
		}

		price = venue.CalculatePrice(price, position.Symbol)
		if price.IsZero() {
			continue
		}

		order := entity.NewStopLossOrder(position.Symbol, price, orderChange.Amount)
		if _, err := venue.Order(ctx, order); err != nil {
			logrus.Errorf("stoploss create failed: %v", err)
		}
	}
}

func (l *Listener) riskRewardRatioWatchdog(ctx context.Context, venue entity.Exchange, position *entity.Position, watchdogConfig config.WatchdogConfig) {
	orders, err := venue.GetOrdersForSymbol(ctx, position.Symbol)
	if err != nil {
		logrus.Errorf("risk reward order fetch failed: %v", err)
		return
	}

	options := RiskRewardOptions{
		StopPercent:   watchdogConfig.StopPercent,
		TargetPercent: watchdogConfig.TargetPercent,
	}

	orderChanges, err := l.riskReward.CreateRiskRewardOrders(position, orders, options)
	if err != nil {
		logrus.Errorf("risk reward sync failed: %v", err)
		return
	}

	for _, orderChange := range orderChanges {
		logrus.WithFields(logrus.Fields{
			"exchange": venue.Name(),
			"symbol":   position.Symbol,
			"order_id": orderChange.ID,
			"type":     orderChange.Type,
		}).Info("risk reward order change detected")

		if orderChange.ID != "" {
			if _, err := venue.UpdateOrder(ctx, orderChange.ID, entity.NewUpdateOrder(orderChange.ID, orderChange.Price, orderChange.Amount)); err != nil {
				logrus.Errorf("risk reward order update failed: %v", err)
			}

			continue
		}

		price := venue.CalculatePrice(orderChange.Price, position.Symbol)
		if price.IsZero() {
			logrus.WithFields(logrus.Fields{
				"exchange": venue.Name(),
				"symbol":   position.Symbol,
			}).Error("risk reward order has invalid price")
			continue
		}

		var order *entity.Order
		if orderChange.Type == entity.OrderTypeStop {
			order = entity.NewStopLossOrder(position.Symbol, price, orderChange.Amount)
		} else {
			order = entity.NewCloseLimitPostOnlyReduceOrder(position.Symbol, price, orderChange.Amount)
		}

		if _, err := l.executor.ExecuteOrder(ctx, venue.Name(), order); err != nil {
			logrus.Errorf("risk reward order create failed: %v", err)
		}
	}
}

// stopLossWatch does not place any order, it requests a pair close once the
// floating loss exceeds the configured stop.
func (l *Listener) stopLossWatch(ctx context.Context, venue entity.Exchange, position *entity.Position, watchdogConfig config.WatchdogConfig) {
	if !isValidWatchPercent(watchdogConfig.Stop) {
		logrus.Error(`stoploss watcher: invalid stop configuration, need "0.1" - "50"`)
		return
	}

	if position.Entry.IsZero() {
		logrus.WithField("symbol", position.Symbol).Error("stoploss watcher: no entry for position")
		return
	}

	ticker := l.tickers.Get(venue.Name(), position.Symbol)
	if ticker == nil {
		logrus.WithFields(logrus.Fields{
			"exchange": venue.Name(),
			"symbol":   position.Symbol,
		}).Error("stoploss watcher: no ticker found")
		return
	}

	one := decimal.NewFromInt(1)
	profit := decimal.Zero

	if position.IsLong() {
		if ticker.Bid.LessThan(position.Entry) {
			profit = ticker.Bid.Div(position.Entry).Sub(one).Mul(hundred)
		}
	} else {
		if ticker.Ask.GreaterThan(position.Entry) {
			profit = position.Entry.Div(ticker.Ask).Sub(one).Mul(hundred)
		}
	}

	if profit.GreaterThanOrEqual(decimal.Zero) {
		return
	}

	maxLoss := watchdogConfig.Stop.Abs().Neg()
	if profit.LessThan(maxLoss) {
		logrus.WithFields(logrus.Fields{
			"exchange": venue.Name(),
			"symbol":   position.Symbol,
			"max_loss": maxLoss.StringFixed(2),
			"profit":   profit.StringFixed(2),
		}).Info("stoploss watcher: stop triggered")

		if _, err := l.pairStates.Update(ctx, venue.Name(), position.Symbol, entity.PairStateClose, entity.PairStateOptions{}); err != nil {
			logrus.Errorf("stoploss watcher: close request failed: %v", err)
		}
	}
}

func (l *Listener) trailingStopWatch(ctx context.Context, venue entity.Exchange, position *entity.Position, watchdogConfig config.WatchdogConfig) {
	if !isValidWatchPercent(watchdogConfig.StopPercent) || !isValidWatchPercent(watchdogConfig.TargetPercent) {
		logrus.Error(`trailing stop watcher: invalid configuration, need "0.1" - "50"`)
		return
	}

	if position.Entry.IsZero() {
		logrus.WithField("symbol", position.Symbol).Error("trailing stop watcher: no entry for position")
		return
	}

	orders, err := venue.GetOrdersForSymbol(ctx, position.Symbol)
	if err != nil {
		logrus.Errorf("trailing stop order fetch failed: %v", err)
		return
	}

	for _, orderChange := range SyncTrailingStopLossOrder(position, orders) {
		if orderChange.ID != "" {
			amount := orderChange.Amount.Abs()
			if position.IsLong() {
				amount = amount.Neg()
			}

			if _, err := venue.UpdateOrder(ctx, orderChange.ID, entity.NewUpdateOrder(orderChange.ID, decimal.Zero, amount)); err != nil {
				logrus.Errorf("trailing stop update failed: %v", err)
			}

			continue
		}

		// the activation price sits target percent into profit, the calculator
		// refuses it while the market has not reached that zone yet
		activationPrice, err := l.stopLoss.CalculateForOpenPosition(venue.Name(), position, watchdogConfig.TargetPercent.Neg())
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"exchange": venue.Name(),
				"symbol":   position.Symbol,
			}).Infof("trailing stop not activated: %v", err)
			continue
		}

		trailingOffset := activationPrice.Mul(watchdogConfig.StopPercent).Div(hundred)
		trailingOffset = venue.CalculatePrice(trailingOffset, position.Symbol)
		if trailingOffset.IsZero() {
			continue
		}

		order := entity.NewTrailingStopLossOrder(position.Symbol, trailingOffset, orderChange.Amount)
		if _, err := venue.Order(ctx, order); err != nil {
			logrus.Errorf("trailing stop create failed: %v", err)
		}
	}
}

func (l *Listener) watchdogsForPair(exchangeName, symbol string) []config.WatchdogConfig {
	if config.Env == nil {
		return nil
	}

	for _, pair := range config.Env.Pairs {
		if pair.Exchange == exchangeName && pair.Symbol == symbol {
			return pair.Watchdogs
		}
	}

	return nil
}

func isValidWatchPercent(value decimal.Decimal) bool {
	return value.GreaterThanOrEqual(minWatchPercent) && value.LessThanOrEqual(maxWatchPercent)
}

func (l *Listener) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.PairEngineStreamName,
		Subjects:  []string{constant.PairEngineStreamSubjectAll},
		Retention: nats.InterestPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
	}

	stream, err := l.js.StreamInfo(constant.PairEngineStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.PairEngineStreamName)
		_, err = l.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	_, err = l.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

func (l *Listener) JetstreamEventSubscribe(ctx context.Context) error {
	err := l.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = l.js.QueueSubscribe(
		constant.PairEngineStreamSubjectPositionState,
		constant.WatchdogQueueName,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(config.Env.NatsJetstream.TimeoutHandler["position_state"], msg, l.handlePositionStateEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.Durable(constant.WatchdogQueueGroup),
	)
	if err != nil {
		return err
	}

	return nil
}

func (l *Listener) handlePositionStateEvent(ctx context.Context, msg *nats.Msg) error {
	var event *entity.PositionStateChangeEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logrus.Error(err)
		return err
	}

	l.OnPositionChanged(ctx, event)

	return nil
}
