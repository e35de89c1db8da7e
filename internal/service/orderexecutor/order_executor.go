package orderexecutor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tradekit/pair-engine/internal/config"
	"github.com/tradekit/pair-engine/internal/constant"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/service/exchange"
	"github.com/tradekit/pair-engine/internal/storage"
	"github.com/tradekit/pair-engine/internal/util"
)

var (
	ErrRetriesExceeded    = errors.New("order retries exceeded")
	ErrNoTickerAvailable  = errors.New("no ticker available for symbol")
	ErrNoExchangeResponse = errors.New("exchange returned no order")
	ErrInvalidOrderValues = errors.New("calculated order values are invalid")
)

const (
	tickerMaxAge     = 10 * time.Second
	tickerPollDelay  = 200 * time.Millisecond
	tickerPollLimit  = 40
	adjustStaleAfter = 2 * time.Minute
)

// Executor submits order intents to venues. It resolves adjusted prices from
// the ticker feed right before every submit, retries rejected orders up to a
// bounded limit and keeps at most one price adjustment in flight per exchange
// order.
type Executor struct {
	exchanges  *exchange.Manager
	tickers    *storage.TickerStore
	js         nats.JetStreamContext
	retryLimit int
	retryDelay time.Duration

	mu            sync.Mutex
	runningOrders map[string]time.Time
}

func NewExecutor(exchanges *exchange.Manager, tickers *storage.TickerStore, js nats.JetStreamContext, cfg config.OrderConfig) *Executor {
	return &Executor{
		exchanges:     exchanges,
		tickers:       tickers,
		js:            js,
		retryLimit:    cfg.RetryLimit(),
		retryDelay:    cfg.RetryDelay(),
		runningOrders: make(map[string]time.Time),
	}
}

// ExecuteOrder submits the order and keeps resubmitting while the venue
// reports a retryable cancel or reject. Every attempt on an adjusted price
// order resolves a fresh price first. The returned order is the first
// non-retryable venue response.
func (e *Executor) ExecuteOrder(ctx context.Context, exchangeName string, order *entity.Order) (*entity.ExchangeOrder, error) {
	venue, err := e.exchanges.Get(exchangeName)
	if err != nil {
		return nil, err
	}

	attemptOrder := order
	for attempt := 0; attempt <= e.retryLimit; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			attemptOrder = entity.NewRetryOrder(attemptOrder)
		}

		submitOrder := attemptOrder
		if submitOrder.HasAdjustedPrice() {
			price, priceErr := e.GetCurrentPrice(ctx, exchangeName, submitOrder.Symbol, submitOrder.Side)
			if priceErr != nil {
				return nil, priceErr
			}

			submitOrder = entity.NewRetryOrderWithPriceAdjustment(submitOrder, price)
		}

		exchangeOrder, orderErr := venue.Order(ctx, submitOrder)
		if orderErr != nil {
			logrus.WithFields(logrus.Fields{
				"exchange": exchangeName,
				"symbol":   submitOrder.Symbol,
				"attempt":  attempt,
			}).Errorf("order submit failed: %v", orderErr)
			return nil, orderErr
		}

		if exchangeOrder == nil {
			return nil, ErrNoExchangeResponse
		}

		if exchangeOrder.Status == entity.OrderStatusDone {
			e.publishOrderCreated(exchangeName, submitOrder, exchangeOrder)
			return exchangeOrder, nil
		}

		if (exchangeOrder.Status == entity.OrderStatusCanceled || exchangeOrder.Status == entity.OrderStatusRejected) && exchangeOrder.Retry {
			logrus.WithFields(logrus.Fields{
				"exchange": exchangeName,
				"symbol":   submitOrder.Symbol,
				"attempt":  attempt,
				"status":   exchangeOrder.Status,
			}).Info("venue asked for order resubmission")
			continue
		}

		e.publishOrderCreated(exchangeName, submitOrder, exchangeOrder)
		return exchangeOrder, nil
	}

	logrus.WithFields(logrus.Fields{
		"exchange": exchangeName,
		"symbol":   order.Symbol,
		"retries":  e.retryLimit,
	}).Error("order retries exceeded")

	return nil, ErrRetriesExceeded
}

// ExecuteOrderWithAmountAndPrice snaps price and amount to the venue's tick
// and lot size before a single submit without retry.
func (e *Executor) ExecuteOrderWithAmountAndPrice(ctx context.Context, exchangeName string, order *entity.Order) (*entity.ExchangeOrder, error) {
	venue, err := e.exchanges.Get(exchangeName)
	if err != nil {
		return nil, err
	}

	amount := venue.CalculateAmount(order.Amount, order.Symbol)
	price := venue.CalculatePrice(order.Price, order.Symbol)
	if amount.IsZero() || price.IsZero() {
		return nil, fmt.Errorf("%w: price=%s amount=%s", ErrInvalidOrderValues, price, amount)
	}

	adjusted := *order
	adjusted.Amount = amount
	adjusted.Price = price

	exchangeOrder, err := venue.Order(ctx, &adjusted)
	if err != nil {
		return nil, err
	}
	if exchangeOrder == nil {
		return nil, ErrNoExchangeResponse
	}

	e.publishOrderCreated(exchangeName, &adjusted, exchangeOrder)

	return exchangeOrder, nil
}

func (e *Executor) CancelOrder(ctx context.Context, exchangeName, id string) (*entity.ExchangeOrder, error) {
	venue, err := e.exchanges.Get(exchangeName)
	if err != nil {
		return nil, err
	}

	return venue.CancelOrder(ctx, id)
}

func (e *Executor) CancelAll(ctx context.Context, exchangeName, symbol string) ([]*entity.ExchangeOrder, error) {
	venue, err := e.exchanges.Get(exchangeName)
	if err != nil {
		return nil, err
	}

	return venue.CancelAll(ctx, symbol)
}

// GetCurrentPrice polls for a fresh ticker and falls back to the last known
// stale one. Long intents price at the bid, short intents at the negated ask
// so the sign convention carries through.
func (e *Executor) GetCurrentPrice(ctx context.Context, exchangeName, symbol string, side entity.OrderSide) (decimal.Decimal, error) {
	var ticker *entity.Ticker

	for attempt := 0; attempt < tickerPollLimit; attempt++ {
		ticker = e.tickers.GetIfUpToDate(exchangeName, symbol, tickerMaxAge)
		if ticker != nil {
			break
		}

		select {
		case <-time.After(tickerPollDelay):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}

	if ticker == nil {
		ticker = e.tickers.Get(exchangeName, symbol)
		if ticker == nil {
			return decimal.Zero, fmt.Errorf("%w: %s %s", ErrNoTickerAvailable, exchangeName, symbol)
		}

		logrus.WithFields(logrus.Fields{
			"exchange": exchangeName,
			"symbol":   symbol,
			"age":      time.Since(ticker.CreatedAt).String(),
		}).Warn("falling back to stale ticker")
	}

	if side == entity.OrderSideShort {
		return ticker.Ask.Neg(), nil
	}

	return ticker.Bid, nil
}

// AdjustOpenOrdersPrice re-prices the attached open order of every given pair
// state against the current ticker. At most one adjustment per exchange order
// is in flight at any time; stale in-flight marks are evicted so a crashed
// adjustment cannot block its order forever.
func (e *Executor) AdjustOpenOrdersPrice(ctx context.Context, pairStates ...*entity.PairState) {
	e.evictStaleRunningMarks()

	var wg sync.WaitGroup
	for _, pairState := range pairStates {
		exchangeOrder := pairState.ExchangeOrder()
		order := pairState.Order()
		if exchangeOrder == nil || order == nil || !order.HasAdjustedPrice() {
			continue
		}

		if !e.markRunning(exchangeOrder.ID) {
			continue
		}

		wg.Add(1)
		go func(pairState *entity.PairState, exchangeOrder *entity.ExchangeOrder, order *entity.Order) {
			defer wg.Done()
			defer e.releaseRunning(exchangeOrder.ID)
			e.adjustOrderPrice(ctx, pairState, exchangeOrder, order)
		}(pairState, exchangeOrder, order)
	}

	wg.Wait()
}

func (e *Executor) adjustOrderPrice(ctx context.Context, pairState *entity.PairState, exchangeOrder *entity.ExchangeOrder, order *entity.Order) {
	logFields := logrus.Fields{
		"exchange": pairState.Exchange,
		"symbol":   pairState.Symbol,
		"order_id": exchangeOrder.ID,
	}

	venue, err := e.exchanges.Get(pairState.Exchange)
	if err != nil {
		logrus.WithFields(logFields).Errorf("price adjust failed: %v", err)
		return
	}

	price, err := e.GetCurrentPrice(ctx, pairState.Exchange, pairState.Symbol, order.Side)
	if err != nil {
		logrus.WithFields(logFields).Errorf("price adjust failed: %v", err)
		return
	}

	// the cached order may have filled or been canceled since the last tick,
	// only the live venue record decides whether it is still ours to move
	live, err := venue.FindOrderByID(ctx, exchangeOrder.ID)
	if err != nil {
		logrus.WithFields(logFields).Errorf("price adjust failed: %v", err)
		return
	}
	if live == nil || !live.IsOpen() {
		logrus.WithFields(logFields).Debug("order no longer open, leaving it untouched")
		return
	}

	// venues report resting prices unsigned, compare magnitudes
	if price.Abs().Equal(live.Price.Abs()) {
		return
	}

	updateOrder, err := entity.NewPriceUpdateOrder(live.ID, price, order.Side)
	if err != nil {
		logrus.WithFields(logFields).Errorf("price adjust failed: %v", err)
		return
	}

	updated, err := venue.UpdateOrder(ctx, live.ID, updateOrder)
	if err != nil {
		logrus.WithFields(logFields).Errorf("order update failed: %v", err)
		return
	}
	if updated == nil {
		logrus.WithFields(logFields).Error("order update gave no response")
		return
	}

	switch {
	case updated.IsOpen():
		pairState.SetOrder(order)
		pairState.SetExchangeOrder(updated)

	case updated.Status == entity.OrderStatusCanceled && updated.Retry:
		// venue dropped the order during the update, recreate it from scratch
		recreated := e.recreateAdjustedOrder(ctx, pairState, order)
		if recreated != nil {
			logrus.WithFields(logFields).WithField("new_order_id", recreated.ID).Info("adjusted order recreated")
			pairState.SetExchangeOrder(recreated)
		}

	default:
		logrus.WithFields(logFields).WithField("status", updated.Status).Error("unknown order update outcome")
	}
}

func (e *Executor) recreateAdjustedOrder(ctx context.Context, pairState *entity.PairState, order *entity.Order) *entity.ExchangeOrder {
	var freshOrder *entity.Order
	if order.IsReduceOnly() {
		freshOrder = entity.NewCloseOrderWithPriceAdjustment(order.Symbol, order.Amount)
	} else {
		freshOrder = entity.NewLimitPostOnlyAdjustedPriceOrder(order.Symbol, order.Amount, order.Options)
	}

	exchangeOrder, err := e.ExecuteOrder(ctx, pairState.Exchange, freshOrder)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
		}).Errorf("adjusted order recreate failed: %v", err)
		return nil
	}

	pairState.SetOrder(freshOrder)

	return exchangeOrder
}

func (e *Executor) markRunning(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, running := e.runningOrders[id]; running {
		return false
	}

	e.runningOrders[id] = time.Now()

	return true
}

func (e *Executor) releaseRunning(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.runningOrders, id)
}

func (e *Executor) evictStaleRunningMarks() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, startedAt := range e.runningOrders {
		if time.Since(startedAt) > adjustStaleAfter {
			logrus.WithField("order_id", id).Warn("evicting stale in-flight price adjustment")
			delete(e.runningOrders, id)
		}
	}
}

func (e *Executor) publishOrderCreated(exchangeName string, order *entity.Order, exchangeOrder *entity.ExchangeOrder) {
	if e.js == nil {
		return
	}

	event := entity.OrderCreatedEvent{
		Exchange:      exchangeName,
		Order:         order,
		ExchangeOrder: exchangeOrder,
		CreatedAt:     time.Now(),
	}

	if err := util.PublishEvent(e.js, constant.PairEngineStreamSubjectOrderCreated, event); err != nil {
		logrus.Errorf("publish order created event failed: %v", err)
	}
}
