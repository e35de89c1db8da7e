package pairstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/service/exchange"
	"github.com/tradekit/pair-engine/internal/service/orderexecutor"
)

var (
	ErrBalanceNotSupported = errors.New("exchange does not report a tradeable balance")
)

const defaultMaxStateRetries = 3

// Execution turns a recorded pair intent into venue orders on every tick.
type Execution interface {
	OnPairStateExecutionTick(ctx context.Context, pairState *entity.PairState)
	OnCancelPair(ctx context.Context, pairState *entity.PairState)
}

// DefaultExecution places entry and close orders for pending pair states.
// Each tick makes at most one submit attempt per state; a state exceeding its
// retry allowance has its orders canceled and is cleared.
type DefaultExecution struct {
	exchanges  *exchange.Manager
	executor   *orderexecutor.Executor
	maxRetries int
}

func NewDefaultExecution(exchanges *exchange.Manager, executor *orderexecutor.Executor) *DefaultExecution {
	return &DefaultExecution{
		exchanges:  exchanges,
		executor:   executor,
		maxRetries: defaultMaxStateRetries,
	}
}

func (e *DefaultExecution) OnPairStateExecutionTick(ctx context.Context, pairState *entity.PairState) {
	if pairState.IsCleared() {
		return
	}

	if pairState.Retries() > e.maxRetries {
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
			"state":    pairState.State,
			"retries":  pairState.Retries(),
		}).Error("pair state retries exceeded, canceling")

		e.OnCancelPair(ctx, pairState)

		return
	}

	switch pairState.State {
	case entity.PairStateCancel:
		e.OnCancelPair(ctx, pairState)
	case entity.PairStateClose:
		e.onClosePair(ctx, pairState)
	case entity.PairStateLong, entity.PairStateShort:
		e.onEnterPair(ctx, pairState)
	default:
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
			"state":    pairState.State,
		}).Error("unknown pair state")
	}
}

// OnCancelPair withdraws every open order of the pair and clears the state.
func (e *DefaultExecution) OnCancelPair(ctx context.Context, pairState *entity.PairState) {
	canceled, err := e.executor.CancelAll(ctx, pairState.Exchange, pairState.Symbol)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
		}).Errorf("cancel all orders failed: %v", err)
		pairState.TriggerRetry()
		return
	}

	logrus.WithFields(logrus.Fields{
		"exchange": pairState.Exchange,
		"symbol":   pairState.Symbol,
		"canceled": len(canceled),
	}).Info("pair orders canceled")

	pairState.Clear()
}

func (e *DefaultExecution) onEnterPair(ctx context.Context, pairState *entity.PairState) {
	if pairState.ExchangeOrder() != nil {
		// an entry order is already working, the price adjust flow owns it now
		return
	}

	capital, err := pairState.Capital()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
		}).Errorf("pair state has no capital: %v", err)
		pairState.Clear()
		return
	}

	price, err := e.executor.GetCurrentPrice(ctx, pairState.Exchange, pairState.Symbol, entity.OrderSide(pairState.State))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
		}).Errorf("no price for entry: %v", err)
		pairState.TriggerRetry()
		return
	}

	amount, err := e.resolveAmount(ctx, pairState, capital, price.Abs())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
		}).Errorf("capital sizing failed: %v", err)
		pairState.TriggerRetry()
		return
	}

	if pairState.State == entity.PairStateShort {
		amount = amount.Neg()
	}

	var order *entity.Order
	if pairState.Options.Market {
		order = entity.NewMarketOrder(pairState.Symbol, amount)
	} else {
		order = entity.NewLimitPostOnlyAdjustedPriceOrder(pairState.Symbol, amount, entity.OrderOptions{})
	}

	pairState.SetOrder(order)
	e.submit(ctx, pairState, order)
}

func (e *DefaultExecution) onClosePair(ctx context.Context, pairState *entity.PairState) {
	if pairState.ExchangeOrder() != nil {
		return
	}

	venue, err := e.exchanges.Get(pairState.Exchange)
	if err != nil {
		logrus.Errorf("close pair failed: %v", err)
		pairState.TriggerRetry()
		return
	}

	position, err := venue.GetPositionForSymbol(ctx, pairState.Symbol)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
		}).Errorf("position lookup failed: %v", err)
		pairState.TriggerRetry()
		return
	}

	if position == nil {
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
		}).Info("no position to close")
		pairState.Clear()
		return
	}

	// closing means trading the position amount in the opposite direction
	amount := position.Amount.Neg()

	var order *entity.Order
	if pairState.Options.Market {
		order = entity.NewMarketOrder(pairState.Symbol, amount)
	} else {
		order = entity.NewCloseOrderWithPriceAdjustment(pairState.Symbol, amount)
	}

	pairState.SetOrder(order)
	e.submit(ctx, pairState, order)
}

func (e *DefaultExecution) submit(ctx context.Context, pairState *entity.PairState, order *entity.Order) {
	logFields := logrus.Fields{
		"exchange": pairState.Exchange,
		"symbol":   pairState.Symbol,
		"state":    pairState.State,
	}

	exchangeOrder, err := e.executor.ExecuteOrder(ctx, pairState.Exchange, order)
	if err != nil {
		logrus.WithFields(logFields).Errorf("order execution failed: %v", err)
		pairState.TriggerRetry()
		return
	}

	switch {
	case exchangeOrder.Status == entity.OrderStatusDone:
		logrus.WithFields(logFields).Info("order directly filled, clearing state")
		pairState.Clear()

	case exchangeOrder.ShouldCancelOrderProcess():
		logrus.WithFields(logFields).WithField("status", exchangeOrder.Status).Error("order was closed by venue, clearing state")
		pairState.Clear()

	case exchangeOrder.IsOpen():
		pairState.SetExchangeOrder(exchangeOrder)

	default:
		pairState.TriggerRetry()
	}
}

func (e *DefaultExecution) resolveAmount(ctx context.Context, pairState *entity.PairState, capital entity.OrderCapital, price decimal.Decimal) (decimal.Decimal, error) {
	switch capital.Type {
	case entity.CapitalAsset:
		return capital.Asset, nil

	case entity.CapitalCurrency:
		return capital.Currency.Div(price), nil

	case entity.CapitalBalance:
		venue, err := e.exchanges.Get(pairState.Exchange)
		if err != nil {
			return decimal.Zero, err
		}

		balanceProvider, ok := venue.(entity.BalanceProvider)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrBalanceNotSupported, pairState.Exchange)
		}

		balance, err := balanceProvider.GetTradeableBalance(ctx)
		if err != nil {
			return decimal.Zero, err
		}

		return balance.Mul(capital.Balance).Div(decimal.NewFromInt(100)).Div(price), nil

	default:
		return decimal.Zero, entity.ErrInvalidCapitalType
	}
}
