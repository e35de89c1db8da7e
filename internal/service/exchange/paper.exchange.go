package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/storage"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrZeroAmount        = errors.New("order amount must not be zero")
	ErrNoTickerForSymbol = errors.New("no ticker for symbol")
)

const (
	paperAmountPrecision = 8
	paperPricePrecision  = 8
)

// PaperExchange simulates a venue against the live ticker feed. Limit orders
// rest in the order bag until canceled or updated, market orders fill
// immediately at the current bid or ask and move the simulated position.
type PaperExchange struct {
	name    string
	tickers *storage.TickerStore
	orders  *storage.OrderBag
	balance decimal.Decimal

	mu        sync.Mutex
	positions map[string]*entity.Position
	seq       atomic.Int64
}

func NewPaperExchange(tickers *storage.TickerStore, balance decimal.Decimal) *PaperExchange {
	return &PaperExchange{
		name:      string(entity.ExchangePaper),
		tickers:   tickers,
		orders:    storage.NewOrderBag(),
		balance:   balance,
		positions: make(map[string]*entity.Position),
	}
}

func (e *PaperExchange) Name() string {
	return e.name
}

func (e *PaperExchange) Order(ctx context.Context, order *entity.Order) (*entity.ExchangeOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if order.Amount.IsZero() {
		return nil, ErrZeroAmount
	}

	exchangeOrder, err := entity.NewExchangeOrder(
		e.nextID(),
		order.Symbol,
		entity.OrderStatusOpen,
		order.Price,
		order.Amount,
		false,
		order.ID,
		order.Side,
		order.Type,
	)
	if err != nil {
		return nil, err
	}
	exchangeOrder.Options = entity.ExchangeOrderOptions{
		ReduceOnly: order.IsReduceOnly(),
		PostOnly:   order.IsPostOnly(),
	}

	if order.Type == entity.OrderTypeMarket {
		fillPrice, err := e.fillPrice(order)
		if err != nil {
			return nil, err
		}

		exchangeOrder.Price = fillPrice
		if order.Amount.IsNegative() {
			exchangeOrder.Price = fillPrice.Neg()
		}
		exchangeOrder.Status = entity.OrderStatusDone
		e.applyFill(order.Symbol, order.Amount, fillPrice)
	}

	e.orders.Trigger(exchangeOrder)

	logrus.WithFields(logrus.Fields{
		"exchange": e.name,
		"symbol":   order.Symbol,
		"side":     order.Side,
		"type":     order.Type,
		"price":    order.GetPrice().String(),
		"amount":   order.GetAmount().String(),
		"status":   exchangeOrder.Status,
	}).Info("order placed")

	return exchangeOrder, nil
}

func (e *PaperExchange) UpdateOrder(ctx context.Context, id string, order *entity.Order) (*entity.ExchangeOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing := e.orders.Get(id)
	if existing == nil || !existing.IsOpen() {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}

	updated := *existing
	if !order.Price.IsZero() {
		updated.Price = order.Price
	}
	if !order.Amount.IsZero() {
		updated.Amount = order.Amount
	}
	updated.UpdatedAt = time.Now()

	e.orders.Trigger(&updated)

	return &updated, nil
}

func (e *PaperExchange) CancelOrder(ctx context.Context, id string) (*entity.ExchangeOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing := e.orders.Get(id)
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}

	canceled := entity.NewCanceledExchangeOrder(existing)
	e.orders.Trigger(canceled)

	return canceled, nil
}

func (e *PaperExchange) CancelAll(ctx context.Context, symbol string) ([]*entity.ExchangeOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canceled := make([]*entity.ExchangeOrder, 0)
	for _, order := range e.orders.GetForSymbol(symbol) {
		next := entity.NewCanceledExchangeOrder(order)
		e.orders.Trigger(next)
		canceled = append(canceled, next)
	}

	return canceled, nil
}

func (e *PaperExchange) FindOrderByID(ctx context.Context, id string) (*entity.ExchangeOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return e.orders.Get(id), nil
}

func (e *PaperExchange) GetOrdersForSymbol(ctx context.Context, symbol string) ([]*entity.ExchangeOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return e.orders.GetForSymbol(symbol), nil
}

func (e *PaperExchange) GetPositions(ctx context.Context) ([]*entity.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	positions := make([]*entity.Position, 0, len(e.positions))
	for _, position := range e.positions {
		positions = append(positions, position)
	}

	return positions, nil
}

func (e *PaperExchange) GetPositionForSymbol(ctx context.Context, symbol string) (*entity.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	position, ok := e.positions[symbol]
	if !ok {
		return nil, nil
	}

	return position, nil
}

func (e *PaperExchange) CalculateAmount(amount decimal.Decimal, _ string) decimal.Decimal {
	return amount.Truncate(paperAmountPrecision)
}

func (e *PaperExchange) CalculatePrice(price decimal.Decimal, _ string) decimal.Decimal {
	return price.Round(paperPricePrecision)
}

func (e *PaperExchange) GetTradeableBalance(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	return e.balance, nil
}

// FillOpenOrders crosses resting limit orders against the current ticker. The
// bootstrap calls this on every ticker update.
func (e *PaperExchange) FillOpenOrders(ticker *entity.Ticker) {
	for _, order := range e.orders.GetForSymbol(ticker.Symbol) {
		if !e.crosses(order, ticker) {
			continue
		}

		filled := *order
		filled.Status = entity.OrderStatusDone
		filled.UpdatedAt = time.Now()
		e.orders.Trigger(&filled)

		e.applyFill(order.Symbol, order.Amount, order.GetPrice())
	}
}

func (e *PaperExchange) crosses(order *entity.ExchangeOrder, ticker *entity.Ticker) bool {
	if order.IsLong() {
		return ticker.Ask.LessThanOrEqual(order.GetPrice())
	}

	return ticker.Bid.GreaterThanOrEqual(order.GetPrice())
}

func (e *PaperExchange) fillPrice(order *entity.Order) (decimal.Decimal, error) {
	ticker := e.tickers.Get(e.name, order.Symbol)
	if ticker == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoTickerForSymbol, order.Symbol)
	}

	if order.IsLong() {
		return ticker.Ask, nil
	}

	return ticker.Bid, nil
}

func (e *PaperExchange) applyFill(symbol string, amount, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, ok := e.positions[symbol]
	if !ok {
		next := entity.NewPositionFromAmount(symbol, amount, price)
		if next != nil {
			next.Exchange = e.name
			e.positions[symbol] = next
		}
		return
	}

	nextAmount := position.Amount.Add(amount)
	if nextAmount.IsZero() {
		delete(e.positions, symbol)
		return
	}

	next := entity.NewPositionFromAmount(symbol, nextAmount, position.Entry)
	if next != nil {
		next.Exchange = e.name
		next.CreatedAt = position.CreatedAt
		e.positions[symbol] = next
	}
}

func (e *PaperExchange) nextID() string {
	return "paper-" + strconv.FormatInt(e.seq.Add(1), 10)
}
