package entity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderSide string
type OrderType string

const (
	OrderSideLong  OrderSide = "long"
	OrderSideShort OrderSide = "short"

	OrderTypeLimit        OrderType = "limit"
	OrderTypeStop         OrderType = "stop"
	OrderTypeStopLimit    OrderType = "stop_limit"
	OrderTypeMarket       OrderType = "market"
	OrderTypeTrailingStop OrderType = "trailing_stop"
	OrderTypeUnknown      OrderType = "unknown"
)

var (
	ErrInvalidOrderSide = errors.New("invalid order side")
	ErrInvalidOrderType = errors.New("invalid order type")
)

// marketOrderFakePrice is used for market orders where venues still require a
// price field. Sign encodes direction like everywhere else.
var marketOrderFakePrice = decimal.NewFromFloat(0.000001)

type OrderOptions struct {
	PostOnly    bool `json:"post_only,omitempty"`
	Close       bool `json:"close,omitempty"`
	AdjustPrice bool `json:"adjust_price,omitempty"`
}

// Order is the order intent from our side before it is sent to a venue.
// Price and Amount are signed internally; negative means short. The accessors
// return absolute values.
type Order struct {
	ID      string          `json:"id"`
	Symbol  string          `json:"symbol"`
	Side    OrderSide       `json:"side"`
	Price   decimal.Decimal `json:"price"`
	Amount  decimal.Decimal `json:"amount"`
	Type    OrderType       `json:"type"`
	Options OrderOptions    `json:"options"`
}

func NewOrder(id string, symbol string, side OrderSide, price, amount decimal.Decimal, orderType OrderType, options OrderOptions) (*Order, error) {
	if side != OrderSideLong && side != OrderSideShort {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrderSide, side)
	}

	return &Order{
		ID:      id,
		Symbol:  symbol,
		Side:    side,
		Price:   price,
		Amount:  amount,
		Type:    orderType,
		Options: options,
	}, nil
}

func (o *Order) IsLong() bool {
	return o.Side == OrderSideLong
}

func (o *Order) IsShort() bool {
	return o.Side == OrderSideShort
}

func (o *Order) GetPrice() decimal.Decimal {
	return o.Price.Abs()
}

func (o *Order) GetAmount() decimal.Decimal {
	return o.Amount.Abs()
}

func (o *Order) HasAdjustedPrice() bool {
	return o.Options.AdjustPrice
}

func (o *Order) IsPostOnly() bool {
	return o.Options.PostOnly
}

func (o *Order) IsReduceOnly() bool {
	return o.Options.Close
}

func sideForAmount(amount decimal.Decimal) OrderSide {
	if amount.IsNegative() {
		return OrderSideShort
	}

	return OrderSideLong
}

func sideForPrice(price decimal.Decimal) OrderSide {
	if price.IsNegative() {
		return OrderSideShort
	}

	return OrderSideLong
}

func NewMarketOrder(symbol string, amount decimal.Decimal) *Order {
	price := marketOrderFakePrice
	if amount.IsNegative() {
		price = price.Neg()
	}

	return &Order{
		ID:     uuid.NewString(),
		Symbol: symbol,
		Side:   sideForAmount(amount),
		Price:  price,
		Amount: amount,
		Type:   OrderTypeMarket,
	}
}

func NewLimitPostOnlyOrder(symbol string, side OrderSide, price, amount decimal.Decimal, options OrderOptions) (*Order, error) {
	options.PostOnly = true
	return NewOrder(uuid.NewString(), symbol, side, price, amount, OrderTypeLimit, options)
}

func NewStopOrder(symbol string, side OrderSide, price, amount decimal.Decimal, options OrderOptions) (*Order, error) {
	return NewOrder(uuid.NewString(), symbol, side, price, amount, OrderTypeStop, options)
}

// NewLimitPostOnlyAdjustedPriceOrder creates a limit order whose price is
// resolved from the current ticker right before every submit.
func NewLimitPostOnlyAdjustedPriceOrder(symbol string, amount decimal.Decimal, options OrderOptions) *Order {
	options.PostOnly = true
	options.AdjustPrice = true

	return &Order{
		ID:      uuid.NewString(),
		Symbol:  symbol,
		Side:    sideForAmount(amount),
		Price:   decimal.Zero,
		Amount:  amount,
		Type:    OrderTypeLimit,
		Options: options,
	}
}

func NewCloseOrderWithPriceAdjustment(symbol string, amount decimal.Decimal) *Order {
	return NewLimitPostOnlyAdjustedPriceOrder(symbol, amount, OrderOptions{Close: true})
}

func NewCloseLimitPostOnlyReduceOrder(symbol string, price, amount decimal.Decimal) *Order {
	return &Order{
		ID:      uuid.NewString(),
		Symbol:  symbol,
		Side:    sideForPrice(price),
		Price:   price,
		Amount:  amount,
		Type:    OrderTypeLimit,
		Options: OrderOptions{PostOnly: true, Close: true},
	}
}

func NewStopLossOrder(symbol string, price, amount decimal.Decimal) *Order {
	side := OrderSideLong
	if price.IsNegative() || amount.IsNegative() {
		side = OrderSideShort
	}

	return &Order{
		ID:      uuid.NewString(),
		Symbol:  symbol,
		Side:    side,
		Price:   price,
		Amount:  amount,
		Type:    OrderTypeStop,
		Options: OrderOptions{Close: true},
	}
}

func NewTrailingStopLossOrder(symbol string, distance, amount decimal.Decimal) *Order {
	return &Order{
		ID:      uuid.NewString(),
		Symbol:  symbol,
		Side:    sideForPrice(distance),
		Price:   distance,
		Amount:  amount,
		Type:    OrderTypeTrailingStop,
		Options: OrderOptions{Close: true},
	}
}

// NewPriceUpdateOrder targets an existing exchange order for a price change.
func NewPriceUpdateOrder(id string, price decimal.Decimal, side OrderSide) (*Order, error) {
	return NewOrder(id, "", side, price, decimal.Zero, OrderTypeLimit, OrderOptions{})
}

// NewUpdateOrder targets an existing exchange order for a price and/or amount
// change. Zero values keep the current value on the venue side.
func NewUpdateOrder(id string, price, amount decimal.Decimal) *Order {
	side := OrderSideLong
	if price.IsNegative() || amount.IsNegative() {
		side = OrderSideShort
	}

	return &Order{
		ID:     id,
		Symbol: "",
		Side:   side,
		Price:  price,
		Amount: amount,
		Type:   OrderTypeLimit,
	}
}

// NewRetryOrder clones an order under a fresh id for resubmission after the
// venue flagged the previous attempt as retryable.
func NewRetryOrder(order *Order) *Order {
	clone := *order
	clone.ID = uuid.NewString()
	return &clone
}

func NewRetryOrderWithAmount(order *Order, amount decimal.Decimal) *Order {
	clone := NewRetryOrder(order)

	clone.Amount = amount.Abs()
	if order.Side == OrderSideShort {
		clone.Amount = clone.Amount.Neg()
	}

	return clone
}

func NewRetryOrderWithPriceAdjustment(order *Order, price decimal.Decimal) *Order {
	clone := NewRetryOrder(order)
	clone.Price = price
	return clone
}
