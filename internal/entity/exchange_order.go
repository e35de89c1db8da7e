package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusDone     OrderStatus = "done"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDone || s == OrderStatusCanceled || s == OrderStatusRejected
}

type ExchangeOrderOptions struct {
	ReduceOnly bool `json:"reduce_only,omitempty"`
	PostOnly   bool `json:"post_only,omitempty"`
}

// ExchangeOrder is our best known view of an order as reported by the venue.
// Retry is set when the venue rejected or expired the order but a resubmission
// with fresh parameters is expected to go through.
type ExchangeOrder struct {
	ID        string               `json:"id"`
	Symbol    string               `json:"symbol"`
	Status    OrderStatus          `json:"status"`
	Price     decimal.Decimal      `json:"price"`
	Amount    decimal.Decimal      `json:"amount"`
	Retry     bool                 `json:"retry"`
	OurID     string               `json:"our_id,omitempty"`
	Side      OrderSide            `json:"side"`
	Type      OrderType            `json:"type"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Raw       any                  `json:"raw,omitempty"`
	Options   ExchangeOrderOptions `json:"options"`
}

func NewExchangeOrder(id string, symbol string, status OrderStatus, price, amount decimal.Decimal, retry bool, ourID string, side OrderSide, orderType OrderType) (*ExchangeOrder, error) {
	// venues commonly report buy/sell instead of long/short
	switch side {
	case "buy":
		side = OrderSideLong
	case "sell":
		side = OrderSideShort
	}

	if side != OrderSideLong && side != OrderSideShort {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrderSide, side)
	}

	switch orderType {
	case OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit, OrderTypeMarket, OrderTypeTrailingStop, OrderTypeUnknown:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrderType, orderType)
	}

	now := time.Now()

	return &ExchangeOrder{
		ID:        id,
		Symbol:    symbol,
		Status:    status,
		Price:     price,
		Amount:    amount,
		Retry:     retry,
		OurID:     ourID,
		Side:      side,
		Type:      orderType,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (o *ExchangeOrder) IsLong() bool {
	return o.Side == OrderSideLong
}

func (o *ExchangeOrder) IsShort() bool {
	return o.Side == OrderSideShort
}

func (o *ExchangeOrder) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

func (o *ExchangeOrder) GetPrice() decimal.Decimal {
	return o.Price.Abs()
}

func (o *ExchangeOrder) GetAmount() decimal.Decimal {
	return o.Amount.Abs()
}

func (o *ExchangeOrder) IsReduceOnly() bool {
	return o.Options.ReduceOnly
}

func (o *ExchangeOrder) IsPostOnly() bool {
	return o.Options.PostOnly
}

// ShouldCancelOrderProcess reports whether the managing flow must give up on
// this order: the venue closed it and did not ask for a resubmission.
func (o *ExchangeOrder) ShouldCancelOrderProcess() bool {
	return (o.Status == OrderStatusCanceled || o.Status == OrderStatusRejected) && !o.Retry
}

// NewBlankRetryExchangeOrder is a placeholder result forcing the order flow
// into its retry branch when the venue gave no usable response.
func NewBlankRetryExchangeOrder(side OrderSide) *ExchangeOrder {
	now := time.Now()

	return &ExchangeOrder{
		ID:        uuid.NewString(),
		Status:    OrderStatusCanceled,
		Retry:     true,
		Side:      side,
		Type:      OrderTypeLimit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewCanceledExchangeOrder(order *ExchangeOrder) *ExchangeOrder {
	clone := *order
	clone.Status = OrderStatusCanceled
	clone.Retry = false
	clone.UpdatedAt = time.Now()
	return &clone
}
