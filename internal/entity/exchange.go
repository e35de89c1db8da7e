package entity

import (
	"context"

	"github.com/shopspring/decimal"
)

type ExchangeName string

const (
	ExchangePaper ExchangeName = "paper"
)

// Exchange is the adapter contract towards a trading venue. Connectivity,
// authentication and rate limiting live behind this boundary.
type Exchange interface {
	Name() string

	Order(ctx context.Context, order *Order) (*ExchangeOrder, error)
	UpdateOrder(ctx context.Context, id string, order *Order) (*ExchangeOrder, error)
	CancelOrder(ctx context.Context, id string) (*ExchangeOrder, error)
	CancelAll(ctx context.Context, symbol string) ([]*ExchangeOrder, error)

	FindOrderByID(ctx context.Context, id string) (*ExchangeOrder, error)
	GetOrdersForSymbol(ctx context.Context, symbol string) ([]*ExchangeOrder, error)

	GetPositions(ctx context.Context) ([]*Position, error)
	GetPositionForSymbol(ctx context.Context, symbol string) (*Position, error)

	// CalculateAmount and CalculatePrice snap a value to the venue's lot and
	// tick size for the given symbol.
	CalculateAmount(amount decimal.Decimal, symbol string) decimal.Decimal
	CalculatePrice(price decimal.Decimal, symbol string) decimal.Decimal
}

// BalanceProvider is implemented by adapters that can report the tradeable
// account balance, used by balance-percent capital sizing.
type BalanceProvider interface {
	GetTradeableBalance(ctx context.Context) (decimal.Decimal, error)
}
