package watchdog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/storage"
)

var (
	ErrNoPositionEntry = errors.New("position has no entry price")
	ErrNoStopPercent   = errors.New("stop percent not set")
	ErrNoTickerFound   = errors.New("no ticker found for position")
	ErrPriceOutOfRange = errors.New("stop price out of ticker range")
)

var hundred = decimal.NewFromInt(100)

// StopLossCalculator derives a protective stop price from a position's entry.
type StopLossCalculator struct {
	tickers *storage.TickerStore
}

func NewStopLossCalculator(tickers *storage.TickerStore) *StopLossCalculator {
	return &StopLossCalculator{tickers: tickers}
}

// CalculateForOpenPosition places the stop percent away from the entry price
// and validates it against the current ticker; a stop that would trigger
// instantly is refused. The result for a long position is negated because the
// stop closes it by selling.
func (c *StopLossCalculator) CalculateForOpenPosition(exchangeName string, position *entity.Position, percent decimal.Decimal) (decimal.Decimal, error) {
	if position.Entry.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPositionEntry, position.Symbol)
	}

	if percent.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoStopPercent, position.Symbol)
	}

	offset := percent.Div(hundred)

	var price decimal.Decimal
	if position.IsLong() {
		price = position.Entry.Mul(decimal.NewFromInt(1).Sub(offset))
	} else {
		price = position.Entry.Mul(decimal.NewFromInt(1).Add(offset))
	}

	ticker := c.tickers.Get(exchangeName, position.Symbol)
	if ticker == nil {
		return decimal.Zero, fmt.Errorf("%w: %s %s", ErrNoTickerFound, exchangeName, position.Symbol)
	}

	if position.IsLong() && price.GreaterThan(ticker.Ask) {
		return decimal.Zero, fmt.Errorf("%w: long stop %s above ask %s", ErrPriceOutOfRange, price, ticker.Ask)
	}

	if position.IsShort() && price.LessThan(ticker.Bid) {
		return decimal.Zero, fmt.Errorf("%w: short stop %s below bid %s", ErrPriceOutOfRange, price, ticker.Bid)
	}

	if position.IsLong() {
		price = price.Neg()
	}

	return price, nil
}
