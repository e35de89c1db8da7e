package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

var (
	ErrInvalidPositionSide   = errors.New("invalid position side")
	ErrInvalidPositionAmount = errors.New("position amount sign does not match side")
)

// Position is a live venue position. Amount is signed: negative for short,
// positive for long. Profit is the floating profit in percent.
type Position struct {
	Exchange  string          `json:"exchange,omitempty"`
	Symbol    string          `json:"symbol"`
	Side      PositionSide    `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Profit    decimal.Decimal `json:"profit"`
	Entry     decimal.Decimal `json:"entry"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Raw       any             `json:"raw,omitempty"`
}

func NewPosition(symbol string, side PositionSide, amount, profit, entry decimal.Decimal) (*Position, error) {
	if side != PositionSideLong && side != PositionSideShort {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPositionSide, side)
	}

	if amount.IsNegative() && side == PositionSideLong {
		return nil, fmt.Errorf("%w: %s %s", ErrInvalidPositionAmount, side, amount)
	}

	if amount.IsPositive() && side == PositionSideShort {
		return nil, fmt.Errorf("%w: %s %s", ErrInvalidPositionAmount, side, amount)
	}

	now := time.Now()

	return &Position{
		Symbol:    symbol,
		Side:      side,
		Amount:    amount,
		Profit:    profit,
		Entry:     entry,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewPositionFromAmount derives the side from the amount sign.
func NewPositionFromAmount(symbol string, amount, entry decimal.Decimal) *Position {
	side := PositionSideLong
	if amount.IsNegative() {
		side = PositionSideShort
	}

	position, _ := NewPosition(symbol, side, amount, decimal.Zero, entry)
	return position
}

func (p *Position) IsLong() bool {
	return p.Side == PositionSideLong
}

func (p *Position) IsShort() bool {
	return p.Side == PositionSideShort
}

func (p *Position) Key() string {
	return p.Exchange + p.Symbol
}
