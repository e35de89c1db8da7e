package entity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type PairStateName string

const (
	PairStateLong   PairStateName = "long"
	PairStateShort  PairStateName = "short"
	PairStateClose  PairStateName = "close"
	PairStateCancel PairStateName = "cancel"
)

type CapitalType string

const (
	CapitalAsset    CapitalType = "asset"
	CapitalCurrency CapitalType = "currency"
	CapitalBalance  CapitalType = "balance"
)

var (
	ErrInvalidPairState   = errors.New("invalid pair state")
	ErrCapitalNotSet      = errors.New("capital not set")
	ErrInvalidCapitalType = errors.New("invalid capital type")
	ErrMissingClearFunc   = errors.New("clear callback not given")
)

// OrderCapital is the sizing rule for an entry order. Exactly one of the three
// variants is populated, selected by Type.
type OrderCapital struct {
	Type     CapitalType     `json:"type"`
	Asset    decimal.Decimal `json:"asset,omitempty"`
	Currency decimal.Decimal `json:"currency,omitempty"`
	Balance  decimal.Decimal `json:"balance,omitempty"`
}

func NewAssetCapital(asset decimal.Decimal) OrderCapital {
	return OrderCapital{Type: CapitalAsset, Asset: asset}
}

func NewCurrencyCapital(currency decimal.Decimal) OrderCapital {
	return OrderCapital{Type: CapitalCurrency, Currency: currency}
}

func NewBalanceCapital(balancePercent decimal.Decimal) OrderCapital {
	return OrderCapital{Type: CapitalBalance, Balance: balancePercent}
}

func (c OrderCapital) IsZero() bool {
	return c.Type == ""
}

// PairStateOptions carry per-request execution tweaks.
type PairStateOptions struct {
	Market bool `json:"market,omitempty"`
}

// PairState is the recorded trading intent for one (exchange, symbol) pair and
// its execution progress. It is created by the pair state manager and mutated
// by the execution flow until it clears itself.
type PairState struct {
	mu sync.Mutex

	Exchange string
	Symbol   string
	State    PairStateName
	Options  PairStateOptions
	Time     time.Time

	capital       OrderCapital
	adjustedPrice bool
	retries       int
	cleared       bool
	order         *Order
	exchangeOrder *ExchangeOrder
	onClear       func()
}

func NewPairState(exchange, symbol string, state PairStateName, options PairStateOptions, adjustedPrice bool, onClear func()) (*PairState, error) {
	switch state {
	case PairStateLong, PairStateShort, PairStateClose, PairStateCancel:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidPairState, state)
	}

	if onClear == nil {
		return nil, ErrMissingClearFunc
	}

	return &PairState{
		Exchange:      exchange,
		Symbol:        symbol,
		State:         state,
		Options:       options,
		Time:          time.Now(),
		adjustedPrice: adjustedPrice,
		onClear:       onClear,
	}, nil
}

// NewLongPairState requires a capital sizing rule; an entry without sizing is
// a configuration error.
func NewLongPairState(exchange, symbol string, capital OrderCapital, options PairStateOptions, adjustedPrice bool, onClear func()) (*PairState, error) {
	if capital.IsZero() {
		return nil, ErrCapitalNotSet
	}

	pairState, err := NewPairState(exchange, symbol, PairStateLong, options, adjustedPrice, onClear)
	if err != nil {
		return nil, err
	}

	pairState.capital = capital
	return pairState, nil
}

func NewShortPairState(exchange, symbol string, capital OrderCapital, options PairStateOptions, adjustedPrice bool, onClear func()) (*PairState, error) {
	if capital.IsZero() {
		return nil, ErrCapitalNotSet
	}

	pairState, err := NewPairState(exchange, symbol, PairStateShort, options, adjustedPrice, onClear)
	if err != nil {
		return nil, err
	}

	pairState.capital = capital
	return pairState, nil
}

func (p *PairState) Key() string {
	return p.Exchange + p.Symbol
}

func (p *PairState) HasAdjustedPrice() bool {
	return p.adjustedPrice
}

// Clear marks the state as terminal and notifies the owner exactly once.
// A cleared state stays inert even if its timer fires once more before the
// owner evicts it.
func (p *PairState) Clear() {
	p.mu.Lock()
	if p.cleared {
		p.mu.Unlock()
		return
	}
	p.cleared = true
	onClear := p.onClear
	p.mu.Unlock()

	onClear()
}

func (p *PairState) IsCleared() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cleared
}

func (p *PairState) Capital() (OrderCapital, error) {
	if p.capital.IsZero() {
		return OrderCapital{}, ErrCapitalNotSet
	}

	return p.capital, nil
}

func (p *PairState) Retries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retries
}

func (p *PairState) TriggerRetry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries++
}

func (p *PairState) Order() *Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order
}

func (p *PairState) SetOrder(order *Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = order
}

func (p *PairState) ExchangeOrder() *ExchangeOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchangeOrder
}

func (p *PairState) SetExchangeOrder(exchangeOrder *ExchangeOrder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchangeOrder = exchangeOrder
}
