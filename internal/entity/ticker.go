package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is the latest best bid/ask for one (exchange, symbol).
type Ticker struct {
	Exchange  string          `json:"exchange"`
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewTicker(exchange, symbol string, bid, ask decimal.Decimal) *Ticker {
	return &Ticker{
		Exchange:  exchange,
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		CreatedAt: time.Now(),
	}
}

func (t *Ticker) Key() string {
	return t.Exchange + "." + t.Symbol
}
