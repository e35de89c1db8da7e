package storage

import (
	"sync"
	"time"

	"github.com/tradekit/pair-engine/internal/entity"
)

// TickerStore holds the latest ticker per (exchange, symbol). It is written
// only by the market data feed and read by everything that needs a reference
// price.
type TickerStore struct {
	mu      sync.RWMutex
	tickers map[string]*entity.Ticker
}

func NewTickerStore() *TickerStore {
	return &TickerStore{
		tickers: make(map[string]*entity.Ticker),
	}
}

func (s *TickerStore) Set(ticker *entity.Ticker) {
	if ticker == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers[ticker.Key()] = ticker
}

func (s *TickerStore) Get(exchange, symbol string) *entity.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickers[exchange+"."+symbol]
}

// GetIfUpToDate returns the ticker only when it is younger than maxAge.
func (s *TickerStore) GetIfUpToDate(exchange, symbol string, maxAge time.Duration) *entity.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticker, ok := s.tickers[exchange+"."+symbol]
	if !ok {
		return nil
	}

	if time.Since(ticker.CreatedAt) > maxAge {
		return nil
	}

	return ticker
}

func (s *TickerStore) All() []*entity.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickers := make([]*entity.Ticker, 0, len(s.tickers))
	for _, ticker := range s.tickers {
		tickers = append(tickers, ticker)
	}

	return tickers
}
