package exchange

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tradekit/pair-engine/internal/entity"
)

var ErrExchangeNotFound = errors.New("exchange not found")

// Manager is the registry of connected venue adapters, keyed by name.
type Manager struct {
	mu        sync.RWMutex
	exchanges map[string]entity.Exchange
}

func NewManager() *Manager {
	return &Manager{
		exchanges: make(map[string]entity.Exchange),
	}
}

func (m *Manager) Register(exchange entity.Exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges[exchange.Name()] = exchange
}

func (m *Manager) Get(name string) (entity.Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exchange, ok := m.exchanges[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExchangeNotFound, name)
	}

	return exchange, nil
}

func (m *Manager) All() []entity.Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exchanges := make([]entity.Exchange, 0, len(m.exchanges))
	for _, exchange := range m.exchanges {
		exchanges = append(exchanges, exchange)
	}

	return exchanges
}
