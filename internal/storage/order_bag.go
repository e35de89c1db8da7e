package storage

import (
	"sync"

	"github.com/tradekit/pair-engine/internal/entity"
)

// OrderBag is the reconciled in-memory view of our believed live order set on
// one exchange. It never holds two live records for the same order id; a
// terminal status update supersedes and evicts any prior open record.
type OrderBag struct {
	mu     sync.Mutex
	orders map[string]*entity.ExchangeOrder
}

func NewOrderBag() *OrderBag {
	return &OrderBag{
		orders: make(map[string]*entity.ExchangeOrder),
	}
}

// Trigger upserts an exchange-reported order update by identity. A terminal
// update replaces an existing open record; an open record never masks a
// terminal update that arrived first.
func (b *OrderBag) Trigger(order *entity.ExchangeOrder) {
	if order == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// evict a superseded live record first so the terminal update is the only
	// record left under this identity
	if _, ok := b.orders[order.ID]; ok && order.Status.IsTerminal() {
		delete(b.orders, order.ID)
	}

	b.orders[order.ID] = order
}

// GetOpenOrders returns only records still reported as open.
func (b *OrderBag) GetOpenOrders() []*entity.ExchangeOrder {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders := make([]*entity.ExchangeOrder, 0, len(b.orders))
	for _, order := range b.orders {
		if order.Status == entity.OrderStatusOpen {
			orders = append(orders, order)
		}
	}

	return orders
}

func (b *OrderBag) FindByID(id string) *entity.ExchangeOrder {
	for _, order := range b.GetOpenOrders() {
		if order.ID == id {
			return order
		}
	}

	return nil
}

func (b *OrderBag) GetForSymbol(symbol string) []*entity.ExchangeOrder {
	orders := make([]*entity.ExchangeOrder, 0)
	for _, order := range b.GetOpenOrders() {
		if order.Symbol == symbol {
			orders = append(orders, order)
		}
	}

	return orders
}

func (b *OrderBag) Delete(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.orders, id)
}

// SetAll replaces the whole bag after a full resync with the exchange; the
// given set is ground truth.
func (b *OrderBag) SetAll(orders []*entity.ExchangeOrder) {
	next := make(map[string]*entity.ExchangeOrder, len(orders))
	for _, order := range orders {
		if order == nil {
			continue
		}
		next[order.ID] = order
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = next
}

func (b *OrderBag) Get(id string) *entity.ExchangeOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orders[id]
}

func (b *OrderBag) All() []*entity.ExchangeOrder {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders := make([]*entity.ExchangeOrder, 0, len(b.orders))
	for _, order := range b.orders {
		orders = append(orders, order)
	}

	return orders
}
