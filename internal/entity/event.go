package entity

import (
	"context"
	"time"
)

type Publisher interface {
	JetstreamEventInit(ctx context.Context) error
}

type Subscriber interface {
	JetstreamEventSubscribe(ctx context.Context) error
}

// OrderCreatedEvent is published after the executor placed an order on a
// venue. The order log worker consumes it.
type OrderCreatedEvent struct {
	Exchange      string         `json:"exchange"`
	Order         *Order         `json:"order"`
	ExchangeOrder *ExchangeOrder `json:"exchange_order"`
	CreatedAt     time.Time      `json:"created_at"`
}

type PositionState string

const (
	PositionStateOpened PositionState = "opened"
	PositionStateClosed PositionState = "closed"
)

// PositionStateChangeEvent is published when the position watcher detects a
// position appearing or disappearing on a venue.
type PositionStateChangeEvent struct {
	State    PositionState `json:"state"`
	Exchange string        `json:"exchange"`
	Symbol   string        `json:"symbol"`
	Position *Position     `json:"position,omitempty"`
}

func (e *PositionStateChangeEvent) IsClosed() bool {
	return e.State == PositionStateClosed
}

func (e *PositionStateChangeEvent) IsOpened() bool {
	return e.State == PositionStateOpened
}
