package entity

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// OrderLog is the persisted record of an executed order, written by the order
// log worker from OrderCreatedEvent payloads.
type OrderLog struct {
	ID           string           `db:"id" json:"id"`
	Exchange     string           `db:"exchange" json:"exchange"`
	Symbol       string           `db:"symbol" json:"symbol"`
	OrderID      string           `db:"order_id" json:"order_id"`
	OurID        null.String      `db:"our_id" json:"our_id"`
	Side         OrderSide        `db:"side" json:"side"`
	Type         OrderType        `db:"type" json:"type"`
	Price        *decimal.Decimal `db:"price" json:"price"`
	Amount       decimal.Decimal  `db:"amount" json:"amount"`
	Status       OrderStatus      `db:"status" json:"status"`
	Retry        bool             `db:"retry" json:"retry"`
	ErrorMessage null.String      `db:"error_message" json:"error_message"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

func (o OrderLog) TableName() string {
	return "order_logs"
}
