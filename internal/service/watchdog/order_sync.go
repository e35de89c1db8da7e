package watchdog

import (
	"github.com/shopspring/decimal"
	"github.com/tradekit/pair-engine/internal/entity"
)

// OrderChange asks for one protective order mutation. An empty ID means a new
// order has to be created for the full position amount; a set ID means the
// existing order's amount drifted away from the position and must be updated.
type OrderChange struct {
	ID     string
	Amount decimal.Decimal
}

const amountDriftPercent = 1

func syncOrderByType(position *entity.Position, orders []*entity.ExchangeOrder, orderType entity.OrderType) []OrderChange {
	matching := make([]*entity.ExchangeOrder, 0)
	for _, order := range orders {
		if order.Type == orderType {
			matching = append(matching, order)
		}
	}

	if len(matching) == 0 {
		return []OrderChange{{Amount: position.Amount.Abs()}}
	}

	existing := matching[0]

	// only resize when the drift exceeds 1 percent, this avoids churning the
	// venue over lot size rounding
	if IsPercentDifferentGreaterThan(position.Amount, existing.Amount, decimal.NewFromInt(amountDriftPercent)) {
		return []OrderChange{{ID: existing.ID, Amount: position.Amount}}
	}

	return nil
}

func SyncStopLossOrder(position *entity.Position, orders []*entity.ExchangeOrder) []OrderChange {
	return syncOrderByType(position, orders, entity.OrderTypeStop)
}

func SyncTrailingStopLossOrder(position *entity.Position, orders []*entity.ExchangeOrder) []OrderChange {
	return syncOrderByType(position, orders, entity.OrderTypeTrailingStop)
}

// IsPercentDifferentGreaterThan compares the absolute values of both inputs
// and reports whether they differ by more than percentDiff percent of their
// mean.
func IsPercentDifferentGreaterThan(value1, value2, percentDiff decimal.Decimal) bool {
	value1Abs := value1.Abs()
	value2Abs := value2.Abs()

	mean := value1Abs.Add(value2Abs).Div(decimal.NewFromInt(2))
	if mean.IsZero() {
		return false
	}

	difference := value1Abs.Sub(value2Abs).Div(mean).Abs().Mul(decimal.NewFromInt(100))

	return difference.GreaterThan(percentDiff)
}

// PercentDifferent returns the percent difference between two prices,
// independent of which one is bigger.
func PercentDifferent(orderPrice, currentPrice decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)

	if orderPrice.GreaterThan(currentPrice) {
		return hundred.Sub(currentPrice.Div(orderPrice).Mul(hundred))
	}

	return hundred.Sub(orderPrice.Div(currentPrice).Mul(hundred))
}
