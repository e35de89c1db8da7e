package watchdog

import (
	"github.com/shopspring/decimal"
	"github.com/tradekit/pair-engine/internal/entity"
)

// RiskRewardOptions are the distances of the protective bracket around a
// position entry, in percent.
type RiskRewardOptions struct {
	StopPercent   decimal.Decimal
	TargetPercent decimal.Decimal
}

func (o RiskRewardOptions) stopPercent() decimal.Decimal {
	if o.StopPercent.IsZero() {
		return decimal.NewFromInt(3)
	}

	return o.StopPercent
}

func (o RiskRewardOptions) targetPercent() decimal.Decimal {
	if o.TargetPercent.IsZero() {
		return decimal.NewFromInt(6)
	}

	return o.TargetPercent
}

// RiskRewardRatio is the resolved bracket: a stop below and a target above the
// entry for longs, mirrored for shorts.
type RiskRewardRatio struct {
	Stop   decimal.Decimal
	Target decimal.Decimal
}

// RiskRewardOrderChange is one pending bracket mutation. A set ID updates an
// existing order, otherwise a new order of Type is created at Price.
type RiskRewardOrderChange struct {
	ID     string
	Price  decimal.Decimal
	Amount decimal.Decimal
	Type   entity.OrderType
}

type RiskRewardRatioCalculator struct{}

func NewRiskRewardRatioCalculator() *RiskRewardRatioCalculator {
	return &RiskRewardRatioCalculator{}
}

func (c *RiskRewardRatioCalculator) CalculateForOpenPosition(position *entity.Position, options RiskRewardOptions) (RiskRewardRatio, error) {
	if position.Entry.IsZero() {
		return RiskRewardRatio{}, ErrNoPositionEntry
	}

	entry := position.Entry.Abs()
	one := decimal.NewFromInt(1)
	stopOffset := options.stopPercent().Div(hundred)
	targetOffset := options.targetPercent().Div(hundred)

	if position.IsLong() {
		return RiskRewardRatio{
			Stop:   entry.Mul(one.Sub(stopOffset)),
			Target: entry.Mul(one.Add(targetOffset)),
		}, nil
	}

	return RiskRewardRatio{
		Stop:   entry.Mul(one.Add(stopOffset)),
		Target: entry.Mul(one.Sub(targetOffset)),
	}, nil
}

// SyncRatioRewardOrders diffs the open protective orders against the wanted
// bracket. Missing orders come back as creations priced from the ratio, orders
// whose amount drifted more than 1 percent from the position come back as
// amount updates.
func (c *RiskRewardRatioCalculator) SyncRatioRewardOrders(position *entity.Position, orders []*entity.ExchangeOrder, options RiskRewardOptions) (stop, target *RiskRewardOrderChange, err error) {
	ratio, err := c.CalculateForOpenPosition(position, options)
	if err != nil {
		return nil, nil, err
	}

	stop = c.syncBracketSide(position, orders, entity.OrderTypeStop, ratio.Stop)
	target = c.syncBracketSide(position, orders, entity.OrderTypeLimit, ratio.Target)

	return stop, target, nil
}

func (c *RiskRewardRatioCalculator) syncBracketSide(position *entity.Position, orders []*entity.ExchangeOrder, orderType entity.OrderType, wantedPrice decimal.Decimal) *RiskRewardOrderChange {
	var existing *entity.ExchangeOrder
	for _, order := range orders {
		if order.Type == orderType {
			existing = order
			break
		}
	}

	if existing == nil {
		price := wantedPrice
		// a long position is closed by selling, carry that through the sign
		if position.IsLong() {
			price = price.Neg()
		}

		return &RiskRewardOrderChange{
			Price:  price,
			Amount: position.Amount.Abs(),
			Type:   orderType,
		}
	}

	if !IsPercentDifferentGreaterThan(position.Amount, existing.Amount, decimal.NewFromInt(amountDriftPercent)) {
		return nil
	}

	amount := position.Amount.Abs()
	if position.IsLong() {
		amount = amount.Neg()
	}

	return &RiskRewardOrderChange{
		ID:     existing.ID,
		Amount: amount,
		Type:   orderType,
	}
}

// CreateRiskRewardOrders flattens the bracket diff into the list of order
// mutations the watchdog has to apply, target first.
func (c *RiskRewardRatioCalculator) CreateRiskRewardOrders(position *entity.Position, orders []*entity.ExchangeOrder, options RiskRewardOptions) ([]RiskRewardOrderChange, error) {
	stop, target, err := c.SyncRatioRewardOrders(position, orders, options)
	if err != nil {
		return nil, err
	}

	changes := make([]RiskRewardOrderChange, 0, 2)
	if target != nil {
		changes = append(changes, *target)
	}
	if stop != nil {
		changes = append(changes, *stop)
	}

	return changes, nil
}
