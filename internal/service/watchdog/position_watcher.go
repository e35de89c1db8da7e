package watchdog

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/tradekit/pair-engine/internal/constant"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/service/exchange"
	"github.com/tradekit/pair-engine/internal/util"
)

// PositionWatcher diffs the venue positions between ticks and publishes a
// state change event whenever a position appears or disappears. Known
// positions are kept per exchange so one venue's snapshot never touches
// another venue's entries.
type PositionWatcher struct {
	exchanges *exchange.Manager
	js        nats.JetStreamContext

	mu    sync.Mutex
	known map[string]map[string]*entity.Position
}

func NewPositionWatcher(exchanges *exchange.Manager, js nats.JetStreamContext) *PositionWatcher {
	return &PositionWatcher{
		exchanges: exchanges,
		js:        js,
		known:     make(map[string]map[string]*entity.Position),
	}
}

func (w *PositionWatcher) OnTick(ctx context.Context) {
	for _, venue := range w.exchanges.All() {
		positions, err := venue.GetPositions(ctx)
		if err != nil {
			logrus.WithField("exchange", venue.Name()).Errorf("position watch fetch failed: %v", err)
			continue
		}

		w.diffExchange(venue.Name(), positions)
	}
}

func (w *PositionWatcher) diffExchange(exchangeName string, positions []*entity.Position) {
	current := make(map[string]*entity.Position, len(positions))
	for _, position := range positions {
		current[position.Symbol] = position
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	known := w.known[exchangeName]
	if known == nil {
		known = make(map[string]*entity.Position)
		w.known[exchangeName] = known
	}

	for symbol, position := range current {
		if _, ok := known[symbol]; !ok {
			w.publish(entity.PositionStateChangeEvent{
				State:    entity.PositionStateOpened,
				Exchange: exchangeName,
				Symbol:   symbol,
				Position: position,
			})
		}

		known[symbol] = position
	}

	for symbol := range known {
		if _, ok := current[symbol]; !ok {
			delete(known, symbol)
			w.publish(entity.PositionStateChangeEvent{
				State:    entity.PositionStateClosed,
				Exchange: exchangeName,
				Symbol:   symbol,
			})
		}
	}
}

func (w *PositionWatcher) publish(event entity.PositionStateChangeEvent) {
	logrus.WithFields(logrus.Fields{
		"exchange": event.Exchange,
		"symbol":   event.Symbol,
		"state":    event.State,
	}).Info("position state changed")

	if w.js == nil {
		return
	}

	if err := util.PublishEvent(w.js, constant.PairEngineStreamSubjectPositionState, event); err != nil {
		logrus.Errorf("publish position state event failed: %v", err)
	}
}
