package pairstate

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tradekit/pair-engine/internal/config"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/service/orderexecutor"
)

// Manager owns the single pending intent per (exchange, symbol) pair and its
// recurring execution timer. Recording a new intent for a pair replaces the
// old one, timer included.
type Manager struct {
	runner    Runner
	execution Execution
	executor  *orderexecutor.Executor
	snapshots IntentSnapshotStore
	interval  time.Duration

	mu     sync.Mutex
	states map[string]*entity.PairState
}

func NewManager(runner Runner, execution Execution, executor *orderexecutor.Executor, snapshots IntentSnapshotStore, interval time.Duration) *Manager {
	return &Manager{
		runner:    runner,
		execution: execution,
		executor:  executor,
		snapshots: snapshots,
		interval:  interval,
		states:    make(map[string]*entity.PairState),
	}
}

// Update records a new intent for the pair. Market intents skip the price
// adjust flow, everything else reprices its resting order on every tick.
func (m *Manager) Update(ctx context.Context, exchangeName, symbol string, state entity.PairStateName, options entity.PairStateOptions) (*entity.PairState, error) {
	adjustedPrice := !options.Market

	var (
		pairState *entity.PairState
		err       error
	)

	// the closure runs only after the state below is fully constructed
	onClear := func() {
		m.detach(ctx, pairState)
	}

	switch state {
	case entity.PairStateLong:
		pairState, err = entity.NewLongPairState(exchangeName, symbol, m.capitalForPair(exchangeName, symbol), options, adjustedPrice, onClear)
	case entity.PairStateShort:
		pairState, err = entity.NewShortPairState(exchangeName, symbol, m.capitalForPair(exchangeName, symbol), options, adjustedPrice, onClear)
	default:
		pairState, err = entity.NewPairState(exchangeName, symbol, state, options, adjustedPrice, onClear)
	}
	if err != nil {
		return nil, err
	}

	m.attach(ctx, pairState)

	return pairState, nil
}

func (m *Manager) attach(ctx context.Context, pairState *entity.PairState) {
	key := pairState.Key()

	m.mu.Lock()
	if previous, ok := m.states[key]; ok {
		logrus.WithFields(logrus.Fields{
			"exchange":  pairState.Exchange,
			"symbol":    pairState.Symbol,
			"old_state": previous.State,
			"new_state": pairState.State,
		}).Info("replacing pending pair state")
	}
	m.states[key] = pairState
	m.mu.Unlock()

	m.saveSnapshot(ctx, pairState)

	m.runner.AddInterval(key, m.interval, func() {
		m.tick(ctx, pairState)
	})
}

func (m *Manager) tick(ctx context.Context, pairState *entity.PairState) {
	if pairState.IsCleared() {
		m.detach(ctx, pairState)
		return
	}

	m.execution.OnPairStateExecutionTick(ctx, pairState)

	if pairState.IsCleared() {
		m.detach(ctx, pairState)
		return
	}

	if pairState.HasAdjustedPrice() {
		m.executor.AdjustOpenOrdersPrice(ctx, pairState)
	}
}

// detach drops the state and its timer if the state is still the current one
// for its pair. A replacement recorded in the meantime stays untouched.
func (m *Manager) detach(ctx context.Context, pairState *entity.PairState) {
	key := pairState.Key()

	m.mu.Lock()
	current, ok := m.states[key]
	if !ok || current != pairState {
		m.mu.Unlock()
		return
	}
	delete(m.states, key)
	m.mu.Unlock()

	m.runner.ClearInterval(key)
	m.deleteSnapshot(ctx, pairState)

	logrus.WithFields(logrus.Fields{
		"exchange": pairState.Exchange,
		"symbol":   pairState.Symbol,
		"state":    pairState.State,
	}).Info("pair state cleared")
}

func (m *Manager) Get(exchangeName, symbol string) *entity.PairState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[exchangeName+symbol]
}

func (m *Manager) All() []*entity.PairState {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make([]*entity.PairState, 0, len(m.states))
	for _, pairState := range m.states {
		states = append(states, pairState)
	}

	return states
}

// IsNeutral reports whether no intent is pending for the pair.
func (m *Manager) IsNeutral(exchangeName, symbol string) bool {
	return m.Get(exchangeName, symbol) == nil
}

func (m *Manager) Clear(ctx context.Context, exchangeName, symbol string) {
	pairState := m.Get(exchangeName, symbol)
	if pairState == nil {
		return
	}

	pairState.Clear()
	m.detach(ctx, pairState)
}

// OnTerminate withdraws the working orders of every pending state before the
// process shuts down.
func (m *Manager) OnTerminate(ctx context.Context) {
	for _, pairState := range m.All() {
		logrus.WithFields(logrus.Fields{
			"exchange": pairState.Exchange,
			"symbol":   pairState.Symbol,
			"state":    pairState.State,
		}).Info("canceling pair state on shutdown")

		m.execution.OnCancelPair(ctx, pairState)
		m.detach(ctx, pairState)
	}
}

func (m *Manager) capitalForPair(exchangeName, symbol string) entity.OrderCapital {
	if config.Env == nil {
		return entity.OrderCapital{}
	}

	for _, pair := range config.Env.Pairs {
		if pair.Exchange != exchangeName || pair.Symbol != symbol {
			continue
		}

		switch {
		case !pair.Capital.Asset.IsZero():
			return entity.NewAssetCapital(pair.Capital.Asset)
		case !pair.Capital.Currency.IsZero():
			return entity.NewCurrencyCapital(pair.Capital.Currency)
		case !pair.Capital.Balance.IsZero():
			return entity.NewBalanceCapital(pair.Capital.Balance)
		}
	}

	return entity.OrderCapital{}
}

func (m *Manager) saveSnapshot(ctx context.Context, pairState *entity.PairState) {
	if m.snapshots == nil {
		return
	}

	snapshot := IntentSnapshot{
		Exchange: pairState.Exchange,
		Symbol:   pairState.Symbol,
		State:    pairState.State,
		Options:  pairState.Options,
		Time:     pairState.Time,
	}

	if err := m.snapshots.Save(ctx, snapshot); err != nil {
		logrus.Warnf("save intent snapshot failed: %v", err)
	}
}

func (m *Manager) deleteSnapshot(ctx context.Context, pairState *entity.PairState) {
	if m.snapshots == nil {
		return
	}

	if err := m.snapshots.Delete(ctx, pairState.Exchange, pairState.Symbol); err != nil {
		logrus.Warnf("delete intent snapshot failed: %v", err)
	}
}
