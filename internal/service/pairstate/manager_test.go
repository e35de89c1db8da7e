package pairstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradekit/pair-engine/internal/config"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/service/exchange"
	"github.com/tradekit/pair-engine/internal/service/orderexecutor"
	"github.com/tradekit/pair-engine/internal/storage"
)

// fakeRunner records schedules without ever firing them on its own; the test
// drives ticks by calling the stored callback.
type fakeRunner struct {
	mu       sync.Mutex
	added    []string
	cleared  []string
	callback map[string]func()
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{callback: make(map[string]func())}
}

func (r *fakeRunner) AddInterval(name string, _ time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, name)
	r.callback[name] = fn
}

func (r *fakeRunner) ClearInterval(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, name)
	delete(r.callback, name)
}

func (r *fakeRunner) fire(name string) {
	r.mu.Lock()
	fn := r.callback[name]
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// fakeExecution lets each test script what a tick does to the state.
type fakeExecution struct {
	mu       sync.Mutex
	ticks    int
	cancels  int
	onTick   func(pairState *entity.PairState)
	onCancel func(pairState *entity.PairState)
}

func (e *fakeExecution) OnPairStateExecutionTick(_ context.Context, pairState *entity.PairState) {
	e.mu.Lock()
	e.ticks++
	onTick := e.onTick
	e.mu.Unlock()

	if onTick != nil {
		onTick(pairState)
	}
}

func (e *fakeExecution) OnCancelPair(_ context.Context, pairState *entity.PairState) {
	e.mu.Lock()
	e.cancels++
	onCancel := e.onCancel
	e.mu.Unlock()

	if onCancel != nil {
		onCancel(pairState)
	}
	pairState.Clear()
}

func newTestManager(runner *fakeRunner, execution *fakeExecution) *Manager {
	exchanges := exchange.NewManager()
	tickers := storage.NewTickerStore()
	executor := orderexecutor.NewExecutor(exchanges, tickers, nil, config.OrderConfig{Retry: 1, RetryMs: time.Millisecond})

	return NewManager(runner, execution, executor, nil, time.Hour)
}

func withPairConfig(t *testing.T, pairs ...config.PairConfig) {
	t.Helper()

	previous := config.Env
	config.Env = &config.EnvConfig{Pairs: pairs}
	t.Cleanup(func() { config.Env = previous })
}

func TestManagerUpdateSchedulesRecurringExecution(t *testing.T) {
	runner := newFakeRunner()
	execution := &fakeExecution{}
	manager := newTestManager(runner, execution)

	pairState, err := manager.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateClose, entity.PairStateOptions{})
	require.NoError(t, err)
	require.NotNil(t, pairState)

	assert.Equal(t, []string{"paperBTCUSDT"}, runner.added)
	assert.False(t, manager.IsNeutral("paper", "BTCUSDT"))
	assert.Same(t, pairState, manager.Get("paper", "BTCUSDT"))

	runner.fire("paperBTCUSDT")
	assert.Equal(t, 1, execution.ticks)
}

func TestManagerUpdateReplacesPreviousIntent(t *testing.T) {
	runner := newFakeRunner()
	execution := &fakeExecution{}
	manager := newTestManager(runner, execution)

	first, err := manager.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateClose, entity.PairStateOptions{})
	require.NoError(t, err)

	second, err := manager.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateCancel, entity.PairStateOptions{})
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Same(t, second, manager.Get("paper", "BTCUSDT"))
	// the replacement reuses the name, so the old schedule is overwritten
	assert.Equal(t, []string{"paperBTCUSDT", "paperBTCUSDT"}, runner.added)

	// clearing the replaced state must not evict the new one
	first.Clear()
	assert.Same(t, second, manager.Get("paper", "BTCUSDT"))
}

func TestManagerUpdateRejectsInvalidState(t *testing.T) {
	runner := newFakeRunner()
	manager := newTestManager(runner, &fakeExecution{})

	_, err := manager.Update(context.Background(), "paper", "BTCUSDT", "sideways", entity.PairStateOptions{})
	assert.ErrorIs(t, err, entity.ErrInvalidPairState)
	assert.Empty(t, runner.added)
}

func TestManagerUpdateLongRequiresConfiguredCapital(t *testing.T) {
	withPairConfig(t)

	runner := newFakeRunner()
	manager := newTestManager(runner, &fakeExecution{})

	_, err := manager.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateLong, entity.PairStateOptions{})
	assert.ErrorIs(t, err, entity.ErrCapitalNotSet)
}

func TestManagerUpdateLongReadsCapitalFromConfig(t *testing.T) {
	withPairConfig(t, config.PairConfig{
		Exchange: "paper",
		Symbol:   "BTCUSDT",
		Capital:  config.CapitalConfig{Asset: decimal.NewFromFloat(0.05)},
	})

	runner := newFakeRunner()
	manager := newTestManager(runner, &fakeExecution{})

	pairState, err := manager.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateLong, entity.PairStateOptions{})
	require.NoError(t, err)

	capital, err := pairState.Capital()
	require.NoError(t, err)
	assert.Equal(t, entity.CapitalAsset, capital.Type)
	assert.True(t, capital.Asset.Equal(decimal.NewFromFloat(0.05)))
}

func TestManagerClearDetachesStateAndSchedule(t *testing.T) {
	runner := newFakeRunner()
	manager := newTestManager(runner, &fakeExecution{})

	_, err := manager.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateClose, entity.PairStateOptions{})
	require.NoError(t, err)

	manager.Clear(context.Background(), "paper", "BTCUSDT")

	assert.True(t, manager.IsNeutral("paper", "BTCUSDT"))
	assert.Equal(t, []string{"paperBTCUSDT"}, runner.cleared)

	// clearing an already neutral pair is a no-op
	manager.Clear(context.Background(), "paper", "BTCUSDT")
	assert.Equal(t, []string{"paperBTCUSDT"}, runner.cleared)
}

func TestManagerTickDetachesClearedState(t *testing.T) {
	runner := newFakeRunner()
	execution := &fakeExecution{onTick: func(pairState *entity.PairState) {
		pairState.Clear()
	}}
	manager := newTestManager(runner, execution)

	_, err := manager.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateClose, entity.PairStateOptions{})
	require.NoError(t, err)

	runner.fire("paperBTCUSDT")

	assert.Equal(t, 1, execution.ticks)
	assert.True(t, manager.IsNeutral("paper", "BTCUSDT"))
	assert.Equal(t, []string{"paperBTCUSDT"}, runner.cleared)
}

func TestManagerStateClearDetachesImmediately(t *testing.T) {
	runner := newFakeRunner()
	manager := newTestManager(runner, &fakeExecution{})

	pairState, err := manager.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateClose, entity.PairStateOptions{})
	require.NoError(t, err)

	// the state clearing itself must evict it without waiting for a tick
	pairState.Clear()

	assert.True(t, manager.IsNeutral("paper", "BTCUSDT"))
	assert.Equal(t, []string{"paperBTCUSDT"}, runner.cleared)
}

func TestManagerOnTerminateCancelsEveryState(t *testing.T) {
	runner := newFakeRunner()
	execution := &fakeExecution{}
	manager := newTestManager(runner, execution)

	_, err := manager.Update(context.Background(), "paper", "BTCUSDT", entity.PairStateClose, entity.PairStateOptions{})
	require.NoError(t, err)
	_, err = manager.Update(context.Background(), "paper", "ETHUSDT", entity.PairStateClose, entity.PairStateOptions{})
	require.NoError(t, err)

	manager.OnTerminate(context.Background())

	assert.Equal(t, 2, execution.cancels)
	assert.Empty(t, manager.All())
}
