package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tradekit/pair-engine/internal/config"
	"github.com/tradekit/pair-engine/internal/entity"
	httpHandler "github.com/tradekit/pair-engine/internal/handler/pairstate/http"
	"github.com/tradekit/pair-engine/internal/infrastructure"
	"github.com/tradekit/pair-engine/internal/service/exchange"
	"github.com/tradekit/pair-engine/internal/service/orderexecutor"
	"github.com/tradekit/pair-engine/internal/service/pairstate"
	"github.com/tradekit/pair-engine/internal/service/watchdog"
	"github.com/tradekit/pair-engine/internal/storage"
	"github.com/tradekit/pair-engine/internal/util"
)

var defaultPaperBalance = decimal.NewFromInt(10000)

// StartEngine runs the trading engine: ticker feeds, pair state timers, the
// watchdog loop and the management HTTP surface, all in one process.
func StartEngine(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	tickers := storage.NewTickerStore()

	exchanges := exchange.NewManager()
	paperExchange := exchange.NewPaperExchange(tickers, defaultPaperBalance)
	exchanges.Register(paperExchange)

	var snapshots pairstate.IntentSnapshotStore
	var snapshotStore *pairstate.RedisIntentSnapshotStore
	if redisConfig, ok := config.Env.Redis["cache"]; ok && redisConfig.CacheDSN != "" {
		snapshotStore, err = pairstate.NewRedisIntentSnapshotStore(redisConfig.CacheDSN)
		if err != nil {
			logrus.Warnf("intent snapshot store disabled: %v", err)
		} else {
			snapshots = snapshotStore
		}
	}

	executor := orderexecutor.NewExecutor(exchanges, tickers, js, config.Env.Order)
	execution := pairstate.NewDefaultExecution(exchanges, executor)
	runner := pairstate.NewIntervalRunner()
	pairStates := pairstate.NewManager(runner, execution, executor, snapshots, config.Env.Tick.OrderingInterval())

	stopLossCalculator := watchdog.NewStopLossCalculator(tickers)
	riskRewardCalculator := watchdog.NewRiskRewardRatioCalculator()
	watchdogListener := watchdog.NewListener(exchanges, pairStates, executor, stopLossCalculator, riskRewardCalculator, tickers, js)
	positionWatcher := watchdog.NewPositionWatcher(exchanges, js)

	subscribers := []entity.Subscriber{watchdogListener}
	for _, subscriber := range subscribers {
		err = subscriber.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}

	go func() {
		ticker := time.NewTicker(config.Env.Tick.WatchdogInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				positionWatcher.OnTick(ctx)
				watchdogListener.OnTick(ctx)
			}
		}
	}()

	for name, exchangeConfig := range config.Env.Exchanges {
		if exchangeConfig.WSURL == "" {
			continue
		}

		symbols := make([]string, 0)
		for _, pair := range config.Env.Pairs {
			if pair.Exchange == name {
				symbols = append(symbols, pair.Symbol)
			}
		}
		if len(symbols) == 0 {
			continue
		}

		go runTickerFeed(ctx, exchangeConfig.WSURL, name, symbols, tickers, paperExchange.FillOpenOrders)
		logrus.Infof("ticker feed started for %s (%d symbols)", name, len(symbols))
	}

	pairStateHTTPHandler := httpHandler.NewPairStateHTTPHandler(pairStates)
	httpMux := http.NewServeMux()
	pairStateHTTPHandler.Register(httpMux)
	httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := infrastructure.NewHTTPServer(httpMux)
	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"pair states": func(ctx context.Context) error {
			pairStates.OnTerminate(ctx)
			runner.Shutdown()
			cancel()
			return nil
		},
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
		"intent snapshots": func(ctx context.Context) error {
			if snapshotStore == nil {
				return nil
			}
			return snapshotStore.Close()
		},
	})

	<-wait
}
