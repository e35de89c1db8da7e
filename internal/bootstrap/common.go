package bootstrap

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/storage"
)

type operation func(ctx context.Context) error

// gracefulShutdown waits for termination syscalls and doing clean up operations after received it.
func gracefulShutdown(ctx context.Context, timeout time.Duration, ops map[string]operation) <-chan struct{} {
	wait := make(chan struct{})
	go func() {
		s := make(chan os.Signal, 1)

		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		<-s

		logrus.Info("shutting down")

		// set timeout for the ops to be done to prevent system hang
		timeoutFunc := time.AfterFunc(timeout, func() {
			logrus.Error(fmt.Sprintf("timeout %d ms has been elapsed, force exit", timeout.Milliseconds()))
			os.Exit(0)
		})

		defer timeoutFunc.Stop()

		var wg sync.WaitGroup

		for key, op := range ops {
			wg.Add(1)
			innerOp := op
			innerKey := key
			go func() {
				defer wg.Done()

				logrus.Info(fmt.Sprintf("cleaning up: %s", innerKey))
				if err := innerOp(ctx); err != nil {
					logrus.Error(fmt.Sprintf("%s: clean up failed: %s", innerKey, err.Error()))
					return
				}

				logrus.Info(fmt.Sprintf("%s was shutdown gracefully", innerKey))
			}()
		}

		wg.Wait()

		close(wait)
	}()

	return wait
}

func runWS(ctx context.Context, wsHost url.URL, initSub map[string]any, onMessage func(ctx context.Context, message []byte) error) (*websocket.Conn, error) {
	logrus.Infof("connecting to %s", wsHost.String())

	c, _, err := websocket.DefaultDialer.Dial(wsHost.String(), nil)
	if err != nil {
		logrus.Error(err)
		return nil, err
	}

	c.SetPongHandler(func(string) error {
		return nil
	})

	if err := c.WriteJSON(initSub); err != nil {
		return nil, err
	}

	go func() {
		ticker := time.NewTicker(2 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				err := c.WriteMessage(websocket.PingMessage, nil)
				if err != nil {
					logrus.Error(err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return c, nil
		default:
			_, message, err := c.ReadMessage()
			if err != nil {
				logrus.Error(err)
				return c, err
			}

			if onMessage != nil {
				if err := onMessage(ctx, message); err != nil {
					logrus.Error(err)
				}
			}
		}
	}
}

// runTickerFeed streams best bid/ask updates for the given symbols into the
// ticker store and reconnects on read failures until the context is canceled.
func runTickerFeed(ctx context.Context, wsURL, exchangeName string, symbols []string, tickers *storage.TickerStore, onTicker func(*entity.Ticker)) {
	wsHost, err := url.Parse(wsURL)
	if err != nil {
		logrus.Errorf("invalid ws url for %s: %v", exchangeName, err)
		return
	}

	params := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		params = append(params, strings.ToLower(symbol)+"@bookTicker")
	}

	initSub := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		_, err := runWS(ctx, *wsHost, initSub, func(_ context.Context, message []byte) error {
			ticker, ok := parseBookTicker(exchangeName, message)
			if !ok {
				return nil
			}

			tickers.Set(ticker)
			if onTicker != nil {
				onTicker(ticker)
			}

			return nil
		})
		if err == nil {
			return
		}

		logrus.Warnf("ticker feed for %s disconnected, reconnecting: %v", exchangeName, err)

		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func parseBookTicker(exchangeName string, message []byte) (*entity.Ticker, bool) {
	var payload struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
	}

	if err := json.Unmarshal(message, &payload); err != nil {
		return nil, false
	}

	if payload.Symbol == "" || payload.Bid == "" || payload.Ask == "" {
		return nil, false
	}

	bid, err := decimal.NewFromString(payload.Bid)
	if err != nil {
		return nil, false
	}

	ask, err := decimal.NewFromString(payload.Ask)
	if err != nil {
		return nil, false
	}

	return entity.NewTicker(exchangeName, payload.Symbol, bid, ask), true
}
