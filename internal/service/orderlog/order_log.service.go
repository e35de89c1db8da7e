package orderlog

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/guregu/null/v6"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/tradekit/pair-engine/internal/config"
	"github.com/tradekit/pair-engine/internal/constant"
	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/repository"
	"github.com/tradekit/pair-engine/internal/util"
)

var ErrMissingExchangeOrder = errors.New("event carries no exchange order")

// SyncService consumes order created events and persists them as order logs.
type SyncService struct {
	orderLogRepo *repository.OrderLogRepository
	js           nats.JetStreamContext
}

func NewSyncService(orderLogRepo *repository.OrderLogRepository, js nats.JetStreamContext) *SyncService {
	return &SyncService{
		orderLogRepo: orderLogRepo,
		js:           js,
	}
}

func (s *SyncService) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.PairEngineStreamName,
		Subjects:  []string{constant.PairEngineStreamSubjectAll},
		Retention: nats.InterestPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
	}

	stream, err := s.js.StreamInfo(constant.PairEngineStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.PairEngineStreamName)
		_, err = s.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	_, err = s.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

func (s *SyncService) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = s.js.QueueSubscribe(
		constant.PairEngineStreamSubjectOrderCreated,
		constant.OrderLogQueueName,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(config.Env.NatsJetstream.TimeoutHandler["order_created"], msg, s.handleOrderCreatedEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.Durable(constant.OrderLogQueueGroup),
	)
	if err != nil {
		return err
	}

	return nil
}

func (s *SyncService) handleOrderCreatedEvent(ctx context.Context, msg *nats.Msg) error {
	var event *entity.OrderCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logrus.Error(err)
		return err
	}

	orderLog, err := orderLogFromEvent(event)
	if err != nil {
		logrus.Error(err)
		return err
	}

	err = s.orderLogRepo.Create(ctx, orderLog)
	if err != nil {
		logrus.Errorf("order log insert failed: %v", err)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"exchange": orderLog.Exchange,
		"symbol":   orderLog.Symbol,
		"order_id": orderLog.OrderID,
		"status":   orderLog.Status,
	}).Info("order log recorded")

	return nil
}

func orderLogFromEvent(event *entity.OrderCreatedEvent) (*entity.OrderLog, error) {
	if event == nil || event.ExchangeOrder == nil {
		return nil, ErrMissingExchangeOrder
	}

	exchangeOrder := event.ExchangeOrder

	now := time.Now()
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	orderLog := &entity.OrderLog{
		Exchange:  event.Exchange,
		Symbol:    exchangeOrder.Symbol,
		OrderID:   exchangeOrder.ID,
		Side:      exchangeOrder.Side,
		Type:      exchangeOrder.Type,
		Amount:    exchangeOrder.Amount,
		Status:    exchangeOrder.Status,
		Retry:     exchangeOrder.Retry,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	orderLog.OurID = null.NewString(exchangeOrder.OurID, exchangeOrder.OurID != "")

	if !exchangeOrder.Price.IsZero() {
		price := exchangeOrder.Price
		orderLog.Price = &price
	}

	return orderLog, nil
}
