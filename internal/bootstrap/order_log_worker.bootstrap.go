package bootstrap

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/tradekit/pair-engine/internal/config"
	"github.com/tradekit/pair-engine/internal/infrastructure"
	"github.com/tradekit/pair-engine/internal/repository"
	"github.com/tradekit/pair-engine/internal/service/orderlog"
	"github.com/tradekit/pair-engine/internal/util"
)

// StartOrderLogWorker consumes order created events and persists them.
func StartOrderLogWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["pair_engine"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database["pair_engine"].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	orderLogRepo := repository.NewOrderLogRepository(db)
	orderLogService := orderlog.NewSyncService(orderLogRepo, js)

	err = orderLogService.JetstreamEventSubscribe(ctx)
	util.ContinueOrFatal(err)

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
