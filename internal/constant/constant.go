package constant

const (
	DevelopmentEnvironment = "development"
	ProductionEnvironment  = "production"
)

const (
	PairEngineStreamName                 = "pair_engine"
	PairEngineStreamSubjectAll           = "pair_engine.*"
	PairEngineStreamSubjectOrderCreated  = "pair_engine.order_created"
	PairEngineStreamSubjectPositionState = "pair_engine.position_state"

	OrderLogQueueName  = "pair_engine_order_log_queue"
	OrderLogQueueGroup = "pair_engine_order_log_group"

	WatchdogQueueName  = "pair_engine_watchdog_queue"
	WatchdogQueueGroup = "pair_engine_watchdog_group"
)
