package api

import (
	"time"

	"signalflow/conf"
	"signalflow/internal/breaker"
	"signalflow/internal/consts"
	"signalflow/internal/dao/query"
	"signalflow/internal/deadletter"
	"signalflow/internal/dispatch"
	"signalflow/internal/exchange"
	"signalflow/internal/fault"
	"signalflow/internal/handler/admin"
	"signalflow/internal/handler/webhook"
	"signalflow/internal/notify"
	"signalflow/internal/resolver"
	"signalflow/internal/router"
	"signalflow/internal/service"
	"signalflow/pkg/jwt"
	"signalflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InitRouter 组装整条信号链路：dao -> 解析/调度/死信 -> service -> handler
// 返回路由和一个停止后台服务的回调
func InitRouter(db *gorm.DB, rdb *redis.Client) (Router, func()) {
	appCfg := conf.AppConfig

	accountDao := query.NewAccountDao(db)
	jobDao := query.NewJobDao(db)
	dlqDao := query.NewDeadLetterDao(db)

	engine := fault.NewRetryPolicyEngine()
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: appCfg.Breaker.FailureThreshold,
		SuccessThreshold: appCfg.Breaker.SuccessThreshold,
		Timeout:          appCfg.Breaker.Timeout,
		MonitoringPeriod: appCfg.Breaker.MonitoringPeriod,
	})
	breakers.StartCleanup(appCfg.Breaker.CleanupInterval)

	// 运营告警渠道按配置开关
	channels := make([]notify.Channel, 0, 2)
	var kafkaChannel *notify.KafkaChannel
	if appCfg.Notify.Email {
		channels = append(channels, notify.NewEmailChannel(appCfg.Email))
	}
	if appCfg.Notify.Kafka {
		kafkaChannel = notify.NewKafkaChannel(appCfg.Kafka.Broker, appCfg.Kafka.AlertTopic)
		channels = append(channels, kafkaChannel)
	}
	sink := notify.NewSink(appCfg.AppName, appCfg.Notify.Cooldown, channels...)

	dispatcher, err := dispatch.New(appCfg.Dispatch, jobDao, rdb, engine, breakers, nil)
	if err != nil {
		logger.Fatalf("failed to init dispatcher: %v", err)
	}
	dlRouter := deadletter.NewRouter(appCfg.DeadLetter, dlqDao, dispatcher, sink)
	dispatcher.SetDeadLetter(dlRouter)

	// TODO 接入真实交易所适配器后按appCfg.Mode切换
	executor := exchange.NewSimulatedOrderExecutor()
	dispatcher.RegisterHandler(consts.JobTypePlaceOrder, dispatch.PlaceOrderHandler(executor))
	dispatcher.RegisterHandler(consts.JobTypeReconcile, dispatch.ReconcileHandler(executor))

	dispatcher.Start()
	dlRouter.Start()

	rs := resolver.New(accountDao)
	signalSvc := service.NewSignalService(rs, jobDao, dispatcher)

	// 周期对账，interval为0时不启动
	reconciler := service.NewReconciler(accountDao, dispatcher, appCfg.Dispatch.ReconcileInterval)
	reconciler.Start()

	wh := webhook.NewHandler(signalSvc, appCfg.Webhook.Secret)
	blacklist := jwt.NewBlacklist(rdb, time.Duration(appCfg.Jwt.JwtBlacklistGracePeriod)*time.Second)
	adminHandler := admin.NewHandler(dlRouter, breakers, dispatcher)

	apiRouter := router.NewApiRouter(wh, adminHandler, blacklist,
		appCfg.RateLimit.PublicInterval, appCfg.RateLimit.AuthInterval)

	stop := func() {
		reconciler.Stop()
		dispatcher.Stop()
		dlRouter.Stop()
		breakers.Stop()
		if kafkaChannel != nil {
			_ = kafkaChannel.Close()
		}
	}
	return apiRouter, stop
}
