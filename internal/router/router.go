package router

import (
	"time"

	"signalflow/internal/handler/admin"
	"signalflow/internal/handler/ping"
	"signalflow/internal/handler/webhook"
	"signalflow/internal/middleware"
	"signalflow/pkg/jwt"

	"github.com/gin-gonic/gin"
)

type ApiRouter struct {
	webhookHandler *webhook.Handler
	adminHandler   *admin.Handler
	blacklist      *jwt.Blacklist

	publicInterval time.Duration
	authInterval   time.Duration
}

func NewApiRouter(wh *webhook.Handler, ah *admin.Handler, blacklist *jwt.Blacklist, publicInterval, authInterval time.Duration) *ApiRouter {
	return &ApiRouter{
		webhookHandler: wh,
		adminHandler:   ah,
		blacklist:      blacklist,
		publicInterval: publicInterval,
		authInterval:   authInterval,
	}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	g.GET("/ping", ping.Ping())

	// 公共webhook：只认HMAC签名，按来源ip限频
	g.POST("/webhook", middleware.RateLimit(api.publicInterval, middleware.ByClientIP), api.webhookHandler.HandlePublic())

	base := g.Group("/api/v1")

	s := base.Group("/signal", middleware.AuthToken(api.blacklist))
	{
		// 登录态信号入口，按用户限频
		s.POST("/dispatch", middleware.RateLimit(api.authInterval, middleware.ByUser), api.webhookHandler.HandleAuthenticated())
	}

	a := base.Group("/admin", middleware.AuthToken(api.blacklist), middleware.AdminRequired())
	{
		a.GET("/deadletter/list", api.adminHandler.DeadLetterList())
		a.GET("/deadletter/stats", api.adminHandler.DeadLetterStats())
		a.POST("/deadletter/:id/reprocess", api.adminHandler.DeadLetterReprocess())
		a.POST("/deadletter/purge", api.adminHandler.DeadLetterPurge())
		a.GET("/breakers", api.adminHandler.BreakerStats())
		a.GET("/queues", api.adminHandler.QueueStats())
	}
}
