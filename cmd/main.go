package main

import (
	"fmt"
	"log"
	"os"

	api "signalflow/cmd/signalflow"
	"signalflow/conf"
	"signalflow/internal/middleware"
	"signalflow/pkg/cache"
	"signalflow/pkg/db"
	"signalflow/pkg/logger"
)

// 启动服务（监听webhook）

/*
测试

BODY='{"strategy":"scalping","ticker":"BTC/USDT","side":"buy","exchange":"binance","alert_id":"tv-20250828-0001","size_mode":"percent","size_value":"25","leverage":3}'
SECRET="ab12cd34ef56abcdef1234567890abcdef1234567890abcdef1234567890"
SIGNATURE=$(echo -n $BODY | openssl dgst -sha256 -hmac $SECRET | sed 's/^.* //')

curl -X POST http://localhost:12190/webhook \
  -H "Content-Type: application/json" \
  -H "X-Signature: $SIGNATURE" \
  -d "$BODY"
*/

func main() {

	// 加载配置文件
	err := conf.LoadConfig("conf/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := conf.AppConfig
	logger.Init(appCfg.Log)
	defer logger.Sync()

	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUser == "" || dbPass == "" || dbHost == "" {
		dbUser = appCfg.Username
		dbPass = appCfg.Db.Password
		dbHost = appCfg.Host
		dbPort = appCfg.Port
		dbName = appCfg.DbName
	}

	// 初始化数据库
	datasource, err := db.Open(db.NewConfig(dbUser, dbPass, dbHost, dbPort, dbName))
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}

	redisHost := os.Getenv("REDIS_HOST")
	redisPort := os.Getenv("REDIS_PORT")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	if redisHost != "" && redisPort != "" {
		appCfg.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}
	if redisPassword != "" {
		appCfg.Redis.Password = redisPassword
	}

	// 初始化redis
	rdb, err := cache.NewRedisClient(appCfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to init redis: %v", err)
	}

	// 创建并启动服务
	srv := api.NewServer(&appCfg)
	srvRouter, stopServices := api.InitRouter(datasource, rdb)
	srv.RegisterOnShutdown(func() {
		stopServices()
		if datasource != nil {
			if m, err := datasource.DB(); err == nil {
				_ = m.Close()
			}
		}
		_ = rdb.Close()
	})

	srv.Run(middleware.NewMiddleware(), srvRouter)
}
