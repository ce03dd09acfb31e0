package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"collab_review_server/internal/config"
	dao "collab_review_server/internal/dao/mysql"
	myredis "collab_review_server/internal/dao/redis"
	"collab_review_server/internal/handler"
	"collab_review_server/internal/https_server"
	"collab_review_server/internal/infrastructure/logger"
	"collab_review_server/internal/service/gateway"
	"collab_review_server/internal/service/presence"
	"collab_review_server/internal/service/sandbox"
	"collab_review_server/internal/service/store"
	"collab_review_server/pkg/constants"
	"collab_review_server/pkg/util/snowflake"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, "dev"); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.L().Info("日志初始化成功")

	// 3. 初始化翻译器
	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("翻译器初始化失败", zap.Error(err))
	}

	// 4. 初始化数据库
	repos := dao.Init()
	zap.L().Info("数据库初始化成功")

	// 5. 初始化 Redis
	cacheService := myredis.Init()
	zap.L().Info("Redis 初始化成功")

	// 6. 初始化雪花算法节点
	snowflake.Init()

	// 7. 组装服务层（依赖注入）
	sessionGateway := gateway.NewSessionGateway(repos, cacheService)

	execTimeout := time.Duration(conf.SandboxConfig.ExecTimeoutMillis) * time.Millisecond
	if execTimeout <= 0 {
		execTimeout = constants.EXEC_TIMEOUT
	}
	executor := sandbox.NewExecutor(execTimeout)

	var relay presence.Relay
	if conf.KafkaConfig.RelayMode == "kafka" {
		relay = presence.NewKafkaRelay()
		zap.L().Info("广播转发器初始化成功 (kafka 模式)")
	} else {
		relay = presence.NewChannelRelay()
		zap.L().Info("广播转发器初始化成功 (channel 模式)")
	}

	engine := presence.NewEngine(presence.EngineConfig{
		Store:         store.NewStore(),
		Gateway:       sessionGateway,
		Sandbox:       executor,
		Relay:         relay,
		IdleThreshold: time.Duration(conf.SessionConfig.IdleThresholdMinutes) * time.Minute,
		SweepInterval: time.Duration(conf.SessionConfig.SweepIntervalMinutes) * time.Minute,
	})
	zap.L().Info("协同引擎初始化成功")

	// 8. 初始化 HTTP 服务器
	handlers := handler.NewHandlers(sessionGateway, engine, executor)
	ginEngine := https_server.Init(handlers)
	zap.L().Info("HTTP 服务器初始化成功")

	// 9. 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	go engine.Start(ctx)

	host := conf.MainConfig.Host
	port := conf.MainConfig.Port
	go func() {
		if err := ginEngine.Run(fmt.Sprintf("%s:%d", host, port)); err != nil {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()
	zap.L().Info("服务启动成功", zap.String("host", host), zap.Int("port", port))

	// 信号监听，优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("关闭服务器...")
	cancel()
	cacheService.Close()
	zap.L().Info("服务器已关闭")
}
