package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sambot/sambot-go/internal/cache"
	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/config"
	"github.com/sambot/sambot-go/internal/handler"
	"github.com/sambot/sambot-go/internal/service"
	"github.com/sambot/sambot-go/pkg/logger"
	"github.com/sambot/sambot-go/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认 configs/sambot.yaml")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("配置错误: %v", e)
		}
		os.Exit(1)
	}

	// 初始化日志
	var zapLogger *zap.Logger
	if cfg.Log.File != "" {
		zapLogger, err = logger.NewLoggerWithFile(cfg.Log.Level, cfg.Log.File)
	} else {
		zapLogger, err = logger.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("sambot-gateway 服务启动中...",
		zap.String("functionsUrl", cfg.Backend.FunctionsURL),
		zap.String("docProcUrl", cfg.Backend.DocProcURL),
		zap.String("embeddingUrl", cfg.Backend.EmbeddingURL))

	// 后端客户端
	backend := client.NewBackendClient(cfg.Backend, zapLogger)

	// 知识库列表缓存：配置了 Redis 时多副本共享
	var store cache.Store = cache.NewMemoryStore(cfg.Cache.TTL)
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			zapLogger.Warn("Redis 不可用，使用进程内缓存", zap.Error(err))
		} else {
			defer rdb.Close()
			store = cache.NewRedisStore(rdb)
			zapLogger.Info("使用 Redis 缓存",
				zap.String("host", cfg.Redis.Host),
				zap.Int("port", cfg.Redis.Port))
		}
	}

	// 初始化服务
	sessionService := service.NewSessionService(backend, zapLogger)
	knowledgeService := service.NewKnowledgeService(backend, store, cfg.Cache.TTL, zapLogger)

	if cfg.Auth.JWTSecret == "" {
		zapLogger.Warn("未配置 auth.jwtSecret，管理端接口不可用")
	}

	// 初始化路由
	r := handler.NewRouter(handler.Dependencies{
		Config:    cfg,
		Backend:   backend,
		Sessions:  sessionService,
		Knowledge: knowledgeService,
		Logger:    zapLogger,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		zapLogger.Info("sambot-gateway 服务启动成功", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// WebSocket 连接被劫持，Shutdown 不会等待它们，由会话服务逐个关闭并发出清理通知
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("HTTP 服务关闭失败", zap.Error(err))
	}
	sessionService.Shutdown(ctx)

	zapLogger.Info("服务已关闭")
}
