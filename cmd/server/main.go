package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mobipay/internal/config"
	"mobipay/internal/handler"
	"mobipay/internal/infrastructure/cache"
	"mobipay/internal/infrastructure/idempotency"
	"mobipay/internal/infrastructure/mq"
	"mobipay/internal/job"
	"mobipay/internal/store"
	"mobipay/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器
	idgen.Init(1)

	// 初始化账户存储（从快照恢复）
	st, err := store.NewStore(cfg.Store.SnapshotPath,
		time.Duration(cfg.Business.LockTimeoutMillis)*time.Millisecond)
	if err != nil {
		log.Fatalf("初始化账户存储失败: %v", err)
	}

	// 幂等缓存：启用 Redis 时跨重启有效，否则退化为进程内缓存
	idemTTL := time.Duration(cfg.Business.IdempotencyTTLMinutes) * time.Minute
	var idem idempotency.Cache
	if cfg.Redis.Enabled {
		redisClient := cache.InitRedis(&cfg.Redis)
		idem = idempotency.NewRedisCache(redisClient, idemTTL)
	} else {
		idem = idempotency.NewMemoryCache(idemTTL)
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 可选的账本事件投递
	if cfg.Kafka.Enabled {
		mq.InitKafka(&cfg.Kafka)
		defer mq.CloseKafka()

		outboxSender := job.NewOutboxSender(st, cfg)
		go outboxSender.Start(ctx)
	}

	// 设置路由
	router := handler.SetupRouter(st, cfg, idem)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	// 退出前兜底写一次快照
	if err := st.Flush(); err != nil {
		log.Printf("退出前写快照失败: %v", err)
	}

	log.Println("服务已关闭")
}
