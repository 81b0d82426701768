package handler

import (
	"mobipay/internal/config"
	"mobipay/internal/infrastructure/idempotency"
	"mobipay/internal/store"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(st *store.Store, cfg *config.Config, idem idempotency.Cache) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(st, cfg, idem)

	// API 路由
	api := r.Group("/api")
	{
		api.POST("/signup", h.Signup)
		api.POST("/login", h.Login)
		api.GET("/user/:username", h.GetUser)
		api.POST("/transfer", h.Transfer)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
