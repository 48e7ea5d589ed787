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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	appstock "github.com/xiebiao/shopstock/internal/application/stock"
	"github.com/xiebiao/shopstock/internal/infrastructure/alert"
	"github.com/xiebiao/shopstock/internal/infrastructure/config"
	"github.com/xiebiao/shopstock/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/shopstock/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/shopstock/internal/interface/http/handler"
	"github.com/xiebiao/shopstock/pkg/metrics"
	"github.com/xiebiao/shopstock/pkg/mq"
	"github.com/xiebiao/shopstock/pkg/response"
)

// main 主程序入口
// 说明：手动依赖注入（wire.go提供等价的Wire注入器）
func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	fmt.Printf("✓ 配置加载成功\n")
	fmt.Printf("  - 服务端口: %d\n", cfg.Server.Port)
	fmt.Printf("  - 运行模式: %s\n", cfg.Server.Mode)
	fmt.Printf("  - 数据库: %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	fmt.Printf("  - Redis: %s\n", cfg.Redis.Addr())
	fmt.Printf("  - 预留TTL: %s\n", cfg.Stock.ReservationTTL())

	// 2. 初始化指标
	metrics.InitMetrics()

	// 3. 初始化数据库连接
	db, err := mysql.NewDB(cfg)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}

	// 4. 初始化Redis连接
	redisClient, err := redis.NewClient(cfg)
	if err != nil {
		log.Fatalf("初始化Redis失败: %v", err)
	}

	// 5. 初始化告警发布器（MQ关闭时退化为日志发布器）
	var alerts appstock.AlertPublisher = alert.NopPublisher{}
	if cfg.MQ.Enabled {
		publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange, "topic")
		if err != nil {
			log.Fatalf("初始化消息队列失败: %v", err)
		}
		defer publisher.Close()
		alerts = alert.NewPublisher(publisher)
	}

	// 6. 依赖注入（手动组装）
	// Repository ← Service ← Handler

	// 基础设施层
	itemRepo := mysql.NewStockItemRepository(db)
	movementRepo := mysql.NewMovementRepository(db)
	reservationRepo := mysql.NewReservationRepository(db)
	txManager := mysql.NewTxManager(db)
	cache := redis.NewAvailabilityCache(redisClient, cfg.Stock.CacheTTL)

	// 应用层
	stockCfg := appstock.Config{
		ReservationTTL:           cfg.Stock.ReservationTTL(),
		DefaultLowStockThreshold: cfg.Stock.DefaultLowStockThreshold,
		AllowNegativeStock:       cfg.Stock.AllowNegativeStock,
		ReclaimBatchSize:         cfg.Stock.ReclaimBatchSize,
		ReclaimInterval:          cfg.Stock.ReclaimInterval,
	}
	stockService := appstock.NewStockService(itemRepo, movementRepo, reservationRepo, txManager, cache, alerts, stockCfg)
	reservationService := appstock.NewReservationService(itemRepo, movementRepo, reservationRepo, txManager, cache, alerts, stockCfg)
	reclaimer := appstock.NewReclaimer(reservationRepo, reservationService, stockCfg)

	// 接口层
	stockHandler := handler.NewStockHandler(stockService, reservationService)

	// 7. 启动过期预留回收任务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reclaimer.Run(ctx)

	// 8. 初始化Gin引擎
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// 9. 注册路由
	registerRoutes(r, stockHandler)

	// 10. 启动服务（支持优雅关闭）
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		fmt.Printf("\n🚀 服务启动成功！\n")
		fmt.Printf("   访问地址: http://localhost%s\n", addr)
		fmt.Printf("   健康检查: http://localhost%s/ping\n", addr)
		fmt.Printf("   指标: http://localhost%s/metrics\n", addr)
		fmt.Printf("   可用量查询: GET http://localhost%s/api/v1/stock/:type/:id/availability\n", addr)
		fmt.Printf("   库存流水: GET http://localhost%s/api/v1/stock/:type/:id/movements\n", addr)
		fmt.Printf("\n按Ctrl+C停止服务\n\n")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("启动服务失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("📥 收到退出信号，开始优雅关闭...")
	cancel() // 停止回收任务

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("服务关闭失败: %v", err)
	}

	log.Println("✅ 服务已退出")
}

// registerRoutes 注册路由
// 对外只暴露只读查询:库存变更都由内部服务通过应用层调用(非HTTP)
func registerRoutes(r *gin.Engine, stockHandler *handler.StockHandler) {
	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})

	// Prometheus指标
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger文档（生产环境建议禁用或加访问控制）
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API路由组
	v1 := r.Group("/api/v1")
	{
		stocks := v1.Group("/stock")
		{
			stocks.GET("/:type/:id", stockHandler.GetItem)
			stocks.GET("/:type/:id/availability", stockHandler.GetAvailability)
			stocks.GET("/:type/:id/movements", stockHandler.ListMovements)
		}
	}
}
