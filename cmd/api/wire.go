//go:build wireinject
// +build wireinject

// Wire依赖注入配置文件
//
// 教学说明：
// 1. Wire是Google开发的编译期依赖注入工具
// 2. 与运行时反射注入不同，Wire在编译期生成代码
// 3. 优势：零运行时开销、类型安全、编译期检测循环依赖
//
// Wire工作流程：
// Step 1: 编写wire.go（本文件），定义Providers和Injector
// Step 2: 运行 `wire gen ./cmd/api`
// Step 3: Wire生成wire_gen.go，包含完整的依赖创建代码
// Step 4: main.go调用wire_gen.go中的InitializeApp()

package main

import (
	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	appstock "github.com/xiebiao/shopstock/internal/application/stock"
	"github.com/xiebiao/shopstock/internal/infrastructure/alert"
	"github.com/xiebiao/shopstock/internal/infrastructure/config"
	"github.com/xiebiao/shopstock/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/shopstock/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/shopstock/internal/interface/http/handler"
	"github.com/xiebiao/shopstock/pkg/mq"
)

// ========================================
// Wire Provider Sets (依赖分组)
// ========================================

// infrastructureSet 基础设施层依赖
// 包含：配置加载、数据库连接、Redis连接
var infrastructureSet = wire.NewSet(
	config.Load,     // 加载配置文件
	mysql.NewDB,     // 创建MySQL连接
	redis.NewClient, // 创建Redis连接
)

// repositorySet 仓储层依赖
var repositorySet = wire.NewSet(
	mysql.NewStockItemRepository,   // 库存对象仓储
	mysql.NewMovementRepository,    // 库存流水仓储
	mysql.NewReservationRepository, // 库存预留仓储
	mysql.NewTxManager,             // 事务管理器
	wire.Bind(new(appstock.TxManager), new(*mysql.TxManager)),
)

// applicationSet 应用层依赖
var applicationSet = wire.NewSet(
	provideStockConfig,             // 库存引擎配置
	appstock.NewStockService,       // 库存服务
	appstock.NewReservationService, // 预留服务
)

// adapterSet 出站适配器依赖
var adapterSet = wire.NewSet(
	provideAvailabilityCache, // Redis可用量缓存
	provideAlertPublisher,    // 低库存告警发布器
)

// handlerSet HTTP处理器依赖
var handlerSet = wire.NewSet(
	handler.NewStockHandler, // 库存处理器
)

// ========================================
// Custom Providers (自定义Provider)
// ========================================
// 有些依赖的构造函数参数需要从Config中提取，Wire无法自动推导

// provideStockConfig 从全局配置提取库存引擎参数
func provideStockConfig(cfg *config.Config) appstock.Config {
	return appstock.Config{
		ReservationTTL:           cfg.Stock.ReservationTTL(),
		DefaultLowStockThreshold: cfg.Stock.DefaultLowStockThreshold,
		AllowNegativeStock:       cfg.Stock.AllowNegativeStock,
		ReclaimBatchSize:         cfg.Stock.ReclaimBatchSize,
		ReclaimInterval:          cfg.Stock.ReclaimInterval,
	}
}

// provideAvailabilityCache 从Redis客户端创建可用量缓存
func provideAvailabilityCache(cfg *config.Config, client *goredis.Client) appstock.AvailabilityCache {
	return redis.NewAvailabilityCache(client, cfg.Stock.CacheTTL)
}

// provideAlertPublisher 创建低库存告警发布器
// MQ关闭时退化为日志发布器
func provideAlertPublisher(cfg *config.Config) (appstock.AlertPublisher, error) {
	if !cfg.MQ.Enabled {
		return alert.NopPublisher{}, nil
	}
	publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange, "topic")
	if err != nil {
		return nil, err
	}
	return alert.NewPublisher(publisher), nil
}

// provideGinEngine 创建并配置Gin引擎
func provideGinEngine(
	cfg *config.Config,
	stockHandler *handler.StockHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})

	// Prometheus指标
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger文档路由
	// 访问 http://localhost:8080/swagger/index.html 查看API文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API路由组（只读查询）
	v1 := r.Group("/api/v1")
	{
		stocks := v1.Group("/stock")
		{
			stocks.GET("/:type/:id", stockHandler.GetItem)
			stocks.GET("/:type/:id/availability", stockHandler.GetAvailability)
			stocks.GET("/:type/:id/movements", stockHandler.ListMovements)
		}
	}

	return r
}

// ========================================
// Wire Injector (依赖注入器)
// ========================================

// InitializeApp 初始化整个应用
// Wire会在wire_gen.go中生成实际的初始化代码
func InitializeApp() (*gin.Engine, error) {
	wire.Build(
		infrastructureSet,
		repositorySet,
		adapterSet,
		applicationSet,
		handlerSet,
		provideGinEngine,
	)

	return nil, nil
}
