package stock

import (
	"context"
	"time"

	"github.com/xiebiao/shopstock/internal/domain/stock"
)

// 应用层端口定义
//
// 教学要点：
// 1. 应用层定义自己依赖的接口（端口），基础设施层提供实现（适配器）
// 2. 好处：服务可以用内存假实现做单元测试，不依赖MySQL/Redis/RabbitMQ

// TxManager 事务管理器端口
// mysql.TxManager满足此接口；测试中用直通假实现
type TxManager interface {
	// Transaction fn内的所有仓储操作在同一事务中执行
	// fn返回error时回滚，返回nil时提交
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// LowStockAlert 低库存告警事件
// 发布到消息队列，由外部通知服务消费（收件人配置、消息格式都不在本引擎范围内）
type LowStockAlert struct {
	Stockable  stock.StockableRef `json:"stockable"`
	Quantity   int                `json:"quantity"`
	Threshold  int                `json:"threshold"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// AlertPublisher 告警发布端口
//
// 设计说明：发布是fire-and-forget——库存变更的正确性
// 不依赖告警被投递甚至被处理；发布失败只记日志，绝不向调用方传播
type AlertPublisher interface {
	PublishLowStock(ctx context.Context, alert LowStockAlert) error
}

// AvailabilityCache 可用量缓存端口（可选依赖，nil表示不启用缓存）
//
// 教学要点：
// 1. 缓存只服务读路径，永远不是事实来源
// 2. 每次库存/预留变更后失效对应key，读路径miss时回源数据库
type AvailabilityCache interface {
	// Get 读取缓存的可用量，miss时返回(0, false, nil)
	Get(ctx context.Context, ref stock.StockableRef) (int, bool, error)

	// Set 写入可用量（带短TTL）
	Set(ctx context.Context, ref stock.StockableRef, available int) error

	// Invalidate 失效某库存对象的缓存
	Invalidate(ctx context.Context, ref stock.StockableRef) error
}

// Config 库存引擎配置
// 设计说明：显式注入配置结构，不读全局状态（便于测试不同策略组合）
type Config struct {
	// ReservationTTL 预留有效时长
	ReservationTTL time.Duration

	// DefaultLowStockThreshold 全局默认低库存阈值
	// 商品未设置自身阈值时回退到此值
	DefaultLowStockThreshold int

	// AllowNegativeStock 是否全局允许负库存
	AllowNegativeStock bool

	// ReclaimBatchSize 过期预留清扫的单批数量
	ReclaimBatchSize int

	// ReclaimInterval 清扫周期
	ReclaimInterval time.Duration
}
