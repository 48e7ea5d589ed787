package alert

import (
	"context"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"

	appstock "github.com/xiebiao/shopstock/internal/application/stock"
	"github.com/xiebiao/shopstock/pkg/metrics"
	"github.com/xiebiao/shopstock/pkg/mq"
)

// RoutingKeyLowStock 低库存告警的路由键
const RoutingKeyLowStock = "stock.low"

// Publisher 低库存告警发布器(RabbitMQ)
//
// 设计说明:
// 1. 实现应用层的AlertPublisher端口
// 2. 用熔断器包裹MQ发布：Broker持续故障时快速失败，
//    避免每次库存变更都卡在网络超时上
// 3. 发布是fire-and-forget语义，失败只记日志和指标，调用方不感知
type Publisher struct {
	mq      *mq.Publisher
	breaker *gobreaker.CircuitBreaker[any]
}

// NewPublisher 创建告警发布器
func NewPublisher(mqPublisher *mq.Publisher) *Publisher {
	settings := gobreaker.Settings{
		Name:        "low-stock-alerts",
		MaxRequests: 3,                // 半开状态放行的探测请求数
		Interval:    60 * time.Second, // 闭合状态下计数窗口
		Timeout:     30 * time.Second, // 熔断后多久进入半开
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 连续失败5次后熔断
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("⚠️ 熔断器[%s]状态变更: %s → %s", name, from, to)
		},
	}

	return &Publisher{
		mq:      mqPublisher,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// PublishLowStock 发布低库存告警事件
// 失败（含熔断拒绝）返回error，由调用方决定只记日志
func (p *Publisher) PublishLowStock(ctx context.Context, alert appstock.LowStockAlert) error {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.mq.Publish(ctx, RoutingKeyLowStock, alert)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			metrics.IncLowStockAlert("rejected")
		} else {
			metrics.IncLowStockAlert("failed")
		}
		return err
	}

	metrics.IncLowStockAlert("published")
	metrics.IncMessagePublished(p.mq.Exchange(), RoutingKeyLowStock)
	return nil
}

// NopPublisher 空发布器（MQ未启用时使用，只记日志）
type NopPublisher struct{}

// PublishLowStock 只打印日志，不做真正的投递
func (NopPublisher) PublishLowStock(_ context.Context, alert appstock.LowStockAlert) error {
	log.Printf("📉 低库存告警(未启用MQ): type=%s id=%d quantity=%d threshold=%d",
		alert.Stockable.Type, alert.Stockable.ID, alert.Quantity, alert.Threshold)
	return nil
}
