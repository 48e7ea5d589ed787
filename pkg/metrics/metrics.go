// Package metrics 提供基于Prometheus的指标收集
//
// # 核心概念
//
// **Counter（计数器）**：只增不减的累计值（流水总数、告警总数）
// **Gauge（仪表盘）**：可增可减的瞬时值（清扫中的预留数）
// **Histogram（直方图）**：观测值的分布，自动计算分位数（变更耗时P50/P99）
//
// # 指标命名规范
//
// 1. Counter以`_total`结尾：`stock_movements_total`
// 2. Histogram以单位结尾：`stock_mutation_duration_seconds`
// 3. 标签区分维度，但避免高基数标签：
//   - ✅ 用movement type做标签（7个固定值）
//   - ❌ 不要用stockable id做标签（无界）
//
// # 使用示例
//
//	// 1. 程序启动时初始化一次
//	metrics.InitMetrics()
//
//	// 2. 暴露/metrics端点（gin路由挂promhttp.Handler）
//
//	// 3. 业务代码记录指标
//	metrics.IncMovement("sale")
//	metrics.ObserveMutationDuration(time.Since(start).Seconds())
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// initialized 标记是否已初始化（防止重复注册）
	initialized bool

	// 库存流水指标

	// StockMovementsTotal 库存流水总数（Counter）
	// 标签：type（manual_entry/manual_exit/adjustment/sale/refund/reservation/reservation_release）
	StockMovementsTotal *prometheus.CounterVec

	// InsufficientStockTotal 负库存保护拒绝总数（Counter）
	InsufficientStockTotal prometheus.Counter

	// StockMutationDuration 库存变更事务耗时（Histogram）
	StockMutationDuration prometheus.Histogram

	// 预留指标

	// ReservationsCreatedTotal 预留创建总数（Counter）
	ReservationsCreatedTotal prometheus.Counter

	// ReservationsReleasedTotal 预留释放总数（Counter）
	// 标签：cause（manual/cart/expired）
	ReservationsReleasedTotal *prometheus.CounterVec

	// ReservationsConvertedTotal 预留转化总数（Counter）
	ReservationsConvertedTotal prometheus.Counter

	// ReservationsReclaimedTotal 清扫任务回收的过期预留总数（Counter）
	ReservationsReclaimedTotal prometheus.Counter

	// 告警指标

	// LowStockAlertsTotal 低库存告警发布总数（Counter）
	// 标签：result（published/failed/rejected）
	LowStockAlertsTotal *prometheus.CounterVec

	// 校验指标

	// CheckoutValidationsTotal 结算校验总数（Counter）
	// 标签：result（valid/invalid）
	CheckoutValidationsTotal *prometheus.CounterVec

	// 消息队列指标

	// MessagesPublishedTotal 消息发布总数（Counter）
	// 标签：exchange（交换机）、routing_key（路由键）
	MessagesPublishedTotal *prometheus.CounterVec
)

// InitMetrics 初始化所有Prometheus指标
//
// 必须在程序启动时调用一次，用于注册所有指标到全局Registry
//
// 设计要点：
// 1. 使用promauto.New*自动注册到默认Registry
// 2. 业务代码通过下面的便捷函数记录指标：未初始化时静默跳过，
//    单元测试无需关心指标注册
func InitMetrics() {
	// 防止重复初始化
	if initialized {
		return
	}
	initialized = true

	StockMovementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_movements_total",
			Help: "库存流水总数",
		},
		[]string{"type"},
	)

	InsufficientStockTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_insufficient_total",
			Help: "负库存保护拒绝总数",
		},
	)

	StockMutationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "stock_mutation_duration_seconds",
			Help: "库存变更事务耗时（秒）",
			// 单行事务通常很快，桶覆盖1ms到5s
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	ReservationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_reservations_created_total",
			Help: "预留创建总数",
		},
	)

	ReservationsReleasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservations_released_total",
			Help: "预留释放总数",
		},
		[]string{"cause"},
	)

	ReservationsConvertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_reservations_converted_total",
			Help: "预留转化为销售总数",
		},
	)

	ReservationsReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_reservations_reclaimed_total",
			Help: "清扫任务回收的过期预留总数",
		},
	)

	LowStockAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_low_stock_alerts_total",
			Help: "低库存告警发布总数",
		},
		[]string{"result"},
	)

	CheckoutValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_checkout_validations_total",
			Help: "结算校验总数",
		},
		[]string{"result"},
	)

	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_published_total",
			Help: "消息发布总数",
		},
		[]string{"exchange", "routing_key"},
	)
}

// =========================================
// 便捷函数（未初始化时静默跳过）
// =========================================

// IncMovement 记录一条库存流水
func IncMovement(movementType string) {
	if StockMovementsTotal != nil {
		StockMovementsTotal.WithLabelValues(movementType).Inc()
	}
}

// IncInsufficientStock 记录一次负库存保护拒绝
func IncInsufficientStock() {
	if InsufficientStockTotal != nil {
		InsufficientStockTotal.Inc()
	}
}

// ObserveMutationDuration 记录库存变更事务耗时
func ObserveMutationDuration(seconds float64) {
	if StockMutationDuration != nil {
		StockMutationDuration.Observe(seconds)
	}
}

// IncReservationCreated 记录一次预留创建
func IncReservationCreated() {
	if ReservationsCreatedTotal != nil {
		ReservationsCreatedTotal.Inc()
	}
}

// IncReservationReleased 记录一次预留释放
func IncReservationReleased(cause string) {
	if ReservationsReleasedTotal != nil {
		ReservationsReleasedTotal.WithLabelValues(cause).Inc()
	}
}

// IncReservationConverted 记录一次预留转化
func IncReservationConverted() {
	if ReservationsConvertedTotal != nil {
		ReservationsConvertedTotal.Inc()
	}
}

// AddReservationsReclaimed 记录清扫回收数量
func AddReservationsReclaimed(n int) {
	if ReservationsReclaimedTotal != nil && n > 0 {
		ReservationsReclaimedTotal.Add(float64(n))
	}
}

// IncLowStockAlert 记录一次低库存告警结果
func IncLowStockAlert(result string) {
	if LowStockAlertsTotal != nil {
		LowStockAlertsTotal.WithLabelValues(result).Inc()
	}
}

// IncCheckoutValidation 记录一次结算校验结果
func IncCheckoutValidation(valid bool) {
	if CheckoutValidationsTotal != nil {
		result := "valid"
		if !valid {
			result = "invalid"
		}
		CheckoutValidationsTotal.WithLabelValues(result).Inc()
	}
}

// IncMessagePublished 记录一次消息发布
func IncMessagePublished(exchange, routingKey string) {
	if MessagesPublishedTotal != nil {
		MessagesPublishedTotal.WithLabelValues(exchange, routingKey).Inc()
	}
}
