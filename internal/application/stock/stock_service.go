package stock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/xiebiao/shopstock/internal/domain/stock"
	"github.com/xiebiao/shopstock/pkg/metrics"
)

// StockService 库存服务
// 教学要点:这是整个引擎最核心的服务
// 涉及:事务处理、悲观锁并发控制、负库存保护、审计流水
type StockService struct {
	items        stock.ItemRepository
	movements    stock.MovementRepository
	reservations stock.ReservationRepository
	txManager    TxManager
	cache        AvailabilityCache // 可为nil(不启用缓存)
	alerts       AlertPublisher    // 可为nil(不启用告警)
	cfg          Config
}

// NewStockService 创建库存服务
func NewStockService(
	items stock.ItemRepository,
	movements stock.MovementRepository,
	reservations stock.ReservationRepository,
	txManager TxManager,
	cache AvailabilityCache,
	alerts AlertPublisher,
	cfg Config,
) *StockService {
	return &StockService{
		items:        items,
		movements:    movements,
		reservations: reservations,
		txManager:    txManager,
		cache:        cache,
		alerts:       alerts,
		cfg:          cfg,
	}
}

// Adjust 调整库存(手工入库/出库/盘点校正等)
// 教学重点:所有库存变更共用的事务原语
//
// 核心问题:库存变更与流水记账必须原子
// 场景:扣了库存但流水没写入 → 台账对不上,审计失效
// 正确实现:
//  1. SELECT FOR UPDATE 锁定库存行
//  2. 计算变更后数量,执行负库存保护
//  3. 写入新数量
//  4. 追加流水(带变更前后快照)
//  5. COMMIT释放锁(失败则整体回滚,什么都没发生)
func (s *StockService) Adjust(ctx context.Context, ref stock.StockableRef, quantity int, movementType stock.MovementType, notes string, createdBy *uint) (*stock.StockMovement, error) {
	// 1. 参数校验
	if !ref.Type.Valid() {
		return nil, stock.ErrInvalidStockableType
	}
	if !movementType.Valid() || !movementType.MutatesQuantity() {
		// 预留类流水由预留服务产生,不允许从调整入口写入
		return nil, stock.ErrInvalidMovementType
	}
	if quantity == 0 {
		return nil, stock.ErrInvalidQuantity
	}

	// 2. 事务内执行变更
	var movement *stock.StockMovement
	var item *stock.StockItem
	err := s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		movement, item, err = applyMovement(txCtx, s.items, s.movements, s.cfg,
			ref, movementType, quantity, notes, createdBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	// 3. 事务外的收尾(缓存失效、指标、低库存告警)
	s.afterMutation(ctx, item, movement)

	return movement, nil
}

// ConfirmSale 确认销售扣减
// 教学要点:
// 1. 扣减与预留转化在同一事务内完成（要么一起生效要么一起回滚）
// 2. 预留不可转化(不存在/已转化/已过期/对象不匹配)时跳过转化,销售照常进行
// 3. 允许缺货下单的商品会绕过负库存保护(库存可被扣成负数)
func (s *StockService) ConfirmSale(ctx context.Context, ref stock.StockableRef, quantity int, orderID *uint, reservationID *uint) (*stock.StockMovement, error) {
	if !ref.Type.Valid() {
		return nil, stock.ErrInvalidStockableType
	}
	if quantity <= 0 {
		return nil, stock.ErrInvalidQuantity
	}

	notes := saleNotes(orderID)

	var movement *stock.StockMovement
	var item *stock.StockItem
	var converted bool
	err := s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		// ========================================
		// 步骤1:尝试转化关联的预留(一次性语义)
		// ========================================
		if reservationID != nil {
			var err error
			converted, err = s.tryConvertReservation(txCtx, *reservationID, ref)
			if err != nil {
				return err
			}
		}

		// ========================================
		// 步骤2:扣减库存并记账
		// ========================================
		var err error
		movement, item, err = applyMovement(txCtx, s.items, s.movements, s.cfg,
			ref, stock.MovementSale, -quantity, notes, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	if converted {
		metrics.IncReservationConverted()
	}
	s.afterMutation(ctx, item, movement)

	return movement, nil
}

// tryConvertReservation 尝试把预留标记为已转化
// 返回true表示本次完成了转化；不可转化时返回false且不报错
func (s *StockService) tryConvertReservation(txCtx context.Context, reservationID uint, ref stock.StockableRef) (bool, error) {
	res, err := s.reservations.FindByID(txCtx, reservationID)
	if err != nil {
		if errors.Is(err, stock.ErrReservationNotFound) {
			log.Printf("销售确认: 预留#%d不存在,跳过转化", reservationID)
			return false, nil
		}
		return false, err
	}

	// 预留与销售对象不一致:记日志后跳过,销售照常进行
	if !res.Matches(ref) {
		log.Printf("销售确认: 预留#%d属于%s#%d,与销售对象%s#%d不匹配,跳过转化",
			res.ID, res.Stockable.Type, res.Stockable.ID, ref.Type, ref.ID)
		return false, nil
	}

	// 条件UPDATE保证一次性:已转化/已过期时影响行数为0
	claimed, err := s.reservations.MarkConverted(txCtx, reservationID, time.Now())
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// RefundStock 退款回补库存
// 教学要点:
// 1. 数量取绝对值(调用方传正传负都按回补处理)
// 2. recordMovement=false表示本次退款不回补库存(如定制商品),直接无操作返回
func (s *StockService) RefundStock(ctx context.Context, ref stock.StockableRef, quantity int, orderID *uint, reason string, recordMovement bool) (*stock.StockMovement, error) {
	// 不记账的退款:完全无操作
	if !recordMovement {
		return nil, nil
	}

	if !ref.Type.Valid() {
		return nil, stock.ErrInvalidStockableType
	}

	// 数量归一化为正数
	if quantity < 0 {
		quantity = -quantity
	}
	if quantity == 0 {
		return nil, stock.ErrInvalidQuantity
	}

	notes := refundNotes(orderID, reason)

	var movement *stock.StockMovement
	var item *stock.StockItem
	err := s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		movement, item, err = applyMovement(txCtx, s.items, s.movements, s.cfg,
			ref, stock.MovementRefund, quantity, notes, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, item, movement)

	return movement, nil
}

// MovementHistory 分页查询库存流水(管理后台/导出消费)
func (s *StockService) MovementHistory(ctx context.Context, ref stock.StockableRef, page, pageSize int) ([]*stock.StockMovement, int64, error) {
	if !ref.Type.Valid() {
		return nil, 0, stock.ErrInvalidStockableType
	}

	// 分页参数归一化
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	return s.movements.ListByStockable(ctx, ref, page, pageSize)
}

// GetItem 读取当前库存视图
func (s *StockService) GetItem(ctx context.Context, ref stock.StockableRef) (*stock.StockItem, error) {
	if !ref.Type.Valid() {
		return nil, stock.ErrInvalidStockableType
	}
	return s.items.Get(ctx, ref)
}

// afterMutation 库存变更提交后的收尾
// 教学要点:这些动作都不影响已提交变更的正确性
// 缓存失效失败、告警发布失败都只记日志,绝不向调用方传播
func (s *StockService) afterMutation(ctx context.Context, item *stock.StockItem, movement *stock.StockMovement) {
	metrics.IncMovement(movement.Type.String())

	// 1. 失效可用量缓存(下次读取回源重算)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, item.Ref); err != nil {
			log.Printf("失效可用量缓存失败: %v", err)
		}
	}

	// 2. 低库存告警(fire-and-forget)
	s.maybeAlertLowStock(ctx, item)
}

// maybeAlertLowStock 按阈值策略触发低库存告警
func (s *StockService) maybeAlertLowStock(ctx context.Context, item *stock.StockItem) {
	alertLowStockIfNeeded(ctx, s.alerts, s.cfg, item)
}

// alertLowStockIfNeeded 低库存告警策略(包内共享)
// 规则:商品开启通知 且 数量 ≤ 生效阈值(自身阈值优先,否则全局默认)
func alertLowStockIfNeeded(ctx context.Context, alerts AlertPublisher, cfg Config, item *stock.StockItem) {
	if alerts == nil || !item.NotifyLowStock {
		return
	}

	threshold := item.EffectiveThreshold(cfg.DefaultLowStockThreshold)
	if !item.IsLowStock(threshold) {
		return
	}

	alert := LowStockAlert{
		Stockable:  item.Ref,
		Quantity:   item.Quantity,
		Threshold:  threshold,
		OccurredAt: time.Now(),
	}
	if err := alerts.PublishLowStock(ctx, alert); err != nil {
		log.Printf("发布低库存告警失败: type=%s id=%d err=%v",
			item.Ref.Type, item.Ref.ID, err)
	}
}

// =========================================
// 包内共享:事务原语与备注模板
// =========================================

// applyMovement 库存变更的事务原语(必须在事务内调用)
//
// 流程:
//  1. SELECT FOR UPDATE 锁定库存行
//  2. 计算变更后数量,执行负库存保护
//  3. 写入新数量
//  4. 追加流水(带变更前后快照)
//
// 返回的StockItem携带变更后的数量,供提交后的告警判断使用
func applyMovement(
	txCtx context.Context,
	items stock.ItemRepository,
	movements stock.MovementRepository,
	cfg Config,
	ref stock.StockableRef,
	movementType stock.MovementType,
	quantity int,
	notes string,
	createdBy *uint,
) (*stock.StockMovement, *stock.StockItem, error) {
	start := time.Now()

	// 1. 锁定库存行
	item, err := items.LockForUpdate(txCtx, ref)
	if err != nil {
		return nil, nil, err
	}

	// 2. 负库存保护
	// 规则:启用库存管理且不允许缺货下单且全局未放开负库存时,禁止扣成负数
	before := item.Quantity
	after := before + quantity
	if after < 0 && item.GuardEnforced(cfg.AllowNegativeStock) {
		metrics.IncInsufficientStock()
		return nil, nil, stock.ErrInsufficientStock
	}

	// 3. 写入新数量
	if err := items.UpdateQuantity(txCtx, ref, after); err != nil {
		return nil, nil, err
	}

	// 4. 追加流水(快照在行锁保护下计算,保证链式一致)
	movement := stock.NewMovement(ref, movementType, quantity, before, after, notes, createdBy)
	if err := movement.Validate(); err != nil {
		return nil, nil, err
	}
	if err := movements.Create(txCtx, movement); err != nil {
		return nil, nil, err
	}

	item.Quantity = after
	metrics.ObserveMutationDuration(time.Since(start).Seconds())

	return movement, item, nil
}

// saleNotes 销售流水备注
func saleNotes(orderID *uint) string {
	if orderID != nil {
		return fmt.Sprintf("Venda - Pedido #%d", *orderID)
	}
	return "Venda"
}

// refundNotes 退款流水备注
func refundNotes(orderID *uint, reason string) string {
	if reason != "" {
		return reason
	}
	if orderID != nil {
		return fmt.Sprintf("Estorno - Pedido #%d", *orderID)
	}
	return "Estorno"
}
