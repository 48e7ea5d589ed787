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

// ReservationService 库存预留服务
// 教学要点:
// 1. 预留只占用"可用量",不触碰stock_quantity(真正扣减发生在销售确认)
// 2. 可用量 = max(0, 库存数量 - 生效预留数量之和)
// 3. 预留处于不可操作状态时静默跳过(幂等设计,便于调用方重试)
type ReservationService struct {
	items        stock.ItemRepository
	movements    stock.MovementRepository
	reservations stock.ReservationRepository
	txManager    TxManager
	cache        AvailabilityCache // 可为nil(不启用缓存)
	alerts       AlertPublisher    // 可为nil(不启用告警)
	cfg          Config
}

// NewReservationService 创建预留服务
func NewReservationService(
	items stock.ItemRepository,
	movements stock.MovementRepository,
	reservations stock.ReservationRepository,
	txManager TxManager,
	cache AvailabilityCache,
	alerts AlertPublisher,
	cfg Config,
) *ReservationService {
	return &ReservationService{
		items:        items,
		movements:    movements,
		reservations: reservations,
		txManager:    txManager,
		cache:        cache,
		alerts:       alerts,
		cfg:          cfg,
	}
}

// Reserve 创建库存预留(加购场景)
// 教学重点:防止超卖预留的完整流程
//
// 核心问题:可用量竞争
// 场景:可用量10个,100人同时加购
// 正确实现:
//  1. SELECT FOR UPDATE 锁定库存行(把可用量检查串行化)
//  2. 统计生效预留,计算可用量
//  3. 可用量不足 → ErrInsufficientStock(什么都不写)
//  4. 创建预留 + 追加预留流水
//  5. COMMIT释放锁
func (s *ReservationService) Reserve(ctx context.Context, ref stock.StockableRef, quantity int, cartID *string) (*stock.StockReservation, error) {
	// 1. 参数校验
	if !ref.Type.Valid() {
		return nil, stock.ErrInvalidStockableType
	}
	if quantity <= 0 {
		return nil, stock.ErrInvalidQuantity
	}

	var reservation *stock.StockReservation
	err := s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		// ========================================
		// 步骤1:锁定库存行(串行化可用量检查)
		// ========================================
		item, err := s.items.LockForUpdate(txCtx, ref)
		if err != nil {
			return err
		}

		// ========================================
		// 步骤2:可用量检查
		// ========================================
		// 未启用库存管理/允许缺货下单/全局放开负库存时跳过检查
		if item.GuardEnforced(s.cfg.AllowNegativeStock) {
			reserved, err := s.reservations.SumActiveQuantity(txCtx, ref, time.Now())
			if err != nil {
				return err
			}

			available := item.Quantity - reserved
			if quantity > available {
				metrics.IncInsufficientStock()
				return stock.ErrInsufficientStock
			}
		}

		// ========================================
		// 步骤3:创建预留记录
		// ========================================
		reservation = stock.NewReservation(ref, quantity, cartID, s.cfg.ReservationTTL)
		if err := s.reservations.Create(txCtx, reservation); err != nil {
			return err
		}

		// ========================================
		// 步骤4:追加预留流水(不改库存数量,前后快照相同)
		// ========================================
		movement := stock.NewReservationMovement(ref, quantity, item.Quantity,
			reservation.ID, reservationNotes(cartID))
		return s.movements.Create(txCtx, movement)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncReservationCreated()
	metrics.IncMovement(stock.MovementReservation.String())
	s.invalidateCache(ctx, ref)

	return reservation, nil
}

// Release 手动释放预留
// 预留不存在或已转化时静默跳过(不报错)
func (s *ReservationService) Release(ctx context.Context, reservationID uint) error {
	res, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, stock.ErrReservationNotFound) {
			return nil
		}
		return err
	}

	released, err := s.releaseReservation(ctx, res)
	if err != nil {
		return err
	}
	if released {
		metrics.IncReservationReleased("manual")
	}
	return nil
}

// ReleaseByCart 释放某购物车的全部生效预留(清空购物车/会话结束)
// 返回实际释放的条数
func (s *ReservationService) ReleaseByCart(ctx context.Context, cartID string) (int, error) {
	reservations, err := s.reservations.ListActiveByCart(ctx, cartID, time.Now())
	if err != nil {
		return 0, err
	}

	// 逐条释放,每条一个短事务(避免整车长事务压锁)
	released := 0
	for _, res := range reservations {
		ok, err := s.releaseReservation(ctx, res)
		if err != nil {
			return released, err
		}
		if ok {
			released++
			metrics.IncReservationReleased("cart")
		}
	}

	return released, nil
}

// releaseReservation 释放单条预留的事务原语
// 教学要点:
// 1. 先锁库存行再条件删除,保证释放流水的快照与台账一致
// 2. 条件删除影响行数为0说明已被并发释放(清扫任务竞争),视为成功
func (s *ReservationService) releaseReservation(ctx context.Context, res *stock.StockReservation) (bool, error) {
	// 已转化的预留是终态,永不释放
	if res.IsConverted() {
		return false, nil
	}

	var released bool
	err := s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		// 1. 锁定库存行
		item, err := s.items.LockForUpdate(txCtx, res.Stockable)
		if err != nil {
			return err
		}

		// 2. 条件删除(并发竞争时只有一方成功)
		deleted, err := s.reservations.Delete(txCtx, res.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}

		// 3. 追加释放流水(归还可用量,库存数量不变)
		movement := stock.NewReservationReleaseMovement(res.Stockable, res.Quantity,
			item.Quantity, res.ID, "Reserva liberada")
		if err := s.movements.Create(txCtx, movement); err != nil {
			return err
		}

		released = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if released {
		metrics.IncMovement(stock.MovementReservationRelease.String())
		s.invalidateCache(ctx, res.Stockable)
	}
	return released, nil
}

// ConvertToSale 把预留转化为销售(结算场景)
// 教学要点:
// 1. 转化是一次性语义:条件UPDATE保证并发下只成功一次
// 2. 转化与扣减在同一事务:预留标记了但没扣库存的状态不可能出现
// 3. 预留不可转化(不存在/已转化/已过期)时无操作返回(nil, nil)
func (s *ReservationService) ConvertToSale(ctx context.Context, reservationID uint, orderID *uint) (*stock.StockMovement, error) {
	res, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, stock.ErrReservationNotFound) {
			log.Printf("预留转化: 预留#%d不存在,跳过", reservationID)
			return nil, nil
		}
		return nil, err
	}

	if !res.IsActive(time.Now()) {
		log.Printf("预留转化: 预留#%d状态为%s,跳过", res.ID, res.State(time.Now()))
		return nil, nil
	}

	var movement *stock.StockMovement
	var item *stock.StockItem
	var claimed bool
	err = s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		// 1. 条件式标记转化(一次性语义,并发下只有一方成功)
		var err error
		claimed, err = s.reservations.MarkConverted(txCtx, res.ID, time.Now())
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		// 2. 扣减库存并记账(允许缺货下单的商品会绕过负库存保护)
		movement, item, err = applyMovement(txCtx, s.items, s.movements, s.cfg,
			res.Stockable, stock.MovementSale, -res.Quantity, saleNotes(orderID), nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	// 并发竞争中落败:对方已完成转化,本次无操作
	if !claimed {
		return nil, nil
	}

	metrics.IncReservationConverted()
	metrics.IncMovement(movement.Type.String())
	s.invalidateCache(ctx, res.Stockable)
	alertLowStockIfNeeded(ctx, s.alerts, s.cfg, item)

	return movement, nil
}

// AvailableQuantity 查询当前可用量
// 教学要点:缓存只服务读路径(cache-aside),miss时回源数据库重算
func (s *ReservationService) AvailableQuantity(ctx context.Context, ref stock.StockableRef) (int, error) {
	if !ref.Type.Valid() {
		return 0, stock.ErrInvalidStockableType
	}

	// 1. 读缓存
	if s.cache != nil {
		if available, hit, err := s.cache.Get(ctx, ref); err == nil && hit {
			return available, nil
		} else if err != nil {
			// 缓存故障降级为回源,不阻塞读路径
			log.Printf("读取可用量缓存失败: %v", err)
		}
	}

	// 2. 回源:库存数量 - 生效预留之和
	item, err := s.items.Get(ctx, ref)
	if err != nil {
		return 0, err
	}

	reserved, err := s.reservations.SumActiveQuantity(ctx, ref, time.Now())
	if err != nil {
		return 0, err
	}

	// 可用量永不为负(负库存场景下对外显示0)
	available := item.Quantity - reserved
	if available < 0 {
		available = 0
	}

	// 3. 回填缓存
	if s.cache != nil {
		if err := s.cache.Set(ctx, ref, available); err != nil {
			log.Printf("写入可用量缓存失败: %v", err)
		}
	}

	return available, nil
}

// ExtendReservation 延长预留有效期
// 只改expires_at,不产生流水;已转化的预留跳过
func (s *ReservationService) ExtendReservation(ctx context.Context, reservationID uint, expiresAt time.Time) error {
	res, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return err
	}

	if res.IsConverted() {
		return nil
	}

	return s.reservations.UpdateExpiry(ctx, reservationID, expiresAt)
}

// invalidateCache 失效可用量缓存(失败只记日志)
func (s *ReservationService) invalidateCache(ctx context.Context, ref stock.StockableRef) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, ref); err != nil {
		log.Printf("失效可用量缓存失败: %v", err)
	}
}

// reservationNotes 预留流水备注
func reservationNotes(cartID *string) string {
	if cartID != nil {
		return fmt.Sprintf("Reserva - Carrinho %s", *cartID)
	}
	return "Reserva"
}
