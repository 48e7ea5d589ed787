package stock

import (
	"context"
	"time"
)

// ItemRepository 库存对象仓储接口（领域层定义）
//
// 教学要点：
// 1. 依赖倒置原则（高层定义接口，低层实现）
// 2. 多态解析发生在实现层：Type → 对应的表（products / product_variants）
// 3. LockForUpdate必须在事务内调用（SELECT FOR UPDATE），
//    事务通过context传递（见mysql.TxManager）
type ItemRepository interface {
	// Get 读取库存视图（无锁，用于只读路径）
	Get(ctx context.Context, ref StockableRef) (*StockItem, error)

	// LockForUpdate 锁定并读取库存视图（SELECT FOR UPDATE）
	// 必须在事务内调用，锁在事务提交/回滚时释放
	LockForUpdate(ctx context.Context, ref StockableRef) (*StockItem, error)

	// UpdateQuantity 写入新的库存数量
	// 只允许库存服务在持有行锁的事务内调用
	UpdateQuantity(ctx context.Context, ref StockableRef, quantity int) error
}

// MovementRepository 库存流水仓储接口
// 流水只增不改：接口刻意不提供Update/Delete
type MovementRepository interface {
	// Create 追加一条流水
	Create(ctx context.Context, m *StockMovement) error

	// ListByStockable 分页查询某库存对象的流水（按创建时间倒序）
	// 供管理后台展示和CSV导出消费
	ListByStockable(ctx context.Context, ref StockableRef, page, pageSize int) ([]*StockMovement, int64, error)

	// ListByReference 查询关联某业务对象的流水
	ListByReference(ctx context.Context, refType ReferenceType, refID uint) ([]*StockMovement, error)
}

// ReservationRepository 库存预留仓储接口
type ReservationRepository interface {
	// Create 创建预留记录
	Create(ctx context.Context, r *StockReservation) error

	// FindByID 根据ID查找预留
	FindByID(ctx context.Context, id uint) (*StockReservation, error)

	// SumActiveQuantity 统计某库存对象当前生效预留的数量总和
	// 生效 = converted_at IS NULL AND expires_at > now
	SumActiveQuantity(ctx context.Context, ref StockableRef, now time.Time) (int, error)

	// ListActiveByCart 查询某购物车的全部生效预留
	ListActiveByCart(ctx context.Context, cartID string, now time.Time) ([]*StockReservation, error)

	// ListExpired 批量查询已过期预留（converted_at IS NULL AND expires_at <= now）
	// limit限制单批数量，供清扫任务分批处理
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*StockReservation, error)

	// MarkConverted 条件式标记转化（一次性语义）
	// 执行 UPDATE ... SET converted_at = now
	//      WHERE id = ? AND converted_at IS NULL AND expires_at > now
	// 返回true表示本次调用完成了转化；false表示预留已转化/已过期/不存在
	// 教学要点：用条件UPDATE的影响行数做幂等判定，并发下也只会成功一次
	MarkConverted(ctx context.Context, id uint, now time.Time) (bool, error)

	// Delete 硬删除预留记录
	// 返回false表示记录已不存在（与清扫任务并发竞争时视为成功）
	Delete(ctx context.Context, id uint) (bool, error)

	// UpdateExpiry 更新过期时间（延长预留，不产生流水）
	UpdateExpiry(ctx context.Context, id uint, expiresAt time.Time) error
}
