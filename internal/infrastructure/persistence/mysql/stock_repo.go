package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/shopstock/internal/domain/stock"
	apperrors "github.com/xiebiao/shopstock/pkg/errors"
)

// stockItemRepository 库存对象仓储实现(MySQL)
// 设计说明:
// 1. 实现domain/stock/repository.go定义的ItemRepository接口
// 2. 多态解析：StockableType → 对应的表（products / product_variants）
// 3. 两张表的库存字段完全同构，用统一的行结构扫描，避免重复两套查询代码
type stockItemRepository struct {
	db *gorm.DB
}

// NewStockItemRepository 创建库存对象仓储
func NewStockItemRepository(db *gorm.DB) stock.ItemRepository {
	return &stockItemRepository{db: db}
}

// stockRow 库存字段的统一扫描结构
// products和product_variants的库存列同名，Scan时共用
type stockRow struct {
	ID                uint
	StockQuantity     int
	ManageStock       bool
	AllowBackorders   bool
	LowStockThreshold *int
	NotifyLowStock    bool
}

// tableFor 多态解析：库存对象类型 → 表名
func tableFor(t stock.StockableType) (string, error) {
	switch t {
	case stock.StockableProduct:
		return ProductModel{}.TableName(), nil
	case stock.StockableVariant:
		return ProductVariantModel{}.TableName(), nil
	default:
		return "", stock.ErrInvalidStockableType
	}
}

// Get 读取库存视图(无锁)
func (r *stockItemRepository) Get(ctx context.Context, ref stock.StockableRef) (*stock.StockItem, error) {
	table, err := tableFor(ref.Type)
	if err != nil {
		return nil, err
	}

	var row stockRow
	err = r.getDB(ctx).Table(table).
		Select("id, stock_quantity, manage_stock, allow_backorders, low_stock_threshold, notify_low_stock").
		Where("id = ? AND deleted_at IS NULL", ref.ID).
		Take(&row).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, stock.ErrStockableNotFound
		}
		return nil, apperrors.Wrap(err, "查询库存对象失败")
	}

	return toStockItem(ref, &row), nil
}

// LockForUpdate 悲观锁读取库存视图
// 教学要点:
// 1. SELECT FOR UPDATE锁定行，锁在事务提交/回滚时释放
// 2. 必须使用getDB(ctx)从context获取事务DB，否则锁不在事务内、立即失效
func (r *stockItemRepository) LockForUpdate(ctx context.Context, ref stock.StockableRef) (*stock.StockItem, error) {
	table, err := tableFor(ref.Type)
	if err != nil {
		return nil, err
	}

	var row stockRow
	err = r.getDB(ctx).Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id, stock_quantity, manage_stock, allow_backorders, low_stock_threshold, notify_low_stock").
		Where("id = ? AND deleted_at IS NULL", ref.ID).
		Take(&row).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, stock.ErrStockableNotFound
		}
		return nil, apperrors.Wrap(err, "锁定库存对象失败")
	}

	return toStockItem(ref, &row), nil
}

// UpdateQuantity 写入新的库存数量
// 只允许库存服务在持有行锁的事务内调用
func (r *stockItemRepository) UpdateQuantity(ctx context.Context, ref stock.StockableRef, quantity int) error {
	table, err := tableFor(ref.Type)
	if err != nil {
		return err
	}

	result := r.getDB(ctx).Table(table).
		Where("id = ? AND deleted_at IS NULL", ref.ID).
		Update("stock_quantity", quantity)

	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新库存数量失败")
	}

	if result.RowsAffected == 0 {
		return stock.ErrStockableNotFound
	}

	return nil
}

// toStockItem 扫描行 → 领域模型
func toStockItem(ref stock.StockableRef, row *stockRow) *stock.StockItem {
	return &stock.StockItem{
		Ref:               ref,
		Quantity:          row.StockQuantity,
		ManageStock:       row.ManageStock,
		AllowBackorders:   row.AllowBackorders,
		LowStockThreshold: row.LowStockThreshold,
		NotifyLowStock:    row.NotifyLowStock,
	}
}

// getDB 从context获取事务DB,如果没有则使用默认DB
func (r *stockItemRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value("tx").(*gorm.DB); ok {
		return tx
	}
	return r.db
}
