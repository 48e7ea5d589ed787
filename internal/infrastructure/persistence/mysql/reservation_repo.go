package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/xiebiao/shopstock/internal/domain/stock"
	apperrors "github.com/xiebiao/shopstock/pkg/errors"
)

// reservationRepository 库存预留仓储实现(MySQL)
// 设计说明:
// 1. "生效"不是状态列而是查询条件：converted_at IS NULL AND expires_at > now
// 2. MarkConverted用条件UPDATE的影响行数做一次性判定（并发安全）
// 3. 释放走硬删除，Delete同样返回影响行数供调用方判断竞争结果
type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository 创建库存预留仓储
func NewReservationRepository(db *gorm.DB) stock.ReservationRepository {
	return &reservationRepository{db: db}
}

// Create 创建预留记录
func (r *reservationRepository) Create(ctx context.Context, res *stock.StockReservation) error {
	model := toReservationModel(res)

	if err := r.getDB(ctx).Create(model).Error; err != nil {
		return apperrors.Wrap(err, "创建库存预留失败")
	}

	res.ID = model.ID
	res.CreatedAt = model.CreatedAt
	res.UpdatedAt = model.UpdatedAt

	return nil
}

// FindByID 根据ID查找预留
func (r *reservationRepository) FindByID(ctx context.Context, id uint) (*stock.StockReservation, error) {
	var model StockReservationModel
	err := r.getDB(ctx).First(&model, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, stock.ErrReservationNotFound
		}
		return nil, apperrors.Wrap(err, "查询库存预留失败")
	}

	return toReservationEntity(&model), nil
}

// SumActiveQuantity 统计某库存对象当前生效预留的数量总和
// COALESCE保证没有预留时返回0而不是NULL
func (r *reservationRepository) SumActiveQuantity(ctx context.Context, ref stock.StockableRef, now time.Time) (int, error) {
	var sum int
	err := r.getDB(ctx).Model(&StockReservationModel{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("stockable_type = ? AND stockable_id = ?", string(ref.Type), ref.ID).
		Where("converted_at IS NULL AND expires_at > ?", now).
		Scan(&sum).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "统计生效预留失败")
	}

	return sum, nil
}

// ListActiveByCart 查询某购物车的全部生效预留
func (r *reservationRepository) ListActiveByCart(ctx context.Context, cartID string, now time.Time) ([]*stock.StockReservation, error) {
	var models []StockReservationModel

	err := r.getDB(ctx).
		Where("cart_id = ?", cartID).
		Where("converted_at IS NULL AND expires_at > ?", now).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询购物车预留失败")
	}

	return toReservationEntities(models), nil
}

// ListExpired 批量查询已过期预留
// limit限制单批数量，清扫任务按批处理避免长事务
func (r *reservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*stock.StockReservation, error) {
	var models []StockReservationModel

	err := r.getDB(ctx).
		Where("converted_at IS NULL AND expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询过期预留失败")
	}

	return toReservationEntities(models), nil
}

// MarkConverted 条件式标记转化(一次性语义)
// 教学要点:
// 1. UPDATE ... WHERE id=? AND converted_at IS NULL AND expires_at > ?
//    并发调用时只有一个会话的影响行数为1
// 2. 返回false不是错误：预留已转化/已过期/不存在，调用方据此决定是否补扣
func (r *reservationRepository) MarkConverted(ctx context.Context, id uint, now time.Time) (bool, error) {
	result := r.getDB(ctx).Model(&StockReservationModel{}).
		Where("id = ? AND converted_at IS NULL AND expires_at > ?", id, now).
		Update("converted_at", now)

	if result.Error != nil {
		return false, apperrors.Wrap(result.Error, "标记预留转化失败")
	}

	return result.RowsAffected > 0, nil
}

// Delete 硬删除预留记录
// 返回false表示记录已不存在(与清扫任务竞争时视为成功)
func (r *reservationRepository) Delete(ctx context.Context, id uint) (bool, error) {
	result := r.getDB(ctx).Delete(&StockReservationModel{}, id)

	if result.Error != nil {
		return false, apperrors.Wrap(result.Error, "删除库存预留失败")
	}

	return result.RowsAffected > 0, nil
}

// UpdateExpiry 更新过期时间(延长预留,不产生流水)
func (r *reservationRepository) UpdateExpiry(ctx context.Context, id uint, expiresAt time.Time) error {
	result := r.getDB(ctx).Model(&StockReservationModel{}).
		Where("id = ?", id).
		Update("expires_at", expiresAt)

	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新预留过期时间失败")
	}

	if result.RowsAffected == 0 {
		return stock.ErrReservationNotFound
	}

	return nil
}

// =========================================
// 辅助函数:模型转换
// =========================================

// toReservationModel 领域实体 → GORM模型
func toReservationModel(res *stock.StockReservation) *StockReservationModel {
	return &StockReservationModel{
		ID:            res.ID,
		StockableType: string(res.Stockable.Type),
		StockableID:   res.Stockable.ID,
		Quantity:      res.Quantity,
		CartID:        res.CartID,
		ExpiresAt:     res.ExpiresAt,
		ConvertedAt:   res.ConvertedAt,
	}
}

// toReservationEntity GORM模型 → 领域实体
func toReservationEntity(model *StockReservationModel) *stock.StockReservation {
	return &stock.StockReservation{
		ID:          model.ID,
		Stockable:   stock.NewStockableRef(stock.StockableType(model.StockableType), model.StockableID),
		Quantity:    model.Quantity,
		CartID:      model.CartID,
		ExpiresAt:   model.ExpiresAt,
		ConvertedAt: model.ConvertedAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toReservationEntities(models []StockReservationModel) []*stock.StockReservation {
	reservations := make([]*stock.StockReservation, len(models))
	for i := range models {
		reservations[i] = toReservationEntity(&models[i])
	}
	return reservations
}

// getDB 从context获取事务DB,如果没有则使用默认DB
func (r *reservationRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value("tx").(*gorm.DB); ok {
		return tx
	}
	return r.db
}
