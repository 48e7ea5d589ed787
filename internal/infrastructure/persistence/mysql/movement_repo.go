package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/xiebiao/shopstock/internal/domain/stock"
	apperrors "github.com/xiebiao/shopstock/pkg/errors"
)

// movementRepository 库存流水仓储实现(MySQL)
// 设计说明:
// 1. 流水只追加：只实现Create和查询，没有Update/Delete
// 2. 负责domain实体与GORM模型之间的转换
type movementRepository struct {
	db *gorm.DB
}

// NewMovementRepository 创建库存流水仓储
func NewMovementRepository(db *gorm.DB) stock.MovementRepository {
	return &movementRepository{db: db}
}

// Create 追加一条流水
// 必须与触发它的库存变更在同一事务中（通过context传递事务DB）
func (r *movementRepository) Create(ctx context.Context, m *stock.StockMovement) error {
	model := toMovementModel(m)

	if err := r.getDB(ctx).Create(model).Error; err != nil {
		return apperrors.Wrap(err, "写入库存流水失败")
	}

	// 回填自增ID和创建时间
	m.ID = model.ID
	m.CreatedAt = model.CreatedAt

	return nil
}

// ListByStockable 分页查询某库存对象的流水(按创建时间倒序)
func (r *movementRepository) ListByStockable(ctx context.Context, ref stock.StockableRef, page, pageSize int) ([]*stock.StockMovement, int64, error) {
	var models []StockMovementModel
	var total int64

	query := r.getDB(ctx).Model(&StockMovementModel{}).
		Where("stockable_type = ? AND stockable_id = ?", string(ref.Type), ref.ID)

	// 查询总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询流水总数失败")
	}

	// 分页(ID倒序兜底，保证同一秒内的流水顺序稳定)
	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").
		Limit(pageSize).Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "查询流水列表失败")
	}

	movements := make([]*stock.StockMovement, len(models))
	for i := range models {
		movements[i] = toMovementEntity(&models[i])
	}

	return movements, total, nil
}

// ListByReference 查询关联某业务对象的流水
func (r *movementRepository) ListByReference(ctx context.Context, refType stock.ReferenceType, refID uint) ([]*stock.StockMovement, error) {
	var models []StockMovementModel

	err := r.getDB(ctx).
		Where("reference_type = ? AND reference_id = ?", string(refType), refID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询关联流水失败")
	}

	movements := make([]*stock.StockMovement, len(models))
	for i := range models {
		movements[i] = toMovementEntity(&models[i])
	}

	return movements, nil
}

// =========================================
// 辅助函数:模型转换
// =========================================

// toMovementModel 领域实体 → GORM模型
func toMovementModel(m *stock.StockMovement) *StockMovementModel {
	model := &StockMovementModel{
		StockableType:  string(m.Stockable.Type),
		StockableID:    m.Stockable.ID,
		MovementType:   string(m.Type),
		Quantity:       m.Quantity,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		ReferenceID:    m.ReferenceID,
		Notes:          m.Notes,
		CreatedBy:      m.CreatedBy,
	}
	if m.ReferenceType != nil {
		s := string(*m.ReferenceType)
		model.ReferenceType = &s
	}
	return model
}

// toMovementEntity GORM模型 → 领域实体
func toMovementEntity(model *StockMovementModel) *stock.StockMovement {
	m := &stock.StockMovement{
		ID:             model.ID,
		Stockable:      stock.NewStockableRef(stock.StockableType(model.StockableType), model.StockableID),
		Type:           stock.MovementType(model.MovementType),
		Quantity:       model.Quantity,
		QuantityBefore: model.QuantityBefore,
		QuantityAfter:  model.QuantityAfter,
		ReferenceID:    model.ReferenceID,
		Notes:          model.Notes,
		CreatedBy:      model.CreatedBy,
		CreatedAt:      model.CreatedAt,
	}
	if model.ReferenceType != nil {
		t := stock.ReferenceType(*model.ReferenceType)
		m.ReferenceType = &t
	}
	return m
}

// getDB 从context获取事务DB,如果没有则使用默认DB
func (r *movementRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value("tx").(*gorm.DB); ok {
		return tx
	}
	return r.db
}
