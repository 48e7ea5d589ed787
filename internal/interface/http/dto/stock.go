package dto

import (
	"time"

	"github.com/xiebiao/shopstock/internal/domain/stock"
)

// StockableURI 路径参数:库存对象定位
type StockableURI struct {
	Type string `uri:"type" binding:"required,oneof=product variant" example:"product"`
	ID   uint   `uri:"id" binding:"required,min=1" example:"1"`
}

// Ref 转换为领域引用
func (u StockableURI) Ref() stock.StockableRef {
	return stock.NewStockableRef(stock.StockableType(u.Type), u.ID)
}

// AvailabilityResponse HTTP可用量响应
type AvailabilityResponse struct {
	StockableType string `json:"stockable_type" example:"product"`
	StockableID   uint   `json:"stockable_id" example:"1"`
	Available     int    `json:"available" example:"42"`
}

// ListMovementsRequest HTTP流水列表请求
type ListMovementsRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1" example:"1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100" example:"20"`
}

// MovementItem HTTP流水列表项
type MovementItem struct {
	ID             uint   `json:"id" example:"1"`
	MovementType   string `json:"movement_type" example:"sale"`
	Quantity       int    `json:"quantity" example:"-3"`
	QuantityBefore int    `json:"quantity_before" example:"10"`
	QuantityAfter  int    `json:"quantity_after" example:"7"`
	ReferenceType  string `json:"reference_type,omitempty" example:"reservation"`
	ReferenceID    *uint  `json:"reference_id,omitempty" example:"5"`
	Notes          string `json:"notes" example:"Venda - Pedido #42"`
	CreatedBy      *uint  `json:"created_by,omitempty" example:"1"`
	CreatedAt      string `json:"created_at" example:"2024-01-15 10:30:00"`
}

// ToMovementItem 领域实体 → HTTP列表项
func ToMovementItem(m *stock.StockMovement) MovementItem {
	item := MovementItem{
		ID:             m.ID,
		MovementType:   m.Type.String(),
		Quantity:       m.Quantity,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		ReferenceID:    m.ReferenceID,
		Notes:          m.Notes,
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt.Format(time.DateTime),
	}
	if m.ReferenceType != nil {
		item.ReferenceType = string(*m.ReferenceType)
	}
	return item
}

// StockItemResponse HTTP库存视图响应
type StockItemResponse struct {
	StockableType     string `json:"stockable_type" example:"product"`
	StockableID       uint   `json:"stockable_id" example:"1"`
	Quantity          int    `json:"quantity" example:"42"`
	ManageStock       bool   `json:"manage_stock" example:"true"`
	AllowBackorders   bool   `json:"allow_backorders" example:"false"`
	LowStockThreshold *int   `json:"low_stock_threshold,omitempty" example:"5"`
	NotifyLowStock    bool   `json:"notify_low_stock" example:"true"`
}
