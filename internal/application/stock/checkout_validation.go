package stock

import (
	"context"
	"errors"
	"log"

	"github.com/xiebiao/shopstock/internal/domain/stock"
	"github.com/xiebiao/shopstock/pkg/metrics"
)

// CheckoutValidator 结算前的购物车校验
//
// 设计说明:
// 1. 纯只读:不加锁、不创建预留、不改任何状态
// 2. 校验通过不是承诺——真正的扣减在销售确认时仍会持锁复核,
//    这里只是给结算页一个"大概率能买到"的快照
type CheckoutValidator struct {
	items   stock.ItemRepository
	service *ReservationService
}

// NewCheckoutValidator 创建结算校验器
func NewCheckoutValidator(items stock.ItemRepository, service *ReservationService) *CheckoutValidator {
	return &CheckoutValidator{items: items, service: service}
}

// CheckoutItem 待校验的购物车条目
type CheckoutItem struct {
	Stockable stock.StockableRef
	Quantity  int
}

// ItemValidation 单条目的校验结果
type ItemValidation struct {
	Stockable stock.StockableRef `json:"stockable"`

	// Requested 请求数量
	Requested int `json:"requested"`

	// Available 当前可用量
	Available int `json:"available"`

	// IsAvailable 请求数量能否全量满足
	IsAvailable bool `json:"is_available"`

	// Shortage 缺口数量(满足时为0)
	Shortage int `json:"shortage"`

	// Fulfillable 当前最多能满足的数量
	Fulfillable int `json:"fulfillable"`

	// CanPartiallyFulfill 不能全量满足但可部分满足
	CanPartiallyFulfill bool `json:"can_partially_fulfill"`
}

// CartValidation 整车校验结果
type CartValidation struct {
	// Valid 所有条目都能全量满足
	Valid bool `json:"valid"`

	Items []ItemValidation `json:"items"`
}

// Validate 校验整车条目的可满足性
// 教学要点:
// 1. 库存对象不存在按"不可满足"处理并记日志,不中断整车校验
// 2. 未启用库存管理/允许缺货下单的条目视为总能满足
func (v *CheckoutValidator) Validate(ctx context.Context, items []CheckoutItem) (*CartValidation, error) {
	result := &CartValidation{
		Valid: true,
		Items: make([]ItemValidation, 0, len(items)),
	}

	for _, ci := range items {
		iv, err := v.validateItem(ctx, ci)
		if err != nil {
			return nil, err
		}

		if !iv.IsAvailable {
			result.Valid = false
		}
		result.Items = append(result.Items, *iv)
	}

	metrics.IncCheckoutValidation(result.Valid)

	// 只在校验失败时记日志
	if !result.Valid {
		for _, iv := range result.Items {
			if iv.IsAvailable {
				continue
			}
			log.Printf("结算校验失败: %s#%d 请求%d 可用%d 缺口%d",
				iv.Stockable.Type, iv.Stockable.ID, iv.Requested, iv.Available, iv.Shortage)
		}
	}

	return result, nil
}

// validateItem 校验单个条目
func (v *CheckoutValidator) validateItem(ctx context.Context, ci CheckoutItem) (*ItemValidation, error) {
	iv := &ItemValidation{
		Stockable: ci.Stockable,
		Requested: ci.Quantity,
	}

	item, err := v.items.Get(ctx, ci.Stockable)
	if err != nil {
		// 库存对象不存在:按不可满足处理,不中断整车校验
		if errors.Is(err, stock.ErrStockableNotFound) {
			log.Printf("结算校验: 库存对象%s#%d不存在", ci.Stockable.Type, ci.Stockable.ID)
			iv.Shortage = ci.Quantity
			return iv, nil
		}
		return nil, err
	}

	// 未启用库存管理/允许缺货下单:视为总能满足
	if !item.ManageStock || item.AllowBackorders {
		iv.Available = ci.Quantity
		iv.IsAvailable = true
		iv.Fulfillable = ci.Quantity
		return iv, nil
	}

	available, err := v.service.AvailableQuantity(ctx, ci.Stockable)
	if err != nil {
		return nil, err
	}

	iv.Available = available
	iv.IsAvailable = ci.Quantity <= available
	if !iv.IsAvailable {
		iv.Shortage = ci.Quantity - available
	}
	iv.Fulfillable = ci.Quantity
	if available < ci.Quantity {
		iv.Fulfillable = available
	}
	iv.CanPartiallyFulfill = !iv.IsAvailable && available > 0

	return iv, nil
}
