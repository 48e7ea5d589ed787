package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	appstock "github.com/xiebiao/shopstock/internal/application/stock"
	"github.com/xiebiao/shopstock/internal/domain/stock"
	"github.com/xiebiao/shopstock/internal/interface/http/dto"
	apperrors "github.com/xiebiao/shopstock/pkg/errors"
	"github.com/xiebiao/shopstock/pkg/response"
)

// StockHandler 库存HTTP处理器
// 设计说明:对外只暴露只读查询,所有库存变更都由内部服务通过应用层调用
type StockHandler struct {
	stocks       *appstock.StockService
	reservations *appstock.ReservationService
}

// NewStockHandler 创建库存处理器
func NewStockHandler(stocks *appstock.StockService, reservations *appstock.ReservationService) *StockHandler {
	return &StockHandler{
		stocks:       stocks,
		reservations: reservations,
	}
}

// toAppError 领域错误 → 业务错误
// 领域层的哨兵错误不携带错误码，在接口层统一翻译
func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, stock.ErrStockableNotFound):
		return apperrors.ErrStockableNotFound
	case errors.Is(err, stock.ErrReservationNotFound):
		return apperrors.ErrReservationNotFound
	case errors.Is(err, stock.ErrInsufficientStock):
		return apperrors.ErrInsufficientStock
	case errors.Is(err, stock.ErrInvalidMovementType):
		return apperrors.ErrInvalidMovement
	case errors.Is(err, stock.ErrInvalidQuantity):
		return apperrors.ErrInvalidQuantity
	case errors.Is(err, stock.ErrInvalidStockableType):
		return apperrors.ErrInvalidParams
	default:
		return apperrors.GetAppError(err)
	}
}

// GetAvailability 查询可用量
// @Summary      查询可用量
// @Description  查询某库存对象当前可售的数量(库存减去生效预留,永不为负)
// @Tags         库存
// @Produce      json
// @Param        type path string true "库存对象类型" Enums(product, variant)
// @Param        id path int true "库存对象ID"
// @Success      200 {object} response.Response{data=dto.AvailabilityResponse}
// @Failure      404 {object} response.Response "库存对象不存在"
// @Router       /api/v1/stock/{type}/{id}/availability [get]
func (h *StockHandler) GetAvailability(c *gin.Context) {
	// 1. 路径参数绑定与验证
	var uri dto.StockableURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.ErrorWithCode(c, 40900, "参数错误: "+err.Error())
		return
	}

	// 2. 调用应用层查询
	available, err := h.reservations.AvailableQuantity(c.Request.Context(), uri.Ref())
	if err != nil {
		response.Error(c, toAppError(err))
		return
	}

	// 3. 构建HTTP响应
	response.Success(c, &dto.AvailabilityResponse{
		StockableType: uri.Type,
		StockableID:   uri.ID,
		Available:     available,
	})
}

// GetItem 查询库存视图
// @Summary      查询库存视图
// @Description  查询某库存对象的库存数量与策略配置
// @Tags         库存
// @Produce      json
// @Param        type path string true "库存对象类型" Enums(product, variant)
// @Param        id path int true "库存对象ID"
// @Success      200 {object} response.Response{data=dto.StockItemResponse}
// @Failure      404 {object} response.Response "库存对象不存在"
// @Router       /api/v1/stock/{type}/{id} [get]
func (h *StockHandler) GetItem(c *gin.Context) {
	var uri dto.StockableURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.ErrorWithCode(c, 40900, "参数错误: "+err.Error())
		return
	}

	item, err := h.stocks.GetItem(c.Request.Context(), uri.Ref())
	if err != nil {
		response.Error(c, toAppError(err))
		return
	}

	response.Success(c, &dto.StockItemResponse{
		StockableType:     uri.Type,
		StockableID:       uri.ID,
		Quantity:          item.Quantity,
		ManageStock:       item.ManageStock,
		AllowBackorders:   item.AllowBackorders,
		LowStockThreshold: item.LowStockThreshold,
		NotifyLowStock:    item.NotifyLowStock,
	})
}

// ListMovements 分页查询库存流水
// @Summary      查询库存流水
// @Description  分页查询某库存对象的变更台账(按时间倒序)
// @Tags         库存
// @Produce      json
// @Param        type path string true "库存对象类型" Enums(product, variant)
// @Param        id path int true "库存对象ID"
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页大小" default(20)
// @Success      200 {object} response.Response{data=response.PageData}
// @Failure      400 {object} response.Response "参数错误"
// @Router       /api/v1/stock/{type}/{id}/movements [get]
func (h *StockHandler) ListMovements(c *gin.Context) {
	// 1. 参数绑定与验证
	var uri dto.StockableURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.ErrorWithCode(c, 40900, "参数错误: "+err.Error())
		return
	}

	var req dto.ListMovementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorWithCode(c, 40900, "参数错误: "+err.Error())
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	// 2. 调用应用层查询
	movements, total, err := h.stocks.MovementHistory(c.Request.Context(), uri.Ref(), req.Page, req.PageSize)
	if err != nil {
		response.Error(c, toAppError(err))
		return
	}

	// 3. 构建分页响应
	items := make([]dto.MovementItem, len(movements))
	for i, m := range movements {
		items[i] = dto.ToMovementItem(m)
	}

	response.SuccessWithPage(c, items, total, req.Page, req.PageSize)
}
