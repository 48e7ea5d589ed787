package stock

import "errors"

// 领域错误定义
//
// 教学要点：
// 1. 库存错误分类
//    - 参数错误（非法类型、非法数量）
//    - 业务错误（库存不足）
//    - 资源错误（库存对象/预留不存在）
// 2. ErrInsufficientStock是唯一需要调用方感知的业务错误：
//    负库存保护被触发时返回，不在引擎内部重试
// 3. 预留处于不可操作状态（已转化、已过期、对象不匹配）时
//    静默跳过而不报错——这是幂等设计，不是吞错误

var (
	// 参数错误
	ErrInvalidStockableType = errors.New("无效的库存对象类型")
	ErrInvalidMovementType  = errors.New("无效的流水类型")
	ErrInvalidQuantity      = errors.New("无效的数量")

	// 业务错误
	ErrInsufficientStock = errors.New("库存不足")

	// 资源错误
	ErrStockableNotFound   = errors.New("库存对象不存在")
	ErrReservationNotFound = errors.New("预留记录不存在")

	// 一致性错误
	ErrInconsistentSnapshot = errors.New("流水前后快照不一致")
)
