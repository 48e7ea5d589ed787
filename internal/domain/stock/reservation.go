package stock

import "time"

// ReservationState 预留的派生状态（计算得出，不落库）
//
// 教学要点：
// 1. 状态不存储，由converted_at和expires_at两个字段推导
//    - 避免"状态字段"与时间字段不一致的双写问题
//    - 过期是时间的自然流逝，不需要额外的状态机跳转
// 2. Converted是终态：一旦转化为销售，永不再参与释放或二次转化
type ReservationState string

const (
	// ReservationActive 生效中：未转化且未过期
	ReservationActive ReservationState = "active"

	// ReservationExpired 已过期：未转化且expires_at已过
	ReservationExpired ReservationState = "expired"

	// ReservationConverted 已转化：converted_at非空（终态，与expires_at无关）
	ReservationConverted ReservationState = "converted"
)

// StockReservation 库存预留（带时限的可用量占用）
//
// 设计说明：
// 1. 预留只占用"可用量"，不触碰stock_quantity本身
// 2. 生命周期：创建（加购） → 释放（手动/过期清扫，硬删除）或 转化（销售确认，永久保留）
// 3. CartID是可选的关联键，用于整车释放
type StockReservation struct {
	ID uint

	Stockable StockableRef

	// Quantity 预留数量（正整数）
	Quantity int

	// CartID 购物车关联键（可选）
	CartID *string

	// ExpiresAt 过期时间（创建时 = now + 配置的TTL）
	ExpiresAt time.Time

	// ConvertedAt 转化时间（只会被设置一次，标记预留已被确认销售消费）
	ConvertedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewReservation 创建库存预留（工厂方法）
func NewReservation(ref StockableRef, quantity int, cartID *string, ttl time.Duration) *StockReservation {
	now := time.Now()
	return &StockReservation{
		Stockable: ref,
		Quantity:  quantity,
		CartID:    cartID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// State 计算当前派生状态
func (r *StockReservation) State(now time.Time) ReservationState {
	if r.ConvertedAt != nil {
		return ReservationConverted
	}
	if !r.ExpiresAt.After(now) {
		return ReservationExpired
	}
	return ReservationActive
}

// IsActive 生效中：未转化且未过期
func (r *StockReservation) IsActive(now time.Time) bool {
	return r.State(now) == ReservationActive
}

// IsExpired 已过期：未转化且已过expires_at
func (r *StockReservation) IsExpired(now time.Time) bool {
	return r.State(now) == ReservationExpired
}

// IsConverted 已转化（终态）
func (r *StockReservation) IsConverted() bool {
	return r.ConvertedAt != nil
}

// Matches 判断预留是否属于指定库存对象
// 用于销售确认时校验预留与销售对象一致（不一致则跳过转化）
func (r *StockReservation) Matches(ref StockableRef) bool {
	return r.Stockable == ref
}
