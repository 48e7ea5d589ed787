package stock

import (
	"fmt"
	"time"
)

// MovementType 库存流水类型
//
// 教学要点：
// 1. 每种类型对应一条业务路径，审计时一眼能看出变更原因
// 2. Reservation/ReservationRelease是"可用量事件"，不改变Quantity本身
//    （预留只占用可用量，真正扣库存发生在销售确认时）
type MovementType string

const (
	MovementManualEntry        MovementType = "manual_entry"        // 手工入库
	MovementManualExit         MovementType = "manual_exit"         // 手工出库
	MovementAdjustment         MovementType = "adjustment"          // 库存盘点校正
	MovementSale               MovementType = "sale"                // 销售扣减
	MovementRefund             MovementType = "refund"              // 退款回补
	MovementReservation        MovementType = "reservation"         // 创建预留（占用可用量）
	MovementReservationRelease MovementType = "reservation_release" // 释放预留（归还可用量）
)

// Valid 判断流水类型是否合法
func (t MovementType) Valid() bool {
	switch t {
	case MovementManualEntry, MovementManualExit, MovementAdjustment,
		MovementSale, MovementRefund, MovementReservation, MovementReservationRelease:
		return true
	}
	return false
}

// MutatesQuantity 该类型是否真正改变库存数量
// Reservation/ReservationRelease只记录可用量变化，Quantity不动
func (t MovementType) MutatesQuantity() bool {
	return t != MovementReservation && t != MovementReservationRelease
}

// String 类型转字符串
func (t MovementType) String() string {
	return string(t)
}

// ReferenceType 流水关联对象类型（多态引用）
type ReferenceType string

const (
	// ReferenceReservation 关联到一条库存预留
	ReferenceReservation ReferenceType = "reservation"
)

// StockMovement 库存流水（只增不改的审计台账）
//
// 设计说明：
// 1. 每次库存变更必须且只产生一条流水（显式跳过记账的退款路径除外）
// 2. 记录变更前后快照：对改变数量的类型，QuantityAfter = QuantityBefore + Quantity
// 3. 流水永不更新、永不删除，是对账的唯一事实来源
// 4. Reference是可选的多态指针（如指向产生本流水的预留记录）
type StockMovement struct {
	ID uint

	Stockable StockableRef

	Type MovementType

	// Quantity 带符号的变更量（入库为正，出库/预留为负）
	Quantity int

	// QuantityBefore 变更前库存快照
	QuantityBefore int

	// QuantityAfter 变更后库存快照
	QuantityAfter int

	// ReferenceType/ReferenceID 关联业务对象（可选）
	ReferenceType *ReferenceType
	ReferenceID   *uint

	// Notes 备注（可附带订单号、操作原因）
	Notes string

	// CreatedBy 操作人ID（系统自动操作时为nil）
	CreatedBy *uint

	CreatedAt time.Time
}

// NewMovement 创建库存流水（改变数量的类型）
// 业务规则：after = before + quantity，由调用方在行锁保护下计算
func NewMovement(ref StockableRef, t MovementType, quantity, before, after int, notes string, createdBy *uint) *StockMovement {
	return &StockMovement{
		Stockable:      ref,
		Type:           t,
		Quantity:       quantity,
		QuantityBefore: before,
		QuantityAfter:  after,
		Notes:          notes,
		CreatedBy:      createdBy,
		CreatedAt:      time.Now(),
	}
}

// NewReservationMovement 创建预留流水
// 教学要点：预留不改库存数量，前后快照都记录当前库存
// Quantity记为负数（预留减少可用量），Reference指向预留记录
func NewReservationMovement(ref StockableRef, quantity, currentStock int, reservationID uint, notes string) *StockMovement {
	refType := ReferenceReservation
	resID := reservationID
	return &StockMovement{
		Stockable:      ref,
		Type:           MovementReservation,
		Quantity:       -quantity,
		QuantityBefore: currentStock,
		QuantityAfter:  currentStock,
		ReferenceType:  &refType,
		ReferenceID:    &resID,
		Notes:          notes,
		CreatedAt:      time.Now(),
	}
}

// NewReservationReleaseMovement 创建预留释放流水
// Quantity记为正数（释放归还可用量）
func NewReservationReleaseMovement(ref StockableRef, quantity, currentStock int, reservationID uint, notes string) *StockMovement {
	refType := ReferenceReservation
	resID := reservationID
	return &StockMovement{
		Stockable:      ref,
		Type:           MovementReservationRelease,
		Quantity:       quantity,
		QuantityBefore: currentStock,
		QuantityAfter:  currentStock,
		ReferenceType:  &refType,
		ReferenceID:    &resID,
		Notes:          notes,
		CreatedAt:      time.Now(),
	}
}

// Validate 校验流水一致性
func (m *StockMovement) Validate() error {
	if !m.Stockable.Type.Valid() {
		return ErrInvalidStockableType
	}
	if !m.Type.Valid() {
		return ErrInvalidMovementType
	}
	if m.Type.MutatesQuantity() && m.QuantityAfter != m.QuantityBefore+m.Quantity {
		return fmt.Errorf("%w: before=%d quantity=%d after=%d",
			ErrInconsistentSnapshot, m.QuantityBefore, m.Quantity, m.QuantityAfter)
	}
	return nil
}
