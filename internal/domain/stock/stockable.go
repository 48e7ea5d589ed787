package stock

// StockableType 库存对象类型（多态判别符）
//
// 设计说明：
// 1. 库存引擎同时管理"简单商品"和"商品变体"（SKU）两种库存载体
// 2. 用(类型, ID)二元组定位一个库存对象，仓储层负责把类型映射到对应的表
// 3. 领域层只认StockableRef，不关心底层存储在哪张表
type StockableType string

const (
	// StockableProduct 简单商品（products表）
	StockableProduct StockableType = "product"

	// StockableVariant 商品变体（product_variants表）
	StockableVariant StockableType = "variant"
)

// Valid 判断类型是否合法
func (t StockableType) Valid() bool {
	return t == StockableProduct || t == StockableVariant
}

// String 类型转字符串（便于日志）
func (t StockableType) String() string {
	return string(t)
}

// StockableRef 库存对象引用
// 教学要点：用值类型做标识，可直接作为map key、可比较
type StockableRef struct {
	Type StockableType
	ID   uint
}

// NewStockableRef 创建库存对象引用
func NewStockableRef(t StockableType, id uint) StockableRef {
	return StockableRef{Type: t, ID: id}
}

// StockItem 库存对象的库存视图（领域模型）
//
// 设计说明：
// 1. 商品/变体的目录属性（名称、价格等）由商品管理模块维护，不在本引擎范围内
// 2. 本引擎只读写库存相关字段，Quantity是唯一会被本引擎修改的共享状态
// 3. Quantity只允许通过库存服务的事务原语修改，其他代码路径禁止直接写
type StockItem struct {
	Ref StockableRef

	// Quantity 当前库存数量
	// 开启负库存许可或允许缺货下单时可能为负数
	Quantity int

	// ManageStock 是否启用库存管理
	// false表示该商品库存视为无限（不做可用性校验）
	ManageStock bool

	// AllowBackorders 是否允许缺货下单
	// true表示库存不足不阻塞销售（库存可被扣成负数）
	AllowBackorders bool

	// LowStockThreshold 低库存告警阈值
	// nil表示使用全局默认阈值
	LowStockThreshold *int

	// NotifyLowStock 是否开启低库存通知
	NotifyLowStock bool
}

// EffectiveThreshold 解析生效的低库存阈值
// 业务规则：商品自身阈值优先，未设置时回退到全局默认值
func (i *StockItem) EffectiveThreshold(defaultThreshold int) int {
	if i.LowStockThreshold != nil {
		return *i.LowStockThreshold
	}
	return defaultThreshold
}

// IsLowStock 判断是否处于低库存（需要告警）
func (i *StockItem) IsLowStock(threshold int) bool {
	return i.Quantity <= threshold
}

// IsOutOfStock 判断是否缺货
func (i *StockItem) IsOutOfStock() bool {
	return i.Quantity <= 0
}

// GuardEnforced 判断负库存保护是否对该商品生效
// 业务规则：
// - 未启用库存管理 ⇒ 不保护（库存视为无限）
// - 允许缺货下单 ⇒ 不保护（可以扣成负数）
// - 全局允许负库存 ⇒ 不保护
func (i *StockItem) GuardEnforced(allowNegativeGlobal bool) bool {
	if !i.ManageStock {
		return false
	}
	if i.AllowBackorders {
		return false
	}
	return !allowNegativeGlobal
}
