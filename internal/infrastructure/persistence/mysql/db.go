package mysql

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xiebiao/shopstock/internal/infrastructure/config"
)

// NewDB 创建数据库连接
// 设计说明：
// 1. 使用GORM v2作为ORM框架
// 2. 配置连接池参数（MaxOpenConns、MaxIdleConns、ConnMaxLifetime）
// 3. 开发环境开启SQL日志，生产环境关闭
// 4. 自动迁移表结构（AutoMigrate）
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	// 1. 构建DSN连接字符串
	dsn := cfg.Database.DSN()

	// 2. 配置GORM日志
	logLevel := logger.Silent
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info // 开发环境打印SQL
	}

	// 3. 连接数据库
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 4. 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取SQL DB失败: %w", err)
	}

	// 最大打开连接数（建议：CPU核数 * 2 + 磁盘数量）
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	// 最大空闲连接数（建议：MaxOpenConns的1/4到1/2）
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	// 连接最大存活时间（防止数据库主动断开连接）
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// 5. 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	log.Println("✓ 数据库连接成功")

	// 6. 自动迁移表结构（开发环境）
	// 注意：生产环境应使用专门的迁移工具（如golang-migrate）
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	return db, nil
}

// autoMigrate 自动迁移表结构
// 注意：AutoMigrate只会创建表、添加字段，不会删除或修改现有字段
func autoMigrate(db *gorm.DB) error {
	// 这里需要使用GORM的模型定义（带tag），不是domain层的实体
	return db.AutoMigrate(
		&ProductModel{},
		&ProductVariantModel{},
		&StockMovementModel{},
		&StockReservationModel{},
	)
}

// ProductModel GORM商品模型
// 设计说明：
// 1. 这是infrastructure层的数据模型，包含GORM tag
// 2. domain/stock/stockable.go是领域实体，不依赖GORM
// 3. Repository负责两者之间的转换
// 4. 库存引擎只关心库存相关字段，商品目录属性（价格、描述等）归商品服务管
type ProductModel struct {
	ID                uint           `gorm:"primaryKey"`
	SKU               string         `gorm:"uniqueIndex;size:64;not null;comment:商品编码"`
	Name              string         `gorm:"size:200;not null;comment:商品名称"`
	StockQuantity     int            `gorm:"default:0;not null;comment:库存数量"`
	ManageStock       bool           `gorm:"default:true;not null;comment:是否启用库存管理"`
	AllowBackorders   bool           `gorm:"default:false;not null;comment:是否允许超卖"`
	LowStockThreshold *int           `gorm:"comment:低库存阈值(NULL时用全局默认)"`
	NotifyLowStock    bool           `gorm:"default:false;not null;comment:低库存是否告警"`
	CreatedAt         time.Time      `gorm:"comment:创建时间"`
	UpdatedAt         time.Time      `gorm:"comment:更新时间"`
	DeletedAt         gorm.DeletedAt `gorm:"index;comment:删除时间(软删除)"`
}

// TableName 指定表名
func (ProductModel) TableName() string {
	return "products"
}

// ProductVariantModel GORM商品变体模型
// 教学要点:
// 1. 变体与商品库存字段完全同构，各自独立持有库存
// 2. 流水表通过(stockable_type, stockable_id)多态引用两张表
type ProductVariantModel struct {
	ID                uint           `gorm:"primaryKey"`
	ProductID         uint           `gorm:"index;not null;comment:所属商品ID"`
	SKU               string         `gorm:"uniqueIndex;size:64;not null;comment:变体编码"`
	Name              string         `gorm:"size:200;not null;comment:变体名称"`
	StockQuantity     int            `gorm:"default:0;not null;comment:库存数量"`
	ManageStock       bool           `gorm:"default:true;not null;comment:是否启用库存管理"`
	AllowBackorders   bool           `gorm:"default:false;not null;comment:是否允许超卖"`
	LowStockThreshold *int           `gorm:"comment:低库存阈值(NULL时用全局默认)"`
	NotifyLowStock    bool           `gorm:"default:false;not null;comment:低库存是否告警"`
	CreatedAt         time.Time      `gorm:"comment:创建时间"`
	UpdatedAt         time.Time      `gorm:"comment:更新时间"`
	DeletedAt         gorm.DeletedAt `gorm:"index;comment:删除时间(软删除)"`
}

// TableName 指定表名
func (ProductVariantModel) TableName() string {
	return "product_variants"
}

// StockMovementModel GORM库存流水模型
// 教学要点:
// 1. 只追加不修改：没有UpdatedAt，也没有软删除
// 2. QuantityBefore/QuantityAfter是变更时的快照，用于审计对账
// 3. (stockable_type, stockable_id)复合索引支撑按对象查历史
// 4. (reference_type, reference_id)关联预留等业务对象
type StockMovementModel struct {
	ID             uint      `gorm:"primaryKey"`
	StockableType  string    `gorm:"index:idx_stockable;size:20;not null;comment:库存对象类型"`
	StockableID    uint      `gorm:"index:idx_stockable;not null;comment:库存对象ID"`
	MovementType   string    `gorm:"index;size:30;not null;comment:流水类型"`
	Quantity       int       `gorm:"not null;comment:变更量(正入负出)"`
	QuantityBefore int       `gorm:"not null;comment:变更前库存"`
	QuantityAfter  int       `gorm:"not null;comment:变更后库存"`
	ReferenceType  *string   `gorm:"index:idx_reference;size:30;comment:关联对象类型"`
	ReferenceID    *uint     `gorm:"index:idx_reference;comment:关联对象ID"`
	Notes          string    `gorm:"size:500;comment:备注"`
	CreatedBy      *uint     `gorm:"comment:操作人用户ID(系统操作为NULL)"`
	CreatedAt      time.Time `gorm:"index;comment:创建时间"`
}

// TableName 指定表名
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// StockReservationModel GORM库存预留模型
// 教学要点:
// 1. 状态不存列，由converted_at/expires_at推导（避免状态列与时间戳不一致）
// 2. (stockable_type, stockable_id, expires_at)索引支撑活跃预留求和
// 3. cart_id索引支撑按购物车批量释放
type StockReservationModel struct {
	ID            uint       `gorm:"primaryKey"`
	StockableType string     `gorm:"index:idx_res_stockable;size:20;not null;comment:库存对象类型"`
	StockableID   uint       `gorm:"index:idx_res_stockable;not null;comment:库存对象ID"`
	Quantity      int        `gorm:"not null;comment:预留数量"`
	CartID        *string    `gorm:"index;size:64;comment:购物车会话ID"`
	ExpiresAt     time.Time  `gorm:"index:idx_res_stockable;not null;comment:过期时间"`
	ConvertedAt   *time.Time `gorm:"comment:转化为销售的时间"`
	CreatedAt     time.Time  `gorm:"comment:创建时间"`
	UpdatedAt     time.Time  `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (StockReservationModel) TableName() string {
	return "stock_reservations"
}
