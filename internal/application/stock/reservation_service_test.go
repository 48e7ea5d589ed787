package stock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/shopstock/internal/domain/stock"
)

// 预留服务单元测试
//
// 测试场景覆盖:
// 1. 预留创建:可用量检查、流水快照不变、库存数量不动
// 2. 释放:手动/整车/幂等
// 3. 转化:一次性语义、过期跳过
// 4. 可用量:预留占用、过期立即归还、永不为负、缓存路径
// 5. 延长有效期

func TestReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("预留成功但不动库存数量", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		cartID := "cart-abc"
		res, err := env.reserv.Reserve(ctx, product1, 40, &cartID)
		require.NoError(t, err)

		assert.NotZero(t, res.ID)
		assert.Equal(t, 40, res.Quantity)
		assert.True(t, res.IsActive(time.Now()), "新建预留应该是生效状态")
		assert.Equal(t, 100, env.items.quantity(product1), "预留不触碰库存数量")

		// 预留流水:数量为负,前后快照相同,引用指向预留
		mv := env.movements.last()
		require.NotNil(t, mv)
		assert.Equal(t, stock.MovementReservation, mv.Type)
		assert.Equal(t, -40, mv.Quantity)
		assert.Equal(t, 100, mv.QuantityBefore)
		assert.Equal(t, 100, mv.QuantityAfter, "预留流水前后快照相同")
		require.NotNil(t, mv.ReferenceID)
		assert.Equal(t, res.ID, *mv.ReferenceID)
		assert.Equal(t, "Reserva - Carrinho cart-abc", mv.Notes)
	})

	t.Run("可用量不足拒绝预留", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		_, err := env.reserv.Reserve(ctx, product1, 40, nil)
		require.NoError(t, err)

		// 可用量只剩60,预留70应该失败
		_, err = env.reserv.Reserve(ctx, product1, 70, nil)
		assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		assert.Equal(t, 1, env.reservations.count(), "失败的预留不应该落库")
	})

	t.Run("允许缺货下单跳过可用量检查", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		item := managedItem(product1, 1)
		item.AllowBackorders = true
		env.items.put(item)

		_, err := env.reserv.Reserve(ctx, product1, 50, nil)
		assert.NoError(t, err)
	})

	t.Run("拒绝非正数量", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 10))

		_, err := env.reserv.Reserve(ctx, product1, 0, nil)
		assert.ErrorIs(t, err, stock.ErrInvalidQuantity)
	})
}

// TestReservationLifecycle 预留-释放-销售的完整链路
func TestReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(defaultTestConfig())
	env.items.put(managedItem(product1, 100))

	// 1. 预留40 → 可用量60
	res, err := env.reserv.Reserve(ctx, product1, 40, nil)
	require.NoError(t, err)

	available, err := env.reserv.AvailableQuantity(ctx, product1)
	require.NoError(t, err)
	assert.Equal(t, 60, available)

	// 2. 预留70失败
	_, err = env.reserv.Reserve(ctx, product1, 70, nil)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)

	// 3. 释放后可用量恢复
	require.NoError(t, env.reserv.Release(ctx, res.ID))

	available, err = env.reserv.AvailableQuantity(ctx, product1)
	require.NoError(t, err)
	assert.Equal(t, 100, available)

	// 4. 此时预留70成功
	_, err = env.reserv.Reserve(ctx, product1, 70, nil)
	require.NoError(t, err)

	// 5. 销售确认40(不关联预留):库存100→60
	_, err = env.stocks.ConfirmSale(ctx, product1, 40, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 60, env.items.quantity(product1))
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("释放写入归还流水", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		res, err := env.reserv.Reserve(ctx, product1, 30, nil)
		require.NoError(t, err)

		require.NoError(t, env.reserv.Release(ctx, res.ID))

		assert.Nil(t, env.reservations.get(res.ID), "释放后预留应该被删除")

		mv := env.movements.last()
		require.NotNil(t, mv)
		assert.Equal(t, stock.MovementReservationRelease, mv.Type)
		assert.Equal(t, 30, mv.Quantity, "释放流水的数量为正")
		assert.Equal(t, 100, mv.QuantityBefore)
		assert.Equal(t, 100, mv.QuantityAfter)
	})

	t.Run("重复释放是无操作", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		res, err := env.reserv.Reserve(ctx, product1, 30, nil)
		require.NoError(t, err)

		require.NoError(t, env.reserv.Release(ctx, res.ID))
		before := env.movements.count()

		require.NoError(t, env.reserv.Release(ctx, res.ID), "重复释放不报错")
		assert.Equal(t, before, env.movements.count(), "重复释放不产生流水")
	})

	t.Run("已转化的预留不可释放", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		res, err := env.reserv.Reserve(ctx, product1, 30, nil)
		require.NoError(t, err)

		_, err = env.reserv.ConvertToSale(ctx, res.ID, nil)
		require.NoError(t, err)

		before := env.movements.count()
		require.NoError(t, env.reserv.Release(ctx, res.ID))

		assert.NotNil(t, env.reservations.get(res.ID), "已转化的预留永久保留")
		assert.Equal(t, before, env.movements.count())
	})
}

func TestReleaseByCart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(defaultTestConfig())
	env.items.put(managedItem(product1, 100))
	variant2 := stock.NewStockableRef(stock.StockableVariant, 2)
	env.items.put(managedItem(variant2, 50))

	cartA := "cart-a"
	cartB := "cart-b"

	_, err := env.reserv.Reserve(ctx, product1, 10, &cartA)
	require.NoError(t, err)
	_, err = env.reserv.Reserve(ctx, variant2, 5, &cartA)
	require.NoError(t, err)
	otherRes, err := env.reserv.Reserve(ctx, product1, 20, &cartB)
	require.NoError(t, err)

	released, err := env.reserv.ReleaseByCart(ctx, cartA)
	require.NoError(t, err)
	assert.Equal(t, 2, released, "应该释放购物车A的2条预留")

	assert.NotNil(t, env.reservations.get(otherRes.ID), "其他购物车的预留不受影响")

	available, err := env.reserv.AvailableQuantity(ctx, product1)
	require.NoError(t, err)
	assert.Equal(t, 80, available, "只剩购物车B占用的20")
}

func TestConvertToSale(t *testing.T) {
	ctx := context.Background()

	t.Run("转化扣减库存并标记终态", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		res, err := env.reserv.Reserve(ctx, product1, 40, nil)
		require.NoError(t, err)

		orderID := uint(9)
		mv, err := env.reserv.ConvertToSale(ctx, res.ID, &orderID)
		require.NoError(t, err)
		require.NotNil(t, mv)

		assert.Equal(t, stock.MovementSale, mv.Type)
		assert.Equal(t, -40, mv.Quantity)
		assert.Equal(t, "Venda - Pedido #9", mv.Notes)
		assert.Equal(t, 60, env.items.quantity(product1), "转化时才真正扣库存")

		stored := env.reservations.get(res.ID)
		require.NotNil(t, stored, "已转化的预留永久保留")
		assert.True(t, stored.IsConverted())
	})

	t.Run("转化是一次性的", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		res, err := env.reserv.Reserve(ctx, product1, 40, nil)
		require.NoError(t, err)

		_, err = env.reserv.ConvertToSale(ctx, res.ID, nil)
		require.NoError(t, err)

		mv, err := env.reserv.ConvertToSale(ctx, res.ID, nil)
		assert.NoError(t, err, "二次转化不报错")
		assert.Nil(t, mv, "二次转化是无操作")
		assert.Equal(t, 60, env.items.quantity(product1), "库存不会被扣两次")
	})

	t.Run("过期预留不可转化", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		res, err := env.reserv.Reserve(ctx, product1, 40, nil)
		require.NoError(t, err)

		// 把预留改成已过期
		require.NoError(t, env.reservations.UpdateExpiry(ctx, res.ID, time.Now().Add(-time.Minute)))

		mv, err := env.reserv.ConvertToSale(ctx, res.ID, nil)
		assert.NoError(t, err)
		assert.Nil(t, mv)
		assert.Equal(t, 100, env.items.quantity(product1), "过期转化不扣库存")
	})

	t.Run("预留不存在是无操作", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())

		mv, err := env.reserv.ConvertToSale(ctx, 999, nil)
		assert.NoError(t, err)
		assert.Nil(t, mv)
	})
}

func TestAvailableQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("可用量等于库存减去生效预留", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		_, err := env.reserv.Reserve(ctx, product1, 30, nil)
		require.NoError(t, err)

		available, err := env.reserv.AvailableQuantity(ctx, product1)
		require.NoError(t, err)
		assert.Equal(t, 70, available)
	})

	t.Run("过期预留立即归还可用量", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		res, err := env.reserv.Reserve(ctx, product1, 30, nil)
		require.NoError(t, err)

		// 预留过期:不需要任何清扫动作,可用量立即恢复
		require.NoError(t, env.reservations.UpdateExpiry(ctx, res.ID, time.Now().Add(-time.Second)))

		available, err := env.reserv.AvailableQuantity(ctx, product1)
		require.NoError(t, err)
		assert.Equal(t, 100, available)
	})

	t.Run("可用量永不为负", func(t *testing.T) {
		cfg := defaultTestConfig()
		cfg.AllowNegativeStock = true
		env := newTestEnv(cfg)
		env.items.put(managedItem(product1, 2))

		_, err := env.stocks.Adjust(ctx, product1, -5, stock.MovementManualExit, "", nil)
		require.NoError(t, err)

		available, err := env.reserv.AvailableQuantity(ctx, product1)
		require.NoError(t, err)
		assert.Equal(t, 0, available, "负库存对外显示可用量0")
	})

	t.Run("命中缓存不回源", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		require.NoError(t, env.cache.Set(ctx, product1, 42))

		available, err := env.reserv.AvailableQuantity(ctx, product1)
		require.NoError(t, err)
		assert.Equal(t, 42, available, "命中时直接返回缓存值")
	})

	t.Run("miss时回源并回填缓存", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		available, err := env.reserv.AvailableQuantity(ctx, product1)
		require.NoError(t, err)
		assert.Equal(t, 100, available)

		cached, hit, err := env.cache.Get(ctx, product1)
		require.NoError(t, err)
		assert.True(t, hit, "回源后应该回填缓存")
		assert.Equal(t, 100, cached)
	})

	t.Run("缓存故障降级为回源", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))
		env.cache.getErr = errInjected

		available, err := env.reserv.AvailableQuantity(ctx, product1)
		require.NoError(t, err, "缓存故障不阻塞读路径")
		assert.Equal(t, 100, available)
	})
}

func TestExtendReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("延长有效期不产生流水", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		res, err := env.reserv.Reserve(ctx, product1, 10, nil)
		require.NoError(t, err)
		before := env.movements.count()

		newExpiry := time.Now().Add(4 * time.Hour)
		require.NoError(t, env.reserv.ExtendReservation(ctx, res.ID, newExpiry))

		stored := env.reservations.get(res.ID)
		assert.True(t, stored.ExpiresAt.Equal(newExpiry))
		assert.Equal(t, before, env.movements.count(), "延长不产生流水")
	})

	t.Run("预留不存在返回错误", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())

		err := env.reserv.ExtendReservation(ctx, 999, time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, stock.ErrReservationNotFound)
	})

	t.Run("已转化的预留跳过", func(t *testing.T) {
		env := newTestEnv(defaultTestConfig())
		env.items.put(managedItem(product1, 100))

		res, err := env.reserv.Reserve(ctx, product1, 10, nil)
		require.NoError(t, err)
		_, err = env.reserv.ConvertToSale(ctx, res.ID, nil)
		require.NoError(t, err)

		originalExpiry := env.reservations.get(res.ID).ExpiresAt
		require.NoError(t, env.reserv.ExtendReservation(ctx, res.ID, time.Now().Add(24*time.Hour)))
		assert.True(t, env.reservations.get(res.ID).ExpiresAt.Equal(originalExpiry), "已转化预留的有效期不变")
	})
}
