package integration

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 教学说明：库存查询接口集成测试
//
// 测试场景覆盖：
// 1. 可用量查询（公开只读接口）
// 2. 库存视图查询
// 3. 流水分页查询
// 4. 参数验证（非法类型、非法ID）
//
// 前置条件：服务已启动，数据库中存在ID=1的商品
// （数据准备由部署脚本/种子数据负责，不在测试内创建）

// TestGetAvailability 测试可用量查询
func TestGetAvailability(t *testing.T) {
	RequireServer(t)

	t.Run("查询商品可用量", func(t *testing.T) {
		resp := GetJSON(t, BaseURL+"/stock/product/1/availability")
		if resp.Code == 40401 {
			t.Skip("种子商品不存在，跳过")
		}
		require.Equal(t, 0, resp.Code, "查询应该成功: %s", resp.Message)

		var data AvailabilityData
		err := json.Unmarshal(resp.Data, &data)
		require.NoError(t, err, "解析响应数据失败")

		assert.Equal(t, "product", data.StockableType)
		assert.Equal(t, uint(1), data.StockableID)
		assert.GreaterOrEqual(t, data.Available, 0, "可用量永不为负")

		t.Logf("✓ 商品#1可用量: %d", data.Available)
	})

	t.Run("非法类型参数", func(t *testing.T) {
		resp := GetJSON(t, BaseURL+"/stock/warehouse/1/availability")
		assert.Equal(t, 40900, resp.Code, "非法类型应该返回参数错误")
	})

	t.Run("不存在的商品", func(t *testing.T) {
		resp := GetJSON(t, BaseURL+"/stock/product/99999999/availability")
		assert.NotEqual(t, 0, resp.Code, "不存在的商品应该返回错误")
	})
}

// TestGetStockItem 测试库存视图查询
func TestGetStockItem(t *testing.T) {
	RequireServer(t)

	resp := GetJSON(t, BaseURL+"/stock/product/1")
	if resp.Code == 40401 {
		t.Skip("种子商品不存在，跳过")
	}
	require.Equal(t, 0, resp.Code, "查询应该成功: %s", resp.Message)

	var data StockItemData
	err := json.Unmarshal(resp.Data, &data)
	require.NoError(t, err, "解析响应数据失败")

	assert.Equal(t, "product", data.StockableType)
	assert.Equal(t, uint(1), data.StockableID)

	t.Logf("✓ 商品#1库存: %d (管理库存: %t, 允许缺货: %t)",
		data.Quantity, data.ManageStock, data.AllowBackorders)
}

// TestListMovements 测试流水分页查询
func TestListMovements(t *testing.T) {
	RequireServer(t)

	t.Run("默认分页", func(t *testing.T) {
		resp := GetJSON(t, BaseURL+"/stock/product/1/movements")
		if resp.Code == 40401 {
			t.Skip("种子商品不存在，跳过")
		}
		require.Equal(t, 0, resp.Code, "查询应该成功: %s", resp.Message)

		var data MovementPageData
		err := json.Unmarshal(resp.Data, &data)
		require.NoError(t, err, "解析响应数据失败")

		assert.Equal(t, 1, data.Page)
		assert.Equal(t, 20, data.PageSize)

		// 快照链校验:改变数量的流水满足 after = before + quantity
		for _, m := range data.List {
			if m.MovementType == "reservation" || m.MovementType == "reservation_release" {
				assert.Equal(t, m.QuantityBefore, m.QuantityAfter,
					"预留类流水前后快照应该相同")
				continue
			}
			assert.Equal(t, m.QuantityBefore+m.Quantity, m.QuantityAfter,
				"流水#%d快照链不一致", m.ID)
		}

		t.Logf("✓ 商品#1流水总数: %d", data.Total)
	})

	t.Run("自定义分页参数", func(t *testing.T) {
		resp := GetJSON(t, fmt.Sprintf("%s/stock/product/1/movements?page=1&page_size=5", BaseURL))
		if resp.Code == 40401 {
			t.Skip("种子商品不存在，跳过")
		}
		require.Equal(t, 0, resp.Code)

		var data MovementPageData
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, 5, data.PageSize)
		assert.LessOrEqual(t, len(data.List), 5)
	})

	t.Run("超出范围的page_size被拒绝", func(t *testing.T) {
		resp := GetJSON(t, fmt.Sprintf("%s/stock/product/1/movements?page_size=1000", BaseURL))
		assert.Equal(t, 40900, resp.Code, "超出上限的page_size应该返回参数错误")
	})
}
