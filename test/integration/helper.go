package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// 教学说明：测试辅助工具
// 这个文件包含集成测试的通用辅助函数，遵循DRY原则（Don't Repeat Yourself）
// 集成测试需要一个已启动的服务实例（cmd/api），不可达时整组跳过

const (
	// ServerURL 服务根地址
	ServerURL = "http://localhost:8080"
	// BaseURL API基础URL
	BaseURL = ServerURL + "/api/v1"
	// Timeout HTTP请求超时时间
	Timeout = 10 * time.Second
)

// Response 统一响应结构
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// AvailabilityData 可用量响应数据
type AvailabilityData struct {
	StockableType string `json:"stockable_type"`
	StockableID   uint   `json:"stockable_id"`
	Available     int    `json:"available"`
}

// StockItemData 库存视图响应数据
type StockItemData struct {
	StockableType   string `json:"stockable_type"`
	StockableID     uint   `json:"stockable_id"`
	Quantity        int    `json:"quantity"`
	ManageStock     bool   `json:"manage_stock"`
	AllowBackorders bool   `json:"allow_backorders"`
}

// MovementPageData 流水分页响应数据
type MovementPageData struct {
	List []struct {
		ID             uint   `json:"id"`
		MovementType   string `json:"movement_type"`
		Quantity       int    `json:"quantity"`
		QuantityBefore int    `json:"quantity_before"`
		QuantityAfter  int    `json:"quantity_after"`
		Notes          string `json:"notes"`
	} `json:"list"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// RequireServer 检查服务是否可达，不可达时跳过当前测试
func RequireServer(t *testing.T) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(ServerURL + "/ping")
	if err != nil {
		t.Skipf("服务不可达，跳过集成测试: %v", err)
	}
	resp.Body.Close()
}

// GetJSON 发送GET请求并解析JSON响应
//
// 教学说明：
// - 使用*testing.T参数，可以在失败时立即终止测试
// - 使用require包进行断言，失败会立即停止（不继续执行）
// - 返回*Response而非error，简化调用方代码
func GetJSON(t *testing.T, url string) *Response {
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err, "创建HTTP请求失败")

	client := &http.Client{Timeout: Timeout}
	resp, err := client.Do(req)
	require.NoError(t, err, "发送HTTP请求失败")
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "读取响应体失败")

	var result Response
	err = json.Unmarshal(body, &result)
	require.NoError(t, err, "解析JSON响应失败: %s", string(body))

	return &result
}
