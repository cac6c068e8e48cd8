package dto

import "time"

// CreateConnectorReq 创建连接器请求
type CreateConnectorReq struct {
	Name    string `json:"name" binding:"required"`
	Type    string `json:"type" binding:"required"`
	Cadence string `json:"cadence" binding:"omitempty,oneof=hourly daily weekly monthly manual"`

	// 前端传来的 {"base_url": "...", "api_key_secret": "..."} 自动解析进这个 map
	Config map[string]interface{} `json:"config"`
}

// ValidateConnectorReq 预检请求（无副作用）
type ValidateConnectorReq struct {
	Type   string                 `json:"connector_type" binding:"required"`
	Config map[string]interface{} `json:"config"`
}

type ValidateConnectorResp struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// SyncResult 一次同步的结果摘要
type SyncResult struct {
	Processed int                    `json:"processed"`
	Created   int                    `json:"created"`
	Updated   int                    `json:"updated"`
	Failed    int                    `json:"failed"`
	Stats     map[string]interface{} `json:"stats,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type SyncResp struct {
	Success   bool        `json:"success"`
	SyncLogID uint        `json:"sync_log_id"`
	Result    *SyncResult `json:"result,omitempty"`
}

type SyncLogListReq struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20"`
}

type ConnectorResp struct {
	ID             uint       `json:"id"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	Cadence        string     `json:"cadence"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	LastSyncStatus string     `json:"last_sync_status"`
	CreatedAt      time.Time  `json:"created_at"`
}
