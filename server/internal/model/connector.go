package model

import (
	"time"

	"gorm.io/datatypes"
)

// 连接器源类型枚举（固定集合，注册表按这个字符串派发）
const (
	SourceTypeObjectStore     = "object_store"
	SourceTypeBlobStore       = "blob_store"
	SourceTypeDocumentLibrary = "document_library"
	SourceTypeERP             = "erp"
	SourceTypeIssueTracker    = "issue_tracker"
	SourceTypeMessaging       = "messaging_channel"
	SourceTypeFeed            = "syndication_feed"
	SourceTypeRelationalDB    = "relational_database"
)

// 同步频率: hourly / daily / weekly / monthly / manual
const (
	CadenceHourly  = "hourly"
	CadenceDaily   = "daily"
	CadenceWeekly  = "weekly"
	CadenceMonthly = "monthly"
	CadenceManual  = "manual"
)

// Connector 外部数据源连接器
type Connector struct {
	BaseModel
	OrgID uint `gorm:"index;not null" json:"org_id"`

	Name string `gorm:"size:255;not null" json:"name"`

	// 类型区分: "erp", "object_store", "issue_tracker" ...
	Type string `gorm:"size:50;not null;index" json:"type"`

	// 🔥 核心配置 (JSON) - 源系统的连接参数都存在这
	// ERP:          {"base_url": "...", "api_key_secret": "ERP_TOKEN"}
	// ObjectStore:  {"bucket": "...", "prefix": "esg/"}
	// 凭证一律只存 secret 名称，真实值由 SecretResolver 解析
	Config datatypes.JSON `json:"config"`

	Cadence string `gorm:"size:20;default:'manual'" json:"cadence"`

	// 上次同步快照
	LastSyncAt     *time.Time `json:"last_sync_at"`
	LastSyncStatus string     `gorm:"size:20" json:"last_sync_status"`
	LastSyncError  string     `json:"last_sync_error"`
}

// SyncLog 每次同步尝试的日志。先落 running 再做 I/O，
// 保证哪怕适配器 panic，这条记录也在。
type SyncLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrgID       uint   `gorm:"index;not null" json:"org_id"`
	ConnectorID uint   `gorm:"index;not null" json:"connector_id"`
	TraceID     string `gorm:"index;size:64" json:"trace_id"`

	// 状态机: running -> completed / failed
	Status   string `gorm:"size:20;index" json:"status"`
	ErrorMsg string `json:"error_msg"`

	// 统计数据
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`

	DurationMs int64          `json:"duration_ms"`
	Stats      datatypes.JSON `json:"stats"`
	FinishedAt *time.Time     `json:"finished_at"`
}

const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)
