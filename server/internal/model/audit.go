package model

import "time"

// 审计事件类型（管道每个环节各一种）
const (
	AuditEventSync      = "connector_sync"
	AuditEventInference = "mapping_inference"
	AuditEventExecution = "mapping_execution"
	AuditEventKPI       = "kpi_evaluation"
)

const (
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)

// AuditLog 哈希链审计条目。同一组织的条目按时间构成单链：
// entry[i].prev_hash == entry[i-1].output_hash。只追加，永不改删。
type AuditLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrgID uint `gorm:"index;not null" json:"org_id"`

	AgentName string `gorm:"size:100" json:"agent_name"` // 写入的组件名
	EventType string `gorm:"size:50;index" json:"event_type"`
	Actor     string `gorm:"size:100" json:"actor"`
	Action    string `gorm:"size:255" json:"action"`
	Status    string `gorm:"size:20" json:"status"`

	InputHash  string `gorm:"size:64" json:"input_hash"`
	OutputHash string `gorm:"size:64" json:"output_hash"`
	PrevHash   string `gorm:"size:64" json:"prev_hash"` // 首条为空

	Timestamp time.Time `gorm:"index" json:"timestamp"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
