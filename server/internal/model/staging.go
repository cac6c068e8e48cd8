package model

import (
	"time"

	"gorm.io/datatypes"
)

// StagingRow 原始入库记录（映射执行之前的形态）。
// (connector_id, source_table, content_hash) 是去重键：同一连接器同一张表
// 同样的 payload 重复摄入不会产生第二行。去重按连接器隔离——
// 不同租户撞出相同的表名和 payload 时各自保留自己的行。
type StagingRow struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrgID       uint `gorm:"index;not null" json:"org_id"`
	ConnectorID uint `gorm:"index;not null;uniqueIndex:idx_staging_dedup,priority:1" json:"connector_id"`

	SourceTable string         `gorm:"size:255;not null;uniqueIndex:idx_staging_dedup,priority:2" json:"source_table"`
	Payload     datatypes.JSON `json:"payload"`

	// payload 规范化 JSON 的 sha256
	ContentHash string `gorm:"size:64;not null;uniqueIndex:idx_staging_dedup,priority:3" json:"content_hash"`

	// 报告期: "2025-Q1" 或 "2025-03"
	Period string `gorm:"size:10;index" json:"period"`

	// 跨境传输标记（由 TransferPolicy 判定，详见 core/policy.go）
	CrossBorder bool `json:"cross_border"`

	ArrivedAt time.Time `json:"arrived_at"`
}

func (StagingRow) TableName() string {
	return "staging_rows"
}
