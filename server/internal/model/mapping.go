package model

import "gorm.io/datatypes"

// 映射档案状态机: draft -> active
const (
	ProfileStatusDraft  = "draft"
	ProfileStatusActive = "active"
)

// Join 类型与置信度约定：
// schema 元数据声明的外键是确定的 (0.95)，名字猜出来的只有 0.75
const (
	JoinKindInner = "inner"
	JoinKindLeft  = "left"

	ConfidenceForeignKey = 0.95
	ConfidenceHeuristic  = 0.75
)

// MappingProfile 一组表/连接/字段映射决策的版本化容器
type MappingProfile struct {
	BaseModel
	OrgID uint `gorm:"index;not null" json:"org_id"`

	Name    string `gorm:"size:255;not null" json:"name"`
	Version string `gorm:"size:64" json:"version"`
	Status  string `gorm:"size:20;default:'draft';index" json:"status"`

	Tables []MappingTable `gorm:"foreignKey:ProfileID" json:"tables"`
	Joins  []MappingJoin  `gorm:"foreignKey:ProfileID" json:"joins"`
	Fields []MappingField `gorm:"foreignKey:ProfileID" json:"fields"`
}

// MappingTable 档案中纳入的 连接器/表 绑定
type MappingTable struct {
	BaseModel
	ProfileID uint `gorm:"index;not null" json:"profile_id"`

	Alias       string `gorm:"size:100;not null" json:"alias"`
	ConnectorID uint   `gorm:"not null" json:"connector_id"`
	TableName   string `gorm:"size:255;not null" json:"table_name"`
}

// MappingJoin 表间连接建议。确定建议(FK)和启发式建议可能同时存在，
// 不在这一层去重，留给人工复核。
type MappingJoin struct {
	BaseModel
	ProfileID uint `gorm:"index;not null" json:"profile_id"`

	LeftTable  string  `gorm:"size:255;not null" json:"left_table"`
	RightTable string  `gorm:"size:255;not null" json:"right_table"`
	LeftKey    string  `gorm:"size:255;not null" json:"left_key"`
	RightKey   string  `gorm:"size:255;not null" json:"right_key"`
	JoinKind   string  `gorm:"size:10" json:"join_kind"`
	Confidence float64 `json:"confidence"`
}

// MappingField 源列 → 指标代码 的映射。
// Transform 是按 op 区分的 JSON 描述符:
//   {"op": "sum", "aggregation": "period"}
//   {"op": "sum", "group_by": "gender"}
type MappingField struct {
	BaseModel
	ProfileID uint `gorm:"index;not null" json:"profile_id"`

	SourceTable  string         `gorm:"size:255;not null" json:"source_table"`
	SourceColumn string         `gorm:"size:255;not null" json:"source_column"`
	MetricCode   string         `gorm:"size:20;not null;index" json:"metric_code"`
	Unit         string         `gorm:"size:30" json:"unit"`
	Transform    datatypes.JSON `json:"transform"`
	Confidence   float64        `json:"confidence"`
	Notes        string         `gorm:"size:255" json:"notes"`
}
