package model

// SchemaCacheEntry 连接器某张表某一列的发现结果。
// 每次成功的 schema 发现会整体替换该连接器的全部条目。
type SchemaCacheEntry struct {
	BaseModel
	OrgID       uint `gorm:"index;not null" json:"org_id"`
	ConnectorID uint `gorm:"index;not null" json:"connector_id"`

	SourceTableName string `gorm:"column:table_name;size:255;not null;index" json:"table_name"`
	ColumnName string `gorm:"size:255;not null" json:"column_name"`

	// 声明类型: numeric / text / timestamp / boolean / json
	DataType string `gorm:"size:50" json:"data_type"`

	IsPrimaryKey bool `json:"is_primary_key"`
	IsForeignKey bool `json:"is_foreign_key"`

	// 外键指向（仅 IsForeignKey 时有值）
	ForeignTable  string `gorm:"size:255" json:"foreign_table"`
	ForeignColumn string `gorm:"size:255" json:"foreign_column"`
}

func (SchemaCacheEntry) TableName() string {
	return "source_schema_cache"
}

// 发现结果里使用的规范化类型名
const (
	DataTypeNumeric   = "numeric"
	DataTypeText      = "text"
	DataTypeTimestamp = "timestamp"
	DataTypeBoolean   = "boolean"
	DataTypeJSON      = "json"
)
