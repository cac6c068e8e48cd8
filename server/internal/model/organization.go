package model

// Organization 租户实体：所有管道数据都按组织隔离
type Organization struct {
	BaseModel
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"size:255" json:"description"`
	Key         string `gorm:"uniqueIndex;size:50" json:"key"`

	// API Key 的 bcrypt Hash，明文只在创建时返回一次
	APIKeyHash string `gorm:"size:100" json:"-"`

	// 关联
	Connectors []Connector `gorm:"foreignKey:OrgID" json:"connectors,omitempty"`
}
