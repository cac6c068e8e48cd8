package model

import "gorm.io/datatypes"

// KPIRule 组织自定义的指标计算公式。
// Formula 是按 type 区分的 JSON 描述符:
//   {"type": "field_sum", "field": "E1-1"}
//   {"type": "sum", "fields": ["E1-1", "E1-2"]}
//   {"type": "ratio", "numerator": "S1-2", "denominator": "S1-1"}
type KPIRule struct {
	BaseModel
	OrgID uint `gorm:"index;not null" json:"org_id"`

	MetricCode  string         `gorm:"size:20;not null;index" json:"metric_code"`
	Formula     datatypes.JSON `json:"formula"`
	Unit        string         `gorm:"size:30" json:"unit"`
	StandardRef string         `gorm:"size:50" json:"standard_ref"` // 外部标准引用，如 "ESRS E1"
	Version     int            `gorm:"default:1" json:"version"`
	Active      bool           `gorm:"default:true;index" json:"active"`
}

func (KPIRule) TableName() string {
	return "esg_kpi_rules"
}

// MetricObservation 映射执行的产出：聚合后的指标观测值
type MetricObservation struct {
	BaseModel
	OrgID     uint `gorm:"index;not null" json:"org_id"`
	ProfileID uint `gorm:"index" json:"profile_id"`

	MetricCode string  `gorm:"size:20;not null;index" json:"metric_code"`
	Period     string  `gorm:"size:10;not null;index" json:"period"`
	Value      float64 `json:"value"`
	Unit       string  `gorm:"size:30" json:"unit"`

	// group_by 变换产生的分桶键（如 "gender=female"），period 聚合为空
	Bucket string `gorm:"size:100" json:"bucket"`
}

// KPIResult 报告层消费的最终产物，(org, metric, period) 唯一，重算覆盖
type KPIResult struct {
	BaseModel
	OrgID uint `gorm:"index;not null;uniqueIndex:idx_kpi_result_key,priority:1" json:"org_id"`

	MetricCode string  `gorm:"size:20;not null;uniqueIndex:idx_kpi_result_key,priority:2" json:"metric_code"`
	Period     string  `gorm:"size:10;not null;uniqueIndex:idx_kpi_result_key,priority:3" json:"period"`
	Value      float64 `json:"value"`
	Unit       string  `gorm:"size:30" json:"unit"`

	// ratio 分母为零时 Undefined=true，Value 无意义，下游必须能区分
	Undefined bool `json:"undefined"`
}

func (KPIResult) TableName() string {
	return "esg_kpi_results"
}
