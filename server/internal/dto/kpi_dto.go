package dto

import "encoding/json"

// CreateKPIRuleReq 创建 KPI 规则请求
type CreateKPIRuleReq struct {
	MetricCode  string          `json:"metric_code" binding:"required"`
	Formula     json.RawMessage `json:"formula" binding:"required"`
	Unit        string          `json:"unit"`
	StandardRef string          `json:"standard_ref"`
}

// EvaluateResp KPI 求值结果
type EvaluateResp struct {
	Success        bool             `json:"success"`
	RulesEvaluated int              `json:"rules_evaluated"`
	Results        int              `json:"results"`
	Findings       []QualityFinding `json:"findings,omitempty"`
}

// QualityFinding 数据质量发现：值算出来了但没通过 sanity 检查。
// 上报而不是悄悄截断。
type QualityFinding struct {
	MetricCode string  `json:"metric_code"`
	Period     string  `json:"period"`
	Value      float64 `json:"value"`
	Reason     string  `json:"reason"`
}

type KPIResultListReq struct {
	Period string `form:"period"`
}
