package dto

// SuggestMappingReq 映射推断请求
type SuggestMappingReq struct {
	ConnectorIDs []uint `json:"connector_ids" binding:"required,min=1"`
}

// SuggestionSummary 推断结果摘要（档案本体已落库为 draft）
type SuggestionSummary struct {
	Tables int `json:"tables"`
	Joins  int `json:"joins"`
	Fields int `json:"fields"`
}

// RunMappingResp 映射执行结果
type RunMappingResp struct {
	Success          bool `json:"success"`
	MetricsProcessed int  `json:"metrics_processed"`
	Observations     int  `json:"observations"`
	RowsSkipped      int  `json:"rows_skipped"`
}
