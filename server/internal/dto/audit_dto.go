package dto

import "GreenLedger/server/internal/model"

type AuditListReq struct {
	Page      int    `form:"page,default=1"`
	PageSize  int    `form:"page_size,default=50"`
	EventType string `form:"event_type"`
}

type AuditListResp struct {
	Total int64            `json:"total"`
	List  []model.AuditLog `json:"list"`
}

// ChainVerifyResp 链校验结果。BrokenAt 是第一个断点的下标（时间升序），
// 链完整时不出现。
type ChainVerifyResp struct {
	Valid    bool `json:"valid"`
	Entries  int  `json:"entries"`
	BrokenAt *int `json:"broken_at,omitempty"`
}
