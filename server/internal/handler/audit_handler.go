package handler

import (
	"net/http"

	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/middleware"
	"GreenLedger/server/internal/service"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

func (h *AuditHandler) List(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	var req dto.AuditListReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.List(c.Request.Context(), orgID, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Verify 全链校验。链断了也是 200：校验结果本身是正常业务产出，
// 断点位置在 data.broken_at 里。
func (h *AuditHandler) Verify(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)

	resp, err := h.svc.VerifyChain(c.Request.Context(), orgID)
	if err != nil && resp == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
