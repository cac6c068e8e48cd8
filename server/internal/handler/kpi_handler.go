package handler

import (
	"net/http"

	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/middleware"
	"GreenLedger/server/internal/service"

	"github.com/gin-gonic/gin"
)

type KPIHandler struct {
	svc *service.KPIService
}

func NewKPIHandler(svc *service.KPIService) *KPIHandler {
	return &KPIHandler{svc: svc}
}

func (h *KPIHandler) CreateRule(c *gin.Context) {
	var req dto.CreateKPIRuleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orgID := c.GetUint(middleware.OrgContextKey)

	rule, err := h.svc.CreateRule(c.Request.Context(), orgID, req)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (h *KPIHandler) ListRules(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	rules, err := h.svc.ListRules(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rules})
}

// Evaluate 带 period 参数就只算那一期，不带就把观测里的每一期都算一遍
func (h *KPIHandler) Evaluate(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	period := c.Query("period")

	var resp *dto.EvaluateResp
	var err error
	if period != "" {
		resp, err = h.svc.Evaluate(c.Request.Context(), orgID, period)
	} else {
		resp, err = h.svc.EvaluateAllPeriods(c.Request.Context(), orgID)
	}
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *KPIHandler) ListResults(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	var req dto.KPIResultListReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.svc.ListResults(c.Request.Context(), orgID, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": results})
}
