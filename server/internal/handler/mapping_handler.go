package handler

import (
	"net/http"
	"strconv"

	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/middleware"
	"GreenLedger/server/internal/service"

	"github.com/gin-gonic/gin"
)

type MappingHandler struct {
	inferSvc *service.InferenceService
	execSvc  *service.ExecutionService
}

func NewMappingHandler(inferSvc *service.InferenceService, execSvc *service.ExecutionService) *MappingHandler {
	return &MappingHandler{inferSvc: inferSvc, execSvc: execSvc}
}

// Suggest 对所选连接器的 schema 缓存跑映射推断，产出 draft 档案
func (h *MappingHandler) Suggest(c *gin.Context) {
	var req dto.SuggestMappingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orgID := c.GetUint(middleware.OrgContextKey)

	profile, summary, err := h.inferSvc.Suggest(c.Request.Context(), orgID, req)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"profile": profile,
		"summary": summary,
	}})
}

func (h *MappingHandler) List(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	profiles, err := h.inferSvc.ListProfiles(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profiles})
}

// Activate 人工复核通过后把 draft 档案转 active
func (h *MappingHandler) Activate(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	profileID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "档案 ID 非法"})
		return
	}

	if err := h.inferSvc.ActivateProfile(c.Request.Context(), orgID, uint(profileID)); err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"activated": true}})
}

// Run 执行一个映射档案，把 staging 行聚合成指标观测
func (h *MappingHandler) Run(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	profileID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "档案 ID 非法"})
		return
	}

	resp, err := h.execSvc.Execute(c.Request.Context(), orgID, uint(profileID))
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
