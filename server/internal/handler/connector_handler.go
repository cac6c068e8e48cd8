package handler

import (
	"net/http"
	"strconv"

	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/middleware"
	"GreenLedger/server/internal/service"
	"GreenLedger/server/internal/worker"

	"github.com/gin-gonic/gin"
)

type ConnectorHandler struct {
	svc    *service.SyncService
	worker *worker.SyncWorker
}

// NewConnectorHandler worker 可以为 nil（无 Redis 部署），此时同步同步执行
func NewConnectorHandler(svc *service.SyncService, w *worker.SyncWorker) *ConnectorHandler {
	return &ConnectorHandler{svc: svc, worker: w}
}

func (h *ConnectorHandler) Create(c *gin.Context) {
	var req dto.CreateConnectorReq
	// 绑定 JSON
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orgID := c.GetUint(middleware.OrgContextKey)

	conn, err := h.svc.CreateConnector(c.Request.Context(), orgID, req)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": conn})
}

func (h *ConnectorHandler) List(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	list, err := h.svc.ListConnectors(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Validate 预检接口：无副作用，不需要组织上下文
func (h *ConnectorHandler) Validate(c *gin.Context) {
	var req dto.ValidateConnectorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.svc.Validate(req)})
}

// Sync 触发一次同步。有 Worker 就投队列异步跑，没有就原地跑完
func (h *ConnectorHandler) Sync(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	connectorID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "连接器 ID 非法"})
		return
	}
	traceID := c.GetString(middleware.TraceContextKey)

	if h.worker != nil {
		if err := h.worker.Enqueue(c.Request.Context(), orgID, uint(connectorID), traceID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"queued": true}})
		return
	}

	resp, err := h.svc.Sync(c.Request.Context(), orgID, uint(connectorID), traceID)
	if err != nil {
		// 同步日志已落终态，把日志 ID 一并带回去方便排查
		body := gin.H{"error": err.Error()}
		if resp != nil {
			body["sync_log_id"] = resp.SyncLogID
		}
		c.JSON(httpStatus(err), body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *ConnectorHandler) ListSyncLogs(c *gin.Context) {
	orgID := c.GetUint(middleware.OrgContextKey)
	connectorID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "连接器 ID 非法"})
		return
	}
	var req dto.SyncLogListReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logs, total, err := h.svc.ListSyncLogs(c.Request.Context(), orgID, uint(connectorID), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"total": total, "list": logs}})
}
