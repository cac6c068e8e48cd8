package worker

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/model"
	"GreenLedger/server/internal/service"

	"github.com/google/uuid"
)

// SyncWorker 从 Redis 队列拿同步任务并执行。
// HTTP 端的异步同步和调度器到期的定时同步都走这一条队列。
type SyncWorker struct {
	data    *data.Data
	syncSvc *service.SyncService
}

func NewSyncWorker(d *data.Data, syncSvc *service.SyncService) *SyncWorker {
	return &SyncWorker{data: d, syncSvc: syncSvc}
}

// SyncTask 队列消息体
type SyncTask struct {
	TaskID      string `json:"task_id"`
	OrgID       uint   `json:"org_id"`
	ConnectorID uint   `json:"connector_id"`
	TraceID     string `json:"trace_id"`
}

// Enqueue 生产者：把一次同步推进队列
func (w *SyncWorker) Enqueue(ctx context.Context, orgID, connectorID uint, traceID string) error {
	task := SyncTask{
		TaskID:      uuid.New().String(),
		OrgID:       orgID,
		ConnectorID: connectorID,
		TraceID:     traceID,
	}
	payload, _ := json.Marshal(task)
	return w.data.PushTask(ctx, data.SyncQueueKey, string(payload))
}

// Start 启动 Worker (阻塞运行)
func (w *SyncWorker) Start(ctx context.Context, numWorkers int) {
	log.Printf("🚀 启动 %d 个 Sync Worker，开始监听队列 %s...", numWorkers, data.SyncQueueKey)

	for i := 0; i < numWorkers; i++ {
		go w.processLoop(ctx, i)
	}
}

func (w *SyncWorker) processLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			// 阻塞式获取任务 (BLPOP)
			payload, err := w.data.PopTask(ctx, data.SyncQueueKey, 0)
			if err != nil {
				// Redis 偶尔连接超时是正常的，不要 panic
				log.Printf("[Worker-%d] 等待任务中... (%v)", workerID, err)
				time.Sleep(3 * time.Second)
				continue
			}

			var task SyncTask
			if err := json.Unmarshal([]byte(payload), &task); err != nil {
				log.Printf("[Worker-%d] ❌ 任务消息损坏: %v", workerID, err)
				continue
			}

			log.Printf("[Worker-%d] 收到任务: connector=%d", workerID, task.ConnectorID)
			if _, err := w.syncSvc.Sync(ctx, task.OrgID, task.ConnectorID, task.TraceID); err != nil {
				// Sync 内部已把日志落到终态，这里只记录
				log.Printf("[Worker-%d] ❌ 同步失败: connector=%d, 错误: %v", workerID, task.ConnectorID, err)
			} else {
				log.Printf("[Worker-%d] ✅ 同步完成: connector=%d", workerID, task.ConnectorID)
			}
		}
	}
}

// StartScheduler 周期扫描到期的连接器并入队。manual 永不自动入队。
func (w *SyncWorker) StartScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.enqueueDue(ctx)
			}
		}
	}()
}

func (w *SyncWorker) enqueueDue(ctx context.Context) {
	var conns []model.Connector
	if err := w.data.DB.WithContext(ctx).
		Where("cadence <> ?", model.CadenceManual).Find(&conns).Error; err != nil {
		log.Printf("⚠️ 调度器扫描失败: %v", err)
		return
	}

	now := time.Now()
	for _, conn := range conns {
		if !due(conn, now) {
			continue
		}
		traceID := strings.ReplaceAll(uuid.New().String(), "-", "")
		if err := w.Enqueue(ctx, conn.OrgID, conn.ID, traceID); err != nil {
			log.Printf("⚠️ 调度入队失败: connector=%d, %v", conn.ID, err)
			continue
		}
		log.Printf("⏰ 调度入队: connector=%d (%s)", conn.ID, conn.Cadence)
	}
}

func due(conn model.Connector, now time.Time) bool {
	if conn.LastSyncAt == nil {
		return true
	}
	elapsed := now.Sub(*conn.LastSyncAt)
	switch conn.Cadence {
	case model.CadenceHourly:
		return elapsed >= time.Hour
	case model.CadenceDaily:
		return elapsed >= 24*time.Hour
	case model.CadenceWeekly:
		return elapsed >= 7*24*time.Hour
	case model.CadenceMonthly:
		return elapsed >= 30*24*time.Hour
	default:
		return false
	}
}
