package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/model"
	"GreenLedger/server/internal/repository"

	"gorm.io/datatypes"
)

// SyncService 连接器同步引擎。
// 生命周期约定：同步日志先以 running 落库再碰任何 I/O，
// 不管适配器怎么死（报错、panic、取消），日志最后一定落在终态。
type SyncService struct {
	Data    *data.Data
	Staging repository.StagingRepository
	Schema  repository.SchemaRepository
	Audit   *AuditService
	Policy  core.TransferPolicy

	// 进程内每个连接器一把锁，同一连接器的同步必须串行
	locks sync.Map
}

func NewSyncService(d *data.Data, audit *AuditService, policy core.TransferPolicy) *SyncService {
	return &SyncService{
		Data:    d,
		Staging: repository.NewStagingRepository(d.DB),
		Schema:  repository.NewSchemaRepository(d.DB),
		Audit:   audit,
		Policy:  policy,
	}
}

// CreateConnector 建连接器前先走注册表预检，配置不合法直接拒绝
func (s *SyncService) CreateConnector(ctx context.Context, orgID uint, req dto.CreateConnectorReq) (*model.Connector, error) {
	if err := core.GlobalSources.Validate(req.Type, req.Config); err != nil {
		return nil, err
	}

	configBytes, err := json.Marshal(req.Config)
	if err != nil {
		return nil, core.NewConfigError("配置序列化失败: %v", err)
	}

	cadence := req.Cadence
	if cadence == "" {
		cadence = model.CadenceManual
	}

	conn := &model.Connector{
		OrgID:   orgID,
		Name:    req.Name,
		Type:    req.Type,
		Config:  datatypes.JSON(configBytes),
		Cadence: cadence,
	}
	if err := s.Data.DB.WithContext(ctx).Create(conn).Error; err != nil {
		return nil, err
	}
	return conn, nil
}

// Validate 预检接口，无任何副作用
func (s *SyncService) Validate(req dto.ValidateConnectorReq) dto.ValidateConnectorResp {
	if err := core.GlobalSources.Validate(req.Type, req.Config); err != nil {
		return dto.ValidateConnectorResp{Valid: false, Message: err.Error()}
	}
	return dto.ValidateConnectorResp{Valid: true}
}

func (s *SyncService) ListConnectors(ctx context.Context, orgID uint) ([]dto.ConnectorResp, error) {
	var conns []model.Connector
	if err := s.Data.DB.WithContext(ctx).
		Where("org_id = ?", orgID).Order("created_at desc").Find(&conns).Error; err != nil {
		return nil, err
	}
	var result []dto.ConnectorResp
	for _, c := range conns {
		result = append(result, dto.ConnectorResp{
			ID:             c.ID,
			Name:           c.Name,
			Type:           c.Type,
			Cadence:        c.Cadence,
			LastSyncAt:     c.LastSyncAt,
			LastSyncStatus: c.LastSyncStatus,
			CreatedAt:      c.CreatedAt,
		})
	}
	return result, nil
}

func (s *SyncService) ListSyncLogs(ctx context.Context, orgID, connectorID uint, req dto.SyncLogListReq) ([]model.SyncLog, int64, error) {
	var logs []model.SyncLog
	var total int64
	db := s.Data.DB.WithContext(ctx).Model(&model.SyncLog{}).
		Where("org_id = ? AND connector_id = ?", orgID, connectorID)
	db.Count(&total)
	offset := (req.Page - 1) * req.PageSize
	if err := db.Order("created_at desc").Limit(req.PageSize).Offset(offset).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// Sync 执行一次同步。返回的 error 已经是分类过的管道错误。
func (s *SyncService) Sync(ctx context.Context, orgID, connectorID uint, traceID string) (*dto.SyncResp, error) {
	var conn model.Connector
	if err := s.Data.DB.WithContext(ctx).
		Where("org_id = ?", orgID).First(&conn, connectorID).Error; err != nil {
		return nil, core.NewConfigError("连接器不存在: %d", connectorID)
	}

	// 类型派发，不认识的类型立刻失败
	adapter, err := core.GlobalSources.Get(conn.Type)
	if err != nil {
		return nil, err
	}

	var config map[string]interface{}
	if err := json.Unmarshal(conn.Config, &config); err != nil {
		return nil, core.NewConfigError("连接器配置损坏: %v", err)
	}

	// 同一连接器串行：进程内 TryLock + Redis SETNX（多实例部署用）
	if err := s.acquireLock(ctx, conn.ID); err != nil {
		return nil, err
	}
	defer s.releaseLock(conn.ID)

	// 🔥 先落 running 日志再做任何 I/O：哪怕适配器 panic 这条记录也在
	syncLog := &model.SyncLog{
		OrgID:       orgID,
		ConnectorID: conn.ID,
		TraceID:     traceID,
		Status:      model.SyncStatusRunning,
	}
	if err := s.Data.DB.Create(syncLog).Error; err != nil {
		return nil, err
	}

	started := time.Now()
	result, runErr := s.runGuarded(ctx, adapter, &conn, config)

	// 终态迁移 + 连接器快照，失败路径也要走到
	s.finish(syncLog, &conn, result, runErr, started)

	// 每次尝试写一条审计：输入盖配置指纹（剔除凭证），输出盖结果摘要。
	// 同步本身可以被取消，审计条目不行——脱离原 ctx 的取消信号再写
	auditCtx := context.WithoutCancel(ctx)
	status := model.AuditStatusSuccess
	action := "sync failed"
	if runErr != nil {
		status = model.AuditStatusFailed
		action = "sync failed: " + runErr.Error()
	} else {
		// 结果摘要进入条目内容，output_hash 因此盖住了它
		action = fmt.Sprintf("sync completed: processed=%d created=%d updated=%d failed=%d",
			result.Processed, result.Created, result.Updated, result.Failed)
	}
	if _, err := s.Audit.Append(auditCtx, &model.AuditLog{
		OrgID:     orgID,
		AgentName: "connector_sync_engine",
		EventType: model.AuditEventSync,
		Actor:     fmt.Sprintf("connector:%d", conn.ID),
		Action:    action,
		Status:    status,
		InputHash: HashPayload(stripSecrets(config)),
	}); err != nil {
		log.Printf("⚠️ 审计写入失败 (sync, org=%d): %v", orgID, err)
	}

	if runErr != nil {
		return &dto.SyncResp{Success: false, SyncLogID: syncLog.ID}, runErr
	}
	return &dto.SyncResp{Success: true, SyncLogID: syncLog.ID, Result: result}, nil
}

// runGuarded 包住适配器调用：panic 转错误，取消转终态
func (s *SyncService) runGuarded(ctx context.Context, adapter core.SourceAdapter, conn *model.Connector, config map[string]interface{}) (result *dto.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.NewTransientError(fmt.Errorf("%v", r), "适配器 panic")
		}
	}()

	// 凭证/配置问题在任何网络调用之前就挡掉
	if err := adapter.ValidateConfig(config); err != nil {
		return nil, err
	}

	// 1. schema 发现，成功则整体替换该连接器的缓存条目
	cols, err := adapter.DiscoverSchema(ctx, config)
	if err != nil {
		return nil, s.classify(ctx, err)
	}
	entries := make([]model.SchemaCacheEntry, 0, len(cols))
	for _, c := range cols {
		entries = append(entries, model.SchemaCacheEntry{
			SourceTableName: c.Table,
			ColumnName:    c.Column,
			DataType:      c.DataType,
			IsPrimaryKey:  c.IsPrimaryKey,
			IsForeignKey:  c.IsForeignKey,
			ForeignTable:  c.ForeignTable,
			ForeignColumn: c.ForeignColumn,
		})
	}
	if err := s.Schema.Replace(ctx, conn.OrgID, conn.ID, entries); err != nil {
		return nil, err
	}

	// 2. 拉原始记录
	records, err := adapter.FetchRows(ctx, config)
	if err != nil {
		return nil, s.classify(ctx, err)
	}

	// 3. 按表分组入库，单表 all-or-nothing，表间互不影响
	byTable := map[string][]*model.StagingRow{}
	now := time.Now()
	for _, rec := range records {
		payloadBytes, err := json.Marshal(rec.Payload)
		if err != nil {
			continue
		}
		byTable[rec.Table] = append(byTable[rec.Table], &model.StagingRow{
			OrgID:       conn.OrgID,
			ConnectorID: conn.ID,
			SourceTable: rec.Table,
			Payload:     datatypes.JSON(payloadBytes),
			ContentHash: HashPayload(rec.Payload),
			Period:      core.PeriodOf(rec.Payload, now),
			CrossBorder: s.Policy.IsCrossBorder(rec.Payload),
			ArrivedAt:   now,
		})
	}

	result = &dto.SyncResult{
		Processed: len(records),
		Stats:     map[string]interface{}{"tables": len(byTable), "schema_columns": len(cols)},
	}
	for table, rows := range byTable {
		created, err := s.Staging.InsertBatch(ctx, rows)
		if err != nil {
			// 这张表整体回滚，计入 failed，继续下一张表
			result.Failed += len(rows)
			log.Printf("⚠️ 表 %s 入库失败 (connector=%d): %v", table, conn.ID, err)
			continue
		}
		result.Created += created
		result.Updated += len(rows) - created // 命中去重键的重复 payload
	}
	return result, nil
}

// classify 把取消/超时归为可重试的 Transient，其他原样透传
func (s *SyncService) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.NewTransientError(ctxErr, "同步被取消")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewTransientError(err, "外部源调用超时")
	}
	return err
}

// finish 同步日志终态迁移 + 连接器 last_sync 快照
func (s *SyncService) finish(syncLog *model.SyncLog, conn *model.Connector, result *dto.SyncResult, runErr error, started time.Time) {
	now := time.Now()
	updates := map[string]interface{}{
		"duration_ms": now.Sub(started).Milliseconds(),
		"finished_at": now,
	}
	connStatus := model.SyncStatusCompleted
	connErr := ""
	if runErr != nil {
		updates["status"] = model.SyncStatusFailed
		updates["error_msg"] = runErr.Error()
		connStatus = model.SyncStatusFailed
		connErr = runErr.Error()
	} else {
		updates["status"] = model.SyncStatusCompleted
		updates["processed"] = result.Processed
		updates["created"] = result.Created
		updates["updated"] = result.Updated
		updates["failed"] = result.Failed
		if statsBytes, err := json.Marshal(result.Stats); err == nil {
			updates["stats"] = datatypes.JSON(statsBytes)
		}
	}
	s.Data.DB.Model(&model.SyncLog{}).Where("id = ?", syncLog.ID).Updates(updates)

	s.Data.DB.Model(&model.Connector{}).Where("id = ?", conn.ID).Updates(map[string]interface{}{
		"last_sync_at":     now,
		"last_sync_status": connStatus,
		"last_sync_error":  connErr,
	})
}

func (s *SyncService) acquireLock(ctx context.Context, connectorID uint) error {
	v, _ := s.locks.LoadOrStore(connectorID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return core.NewTransientError(nil, "连接器 %d 已有同步在进行", connectorID)
	}
	// Redis 锁是跨实例的第二道闸，单机测试环境没有 Redis 就只靠进程锁
	if s.Data.Redis != nil {
		ok, err := s.Data.AcquireConnectorLock(ctx, connectorID, 30*time.Minute)
		if err == nil && !ok {
			mu.Unlock()
			return core.NewTransientError(nil, "连接器 %d 已有同步在进行", connectorID)
		}
	}
	return nil
}

func (s *SyncService) releaseLock(connectorID uint) {
	if v, ok := s.locks.Load(connectorID); ok {
		v.(*sync.Mutex).Unlock()
	}
	if s.Data.Redis != nil {
		s.Data.ReleaseConnectorLock(context.Background(), connectorID)
	}
}

// stripSecrets 配置指纹剔除凭证类字段后再哈希
func stripSecrets(config map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(config))
	for k, v := range config {
		lower := strings.ToLower(k)
		if strings.HasSuffix(lower, "_secret") || strings.Contains(lower, "password") || strings.Contains(lower, "token") {
			continue
		}
		clean[k] = v
	}
	return clean
}
