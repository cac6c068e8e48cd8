package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/model"
)

// stubAdapter 测试用数据源：固定 schema 和固定行
type stubAdapter struct {
	cols      []core.ColumnInfo
	rows      []core.RawRecord
	fetchErr  error
	panics    bool
	fetchHook func() error // 拉取前回调，模拟取消/中途故障
}

func (a *stubAdapter) ValidateConfig(config map[string]interface{}) error {
	_, err := core.RequireString(config, "base_url")
	return err
}

func (a *stubAdapter) DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]core.ColumnInfo, error) {
	return a.cols, nil
}

func (a *stubAdapter) FetchRows(ctx context.Context, config map[string]interface{}) ([]core.RawRecord, error) {
	if a.panics {
		panic("connection pool corrupted")
	}
	if a.fetchHook != nil {
		if err := a.fetchHook(); err != nil {
			return nil, err
		}
	}
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.rows, nil
}

func newSyncFixture(t *testing.T, adapter *stubAdapter) (*SyncService, *model.Connector) {
	t.Helper()
	d := openTestData(t)
	svc := NewSyncService(d, NewAuditService(d), core.NewKeywordTransferPolicy())

	core.GlobalSources.Register("stub_source", adapter)

	conn, err := svc.CreateConnector(context.Background(), 1, dto.CreateConnectorReq{
		Name: "测试源",
		Type: "stub_source",
		Config: map[string]interface{}{
			"base_url":       "https://erp.example.com",
			"api_key_secret": "ERP_TOKEN",
		},
	})
	if err != nil {
		t.Fatalf("create connector: %v", err)
	}
	return svc, conn
}

func TestSyncHappyPathWithDedup(t *testing.T) {
	adapter := &stubAdapter{
		cols: []core.ColumnInfo{
			{Table: "energy_consumption", Column: "id", DataType: model.DataTypeNumeric, IsPrimaryKey: true},
			{Table: "energy_consumption", Column: "kwh", DataType: model.DataTypeNumeric},
		},
		rows: []core.RawRecord{
			{Table: "energy_consumption", Payload: map[string]interface{}{"id": 1.0, "kwh": 10.0}},
			{Table: "energy_consumption", Payload: map[string]interface{}{"id": 2.0, "kwh": 20.0}},
			// 与第一条 payload 完全相同：去重键命中，算 updated
			{Table: "energy_consumption", Payload: map[string]interface{}{"id": 1.0, "kwh": 10.0}},
		},
	}
	svc, conn := newSyncFixture(t, adapter)

	resp, err := svc.Sync(context.Background(), 1, conn.ID, "trace-1")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !resp.Success || resp.Result.Processed != 3 || resp.Result.Created != 2 || resp.Result.Updated != 1 {
		t.Fatalf("wrong counts: %+v", resp.Result)
	}

	var syncLog model.SyncLog
	if err := svc.Data.DB.First(&syncLog, resp.SyncLogID).Error; err != nil {
		t.Fatalf("sync log: %v", err)
	}
	if syncLog.Status != model.SyncStatusCompleted || syncLog.FinishedAt == nil {
		t.Fatalf("log must be terminal completed: %+v", syncLog)
	}

	// schema 缓存整体替换后应该是 2 列
	var schemaCount int64
	svc.Data.DB.Model(&model.SchemaCacheEntry{}).Where("connector_id = ?", conn.ID).Count(&schemaCount)
	if schemaCount != 2 {
		t.Fatalf("expected 2 schema entries, got %d", schemaCount)
	}

	// 去重后 staging 只有 2 行
	var rowCount int64
	svc.Data.DB.Model(&model.StagingRow{}).Where("connector_id = ?", conn.ID).Count(&rowCount)
	if rowCount != 2 {
		t.Fatalf("expected 2 staging rows after dedup, got %d", rowCount)
	}

	// 每次尝试都要有审计条目，且不含凭证名以外的任何 secret 值
	var audit model.AuditLog
	if err := svc.Data.DB.Where("event_type = ?", model.AuditEventSync).First(&audit).Error; err != nil {
		t.Fatalf("audit entry: %v", err)
	}
	if audit.Status != model.AuditStatusSuccess {
		t.Fatalf("audit status: %s", audit.Status)
	}
	wantHash := HashPayload(map[string]interface{}{"base_url": "https://erp.example.com"})
	if audit.InputHash != wantHash {
		t.Fatal("input hash must cover the config with secret references stripped")
	}
}

func TestSyncRepeatRunIsIdempotent(t *testing.T) {
	adapter := &stubAdapter{
		cols: []core.ColumnInfo{{Table: "suppliers", Column: "id", DataType: model.DataTypeNumeric, IsPrimaryKey: true}},
		rows: []core.RawRecord{{Table: "suppliers", Payload: map[string]interface{}{"id": 1.0}}},
	}
	svc, conn := newSyncFixture(t, adapter)

	for i := 0; i < 2; i++ {
		if _, err := svc.Sync(context.Background(), 1, conn.ID, "trace"); err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
	}
	var rowCount int64
	svc.Data.DB.Model(&model.StagingRow{}).Count(&rowCount)
	if rowCount != 1 {
		t.Fatalf("second run must not duplicate rows, got %d", rowCount)
	}
	var schemaCount int64
	svc.Data.DB.Model(&model.SchemaCacheEntry{}).Count(&schemaCount)
	if schemaCount != 1 {
		t.Fatalf("schema replace must not accumulate, got %d", schemaCount)
	}
}

func TestSyncFailureReachesTerminalState(t *testing.T) {
	adapter := &stubAdapter{
		cols:     []core.ColumnInfo{{Table: "issues", Column: "id", DataType: model.DataTypeNumeric}},
		fetchErr: core.NewTransientError(nil, "上游 503"),
	}
	svc, conn := newSyncFixture(t, adapter)

	resp, err := svc.Sync(context.Background(), 1, conn.ID, "trace")
	if err == nil {
		t.Fatal("expected sync error")
	}
	if !core.IsRetryable(err) {
		t.Fatalf("transient failure should be retryable: %v", err)
	}

	var syncLog model.SyncLog
	if err := svc.Data.DB.First(&syncLog, resp.SyncLogID).Error; err != nil {
		t.Fatalf("sync log: %v", err)
	}
	if syncLog.Status != model.SyncStatusFailed || syncLog.ErrorMsg == "" {
		t.Fatalf("log must be terminal failed with message: %+v", syncLog)
	}

	var connAfter model.Connector
	svc.Data.DB.First(&connAfter, conn.ID)
	if connAfter.LastSyncStatus != model.SyncStatusFailed {
		t.Fatalf("connector snapshot should be failed, got %s", connAfter.LastSyncStatus)
	}
}

func TestSyncCancellationStillTerminalizesAndAudits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &stubAdapter{
		cols: []core.ColumnInfo{{Table: "issues", Column: "id", DataType: model.DataTypeNumeric}},
	}
	// 拉取中途调用方取消：引擎不能留下 running 的日志，也不能少审计条目
	adapter.fetchHook = func() error {
		cancel()
		return ctx.Err()
	}
	svc, conn := newSyncFixture(t, adapter)

	resp, err := svc.Sync(ctx, 1, conn.ID, "trace")
	if !errors.Is(err, core.ErrTransient) {
		t.Fatalf("cancellation should surface as transient, got %v", err)
	}

	var syncLog model.SyncLog
	if err := svc.Data.DB.First(&syncLog, resp.SyncLogID).Error; err != nil {
		t.Fatalf("sync log: %v", err)
	}
	if syncLog.Status != model.SyncStatusFailed || syncLog.FinishedAt == nil {
		t.Fatalf("cancelled sync must end failed: %+v", syncLog)
	}
	if !strings.Contains(syncLog.ErrorMsg, "取消") {
		t.Fatalf("error message should record the cancellation, got %q", syncLog.ErrorMsg)
	}

	// ctx 已经死了，审计追加仍然要落库
	var audit model.AuditLog
	if err := svc.Data.DB.Where("event_type = ?", model.AuditEventSync).First(&audit).Error; err != nil {
		t.Fatalf("audit entry after cancellation: %v", err)
	}
	if audit.Status != model.AuditStatusFailed {
		t.Fatalf("audit status: %s", audit.Status)
	}
}

func TestSyncAdapterPanicBecomesFailedLog(t *testing.T) {
	adapter := &stubAdapter{
		cols:   []core.ColumnInfo{{Table: "messages", Column: "id", DataType: model.DataTypeNumeric}},
		panics: true,
	}
	svc, conn := newSyncFixture(t, adapter)

	resp, err := svc.Sync(context.Background(), 1, conn.ID, "trace")
	if !errors.Is(err, core.ErrTransient) {
		t.Fatalf("panic should surface as transient error, got %v", err)
	}
	var syncLog model.SyncLog
	svc.Data.DB.First(&syncLog, resp.SyncLogID)
	if syncLog.Status != model.SyncStatusFailed {
		t.Fatalf("panic must still leave a terminal log, got %s", syncLog.Status)
	}
}

func TestSyncUnknownSourceType(t *testing.T) {
	d := openTestData(t)
	svc := NewSyncService(d, NewAuditService(d), core.NewKeywordTransferPolicy())

	conn := &model.Connector{OrgID: 1, Name: "孤儿", Type: "teleporter", Config: []byte(`{}`)}
	if err := d.DB.Create(conn).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Sync(context.Background(), 1, conn.ID, "trace")
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("unknown type must be configuration error, got %v", err)
	}
}

func TestValidateConnectorHasNoSideEffects(t *testing.T) {
	d := openTestData(t)
	svc := NewSyncService(d, NewAuditService(d), core.NewKeywordTransferPolicy())
	core.GlobalSources.Register("stub_source", &stubAdapter{})

	resp := svc.Validate(dto.ValidateConnectorReq{Type: "stub_source", Config: map[string]interface{}{}})
	if resp.Valid {
		t.Fatal("missing base_url should fail validation")
	}
	resp = svc.Validate(dto.ValidateConnectorReq{Type: "stub_source", Config: map[string]interface{}{"base_url": "https://x"}})
	if !resp.Valid {
		t.Fatalf("valid config rejected: %s", resp.Message)
	}

	var connectors int64
	d.DB.Model(&model.Connector{}).Count(&connectors)
	var audits int64
	d.DB.Model(&model.AuditLog{}).Count(&audits)
	if connectors != 0 || audits != 0 {
		t.Fatal("validation must not persist anything")
	}
}

func TestCrossBorderFlagging(t *testing.T) {
	adapter := &stubAdapter{
		cols: []core.ColumnInfo{{Table: "suppliers", Column: "id", DataType: model.DataTypeNumeric}},
		rows: []core.RawRecord{
			{Table: "suppliers", Payload: map[string]interface{}{"id": 1.0, "destination": "overseas warehouse"}},
			{Table: "suppliers", Payload: map[string]interface{}{"id": 2.0, "destination": "local depot"}},
		},
	}
	svc, conn := newSyncFixture(t, adapter)
	if _, err := svc.Sync(context.Background(), 1, conn.ID, "trace"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	var flagged int64
	svc.Data.DB.Model(&model.StagingRow{}).Where("cross_border = ?", true).Count(&flagged)
	if flagged != 1 {
		t.Fatalf("expected exactly one cross-border row, got %d", flagged)
	}
}
