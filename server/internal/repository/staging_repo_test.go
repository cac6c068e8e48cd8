package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "repo_test.db")
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dbPath}, &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := data.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func stagingRow(t *testing.T, table string, payload map[string]interface{}) *model.StagingRow {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sum := sha256.Sum256(b)
	return &model.StagingRow{
		OrgID:       1,
		ConnectorID: 10,
		SourceTable: table,
		Payload:     b,
		ContentHash: hex.EncodeToString(sum[:]),
		Period:      "2025-Q1",
		ArrivedAt:   time.Now(),
	}
}

func TestInsertDedupsByContentHash(t *testing.T) {
	repo := NewStagingRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Insert(ctx, stagingRow(t, "energy_consumption", map[string]interface{}{"kwh": 10}))
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	// 同表同 payload：不产生第二行
	created, err = repo.Insert(ctx, stagingRow(t, "energy_consumption", map[string]interface{}{"kwh": 10}))
	if err != nil || created {
		t.Fatalf("duplicate insert: created=%v err=%v", created, err)
	}
	// 同 payload 不同表：各自独立
	created, err = repo.Insert(ctx, stagingRow(t, "emission_records", map[string]interface{}{"kwh": 10}))
	if err != nil || !created {
		t.Fatalf("other table insert: created=%v err=%v", created, err)
	}
}

func TestInsertDedupScopedPerConnector(t *testing.T) {
	repo := NewStagingRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Insert(ctx, stagingRow(t, "energy_consumption", map[string]interface{}{"kwh": 10}))
	if err != nil || !created {
		t.Fatalf("first tenant insert: created=%v err=%v", created, err)
	}

	// 另一个租户的连接器撞出相同的表名和 payload：不能被当成重复吞掉
	other := stagingRow(t, "energy_consumption", map[string]interface{}{"kwh": 10})
	other.OrgID = 2
	other.ConnectorID = 20
	created, err = repo.Insert(ctx, other)
	if err != nil || !created {
		t.Fatalf("second tenant insert: created=%v err=%v", created, err)
	}

	part, err := repo.Partition(ctx, 2, 20, "energy_consumption")
	if err != nil || len(part) != 1 {
		t.Fatalf("second tenant partition: %d rows (%v)", len(part), err)
	}
}

func TestInsertBatchCountsCreated(t *testing.T) {
	repo := NewStagingRepository(openTestDB(t))
	ctx := context.Background()

	rows := []*model.StagingRow{
		stagingRow(t, "workforce", map[string]interface{}{"emp": 1}),
		stagingRow(t, "workforce", map[string]interface{}{"emp": 2}),
		stagingRow(t, "workforce", map[string]interface{}{"emp": 1}), // 批内重复
	}
	created, err := repo.InsertBatch(ctx, rows)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 created, got %d", created)
	}

	part, err := repo.Partition(ctx, 1, 10, "workforce")
	if err != nil || len(part) != 2 {
		t.Fatalf("partition: %d rows (%v)", len(part), err)
	}
	// Partition 按插入顺序返回
	if part[0].ID > part[1].ID {
		t.Fatal("partition must be ordered by id")
	}
}

func TestSchemaReplaceIsFullSwap(t *testing.T) {
	db := openTestDB(t)
	repo := NewSchemaRepository(db)
	ctx := context.Background()

	first := []model.SchemaCacheEntry{
		{SourceTableName: "energy_consumption", ColumnName: "kwh", DataType: model.DataTypeNumeric},
		{SourceTableName: "energy_consumption", ColumnName: "site", DataType: model.DataTypeText},
	}
	if err := repo.Replace(ctx, 1, 10, first); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	// 第二次发现少了一列：旧条目不能残留
	second := []model.SchemaCacheEntry{
		{SourceTableName: "energy_consumption", ColumnName: "kwh", DataType: model.DataTypeNumeric},
	}
	if err := repo.Replace(ctx, 1, 10, second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	snap, err := repo.Snapshot(ctx, 1, []uint{10})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 1 || snap[0].ColumnName != "kwh" {
		t.Fatalf("replace must be a full swap, got %+v", snap)
	}

	// 别的连接器的条目不受影响
	if err := repo.Replace(ctx, 1, 20, first); err != nil {
		t.Fatalf("other connector: %v", err)
	}
	if err := repo.Replace(ctx, 1, 10, nil); err != nil {
		t.Fatalf("empty replace: %v", err)
	}
	snap, _ = repo.Snapshot(ctx, 1, nil)
	if len(snap) != 2 {
		t.Fatalf("connector 20 entries must survive, got %d", len(snap))
	}
}
