package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/model"
	"GreenLedger/server/internal/repository"
)

// 四张领域相关表 + 一张无关表的 schema 快照
func seedInferenceSchema(t *testing.T, svc *InferenceService, orgID, connectorID uint) {
	t.Helper()
	entries := []model.SchemaCacheEntry{
		// 能耗表：FK 声明指向 suppliers
		{SourceTableName: "energy_consumption", ColumnName: "id", DataType: model.DataTypeNumeric, IsPrimaryKey: true},
		{SourceTableName: "energy_consumption", ColumnName: "kwh", DataType: model.DataTypeNumeric},
		{SourceTableName: "energy_consumption", ColumnName: "supplier_id", DataType: model.DataTypeNumeric,
			IsForeignKey: true, ForeignTable: "suppliers", ForeignColumn: "id"},
		// 供应商表
		{SourceTableName: "suppliers", ColumnName: "id", DataType: model.DataTypeNumeric, IsPrimaryKey: true},
		{SourceTableName: "suppliers", ColumnName: "supplier_count", DataType: model.DataTypeNumeric},
		// 废弃物表：没有 FK 声明，supplier_id 只能靠名字猜
		{SourceTableName: "waste_records", ColumnName: "id", DataType: model.DataTypeNumeric, IsPrimaryKey: true},
		{SourceTableName: "waste_records", ColumnName: "waste_generated", DataType: model.DataTypeNumeric},
		{SourceTableName: "waste_records", ColumnName: "supplier_id", DataType: model.DataTypeNumeric},
		// 人力表：有 gender 列
		{SourceTableName: "workforce", ColumnName: "headcount", DataType: model.DataTypeNumeric},
		{SourceTableName: "workforce", ColumnName: "gender", DataType: model.DataTypeText},
		// 无关表：整表不进推断范围
		{SourceTableName: "invoices", ColumnName: "amount", DataType: model.DataTypeNumeric},
	}
	repo := repository.NewSchemaRepository(svc.Data.DB)
	if err := repo.Replace(context.Background(), orgID, connectorID, entries); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
}

func TestSuggestProducesDraftProfile(t *testing.T) {
	d := openTestData(t)
	audit := NewAuditService(d)
	svc := NewInferenceService(d, audit)
	seedInferenceSchema(t, svc, 1, 10)

	profile, summary, err := svc.Suggest(context.Background(), 1, dto.SuggestMappingReq{ConnectorIDs: []uint{10}})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if profile.Status != model.ProfileStatusDraft {
		t.Fatalf("suggestion must land as draft, got %s", profile.Status)
	}
	// invoices 不该出现在表绑定里
	if summary.Tables != 4 {
		t.Fatalf("expected 4 relevant tables, got %d", summary.Tables)
	}
	for _, tb := range profile.Tables {
		if tb.TableName == "invoices" {
			t.Fatal("irrelevant table leaked into profile")
		}
	}
}

func TestSuggestJoinConfidences(t *testing.T) {
	d := openTestData(t)
	svc := NewInferenceService(d, NewAuditService(d))
	seedInferenceSchema(t, svc, 1, 10)

	profile, _, err := svc.Suggest(context.Background(), 1, dto.SuggestMappingReq{ConnectorIDs: []uint{10}})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}

	var fkJoin, heuristicJoin *model.MappingJoin
	for i := range profile.Joins {
		j := &profile.Joins[i]
		if j.LeftTable == "energy_consumption" && j.RightTable == "suppliers" && j.Confidence == model.ConfidenceForeignKey {
			fkJoin = j
		}
		if j.LeftTable == "waste_records" && j.RightTable == "suppliers" && j.Confidence == model.ConfidenceHeuristic {
			heuristicJoin = j
		}
	}
	if fkJoin == nil {
		t.Fatal("declared FK should yield a join suggestion at 0.95")
	}
	if fkJoin.JoinKind != model.JoinKindInner {
		t.Fatalf("FK join must be inner, got %s", fkJoin.JoinKind)
	}
	if heuristicJoin == nil {
		t.Fatal("name heuristic should yield a join suggestion at 0.75")
	}
	if heuristicJoin.JoinKind != model.JoinKindLeft {
		t.Fatalf("heuristic join must be left, got %s", heuristicJoin.JoinKind)
	}
	if heuristicJoin.RightKey != "id" {
		t.Fatalf("heuristic join should target the PK, got %s", heuristicJoin.RightKey)
	}
}

func TestSuggestFieldPatternsAndGrouping(t *testing.T) {
	d := openTestData(t)
	svc := NewInferenceService(d, NewAuditService(d))
	seedInferenceSchema(t, svc, 1, 10)

	profile, _, err := svc.Suggest(context.Background(), 1, dto.SuggestMappingReq{ConnectorIDs: []uint{10}})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}

	byMetric := map[string]model.MappingField{}
	for _, f := range profile.Fields {
		byMetric[f.MetricCode] = f
	}

	if f, ok := byMetric["E1-5"]; !ok || f.SourceColumn != "kwh" {
		t.Fatalf("kwh column should map to E1-5, got %+v", byMetric["E1-5"])
	}
	if f, ok := byMetric["E5-1"]; !ok || f.SourceColumn != "waste_generated" {
		t.Fatalf("waste_generated should map to E5-1, got %+v", byMetric["E5-1"])
	}
	if _, ok := byMetric["G1-2"]; !ok {
		t.Fatal("supplier_count should map to G1-2")
	}

	// workforce 表有 gender 列，S1 类指标应该建议按 gender 分桶
	f, ok := byMetric["S1-1"]
	if !ok {
		t.Fatal("headcount should map to S1-1")
	}
	var spec struct {
		Op      string `json:"op"`
		GroupBy string `json:"group_by"`
	}
	if err := json.Unmarshal(f.Transform, &spec); err != nil {
		t.Fatalf("transform: %v", err)
	}
	if spec.Op != "sum" || spec.GroupBy != "gender" {
		t.Fatalf("expected sum grouped by gender, got %+v", spec)
	}
}

func TestSuggestIsStructurallyIdempotent(t *testing.T) {
	d := openTestData(t)
	svc := NewInferenceService(d, NewAuditService(d))
	seedInferenceSchema(t, svc, 1, 10)

	_, first, err := svc.Suggest(context.Background(), 1, dto.SuggestMappingReq{ConnectorIDs: []uint{10}})
	if err != nil {
		t.Fatalf("first suggest: %v", err)
	}
	p2, second, err := svc.Suggest(context.Background(), 1, dto.SuggestMappingReq{ConnectorIDs: []uint{10}})
	if err != nil {
		t.Fatalf("second suggest: %v", err)
	}
	if *first != *second {
		t.Fatalf("same snapshot should yield same structure: %+v vs %+v", first, second)
	}
	// 重跑是新档案，不覆盖旧的
	if p2.Status != model.ProfileStatusDraft {
		t.Fatal("rerun must produce a fresh draft")
	}
	profiles, err := svc.ListProfiles(context.Background(), 1)
	if err != nil || len(profiles) != 2 {
		t.Fatalf("expected 2 drafts, got %d (%v)", len(profiles), err)
	}
}

func TestSuggestWithoutSchemaFails(t *testing.T) {
	d := openTestData(t)
	svc := NewInferenceService(d, NewAuditService(d))

	_, _, err := svc.Suggest(context.Background(), 1, dto.SuggestMappingReq{ConnectorIDs: []uint{99}})
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestActivateProfile(t *testing.T) {
	d := openTestData(t)
	svc := NewInferenceService(d, NewAuditService(d))
	seedInferenceSchema(t, svc, 1, 10)

	profile, _, err := svc.Suggest(context.Background(), 1, dto.SuggestMappingReq{ConnectorIDs: []uint{10}})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if err := svc.ActivateProfile(context.Background(), 1, profile.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	// 二次激活：已经不是 draft 了
	if err := svc.ActivateProfile(context.Background(), 1, profile.ID); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("re-activate should fail, got %v", err)
	}
	// 别的组织不能激活
	if err := svc.ActivateProfile(context.Background(), 2, profile.ID); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("cross-org activate should fail, got %v", err)
	}
}
