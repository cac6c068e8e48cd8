package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/model"
)

func init() {
	RegisterFormulas()
}

func seedObservation(t *testing.T, d *data.Data, orgID uint, metric, period string, value float64) {
	t.Helper()
	if err := d.DB.Create(&model.MetricObservation{
		OrgID: orgID, ProfileID: 1, MetricCode: metric, Period: period, Value: value,
	}).Error; err != nil {
		t.Fatalf("seed observation: %v", err)
	}
}

func createRule(t *testing.T, svc *KPIService, orgID uint, metric, formula, unit string) *model.KPIRule {
	t.Helper()
	rule, err := svc.CreateRule(context.Background(), orgID, dto.CreateKPIRuleReq{
		MetricCode: metric,
		Formula:    json.RawMessage(formula),
		Unit:       unit,
	})
	if err != nil {
		t.Fatalf("create rule %s: %v", metric, err)
	}
	return rule
}

func TestCreateRuleValidatesFormula(t *testing.T) {
	d := openTestData(t)
	svc := NewKPIService(d, NewAuditService(d))

	cases := []string{
		`{"field": "E1-1"}`,                      // 缺 type
		`{"type": "teleport"}`,                   // 未知类型
		`{"type": "field_sum"}`,                  // 缺 field
		`{"type": "sum", "fields": []}`,          // 空 fields
		`{"type": "ratio", "numerator": "S1-2"}`, // 缺 denominator
	}
	for _, formula := range cases {
		_, err := svc.CreateRule(context.Background(), 1, dto.CreateKPIRuleReq{
			MetricCode: "X", Formula: json.RawMessage(formula),
		})
		if !errors.Is(err, core.ErrConfiguration) {
			t.Fatalf("formula %s should be rejected, got %v", formula, err)
		}
	}
}

func TestEvaluateFieldSumAndSum(t *testing.T) {
	d := openTestData(t)
	svc := NewKPIService(d, NewAuditService(d))

	seedObservation(t, d, 1, "E1-1", "2025-Q1", 120)
	// E1-2 没有观测：sum 按 0 计，field_sum 报数据质量发现

	createRule(t, svc, 1, "E1-1", `{"type": "field_sum", "field": "E1-1"}`, "tCO2e")
	createRule(t, svc, 1, "E1-TOTAL", `{"type": "sum", "fields": ["E1-1", "E1-2"]}`, "tCO2e")
	createRule(t, svc, 1, "E1-2", `{"type": "field_sum", "field": "E1-2"}`, "tCO2e")

	resp, err := svc.Evaluate(context.Background(), 1, "2025-Q1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if resp.RulesEvaluated != 3 || resp.Results != 2 {
		t.Fatalf("expected 3 rules / 2 results, got %+v", resp)
	}
	if len(resp.Findings) != 1 || resp.Findings[0].MetricCode != "E1-2" {
		t.Fatalf("expected one finding for E1-2, got %+v", resp.Findings)
	}

	var total model.KPIResult
	if err := d.DB.Where("metric_code = ?", "E1-TOTAL").First(&total).Error; err != nil {
		t.Fatalf("result: %v", err)
	}
	if total.Value != 120 || total.Undefined {
		t.Fatalf("sum should tolerate the missing operand: %+v", total)
	}
}

func TestEvaluateRatioDenominatorZero(t *testing.T) {
	d := openTestData(t)
	svc := NewKPIService(d, NewAuditService(d))

	seedObservation(t, d, 1, "S1-2", "2025-Q1", 45)
	seedObservation(t, d, 1, "S1-1", "2025-Q1", 0)

	createRule(t, svc, 1, "S1-RATIO", `{"type": "ratio", "numerator": "S1-2", "denominator": "S1-1"}`, "percent")

	resp, err := svc.Evaluate(context.Background(), 1, "2025-Q1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if resp.Results != 1 {
		t.Fatalf("undefined is still a stored result: %+v", resp)
	}

	var r model.KPIResult
	if err := d.DB.Where("metric_code = ?", "S1-RATIO").First(&r).Error; err != nil {
		t.Fatalf("result: %v", err)
	}
	if !r.Undefined {
		t.Fatal("ratio with zero denominator must be explicitly undefined")
	}
}

func TestEvaluateUpsertsOnRerun(t *testing.T) {
	d := openTestData(t)
	svc := NewKPIService(d, NewAuditService(d))

	seedObservation(t, d, 1, "E1-1", "2025-Q1", 100)
	createRule(t, svc, 1, "E1-1", `{"type": "field_sum", "field": "E1-1"}`, "tCO2e")

	if _, err := svc.Evaluate(context.Background(), 1, "2025-Q1"); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	// 观测修正后重算：同键覆盖，不产生第二行
	if err := d.DB.Model(&model.MetricObservation{}).
		Where("metric_code = ?", "E1-1").Update("value", 250).Error; err != nil {
		t.Fatalf("update observation: %v", err)
	}
	if _, err := svc.Evaluate(context.Background(), 1, "2025-Q1"); err != nil {
		t.Fatalf("second evaluate: %v", err)
	}

	var results []model.KPIResult
	d.DB.Where("metric_code = ?", "E1-1").Find(&results)
	if len(results) != 1 || results[0].Value != 250 {
		t.Fatalf("expected single overwritten result, got %+v", results)
	}
}

func TestEvaluateSanityFindings(t *testing.T) {
	d := openTestData(t)
	svc := NewKPIService(d, NewAuditService(d))

	seedObservation(t, d, 1, "S1-9", "2025-Q1", 150) // 百分比越界
	seedObservation(t, d, 1, "E1-1", "2025-Q1", -5)  // 绝对量为负

	createRule(t, svc, 1, "S1-9", `{"type": "field_sum", "field": "S1-9"}`, "percent")
	createRule(t, svc, 1, "E1-1", `{"type": "field_sum", "field": "E1-1"}`, "tCO2e")

	resp, err := svc.Evaluate(context.Background(), 1, "2025-Q1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(resp.Findings) != 2 {
		t.Fatalf("expected 2 sanity findings, got %+v", resp.Findings)
	}
	// 上报不拦截：越界值照常落库
	var r model.KPIResult
	if err := d.DB.Where("metric_code = ?", "S1-9").First(&r).Error; err != nil {
		t.Fatalf("result: %v", err)
	}
	if r.Value != 150 {
		t.Fatalf("out-of-range value must still be stored, got %v", r.Value)
	}
}

func TestEvaluateRejectsBadPeriod(t *testing.T) {
	d := openTestData(t)
	svc := NewKPIService(d, NewAuditService(d))

	for _, p := range []string{"2025", "2025-Q5", "2025-13", "Q1-2025", ""} {
		if _, err := svc.Evaluate(context.Background(), 1, p); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("period %q should be rejected, got %v", p, err)
		}
	}
}

func TestEvaluateAllPeriods(t *testing.T) {
	d := openTestData(t)
	svc := NewKPIService(d, NewAuditService(d))

	seedObservation(t, d, 1, "E1-1", "2025-Q1", 10)
	seedObservation(t, d, 1, "E1-1", "2025-Q2", 20)
	seedObservation(t, d, 1, "E1-1", "2025-Q3", 30)

	createRule(t, svc, 1, "E1-1", `{"type": "field_sum", "field": "E1-1"}`, "tCO2e")

	resp, err := svc.EvaluateAllPeriods(context.Background(), 1)
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	if resp.RulesEvaluated != 1 || resp.Results != 3 {
		t.Fatalf("expected 1 rule over 3 periods, got %+v", resp)
	}

	results, err := svc.ListResults(context.Background(), 1, dto.KPIResultListReq{})
	if err != nil || len(results) != 3 {
		t.Fatalf("expected 3 results, got %d (%v)", len(results), err)
	}
	filtered, err := svc.ListResults(context.Background(), 1, dto.KPIResultListReq{Period: "2025-Q2"})
	if err != nil || len(filtered) != 1 || filtered[0].Value != 20 {
		t.Fatalf("period filter broken: %+v (%v)", filtered, err)
	}
}
