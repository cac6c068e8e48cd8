package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// KPIService 规则求值器：active 规则 × 当期观测值 → KPI 结果。
// 单条规则失败不影响其他规则（部分成功 + 逐项失败清单）。
type KPIService struct {
	Data  *data.Data
	Audit *AuditService
}

func NewKPIService(d *data.Data, audit *AuditService) *KPIService {
	return &KPIService{Data: d, Audit: audit}
}

// CreateRule 保存规则前先让公式处理器 Parse 一遍，必填字段缺失直接拒
func (s *KPIService) CreateRule(ctx context.Context, orgID uint, req dto.CreateKPIRuleReq) (*model.KPIRule, error) {
	kind, err := core.FormulaKind(req.Formula)
	if err != nil {
		return nil, err
	}
	handler, err := core.GlobalFormulas.Get(kind)
	if err != nil {
		return nil, err
	}
	if err := handler.Parse(req.Formula); err != nil {
		return nil, err
	}

	rule := &model.KPIRule{
		OrgID:       orgID,
		MetricCode:  req.MetricCode,
		Formula:     datatypes.JSON(req.Formula),
		Unit:        req.Unit,
		StandardRef: req.StandardRef,
		Active:      true,
	}
	if err := s.Data.DB.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *KPIService) ListRules(ctx context.Context, orgID uint) ([]model.KPIRule, error) {
	var rules []model.KPIRule
	err := s.Data.DB.WithContext(ctx).
		Where("org_id = ?", orgID).Order("metric_code").Find(&rules).Error
	return rules, err
}

// Evaluate 对某个报告期跑全部 active 规则
func (s *KPIService) Evaluate(ctx context.Context, orgID uint, period string) (*dto.EvaluateResp, error) {
	if !core.IsValidPeriod(period) {
		return nil, core.NewValidationError("报告期格式非法: %q (要 YYYY-QN 或 YYYY-MM)", period)
	}

	var rules []model.KPIRule
	if err := s.Data.DB.WithContext(ctx).
		Where("org_id = ? AND active = ?", orgID, true).Find(&rules).Error; err != nil {
		return nil, err
	}

	lookup := s.observationLookup(ctx, orgID, period)

	resp := &dto.EvaluateResp{Success: true}
	for _, rule := range rules {
		resp.RulesEvaluated++

		kind, err := core.FormulaKind(json.RawMessage(rule.Formula))
		if err != nil {
			resp.Findings = append(resp.Findings, dto.QualityFinding{
				MetricCode: rule.MetricCode, Period: period, Reason: err.Error(),
			})
			continue
		}
		handler, err := core.GlobalFormulas.Get(kind)
		if err != nil {
			resp.Findings = append(resp.Findings, dto.QualityFinding{
				MetricCode: rule.MetricCode, Period: period, Reason: err.Error(),
			})
			continue
		}

		result, err := handler.Evaluate(json.RawMessage(rule.Formula), lookup)
		if err != nil {
			// 无数据/坏公式只废这一条规则
			resp.Findings = append(resp.Findings, dto.QualityFinding{
				MetricCode: rule.MetricCode, Period: period, Reason: err.Error(),
			})
			continue
		}

		// sanity 检查：违规上报，不截断、不拦截落库
		if !result.Undefined {
			if reason := sanityCheck(rule, result.Value); reason != "" {
				resp.Findings = append(resp.Findings, dto.QualityFinding{
					MetricCode: rule.MetricCode, Period: period, Value: result.Value, Reason: reason,
				})
			}
		}

		if err := s.upsertResult(ctx, orgID, rule, period, result); err != nil {
			return nil, err
		}
		resp.Results++
	}

	if _, err := s.Audit.Append(ctx, &model.AuditLog{
		OrgID:     orgID,
		AgentName: "kpi_rule_evaluator",
		EventType: model.AuditEventKPI,
		Actor:     fmt.Sprintf("period:%s", period),
		Action: fmt.Sprintf("evaluation completed: rules=%d results=%d findings=%d",
			resp.RulesEvaluated, resp.Results, len(resp.Findings)),
		Status:    model.AuditStatusSuccess,
		InputHash: HashPayload(map[string]interface{}{"period": period, "rules": len(rules)}),
	}); err != nil {
		log.Printf("⚠️ 审计写入失败 (kpi, org=%d): %v", orgID, err)
	}

	return resp, nil
}

// EvaluateAllPeriods 对观测里出现过的每个报告期各跑一轮
func (s *KPIService) EvaluateAllPeriods(ctx context.Context, orgID uint) (*dto.EvaluateResp, error) {
	var periods []string
	if err := s.Data.DB.WithContext(ctx).Model(&model.MetricObservation{}).
		Where("org_id = ?", orgID).Distinct("period").Order("period").
		Pluck("period", &periods).Error; err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return nil, core.NewValidationError("没有任何指标观测，先跑映射执行")
	}

	total := &dto.EvaluateResp{Success: true}
	for _, p := range periods {
		r, err := s.Evaluate(ctx, orgID, p)
		if err != nil {
			return nil, err
		}
		// RulesEvaluated 取单轮值：规则集是同一套，不按期数翻倍
		total.RulesEvaluated = r.RulesEvaluated
		total.Results += r.Results
		total.Findings = append(total.Findings, r.Findings...)
	}
	return total, nil
}

func (s *KPIService) ListResults(ctx context.Context, orgID uint, req dto.KPIResultListReq) ([]model.KPIResult, error) {
	var results []model.KPIResult
	db := s.Data.DB.WithContext(ctx).Where("org_id = ?", orgID)
	if req.Period != "" {
		db = db.Where("period = ?", req.Period)
	}
	err := db.Order("metric_code, period").Find(&results).Error
	return results, err
}

// observationLookup 观测查询闭包：同指标同期多条观测（多档案/多分桶）累加
func (s *KPIService) observationLookup(ctx context.Context, orgID uint, period string) core.ObservationLookup {
	return func(metricCode string) (float64, bool) {
		var rows []model.MetricObservation
		if err := s.Data.DB.WithContext(ctx).
			Where("org_id = ? AND metric_code = ? AND period = ?", orgID, metricCode, period).
			Find(&rows).Error; err != nil {
			return 0, false
		}
		if len(rows) == 0 {
			return 0, false
		}
		total := 0.0
		for _, r := range rows {
			total += r.Value
		}
		return total, true
	}
}

// upsertResult (org, metric, period) 唯一，重算覆盖不重复
func (s *KPIService) upsertResult(ctx context.Context, orgID uint, rule model.KPIRule, period string, result core.FormulaResult) error {
	var existing model.KPIResult
	err := s.Data.DB.WithContext(ctx).
		Where("org_id = ? AND metric_code = ? AND period = ?", orgID, rule.MetricCode, period).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return s.Data.DB.WithContext(ctx).Create(&model.KPIResult{
			OrgID:      orgID,
			MetricCode: rule.MetricCode,
			Period:     period,
			Value:      result.Value,
			Unit:       rule.Unit,
			Undefined:  result.Undefined,
		}).Error
	}
	if err != nil {
		return err
	}
	return s.Data.DB.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"value":     result.Value,
		"unit":      rule.Unit,
		"undefined": result.Undefined,
	}).Error
}

// sanityCheck 领域约束：绝对量不能为负，百分比类 0-100
func sanityCheck(rule model.KPIRule, value float64) string {
	unit := strings.ToLower(rule.Unit)
	if unit == "percent" || unit == "%" || strings.Contains(strings.ToLower(rule.MetricCode), "ratio") {
		if value < 0 || value > 100 {
			return fmt.Sprintf("百分比越界: %.2f", value)
		}
		return ""
	}
	if value < 0 {
		return fmt.Sprintf("绝对量为负: %.2f", value)
	}
	return ""
}
