package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/model"
	"GreenLedger/server/internal/repository"
)

// ExecutionService 映射执行引擎：把 staging 行按档案的表/连接/字段
// 决策聚合成指标观测值。单行坏数据跳过计数，不让整批失败。
type ExecutionService struct {
	Data    *data.Data
	Staging repository.StagingRepository
	Audit   *AuditService
}

func NewExecutionService(d *data.Data, audit *AuditService) *ExecutionService {
	return &ExecutionService{
		Data:    d,
		Staging: repository.NewStagingRepository(d.DB),
		Audit:   audit,
	}
}

// transformSpec 字段变换描述符
type transformSpec struct {
	Op          string `json:"op"`
	Aggregation string `json:"aggregation"`
	GroupBy     string `json:"group_by"`
}

// stagingRecord 解码后的一行
type stagingRecord struct {
	payload map[string]interface{}
	period  string
}

// Execute 跑一个档案。draft 和 active 都可以执行（draft 用于试算）。
func (s *ExecutionService) Execute(ctx context.Context, orgID, profileID uint) (*dto.RunMappingResp, error) {
	var profile model.MappingProfile
	if err := s.Data.DB.WithContext(ctx).
		Preload("Tables").Preload("Joins").Preload("Fields").
		Where("org_id = ?", orgID).First(&profile, profileID).Error; err != nil {
		return nil, core.NewConfigError("映射档案不存在: %d", profileID)
	}

	// 零字段不算一次成功的执行
	if len(profile.Fields) == 0 {
		return nil, core.NewConfigError("no fields mapped")
	}

	// 1. 表别名 → staging 分区
	partitions := map[string][]stagingRecord{}
	for _, t := range profile.Tables {
		rows, err := s.Staging.Partition(ctx, orgID, t.ConnectorID, t.TableName)
		if err != nil {
			return nil, err
		}
		var records []stagingRecord
		for _, row := range rows {
			var payload map[string]interface{}
			if err := json.Unmarshal(row.Payload, &payload); err != nil {
				continue // 损坏的 payload 跳过
			}
			records = append(records, stagingRecord{payload: payload, period: row.Period})
		}
		partitions[t.TableName] = records
	}

	// 2. 连接键索引：右表键值集合，供 inner join 过滤
	rightKeys := map[string]map[string]bool{} // "table/key" -> 值集合
	for _, j := range profile.Joins {
		idxKey := j.RightTable + "/" + j.RightKey
		if _, ok := rightKeys[idxKey]; ok {
			continue
		}
		set := map[string]bool{}
		for _, rec := range partitions[j.RightTable] {
			if v, ok := rec.payload[j.RightKey]; ok {
				set[fmt.Sprintf("%v", v)] = true
			}
		}
		rightKeys[idxKey] = set
	}

	// 3. 逐字段聚合
	type obsKey struct {
		metric string
		period string
		bucket string
	}
	sums := map[obsKey]float64{}
	units := map[string]string{}
	skipped := 0
	metricsSeen := map[string]bool{}

	for _, field := range profile.Fields {
		var spec transformSpec
		if err := json.Unmarshal(field.Transform, &spec); err != nil || spec.Op == "" {
			// 描述符坏了只废这个字段，不废整批
			skipped++
			continue
		}

		for _, rec := range partitions[field.SourceTable] {
			if !passesJoins(rec, field.SourceTable, profile.Joins, rightKeys) {
				continue // 连接键解析不到，整行移出相关集
			}

			value, ok := numericValue(rec.payload[field.SourceColumn])
			if !ok {
				skipped++
				continue
			}

			bucket := ""
			if spec.GroupBy != "" {
				gv, ok := rec.payload[spec.GroupBy]
				if !ok {
					skipped++
					continue
				}
				bucket = fmt.Sprintf("%s=%v", spec.GroupBy, gv)
			}

			sums[obsKey{metric: field.MetricCode, period: rec.period, bucket: bucket}] += value
			metricsSeen[field.MetricCode] = true
		}
		units[field.MetricCode] = field.Unit
	}

	// 4. 覆盖式落库：同一档案重跑不累积
	if err := s.Data.DB.WithContext(ctx).Unscoped().
		Where("org_id = ? AND profile_id = ?", orgID, profileID).
		Delete(&model.MetricObservation{}).Error; err != nil {
		return nil, err
	}
	count := 0
	for key, value := range sums {
		obs := &model.MetricObservation{
			OrgID:      orgID,
			ProfileID:  profileID,
			MetricCode: key.metric,
			Period:     key.period,
			Value:      value,
			Unit:       units[key.metric],
			Bucket:     key.bucket,
		}
		if err := s.Data.DB.WithContext(ctx).Create(obs).Error; err != nil {
			return nil, err
		}
		count++
	}

	resp := &dto.RunMappingResp{
		Success:          true,
		MetricsProcessed: len(metricsSeen),
		Observations:     count,
		RowsSkipped:      skipped,
	}

	// 审计摘要盖处理的字段/表数，与单字段失败无关
	if _, err := s.Audit.Append(ctx, &model.AuditLog{
		OrgID:     orgID,
		AgentName: "mapping_execution_engine",
		EventType: model.AuditEventExecution,
		Actor:     fmt.Sprintf("profile:%d", profileID),
		Action: fmt.Sprintf("execution completed: fields=%d tables=%d metrics=%d observations=%d skipped=%d",
			len(profile.Fields), len(profile.Tables), len(metricsSeen), count, skipped),
		Status:    model.AuditStatusSuccess,
		InputHash: HashPayload(map[string]interface{}{"profile_id": profileID, "version": profile.Version}),
	}); err != nil {
		log.Printf("⚠️ 审计写入失败 (execution, org=%d): %v", orgID, err)
	}

	return resp, nil
}

// passesJoins 行是否留在相关集里：
// 作为左表出现的每个连接，连接键必须在 payload 里有值；
// inner join 还要求右表真的存在匹配值，left join 不要求。
func passesJoins(rec stagingRecord, table string, joins []model.MappingJoin, rightKeys map[string]map[string]bool) bool {
	for _, j := range joins {
		if j.LeftTable != table {
			continue
		}
		v, ok := rec.payload[j.LeftKey]
		if !ok || v == nil {
			return false
		}
		if j.JoinKind == model.JoinKindInner {
			set := rightKeys[j.RightTable+"/"+j.RightKey]
			if !set[fmt.Sprintf("%v", v)] {
				return false
			}
		}
	}
	return true
}

// numericValue JSON 数值或数值字符串都接受
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
