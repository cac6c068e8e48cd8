package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/model"
	"GreenLedger/server/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// InferenceService 映射推断引擎：对 schema 快照做一次只读计算，
// 产出一个 draft 档案。从不改动已有的 active 档案。
type InferenceService struct {
	Data   *data.Data
	Schema repository.SchemaRepository
	Audit  *AuditService
}

func NewInferenceService(d *data.Data, audit *AuditService) *InferenceService {
	return &InferenceService{
		Data:   d,
		Schema: repository.NewSchemaRepository(d.DB),
		Audit:  audit,
	}
}

// 领域相关表名模式：能匹配上的表才进入推断范围，
// 匹配不上的整表排除——宁可漏也不在无关表上出误报。
var relevantTablePatterns = []string{
	"energy", "power", "electricity", "fuel",
	"emission", "carbon", "ghg", "scope",
	"water",
	"waste", "recycl",
	"workforce", "employee", "staff", "headcount", "diversity", "gender",
	"supplier", "supply", "procurement", "vendor",
}

// metricPattern 一个指标代码的列名模式表。
// 每个代码内部按顺序第一个命中即停；一列可以命中多个代码，
// 全部作为独立建议发出，去重留给人工复核。
type metricPattern struct {
	Code     string
	Unit     string
	Patterns []string
}

var metricPatterns = []metricPattern{
	{Code: "E1-1", Unit: "tCO2e", Patterns: []string{"scope1", "directemission"}},
	{Code: "E1-2", Unit: "tCO2e", Patterns: []string{"scope2", "indirectemission", "purchasedenergyemission"}},
	{Code: "E1-5", Unit: "MWh", Patterns: []string{"energyconsumption", "electricityusage", "electricitykwh", "powerusage", "fuelconsumption", "kwh", "mwh"}},
	{Code: "E3-1", Unit: "m3", Patterns: []string{"waterconsumption", "waterusage", "waterwithdrawal"}},
	{Code: "E5-1", Unit: "t", Patterns: []string{"wastegenerated", "wastetotal", "wasteamount", "landfill"}},
	{Code: "E5-2", Unit: "t", Patterns: []string{"wasterecycled", "recycled"}},
	{Code: "S1-1", Unit: "FTE", Patterns: []string{"headcount", "employeecount", "totalemployees", "fte", "staffcount"}},
	{Code: "S1-9", Unit: "percent", Patterns: []string{"femaleratio", "diversityratio", "genderratio", "femalepercent"}},
	{Code: "G1-2", Unit: "count", Patterns: []string{"suppliercount", "supplierstotal", "vendorcount"}},
}

// Suggest 对指定连接器的 schema 快照跑一轮推断，结果永远落成新的 draft
func (s *InferenceService) Suggest(ctx context.Context, orgID uint, req dto.SuggestMappingReq) (*model.MappingProfile, *dto.SuggestionSummary, error) {
	entries, err := s.Schema.Snapshot(ctx, orgID, req.ConnectorIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, core.NewConfigError("所选连接器没有 schema 缓存，先跑一次同步")
	}

	// 1. 表相关性过滤
	relevant := filterRelevantTables(entries)
	if len(relevant) == 0 {
		return nil, nil, core.NewConfigError("schema 里没有匹配 ESG 领域模式的表")
	}

	profile := &model.MappingProfile{
		OrgID:   orgID,
		Name:    fmt.Sprintf("建议映射 %s", time.Now().Format("2006-01-02 15:04")),
		Version: uuid.New().String(),
		Status:  model.ProfileStatusDraft,
	}

	// 2. 表绑定（排序保证重跑结构一致）
	tableKeys := make([]string, 0, len(relevant))
	for key := range relevant {
		tableKeys = append(tableKeys, key)
	}
	sort.Strings(tableKeys)

	tableNames := map[string]bool{}
	for _, key := range tableKeys {
		cols := relevant[key]
		profile.Tables = append(profile.Tables, model.MappingTable{
			Alias:       cols[0].SourceTableName,
			ConnectorID: cols[0].ConnectorID,
			TableName:   cols[0].SourceTableName,
		})
		tableNames[cols[0].SourceTableName] = true
	}

	// 3. 连接推断
	profile.Joins = inferJoins(tableKeys, relevant, tableNames)

	// 4. 字段推断（只看数值列）
	profile.Fields = inferFields(tableKeys, relevant)

	if err := s.Data.DB.WithContext(ctx).Create(profile).Error; err != nil {
		return nil, nil, err
	}

	summary := &dto.SuggestionSummary{
		Tables: len(profile.Tables),
		Joins:  len(profile.Joins),
		Fields: len(profile.Fields),
	}

	if _, err := s.Audit.Append(ctx, &model.AuditLog{
		OrgID:     orgID,
		AgentName: "mapping_inference_engine",
		EventType: model.AuditEventInference,
		Actor:     fmt.Sprintf("profile:%d", profile.ID),
		Action: fmt.Sprintf("inference completed: tables=%d joins=%d fields=%d",
			summary.Tables, summary.Joins, summary.Fields),
		Status:    model.AuditStatusSuccess,
		InputHash: HashPayload(req.ConnectorIDs),
	}); err != nil {
		log.Printf("⚠️ 审计写入失败 (inference, org=%d): %v", orgID, err)
	}

	return profile, summary, nil
}

// ActivateProfile 人工复核后把 draft 转 active
func (s *InferenceService) ActivateProfile(ctx context.Context, orgID, profileID uint) error {
	res := s.Data.DB.WithContext(ctx).Model(&model.MappingProfile{}).
		Where("id = ? AND org_id = ? AND status = ?", profileID, orgID, model.ProfileStatusDraft).
		Update("status", model.ProfileStatusActive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.NewConfigError("draft 档案不存在: %d", profileID)
	}
	return nil
}

func (s *InferenceService) ListProfiles(ctx context.Context, orgID uint) ([]model.MappingProfile, error) {
	var profiles []model.MappingProfile
	err := s.Data.DB.WithContext(ctx).
		Preload("Tables").Preload("Joins").Preload("Fields").
		Where("org_id = ?", orgID).Order("created_at desc").
		Find(&profiles).Error
	return profiles, err
}

// filterRelevantTables 按 连接器+表 分组并过滤领域相关表
func filterRelevantTables(entries []model.SchemaCacheEntry) map[string][]model.SchemaCacheEntry {
	grouped := map[string][]model.SchemaCacheEntry{}
	for _, e := range entries {
		if !isRelevantTable(e.SourceTableName) {
			continue
		}
		key := fmt.Sprintf("%d/%s", e.ConnectorID, e.SourceTableName)
		grouped[key] = append(grouped[key], e)
	}
	return grouped
}

func isRelevantTable(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range relevantTablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// inferJoins 两条路线：
//  a) schema 元数据声明的外键 → inner join，0.95（这是确定的）
//  b) 名字启发式：列名同时含目标表名和 "id" → left join 到目标表主键，0.75
// 同一对表两种建议可以并存，不在这层去重。
func inferJoins(tableKeys []string, relevant map[string][]model.SchemaCacheEntry, tableNames map[string]bool) []model.MappingJoin {
	var joins []model.MappingJoin

	// 每张表的主键列（启发式连接的落点）
	primaryKeys := map[string]string{}
	for _, key := range tableKeys {
		for _, col := range relevant[key] {
			if col.IsPrimaryKey {
				primaryKeys[col.SourceTableName] = col.ColumnName
				break
			}
		}
	}

	for _, key := range tableKeys {
		for _, col := range relevant[key] {
			// a) 声明外键
			if col.IsForeignKey && col.ForeignTable != "" && tableNames[col.ForeignTable] {
				joins = append(joins, model.MappingJoin{
					LeftTable:  col.SourceTableName,
					RightTable: col.ForeignTable,
					LeftKey:    col.ColumnName,
					RightKey:   col.ForeignColumn,
					JoinKind:   model.JoinKindInner,
					Confidence: model.ConfidenceForeignKey,
				})
				continue
			}

			// b) 名字启发式
			colLower := strings.ToLower(col.ColumnName)
			if !strings.Contains(colLower, "id") {
				continue
			}
			for target, pk := range primaryKeys {
				if target == col.SourceTableName {
					continue
				}
				if strings.Contains(colLower, strings.ToLower(singular(target))) {
					joins = append(joins, model.MappingJoin{
						LeftTable:  col.SourceTableName,
						RightTable: target,
						LeftKey:    col.ColumnName,
						RightKey:   pk,
						JoinKind:   model.JoinKindLeft,
						Confidence: model.ConfidenceHeuristic,
					})
				}
			}
		}
	}

	// 排序保证重跑产物结构一致
	sort.Slice(joins, func(i, j int) bool {
		a, b := joins[i], joins[j]
		if a.LeftTable != b.LeftTable {
			return a.LeftTable < b.LeftTable
		}
		if a.RightTable != b.RightTable {
			return a.RightTable < b.RightTable
		}
		return a.LeftKey < b.LeftKey
	})
	return joins
}

// inferFields 只考虑数值列，对固定顺序的指标模式表逐个试；
// 单个代码内第一个模式命中即停，跨代码可以多次命中全部发出。
func inferFields(tableKeys []string, relevant map[string][]model.SchemaCacheEntry) []model.MappingField {
	var fields []model.MappingField

	for _, key := range tableKeys {
		cols := relevant[key]

		// 同表有 gender 列的话，人力类指标建议按 gender 分桶
		hasGender := false
		for _, col := range cols {
			if normalizeColumn(col.ColumnName) == "gender" {
				hasGender = true
				break
			}
		}

		for _, col := range cols {
			if col.DataType != model.DataTypeNumeric {
				continue
			}
			normalized := normalizeColumn(col.ColumnName)
			for _, mp := range metricPatterns {
				for _, pattern := range mp.Patterns {
					if !strings.Contains(normalized, pattern) {
						continue
					}
					transform := map[string]interface{}{"op": "sum", "aggregation": "period"}
					if hasGender && strings.HasPrefix(mp.Code, "S1") {
						transform = map[string]interface{}{"op": "sum", "group_by": "gender"}
					}
					tb, _ := json.Marshal(transform)
					fields = append(fields, model.MappingField{
						SourceTable:  col.SourceTableName,
						SourceColumn: col.ColumnName,
						MetricCode:   mp.Code,
						Unit:         mp.Unit,
						Transform:    datatypes.JSON(tb),
						Confidence:   0.8,
						Notes:        fmt.Sprintf("列名命中模式 %q", pattern),
					})
					break // 这个代码命中了，试下一个代码
				}
			}
		}
	}
	return fields
}

// normalizeColumn 归一化列名：小写并去掉分隔符，模式表按这个形态写
func normalizeColumn(name string) string {
	lower := strings.ToLower(name)
	lower = strings.ReplaceAll(lower, "_", "")
	lower = strings.ReplaceAll(lower, "-", "")
	lower = strings.ReplaceAll(lower, " ", "")
	return lower
}

// singular 很粗的单数化，够表名匹配用
func singular(name string) string {
	if strings.HasSuffix(name, "s") && len(name) > 1 {
		return name[:len(name)-1]
	}
	return name
}
