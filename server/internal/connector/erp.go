package connector

import (
	"context"
	"fmt"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/model"
)

// ERPAdapter 对接声明型 ERP HTTP API。
// ERP 端自带表级元数据接口，所以 schema 不靠采样推断，
// 主键/外键标记直接取声明值——这是推断引擎 0.95 确定性连接的来源。
// Config: {"base_url": "...", "api_key_secret": "...", "tables": ["energy_usage", ...]}
type ERPAdapter struct {
	api *APIClient
}

func NewERPAdapter(api *APIClient) *ERPAdapter {
	return &ERPAdapter{api: api}
}

// erpColumn ERP 元数据接口的返回形态
type erpColumn struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	PrimaryKey    bool   `json:"primary_key"`
	ForeignKey    bool   `json:"foreign_key"`
	ForeignTable  string `json:"foreign_table"`
	ForeignColumn string `json:"foreign_column"`
}

func (a *ERPAdapter) ValidateConfig(config map[string]interface{}) error {
	if _, err := core.RequireString(config, "base_url"); err != nil {
		return err
	}
	if _, err := core.RequireString(config, "api_key_secret"); err != nil {
		return err
	}
	if _, err := configTables(config); err != nil {
		return err
	}
	return nil
}

func (a *ERPAdapter) DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]core.ColumnInfo, error) {
	baseURL, err := core.RequireString(config, "base_url")
	if err != nil {
		return nil, err
	}
	tokenSecret, err := core.RequireString(config, "api_key_secret")
	if err != nil {
		return nil, err
	}
	tables, err := configTables(config)
	if err != nil {
		return nil, err
	}

	var cols []core.ColumnInfo
	for _, table := range tables {
		var declared []erpColumn
		url := fmt.Sprintf("%s/tables/%s/schema", baseURL, table)
		if err := a.api.GetJSON(ctx, url, tokenSecret, &declared); err != nil {
			return nil, err
		}
		for _, c := range declared {
			cols = append(cols, core.ColumnInfo{
				Table:         table,
				Column:        c.Name,
				DataType:      normalizeERPType(c.Type),
				IsPrimaryKey:  c.PrimaryKey,
				IsForeignKey:  c.ForeignKey,
				ForeignTable:  c.ForeignTable,
				ForeignColumn: c.ForeignColumn,
			})
		}
	}
	return cols, nil
}

func (a *ERPAdapter) FetchRows(ctx context.Context, config map[string]interface{}) ([]core.RawRecord, error) {
	baseURL, err := core.RequireString(config, "base_url")
	if err != nil {
		return nil, err
	}
	tokenSecret, err := core.RequireString(config, "api_key_secret")
	if err != nil {
		return nil, err
	}
	tables, err := configTables(config)
	if err != nil {
		return nil, err
	}

	var records []core.RawRecord
	for _, table := range tables {
		var rows []map[string]interface{}
		url := fmt.Sprintf("%s/tables/%s/rows", baseURL, table)
		if err := a.api.GetJSON(ctx, url, tokenSecret, &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			records = append(records, core.RawRecord{Table: table, Payload: r})
		}
	}
	return records, nil
}

// configTables 读配置里的表清单
func configTables(config map[string]interface{}) ([]string, error) {
	raw, ok := config["tables"]
	if !ok {
		return nil, core.NewConfigError("配置缺少必填字段: tables")
	}
	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		return nil, core.NewConfigError("tables 必须是非空数组")
	}
	tables := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, core.NewConfigError("tables 里只能放表名字符串")
		}
		tables = append(tables, s)
	}
	return tables, nil
}

func normalizeERPType(t string) string {
	switch t {
	case "integer", "decimal", "float", "numeric", "number":
		return model.DataTypeNumeric
	case "timestamp", "date", "datetime":
		return model.DataTypeTimestamp
	case "boolean", "bool":
		return model.DataTypeBoolean
	default:
		return model.DataTypeText
	}
}
