package core

import (
	"context"
)

// ColumnInfo 适配器在 schema 发现阶段回报的列元数据
type ColumnInfo struct {
	Table         string `json:"table"`
	Column        string `json:"column"`
	DataType      string `json:"data_type"`
	IsPrimaryKey  bool   `json:"is_primary_key"`
	IsForeignKey  bool   `json:"is_foreign_key"`
	ForeignTable  string `json:"foreign_table,omitempty"`
	ForeignColumn string `json:"foreign_column,omitempty"`
}

// RawRecord 适配器抓回来的一条原始记录，还没有做任何映射
type RawRecord struct {
	Table   string
	Payload map[string]interface{}
}

// SourceAdapter 定义特定数据源（ERP、对象存储、工单系统等）需要实现的逻辑接口。
// 约定：
//   - ValidateConfig 不做任何网络调用，缺凭证/缺字段返回 ConfigurationError
//   - DiscoverSchema / FetchRows 的网络 I/O 必须尊重 ctx 超时，
//     非 2xx 和超时统一包成 TransientError
type SourceAdapter interface {
	ValidateConfig(config map[string]interface{}) error
	DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]ColumnInfo, error)
	FetchRows(ctx context.Context, config map[string]interface{}) ([]RawRecord, error)
}

// SourceRegistry 数据源适配器注册表
type SourceRegistry struct {
	adapters map[string]SourceAdapter
}

// 全局单例，bootstrap 启动时注册
var GlobalSources = &SourceRegistry{
	adapters: make(map[string]SourceAdapter),
}

func (r *SourceRegistry) Register(sourceType string, adapter SourceAdapter) {
	r.adapters[sourceType] = adapter
}

// Get 未注册的类型直接 ConfigurationError，不默认放行
func (r *SourceRegistry) Get(sourceType string) (SourceAdapter, error) {
	a, ok := r.adapters[sourceType]
	if !ok {
		return nil, NewConfigError("未知的数据源类型: %s", sourceType)
	}
	return a, nil
}

// Validate 辅助函数：建连接器前的预检，无副作用
func (r *SourceRegistry) Validate(sourceType string, config map[string]interface{}) error {
	a, err := r.Get(sourceType)
	if err != nil {
		return err
	}
	return a.ValidateConfig(config)
}

// RequireString 适配器通用的配置取值检查
func RequireString(config map[string]interface{}, key string) (string, error) {
	v, ok := config[key]
	if !ok {
		return "", NewConfigError("配置缺少必填字段: %s", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", NewConfigError("配置字段 %s 必须是非空字符串", key)
	}
	return s, nil
}

// OptionalString 取可选字段，没有就用默认值
func OptionalString(config map[string]interface{}, key, def string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}
