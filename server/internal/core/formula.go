package core

import (
	"encoding/json"
)

// FormulaResult 公式求值结果。Undefined 用于 ratio 分母为零，
// 下游必须能把它和"值恰好是 0"区分开。
type FormulaResult struct {
	Value     float64
	Undefined bool
}

// ObservationLookup 求值时查观测值：返回该指标在该期间的累加值。
// found=false 表示该期间没有任何观测（不同于观测到 0）。
type ObservationLookup func(metricCode string) (value float64, found bool)

// FormulaHandler 一种公式类型的求值器
type FormulaHandler interface {
	// Parse 在规则保存时校验描述符，必填字段缺失返回 ConfigurationError
	Parse(raw json.RawMessage) error
	Evaluate(raw json.RawMessage, lookup ObservationLookup) (FormulaResult, error)
}

// FormulaRegistry 公式类型注册表，和数据源注册表同一套路
type FormulaRegistry struct {
	handlers map[string]FormulaHandler
}

var GlobalFormulas = &FormulaRegistry{
	handlers: make(map[string]FormulaHandler),
}

func (r *FormulaRegistry) Register(kind string, h FormulaHandler) {
	r.handlers[kind] = h
}

func (r *FormulaRegistry) Get(kind string) (FormulaHandler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, NewConfigError("未知的公式类型: %s", kind)
	}
	return h, nil
}

// FormulaKind 从描述符里取出 type 字段
func FormulaKind(raw json.RawMessage) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", NewConfigError("公式描述符不是合法 JSON: %v", err)
	}
	if head.Type == "" {
		return "", NewConfigError("公式描述符缺少 type 字段")
	}
	return head.Type, nil
}
