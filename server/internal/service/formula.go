package service

import (
	"encoding/json"

	"GreenLedger/server/internal/core"
)

// 三种公式各自一个实现，启动时注册进 core.GlobalFormulas。
// 新公式类型只需要加实现 + 注册，求值器本体不用动。

// FieldSumFormula {"type": "field_sum", "field": "E1-1"}
// 取该指标当期观测值（多条观测累加）。
type FieldSumFormula struct{}

type fieldSumSpec struct {
	Field string `json:"field"`
}

func (FieldSumFormula) Parse(raw json.RawMessage) error {
	var spec fieldSumSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return core.NewConfigError("field_sum 描述符非法: %v", err)
	}
	if spec.Field == "" {
		return core.NewConfigError("field_sum 缺少 field")
	}
	return nil
}

func (FieldSumFormula) Evaluate(raw json.RawMessage, lookup core.ObservationLookup) (core.FormulaResult, error) {
	var spec fieldSumSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return core.FormulaResult{}, core.NewConfigError("field_sum 描述符非法: %v", err)
	}
	v, found := lookup(spec.Field)
	if !found {
		// 没数据和数据为 0 是两回事，让上层记数据质量发现
		return core.FormulaResult{}, core.NewValidationError("指标 %s 当期无观测", spec.Field)
	}
	return core.FormulaResult{Value: v}, nil
}

// SumFormula {"type": "sum", "fields": ["E1-1", "E1-2"]}
// 各项累加；缺观测的项按 0 计（容忍部分数据）。
type SumFormula struct{}

type sumSpec struct {
	Fields []string `json:"fields"`
}

func (SumFormula) Parse(raw json.RawMessage) error {
	var spec sumSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return core.NewConfigError("sum 描述符非法: %v", err)
	}
	if len(spec.Fields) == 0 {
		return core.NewConfigError("sum 缺少 fields")
	}
	return nil
}

func (SumFormula) Evaluate(raw json.RawMessage, lookup core.ObservationLookup) (core.FormulaResult, error) {
	var spec sumSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return core.FormulaResult{}, core.NewConfigError("sum 描述符非法: %v", err)
	}
	total := 0.0
	for _, f := range spec.Fields {
		if v, found := lookup(f); found {
			total += v
		}
		// 缺项按 0 计，不报错
	}
	return core.FormulaResult{Value: total}, nil
}

// RatioFormula {"type": "ratio", "numerator": "S1-2", "denominator": "S1-1"}
// 分母为零给显式 undefined，不是 NaN 也不是 0。
type RatioFormula struct{}

type ratioSpec struct {
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator"`
}

func (RatioFormula) Parse(raw json.RawMessage) error {
	var spec ratioSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return core.NewConfigError("ratio 描述符非法: %v", err)
	}
	if spec.Numerator == "" || spec.Denominator == "" {
		return core.NewConfigError("ratio 需要 numerator 和 denominator")
	}
	return nil
}

func (RatioFormula) Evaluate(raw json.RawMessage, lookup core.ObservationLookup) (core.FormulaResult, error) {
	var spec ratioSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return core.FormulaResult{}, core.NewConfigError("ratio 描述符非法: %v", err)
	}
	num, numFound := lookup(spec.Numerator)
	den, denFound := lookup(spec.Denominator)
	if !numFound && !denFound {
		return core.FormulaResult{}, core.NewValidationError("ratio 两侧当期都无观测")
	}
	if !denFound || den == 0 {
		return core.FormulaResult{Undefined: true}, nil
	}
	return core.FormulaResult{Value: num / den}, nil
}

// RegisterFormulas 启动时挂注册表
func RegisterFormulas() {
	core.GlobalFormulas.Register("field_sum", FieldSumFormula{})
	core.GlobalFormulas.Register("sum", SumFormula{})
	core.GlobalFormulas.Register("ratio", RatioFormula{})
}
