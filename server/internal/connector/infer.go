package connector

import (
	"sort"
	"strings"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/model"
)

// InferColumns 从样本 payload 推断列元数据。
// 没有声明 schema 的源（对象存储、消息、Feed 等）只能这样采样推断；
// 声明型的源（ERP、关系库）不走这里，直接用源端元数据。
func InferColumns(table string, samples []map[string]interface{}) []core.ColumnInfo {
	types := map[string]string{}
	for _, sample := range samples {
		for k, v := range sample {
			t := inferType(v)
			prev, seen := types[k]
			if !seen {
				types[k] = t
				continue
			}
			// 类型冲突退化为 text
			if prev != t {
				types[k] = model.DataTypeText
			}
		}
	}

	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]core.ColumnInfo, 0, len(names))
	for _, name := range names {
		cols = append(cols, core.ColumnInfo{
			Table:        table,
			Column:       name,
			DataType:     types[name],
			IsPrimaryKey: strings.EqualFold(name, "id"),
		})
	}
	return cols
}

func inferType(v interface{}) string {
	switch v.(type) {
	case float64, int, int64:
		return model.DataTypeNumeric
	case bool:
		return model.DataTypeBoolean
	case map[string]interface{}, []interface{}:
		return model.DataTypeJSON
	default:
		return model.DataTypeText
	}
}
