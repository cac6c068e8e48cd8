package core

import (
	"fmt"
	"regexp"
	"time"
)

// 报告期两种合法格式: "2025-Q1" 或 "2025-03"
var (
	quarterPattern = regexp.MustCompile(`^\d{4}-Q[1-4]$`)
	monthPattern   = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
)

func IsValidPeriod(p string) bool {
	return quarterPattern.MatchString(p) || monthPattern.MatchString(p)
}

// PeriodFromTime 把时间戳归入季度报告期
func PeriodFromTime(t time.Time) string {
	q := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", t.Year(), q)
}

// PeriodOf 从 payload 提取报告期：优先显式 period 字段，
// 其次 date 字段的年月，都没有就退回 arrival 时间的季度。
func PeriodOf(payload map[string]interface{}, arrival time.Time) string {
	if v, ok := payload["period"]; ok {
		if s, ok := v.(string); ok && IsValidPeriod(s) {
			return s
		}
	}
	if v, ok := payload["date"]; ok {
		if s, ok := v.(string); ok {
			if t, err := time.Parse("2006-01-02", s); err == nil {
				return t.Format("2006-01")
			}
			if len(s) >= 7 && monthPattern.MatchString(s[:7]) {
				return s[:7]
			}
		}
	}
	return PeriodFromTime(arrival)
}
