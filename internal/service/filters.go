package service

import (
	"fmt"
	"time"
)

// parseDay 解析 "2006-01-02" 日期。endOfDay 为 true 时返回当天最后一刻，
// 用于把闭区间日期过滤映射到时间戳比较。
func parseDay(value string, endOfDay bool) (*time.Time, error) {
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("无法解析日期 %q: %w", value, err)
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Second)
	}
	return &day, nil
}
