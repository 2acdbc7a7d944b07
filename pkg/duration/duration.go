// Package duration 提供人类可读的时长格式化功能。
package duration

import (
	"fmt"
	"math"
)

// Format 将秒数转换为带单位的可读字符串：
// 小于 1 秒显示毫秒，小于 1 分钟显示秒（两位小数），
// 小于 1 小时显示分+秒，其余显示时+分+秒。
// 负数或非法值（NaN/Inf）返回占位符 "-"，格式化永不失败。
func Format(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "-"
	}
	if seconds < 1 {
		return fmt.Sprintf("%.0f ms", seconds*1000)
	}
	if seconds < 60 {
		return fmt.Sprintf("%.2f s", seconds)
	}
	total := int(math.Round(seconds))
	mins, secs := total/60, total%60
	if mins < 60 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours, mins := mins/60, mins%60
	return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
}
