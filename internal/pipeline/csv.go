// Package pipeline 定义了数据集导入的核心流程。
package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"layla-insight-go/internal/model"
)

// CSV 导出的列序固定为 thread_id, timestamp, role, message, region。
// 文件不带表头；第 6 列及之后的列（如果导出端追加了）会被丢弃。
var expectedColumns = []string{"thread_id", "timestamp", "role", "message", "region"}

// 依次尝试的时间戳格式。导出端的格式不完全统一。
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05.999999",
	"2006/01/02 15:04:05",
}

// ParseEvents 解析一份会话导出 CSV。
// 列数不足是数据集级错误，立即失败并指明缺失的列；
// 单行时间戳无法解析不是错误，该行保留且时间戳置空。
func ParseEvents(r io.Reader, datasetID uint) ([]model.ChatEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	events := make([]model.ChatEvent, 0)
	rowIndex := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("第 %d 行解析失败: %w", rowIndex+1, err)
		}
		if len(record) < len(expectedColumns) {
			missing := strings.Join(expectedColumns[len(record):], ", ")
			return nil, fmt.Errorf("第 %d 行只有 %d 列，缺少必需列: %s",
				rowIndex+1, len(record), missing)
		}

		events = append(events, model.ChatEvent{
			DatasetID: datasetID,
			ThreadID:  strings.TrimSpace(record[0]),
			Timestamp: parseTimestamp(record[1]),
			Role:      strings.ToLower(strings.TrimSpace(record[2])),
			Message:   record[3],
			Region:    strings.TrimSpace(record[4]),
			RowIndex:  rowIndex,
		})
		rowIndex++
	}
	return events, nil
}

// parseTimestamp 依次尝试已知格式，都失败时返回 nil。
func parseTimestamp(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed
		}
	}
	return nil
}
