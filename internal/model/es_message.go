// Package model 包含了应用的数据模型定义。
package model

import "time"

// EsMessage 是写入 Elasticsearch 消息索引的文档结构。
// DocID 形如 "{datasetID}-{rowIndex}"，保证重复导入时幂等覆盖。
type EsMessage struct {
	DatasetID uint       `json:"dataset_id"`
	ThreadID  string     `json:"thread_id"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Role      string     `json:"role"`
	Message   string     `json:"message"`
	Region    string     `json:"region"`
	RowIndex  int        `json:"row_index"`
}
