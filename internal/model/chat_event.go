// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 消息角色取值。其他取值会被保留但不参与问答配对。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatEvent 对应于数据库中的 'chat_events' 表，每行代表一条会话消息。
// Timestamp 为空指针表示原始 CSV 中的时间戳无法解析；
// 这类行会被保留用于计数统计，但不参与延迟配对。
type ChatEvent struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	DatasetID uint       `gorm:"index:idx_chat_events_dataset_thread,priority:1;not null" json:"-"`
	ThreadID  string     `gorm:"type:varchar(64);index:idx_chat_events_dataset_thread,priority:2;not null" json:"threadId"`
	Timestamp *time.Time `gorm:"index" json:"timestamp"`
	Role      string     `gorm:"type:varchar(16);not null" json:"role"`
	Message   string     `gorm:"type:text" json:"message"`
	Region    string     `gorm:"type:varchar(64);index" json:"region"`
	// RowIndex 为该行在原始 CSV 中的序号，用于相同时间戳时的稳定排序。
	RowIndex int `gorm:"not null" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatEvent) TableName() string {
	return "chat_events"
}

// HasTimestamp 报告该事件是否带有可用的时间戳。
func (e *ChatEvent) HasTimestamp() bool {
	return e.Timestamp != nil && !e.Timestamp.IsZero()
}
