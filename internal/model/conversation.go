package model

import "time"

// ChatMessage 是数据问答对话历史中的一条消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" / "assistant" / "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
