// Package model 包含了应用的数据模型定义。
package model

import "time"

// LatencyRecord 代表一次成功配对的问答延迟。
// 它不落库，每次分析请求都会从当前过滤后的事件快照重新计算。
type LatencyRecord struct {
	ThreadID           string    `json:"threadId"`
	Region             string    `json:"region"`
	UserTimestamp      time.Time `json:"userTimestamp"`
	AssistantTimestamp time.Time `json:"assistantTimestamp"`
	LatencySeconds     float64   `json:"latencySeconds"`
	UserMessage        string    `json:"userMessage"`
	AssistantMessage   string    `json:"assistantMessage"`
	UserCharLen        int       `json:"userCharLen"`
	UserWordLen        int       `json:"userWordLen"`
	AssistantCharLen   int       `json:"assistantCharLen"`
}

// LatencySummary 汇总一批 LatencyRecord 的统计指标。
// 当没有任何记录时，各计算函数返回 nil 以区分“无数据”与真实的零值。
type LatencySummary struct {
	Mean   float64       `json:"mean"`
	Median float64       `json:"median"`
	P95    float64       `json:"p95"`
	Min    LatencyRecord `json:"min"`
	Max    LatencyRecord `json:"max"`
	Count  int           `json:"count"`
}

// ThreadAggregate 汇总单个会话的消息数与平均延迟，
// 仅包含至少产生一条 LatencyRecord 的会话。
type ThreadAggregate struct {
	ThreadID          string  `json:"threadId"`
	MessagesCount     int     `json:"messagesCount"`
	AvgLatencySeconds float64 `json:"avgLatencySeconds"`
}

// CorrelationResult 是会话长度与平均延迟的相关性分析结果。
// Defined 为 false 表示剩余样本不足（少于 2 个点或方差为零），
// 此时 PearsonR 无意义，调用方应展示“数据不足”而不是数值。
type CorrelationResult struct {
	Points       []ThreadAggregate `json:"points"`
	RemovedCount int               `json:"removedCount"`
	PearsonR     float64           `json:"pearsonR"`
	Defined      bool              `json:"defined"`
}
