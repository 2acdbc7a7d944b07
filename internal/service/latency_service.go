// Package service 包含了应用的业务逻辑层。
package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"layla-insight-go/internal/model"
)

// LatencyService 定义了助手回复延迟分析的接口。
// 所有方法都是对输入快照的纯计算，不修改调用方传入的切片。
type LatencyService interface {
	ComputeLatencies(events []model.ChatEvent) []model.LatencyRecord
	SummaryStatistics(records []model.LatencyRecord) *model.LatencySummary
	FilterSlow(records []model.LatencyRecord, opts SlowFilterOptions) []model.LatencyRecord
	PerThreadAggregates(events []model.ChatEvent, records []model.LatencyRecord) []model.ThreadAggregate
	CorrelationExcludingOutliers(aggs []model.ThreadAggregate, excludeOutliers bool) model.CorrelationResult
	ExportCSV(records []model.LatencyRecord) ([]byte, error)
}

// SlowFilterOptions 是慢回复列表的组合过滤条件。
type SlowFilterOptions struct {
	// MinLatencySeconds 保留延迟不小于该值的记录。
	MinLatencySeconds float64
	// OnlyAboveThreshold 为 true 时额外要求延迟不小于 ThresholdSeconds。
	OnlyAboveThreshold bool
	ThresholdSeconds   float64
	// TextFilter 非空时按用户消息做大小写不敏感的子串匹配。
	TextFilter string
	// Limit 为返回行数上限，0 或负数表示不截断。
	Limit int
}

type latencyService struct {
	// latencyCap 为问答配对允许的最大时间差。超过（或为负）的差值
	// 视为时钟偏移或脏数据，静默丢弃而不是报错。
	latencyCap time.Duration
}

// NewLatencyService 创建一个新的 LatencyService 实例。
// capHours 不合法时回退到 24 小时。
func NewLatencyService(capHours int) LatencyService {
	if capHours <= 0 {
		capHours = 24
	}
	return &latencyService{latencyCap: time.Duration(capHours) * time.Hour}
}

// ComputeLatencies 为每条有前置用户消息的 assistant 回复计算延迟。
// 算法为每个会话一趟扫描：
//  1. 按 thread_id 分组，会话按首次出现的顺序处理，保证结果可复现；
//  2. 会话内按时间戳升序稳定排序（相同时间戳保留原始行序，缺失时间戳排在最后）；
//  3. 顺序扫描并携带"最近一条用户消息"状态。遇到 user 覆盖状态，
//     遇到 assistant 且双方时间戳可用时计算差值，差值落在 [0, cap] 区间才产出记录。
//
// 配对成功后刻意不清除用户状态：连续多条 assistant 回复（分段回答）
// 会针对同一条用户消息各产出一条记录，共享相同的 user_timestamp。
// 其他角色的事件既不参与配对也不重置状态。空输入返回空结果。
func (s *latencyService) ComputeLatencies(events []model.ChatEvent) []model.LatencyRecord {
	threadOrder := make([]string, 0)
	threads := make(map[string][]model.ChatEvent)
	for _, e := range events {
		if _, seen := threads[e.ThreadID]; !seen {
			threadOrder = append(threadOrder, e.ThreadID)
		}
		threads[e.ThreadID] = append(threads[e.ThreadID], e)
	}

	records := make([]model.LatencyRecord, 0)
	for _, threadID := range threadOrder {
		group := append([]model.ChatEvent(nil), threads[threadID]...)
		sortEventsByTime(group)

		region := ""
		if len(group) > 0 {
			region = group[0].Region
		}

		var lastUserTs *time.Time
		var lastUserMsg string
		hasLastUser := false
		for _, e := range group {
			switch e.Role {
			case model.RoleUser:
				// 即使时间戳缺失也要覆盖状态：该用户消息仍然是"最近的提问"，
				// 只是在它被新的可用提问替换之前无法配对。
				lastUserTs = e.Timestamp
				lastUserMsg = e.Message
				hasLastUser = true
			case model.RoleAssistant:
				if !hasLastUser || lastUserTs == nil || !e.HasTimestamp() {
					continue
				}
				delta := e.Timestamp.Sub(*lastUserTs)
				if delta < 0 || delta > s.latencyCap {
					continue
				}
				records = append(records, model.LatencyRecord{
					ThreadID:           threadID,
					Region:             region,
					UserTimestamp:      *lastUserTs,
					AssistantTimestamp: *e.Timestamp,
					LatencySeconds:     delta.Seconds(),
					UserMessage:        lastUserMsg,
					AssistantMessage:   e.Message,
					UserCharLen:        utf8.RuneCountInString(lastUserMsg),
					UserWordLen:        len(strings.Fields(lastUserMsg)),
					AssistantCharLen:   utf8.RuneCountInString(e.Message),
				})
			}
		}
	}
	return records
}

// sortEventsByTime 对会话内事件按时间戳升序稳定排序。
// 缺失时间戳的事件排在最后，相同时间戳保留原始行序。
func sortEventsByTime(events []model.ChatEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ei, ej := events[i], events[j]
		if !ei.HasTimestamp() {
			return false
		}
		if !ej.HasTimestamp() {
			return true
		}
		return ei.Timestamp.Before(*ej.Timestamp)
	})
}

// SummaryStatistics 计算延迟的汇总统计。
// records 为空时返回 nil（"无数据"哨兵），调用方据此区分
// "没有配对成功的回答"与"回答延迟恰好为零"。
func (s *latencyService) SummaryStatistics(records []model.LatencyRecord) *model.LatencySummary {
	if len(records) == 0 {
		return nil
	}

	values := make([]float64, len(records))
	sum := 0.0
	minIdx, maxIdx := 0, 0
	for i, r := range records {
		values[i] = r.LatencySeconds
		sum += r.LatencySeconds
		if r.LatencySeconds < records[minIdx].LatencySeconds {
			minIdx = i
		}
		if r.LatencySeconds > records[maxIdx].LatencySeconds {
			maxIdx = i
		}
	}
	sort.Float64s(values)

	return &model.LatencySummary{
		Mean:   sum / float64(len(records)),
		Median: quantileSorted(values, 0.5),
		P95:    quantileSorted(values, 0.95),
		Min:    records[minIdx],
		Max:    records[maxIdx],
		Count:  len(records),
	}
}

// FilterSlow 返回满足组合过滤条件的记录，按延迟降序排列。
// 这是一个只读视图操作，输入切片不会被修改。
func (s *latencyService) FilterSlow(records []model.LatencyRecord, opts SlowFilterOptions) []model.LatencyRecord {
	needle := strings.ToLower(opts.TextFilter)
	matched := make([]model.LatencyRecord, 0)
	for _, r := range records {
		if r.LatencySeconds < opts.MinLatencySeconds {
			continue
		}
		if opts.OnlyAboveThreshold && r.LatencySeconds < opts.ThresholdSeconds {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(r.UserMessage), needle) {
			continue
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].LatencySeconds > matched[j].LatencySeconds
	})
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched
}

// PerThreadAggregates 按会话汇总消息总数与平均延迟。
// 消息数来自全部事件，平均延迟来自配对记录；两者按 thread_id 内连接，
// 因此没有任何配对记录的会话不会出现在结果里。
func (s *latencyService) PerThreadAggregates(events []model.ChatEvent, records []model.LatencyRecord) []model.ThreadAggregate {
	threadOrder := make([]string, 0)
	counts := make(map[string]int)
	for _, e := range events {
		if _, seen := counts[e.ThreadID]; !seen {
			threadOrder = append(threadOrder, e.ThreadID)
		}
		counts[e.ThreadID]++
	}

	latSums := make(map[string]float64)
	latCounts := make(map[string]int)
	for _, r := range records {
		latSums[r.ThreadID] += r.LatencySeconds
		latCounts[r.ThreadID]++
	}

	aggs := make([]model.ThreadAggregate, 0, len(latCounts))
	for _, threadID := range threadOrder {
		n := latCounts[threadID]
		if n == 0 {
			continue
		}
		aggs = append(aggs, model.ThreadAggregate{
			ThreadID:          threadID,
			MessagesCount:     counts[threadID],
			AvgLatencySeconds: latSums[threadID] / float64(n),
		})
	}
	return aggs
}

// CorrelationExcludingOutliers 计算会话长度与平均延迟的 Pearson 相关系数。
// excludeOutliers 为 true 时先按 1.5×IQR 规则剔除平均延迟的离群点：
// 以 Q1-1.5·IQR 和 Q3+1.5·IQR 为界，界外的会话被移除并计数。
// 剩余样本不足两个、或任一维度方差为零时 Defined 置为 false，
// 绝不向调用方返回 NaN。
func (s *latencyService) CorrelationExcludingOutliers(aggs []model.ThreadAggregate, excludeOutliers bool) model.CorrelationResult {
	points := append([]model.ThreadAggregate(nil), aggs...)
	removed := 0

	if excludeOutliers && len(points) > 0 {
		values := make([]float64, len(points))
		for i, a := range points {
			values[i] = a.AvgLatencySeconds
		}
		sort.Float64s(values)
		q1 := quantileSorted(values, 0.25)
		q3 := quantileSorted(values, 0.75)
		iqr := q3 - q1
		lower := q1 - 1.5*iqr
		upper := q3 + 1.5*iqr

		kept := points[:0]
		for _, a := range points {
			if a.AvgLatencySeconds < lower || a.AvgLatencySeconds > upper {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		points = kept
	}

	result := model.CorrelationResult{Points: points, RemovedCount: removed}
	if len(points) < 2 {
		return result
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, a := range points {
		xs[i] = float64(a.MessagesCount)
		ys[i] = a.AvgLatencySeconds
	}
	if r, ok := pearson(xs, ys); ok {
		result.PearsonR = r
		result.Defined = true
	}
	return result
}

// ExportCSV 将配对记录序列化为逐答延迟 CSV，供前端下载。
// 列顺序与原始导出保持一致，时长只保留数值秒数。
func (s *latencyService) ExportCSV(records []model.LatencyRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"thread_id", "region", "user_timestamp", "assistant_timestamp",
		"latency_seconds", "user_message", "assistant_message",
		"user_char_len", "user_word_len", "assistant_char_len",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("写入 CSV 表头失败: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ThreadID,
			r.Region,
			model.LocalTime(r.UserTimestamp).String(),
			model.LocalTime(r.AssistantTimestamp).String(),
			strconv.FormatFloat(r.LatencySeconds, 'f', -1, 64),
			r.UserMessage,
			r.AssistantMessage,
			strconv.Itoa(r.UserCharLen),
			strconv.Itoa(r.UserWordLen),
			strconv.Itoa(r.AssistantCharLen),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("写入 CSV 数据行失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// quantileSorted 在已升序排序的序列上计算分位数，
// 使用相邻次序统计量之间的线性插值（与常见统计库的默认语义一致）。
func quantileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// pearson 计算两个等长序列的 Pearson 相关系数。
// 任一序列方差为零时相关性无定义，返回 ok=false。
func pearson(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}
