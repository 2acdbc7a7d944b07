package service

import (
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"layla-insight-go/internal/model"
)

func ts(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return &parsed
}

func event(threadID string, stamp *time.Time, role, message string) model.ChatEvent {
	return model.ChatEvent{
		ThreadID:  threadID,
		Timestamp: stamp,
		Role:      role,
		Message:   message,
		Region:    "UAE",
	}
}

func TestComputeLatencies_SinglePair(t *testing.T) {
	svc := NewLatencyService(24)
	events := []model.ChatEvent{
		event("T1", ts(t, "2025-07-01 10:00:00"), "user", "hi"),
		event("T1", ts(t, "2025-07-01 10:00:05"), "assistant", "hello"),
	}

	records := svc.ComputeLatencies(events)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.LatencySeconds != 5 {
		t.Fatalf("expected latency 5s, got %v", r.LatencySeconds)
	}
	if r.ThreadID != "T1" || r.Region != "UAE" {
		t.Fatalf("unexpected record identity: %+v", r)
	}
	if r.UserMessage != "hi" || r.AssistantMessage != "hello" {
		t.Fatalf("unexpected messages: %+v", r)
	}
	if r.UserCharLen != 2 || r.UserWordLen != 1 || r.AssistantCharLen != 5 {
		t.Fatalf("unexpected length metrics: %+v", r)
	}
}

func TestComputeLatencies_AssistantWithoutUser(t *testing.T) {
	svc := NewLatencyService(24)
	events := []model.ChatEvent{
		event("T1", ts(t, "2025-07-01 10:00:00"), "assistant", "unsolicited"),
		event("T1", ts(t, "2025-07-01 10:00:10"), "assistant", "still unsolicited"),
	}
	if records := svc.ComputeLatencies(events); len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestComputeLatencies_MultiPartAnswerSharesUserTimestamp(t *testing.T) {
	svc := NewLatencyService(24)
	events := []model.ChatEvent{
		event("T1", ts(t, "2025-07-01 10:00:00"), "user", "question"),
		event("T1", ts(t, "2025-07-01 10:00:03"), "assistant", "part one"),
		event("T1", ts(t, "2025-07-01 10:00:09"), "assistant", "part two"),
	}

	records := svc.ComputeLatencies(events)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].UserTimestamp.Equal(records[1].UserTimestamp) {
		t.Fatalf("expected both records to share user timestamp")
	}
	if records[0].LatencySeconds != 3 || records[1].LatencySeconds != 9 {
		t.Fatalf("unexpected latencies: %v, %v", records[0].LatencySeconds, records[1].LatencySeconds)
	}
}

func TestComputeLatencies_CapBoundary(t *testing.T) {
	svc := NewLatencyService(24)
	base := ts(t, "2025-07-01 10:00:00")
	exactly24h := base.Add(24 * time.Hour)
	over24h := base.Add(24*time.Hour + time.Second)

	events := []model.ChatEvent{
		event("T1", base, "user", "q"),
		event("T1", &exactly24h, "assistant", "on the edge"),
		event("T2", base, "user", "q"),
		event("T2", &over24h, "assistant", "too late"),
	}

	records := svc.ComputeLatencies(events)
	if len(records) != 1 {
		t.Fatalf("expected only the 24h gap to pair, got %d records", len(records))
	}
	if records[0].ThreadID != "T1" {
		t.Fatalf("expected T1 record, got %s", records[0].ThreadID)
	}
	if records[0].LatencySeconds != 24*3600 {
		t.Fatalf("expected latency 86400s, got %v", records[0].LatencySeconds)
	}
}

func TestComputeLatencies_NegativeGapExcluded(t *testing.T) {
	svc := NewLatencyService(24)
	// assistant 时间戳早于 user：乱序日志，即使幅度很小也不配对
	events := []model.ChatEvent{
		event("T1", ts(t, "2025-07-01 10:00:10"), "user", "q"),
		event("T1", ts(t, "2025-07-01 10:00:05"), "assistant", "a"),
	}
	// 排序后 assistant 在前，没有前置用户消息
	if records := svc.ComputeLatencies(events); len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestComputeLatencies_OrderIndependent(t *testing.T) {
	svc := NewLatencyService(24)
	events := []model.ChatEvent{
		event("T1", ts(t, "2025-07-01 10:00:00"), "user", "hi"),
		event("T1", ts(t, "2025-07-01 10:00:05"), "assistant", "hello"),
		event("T2", ts(t, "2025-07-01 11:00:00"), "user", "help"),
		event("T2", ts(t, "2025-07-01 11:00:40"), "assistant", "sure"),
		event("T3", ts(t, "2025-07-01 12:00:00"), "user", "ok"),
		event("T3", ts(t, "2025-07-01 12:00:02"), "assistant", "fine"),
	}

	want := recordSet(svc.ComputeLatencies(events))

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		shuffled := append([]model.ChatEvent(nil), events...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got := recordSet(svc.ComputeLatencies(shuffled))
		if len(got) != len(want) {
			t.Fatalf("trial %d: expected %d records, got %d", trial, len(want), len(got))
		}
		for k := range want {
			if !got[k] {
				t.Fatalf("trial %d: missing record %s", trial, k)
			}
		}
	}
}

// recordSet 将记录折叠为可比较的键集合，忽略产出顺序。
func recordSet(records []model.LatencyRecord) map[string]bool {
	set := make(map[string]bool, len(records))
	for _, r := range records {
		key := r.ThreadID + "|" + r.UserTimestamp.String() + "|" + r.AssistantTimestamp.String()
		set[key] = true
	}
	return set
}

func TestComputeLatencies_MissingTimestampSkipped(t *testing.T) {
	svc := NewLatencyService(24)
	events := []model.ChatEvent{
		event("T1", nil, "user", "no clock"),
		event("T1", ts(t, "2025-07-01 10:00:05"), "assistant", "cannot pair"),
		event("T1", ts(t, "2025-07-01 10:01:00"), "user", "retry"),
		event("T1", ts(t, "2025-07-01 10:01:30"), "assistant", "paired"),
		event("T1", ts(t, "2025-07-01 10:02:00"), "user", "q"),
		event("T1", nil, "assistant", "no clock either"),
	}

	records := svc.ComputeLatencies(events)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].AssistantMessage != "paired" || records[0].LatencySeconds != 30 {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestComputeLatencies_EmptyInput(t *testing.T) {
	svc := NewLatencyService(24)
	if records := svc.ComputeLatencies(nil); len(records) != 0 {
		t.Fatalf("expected empty output for empty input, got %d", len(records))
	}
}

func TestComputeLatencies_DoesNotMutateInput(t *testing.T) {
	svc := NewLatencyService(24)
	events := []model.ChatEvent{
		event("T1", ts(t, "2025-07-01 10:00:05"), "assistant", "late entry"),
		event("T1", ts(t, "2025-07-01 10:00:00"), "user", "hi"),
	}
	_ = svc.ComputeLatencies(events)
	if events[0].Role != "assistant" || events[1].Role != "user" {
		t.Fatalf("input slice was reordered")
	}
}

func TestConcreteScenario(t *testing.T) {
	svc := NewLatencyService(24)
	events := []model.ChatEvent{
		event("T1", ts(t, "2025-07-01 10:00:00"), "user", "hi"),
		event("T1", ts(t, "2025-07-01 10:00:05"), "assistant", "hello"),
		event("T1", ts(t, "2025-07-01 10:01:00"), "user", "help"),
		event("T1", ts(t, "2025-07-01 10:01:40"), "assistant", "sure"),
	}

	records := svc.ComputeLatencies(events)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].LatencySeconds != 5 || records[1].LatencySeconds != 40 {
		t.Fatalf("unexpected latencies: %v, %v", records[0].LatencySeconds, records[1].LatencySeconds)
	}

	summary := svc.SummaryStatistics(records)
	if summary == nil {
		t.Fatalf("expected summary, got nil")
	}
	if summary.Mean != 22.5 || summary.Median != 22.5 {
		t.Fatalf("expected mean=median=22.5, got mean=%v median=%v", summary.Mean, summary.Median)
	}
	if summary.Min.LatencySeconds != 5 || summary.Max.LatencySeconds != 40 {
		t.Fatalf("unexpected extremes: min=%v max=%v", summary.Min.LatencySeconds, summary.Max.LatencySeconds)
	}
	if summary.Max.UserMessage != "help" {
		t.Fatalf("max record should carry the paired messages, got %+v", summary.Max)
	}
}

func TestSummaryStatistics_EmptyReturnsNil(t *testing.T) {
	svc := NewLatencyService(24)
	if summary := svc.SummaryStatistics(nil); summary != nil {
		t.Fatalf("expected nil summary for empty input, got %+v", summary)
	}
}

func TestSummaryStatistics_P95(t *testing.T) {
	svc := NewLatencyService(24)
	records := make([]model.LatencyRecord, 0, 100)
	for i := 1; i <= 100; i++ {
		records = append(records, model.LatencyRecord{ThreadID: "T", LatencySeconds: float64(i)})
	}
	summary := svc.SummaryStatistics(records)
	// 线性插值：位置 0.95*(100-1)=94.05，介于 95 和 96 之间
	want := 95.0 + 0.05*(96.0-95.0)
	if math.Abs(summary.P95-want) > 1e-9 {
		t.Fatalf("expected p95 %v, got %v", want, summary.P95)
	}
}

func TestFilterSlow(t *testing.T) {
	svc := NewLatencyService(24)
	records := []model.LatencyRecord{
		{ThreadID: "A", LatencySeconds: 12, UserMessage: "booking issue"},
		{ThreadID: "B", LatencySeconds: 45, UserMessage: "Payment failed"},
		{ThreadID: "C", LatencySeconds: 3, UserMessage: "hello"},
		{ThreadID: "D", LatencySeconds: 90, UserMessage: "payment stuck"},
	}
	original := append([]model.LatencyRecord(nil), records...)

	got := svc.FilterSlow(records, SlowFilterOptions{
		MinLatencySeconds:  5,
		OnlyAboveThreshold: true,
		ThresholdSeconds:   30,
		TextFilter:         "PAYMENT",
		Limit:              10,
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ThreadID != "D" || got[1].ThreadID != "B" {
		t.Fatalf("expected latency-descending order D,B got %s,%s", got[0].ThreadID, got[1].ThreadID)
	}

	// 输入必须保持原样
	for i := range original {
		if records[i] != original[i] {
			t.Fatalf("input records were mutated at index %d", i)
		}
	}

	// 行数上限截断
	capped := svc.FilterSlow(records, SlowFilterOptions{Limit: 1})
	if len(capped) != 1 || capped[0].ThreadID != "D" {
		t.Fatalf("expected single slowest record D, got %+v", capped)
	}
}

func TestPerThreadAggregates_InnerJoin(t *testing.T) {
	svc := NewLatencyService(24)
	events := []model.ChatEvent{
		event("T1", ts(t, "2025-07-01 10:00:00"), "user", "hi"),
		event("T1", ts(t, "2025-07-01 10:00:05"), "assistant", "hello"),
		event("T1", ts(t, "2025-07-01 10:00:09"), "user", "thanks"),
		// T2 只有用户消息，不应出现在聚合里
		event("T2", ts(t, "2025-07-01 11:00:00"), "user", "anyone?"),
	}
	records := svc.ComputeLatencies(events)

	aggs := svc.PerThreadAggregates(events, records)
	if len(aggs) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(aggs))
	}
	if aggs[0].ThreadID != "T1" || aggs[0].MessagesCount != 3 || aggs[0].AvgLatencySeconds != 5 {
		t.Fatalf("unexpected aggregate: %+v", aggs[0])
	}
}

func TestCorrelation_IQROutlierExclusion(t *testing.T) {
	svc := NewLatencyService(24)
	latencies := []float64{1, 1, 1, 1, 100}
	aggs := make([]model.ThreadAggregate, 0, len(latencies))
	for i, v := range latencies {
		aggs = append(aggs, model.ThreadAggregate{
			ThreadID:          string(rune('A' + i)),
			MessagesCount:     i + 2,
			AvgLatencySeconds: v,
		})
	}

	result := svc.CorrelationExcludingOutliers(aggs, true)
	if result.RemovedCount != 1 {
		t.Fatalf("expected the 100 to be fenced out, removed=%d", result.RemovedCount)
	}
	if len(result.Points) != 4 {
		t.Fatalf("expected 4 surviving points, got %d", len(result.Points))
	}
	for _, p := range result.Points {
		if p.AvgLatencySeconds == 100 {
			t.Fatalf("outlier survived IQR fencing")
		}
	}
	// 剩余点的平均延迟全部相同，方差为零，相关性无定义
	if result.Defined {
		t.Fatalf("expected undefined correlation for zero-variance survivors")
	}
}

func TestCorrelation_PerfectPositive(t *testing.T) {
	svc := NewLatencyService(24)
	aggs := []model.ThreadAggregate{
		{ThreadID: "A", MessagesCount: 2, AvgLatencySeconds: 10},
		{ThreadID: "B", MessagesCount: 4, AvgLatencySeconds: 20},
		{ThreadID: "C", MessagesCount: 6, AvgLatencySeconds: 30},
	}
	result := svc.CorrelationExcludingOutliers(aggs, false)
	if !result.Defined {
		t.Fatalf("expected defined correlation")
	}
	if math.Abs(result.PearsonR-1) > 1e-9 {
		t.Fatalf("expected r=1, got %v", result.PearsonR)
	}
}

func TestCorrelation_InsufficientPoints(t *testing.T) {
	svc := NewLatencyService(24)
	aggs := []model.ThreadAggregate{
		{ThreadID: "A", MessagesCount: 2, AvgLatencySeconds: 10},
	}
	result := svc.CorrelationExcludingOutliers(aggs, true)
	if result.Defined {
		t.Fatalf("expected undefined correlation with <2 points")
	}
	if math.IsNaN(result.PearsonR) {
		t.Fatalf("correlation must never be NaN")
	}
}

func TestQuantileSorted(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	sort.Float64s(values)
	if got := quantileSorted(values, 0.5); got != 2.5 {
		t.Fatalf("median of 1..4 should be 2.5, got %v", got)
	}
	if got := quantileSorted(values, 0); got != 1 {
		t.Fatalf("q0 should be min, got %v", got)
	}
	if got := quantileSorted(values, 1); got != 4 {
		t.Fatalf("q1 should be max, got %v", got)
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewLatencyService(24)
	events := []model.ChatEvent{
		event("T1", ts(t, "2025-07-01 10:00:00"), "user", "hi, there"),
		event("T1", ts(t, "2025-07-01 10:00:05"), "assistant", "hello"),
	}
	data, err := svc.ExportCSV(svc.ComputeLatencies(events))
	if err != nil {
		t.Fatalf("export csv: %v", err)
	}
	text := string(data)
	wantHeader := "thread_id,region,user_timestamp,assistant_timestamp,latency_seconds,user_message,assistant_message,user_char_len,user_word_len,assistant_char_len"
	if !containsLine(text, wantHeader) {
		t.Fatalf("missing header, got:\n%s", text)
	}
	if !containsLine(text, `T1,UAE,2025-07-01 10:00:00,2025-07-01 10:00:05,5,"hi, there",hello,9,2,5`) {
		t.Fatalf("missing data row, got:\n%s", text)
	}
}

func containsLine(text, line string) bool {
	for _, l := range splitLines(text) {
		if l == line {
			return true
		}
	}
	return false
}

func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			line := text[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
