package service

import (
	"testing"
	"time"

	"layla-insight-go/internal/model"
)

func analyticsEvent(t *testing.T, threadID, stamp, role, message string) model.ChatEvent {
	t.Helper()
	e := model.ChatEvent{ThreadID: threadID, Role: role, Message: message, Region: "UAE"}
	if stamp != "" {
		parsed, err := time.Parse("2006-01-02 15:04:05", stamp)
		if err != nil {
			t.Fatalf("parse time %q: %v", stamp, err)
		}
		e.Timestamp = &parsed
	}
	return e
}

func TestComputeKeyMetrics(t *testing.T) {
	events := []model.ChatEvent{
		analyticsEvent(t, "T1", "2025-07-01 10:00:00", "user", "hi"),
		analyticsEvent(t, "T1", "2025-07-01 10:00:05", "assistant", "hello, thank you"),
		analyticsEvent(t, "T1", "2025-07-01 10:01:00", "user", "مرحبا"),
		analyticsEvent(t, "T1", "2025-07-01 10:01:10", "assistant", ""),
		analyticsEvent(t, "T2", "2025-07-02 09:00:00", "user", "booking failed again"),
		analyticsEvent(t, "T2", "2025-07-02 09:00:20", "assistant", "sorry about that"),
	}

	m := computeKeyMetrics(events)
	if m.TotalConversations != 2 || m.TotalMessages != 6 {
		t.Fatalf("unexpected totals: %+v", m)
	}
	if m.UserMessages != 3 || m.AssistantMessages != 3 {
		t.Fatalf("unexpected role counts: %+v", m)
	}
	if m.ArabicMessages != 1 {
		t.Fatalf("expected 1 arabic message, got %d", m.ArabicMessages)
	}
	if m.EmptyAssistantReplies != 1 {
		t.Fatalf("expected 1 empty assistant reply, got %d", m.EmptyAssistantReplies)
	}
	// "failed" 与 "sorry" 各命中一次错误信号
	if m.ErrorSignals != 2 {
		t.Fatalf("expected 2 error signals, got %d", m.ErrorSignals)
	}
	if m.HappySignals != 1 {
		t.Fatalf("expected 1 happy signal, got %d", m.HappySignals)
	}
	if m.ShortConversations != 1 || m.LongConversations != 0 {
		t.Fatalf("unexpected length buckets: %+v", m)
	}
	if m.AvgConversationLen != 3 || m.MedianConversationLen != 3 {
		t.Fatalf("unexpected conversation lengths: avg=%v median=%v", m.AvgConversationLen, m.MedianConversationLen)
	}
}

func TestComputeKeyMetrics_Empty(t *testing.T) {
	m := computeKeyMetrics(nil)
	if m.TotalConversations != 0 || m.AvgConversationLen != 0 {
		t.Fatalf("expected zero metrics, got %+v", m)
	}
}

func TestContainsArabic(t *testing.T) {
	if !containsArabic("مرحبا hello") {
		t.Fatalf("expected arabic detection in mixed text")
	}
	if containsArabic("hello world") {
		t.Fatalf("false positive on latin text")
	}
}

func TestComputeDailySeries(t *testing.T) {
	events := []model.ChatEvent{
		// T1 跨两天，新会话按首条消息的日期归属
		analyticsEvent(t, "T1", "2025-07-02 23:59:00", "user", "late"),
		analyticsEvent(t, "T1", "2025-07-03 00:01:00", "assistant", "reply"),
		analyticsEvent(t, "T2", "2025-07-02 08:00:00", "user", "hi"),
		analyticsEvent(t, "T3", "", "user", "no clock"),
	}

	convs := computeDailyNewConversations(events)
	if len(convs) != 1 || convs[0].Date != "2025-07-02" || convs[0].Count != 2 {
		t.Fatalf("unexpected daily conversations: %+v", convs)
	}

	msgs := computeDailyMessages(events)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 days of messages, got %+v", msgs)
	}
	if msgs[0].Date != "2025-07-02" || msgs[0].Count != 2 {
		t.Fatalf("unexpected first day: %+v", msgs[0])
	}
	if msgs[1].Date != "2025-07-03" || msgs[1].Count != 1 {
		t.Fatalf("unexpected second day: %+v", msgs[1])
	}
}

func TestComputeRegionDistribution(t *testing.T) {
	events := []model.ChatEvent{
		{ThreadID: "T1", Region: "UAE"},
		{ThreadID: "T1", Region: "UAE"},
		{ThreadID: "T2", Region: "KSA"},
		{ThreadID: "T3", Region: ""},
	}
	dist := computeRegionDistribution(events)
	if len(dist) != 2 {
		t.Fatalf("expected 2 regions, got %+v", dist)
	}
	if dist[0].Region != "UAE" || dist[0].Count != 2 {
		t.Fatalf("expected UAE first with 2, got %+v", dist[0])
	}
}

func TestComputeLongestConversations(t *testing.T) {
	events := []model.ChatEvent{
		{ThreadID: "A"}, {ThreadID: "A"}, {ThreadID: "A"},
		{ThreadID: "B"},
		{ThreadID: "C"}, {ThreadID: "C"},
	}
	top := computeLongestConversations(events, 2)
	if len(top) != 2 {
		t.Fatalf("expected top 2, got %d", len(top))
	}
	if top[0].ThreadID != "A" || top[0].Messages != 3 {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
	if top[1].ThreadID != "C" || top[1].Messages != 2 {
		t.Fatalf("unexpected runner-up: %+v", top[1])
	}
}
