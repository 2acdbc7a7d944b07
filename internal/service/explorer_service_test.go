package service

import (
	"testing"

	"layla-insight-go/internal/model"
)

func TestBuildThreadSummaries(t *testing.T) {
	events := []model.ChatEvent{
		analyticsEvent(t, "T1", "2025-07-01 10:30:00", "user", "booking problem"),
		analyticsEvent(t, "T1", "2025-07-01 10:30:05", "assistant", "let me check"),
		analyticsEvent(t, "T2", "2025-07-02 09:00:00", "user", "hello"),
	}

	summaries := buildThreadSummaries(events, ExplorerFilter{})
	if len(summaries) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(summaries))
	}
	// 最近开始的会话在前
	if summaries[0].ThreadID != "T2" || summaries[1].ThreadID != "T1" {
		t.Fatalf("unexpected order: %s, %s", summaries[0].ThreadID, summaries[1].ThreadID)
	}
	if summaries[1].Messages != 2 || summaries[1].FirstMessage != "booking problem" {
		t.Fatalf("unexpected T1 summary: %+v", summaries[1])
	}
}

func TestBuildThreadSummaries_SearchText(t *testing.T) {
	events := []model.ChatEvent{
		analyticsEvent(t, "T1", "2025-07-01 10:30:00", "user", "booking problem"),
		analyticsEvent(t, "T2", "2025-07-02 09:00:00", "user", "hello"),
	}
	summaries := buildThreadSummaries(events, ExplorerFilter{SearchText: "BOOKING"})
	if len(summaries) != 1 || summaries[0].ThreadID != "T1" {
		t.Fatalf("expected only T1, got %+v", summaries)
	}
}

func TestBuildThreadSummaries_TimeSubstring(t *testing.T) {
	events := []model.ChatEvent{
		analyticsEvent(t, "T1", "2025-07-01 10:30:00", "user", "a"),
		analyticsEvent(t, "T2", "2025-07-01 14:00:00", "user", "b"),
		analyticsEvent(t, "T3", "", "user", "c"),
	}
	summaries := buildThreadSummaries(events, ExplorerFilter{TimeSubstring: "10:3"})
	if len(summaries) != 1 || summaries[0].ThreadID != "T1" {
		t.Fatalf("expected only T1, got %+v", summaries)
	}
}

func TestBuildThreadSummaries_MissingTimestampLast(t *testing.T) {
	events := []model.ChatEvent{
		analyticsEvent(t, "T1", "", "user", "no clock"),
		analyticsEvent(t, "T2", "2025-07-01 10:00:00", "user", "timed"),
	}
	summaries := buildThreadSummaries(events, ExplorerFilter{})
	if summaries[0].ThreadID != "T2" || summaries[1].ThreadID != "T1" {
		t.Fatalf("threads without timestamps must sort last: %+v", summaries)
	}
}
