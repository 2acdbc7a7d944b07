package service

import (
	"testing"
	"time"

	"layla-insight-go/internal/model"
)

func esMsg(t *testing.T, threadID, stamp, role, message string) model.EsMessage {
	t.Helper()
	m := model.EsMessage{DatasetID: 1, ThreadID: threadID, Role: role, Message: message}
	if stamp != "" {
		parsed, err := time.Parse("2006-01-02 15:04:05", stamp)
		if err != nil {
			t.Fatalf("parse time %q: %v", stamp, err)
		}
		m.Timestamp = &parsed
	}
	return m
}

func TestSummarizeHits(t *testing.T) {
	msgs := []model.EsMessage{
		esMsg(t, "T1", "2025-07-01 10:00:00", "user", "payment failed"),
		esMsg(t, "T1", "2025-07-01 10:00:05", "assistant", "checking payment"),
		esMsg(t, "T2", "2025-07-02 09:00:00", "user", "payment stuck"),
	}
	s := summarizeHits(msgs, 42)
	if s.TotalMatches != 42 || s.Returned != 3 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.UniqueThreads != 2 {
		t.Fatalf("expected 2 unique threads, got %d", s.UniqueThreads)
	}
	if s.ByRole["user"] != 2 || s.ByRole["assistant"] != 1 {
		t.Fatalf("unexpected role breakdown: %+v", s.ByRole)
	}
}

func TestTopWords(t *testing.T) {
	msgs := []model.EsMessage{
		{Message: "Payment failed, payment stuck."},
		{Message: "payment is ok"},
	}
	words := topWords(msgs, 2)
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %+v", words)
	}
	if words[0].Word != "payment" || words[0].Count != 3 {
		t.Fatalf("expected 'payment' x3 first, got %+v", words[0])
	}
	// 短词 "is"、"ok" 被忽略
	for _, w := range words {
		if w.Word == "is" || w.Word == "ok" {
			t.Fatalf("short words must be skipped: %+v", words)
		}
	}
}

func TestHitTimeline(t *testing.T) {
	msgs := []model.EsMessage{
		esMsg(t, "T1", "2025-07-01 10:00:00", "user", "a"),
		esMsg(t, "T1", "2025-07-01 18:00:00", "user", "b"),
		esMsg(t, "T2", "2025-07-02 09:00:00", "user", "c"),
		esMsg(t, "T3", "", "user", "no clock"),
	}
	timeline := hitTimeline(msgs)
	if len(timeline) != 2 {
		t.Fatalf("expected 2 days, got %+v", timeline)
	}
	if timeline[0].Date != "2025-07-01" || timeline[0].Count != 2 {
		t.Fatalf("unexpected first day: %+v", timeline[0])
	}
}

func TestParseDay(t *testing.T) {
	from, err := parseDay("2025-07-01", false)
	if err != nil {
		t.Fatalf("parse from: %v", err)
	}
	if from.Hour() != 0 || from.Minute() != 0 {
		t.Fatalf("from must be start of day, got %v", from)
	}

	to, err := parseDay("2025-07-01", true)
	if err != nil {
		t.Fatalf("parse to: %v", err)
	}
	if to.Hour() != 23 || to.Minute() != 59 || to.Second() != 59 {
		t.Fatalf("to must be end of day, got %v", to)
	}

	if _, err := parseDay("not-a-date", false); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}
