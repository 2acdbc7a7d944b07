package pipeline

import (
	"strings"
	"testing"
)

func TestParseEvents(t *testing.T) {
	csvData := strings.Join([]string{
		`T1,2025-07-01 10:00:00,user,"hi, there",UAE`,
		`T1,2025-07-01 10:00:05,Assistant,hello,UAE`,
		`T2,not-a-time,user,broken clock,KSA`,
		`T2,,user,no clock,KSA`,
	}, "\n")

	events, err := ParseEvents(strings.NewReader(csvData), 7)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	first := events[0]
	if first.DatasetID != 7 || first.ThreadID != "T1" || first.Message != "hi, there" || first.Region != "UAE" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if !first.HasTimestamp() {
		t.Fatalf("first event must have a timestamp")
	}
	if first.RowIndex != 0 || events[3].RowIndex != 3 {
		t.Fatalf("row indexes must follow file order: %d, %d", first.RowIndex, events[3].RowIndex)
	}

	// 角色统一转小写
	if events[1].Role != "assistant" {
		t.Fatalf("role must be lowercased, got %q", events[1].Role)
	}

	// 坏时间戳和空时间戳的行保留，但时间戳为空
	if events[2].Timestamp != nil || events[3].Timestamp != nil {
		t.Fatalf("unparseable timestamps must be nil: %+v, %+v", events[2], events[3])
	}
}

func TestParseEvents_ExtraColumnDropped(t *testing.T) {
	csvData := `T1,2025-07-01 10:00:00,user,hello,UAE,legacy-extra`
	events, err := ParseEvents(strings.NewReader(csvData), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 || events[0].Region != "UAE" {
		t.Fatalf("extra trailing column must be ignored: %+v", events)
	}
}

func TestParseEvents_MissingColumnsFailFast(t *testing.T) {
	csvData := "T1,2025-07-01 10:00:00,user\nT2,2025-07-01 11:00:00,user,msg,UAE"
	_, err := ParseEvents(strings.NewReader(csvData), 1)
	if err == nil {
		t.Fatalf("expected error for missing columns")
	}
	// 错误信息要点名缺失的列
	if !strings.Contains(err.Error(), "message") || !strings.Contains(err.Error(), "region") {
		t.Fatalf("error must name missing columns, got: %v", err)
	}
}

func TestParseEvents_Empty(t *testing.T) {
	events, err := ParseEvents(strings.NewReader(""), 1)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	for _, value := range []string{
		"2025-07-01 10:00:00",
		"2025-07-01T10:00:00",
		"2025-07-01T10:00:00Z",
		"2025/07/01 10:00:00",
	} {
		if parseTimestamp(value) == nil {
			t.Fatalf("expected %q to parse", value)
		}
	}
	if parseTimestamp("yesterday") != nil {
		t.Fatalf("expected garbage to yield nil")
	}
}

func TestSummarizeEvents(t *testing.T) {
	csvData := strings.Join([]string{
		`T1,2025-07-02 10:00:00,user,a,UAE`,
		`T1,2025-07-01 09:00:00,assistant,b,UAE`,
		`T2,,user,c,KSA`,
	}, "\n")
	events, err := ParseEvents(strings.NewReader(csvData), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	stats := summarizeEvents(events)
	if stats.EventCount != 3 || stats.ThreadCount != 2 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.FirstEventAt == nil || stats.FirstEventAt.Day() != 1 {
		t.Fatalf("unexpected first event time: %v", stats.FirstEventAt)
	}
	if stats.LastEventAt == nil || stats.LastEventAt.Day() != 2 {
		t.Fatalf("unexpected last event time: %v", stats.LastEventAt)
	}
}
