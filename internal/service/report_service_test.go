package service

import (
	"testing"
	"time"

	"layla-insight-go/internal/model"
)

func latRecord(t *testing.T, stamp string, latency float64) model.LatencyRecord {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", stamp)
	if err != nil {
		t.Fatalf("parse time %q: %v", stamp, err)
	}
	return model.LatencyRecord{
		ThreadID:           "T",
		UserTimestamp:      parsed.Add(-time.Duration(latency) * time.Second),
		AssistantTimestamp: parsed,
		LatencySeconds:     latency,
	}
}

func TestBuildHistogram(t *testing.T) {
	records := []model.LatencyRecord{
		latRecord(t, "2025-07-01 10:00:00", 0.5),  // [0,1)
		latRecord(t, "2025-07-01 10:01:00", 3),    // [1,5)
		latRecord(t, "2025-07-01 10:02:00", 3.9),  // [1,5)
		latRecord(t, "2025-07-01 10:03:00", 5000), // ≥3600
	}
	buckets := buildHistogram(records)
	if len(buckets) != 9 {
		t.Fatalf("expected 9 buckets, got %d", len(buckets))
	}
	if buckets[0].Count != 1 {
		t.Fatalf("expected 1 in first bucket, got %d", buckets[0].Count)
	}
	if buckets[1].Count != 2 {
		t.Fatalf("expected 2 in [1,5) bucket, got %d", buckets[1].Count)
	}
	last := buckets[len(buckets)-1]
	if last.Count != 1 || last.To != 0 {
		t.Fatalf("expected 1 in open-ended bucket, got %+v", last)
	}

	total := 0
	for _, b := range buckets {
		total += b.Count
	}
	if total != len(records) {
		t.Fatalf("bucket counts must sum to record count: %d != %d", total, len(records))
	}
}

func TestBuildDailyTrend(t *testing.T) {
	records := []model.LatencyRecord{
		latRecord(t, "2025-07-01 10:00:00", 10),
		latRecord(t, "2025-07-01 18:00:00", 30),
		latRecord(t, "2025-07-02 09:00:00", 7),
	}
	trend := buildDailyTrend(records)
	if len(trend) != 2 {
		t.Fatalf("expected 2 days, got %+v", trend)
	}
	first := trend[0]
	if first.Date != "2025-07-01" || first.Count != 2 {
		t.Fatalf("unexpected first day: %+v", first)
	}
	if first.Mean != 20 || first.Median != 20 {
		t.Fatalf("expected mean=median=20, got %+v", first)
	}
	if trend[1].Date != "2025-07-02" || trend[1].Mean != 7 {
		t.Fatalf("unexpected second day: %+v", trend[1])
	}
}

func TestBuildDailyTrend_Empty(t *testing.T) {
	if trend := buildDailyTrend(nil); len(trend) != 0 {
		t.Fatalf("expected empty trend, got %+v", trend)
	}
}
