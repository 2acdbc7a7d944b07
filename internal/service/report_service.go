// Package service 包含了应用的业务逻辑层。
package service

import (
	"sort"

	"layla-insight-go/internal/model"
	"layla-insight-go/internal/repository"
	"layla-insight-go/pkg/duration"
)

// HistogramBucket 是延迟分布直方图里的一个桶，区间为 [From, To)。
// 最后一个桶的 To 为 0 表示无上界。
type HistogramBucket struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Label string  `json:"label"`
	Count int     `json:"count"`
}

// DailyLatency 是按天聚合的延迟趋势点。
type DailyLatency struct {
	Date   string  `json:"date"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// SummaryView 是延迟概览接口的响应，数值同时给出格式化展示。
type SummaryView struct {
	Count           int                  `json:"count"`
	Mean            float64              `json:"mean"`
	MeanDisplay     string               `json:"meanDisplay"`
	Median          float64              `json:"median"`
	MedianDisplay   string               `json:"medianDisplay"`
	P95             float64              `json:"p95"`
	P95Display      string               `json:"p95Display"`
	Fastest         *model.LatencyRecord `json:"fastest"`
	FastestDisplay  string               `json:"fastestDisplay"`
	Slowest         *model.LatencyRecord `json:"slowest"`
	SlowestDisplay  string               `json:"slowestDisplay"`
}

// ReportService 把事件快照与延迟引擎串起来，支撑延迟面板的各个端点。
type ReportService interface {
	Summary(filter repository.EventFilter) (*SummaryView, error)
	SlowReplies(filter repository.EventFilter, opts SlowFilterOptions) ([]model.LatencyRecord, error)
	Histogram(filter repository.EventFilter) ([]HistogramBucket, error)
	DailyTrend(filter repository.EventFilter) ([]DailyLatency, error)
	Correlation(filter repository.EventFilter, excludeOutliers bool) (model.CorrelationResult, error)
	ExportCSV(filter repository.EventFilter) ([]byte, error)
}

type reportService struct {
	eventRepo repository.EventRepository
	engine    LatencyService
}

// NewReportService 创建一个新的 ReportService 实例。
func NewReportService(eventRepo repository.EventRepository, engine LatencyService) ReportService {
	return &reportService{eventRepo: eventRepo, engine: engine}
}

func (s *reportService) records(filter repository.EventFilter) ([]model.ChatEvent, []model.LatencyRecord, error) {
	events, err := s.eventRepo.FetchSnapshot(filter)
	if err != nil {
		return nil, nil, err
	}
	return events, s.engine.ComputeLatencies(events), nil
}

func (s *reportService) Summary(filter repository.EventFilter) (*SummaryView, error) {
	_, records, err := s.records(filter)
	if err != nil {
		return nil, err
	}
	summary := s.engine.SummaryStatistics(records)
	if summary == nil {
		// 没有任何配对成功的问答：给前端一个明确的空态
		return &SummaryView{
			MeanDisplay:    duration.Format(-1),
			MedianDisplay:  duration.Format(-1),
			P95Display:     duration.Format(-1),
			FastestDisplay: duration.Format(-1),
			SlowestDisplay: duration.Format(-1),
		}, nil
	}
	minRec, maxRec := summary.Min, summary.Max
	return &SummaryView{
		Count:          summary.Count,
		Mean:           summary.Mean,
		MeanDisplay:    duration.Format(summary.Mean),
		Median:         summary.Median,
		MedianDisplay:  duration.Format(summary.Median),
		P95:            summary.P95,
		P95Display:     duration.Format(summary.P95),
		Fastest:        &minRec,
		FastestDisplay: duration.Format(minRec.LatencySeconds),
		Slowest:        &maxRec,
		SlowestDisplay: duration.Format(maxRec.LatencySeconds),
	}, nil
}

func (s *reportService) SlowReplies(filter repository.EventFilter, opts SlowFilterOptions) ([]model.LatencyRecord, error) {
	_, records, err := s.records(filter)
	if err != nil {
		return nil, err
	}
	return s.engine.FilterSlow(records, opts), nil
}

// 直方图的固定分桶边界（秒）。
var histogramBounds = []float64{1, 5, 15, 30, 60, 300, 1800, 3600}

func (s *reportService) Histogram(filter repository.EventFilter) ([]HistogramBucket, error) {
	_, records, err := s.records(filter)
	if err != nil {
		return nil, err
	}
	return buildHistogram(records), nil
}

func buildHistogram(records []model.LatencyRecord) []HistogramBucket {
	buckets := make([]HistogramBucket, 0, len(histogramBounds)+1)
	prev := 0.0
	for _, bound := range histogramBounds {
		buckets = append(buckets, HistogramBucket{
			From:  prev,
			To:    bound,
			Label: duration.Format(prev) + " – " + duration.Format(bound),
		})
		prev = bound
	}
	buckets = append(buckets, HistogramBucket{
		From:  prev,
		Label: "≥ " + duration.Format(prev),
	})

	for _, r := range records {
		idx := len(buckets) - 1
		for i, b := range buckets[:len(buckets)-1] {
			if r.LatencySeconds < b.To {
				idx = i
				break
			}
		}
		buckets[idx].Count++
	}
	return buckets
}

func (s *reportService) DailyTrend(filter repository.EventFilter) ([]DailyLatency, error) {
	_, records, err := s.records(filter)
	if err != nil {
		return nil, err
	}
	return buildDailyTrend(records), nil
}

// buildDailyTrend 按回答时间戳的日期聚合延迟均值与中位数。
func buildDailyTrend(records []model.LatencyRecord) []DailyLatency {
	byDay := make(map[string][]float64)
	for _, r := range records {
		day := r.AssistantTimestamp.Format("2006-01-02")
		byDay[day] = append(byDay[day], r.LatencySeconds)
	}

	result := make([]DailyLatency, 0, len(byDay))
	for day, values := range byDay {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		sort.Float64s(values)
		result = append(result, DailyLatency{
			Date:   day,
			Count:  len(values),
			Mean:   sum / float64(len(values)),
			Median: quantileSorted(values, 0.5),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}

func (s *reportService) Correlation(filter repository.EventFilter, excludeOutliers bool) (model.CorrelationResult, error) {
	events, records, err := s.records(filter)
	if err != nil {
		return model.CorrelationResult{}, err
	}
	aggs := s.engine.PerThreadAggregates(events, records)
	return s.engine.CorrelationExcludingOutliers(aggs, excludeOutliers), nil
}

func (s *reportService) ExportCSV(filter repository.EventFilter) ([]byte, error) {
	_, records, err := s.records(filter)
	if err != nil {
		return nil, err
	}
	return s.engine.ExportCSV(records)
}
