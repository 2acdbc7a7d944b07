// Package service 包含了应用的业务逻辑层。
package service

import (
	"sort"
	"strings"

	"layla-insight-go/internal/model"
	"layla-insight-go/internal/repository"
)

// 用于情绪/异常信号的关键词表。匹配为大小写不敏感的子串。
var (
	errorKeywords      = []string{"error", "failed", "sorry", "unable", "خطأ", "عذرا"}
	happyKeywords      = []string{"thank", "great", "perfect", "awesome", "شكرا", "ممتاز"}
	frustratedKeywords = []string{"not working", "useless", "bad", "angry", "لا يعمل", "سيء"}
)

// KeyMetrics 是分析面板顶部的核心指标。
// 长会话指超过 6 条消息，短会话指不超过 2 条，长提问指超过 30 个词。
type KeyMetrics struct {
	TotalConversations    int     `json:"totalConversations"`
	TotalMessages         int     `json:"totalMessages"`
	UserMessages          int     `json:"userMessages"`
	AssistantMessages     int     `json:"assistantMessages"`
	ArabicMessages        int     `json:"arabicMessages"`
	LatinMessages         int     `json:"latinMessages"`
	LongConversations     int     `json:"longConversations"`
	ShortConversations    int     `json:"shortConversations"`
	LongUserPrompts       int     `json:"longUserPrompts"`
	EmptyAssistantReplies int     `json:"emptyAssistantReplies"`
	ErrorSignals          int     `json:"errorSignals"`
	HappySignals          int     `json:"happySignals"`
	FrustratedSignals     int     `json:"frustratedSignals"`
	AvgConversationLen    float64 `json:"avgConversationLen"`
	MedianConversationLen float64 `json:"medianConversationLen"`
}

// DailyPoint 是按天聚合的一个数据点，日期为 "2006-01-02"。
type DailyPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// RegionCount 是单个区域的消息计数。
type RegionCount struct {
	Region string `json:"region"`
	Count  int    `json:"count"`
}

// ThreadLength 是会话及其消息数，用于最长会话排行。
type ThreadLength struct {
	ThreadID string `json:"threadId"`
	Messages int    `json:"messages"`
}

// AnalyticsService 接口定义了分析面板的聚合操作。
type AnalyticsService interface {
	KeyMetrics(filter repository.EventFilter) (*KeyMetrics, error)
	DailyNewConversations(filter repository.EventFilter) ([]DailyPoint, error)
	DailyMessages(filter repository.EventFilter) ([]DailyPoint, error)
	RegionDistribution(filter repository.EventFilter) ([]RegionCount, error)
	LongestConversations(filter repository.EventFilter, top int) ([]ThreadLength, error)
}

type analyticsService struct {
	eventRepo repository.EventRepository
}

// NewAnalyticsService 创建一个新的 AnalyticsService 实例。
func NewAnalyticsService(eventRepo repository.EventRepository) AnalyticsService {
	return &analyticsService{eventRepo: eventRepo}
}

func (s *analyticsService) KeyMetrics(filter repository.EventFilter) (*KeyMetrics, error) {
	events, err := s.eventRepo.FetchSnapshot(filter)
	if err != nil {
		return nil, err
	}
	return computeKeyMetrics(events), nil
}

// computeKeyMetrics 是对事件快照的纯计算，便于单独测试。
func computeKeyMetrics(events []model.ChatEvent) *KeyMetrics {
	m := &KeyMetrics{TotalMessages: len(events)}
	threadLens := make(map[string]int)

	for _, e := range events {
		threadLens[e.ThreadID]++
		switch e.Role {
		case model.RoleUser:
			m.UserMessages++
			if len(strings.Fields(e.Message)) > 30 {
				m.LongUserPrompts++
			}
		case model.RoleAssistant:
			m.AssistantMessages++
			if strings.TrimSpace(e.Message) == "" {
				m.EmptyAssistantReplies++
			}
		}
		if containsArabic(e.Message) {
			m.ArabicMessages++
		} else if strings.TrimSpace(e.Message) != "" {
			m.LatinMessages++
		}
		lower := strings.ToLower(e.Message)
		if containsAny(lower, errorKeywords) {
			m.ErrorSignals++
		}
		if containsAny(lower, happyKeywords) {
			m.HappySignals++
		}
		if containsAny(lower, frustratedKeywords) {
			m.FrustratedSignals++
		}
	}

	m.TotalConversations = len(threadLens)
	if m.TotalConversations == 0 {
		return m
	}

	lens := make([]float64, 0, len(threadLens))
	sum := 0
	for _, n := range threadLens {
		lens = append(lens, float64(n))
		sum += n
		if n > 6 {
			m.LongConversations++
		}
		if n <= 2 {
			m.ShortConversations++
		}
	}
	sort.Float64s(lens)
	m.AvgConversationLen = float64(sum) / float64(len(lens))
	m.MedianConversationLen = quantileSorted(lens, 0.5)
	return m
}

// containsArabic 报告文本是否包含阿拉伯语基本区字符 (U+0600–U+06FF)。
func containsArabic(text string) bool {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (s *analyticsService) DailyNewConversations(filter repository.EventFilter) ([]DailyPoint, error) {
	events, err := s.eventRepo.FetchSnapshot(filter)
	if err != nil {
		return nil, err
	}
	return computeDailyNewConversations(events), nil
}

// computeDailyNewConversations 以会话首条带时间戳消息的日期为"新会话"日期。
func computeDailyNewConversations(events []model.ChatEvent) []DailyPoint {
	firstSeen := make(map[string]string)
	for _, e := range events {
		if !e.HasTimestamp() {
			continue
		}
		day := e.Timestamp.Format("2006-01-02")
		if prev, ok := firstSeen[e.ThreadID]; !ok || day < prev {
			firstSeen[e.ThreadID] = day
		}
	}
	counts := make(map[string]int)
	for _, day := range firstSeen {
		counts[day]++
	}
	return sortedDaily(counts)
}

func (s *analyticsService) DailyMessages(filter repository.EventFilter) ([]DailyPoint, error) {
	events, err := s.eventRepo.FetchSnapshot(filter)
	if err != nil {
		return nil, err
	}
	return computeDailyMessages(events), nil
}

func computeDailyMessages(events []model.ChatEvent) []DailyPoint {
	counts := make(map[string]int)
	for _, e := range events {
		if !e.HasTimestamp() {
			continue
		}
		counts[e.Timestamp.Format("2006-01-02")]++
	}
	return sortedDaily(counts)
}

func sortedDaily(counts map[string]int) []DailyPoint {
	points := make([]DailyPoint, 0, len(counts))
	for day, n := range counts {
		points = append(points, DailyPoint{Date: day, Count: n})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

func (s *analyticsService) RegionDistribution(filter repository.EventFilter) ([]RegionCount, error) {
	events, err := s.eventRepo.FetchSnapshot(filter)
	if err != nil {
		return nil, err
	}
	return computeRegionDistribution(events), nil
}

func computeRegionDistribution(events []model.ChatEvent) []RegionCount {
	counts := make(map[string]int)
	for _, e := range events {
		if e.Region == "" {
			continue
		}
		counts[e.Region]++
	}
	result := make([]RegionCount, 0, len(counts))
	for region, n := range counts {
		result = append(result, RegionCount{Region: region, Count: n})
	}
	// 计数降序，相同计数按区域名稳定排序
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Region < result[j].Region
	})
	return result
}

func (s *analyticsService) LongestConversations(filter repository.EventFilter, top int) ([]ThreadLength, error) {
	events, err := s.eventRepo.FetchSnapshot(filter)
	if err != nil {
		return nil, err
	}
	return computeLongestConversations(events, top), nil
}

func computeLongestConversations(events []model.ChatEvent, top int) []ThreadLength {
	if top <= 0 {
		top = 10
	}
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.ThreadID]++
	}
	result := make([]ThreadLength, 0, len(counts))
	for threadID, n := range counts {
		result = append(result, ThreadLength{ThreadID: threadID, Messages: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Messages != result[j].Messages {
			return result[i].Messages > result[j].Messages
		}
		return result[i].ThreadID < result[j].ThreadID
	})
	if len(result) > top {
		result = result[:top]
	}
	return result
}
