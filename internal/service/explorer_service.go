// Package service 包含了应用的业务逻辑层。
package service

import (
	"sort"
	"strings"
	"time"

	"layla-insight-go/internal/model"
	"layla-insight-go/internal/repository"
)

// ThreadSummary 是会话列表里的一行：会话及其首条消息概况。
type ThreadSummary struct {
	ThreadID     string     `json:"threadId"`
	Region       string     `json:"region"`
	StartedAt    *time.Time `json:"startedAt"`
	Messages     int        `json:"messages"`
	FirstMessage string     `json:"firstMessage"`
}

// ExplorerFilter 是会话浏览器的过滤条件，叠加在事件快照过滤之上。
type ExplorerFilter struct {
	// TimeSubstring 对会话首条消息时间的字符串表示做子串匹配，
	// 方便快速定位 "10:3" 这类时间段。
	TimeSubstring string
	// SearchText 对会话内任意消息做大小写不敏感的子串匹配。
	SearchText string
}

// ExplorerService 接口定义了会话浏览器的操作。
type ExplorerService interface {
	ListThreads(filter repository.EventFilter, extra ExplorerFilter) ([]ThreadSummary, error)
	ThreadMessages(filter repository.EventFilter) ([]model.ChatEvent, error)
}

type explorerService struct {
	eventRepo repository.EventRepository
}

// NewExplorerService 创建一个新的 ExplorerService 实例。
func NewExplorerService(eventRepo repository.EventRepository) ExplorerService {
	return &explorerService{eventRepo: eventRepo}
}

func (s *explorerService) ListThreads(filter repository.EventFilter, extra ExplorerFilter) ([]ThreadSummary, error) {
	events, err := s.eventRepo.FetchSnapshot(filter)
	if err != nil {
		return nil, err
	}
	return buildThreadSummaries(events, extra), nil
}

// buildThreadSummaries 把事件快照折叠为会话概况列表，按开始时间倒序。
// 会话的开始时间取该会话内最早的可用时间戳。
func buildThreadSummaries(events []model.ChatEvent, extra ExplorerFilter) []ThreadSummary {
	type acc struct {
		summary   ThreadSummary
		anyMatch  bool
		firstSeen bool
	}
	order := make([]string, 0)
	byThread := make(map[string]*acc)
	needle := strings.ToLower(extra.SearchText)

	for _, e := range events {
		a, ok := byThread[e.ThreadID]
		if !ok {
			a = &acc{summary: ThreadSummary{ThreadID: e.ThreadID, Region: e.Region}}
			byThread[e.ThreadID] = a
			order = append(order, e.ThreadID)
		}
		a.summary.Messages++
		if e.HasTimestamp() {
			if a.summary.StartedAt == nil || e.Timestamp.Before(*a.summary.StartedAt) {
				a.summary.StartedAt = e.Timestamp
			}
		}
		if !a.firstSeen {
			a.summary.FirstMessage = e.Message
			a.firstSeen = true
		}
		if needle != "" && strings.Contains(strings.ToLower(e.Message), needle) {
			a.anyMatch = true
		}
	}

	result := make([]ThreadSummary, 0, len(order))
	for _, threadID := range order {
		a := byThread[threadID]
		if needle != "" && !a.anyMatch {
			continue
		}
		if extra.TimeSubstring != "" {
			if a.summary.StartedAt == nil {
				continue
			}
			stamp := model.LocalTime(*a.summary.StartedAt).String()
			if !strings.Contains(stamp, extra.TimeSubstring) {
				continue
			}
		}
		result = append(result, a.summary)
	}

	// 最近开始的会话排在最前，无时间戳的会话排在末尾
	sort.SliceStable(result, func(i, j int) bool {
		si, sj := result[i].StartedAt, result[j].StartedAt
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return si.After(*sj)
	})
	return result
}

// ThreadMessages 返回单个会话的完整消息序列，按时间升序。
// filter.ThreadID 必须非空。
func (s *explorerService) ThreadMessages(filter repository.EventFilter) ([]model.ChatEvent, error) {
	events, err := s.eventRepo.FetchSnapshot(filter)
	if err != nil {
		return nil, err
	}
	sortEventsByTime(events)
	return events, nil
}
