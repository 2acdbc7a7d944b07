// Package service 包含了应用的业务逻辑层。
package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"layla-insight-go/internal/config"
	"layla-insight-go/internal/model"
	"layla-insight-go/pkg/es"
)

// SearchRequest 是关键词检索的请求参数。
type SearchRequest struct {
	DatasetID     uint
	Keyword       string
	CaseSensitive bool
	Role          string
	Region        string
	FromDate      string // "2006-01-02"，可为空
	ToDate        string
	Limit         int
}

// SearchSummary 是检索结果的汇总计数。
type SearchSummary struct {
	TotalMatches  int64          `json:"totalMatches"`
	Returned      int            `json:"returned"`
	UniqueThreads int            `json:"uniqueThreads"`
	ByRole        map[string]int `json:"byRole"`
}

// WordCount 是词频统计里的一项。
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// SearchResult 是关键词检索的完整响应。
type SearchResult struct {
	Summary  SearchSummary  `json:"summary"`
	Hits     []es.SearchHit `json:"hits"`
	TopWords []WordCount    `json:"topWords"`
	Timeline []DailyPoint   `json:"timeline"`
}

// SearchService 接口定义了基于 Elasticsearch 的消息检索操作。
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	ExportCSV(ctx context.Context, req SearchRequest) ([]byte, error)
}

type searchService struct {
	indexName  string
	maxResults int
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(cfg config.ElasticsearchConfig, maxResults int) SearchService {
	if maxResults <= 0 {
		maxResults = 500
	}
	return &searchService{indexName: cfg.IndexName, maxResults: maxResults}
}

func (s *searchService) buildQuery(req SearchRequest) (es.SearchQuery, error) {
	q := es.SearchQuery{
		DatasetID:     req.DatasetID,
		Keyword:       req.Keyword,
		CaseSensitive: req.CaseSensitive,
		Role:          req.Role,
		Region:        req.Region,
		Size:          req.Limit,
	}
	if q.Size <= 0 || q.Size > s.maxResults {
		q.Size = s.maxResults
	}
	if req.FromDate != "" {
		from, err := parseDay(req.FromDate, false)
		if err != nil {
			return q, err
		}
		q.From = from
	}
	if req.ToDate != "" {
		to, err := parseDay(req.ToDate, true)
		if err != nil {
			return q, err
		}
		q.To = to
	}
	return q, nil
}

func (s *searchService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	q, err := s.buildQuery(req)
	if err != nil {
		return nil, err
	}
	hits, total, err := es.SearchMessages(ctx, s.indexName, q)
	if err != nil {
		return nil, fmt.Errorf("检索消息失败: %w", err)
	}

	msgs := make([]model.EsMessage, 0, len(hits))
	for _, h := range hits {
		msgs = append(msgs, h.Message)
	}

	return &SearchResult{
		Summary:  summarizeHits(msgs, total),
		Hits:     hits,
		TopWords: topWords(msgs, 20),
		Timeline: hitTimeline(msgs),
	}, nil
}

// summarizeHits 统计命中的会话数与各角色的条数。
func summarizeHits(msgs []model.EsMessage, total int64) SearchSummary {
	threads := make(map[string]struct{})
	byRole := make(map[string]int)
	for _, m := range msgs {
		threads[m.ThreadID] = struct{}{}
		byRole[m.Role]++
	}
	return SearchSummary{
		TotalMatches:  total,
		Returned:      len(msgs),
		UniqueThreads: len(threads),
		ByRole:        byRole,
	}
}

// topWords 对命中消息做词频统计，取出现最多的前 n 个词。
// 词按空白切分并统一转小写，短于 3 个字符的词被忽略。
func topWords(msgs []model.EsMessage, n int) []WordCount {
	counts := make(map[string]int)
	for _, m := range msgs {
		for _, word := range strings.Fields(strings.ToLower(m.Message)) {
			word = strings.Trim(word, ".,!?;:\"'()[]{}")
			if len([]rune(word)) < 3 {
				continue
			}
			counts[word]++
		}
	}
	result := make([]WordCount, 0, len(counts))
	for word, c := range counts {
		result = append(result, WordCount{Word: word, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Word < result[j].Word
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// hitTimeline 把命中消息折叠为按天的命中数序列。
func hitTimeline(msgs []model.EsMessage) []DailyPoint {
	counts := make(map[string]int)
	for _, m := range msgs {
		if m.Timestamp == nil {
			continue
		}
		counts[m.Timestamp.Format("2006-01-02")]++
	}
	return sortedDaily(counts)
}

// ExportCSV 将检索结果序列化为 CSV 供前端下载。
func (s *searchService) ExportCSV(ctx context.Context, req SearchRequest) ([]byte, error) {
	q, err := s.buildQuery(req)
	if err != nil {
		return nil, err
	}
	hits, _, err := es.SearchMessages(ctx, s.indexName, q)
	if err != nil {
		return nil, fmt.Errorf("检索消息失败: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"thread_id", "timestamp", "role", "message", "region", "row_index"}); err != nil {
		return nil, fmt.Errorf("写入 CSV 表头失败: %w", err)
	}
	for _, h := range hits {
		m := h.Message
		stamp := ""
		if m.Timestamp != nil {
			stamp = model.LocalTime(*m.Timestamp).String()
		}
		row := []string{m.ThreadID, stamp, m.Role, m.Message, m.Region, strconv.Itoa(m.RowIndex)}
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
