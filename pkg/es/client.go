// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"layla-insight-go/internal/config"
	"layla-insight-go/internal/model"
	"layla-insight-go/pkg/log"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 消息正文使用 standard 分词器（阿拉伯语/英语混合语料），
	// 同时保留 raw 关键字子字段用于精确聚合
	mapping := `{
		"mappings": {
			"properties": {
				"dataset_id": { "type": "long" },
				"thread_id": { "type": "keyword" },
				"timestamp": { "type": "date" },
				"role": { "type": "keyword" },
				"message": {
					"type": "text",
					"analyzer": "standard",
					"fields": {
						"raw": { "type": "keyword", "ignore_above": 512 }
					}
				},
				"region": { "type": "keyword" },
				"row_index": { "type": "integer" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// docID 生成消息文档的主键，重复导入同一数据集时幂等覆盖。
func docID(msg model.EsMessage) string {
	return fmt.Sprintf("%d-%d", msg.DatasetID, msg.RowIndex)
}

// BulkIndexMessages 使用 _bulk API 批量索引聊天消息。
// 调用方负责分批，单次调用建议不超过数千条。
func BulkIndexMessages(ctx context.Context, indexName string, msgs []model.EsMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, msg := range msgs {
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, indexName, docID(msg))
		buf.WriteString(meta)
		buf.WriteByte('\n')
		docBytes, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	res, err := ESClient.Bulk(bytes.NewReader(buf.Bytes()), ESClient.Bulk.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("批量索引消息到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to bulk index messages")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return err
	}
	if bulkResp.Errors {
		return errors.New("bulk response reported item-level errors")
	}
	return nil
}

// DeleteDatasetMessages 按 dataset_id 删除某数据集下的全部消息文档。
func DeleteDatasetMessages(ctx context.Context, indexName string, datasetID uint) error {
	query := fmt.Sprintf(`{"query":{"term":{"dataset_id":%d}}}`, datasetID)
	res, err := ESClient.DeleteByQuery(
		[]string{indexName},
		strings.NewReader(query),
		ESClient.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("按数据集删除消息文档出错: %s", res.String())
		return errors.New("failed to delete dataset messages")
	}
	return nil
}

// SearchQuery 是消息检索的组合条件。
type SearchQuery struct {
	DatasetID uint
	Keyword   string
	// CaseSensitive 为 true 时走 raw 关键字子字段的通配子串匹配，
	// 否则走分词后的 match 查询。
	CaseSensitive bool
	Role          string
	Region        string
	From          *time.Time
	To            *time.Time
	Size          int
}

// SearchHit 是一条命中的消息及其高亮片段。
type SearchHit struct {
	Message    model.EsMessage
	Highlights []string
}

// SearchMessages 对消息索引执行关键词检索，返回命中列表与总命中数。
// Keyword 为空时退化为纯过滤查询，按时间升序返回。
func SearchMessages(ctx context.Context, indexName string, q SearchQuery) ([]SearchHit, int64, error) {
	must := make([]map[string]interface{}, 0, 2)
	filter := make([]map[string]interface{}, 0, 4)

	if q.Keyword != "" {
		if q.CaseSensitive {
			must = append(must, map[string]interface{}{
				"wildcard": map[string]interface{}{
					"message.raw": map[string]interface{}{
						"value": "*" + q.Keyword + "*",
					},
				},
			})
		} else {
			must = append(must, map[string]interface{}{
				"match": map[string]interface{}{
					"message": map[string]interface{}{
						"query":    q.Keyword,
						"operator": "and",
					},
				},
			})
		}
	}
	filter = append(filter, map[string]interface{}{
		"term": map[string]interface{}{"dataset_id": q.DatasetID},
	})
	if q.Role != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"role": q.Role},
		})
	}
	if q.Region != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"region": q.Region},
		})
	}
	if q.From != nil || q.To != nil {
		rangeClause := map[string]interface{}{}
		if q.From != nil {
			rangeClause["gte"] = q.From.Format(time.RFC3339)
		}
		if q.To != nil {
			rangeClause["lte"] = q.To.Format(time.RFC3339)
		}
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{"timestamp": rangeClause},
		})
	}

	size := q.Size
	if size <= 0 {
		size = 100
	}

	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"message": map[string]interface{}{},
			},
		},
	}
	if q.Keyword == "" {
		body["sort"] = []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "asc", "missing": "_last"}},
		}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(bytes.NewReader(bodyBytes)),
		ESClient.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("检索消息出错: %s", res.String())
		return nil, 0, errors.New("failed to search messages")
	}

	var searchResp struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source    model.EsMessage     `json:"_source"`
				Highlight map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, 0, err
	}

	hits := make([]SearchHit, 0, len(searchResp.Hits.Hits))
	for _, h := range searchResp.Hits.Hits {
		hits = append(hits, SearchHit{
			Message:    h.Source,
			Highlights: h.Highlight["message"],
		})
	}
	return hits, searchResp.Hits.Total.Value, nil
}

// RefreshIndex 强制刷新索引，导入完成后调用使文档立即可检索。
func RefreshIndex(ctx context.Context, indexName string) error {
	req := esapi.IndicesRefreshRequest{Index: []string{indexName}}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("刷新索引失败: %s", res.String())
	}
	return nil
}
