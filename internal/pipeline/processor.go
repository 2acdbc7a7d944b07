// Package pipeline 定义了数据集导入的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"layla-insight-go/internal/config"
	"layla-insight-go/internal/model"
	"layla-insight-go/internal/repository"
	"layla-insight-go/pkg/es"
	"layla-insight-go/pkg/log"
	"layla-insight-go/pkg/storage"
	"layla-insight-go/pkg/tasks"
)

// Processor 封装了数据集导入的所有依赖和逻辑。
type Processor struct {
	esCfg       config.ElasticsearchConfig
	minioCfg    config.MinIOConfig
	datasetRepo repository.DatasetRepository
	eventRepo   repository.EventRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	esCfg config.ElasticsearchConfig,
	minioCfg config.MinIOConfig,
	datasetRepo repository.DatasetRepository,
	eventRepo repository.EventRepository,
) *Processor {
	return &Processor{
		esCfg:       esCfg,
		minioCfg:    minioCfg,
		datasetRepo: datasetRepo,
		eventRepo:   eventRepo,
	}
}

// Process 是数据集导入的主函数。失败时把数据集标记为失败并返回错误，
// 由消费端的重试计数决定是否再次尝试。
func (p *Processor) Process(ctx context.Context, task tasks.DatasetImportTask) error {
	log.Infof("[Processor] 开始导入数据集, DatasetID: %d, FileName: %s, UserID: %d", task.DatasetID, task.FileName, task.UserID)

	err := p.process(ctx, task)
	if err != nil {
		if markErr := p.datasetRepo.UpdateStatus(task.DatasetID, model.DatasetStatusFailed, err.Error()); markErr != nil {
			log.Errorf("[Processor] 标记数据集失败状态时出错, DatasetID: %d, Error: %v", task.DatasetID, markErr)
		}
	}
	return err
}

func (p *Processor) process(ctx context.Context, task tasks.DatasetImportTask) error {
	// 1. 从 MinIO 下载原始 CSV
	log.Infof("[Processor] 步骤1: 从MinIO下载文件, Bucket: %s, Object: %s", p.minioCfg.BucketName, task.ObjectName)
	data, err := storage.DownloadObject(ctx, p.minioCfg.BucketName, task.ObjectName)
	if err != nil {
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	if len(data) == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		return errors.New("文件内容为空")
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d 字节", len(data))

	// 2. 解析 CSV
	log.Info("[Processor] 步骤2: 解析 CSV")
	events, err := ParseEvents(bytes.NewReader(data), task.DatasetID)
	if err != nil {
		return fmt.Errorf("解析 CSV 失败: %w", err)
	}
	if len(events) == 0 {
		return errors.New("CSV 中没有任何数据行")
	}
	log.Infof("[Processor] 步骤2: 解析完成, 共 %d 行", len(events))

	// 3. 写入 MySQL。重复导入时先清理旧行，保证幂等
	log.Info("[Processor] 步骤3: 写入事件行到数据库")
	if err := p.eventRepo.DeleteByDataset(task.DatasetID); err != nil {
		log.Warnf("[Processor] 清理 chat_events 旧记录失败 (dataset_id=%d): %v", task.DatasetID, err)
	}
	if err := p.eventRepo.BatchInsert(events); err != nil {
		return fmt.Errorf("批量写入事件行失败: %w", err)
	}
	log.Infof("[Processor] 步骤3: 成功写入 %d 行", len(events))

	// 4. 批量索引到 Elasticsearch
	log.Info("[Processor] 步骤4: 索引消息到 Elasticsearch")
	const batchSize = 1000
	for start := 0; start < len(events); start += batchSize {
		end := start + batchSize
		if end > len(events) {
			end = len(events)
		}
		batch := make([]model.EsMessage, 0, end-start)
		for _, e := range events[start:end] {
			batch = append(batch, model.EsMessage{
				DatasetID: e.DatasetID,
				ThreadID:  e.ThreadID,
				Timestamp: e.Timestamp,
				Role:      e.Role,
				Message:   e.Message,
				Region:    e.Region,
				RowIndex:  e.RowIndex,
			})
		}
		if err := es.BulkIndexMessages(ctx, p.esCfg.IndexName, batch); err != nil {
			return fmt.Errorf("批量索引消息失败 (rows %d-%d): %w", start, end, err)
		}
	}
	if err := es.RefreshIndex(ctx, p.esCfg.IndexName); err != nil {
		log.Warnf("[Processor] 刷新索引失败: %v", err)
	}
	log.Info("[Processor] 步骤4: 索引完成")

	// 5. 回填数据概况并标记就绪
	stats := summarizeEvents(events)
	if err := p.datasetRepo.MarkReady(task.DatasetID, stats); err != nil {
		return fmt.Errorf("标记数据集就绪失败: %w", err)
	}
	log.Infof("[Processor] 数据集导入完成, DatasetID: %d, 行数: %d, 会话数: %d", task.DatasetID, stats.EventCount, stats.ThreadCount)
	return nil
}

// summarizeEvents 统计导入数据的行数、会话数与时间范围。
func summarizeEvents(events []model.ChatEvent) repository.DatasetStats {
	threads := make(map[string]struct{})
	var first, last *time.Time
	for i := range events {
		e := &events[i]
		threads[e.ThreadID] = struct{}{}
		if !e.HasTimestamp() {
			continue
		}
		if first == nil || e.Timestamp.Before(*first) {
			first = e.Timestamp
		}
		if last == nil || e.Timestamp.After(*last) {
			last = e.Timestamp
		}
	}
	return repository.DatasetStats{
		EventCount:   int64(len(events)),
		ThreadCount:  int64(len(threads)),
		FirstEventAt: first,
		LastEventAt:  last,
	}
}
