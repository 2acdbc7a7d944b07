// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"layla-insight-go/internal/model"

	"gorm.io/gorm"
)

// EventFilter 是事件快照的过滤条件。
// 日期过滤只作用于时间戳可解析的行；Region 为空表示不过滤区域。
// 注意：时间戳缺失的行不受日期过滤影响，始终包含在快照中，
// 这样计数统计和延迟配对看到的是同一份数据。
type EventFilter struct {
	DatasetID uint
	From      *time.Time
	To        *time.Time
	Region    string
	ThreadID  string
}

// EventRepository 接口定义了会话事件的持久化操作。
type EventRepository interface {
	BatchInsert(events []model.ChatEvent) error
	DeleteByDataset(datasetID uint) error
	FetchSnapshot(filter EventFilter) ([]model.ChatEvent, error)
	DistinctRegions(datasetID uint) ([]string, error)
	DistinctThreads(filter EventFilter) ([]string, error)
	CountByDataset(datasetID uint) (int64, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建一个新的 EventRepository 实例。
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// BatchInsert 分批写入事件行，导入管道在解析完 CSV 后调用。
func (r *eventRepository) BatchInsert(events []model.ChatEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.CreateInBatches(events, 500).Error
}

// DeleteByDataset 删除某数据集下的全部事件，重新导入前清场。
func (r *eventRepository) DeleteByDataset(datasetID uint) error {
	return r.db.Where("dataset_id = ?", datasetID).Delete(&model.ChatEvent{}).Error
}

func (r *eventRepository) snapshotQuery(filter EventFilter) *gorm.DB {
	q := r.db.Model(&model.ChatEvent{}).Where("dataset_id = ?", filter.DatasetID)
	if filter.From != nil {
		q = q.Where("timestamp IS NULL OR timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("timestamp IS NULL OR timestamp <= ?", *filter.To)
	}
	if filter.Region != "" {
		q = q.Where("region = ?", filter.Region)
	}
	if filter.ThreadID != "" {
		q = q.Where("thread_id = ?", filter.ThreadID)
	}
	return q
}

// FetchSnapshot 按过滤条件取出事件快照，保持原始 CSV 行序。
// 所有分析操作都在这份快照上做纯计算。
func (r *eventRepository) FetchSnapshot(filter EventFilter) ([]model.ChatEvent, error) {
	var events []model.ChatEvent
	err := r.snapshotQuery(filter).Order("row_index ASC").Find(&events).Error
	return events, err
}

// DistinctRegions 返回某数据集下出现过的全部区域，供前端过滤器使用。
func (r *eventRepository) DistinctRegions(datasetID uint) ([]string, error) {
	var regions []string
	err := r.db.Model(&model.ChatEvent{}).
		Where("dataset_id = ? AND region <> ''", datasetID).
		Distinct("region").
		Order("region ASC").
		Pluck("region", &regions).Error
	return regions, err
}

// DistinctThreads 返回过滤条件下出现过的全部会话 ID。
func (r *eventRepository) DistinctThreads(filter EventFilter) ([]string, error) {
	var threads []string
	err := r.snapshotQuery(filter).
		Distinct("thread_id").
		Order("thread_id ASC").
		Pluck("thread_id", &threads).Error
	return threads, err
}

func (r *eventRepository) CountByDataset(datasetID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.ChatEvent{}).Where("dataset_id = ?", datasetID).Count(&count).Error
	return count, err
}
