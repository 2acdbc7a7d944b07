// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"layla-insight-go/internal/model"

	"gorm.io/gorm"
)

// DatasetStats 是导入管道回填的数据概况。
type DatasetStats struct {
	EventCount   int64
	ThreadCount  int64
	FirstEventAt *time.Time
	LastEventAt  *time.Time
}

// DatasetRepository 接口定义了数据集元数据的持久化操作。
type DatasetRepository interface {
	Create(dataset *model.Dataset) error
	FindByID(id uint) (*model.Dataset, error)
	FindByMD5(fileMD5 string) (*model.Dataset, error)
	FindAll() ([]model.Dataset, error)
	FindByUser(userID uint) ([]model.Dataset, error)
	UpdateStatus(id uint, status int, errorMessage string) error
	MarkReady(id uint, stats DatasetStats) error
	Delete(id uint) error
}

type datasetRepository struct {
	db *gorm.DB
}

// NewDatasetRepository 创建一个新的 DatasetRepository 实例。
func NewDatasetRepository(db *gorm.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

func (r *datasetRepository) Create(dataset *model.Dataset) error {
	return r.db.Create(dataset).Error
}

func (r *datasetRepository) FindByID(id uint) (*model.Dataset, error) {
	var dataset model.Dataset
	err := r.db.First(&dataset, id).Error
	if err != nil {
		return nil, err
	}
	return &dataset, nil
}

// FindByMD5 根据文件 MD5 查找数据集，用于上传去重。
// 未找到时返回 gorm.ErrRecordNotFound。
func (r *datasetRepository) FindByMD5(fileMD5 string) (*model.Dataset, error) {
	var dataset model.Dataset
	err := r.db.Where("file_md5 = ?", fileMD5).First(&dataset).Error
	if err != nil {
		return nil, err
	}
	return &dataset, nil
}

func (r *datasetRepository) FindAll() ([]model.Dataset, error) {
	var datasets []model.Dataset
	err := r.db.Order("created_at DESC").Find(&datasets).Error
	return datasets, err
}

func (r *datasetRepository) FindByUser(userID uint) ([]model.Dataset, error) {
	var datasets []model.Dataset
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&datasets).Error
	return datasets, err
}

// UpdateStatus 更新数据集的导入状态，失败时同时记录错误信息。
func (r *datasetRepository) UpdateStatus(id uint, status int, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	}
	return r.db.Model(&model.Dataset{}).Where("id = ?", id).Updates(updates).Error
}

// MarkReady 将数据集标记为就绪并回填导入管道统计出的数据概况。
func (r *datasetRepository) MarkReady(id uint, stats DatasetStats) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":         model.DatasetStatusReady,
		"error_message":  "",
		"event_count":    stats.EventCount,
		"thread_count":   stats.ThreadCount,
		"first_event_at": stats.FirstEventAt,
		"last_event_at":  stats.LastEventAt,
		"imported_at":    &now,
	}
	return r.db.Model(&model.Dataset{}).Where("id = ?", id).Updates(updates).Error
}

func (r *datasetRepository) Delete(id uint) error {
	return r.db.Delete(&model.Dataset{}, id).Error
}
