// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"layla-insight-go/internal/config"
	"layla-insight-go/internal/model"
	"layla-insight-go/internal/repository"
	"layla-insight-go/pkg/es"
	"layla-insight-go/pkg/kafka"
	"layla-insight-go/pkg/log"
	"layla-insight-go/pkg/storage"
	"layla-insight-go/pkg/tasks"

	"gorm.io/gorm"
)

// ErrDatasetNotReady 表示数据集还在导入或导入失败，无法用于分析。
var ErrDatasetNotReady = errors.New("数据集尚未就绪")

// 下载链接的有效期。
const downloadURLExpiry = 15 * time.Minute

// DatasetProgress 是导入进度视图：状态加上事件表的实时行数与会话数。
// 导入过程中分批落库，这里的计数会随批次递增。
type DatasetProgress struct {
	Status       int    `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ImportedRows int64  `json:"importedRows"`
	ThreadCount  int    `json:"threadCount"`
}

// DatasetService 接口定义了数据集生命周期的业务操作。
type DatasetService interface {
	// Upload 接收一份 CSV 导出文件：按内容 MD5 去重，上传到对象存储，
	// 登记元数据行并投递导入任务。重复上传返回已存在的数据集。
	Upload(ctx context.Context, fileName string, data []byte, userID uint) (*model.Dataset, bool, error)
	Get(id uint) (*model.Dataset, error)
	List(userID uint, isAdmin bool) ([]model.Dataset, error)
	// Delete 移除数据集及其事件行、搜索索引文档和原始对象，仅管理员可用。
	Delete(ctx context.Context, id uint) error
	Regions(id uint) ([]string, error)
	// EnsureReady 校验数据集处于就绪状态，分析端点共用。
	EnsureReady(id uint) (*model.Dataset, error)
	// ImportProgress 返回导入进度：状态与事件表的实时计数。
	ImportProgress(id uint) (*DatasetProgress, error)
	// DownloadURL 为原始 CSV 对象签发临时下载链接。
	DownloadURL(id uint) (string, error)
}

type datasetService struct {
	datasetRepo repository.DatasetRepository
	eventRepo   repository.EventRepository
}

// NewDatasetService 创建一个新的 DatasetService 实例。
func NewDatasetService(datasetRepo repository.DatasetRepository, eventRepo repository.EventRepository) DatasetService {
	return &datasetService{
		datasetRepo: datasetRepo,
		eventRepo:   eventRepo,
	}
}

func (s *datasetService) Upload(ctx context.Context, fileName string, data []byte, userID uint) (*model.Dataset, bool, error) {
	if len(data) == 0 {
		return nil, false, errors.New("上传文件为空")
	}

	// 1. 计算内容 MD5 做去重键
	sum := md5.Sum(data)
	fileMD5 := hex.EncodeToString(sum[:])

	existing, err := s.datasetRepo.FindByMD5(fileMD5)
	if err == nil {
		// 相同内容已上传过，直接复用（秒传）
		log.Infof("数据集已存在，跳过导入: MD5=%s, ID=%d", fileMD5, existing.ID)
		return existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	// 2. 上传原始文件到对象存储
	objectName := fmt.Sprintf("datasets/%s/%s", fileMD5, fileName)
	bucket := config.Conf.MinIO.BucketName
	if err := storage.UploadBytes(ctx, bucket, objectName, data, "text/csv"); err != nil {
		return nil, false, fmt.Errorf("上传 CSV 到对象存储失败: %w", err)
	}

	// 3. 登记元数据行
	dataset := &model.Dataset{
		FileMD5:    fileMD5,
		FileName:   fileName,
		ObjectName: objectName,
		TotalSize:  int64(len(data)),
		Status:     model.DatasetStatusImporting,
		UserID:     userID,
	}
	if err := s.datasetRepo.Create(dataset); err != nil {
		return nil, false, fmt.Errorf("登记数据集失败: %w", err)
	}

	// 4. 投递导入任务，由管道消费者异步解析入库
	task := tasks.DatasetImportTask{
		DatasetID:  dataset.ID,
		FileMD5:    fileMD5,
		ObjectName: objectName,
		FileName:   fileName,
		UserID:     userID,
	}
	if err := kafka.ProduceImportTask(task); err != nil {
		// 任务投递失败时标记数据集失败，避免永远停留在导入中
		_ = s.datasetRepo.UpdateStatus(dataset.ID, model.DatasetStatusFailed, "导入任务投递失败")
		return nil, false, fmt.Errorf("投递导入任务失败: %w", err)
	}

	return dataset, false, nil
}

func (s *datasetService) Get(id uint) (*model.Dataset, error) {
	return s.datasetRepo.FindByID(id)
}

func (s *datasetService) List(userID uint, isAdmin bool) ([]model.Dataset, error) {
	if isAdmin {
		return s.datasetRepo.FindAll()
	}
	return s.datasetRepo.FindByUser(userID)
}

func (s *datasetService) Delete(ctx context.Context, id uint) error {
	dataset, err := s.datasetRepo.FindByID(id)
	if err != nil {
		return err
	}

	// 先清事件行和搜索索引，最后删元数据；中间失败时保留元数据便于重试
	if err := s.eventRepo.DeleteByDataset(id); err != nil {
		return fmt.Errorf("删除事件行失败: %w", err)
	}
	if err := es.DeleteDatasetMessages(ctx, config.Conf.Elasticsearch.IndexName, id); err != nil {
		log.Errorf("删除搜索索引文档失败: datasetID=%d, error: %v", id, err)
	}
	if err := storage.RemoveObject(ctx, config.Conf.MinIO.BucketName, dataset.ObjectName); err != nil {
		log.Errorf("删除原始对象失败: %s, error: %v", dataset.ObjectName, err)
	}
	return s.datasetRepo.Delete(id)
}

func (s *datasetService) Regions(id uint) ([]string, error) {
	return s.eventRepo.DistinctRegions(id)
}

func (s *datasetService) EnsureReady(id uint) (*model.Dataset, error) {
	dataset, err := s.datasetRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if dataset.Status != model.DatasetStatusReady {
		return nil, ErrDatasetNotReady
	}
	return dataset, nil
}

func (s *datasetService) ImportProgress(id uint) (*DatasetProgress, error) {
	dataset, err := s.datasetRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	rows, err := s.eventRepo.CountByDataset(id)
	if err != nil {
		return nil, err
	}
	threads, err := s.eventRepo.DistinctThreads(repository.EventFilter{DatasetID: id})
	if err != nil {
		return nil, err
	}
	return &DatasetProgress{
		Status:       dataset.Status,
		ErrorMessage: dataset.ErrorMessage,
		ImportedRows: rows,
		ThreadCount:  len(threads),
	}, nil
}

func (s *datasetService) DownloadURL(id uint) (string, error) {
	dataset, err := s.datasetRepo.FindByID(id)
	if err != nil {
		return "", err
	}
	return storage.GetPresignedURL(config.Conf.MinIO.BucketName, dataset.ObjectName, downloadURLExpiry)
}
