package service

import (
	"errors"
	"testing"

	"layla-insight-go/internal/model"
	"layla-insight-go/internal/repository"

	"gorm.io/gorm"
)

// fakeDatasetRepo 是内存实现，只支撑就绪校验和进度查询用到的方法。
type fakeDatasetRepo struct {
	datasets map[uint]*model.Dataset
}

func (f *fakeDatasetRepo) Create(dataset *model.Dataset) error { return nil }

func (f *fakeDatasetRepo) FindByID(id uint) (*model.Dataset, error) {
	dataset, exists := f.datasets[id]
	if !exists {
		return nil, gorm.ErrRecordNotFound
	}
	return dataset, nil
}

func (f *fakeDatasetRepo) FindByMD5(fileMD5 string) (*model.Dataset, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeDatasetRepo) FindAll() ([]model.Dataset, error) { return nil, nil }
func (f *fakeDatasetRepo) FindByUser(userID uint) ([]model.Dataset, error) { return nil, nil }

func (f *fakeDatasetRepo) UpdateStatus(id uint, status int, errorMessage string) error { return nil }
func (f *fakeDatasetRepo) MarkReady(id uint, stats repository.DatasetStats) error { return nil }
func (f *fakeDatasetRepo) Delete(id uint) error { return nil }

type fakeEventRepo struct {
	rows    int64
	threads []string
}

func (f *fakeEventRepo) BatchInsert(events []model.ChatEvent) error { return nil }
func (f *fakeEventRepo) DeleteByDataset(datasetID uint) error { return nil }

func (f *fakeEventRepo) FetchSnapshot(filter repository.EventFilter) ([]model.ChatEvent, error) {
	return nil, nil
}

func (f *fakeEventRepo) DistinctRegions(datasetID uint) ([]string, error) { return nil, nil }

func (f *fakeEventRepo) DistinctThreads(filter repository.EventFilter) ([]string, error) {
	return f.threads, nil
}

func (f *fakeEventRepo) CountByDataset(datasetID uint) (int64, error) { return f.rows, nil }

func newTestDatasetService(datasets map[uint]*model.Dataset, events *fakeEventRepo) DatasetService {
	if events == nil {
		events = &fakeEventRepo{}
	}
	return NewDatasetService(&fakeDatasetRepo{datasets: datasets}, events)
}

func TestEnsureReadyRejectsImportingDataset(t *testing.T) {
	svc := newTestDatasetService(map[uint]*model.Dataset{
		1: {ID: 1, Status: model.DatasetStatusImporting},
	}, nil)

	if _, err := svc.EnsureReady(1); !errors.Is(err, ErrDatasetNotReady) {
		t.Fatalf("导入中的数据集应返回 ErrDatasetNotReady, got %v", err)
	}
}

func TestEnsureReadyRejectsFailedDataset(t *testing.T) {
	svc := newTestDatasetService(map[uint]*model.Dataset{
		1: {ID: 1, Status: model.DatasetStatusFailed, ErrorMessage: "解析失败"},
	}, nil)

	if _, err := svc.EnsureReady(1); !errors.Is(err, ErrDatasetNotReady) {
		t.Fatalf("导入失败的数据集应返回 ErrDatasetNotReady, got %v", err)
	}
}

func TestEnsureReadyAcceptsReadyDataset(t *testing.T) {
	svc := newTestDatasetService(map[uint]*model.Dataset{
		2: {ID: 2, Status: model.DatasetStatusReady, FileName: "export.csv"},
	}, nil)

	dataset, err := svc.EnsureReady(2)
	if err != nil {
		t.Fatalf("就绪数据集不应报错, got %v", err)
	}
	if dataset.FileName != "export.csv" {
		t.Fatalf("应返回数据集本身, got %+v", dataset)
	}
}

func TestEnsureReadyPropagatesNotFound(t *testing.T) {
	svc := newTestDatasetService(map[uint]*model.Dataset{}, nil)

	if _, err := svc.EnsureReady(99); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("不存在的数据集应返回 ErrRecordNotFound, got %v", err)
	}
}

func TestImportProgressReportsLiveCounts(t *testing.T) {
	svc := newTestDatasetService(map[uint]*model.Dataset{
		3: {ID: 3, Status: model.DatasetStatusImporting},
	}, &fakeEventRepo{rows: 500, threads: []string{"T1", "T2", "T3"}})

	progress, err := svc.ImportProgress(3)
	if err != nil {
		t.Fatalf("查询进度不应报错, got %v", err)
	}
	if progress.Status != model.DatasetStatusImporting {
		t.Fatalf("状态错误: %d", progress.Status)
	}
	if progress.ImportedRows != 500 {
		t.Fatalf("已导入行数应为 500, got %d", progress.ImportedRows)
	}
	if progress.ThreadCount != 3 {
		t.Fatalf("会话数应为 3, got %d", progress.ThreadCount)
	}
}
