package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"layla-insight-go/internal/model"
	"layla-insight-go/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// stubDatasetService 只为就绪校验定制返回值，其余方法不会被调用。
type stubDatasetService struct {
	dataset *model.Dataset
	err     error
}

func (s *stubDatasetService) Upload(ctx context.Context, fileName string, data []byte, userID uint) (*model.Dataset, bool, error) {
	return nil, false, nil
}

func (s *stubDatasetService) Get(id uint) (*model.Dataset, error)              { return nil, nil }
func (s *stubDatasetService) List(userID uint, isAdmin bool) ([]model.Dataset, error) {
	return nil, nil
}
func (s *stubDatasetService) Delete(ctx context.Context, id uint) error { return nil }
func (s *stubDatasetService) Regions(id uint) ([]string, error)         { return nil, nil }

func (s *stubDatasetService) EnsureReady(id uint) (*model.Dataset, error) {
	return s.dataset, s.err
}

func (s *stubDatasetService) ImportProgress(id uint) (*service.DatasetProgress, error) {
	return nil, nil
}
func (s *stubDatasetService) DownloadURL(id uint) (string, error) { return "", nil }

func newScopeContext(t *testing.T, query string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/latency/summary"+query, nil)
	return c, w
}

func TestAnalysisScopeRejectsImportingDataset(t *testing.T) {
	c, w := newScopeContext(t, "?dataset_id=7")
	datasets := &stubDatasetService{err: service.ErrDatasetNotReady}

	if _, valid := analysisScope(c, datasets); valid {
		t.Fatalf("未就绪的数据集不应通过校验")
	}
	if w.Code != http.StatusConflict {
		t.Fatalf("应返回 409, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "尚未就绪") {
		t.Fatalf("响应应说明数据集未就绪: %s", w.Body.String())
	}
}

func TestAnalysisScopeRejectsMissingDataset(t *testing.T) {
	c, w := newScopeContext(t, "?dataset_id=99")
	datasets := &stubDatasetService{err: gorm.ErrRecordNotFound}

	if _, valid := analysisScope(c, datasets); valid {
		t.Fatalf("不存在的数据集不应通过校验")
	}
	if w.Code != http.StatusNotFound {
		t.Fatalf("应返回 404, got %d", w.Code)
	}
}

func TestAnalysisScopeAcceptsReadyDataset(t *testing.T) {
	c, w := newScopeContext(t, "?dataset_id=7&region=SA")
	datasets := &stubDatasetService{dataset: &model.Dataset{ID: 7, Status: model.DatasetStatusReady}}

	filter, valid := analysisScope(c, datasets)
	if !valid {
		t.Fatalf("就绪数据集应通过校验, body: %s", w.Body.String())
	}
	if filter.DatasetID != 7 || filter.Region != "SA" {
		t.Fatalf("范围参数解析错误: %+v", filter)
	}
}

func TestAnalysisScopeRequiresDatasetID(t *testing.T) {
	c, w := newScopeContext(t, "")
	datasets := &stubDatasetService{}

	if _, valid := analysisScope(c, datasets); valid {
		t.Fatalf("缺少 dataset_id 不应通过校验")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("应返回 400, got %d", w.Code)
	}
}
