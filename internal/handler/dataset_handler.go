// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"layla-insight-go/internal/service"
	"layla-insight-go/pkg/log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DatasetHandler 负责处理数据集上传与管理的 API 请求。
type DatasetHandler struct {
	datasetService service.DatasetService
}

// NewDatasetHandler 创建一个新的 DatasetHandler 实例。
func NewDatasetHandler(datasetService service.DatasetService) *DatasetHandler {
	return &DatasetHandler{datasetService: datasetService}
}

// Upload 接收 multipart 上传的 CSV 文件并登记导入任务。
func (h *DatasetHandler) Upload(c *gin.Context) {
	user, exists := currentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未登录"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少上传文件字段 'file'")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		serverError(c, "读取上传文件失败")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		serverError(c, "读取上传文件失败")
		return
	}

	dataset, existed, err := h.datasetService.Upload(c.Request.Context(), fileHeader.Filename, data, user.ID)
	if err != nil {
		log.Errorf("Upload: 数据集上传失败, file: %s, error: %v", fileHeader.Filename, err)
		serverError(c, err.Error())
		return
	}

	message := "上传成功，后台导入中"
	if existed {
		message = "相同内容的数据集已存在"
	}
	ok(c, message, dataset)
}

// List 返回当前用户可见的数据集列表，管理员看到全部。
func (h *DatasetHandler) List(c *gin.Context) {
	user, exists := currentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未登录"})
		return
	}
	datasets, err := h.datasetService.List(user.ID, user.Role == "ADMIN")
	if err != nil {
		log.Errorf("List: 查询数据集列表失败, error: %v", err)
		serverError(c, "查询数据集列表失败")
		return
	}
	ok(c, "success", datasets)
}

func (h *DatasetHandler) datasetID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "非法的数据集 ID")
		return 0, false
	}
	return uint(id), true
}

// Get 返回单个数据集的元数据与导入状态。
func (h *DatasetHandler) Get(c *gin.Context) {
	id, valid := h.datasetID(c)
	if !valid {
		return
	}
	dataset, err := h.datasetService.Get(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "数据集不存在"})
			return
		}
		serverError(c, "查询数据集失败")
		return
	}
	ok(c, "success", dataset)
}

// Progress 返回导入进度：状态加上事件表的实时行数与会话数。
// 前端在上传后轮询此接口直到数据集就绪。
func (h *DatasetHandler) Progress(c *gin.Context) {
	id, valid := h.datasetID(c)
	if !valid {
		return
	}
	progress, err := h.datasetService.ImportProgress(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "数据集不存在"})
			return
		}
		serverError(c, "查询导入进度失败")
		return
	}
	ok(c, "success", progress)
}

// Download 签发原始 CSV 的临时下载链接。
func (h *DatasetHandler) Download(c *gin.Context) {
	id, valid := h.datasetID(c)
	if !valid {
		return
	}
	url, err := h.datasetService.DownloadURL(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "数据集不存在"})
			return
		}
		log.Errorf("Download: 签发下载链接失败, id: %d, error: %v", id, err)
		serverError(c, "签发下载链接失败")
		return
	}
	ok(c, "success", gin.H{"url": url})
}

// Regions 返回数据集中出现过的区域，供前端过滤器使用。
func (h *DatasetHandler) Regions(c *gin.Context) {
	id, valid := h.datasetID(c)
	if !valid {
		return
	}
	regions, err := h.datasetService.Regions(id)
	if err != nil {
		serverError(c, "查询区域列表失败")
		return
	}
	ok(c, "success", regions)
}

// Delete 删除数据集及其全部衍生数据，仅管理员可用。
func (h *DatasetHandler) Delete(c *gin.Context) {
	id, valid := h.datasetID(c)
	if !valid {
		return
	}
	if err := h.datasetService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "数据集不存在"})
			return
		}
		log.Errorf("Delete: 删除数据集失败, id: %d, error: %v", id, err)
		serverError(c, "删除数据集失败")
		return
	}
	ok(c, "删除成功", nil)
}
