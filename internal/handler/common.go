// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"layla-insight-go/internal/model"
	"layla-insight-go/internal/repository"
	"layla-insight-go/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// currentUser 从 Gin 上下文取出 AuthMiddleware 放入的用户对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := value.(*model.User)
	return user, ok
}

// scopeFromQuery 解析分析接口共用的范围参数：
// dataset_id（必填）、from/to（"2006-01-02"，可选）、region（可选）。
func scopeFromQuery(c *gin.Context) (repository.EventFilter, error) {
	var filter repository.EventFilter

	datasetID, err := strconv.ParseUint(c.Query("dataset_id"), 10, 32)
	if err != nil || datasetID == 0 {
		return filter, fmt.Errorf("缺少或非法的 dataset_id")
	}
	filter.DatasetID = uint(datasetID)
	filter.Region = c.Query("region")

	if v := c.Query("from"); v != "" {
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, fmt.Errorf("非法的 from 日期: %q", v)
		}
		filter.From = &day
	}
	if v := c.Query("to"); v != "" {
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, fmt.Errorf("非法的 to 日期: %q", v)
		}
		end := day.Add(24*time.Hour - time.Second)
		filter.To = &end
	}
	return filter, nil
}

// ensureDatasetReady 校验数据集已完成导入。未就绪返回 409，
// 不存在返回 404；只有返回 true 时请求才继续。
func ensureDatasetReady(c *gin.Context, datasets service.DatasetService, id uint) bool {
	if _, err := datasets.EnsureReady(id); err != nil {
		switch {
		case errors.Is(err, service.ErrDatasetNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "数据集不存在"})
		default:
			serverError(c, "查询数据集失败")
		}
		return false
	}
	return true
}

// analysisScope 解析分析接口的范围参数并校验数据集已就绪。
// 导入中或失败的数据集只有部分事件落库，不能参与分析。
func analysisScope(c *gin.Context, datasets service.DatasetService) (repository.EventFilter, bool) {
	filter, err := scopeFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return filter, false
	}
	if !ensureDatasetReady(c, datasets, filter.DatasetID) {
		return filter, false
	}
	return filter, true
}

// ok 按统一的响应信封返回成功结果。
func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

// badRequest 返回带错误说明的 400。
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// serverError 返回带错误说明的 500。
func serverError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
