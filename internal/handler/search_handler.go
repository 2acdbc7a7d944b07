// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"fmt"
	"strconv"
	"time"

	"layla-insight-go/internal/service"
	"layla-insight-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 负责关键词检索的端点。
type SearchHandler struct {
	searchService  service.SearchService
	datasetService service.DatasetService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, datasetService service.DatasetService) *SearchHandler {
	return &SearchHandler{searchService: searchService, datasetService: datasetService}
}

func searchRequestFromQuery(c *gin.Context) (service.SearchRequest, error) {
	var req service.SearchRequest
	datasetID, err := strconv.ParseUint(c.Query("dataset_id"), 10, 32)
	if err != nil || datasetID == 0 {
		return req, fmt.Errorf("缺少或非法的 dataset_id")
	}
	req.DatasetID = uint(datasetID)
	req.Keyword = c.Query("q")
	req.CaseSensitive = c.Query("case_sensitive") == "true"
	req.Role = c.Query("role")
	req.Region = c.Query("region")
	req.FromDate = c.Query("from")
	req.ToDate = c.Query("to")
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return req, fmt.Errorf("非法的 limit")
		}
		req.Limit = limit
	}
	return req, nil
}

// Search 执行关键词检索，返回命中、汇总、词频与时间线。
func (h *SearchHandler) Search(c *gin.Context) {
	req, err := searchRequestFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if !ensureDatasetReady(c, h.datasetService, req.DatasetID) {
		return
	}
	result, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		log.Errorf("Search: 检索失败, keyword: %s, error: %v", req.Keyword, err)
		serverError(c, "检索失败")
		return
	}
	ok(c, "success", result)
}

// ExportCSV 下载检索结果 CSV。
func (h *SearchHandler) ExportCSV(c *gin.Context) {
	req, err := searchRequestFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if !ensureDatasetReady(c, h.datasetService, req.DatasetID) {
		return
	}
	data, err := h.searchService.ExportCSV(c.Request.Context(), req)
	if err != nil {
		log.Errorf("ExportCSV: 导出检索结果失败, error: %v", err)
		serverError(c, "导出检索结果失败")
		return
	}

	fileName := fmt.Sprintf("search_%d_%s.csv", req.DatasetID, time.Now().Format("20060102150405"))
	c.Header("Content-Disposition", "attachment; filename="+fileName)
	c.Data(200, "text/csv", data)
}
