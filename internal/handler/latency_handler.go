// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"fmt"
	"strconv"
	"time"

	"layla-insight-go/internal/config"
	"layla-insight-go/internal/service"
	"layla-insight-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// LatencyHandler 负责延迟面板的各个端点。
type LatencyHandler struct {
	reportService  service.ReportService
	datasetService service.DatasetService
}

// NewLatencyHandler 创建一个新的 LatencyHandler 实例。
func NewLatencyHandler(reportService service.ReportService, datasetService service.DatasetService) *LatencyHandler {
	return &LatencyHandler{reportService: reportService, datasetService: datasetService}
}

// Summary 返回当前范围内的延迟概览（均值、中位数、P95、最快/最慢）。
func (h *LatencyHandler) Summary(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	view, err := h.reportService.Summary(filter)
	if err != nil {
		log.Errorf("Summary: 计算延迟概览失败, error: %v", err)
		serverError(c, "计算延迟概览失败")
		return
	}
	ok(c, "success", view)
}

// SlowReplies 返回慢回复列表，支持阈值、最小延迟、提问文本过滤和行数上限。
func (h *LatencyHandler) SlowReplies(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}

	opts := service.SlowFilterOptions{
		TextFilter: c.Query("search"),
	}
	if v := c.Query("min_latency"); v != "" {
		minLatency, err := strconv.ParseFloat(v, 64)
		if err != nil {
			badRequest(c, "非法的 min_latency")
			return
		}
		opts.MinLatencySeconds = minLatency
	}
	if v := c.Query("above_threshold"); v == "true" {
		opts.OnlyAboveThreshold = true
		opts.ThresholdSeconds = config.Conf.Analysis.DefaultCriticalThresholdSeconds
		if t := c.Query("threshold"); t != "" {
			threshold, err := strconv.ParseFloat(t, 64)
			if err != nil {
				badRequest(c, "非法的 threshold")
				return
			}
			opts.ThresholdSeconds = threshold
		}
	}
	opts.Limit = config.Conf.Analysis.MaxSlowRows
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			badRequest(c, "非法的 limit")
			return
		}
		if limit > 0 && (opts.Limit <= 0 || limit < opts.Limit) {
			opts.Limit = limit
		}
	}

	records, err := h.reportService.SlowReplies(filter, opts)
	if err != nil {
		log.Errorf("SlowReplies: 查询慢回复失败, error: %v", err)
		serverError(c, "查询慢回复失败")
		return
	}
	ok(c, "success", records)
}

// Histogram 返回延迟分布直方图。
func (h *LatencyHandler) Histogram(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	buckets, err := h.reportService.Histogram(filter)
	if err != nil {
		serverError(c, "计算延迟分布失败")
		return
	}
	ok(c, "success", buckets)
}

// DailyTrend 返回按天的延迟均值/中位数趋势。
func (h *LatencyHandler) DailyTrend(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	trend, err := h.reportService.DailyTrend(filter)
	if err != nil {
		serverError(c, "计算延迟趋势失败")
		return
	}
	ok(c, "success", trend)
}

// Correlation 返回会话长度与平均延迟的散点与相关系数。
// exclude_outliers=true 时先做 IQR 剔除。
func (h *LatencyHandler) Correlation(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	excludeOutliers := c.DefaultQuery("exclude_outliers", "true") == "true"

	result, err := h.reportService.Correlation(filter, excludeOutliers)
	if err != nil {
		log.Errorf("Correlation: 计算相关性失败, error: %v", err)
		serverError(c, "计算相关性失败")
		return
	}
	ok(c, "success", result)
}

// ExportCSV 下载逐答延迟明细 CSV。
func (h *LatencyHandler) ExportCSV(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	data, err := h.reportService.ExportCSV(filter)
	if err != nil {
		log.Errorf("ExportCSV: 导出延迟明细失败, error: %v", err)
		serverError(c, "导出延迟明细失败")
		return
	}

	fileName := fmt.Sprintf("latency_%d_%s.csv", filter.DatasetID, time.Now().Format("20060102150405"))
	c.Header("Content-Disposition", "attachment; filename="+fileName)
	c.Data(200, "text/csv", data)
}
