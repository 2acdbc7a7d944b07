// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"strconv"

	"layla-insight-go/internal/service"
	"layla-insight-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AnalyticsHandler 负责分析面板的聚合端点。
type AnalyticsHandler struct {
	analyticsService service.AnalyticsService
	datasetService   service.DatasetService
}

// NewAnalyticsHandler 创建一个新的 AnalyticsHandler 实例。
func NewAnalyticsHandler(analyticsService service.AnalyticsService, datasetService service.DatasetService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService, datasetService: datasetService}
}

// KeyMetrics 返回当前范围内的核心指标。
func (h *AnalyticsHandler) KeyMetrics(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	metrics, err := h.analyticsService.KeyMetrics(filter)
	if err != nil {
		log.Errorf("KeyMetrics: 计算核心指标失败, error: %v", err)
		serverError(c, "计算核心指标失败")
		return
	}
	ok(c, "success", metrics)
}

// DailyConversations 返回按天的新会话数序列。
func (h *AnalyticsHandler) DailyConversations(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	series, err := h.analyticsService.DailyNewConversations(filter)
	if err != nil {
		serverError(c, "计算每日会话序列失败")
		return
	}
	ok(c, "success", series)
}

// DailyMessages 返回按天的消息数序列。
func (h *AnalyticsHandler) DailyMessages(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	series, err := h.analyticsService.DailyMessages(filter)
	if err != nil {
		serverError(c, "计算每日消息序列失败")
		return
	}
	ok(c, "success", series)
}

// RegionDistribution 返回各区域的消息分布。
func (h *AnalyticsHandler) RegionDistribution(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	dist, err := h.analyticsService.RegionDistribution(filter)
	if err != nil {
		serverError(c, "计算区域分布失败")
		return
	}
	ok(c, "success", dist)
}

// LongestConversations 返回消息数最多的会话排行。
func (h *AnalyticsHandler) LongestConversations(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	top, _ := strconv.Atoi(c.DefaultQuery("top", "10"))
	result, err := h.analyticsService.LongestConversations(filter, top)
	if err != nil {
		serverError(c, "计算最长会话排行失败")
		return
	}
	ok(c, "success", result)
}
