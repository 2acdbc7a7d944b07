// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"layla-insight-go/internal/service"
	"layla-insight-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ExplorerHandler 负责会话浏览器的端点。
type ExplorerHandler struct {
	explorerService service.ExplorerService
	datasetService  service.DatasetService
}

// NewExplorerHandler 创建一个新的 ExplorerHandler 实例。
func NewExplorerHandler(explorerService service.ExplorerService, datasetService service.DatasetService) *ExplorerHandler {
	return &ExplorerHandler{explorerService: explorerService, datasetService: datasetService}
}

// Threads 返回当前范围内的会话列表。
// 额外支持 time 子串过滤与 search 全文子串过滤。
func (h *ExplorerHandler) Threads(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	extra := service.ExplorerFilter{
		TimeSubstring: c.Query("time"),
		SearchText:    c.Query("search"),
	}
	threads, err := h.explorerService.ListThreads(filter, extra)
	if err != nil {
		log.Errorf("Threads: 查询会话列表失败, error: %v", err)
		serverError(c, "查询会话列表失败")
		return
	}
	ok(c, "success", threads)
}

// Messages 返回单个会话的完整消息序列。
func (h *ExplorerHandler) Messages(c *gin.Context) {
	filter, valid := analysisScope(c, h.datasetService)
	if !valid {
		return
	}
	filter.ThreadID = c.Param("threadId")
	if filter.ThreadID == "" {
		badRequest(c, "缺少会话 ID")
		return
	}
	messages, err := h.explorerService.ThreadMessages(filter)
	if err != nil {
		log.Errorf("Messages: 查询会话消息失败, thread: %s, error: %v", filter.ThreadID, err)
		serverError(c, "查询会话消息失败")
		return
	}
	ok(c, "success", messages)
}
