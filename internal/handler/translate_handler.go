// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"layla-insight-go/internal/service"
	"layla-insight-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// TranslateHandler 负责消息翻译端点。
type TranslateHandler struct {
	translateService service.TranslateService
}

// NewTranslateHandler 创建一个新的 TranslateHandler 实例。
func NewTranslateHandler(translateService service.TranslateService) *TranslateHandler {
	return &TranslateHandler{translateService: translateService}
}

// TranslateRequest 是翻译接口的请求体。
type TranslateRequest struct {
	Text   string `json:"text" binding:"required"`
	Target string `json:"target"`
}

// Translate 翻译一条消息文本，结果带缓存。
func (h *TranslateHandler) Translate(c *gin.Context) {
	var req TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：text 不能为空")
		return
	}

	translated, err := h.translateService.Translate(c.Request.Context(), req.Text, req.Target)
	if err != nil {
		log.Errorf("Translate: 翻译失败, error: %v", err)
		serverError(c, "翻译失败")
		return
	}
	ok(c, "success", gin.H{"translated": translated})
}
