// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"layla-insight-go/internal/service"
	"layla-insight-go/pkg/log"
	"layla-insight-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// IntelligenceHandler 负责处理数据问答的 WebSocket 连接。
type IntelligenceHandler struct {
	intelligenceService service.IntelligenceService
	userService         service.UserService
	jwtManager          *token.JWTManager
	stopToken           string
	stopTokenLock       sync.Mutex
	// 每连接停止标志
	stopFlags sync.Map // key: session pointer string, value: bool
}

// NewIntelligenceHandler 创建一个新的 IntelligenceHandler。
func NewIntelligenceHandler(intelligenceService service.IntelligenceService, userService service.UserService, jwtManager *token.JWTManager) *IntelligenceHandler {
	return &IntelligenceHandler{
		intelligenceService: intelligenceService,
		userService:         userService,
		jwtManager:          jwtManager,
	}
}

// GetStopToken 返回一个可用于停止流的令牌。
func (h *IntelligenceHandler) GetStopToken(c *gin.Context) {
	h.stopTokenLock.Lock()
	defer h.stopTokenLock.Unlock()
	// 在真实的多服务器设置中，这应该在 Redis 中生成和存储
	h.stopToken = "WSS_STOP_CMD_" + token.GenerateRandomString(16)
	ok(c, "success", gin.H{"cmdToken": h.stopToken})
}

// ResetConversation 丢弃当前对话上下文。
func (h *IntelligenceHandler) ResetConversation(c *gin.Context) {
	user, exists := currentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未登录"})
		return
	}
	datasetID, err := strconv.ParseUint(c.Query("dataset_id"), 10, 32)
	if err != nil || datasetID == 0 {
		badRequest(c, "缺少或非法的 dataset_id")
		return
	}
	if err := h.intelligenceService.ResetConversation(c.Request.Context(), user.ID, uint(datasetID)); err != nil {
		serverError(c, "重置对话失败")
		return
	}
	ok(c, "对话已重置", nil)
}

// Handle 处理一个传入的 WebSocket 连接。
// 路径携带 token 和 datasetId；每条文本消息是一个针对该数据集的问题。
func (h *IntelligenceHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}
	datasetID, err := strconv.ParseUint(c.Param("datasetId"), 10, 32)
	if err != nil || datasetID == 0 {
		badRequest(c, "非法的数据集 ID")
		return
	}

	// 获取用户模型
	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s, 数据集: %d", claims.Username, datasetID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}
		log.Infof("收到 WebSocket 消息: %s", string(message))

		// JSON 停止指令: {"type":"stop","_internal_cmd_token":"..."}
		if h.handleStopCommand(conn, message) {
			continue
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(sessionKey(conn))
			return ok && v.(bool)
		}
		// 清除旧标志
		h.stopFlags.Delete(sessionKey(conn))

		err = h.intelligenceService.StreamResponse(c.Request.Context(), uint(datasetID), string(message), user, conn, shouldStop)
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			errResp := map[string]string{"error": "AI服务暂时不可用，请稍后重试"}
			b, _ := json.Marshal(errResp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			break
		}
	}
}

// handleStopCommand 识别并处理停止指令，返回 true 表示该消息已被消费。
func (h *IntelligenceHandler) handleStopCommand(conn *websocket.Conn, message []byte) bool {
	if len(message) == 0 || message[0] != '{' {
		return false
	}
	var ctrl map[string]interface{}
	if err := json.Unmarshal(message, &ctrl); err != nil {
		return false
	}
	if t, ok := ctrl["type"].(string); !ok || t != "stop" {
		return false
	}
	tok, ok := ctrl["_internal_cmd_token"].(string)
	if !ok {
		return false
	}

	h.stopTokenLock.Lock()
	valid := tok == h.stopToken
	h.stopTokenLock.Unlock()
	if !valid {
		return false
	}

	h.stopFlags.Store(sessionKey(conn), true)
	resp := map[string]interface{}{
		"type":      "stop",
		"message":   "响应已停止",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(resp)
	_ = conn.WriteMessage(websocket.TextMessage, b)
	return true
}

func sessionKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
