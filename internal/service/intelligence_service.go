// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"layla-insight-go/internal/model"
	"layla-insight-go/internal/repository"
	"layla-insight-go/pkg/llm"
	"layla-insight-go/pkg/log"

	"github.com/gorilla/websocket"
)

// IntelligenceService 定义了数据问答（自然语言问数据集）的操作接口。
type IntelligenceService interface {
	StreamResponse(ctx context.Context, datasetID uint, query string, user *model.User, ws *websocket.Conn, shouldStop func() bool) error
	ResetConversation(ctx context.Context, userID, datasetID uint) error
}

type intelligenceService struct {
	eventRepo        repository.EventRepository
	engine           LatencyService
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
}

// NewIntelligenceService 创建一个新的 IntelligenceService 实例。
func NewIntelligenceService(eventRepo repository.EventRepository, engine LatencyService, llmClient llm.Client, conversationRepo repository.ConversationRepository) IntelligenceService {
	return &intelligenceService{
		eventRepo:        eventRepo,
		engine:           engine,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
	}
}

// StreamResponse 把数据集概况注入 system 消息，携带历史调用 LLM 并流式回传。
func (s *intelligenceService) StreamResponse(ctx context.Context, datasetID uint, query string, user *model.User, ws *websocket.Conn, shouldStop func() bool) error {
	// 1. 计算数据集概况作为上下文
	profile, err := s.buildDatasetProfile(datasetID)
	if err != nil {
		return fmt.Errorf("failed to build dataset profile: %w", err)
	}
	systemMsg := s.buildSystemMessage(profile)

	// 2. 加载对话历史
	history, err := s.loadHistory(ctx, user.ID, datasetID)
	if err != nil {
		log.Errorf("Failed to load conversation history: %v", err)
		history = []model.ChatMessage{}
	}
	messages := composeMessages(systemMsg, history, query)

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	// 3. 调用 LLM 客户端以流式传输响应
	var llmMsgs []llm.Message
	for _, m := range messages {
		llmMsgs = append(llmMsgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	if err := s.llmClient.StreamChatMessages(ctx, llmMsgs, nil, interceptor); err != nil {
		return err
	}

	// 4. 发送完成通知，并将对话保存到 Redis
	sendCompletion(ws)
	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 使用后台上下文，因为即使原始请求被取消，我们也希望保存成功生成的答案
		if err := s.addMessageToConversation(context.Background(), user.ID, datasetID, query, fullAnswer); err != nil {
			// 只记录错误，不返回给客户端，因为流式响应已经成功
			log.Errorf("Failed to save conversation history: %v", err)
		}
	}

	return nil
}

// buildDatasetProfile 汇总核心指标和少量样本行，作为 LLM 的数据集画像。
func (s *intelligenceService) buildDatasetProfile(datasetID uint) (string, error) {
	events, err := s.eventRepo.FetchSnapshot(repository.EventFilter{DatasetID: datasetID})
	if err != nil {
		return "", err
	}
	metrics := computeKeyMetrics(events)
	records := s.engine.ComputeLatencies(events)
	summary := s.engine.SummaryStatistics(records)

	var b strings.Builder
	fmt.Fprintf(&b, "会话数: %d, 消息总数: %d (用户 %d / 助手 %d)\n",
		metrics.TotalConversations, metrics.TotalMessages, metrics.UserMessages, metrics.AssistantMessages)
	fmt.Fprintf(&b, "阿拉伯语消息: %d, 平均会话长度: %.1f 条\n",
		metrics.ArabicMessages, metrics.AvgConversationLen)
	if summary != nil {
		fmt.Fprintf(&b, "回复延迟: 均值 %.1fs, 中位数 %.1fs, P95 %.1fs（%d 对问答）\n",
			summary.Mean, summary.Median, summary.P95, summary.Count)
	} else {
		b.WriteString("回复延迟: 无可配对的问答\n")
	}

	// 取前几行做样本，让模型了解数据的长相
	const sampleRows = 5
	b.WriteString("样本消息:\n")
	for i, e := range events {
		if i >= sampleRows {
			break
		}
		stamp := "-"
		if e.HasTimestamp() {
			stamp = model.LocalTime(*e.Timestamp).String()
		}
		msg := e.Message
		if len([]rune(msg)) > 100 {
			msg = string([]rune(msg)[:100]) + "…"
		}
		fmt.Fprintf(&b, "[%s] %s (%s): %s\n", e.ThreadID, e.Role, stamp, msg)
	}
	return b.String(), nil
}

func (s *intelligenceService) buildSystemMessage(profile string) string {
	var sys strings.Builder
	sys.WriteString("你是会话数据分析助手。仅基于下面提供的数据集概况回答用户关于该数据集的问题，")
	sys.WriteString("数据之外的问题请说明无法回答。\n\n<<DATASET>>\n")
	sys.WriteString(profile)
	sys.WriteString("<<END>>")
	return sys.String()
}

func (s *intelligenceService) loadHistory(ctx context.Context, userID, datasetID uint) ([]model.ChatMessage, error) {
	convID, err := s.conversationRepo.GetOrCreateConversationID(ctx, userID, datasetID)
	if err != nil {
		return nil, err
	}
	return s.conversationRepo.GetConversationHistory(ctx, convID)
}

func composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, model.ChatMessage{Role: "system", Content: systemMsg})
	msgs = append(msgs, history...)
	msgs = append(msgs, model.ChatMessage{Role: "user", Content: userInput})
	return msgs
}

// addMessageToConversation 是一个用于管理 Redis 中对话历史的辅助函数。
func (s *intelligenceService) addMessageToConversation(ctx context.Context, userID, datasetID uint, question, answer string) error {
	conversationID, err := s.conversationRepo.GetOrCreateConversationID(ctx, userID, datasetID)
	if err != nil {
		return fmt.Errorf("failed to get or create conversation ID: %w", err)
	}

	history, err := s.conversationRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation history: %w", err)
	}

	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: time.Now()},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: time.Now()},
	)
	return s.conversationRepo.UpdateConversationHistory(ctx, conversationID, history)
}

func (s *intelligenceService) ResetConversation(ctx context.Context, userID, datasetID uint) error {
	return s.conversationRepo.ResetConversation(ctx, userID, datasetID)
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
