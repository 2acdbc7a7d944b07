// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"

	"layla-insight-go/internal/repository"
	"layla-insight-go/pkg/log"
	"layla-insight-go/pkg/translate"
)

// TranslateService 接口定义了消息翻译操作。
type TranslateService interface {
	// Translate 将文本翻译到目标语言，结果经过 Redis 缓存。
	Translate(ctx context.Context, text, target string) (string, error)
}

type translateService struct {
	client          translate.Client
	translationRepo repository.TranslationRepository
	defaultTarget   string
}

// NewTranslateService 创建一个新的 TranslateService 实例。
func NewTranslateService(client translate.Client, translationRepo repository.TranslationRepository, defaultTarget string) TranslateService {
	if defaultTarget == "" {
		defaultTarget = "en"
	}
	return &translateService{
		client:          client,
		translationRepo: translationRepo,
		defaultTarget:   defaultTarget,
	}
}

func (s *translateService) Translate(ctx context.Context, text, target string) (string, error) {
	if text == "" {
		return "", nil
	}
	if target == "" {
		target = s.defaultTarget
	}

	// 1. 先查缓存
	cached, hit, err := s.translationRepo.Get(ctx, text, target)
	if err != nil {
		// 缓存故障不阻断翻译，降级为直连
		log.Errorf("查询翻译缓存失败: %v", err)
	}
	if hit {
		return cached, nil
	}

	// 2. 未命中则调用翻译服务
	translated, err := s.client.Translate(ctx, text, "auto", target)
	if err != nil {
		return "", fmt.Errorf("调用翻译服务失败: %w", err)
	}

	// 3. 回填缓存，失败只记日志
	if err := s.translationRepo.Set(ctx, text, target, translated); err != nil {
		log.Errorf("写入翻译缓存失败: %v", err)
	}
	return translated, nil
}
