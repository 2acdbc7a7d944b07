// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// TranslationRepository 定义了翻译结果缓存的操作接口。
// 同一条消息的翻译结果是确定的，缓存避免对翻译服务的重复调用。
type TranslationRepository interface {
	Get(ctx context.Context, text, target string) (string, bool, error)
	Set(ctx context.Context, text, target, translated string) error
}

type redisTranslationRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewTranslationRepository 创建一个新的 TranslationRepository 实例。
// cacheTTLHours 不合法时回退到 7 天。
func NewTranslationRepository(redisClient *redis.Client, cacheTTLHours int) TranslationRepository {
	ttl := time.Duration(cacheTTLHours) * time.Hour
	if cacheTTLHours <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &redisTranslationRepository{redisClient: redisClient, ttl: ttl}
}

// cacheKey 以文本内容的 MD5 做键，避免长消息直接进键空间。
func cacheKey(text, target string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("translation:%s:%s", target, hex.EncodeToString(sum[:]))
}

// Get 查询缓存的翻译结果，第二个返回值表示是否命中。
func (r *redisTranslationRepository) Get(ctx context.Context, text, target string) (string, bool, error) {
	translated, err := r.redisClient.Get(ctx, cacheKey(text, target)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cached translation: %w", err)
	}
	return translated, true, nil
}

// Set 写入翻译结果缓存。
func (r *redisTranslationRepository) Set(ctx context.Context, text, target, translated string) error {
	err := r.redisClient.Set(ctx, cacheKey(text, target), translated, r.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to cache translation: %w", err)
	}
	return nil
}
