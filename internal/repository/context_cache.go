// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mentor-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// ContextCache 缓存每个会话最近的消息窗口，供上下文聚合器快速读取。
// 缓存未命中时调用方回落到 MySQL；写入时裁剪长度并刷新过期时间。
type ContextCache interface {
	Recent(ctx context.Context, chatID string, n int) ([]model.ChatMessage, error)
	Push(ctx context.Context, chatID string, msg model.ChatMessage, window int) error
	Invalidate(ctx context.Context, chatID string) error
}

type redisContextCache struct {
	redisClient *redis.Client
}

// NewContextCache 创建一个基于 Redis 的 ContextCache 实例。
func NewContextCache(redisClient *redis.Client) ContextCache {
	return &redisContextCache{redisClient: redisClient}
}

const contextCacheTTL = 7 * 24 * time.Hour

func contextKey(chatID string) string {
	return fmt.Sprintf("chat:%s:recent", chatID)
}

// Recent 从 Redis 获取最近窗口内的消息，未命中时返回 nil 切片。
func (c *redisContextCache) Recent(ctx context.Context, chatID string, n int) ([]model.ChatMessage, error) {
	jsonData, err := c.redisClient.Get(ctx, contextKey(chatID)).Result()
	if err == redis.Nil {
		return nil, nil // 未命中，由调用方回源
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recent context: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recent context: %w", err)
	}
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return messages, nil
}

// Push 追加一条消息并裁剪到窗口长度。
func (c *redisContextCache) Push(ctx context.Context, chatID string, msg model.ChatMessage, window int) error {
	key := contextKey(chatID)
	var messages []model.ChatMessage
	if jsonData, err := c.redisClient.Get(ctx, key).Result(); err == nil {
		_ = json.Unmarshal([]byte(jsonData), &messages)
	}
	messages = append(messages, msg)
	if len(messages) > window {
		messages = messages[len(messages)-window:]
	}
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal recent context: %w", err)
	}
	if err := c.redisClient.Set(ctx, key, jsonData, contextCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set recent context: %w", err)
	}
	return nil
}

// Invalidate 删除会话的缓存窗口（会话被删除时调用）。
func (c *redisContextCache) Invalidate(ctx context.Context, chatID string) error {
	return c.redisClient.Del(ctx, contextKey(chatID)).Err()
}
