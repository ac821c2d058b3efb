package service

import (
	"context"
	"fmt"
	"strings"

	"mentor-go/internal/model"
	"mentor-go/internal/repository"
	"mentor-go/pkg/log"
)

// ContextService 在每轮交互前把用户记忆和最近对话聚合为一个不可变快照。
// excludeMessageID 用于剔除刚入库的本轮消息，窗口里只保留历史对话。
type ContextService interface {
	BuildContext(ctx context.Context, userID uint, chatID string, window int, excludeMessageID string) (model.Context, error)
}

type contextService struct {
	memoryRepo repository.MemoryRepository
	chatRepo   repository.ChatRepository
	cache      repository.ContextCache
}

// NewContextService 创建一个 ContextService 实例。
func NewContextService(memoryRepo repository.MemoryRepository, chatRepo repository.ChatRepository, cache repository.ContextCache) ContextService {
	return &contextService{memoryRepo: memoryRepo, chatRepo: chatRepo, cache: cache}
}

// BuildContext 聚合用户画像、困难记录、最近评估与滑动窗口内的对话。
// 最近消息优先读 Redis 缓存，未命中回源 MySQL。
func (s *contextService) BuildContext(ctx context.Context, userID uint, chatID string, window int, excludeMessageID string) (model.Context, error) {
	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return model.Context{}, fmt.Errorf("加载用户记忆失败: %w", err)
	}

	var messages []model.ChatMessage
	if chatID != "" {
		fetch := window
		if excludeMessageID != "" {
			fetch++
		}
		messages, err = s.cache.Recent(ctx, chatID, fetch)
		if err != nil {
			log.Warnf("读取上下文缓存失败，回源数据库: %v", err)
		}
		if len(messages) == 0 {
			messages, err = s.chatRepo.RecentMessages(chatID, fetch)
			if err != nil {
				return model.Context{}, fmt.Errorf("加载最近消息失败: %w", err)
			}
		}
		messages = dropMessage(messages, excludeMessageID)
		if window > 0 && len(messages) > window {
			messages = messages[len(messages)-window:]
		}
	}

	return model.Context{
		Profile:        memory.Profile,
		Onboarding:     memory.Onboarding,
		Struggles:      memory.Struggles,
		ContextSummary: memory.ContextSummary,
		RecentChat:     formatRecentChat(messages),
		LatestEval:     memory.LatestEvaluation(),
		TotalSessions:  memory.TotalSessions,
	}, nil
}

func dropMessage(messages []model.ChatMessage, id string) []model.ChatMessage {
	if id == "" {
		return messages
	}
	kept := messages[:0]
	for _, m := range messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	return kept
}

// formatRecentChat 把消息窗口格式化为提示词用的对话文本。
func formatRecentChat(messages []model.ChatMessage) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range messages {
		speaker := "Student"
		if m.Sender == model.SenderMentor {
			speaker = "Mentor"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
