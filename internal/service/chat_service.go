package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentor-go/internal/config"
	"mentor-go/internal/model"
	"mentor-go/internal/repository"
	"mentor-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("chat session not found")

// ChatService 管理会话与消息的持久化，并维护 Redis 的最近消息窗口。
type ChatService interface {
	// GetOrCreateSession 返回 chatID 指定的会话；chatID 为空时
	// 优先复用最近活跃会话，没有则新建。
	GetOrCreateSession(userID uint, chatID string) (*model.ChatSession, error)
	ListSessions(userID uint, limit, offset int) ([]model.ChatSession, error)
	GetSession(userID uint, chatID string) (*model.ChatSession, error)
	DeleteSession(ctx context.Context, userID uint, chatID string) error
	UpdateTitle(userID uint, chatID, title string) error

	// AppendMessage 持久化一条消息，刷新会话元数据并写入缓存窗口。
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
	ListMessages(userID uint, chatID string, limit int, before *time.Time) ([]model.ChatMessage, error)
}

type chatService struct {
	chatRepo repository.ChatRepository
	cache    repository.ContextCache
}

// NewChatService 创建一个 ChatService 实例。
func NewChatService(chatRepo repository.ChatRepository, cache repository.ContextCache) ChatService {
	return &chatService{chatRepo: chatRepo, cache: cache}
}

func (s *chatService) GetOrCreateSession(userID uint, chatID string) (*model.ChatSession, error) {
	if chatID != "" {
		session, err := s.chatRepo.GetSession(chatID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, err
		}
		if session.UserID != userID {
			return nil, ErrSessionNotFound
		}
		return session, nil
	}

	session, err := s.chatRepo.GetActiveSession(userID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	session = &model.ChatSession{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    "New conversation",
		IsActive: true,
	}
	if err := s.chatRepo.CreateSession(session); err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	return session, nil
}

func (s *chatService) ListSessions(userID uint, limit, offset int) ([]model.ChatSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.chatRepo.ListSessions(userID, limit, offset)
}

func (s *chatService) GetSession(userID uint, chatID string) (*model.ChatSession, error) {
	session, err := s.chatRepo.GetSession(chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *chatService) DeleteSession(ctx context.Context, userID uint, chatID string) error {
	if err := s.chatRepo.DeleteSession(chatID, userID); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, chatID); err != nil {
		log.Warnf("清理会话缓存失败: chat_id=%s, error: %v", chatID, err)
	}
	return nil
}

func (s *chatService) UpdateTitle(userID uint, chatID, title string) error {
	if _, err := s.GetSession(userID, chatID); err != nil {
		return err
	}
	return s.chatRepo.UpdateTitle(chatID, title)
}

func (s *chatService) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if err := s.chatRepo.CreateMessage(msg); err != nil {
		return fmt.Errorf("持久化消息失败: %w", err)
	}
	if err := s.chatRepo.TouchSession(msg.ChatID, preview(msg.Content)); err != nil {
		log.Warnf("刷新会话元数据失败: chat_id=%s, error: %v", msg.ChatID, err)
	}
	window := config.Conf.Agent.ContextWindow
	if err := s.cache.Push(ctx, msg.ChatID, *msg, window); err != nil {
		log.Warnf("写入上下文缓存失败: chat_id=%s, error: %v", msg.ChatID, err)
	}
	return nil
}

func (s *chatService) ListMessages(userID uint, chatID string, limit int, before *time.Time) ([]model.ChatMessage, error) {
	if _, err := s.GetSession(userID, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.chatRepo.ListMessages(chatID, limit, before)
}

// preview 截取消息内容作为会话列表里的预览。
func preview(content string) string {
	runes := []rune(content)
	if len(runes) > 120 {
		return string(runes[:120]) + "..."
	}
	return content
}
