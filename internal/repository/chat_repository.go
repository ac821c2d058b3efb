// Package repository 提供了数据访问层的实现。
package repository

import (
	"time"

	"mentor-go/internal/model"

	"gorm.io/gorm"
)

// ChatRepository 定义了聊天会话与消息的持久化操作。
type ChatRepository interface {
	CreateSession(session *model.ChatSession) error
	GetSession(chatID string) (*model.ChatSession, error)
	// GetActiveSession 返回用户最近活跃的会话（updated_at 倒序，is_active=true）。
	// 不存在时返回 gorm.ErrRecordNotFound。
	GetActiveSession(userID uint) (*model.ChatSession, error)
	ListSessions(userID uint, limit, offset int) ([]model.ChatSession, error)
	UpdateTitle(chatID, title string) error
	// TouchSession 递增消息计数并刷新预览与 updated_at。
	TouchSession(chatID, preview string) error
	// DeleteSession 校验归属后删除会话及其全部消息。
	DeleteSession(chatID string, userID uint) error

	CreateMessage(msg *model.ChatMessage) error
	// ListMessages 按时间倒序分页（before 为游标），返回结果按时间正序。
	ListMessages(chatID string, limit int, before *time.Time) ([]model.ChatMessage, error)
	// RecentMessages 返回最近 n 条消息，按时间正序。
	RecentMessages(chatID string, n int) ([]model.ChatMessage, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(session *model.ChatSession) error {
	return r.db.Create(session).Error
}

func (r *chatRepository) GetSession(chatID string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("id = ?", chatID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetActiveSession 查询最近活跃会话，依赖查询模式保证"单活跃"约定。
func (r *chatRepository) GetActiveSession(userID uint) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC").First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions 按最近更新时间倒序分页列出用户的会话。
func (r *chatRepository) ListSessions(userID uint, limit, offset int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").Offset(offset).Limit(limit).Find(&sessions).Error
	return sessions, err
}

func (r *chatRepository) UpdateTitle(chatID, title string) error {
	return r.db.Model(&model.ChatSession{}).Where("id = ?", chatID).
		Update("title", title).Error
}

// TouchSession 原子递增消息计数并更新预览。
func (r *chatRepository) TouchSession(chatID, preview string) error {
	return r.db.Model(&model.ChatSession{}).Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"message_count":        gorm.Expr("message_count + 1"),
			"last_message_preview": preview,
			"updated_at":           time.Now(),
		}).Error
}

// DeleteSession 校验归属后删除会话与消息。
func (r *chatRepository) DeleteSession(chatID string, userID uint) error {
	var session model.ChatSession
	if err := r.db.Where("id = ? AND user_id = ?", chatID, userID).First(&session).Error; err != nil {
		return err
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&session).Error
	})
}

func (r *chatRepository) CreateMessage(msg *model.ChatMessage) error {
	return r.db.Create(msg).Error
}

// ListMessages 游标分页，最终按时间正序返回。
func (r *chatRepository) ListMessages(chatID string, limit int, before *time.Time) ([]model.ChatMessage, error) {
	q := r.db.Where("chat_id = ?", chatID)
	if before != nil {
		q = q.Where("timestamp < ?", *before)
	}
	var messages []model.ChatMessage
	err := q.Order("timestamp DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// RecentMessages 返回滑动窗口内的最近消息，按时间正序。
func (r *chatRepository) RecentMessages(chatID string, n int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.Where("chat_id = ?", chatID).
		Order("timestamp DESC").Limit(n).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

func reverseMessages(msgs []model.ChatMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
