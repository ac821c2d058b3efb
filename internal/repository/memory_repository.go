// Package repository 提供了数据访问层的实现。
package repository

import (
	"errors"
	"time"

	"mentor-go/internal/model"

	"gorm.io/gorm"
)

// MemoryRepository 定义了用户记忆文档的持久化操作。
// 更新按字段粒度进行（targeted partial update），计数字段使用
// 数据库侧的原子自增，避免并发场景下的读改写丢失。
type MemoryRepository interface {
	GetByUserID(userID uint) (*model.UserMemory, error)
	// GetOrCreate 在记忆不存在时惰性创建一条默认记录。
	// 并发首次访问时允许 last-writer-wins，不要求去重。
	GetOrCreate(userID uint) (*model.UserMemory, error)
	// UpdateFields 只更新给定的列，并刷新 updated_at。
	UpdateFields(userID uint, fields map[string]interface{}) error
	SaveStruggles(userID uint, struggles []model.Struggle) error
	SaveEvaluationHistory(userID uint, history []model.EvaluationSnapshot) error
	SaveSessionDates(userID uint, dates []time.Time) error
	// IncrementInteractions 原子自增总交互数，返回自增后的值。
	IncrementInteractions(userID uint) (int, error)
	// IncrementSessions 原子自增总会话数。
	IncrementSessions(userID uint) error
	IncrementRegenerations(userID uint) error
}

type memoryRepository struct {
	db *gorm.DB
}

// NewMemoryRepository 创建一个新的 MemoryRepository 实例。
func NewMemoryRepository(db *gorm.DB) MemoryRepository {
	return &memoryRepository{db: db}
}

// GetByUserID 根据用户 ID 查找记忆文档。
func (r *memoryRepository) GetByUserID(userID uint) (*model.UserMemory, error) {
	var mem model.UserMemory
	err := r.db.Where("user_id = ?", userID).First(&mem).Error
	if err != nil {
		return nil, err
	}
	return &mem, nil
}

// GetOrCreate 获取用户记忆，不存在则以类型默认值创建。
func (r *memoryRepository) GetOrCreate(userID uint) (*model.UserMemory, error) {
	mem, err := r.GetByUserID(userID)
	if err == nil {
		return mem, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &model.UserMemory{
		UserID: userID,
		Profile: model.UserProfile{
			Interests:    []string{},
			Goals:        []string{},
			Stage:        "seedling",
			LearningPace: "moderate",
		},
		Struggles:         []model.Struggle{},
		EvaluationHistory: []model.EvaluationSnapshot{},
		SessionDates:      []time.Time{},
	}
	if err := r.db.Create(fresh).Error; err != nil {
		// 并发首次访问可能撞唯一索引，回读即可
		if existing, gerr := r.GetByUserID(userID); gerr == nil {
			return existing, nil
		}
		return nil, err
	}
	return fresh, nil
}

// UpdateFields 只更新给定的列。
func (r *memoryRepository) UpdateFields(userID uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.Model(&model.UserMemory{}).Where("user_id = ?", userID).Updates(fields).Error
}

// SaveStruggles 整体写回 struggles 列。
func (r *memoryRepository) SaveStruggles(userID uint, struggles []model.Struggle) error {
	return r.db.Model(&model.UserMemory{}).Where("user_id = ?", userID).
		Update("struggles", struggles).Error
}

// SaveEvaluationHistory 整体写回评估历史列（调用方负责裁剪上限）。
func (r *memoryRepository) SaveEvaluationHistory(userID uint, history []model.EvaluationSnapshot) error {
	return r.db.Model(&model.UserMemory{}).Where("user_id = ?", userID).
		Update("evaluation_history", history).Error
}

// SaveSessionDates 整体写回会话日期列（调用方负责裁剪上限）。
func (r *memoryRepository) SaveSessionDates(userID uint, dates []time.Time) error {
	return r.db.Model(&model.UserMemory{}).Where("user_id = ?", userID).
		Update("session_dates", dates).Error
}

// IncrementInteractions 原子自增 total_interactions 并返回新值。
func (r *memoryRepository) IncrementInteractions(userID uint) (int, error) {
	err := r.db.Model(&model.UserMemory{}).Where("user_id = ?", userID).
		Update("total_interactions", gorm.Expr("total_interactions + 1")).Error
	if err != nil {
		return 0, err
	}
	var total int
	err = r.db.Model(&model.UserMemory{}).Where("user_id = ?", userID).
		Pluck("total_interactions", &total).Error
	return total, err
}

// IncrementSessions 原子自增 total_sessions。
func (r *memoryRepository) IncrementSessions(userID uint) error {
	return r.db.Model(&model.UserMemory{}).Where("user_id = ?", userID).
		Update("total_sessions", gorm.Expr("total_sessions + 1")).Error
}

// IncrementRegenerations 原子自增路线图重生成计数。
func (r *memoryRepository) IncrementRegenerations(userID uint) error {
	return r.db.Model(&model.UserMemory{}).Where("user_id = ?", userID).
		Update("regeneration_count", gorm.Expr("regeneration_count + 1")).Error
}
