package repository

import (
	"errors"
	"fmt"

	"mentor-go/internal/model"

	"gorm.io/gorm"
)

var ErrRoadmapNotFound = errors.New("roadmap not found")

// RoadmapRepository 定义了学习路线图的数据访问接口。
type RoadmapRepository interface {
	Create(roadmap *model.Roadmap) error
	GetByID(id string, userID uint) (*model.Roadmap, error)
	GetActive(userID uint) (*model.Roadmap, error)
	ListArchived(userID uint) ([]model.Roadmap, error)
	ArchiveAllActive(userID uint) error
	UpdateStages(roadmap *model.Roadmap) error
	CreateFeedback(feedback *model.RoadmapFeedback) error
	ListFeedback(roadmapID string) ([]model.RoadmapFeedback, error)
}

type roadmapRepository struct {
	db *gorm.DB
}

// NewRoadmapRepository 创建一个 RoadmapRepository 实例。
func NewRoadmapRepository(db *gorm.DB) RoadmapRepository {
	return &roadmapRepository{db: db}
}

func (r *roadmapRepository) Create(roadmap *model.Roadmap) error {
	if err := r.db.Create(roadmap).Error; err != nil {
		return fmt.Errorf("failed to create roadmap: %w", err)
	}
	return nil
}

// GetByID 按 ID 查询路线图，同时校验属主。
func (r *roadmapRepository) GetByID(id string, userID uint) (*model.Roadmap, error) {
	var roadmap model.Roadmap
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&roadmap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoadmapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get roadmap: %w", err)
	}
	return &roadmap, nil
}

// GetActive 返回用户当前激活的路线图，没有则返回 ErrRoadmapNotFound。
func (r *roadmapRepository) GetActive(userID uint) (*model.Roadmap, error) {
	var roadmap model.Roadmap
	err := r.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("version DESC").
		First(&roadmap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoadmapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active roadmap: %w", err)
	}
	return &roadmap, nil
}

func (r *roadmapRepository) ListArchived(userID uint) ([]model.Roadmap, error) {
	var roadmaps []model.Roadmap
	err := r.db.Where("user_id = ? AND is_active = ?", userID, false).
		Order("version DESC").
		Find(&roadmaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list archived roadmaps: %w", err)
	}
	return roadmaps, nil
}

// ArchiveAllActive 将用户所有激活的路线图归档。新版本生成前调用。
func (r *roadmapRepository) ArchiveAllActive(userID uint) error {
	err := r.db.Model(&model.Roadmap{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]interface{}{
			"is_active":   false,
			"archived_at": gorm.Expr("NOW()"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to archive roadmaps: %w", err)
	}
	return nil
}

// UpdateStages 写回阶段结构及步骤计数，不触碰版本与归档字段。
func (r *roadmapRepository) UpdateStages(roadmap *model.Roadmap) error {
	err := r.db.Model(&model.Roadmap{}).
		Where("id = ?", roadmap.ID).
		Updates(map[string]interface{}{
			"stages":          roadmap.Stages,
			"total_steps":     roadmap.TotalSteps,
			"completed_steps": roadmap.CompletedSteps,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update roadmap stages: %w", err)
	}
	return nil
}

func (r *roadmapRepository) CreateFeedback(feedback *model.RoadmapFeedback) error {
	if err := r.db.Create(feedback).Error; err != nil {
		return fmt.Errorf("failed to create roadmap feedback: %w", err)
	}
	return nil
}

func (r *roadmapRepository) ListFeedback(roadmapID string) ([]model.RoadmapFeedback, error) {
	var feedbacks []model.RoadmapFeedback
	err := r.db.Where("roadmap_id = ?", roadmapID).
		Order("created_at ASC").
		Find(&feedbacks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list roadmap feedback: %w", err)
	}
	return feedbacks, nil
}
