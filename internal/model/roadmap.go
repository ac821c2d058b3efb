// Package model 包含了应用的数据模型定义。
package model

import "time"

// 步骤状态机：pending -> active/in_progress -> completed（终态）。
// stuck/needs_help/not_clear/flagged 由反馈显式进入，非终态，
// 之后仍可直接转到 completed。状态从不自动回退。
const (
	StepPending    = "pending"
	StepActive     = "active"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepStuck      = "stuck"
	StepNeedsHelp  = "needs_help"
	StepNotClear   = "not_clear"
	StepFlagged    = "flagged"
)

// 步骤类型
const (
	StepTypeLearn     = "learn"
	StepTypePractice  = "practice"
	StepTypeBuild     = "build"
	StepTypeReflect   = "reflect"
	StepTypeMilestone = "milestone"
)

// StepFeedback 是附在步骤上的一条用户反馈，只追加不删除。
type StepFeedback struct {
	FeedbackType string    `json:"feedback_type"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RoadmapStep 是路线图阶段中的单个步骤。
type RoadmapStep struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Status       string            `json:"status"`
	StepType     string            `json:"step_type"`
	Resources    []string          `json:"resources,omitempty"`
	UIHints      map[string]string `json:"ui_hints,omitempty"`
	UserFeedback []StepFeedback    `json:"user_feedback"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// RoadmapStage 是包含若干步骤的阶段，保持嵌套结构，不做扁平化。
type RoadmapStage struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	Order       int               `json:"order"`
	Steps       []RoadmapStep     `json:"steps"`
	UIHints     map[string]string `json:"ui_hints,omitempty"`
}

// Roadmap 对应于数据库中的 'roadmaps' 表。
// 版本链通过 previous_version_id 形成单向链表；每个用户同时只有
// 一个 is_active=true 的路线图是查询约定。
type Roadmap struct {
	ID     string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID uint   `gorm:"index;not null" json:"userId"`
	Title  string `gorm:"type:varchar(255)" json:"title"`
	Goal   string `gorm:"type:varchar(512)" json:"goal"`

	Stages []RoadmapStage `gorm:"serializer:json;type:json" json:"stages"`

	Version           int    `gorm:"default:1" json:"version"`
	PreviousVersionID string `gorm:"type:varchar(36)" json:"previousVersionId,omitempty"`

	IsActive   bool       `gorm:"default:true;index" json:"isActive"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`

	TotalSteps     int `gorm:"default:0" json:"totalSteps"`
	CompletedSteps int `gorm:"default:0" json:"completedSteps"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Roadmap) TableName() string {
	return "roadmaps"
}

// RoadmapFeedback 对应于数据库中的 'roadmap_feedback' 表。
// 步骤反馈的独立留档，路线图归档后仍保留，用于跨版本的趋势分析。
type RoadmapFeedback struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index;not null" json:"userId"`
	RoadmapID      string    `gorm:"type:varchar(36);index;not null" json:"roadmapId"`
	RoadmapVersion int       `gorm:"default:1" json:"roadmapVersion"`
	StageID        string    `gorm:"type:varchar(36)" json:"stageId"`
	StepID         string    `gorm:"type:varchar(36);not null" json:"stepId"`
	FeedbackType   string    `gorm:"type:varchar(32);not null" json:"feedbackType"`
	Message        string    `gorm:"type:text" json:"message"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (RoadmapFeedback) TableName() string {
	return "roadmap_feedback"
}

// AdjustmentAnalysis 是评估智能体对累计反馈的分析结果。
type AdjustmentAnalysis struct {
	Action          string   `json:"action"` // regenerate, adjust_pace, add_support, none
	NewLearningPace string   `json:"new_learning_pace,omitempty"`
	DifficultyAreas []string `json:"difficulty_areas,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	ShouldSimplify  bool     `json:"should_simplify"`
}
