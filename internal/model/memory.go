// Package model 包含了应用的数据模型定义。
package model

import "time"

// Struggle 记录用户在某个主题上的困难，按小写主题去重。
type Struggle struct {
	Topic    string    `json:"topic"`
	Count    int       `json:"count"`
	Severity string    `json:"severity"` // mild, moderate, significant
	LastSeen time.Time `json:"last_seen"`
	Notes    string    `json:"notes,omitempty"`
}

// EvaluationSnapshot 是评估智能体对一次交互的打分快照，写入后不再修改。
type EvaluationSnapshot struct {
	Timestamp              time.Time `json:"timestamp"`
	ClarityScore           int       `json:"clarity_score"`    // 0-100
	ConfusionTrend         string    `json:"confusion_trend"`  // improving, stable, worsening
	UnderstandingDelta     int       `json:"understanding_delta"` // -10..+10
	StagnationFlags        []string  `json:"stagnation_flags,omitempty"`
	EngagementLevel        string    `json:"engagement_level"` // high, medium, low
	StruggleDetected       string    `json:"struggle_detected,omitempty"`
	StruggleSeverity       string    `json:"struggle_severity,omitempty"`
	PositiveSignals        []string  `json:"positive_signals,omitempty"`
	ResponseEffectiveness  string    `json:"response_effectiveness,omitempty"`
	SuggestedNextFocus     string    `json:"suggested_next_focus,omitempty"`
	NewInterestDetected    string    `json:"new_interest_detected,omitempty"`
	StageChangeRecommended string    `json:"stage_change_recommended,omitempty"`
	PaceAdjustment         string    `json:"pace_adjustment,omitempty"` // slow_down, speed_up, maintain
}

// UserProfile 是用户记忆中的画像部分。
type UserProfile struct {
	Interests    []string `json:"interests"`
	Goals        []string `json:"goals"`
	Stage        string   `json:"stage"`         // seedling, growing, branching, flourishing
	LearningPace string   `json:"learning_pace"` // slow, moderate, fast
	// 以下为长期推导出的学习者特质
	Perseverance         string `json:"perseverance,omitempty"`          // low, moderate, high
	FrustrationTolerance string `json:"frustration_tolerance,omitempty"` // low, moderate, high
}

// Onboarding 记录入门问卷的作答，聊天功能在完成前被拦截。
type Onboarding struct {
	IsComplete      bool       `json:"is_complete"`
	WhyHere         string     `json:"why_here,omitempty"`
	GuidanceType    string     `json:"guidance_type,omitempty"`
	ExperienceLevel string     `json:"experience_level,omitempty"` // beginner, intermediate, advanced
	MentoringStyle  string     `json:"mentoring_style,omitempty"`  // gentle, supportive, direct, challenging
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// UserMemory 对应于数据库中的 'user_memories' 表，每个用户一条。
// 计数类字段独立成列以支持原子自增；列表类字段以 JSON 列存储，
// 更新时只写各自所在的列，降低并发丢失更新的风险。
type UserMemory struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"uniqueIndex;not null" json:"userId"`

	Profile           UserProfile          `gorm:"serializer:json;type:json" json:"profile"`
	Onboarding        Onboarding           `gorm:"serializer:json;type:json" json:"onboarding"`
	Struggles         []Struggle           `gorm:"serializer:json;type:json" json:"struggles"`
	EvaluationHistory []EvaluationSnapshot `gorm:"serializer:json;type:json" json:"evaluationHistory"`
	SessionDates      []time.Time          `gorm:"serializer:json;type:json" json:"sessionDates"`

	TotalInteractions int        `gorm:"default:0" json:"totalInteractions"`
	TotalSessions     int        `gorm:"default:0" json:"totalSessions"`
	ConsistencyStreak int        `gorm:"default:0" json:"consistencyStreak"`
	LastSessionDate   *time.Time `json:"lastSessionDate"`
	CurrentRoadmapID  string     `gorm:"type:varchar(36)" json:"currentRoadmapId"`
	RegenerationCount int        `gorm:"default:0" json:"regenerationCount"`

	ContextSummary string    `gorm:"type:text" json:"contextSummary"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (UserMemory) TableName() string {
	return "user_memories"
}

// LatestEvaluation 返回最近一次评估快照，没有则返回 nil。
func (m *UserMemory) LatestEvaluation() *EvaluationSnapshot {
	if len(m.EvaluationHistory) == 0 {
		return nil
	}
	return &m.EvaluationHistory[len(m.EvaluationHistory)-1]
}
