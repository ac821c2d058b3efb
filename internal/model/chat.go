// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息发送方
const (
	SenderUser   = "user"
	SenderMentor = "mentor"
)

// ChatSession 对应于数据库中的 'chat_sessions' 表。
// updated_at 驱动"最近活跃会话"的查询排序；同一用户同一时间只有
// 一个活跃会话是查询约定，而非数据库层的唯一约束。
type ChatSession struct {
	ID                 string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID             uint      `gorm:"index;not null" json:"userId"`
	Title              string    `gorm:"type:varchar(255)" json:"title"`
	MessageCount       int       `gorm:"default:0" json:"messageCount"`
	LastMessagePreview string    `gorm:"type:varchar(255)" json:"lastMessagePreview"`
	IsActive           bool      `gorm:"default:true;index" json:"isActive"`
	ContextSummary     string    `gorm:"type:text" json:"contextSummary"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// MessageMetadata 是消息的附加信息，留档用，不用于展示。
// 导师消息携带生成它的策略决策。
type MessageMetadata struct {
	MessageType  string            `json:"message_type,omitempty"` // text, voice
	VoiceEnabled bool              `json:"voice_enabled,omitempty"`
	Strategy     *StrategyDecision `json:"strategy,omitempty"`
}

// ChatMessage 对应于数据库中的 'chat_messages' 表，写入后不可变。
type ChatMessage struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatID    string          `gorm:"type:varchar(36);index;not null" json:"chatId"`
	UserID    uint            `gorm:"index;not null" json:"userId"`
	Sender    string          `gorm:"type:varchar(16);not null" json:"sender"`
	Content   string          `gorm:"type:text;not null" json:"content"`
	Metadata  MessageMetadata `gorm:"serializer:json;type:json" json:"metadata"`
	Timestamp time.Time       `gorm:"index;not null" json:"timestamp"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// StrategyDecision 是规划智能体产出的结构化引导决策，
// 每条消息产生一份，不作为可变状态持久化。
type StrategyDecision struct {
	Strategy          string       `json:"strategy"` // encourage, teach, challenge, reflect, support, celebrate
	Tone              string       `json:"tone"`
	FocusAreas        []string     `json:"focus_areas,omitempty"`
	ShouldAskQuestion bool         `json:"should_ask_question"`
	DetectedEmotion   string       `json:"detected_emotion,omitempty"`
	Pacing            string       `json:"pacing,omitempty"`    // slow, normal, accelerated
	Verbosity         string       `json:"verbosity,omitempty"` // brief, normal, detailed
	ChatIntent        string       `json:"chat_intent,omitempty"`
	MemoryUpdate      MemoryUpdate `json:"memory_update"`
}

// MemoryUpdate 是规划器附带的记忆更新提示。
type MemoryUpdate struct {
	NewInterest      string `json:"new_interest,omitempty"`
	NewGoal          string `json:"new_goal,omitempty"`
	StruggleDetected string `json:"struggle_detected,omitempty"`
}

// StruggleSignal 是困难探测的结果。
type StruggleSignal struct {
	IsStruggle bool   `json:"is_struggle"`
	Topic      string `json:"topic,omitempty"`
	Severity   string `json:"severity,omitempty"`
}

// Context 是上下文聚合器的产物：一次快照，聚合后不再修改。
type Context struct {
	Profile        UserProfile
	Onboarding     Onboarding
	Struggles      []Struggle
	ContextSummary string
	RecentChat     string // 已格式化的最近若干轮对话
	LatestEval     *EvaluationSnapshot
	TotalSessions  int
}
