package agent

import (
	"context"
	"strings"
	"time"

	"mentor-go/internal/model"
	"mentor-go/pkg/llm"
	"mentor-go/pkg/log"

	"github.com/google/uuid"
)

// 推理失败时的固定兜底回复。
const (
	fallbackReply      = "I'm with you. Tell me more about what's on your mind."
	fallbackVoiceReply = "I hear you. Let's explore that together."
)

// Executor 基于引导策略生成面向学员的产物：文本回复、语音回复和路线图。
type Executor interface {
	// Respond 生成文本回复，永不返回错误，失败时退回固定兜底文案。
	Respond(ctx context.Context, c model.Context, strategy model.StrategyDecision, message string) string
	// RespondVoice 生成适合朗读的简短回复。
	RespondVoice(ctx context.Context, c model.Context, strategy model.StrategyDecision, message string) string
	// GenerateRoadmap 生成一份新路线图；输出不可修复时返回 nil。
	GenerateRoadmap(ctx context.Context, c model.Context, goal string) *model.Roadmap
	// RegenerateRoadmap 基于旧版本与累计反馈生成调整后的路线图。
	RegenerateRoadmap(ctx context.Context, c model.Context, old *model.Roadmap, analysis model.AdjustmentAnalysis, feedbacks []model.RoadmapFeedback) *model.Roadmap
}

type executor struct {
	llmClient llm.Client
}

// NewExecutor 创建一个执行智能体实例。
func NewExecutor(llmClient llm.Client) Executor {
	return &executor{llmClient: llmClient}
}

func (e *executor) Respond(ctx context.Context, c model.Context, strategy model.StrategyDecision, message string) string {
	reply, err := e.llmClient.Complete(ctx, responsePrompt(c, strategy, message))
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Warnf("执行器生成回复失败，使用兜底文案: %v", err)
		return fallbackReply
	}
	return strings.TrimSpace(reply)
}

func (e *executor) RespondVoice(ctx context.Context, c model.Context, strategy model.StrategyDecision, message string) string {
	reply, err := e.llmClient.Complete(ctx, voicePrompt(c, strategy, message))
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Warnf("执行器生成语音回复失败，使用兜底文案: %v", err)
		return fallbackVoiceReply
	}
	return strings.TrimSpace(reply)
}

// roadmapDraft 是模型输出的路线图原始结构，修复后落入 model.Roadmap。
type roadmapDraft struct {
	Title  string `json:"title"`
	Stages []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Order       int    `json:"order"`
		Steps       []struct {
			ID          string   `json:"id"`
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Status      string   `json:"status"`
			StepType    string   `json:"step_type"`
			Resources   []string `json:"resources"`
		} `json:"steps"`
	} `json:"stages"`
}

func (e *executor) GenerateRoadmap(ctx context.Context, c model.Context, goal string) *model.Roadmap {
	raw, err := e.llmClient.Complete(ctx, roadmapPrompt(c, goal))
	if err != nil {
		log.Errorf("执行器生成路线图失败: %v", err)
		return nil
	}
	return repairRoadmap(raw, goal)
}

func (e *executor) RegenerateRoadmap(ctx context.Context, c model.Context, old *model.Roadmap, analysis model.AdjustmentAnalysis, feedbacks []model.RoadmapFeedback) *model.Roadmap {
	raw, err := e.llmClient.Complete(ctx, regeneratePrompt(c, old, analysis, feedbacks))
	if err != nil {
		log.Errorf("执行器再生成路线图失败: %v", err)
		return nil
	}
	return repairRoadmap(raw, old.Goal)
}

// repairRoadmap 解析并修复模型输出：补全缺失的阶段/步骤 ID、
// 默认状态与步骤类型，统计总步骤数。完全不可解析时返回 nil。
func repairRoadmap(raw, goal string) *model.Roadmap {
	var draft roadmapDraft
	if err := decodeJSON(raw, &draft); err != nil {
		log.Errorf("路线图输出不可解析: %v", err)
		return nil
	}
	if len(draft.Stages) == 0 {
		log.Error("路线图输出没有任何阶段", nil)
		return nil
	}

	roadmap := &model.Roadmap{
		ID:       uuid.NewString(),
		Title:    draft.Title,
		Goal:     goal,
		Version:  1,
		IsActive: true,
	}
	if roadmap.Title == "" {
		roadmap.Title = goal
	}

	totalSteps := 0
	for i, ds := range draft.Stages {
		stage := model.RoadmapStage{
			ID:          ds.ID,
			Name:        ds.Name,
			Description: ds.Description,
			Status:      model.StepPending,
			Order:       ds.Order,
		}
		if stage.ID == "" {
			stage.ID = "stage-" + uuid.NewString()[:8]
		}
		if stage.Order == 0 {
			stage.Order = i + 1
		}
		for _, dp := range ds.Steps {
			step := model.RoadmapStep{
				ID:           dp.ID,
				Title:        dp.Title,
				Description:  dp.Description,
				Status:       dp.Status,
				StepType:     dp.StepType,
				Resources:    dp.Resources,
				UserFeedback: []model.StepFeedback{},
			}
			if step.ID == "" {
				step.ID = "step-" + uuid.NewString()[:8]
			}
			if step.Status == "" {
				step.Status = model.StepPending
			}
			if step.StepType == "" {
				step.StepType = model.StepTypeLearn
			}
			if step.Status == model.StepCompleted {
				now := time.Now()
				step.CompletedAt = &now
				roadmap.CompletedSteps++
			}
			stage.Steps = append(stage.Steps, step)
			totalSteps++
		}
		roadmap.Stages = append(roadmap.Stages, stage)
	}
	roadmap.TotalSteps = totalSteps
	return roadmap
}
