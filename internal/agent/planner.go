package agent

import (
	"context"

	"mentor-go/internal/model"
	"mentor-go/pkg/llm"
	"mentor-go/pkg/log"
)

// Planner 为每轮交互产出结构化的引导策略。
type Planner interface {
	// Plan 永不返回错误：推理失败或输出不可解析时退回默认策略。
	Plan(ctx context.Context, c model.Context, message string) model.StrategyDecision
}

type planner struct {
	llmClient llm.Client
}

// NewPlanner 创建一个规划智能体实例。
func NewPlanner(llmClient llm.Client) Planner {
	return &planner{llmClient: llmClient}
}

// defaultStrategy 是规划失败时的安全回退。
func defaultStrategy() model.StrategyDecision {
	return model.StrategyDecision{
		Strategy:          "support",
		Tone:              "warm",
		ShouldAskQuestion: true,
		Pacing:            "normal",
		Verbosity:         "normal",
		ChatIntent:        "new conversation",
	}
}

func (p *planner) Plan(ctx context.Context, c model.Context, message string) model.StrategyDecision {
	raw, err := p.llmClient.Complete(ctx, plannerPrompt(c, message))
	if err != nil {
		log.Warnf("规划器推理失败，使用默认策略: %v", err)
		return defaultStrategy()
	}

	var decision model.StrategyDecision
	if err := decodeJSON(raw, &decision); err != nil {
		log.Warnf("规划器输出不可解析，使用默认策略: %v", err)
		return defaultStrategy()
	}
	if decision.Strategy == "" {
		return defaultStrategy()
	}
	if decision.Pacing == "" {
		decision.Pacing = "normal"
	}
	if decision.Verbosity == "" {
		decision.Verbosity = "normal"
	}
	if decision.Tone == "" {
		decision.Tone = "warm"
	}
	return decision
}
