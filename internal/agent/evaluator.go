package agent

import (
	"context"
	"strings"
	"time"

	"mentor-go/internal/model"
	"mentor-go/pkg/llm"
	"mentor-go/pkg/log"
)

// struggleIndicators 是困难信号的词表预筛：消息不含任何指示词时
// 直接判定无困难，不发起推理调用。
var struggleIndicators = []string{
	"stuck", "confused", "don't understand", "hard", "difficult",
	"struggling", "lost", "overwhelmed", "can't", "help",
	"frustrated", "not sure", "unclear", "complicated",
}

// Evaluator 在后台评估交互质量、探测困难信号并分析路线图反馈。
type Evaluator interface {
	// EvaluateInteraction 永不返回错误，失败时退回中性快照。
	EvaluateInteraction(ctx context.Context, c model.Context, userMessage, mentorReply string) model.EvaluationSnapshot
	// DetectStruggle 判断消息是否表达了学习困难。
	DetectStruggle(ctx context.Context, message string) model.StruggleSignal
	// AnalyzeRoadmapFeedback 分析累计反馈，推理失败时退回确定性规则。
	AnalyzeRoadmapFeedback(ctx context.Context, roadmap *model.Roadmap, feedbacks []model.RoadmapFeedback) model.AdjustmentAnalysis
}

type evaluator struct {
	llmClient llm.Client
}

// NewEvaluator 创建一个评估智能体实例。
func NewEvaluator(llmClient llm.Client) Evaluator {
	return &evaluator{llmClient: llmClient}
}

// neutralSnapshot 是评估失败时的中性回退。
func neutralSnapshot() model.EvaluationSnapshot {
	return model.EvaluationSnapshot{
		Timestamp:          time.Now(),
		ClarityScore:       50,
		ConfusionTrend:     "stable",
		UnderstandingDelta: 0,
		EngagementLevel:    "medium",
	}
}

func (e *evaluator) EvaluateInteraction(ctx context.Context, c model.Context, userMessage, mentorReply string) model.EvaluationSnapshot {
	raw, err := e.llmClient.Complete(ctx, evaluationPrompt(c, userMessage, mentorReply))
	if err != nil {
		log.Warnf("评估器推理失败，使用中性快照: %v", err)
		return neutralSnapshot()
	}

	var snapshot model.EvaluationSnapshot
	if err := decodeJSON(raw, &snapshot); err != nil {
		log.Warnf("评估器输出不可解析，使用中性快照: %v", err)
		return neutralSnapshot()
	}
	snapshot.Timestamp = time.Now()
	if snapshot.ClarityScore < 0 {
		snapshot.ClarityScore = 0
	}
	if snapshot.ClarityScore > 100 {
		snapshot.ClarityScore = 100
	}
	if snapshot.ConfusionTrend == "" {
		snapshot.ConfusionTrend = "stable"
	}
	if snapshot.EngagementLevel == "" {
		snapshot.EngagementLevel = "medium"
	}
	return snapshot
}

func (e *evaluator) DetectStruggle(ctx context.Context, message string) model.StruggleSignal {
	lower := strings.ToLower(message)
	matched := false
	for _, indicator := range struggleIndicators {
		if strings.Contains(lower, indicator) {
			matched = true
			break
		}
	}
	// 词表没有命中就不值得一次推理调用
	if !matched {
		return model.StruggleSignal{IsStruggle: false}
	}

	raw, err := e.llmClient.Complete(ctx, strugglePrompt(message))
	if err == nil {
		var signal model.StruggleSignal
		if decodeErr := decodeJSON(raw, &signal); decodeErr == nil {
			if signal.IsStruggle && signal.Severity == "" {
				signal.Severity = "mild"
			}
			return signal
		}
	}
	// 词表已命中但推理不可用：保守地记一笔泛化困难
	return model.StruggleSignal{IsStruggle: true, Topic: "general difficulty", Severity: "mild"}
}

func (e *evaluator) AnalyzeRoadmapFeedback(ctx context.Context, roadmap *model.Roadmap, feedbacks []model.RoadmapFeedback) model.AdjustmentAnalysis {
	raw, err := e.llmClient.Complete(ctx, feedbackAnalysisPrompt(roadmap, feedbacks))
	if err == nil {
		var analysis model.AdjustmentAnalysis
		if decodeErr := decodeJSON(raw, &analysis); decodeErr == nil && analysis.Action != "" {
			return analysis
		}
	}
	log.Warnf("反馈分析推理不可用，使用确定性规则: %v", err)
	return fallbackAnalysis(feedbacks)
}

// fallbackAnalysis 是基于受阻反馈数量的确定性规则。
func fallbackAnalysis(feedbacks []model.RoadmapFeedback) model.AdjustmentAnalysis {
	stuckCount := 0
	areas := make([]string, 0)
	for _, f := range feedbacks {
		switch f.FeedbackType {
		case model.StepStuck, model.StepNeedsHelp, model.StepNotClear:
			stuckCount++
			areas = append(areas, f.StepID)
		}
	}

	analysis := model.AdjustmentAnalysis{Action: "none"}
	if stuckCount > 1 {
		analysis.Action = "regenerate"
		analysis.ShouldSimplify = true
		analysis.DifficultyAreas = areas
	}
	if stuckCount > 2 {
		analysis.NewLearningPace = "slow"
	}
	return analysis
}
