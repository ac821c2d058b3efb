package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"mentor-go/internal/model"
)

// maxLinesFor 把详细程度映射为回复的最大行数。
func maxLinesFor(verbosity string) int {
	switch verbosity {
	case "brief":
		return 8
	case "detailed":
		return 12
	default:
		return 6
	}
}

// contextBlock 把上下文快照渲染为提示词中的学员档案段落。
func contextBlock(c model.Context) string {
	var b strings.Builder
	b.WriteString("学员档案:\n")
	if len(c.Profile.Interests) > 0 {
		fmt.Fprintf(&b, "- 兴趣: %s\n", strings.Join(c.Profile.Interests, ", "))
	}
	if len(c.Profile.Goals) > 0 {
		fmt.Fprintf(&b, "- 目标: %s\n", strings.Join(c.Profile.Goals, ", "))
	}
	fmt.Fprintf(&b, "- 成长阶段: %s, 学习节奏: %s\n", c.Profile.Stage, c.Profile.LearningPace)
	if c.Profile.Perseverance != "" {
		fmt.Fprintf(&b, "- 毅力: %s, 挫折耐受: %s\n", c.Profile.Perseverance, c.Profile.FrustrationTolerance)
	}
	if c.Onboarding.IsComplete {
		fmt.Fprintf(&b, "- 来意: %s, 期望的指导方式: %s, 经验水平: %s, 导师风格: %s\n",
			c.Onboarding.WhyHere, c.Onboarding.GuidanceType, c.Onboarding.ExperienceLevel, c.Onboarding.MentoringStyle)
	}
	if len(c.Struggles) > 0 {
		topics := make([]string, 0, len(c.Struggles))
		for _, s := range c.Struggles {
			topics = append(topics, fmt.Sprintf("%s(%s x%d)", s.Topic, s.Severity, s.Count))
		}
		fmt.Fprintf(&b, "- 近期困难: %s\n", strings.Join(topics, ", "))
	}
	if c.LatestEval != nil {
		fmt.Fprintf(&b, "- 最近评估: 清晰度 %d, 趋势 %s, 投入度 %s\n",
			c.LatestEval.ClarityScore, c.LatestEval.ConfusionTrend, c.LatestEval.EngagementLevel)
	}
	if c.ContextSummary != "" {
		fmt.Fprintf(&b, "- 长期摘要: %s\n", c.ContextSummary)
	}
	if c.RecentChat != "" {
		b.WriteString("\n最近对话:\n")
		b.WriteString(c.RecentChat)
		b.WriteString("\n")
	}
	return b.String()
}

func plannerPrompt(c model.Context, message string) string {
	return fmt.Sprintf(`你是一个学习导师系统的策略规划器。根据学员档案和最新消息，决定本轮回复的引导策略。

%s
学员的最新消息: %q

只输出一个 JSON 对象，不要任何其他文字:
{
  "strategy": "encourage|teach|challenge|reflect|support|celebrate",
  "tone": "warm|calm|energetic|direct",
  "focus_areas": ["..."],
  "should_ask_question": true,
  "detected_emotion": "...",
  "pacing": "slow|normal|accelerated",
  "verbosity": "brief|normal|detailed",
  "chat_intent": "用三到六个词概括本次对话意图",
  "memory_update": {"new_interest": "", "new_goal": "", "struggle_detected": ""}
}`, contextBlock(c), message)
}

func responsePrompt(c model.Context, strategy model.StrategyDecision, message string) string {
	return fmt.Sprintf(`你是一位耐心的学习导师。以下是学员档案和本轮的引导策略。

%s
引导策略: 策略=%s, 语气=%s, 节奏=%s, 是否提问=%t
学员的最新消息: %q

按照引导策略直接回复学员。不超过 %d 行，不要任何前缀或解释。`,
		contextBlock(c), strategy.Strategy, strategy.Tone, strategy.Pacing,
		strategy.ShouldAskQuestion, message, maxLinesFor(strategy.Verbosity))
}

func voicePrompt(c model.Context, strategy model.StrategyDecision, message string) string {
	return fmt.Sprintf(`你是一位耐心的学习导师，正在和学员语音交谈。

%s
引导策略: 策略=%s, 语气=%s
学员刚刚说: %q

用口语化、适合朗读的方式简短回应，不超过 4 句话，不要使用任何列表或格式符号。`,
		contextBlock(c), strategy.Strategy, strategy.Tone, message)
}

func roadmapPrompt(c model.Context, goal string) string {
	return fmt.Sprintf(`你是一个学习路线规划器。为学员围绕目标 %q 生成一份分阶段的学习路线图。

%s
要求: 3 到 5 个阶段，每阶段 3 到 6 个步骤，步骤类型从 learn/practice/build/reflect/milestone 中选择。

只输出一个 JSON 对象:
{
  "title": "...",
  "stages": [
    {
      "id": "stage-1",
      "name": "...",
      "description": "...",
      "order": 1,
      "steps": [
        {"id": "step-1-1", "title": "...", "description": "...", "step_type": "learn", "resources": ["..."]}
      ]
    }
  ]
}`, goal, contextBlock(c))
}

func regeneratePrompt(c model.Context, old *model.Roadmap, analysis model.AdjustmentAnalysis, feedbacks []model.RoadmapFeedback) string {
	oldJSON, _ := json.Marshal(old.Stages)
	var fb strings.Builder
	for _, f := range feedbacks {
		fmt.Fprintf(&fb, "- 步骤 %s: %s %s\n", f.StepID, f.FeedbackType, f.Message)
	}
	simplify := ""
	if analysis.ShouldSimplify {
		simplify = "学员在当前难度下受阻，请明显降低步骤难度并拆细。"
	}
	return fmt.Sprintf(`你是一个学习路线规划器。学员对当前路线图（目标 %q）给出了反馈，请生成一份调整后的新版本。

%s
当前路线图阶段: %s

累计反馈:
%s
分析结论: 动作=%s, 困难领域=%s。%s
已完成的步骤在新版本中保留并标记为 completed。

只输出一个 JSON 对象，结构与生成路线图时相同（title + stages）。`,
		old.Goal, contextBlock(c), string(oldJSON), fb.String(),
		analysis.Action, strings.Join(analysis.DifficultyAreas, ", "), simplify)
}

func evaluationPrompt(c model.Context, userMessage, mentorReply string) string {
	return fmt.Sprintf(`你是一个学习交互评估器。根据学员档案、学员消息和导师回复，评估这一轮交互。

%s
学员消息: %q
导师回复: %q

只输出一个 JSON 对象:
{
  "clarity_score": 0,
  "confusion_trend": "improving|stable|worsening",
  "understanding_delta": 0,
  "stagnation_flags": [],
  "engagement_level": "high|medium|low",
  "struggle_detected": "",
  "struggle_severity": "mild|moderate|significant",
  "positive_signals": [],
  "response_effectiveness": "high|medium|low",
  "suggested_next_focus": "",
  "new_interest_detected": "",
  "stage_change_recommended": "",
  "pace_adjustment": "slow_down|speed_up|maintain"
}`, contextBlock(c), userMessage, mentorReply)
}

func strugglePrompt(message string) string {
	return fmt.Sprintf(`判断下面这条学员消息是否表达了学习上的困难。

消息: %q

只输出一个 JSON 对象:
{"is_struggle": true, "topic": "具体困难的主题", "severity": "mild|moderate|significant"}`, message)
}

func feedbackAnalysisPrompt(roadmap *model.Roadmap, feedbacks []model.RoadmapFeedback) string {
	var fb strings.Builder
	for _, f := range feedbacks {
		fmt.Fprintf(&fb, "- 版本 %d, 步骤 %s: %s %s\n", f.RoadmapVersion, f.StepID, f.FeedbackType, f.Message)
	}
	return fmt.Sprintf(`你是一个学习路线分析器。学员在路线图（目标 %q，当前版本 %d）上累计了以下步骤反馈:

%s
判断路线图是否需要调整。只输出一个 JSON 对象:
{
  "action": "regenerate|adjust_pace|add_support|none",
  "new_learning_pace": "slow|moderate|fast",
  "difficulty_areas": [],
  "recommendations": [],
  "should_simplify": false
}`, roadmap.Goal, roadmap.Version, fb.String())
}
