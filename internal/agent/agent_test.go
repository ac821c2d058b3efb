package agent

import (
	"context"
	"errors"
	"os"
	"testing"

	"mentor-go/internal/model"
	"mentor-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

// stubLLM 按固定输出或固定错误响应每次调用，并记录调用次数。
type stubLLM struct {
	output string
	err    error
	calls  int
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.output, s.err
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}

func TestDecodeJSONWithSurroundingText(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	err := decodeJSON("好的，结果如下：{\"a\": 3} 希望有帮助", &v)
	require.NoError(t, err)
	assert.Equal(t, 3, v.A)

	err = decodeJSON("完全不是 JSON", &v)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestPlannerFallsBackOnError(t *testing.T) {
	p := NewPlanner(&stubLLM{err: errors.New("boom")})
	decision := p.Plan(context.Background(), model.Context{}, "hi")
	assert.Equal(t, "support", decision.Strategy)
	assert.Equal(t, "warm", decision.Tone)
	assert.True(t, decision.ShouldAskQuestion)
	assert.Equal(t, "new conversation", decision.ChatIntent)
}

func TestPlannerFallsBackOnMalformedOutput(t *testing.T) {
	p := NewPlanner(&stubLLM{output: "不是 JSON"})
	decision := p.Plan(context.Background(), model.Context{}, "hi")
	assert.Equal(t, "support", decision.Strategy)
}

func TestPlannerParsesDecision(t *testing.T) {
	p := NewPlanner(&stubLLM{output: `{"strategy":"teach","tone":"calm","should_ask_question":false,"verbosity":"detailed","chat_intent":"learning go basics"}`})
	decision := p.Plan(context.Background(), model.Context{}, "怎么学 Go")
	assert.Equal(t, "teach", decision.Strategy)
	assert.Equal(t, "calm", decision.Tone)
	assert.False(t, decision.ShouldAskQuestion)
	assert.Equal(t, "detailed", decision.Verbosity)
	// 未给出的字段补默认值
	assert.Equal(t, "normal", decision.Pacing)
}

func TestExecutorFallbackReply(t *testing.T) {
	e := NewExecutor(&stubLLM{err: errors.New("timeout")})
	reply := e.Respond(context.Background(), model.Context{}, defaultStrategy(), "hello")
	assert.Equal(t, fallbackReply, reply)

	voice := e.RespondVoice(context.Background(), model.Context{}, defaultStrategy(), "hello")
	assert.Equal(t, fallbackVoiceReply, voice)
}

func TestRepairRoadmapFillsMissingFields(t *testing.T) {
	raw := `{
		"title": "Go 入门",
		"stages": [
			{"name": "基础", "steps": [
				{"title": "安装环境"},
				{"id": "step-x", "title": "写 Hello World", "status": "completed", "step_type": "practice"}
			]}
		]
	}`
	roadmap := repairRoadmap(raw, "学会 Go")
	require.NotNil(t, roadmap)
	require.Len(t, roadmap.Stages, 1)

	stage := roadmap.Stages[0]
	assert.NotEmpty(t, stage.ID)
	assert.Equal(t, 1, stage.Order)
	require.Len(t, stage.Steps, 2)

	assert.Contains(t, stage.Steps[0].ID, "step-")
	assert.Equal(t, model.StepPending, stage.Steps[0].Status)
	assert.Equal(t, model.StepTypeLearn, stage.Steps[0].StepType)

	assert.Equal(t, "step-x", stage.Steps[1].ID)
	assert.Equal(t, model.StepCompleted, stage.Steps[1].Status)
	assert.NotNil(t, stage.Steps[1].CompletedAt)

	assert.Equal(t, 2, roadmap.TotalSteps)
	assert.Equal(t, 1, roadmap.CompletedSteps)
	assert.Equal(t, 1, roadmap.Version)
	assert.True(t, roadmap.IsActive)
}

func TestRepairRoadmapUnparseable(t *testing.T) {
	assert.Nil(t, repairRoadmap("服务暂时不可用", "goal"))
	assert.Nil(t, repairRoadmap(`{"title":"空的","stages":[]}`, "goal"))
}

func TestEvaluatorNeutralSnapshotOnFailure(t *testing.T) {
	e := NewEvaluator(&stubLLM{err: errors.New("rate limited")})
	snapshot := e.EvaluateInteraction(context.Background(), model.Context{}, "msg", "reply")
	assert.Equal(t, 50, snapshot.ClarityScore)
	assert.Equal(t, "stable", snapshot.ConfusionTrend)
	assert.Equal(t, 0, snapshot.UnderstandingDelta)
	assert.Equal(t, "medium", snapshot.EngagementLevel)
	assert.False(t, snapshot.Timestamp.IsZero())
}

func TestEvaluatorClampsClarityScore(t *testing.T) {
	e := NewEvaluator(&stubLLM{output: `{"clarity_score": 140, "confusion_trend": "improving", "engagement_level": "high"}`})
	snapshot := e.EvaluateInteraction(context.Background(), model.Context{}, "msg", "reply")
	assert.Equal(t, 100, snapshot.ClarityScore)
	assert.Equal(t, "improving", snapshot.ConfusionTrend)
}

func TestDetectStruggleSkipsInferenceWithoutIndicators(t *testing.T) {
	stub := &stubLLM{output: `{"is_struggle": true}`}
	e := NewEvaluator(stub)
	signal := e.DetectStruggle(context.Background(), "today was a great day")
	assert.False(t, signal.IsStruggle)
	assert.Zero(t, stub.calls, "没有指示词时不应发起推理调用")
}

func TestDetectStruggleFallbackOnInferenceFailure(t *testing.T) {
	e := NewEvaluator(&stubLLM{err: errors.New("down")})
	signal := e.DetectStruggle(context.Background(), "I'm really stuck on recursion")
	assert.True(t, signal.IsStruggle)
	assert.Equal(t, "general difficulty", signal.Topic)
	assert.Equal(t, "mild", signal.Severity)
}

func TestDetectStruggleParsesSignal(t *testing.T) {
	e := NewEvaluator(&stubLLM{output: `{"is_struggle": true, "topic": "recursion", "severity": "moderate"}`})
	signal := e.DetectStruggle(context.Background(), "I'm confused about recursion")
	assert.True(t, signal.IsStruggle)
	assert.Equal(t, "recursion", signal.Topic)
	assert.Equal(t, "moderate", signal.Severity)
}

func TestFallbackAnalysisThresholds(t *testing.T) {
	stuck := func(n int) []model.RoadmapFeedback {
		fbs := make([]model.RoadmapFeedback, n)
		for i := range fbs {
			fbs[i] = model.RoadmapFeedback{StepID: "s", FeedbackType: model.StepStuck}
		}
		return fbs
	}

	assert.Equal(t, "none", fallbackAnalysis(stuck(1)).Action)

	two := fallbackAnalysis(stuck(2))
	assert.Equal(t, "regenerate", two.Action)
	assert.True(t, two.ShouldSimplify)
	assert.Empty(t, two.NewLearningPace)

	three := fallbackAnalysis(stuck(3))
	assert.Equal(t, "regenerate", three.Action)
	assert.Equal(t, "slow", three.NewLearningPace)
}

func TestMaxLinesFor(t *testing.T) {
	assert.Equal(t, 8, maxLinesFor("brief"))
	assert.Equal(t, 6, maxLinesFor("normal"))
	assert.Equal(t, 12, maxLinesFor("detailed"))
	assert.Equal(t, 6, maxLinesFor(""))
}
