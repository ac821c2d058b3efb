package service

import (
	"context"
	"testing"

	"mentor-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrchestratorForTest(chatRepo *fakeChatRepo, memRepo *fakeMemoryRepo, exec stubExecutor, eval stubEvaluator, planner stubPlanner) (*orchestratorService, ChatService) {
	cache := newFakeContextCache()
	chatSvc := NewChatService(chatRepo, cache)
	memorySvc := NewMemoryService(memRepo)
	contextSvc := NewContextService(memRepo, chatRepo, cache)
	svc := NewOrchestratorService(chatSvc, contextSvc, memorySvc, noopTraceService{}, planner, exec, eval, nil)
	return svc.(*orchestratorService), chatSvc
}

func TestProcessMessagePersistsBothSides(t *testing.T) {
	chatRepo := newFakeChatRepo()
	memRepo := newFakeMemoryRepo()
	planner := stubPlanner{decision: model.StrategyDecision{
		Strategy: "teach", Tone: "calm", Verbosity: "normal", ChatIntent: "go slices basics",
	}}
	svc, _ := newOrchestratorForTest(chatRepo, memRepo, stubExecutor{reply: "Slices are views over arrays."}, stubEvaluator{}, planner)

	result := svc.process(context.Background(), 1, "", "how do slices work?", false)
	require.NotNil(t, result)
	assert.False(t, result.Degraded)
	assert.NotEmpty(t, result.ChatID)
	assert.Equal(t, "Slices are views over arrays.", result.Reply)
	require.NotNil(t, result.Strategy)
	assert.Equal(t, "teach", result.Strategy.Strategy)

	msgs := chatRepo.messages[result.ChatID]
	require.Len(t, msgs, 2)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
	assert.Equal(t, model.SenderMentor, msgs[1].Sender)
	require.NotNil(t, msgs[1].Metadata.Strategy)
	assert.Equal(t, "teach", msgs[1].Metadata.Strategy.Strategy)

	// 首条消息用对话意图生成标题
	session, err := chatRepo.GetSession(result.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Go Slices Basics", session.Title)
}

func TestProcessMessageReusesActiveSession(t *testing.T) {
	chatRepo := newFakeChatRepo()
	svc, _ := newOrchestratorForTest(chatRepo, newFakeMemoryRepo(), stubExecutor{reply: "ok"}, stubEvaluator{}, stubPlanner{decision: model.StrategyDecision{Strategy: "support"}})

	first := svc.process(context.Background(), 1, "", "hello", false)
	second := svc.process(context.Background(), 1, "", "again", false)
	assert.Equal(t, first.ChatID, second.ChatID)

	// 其他用户的会话不可见
	other := svc.process(context.Background(), 2, first.ChatID, "hi", false)
	assert.True(t, other.Degraded)
	assert.Equal(t, apologyReply, other.Reply)
}

func TestEnrichUpdatesMemory(t *testing.T) {
	chatRepo := newFakeChatRepo()
	memRepo := newFakeMemoryRepo()
	eval := stubEvaluator{
		signal: model.StruggleSignal{IsStruggle: true, Topic: "recursion", Severity: "moderate"},
		snapshot: model.EvaluationSnapshot{
			ClarityScore: 40, ConfusionTrend: "stable", EngagementLevel: "medium",
			NewInterestDetected: "algorithms",
		},
	}
	strategy := model.StrategyDecision{
		Strategy: "support",
		MemoryUpdate: model.MemoryUpdate{
			NewInterest:      "problem solving",
			StruggleDetected: "Recursion", // 与探测结果重复，不能重复计数
		},
	}
	svc, _ := newOrchestratorForTest(chatRepo, memRepo, stubExecutor{}, eval, stubPlanner{decision: strategy})

	svc.enrich(1, model.Context{}, strategy, "I'm stuck on recursion", "Let's slow down.", "trace-1")

	memory, err := memRepo.GetOrCreate(1)
	require.NoError(t, err)

	require.Len(t, memory.Struggles, 1)
	assert.Equal(t, "recursion", memory.Struggles[0].Topic)
	assert.Equal(t, 1, memory.Struggles[0].Count)
	assert.Equal(t, "I'm stuck on recursion", memory.Struggles[0].Notes)

	assert.ElementsMatch(t, []string{"problem solving", "algorithms"}, memory.Profile.Interests)

	require.Len(t, memory.EvaluationHistory, 1)
	assert.Equal(t, 40, memory.EvaluationHistory[0].ClarityScore)

	assert.Equal(t, 1, memory.TotalInteractions)
	assert.Equal(t, 1, memory.ConsistencyStreak)
}

func TestProcessMessageMentorPersistFailureDegrades(t *testing.T) {
	inner := newFakeChatRepo()
	chatRepo := &failingChatRepo{fakeChatRepo: inner, failSender: model.SenderMentor}
	cache := newFakeContextCache()
	chatSvc := NewChatService(chatRepo, cache)
	memRepo := newFakeMemoryRepo()
	svc := NewOrchestratorService(
		chatSvc,
		NewContextService(memRepo, chatRepo, cache),
		NewMemoryService(memRepo),
		noopTraceService{},
		stubPlanner{decision: model.StrategyDecision{Strategy: "teach"}},
		stubExecutor{reply: "lost reply"},
		stubEvaluator{},
		nil,
	).(*orchestratorService)

	result := svc.process(context.Background(), 1, "", "how do maps work?", false)
	require.NotNil(t, result)
	assert.True(t, result.Degraded)
	assert.Equal(t, apologyReply, result.Reply)
	assert.NotEmpty(t, result.ChatID)

	// 用户消息先入库，失败的只是导师消息
	msgs := inner.messages[result.ChatID]
	require.Len(t, msgs, 1)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
}

// recordingPlanner 记录规划时拿到的上下文快照。
type recordingPlanner struct {
	decision model.StrategyDecision
	seen     *model.Context
}

func (p *recordingPlanner) Plan(ctx context.Context, c model.Context, message string) model.StrategyDecision {
	*p.seen = c
	return p.decision
}

func TestProcessMessageContextExcludesCurrentMessage(t *testing.T) {
	chatRepo := newFakeChatRepo()
	cache := newFakeContextCache()
	chatSvc := NewChatService(chatRepo, cache)
	memRepo := newFakeMemoryRepo()
	var seen model.Context
	planner := &recordingPlanner{decision: model.StrategyDecision{Strategy: "support"}, seen: &seen}
	svc := NewOrchestratorService(
		chatSvc,
		NewContextService(memRepo, chatRepo, cache),
		NewMemoryService(memRepo),
		noopTraceService{},
		planner,
		stubExecutor{reply: "ok"},
		stubEvaluator{},
		nil,
	).(*orchestratorService)

	first := svc.process(context.Background(), 1, "", "what is a goroutine?", false)
	require.False(t, first.Degraded)
	svc.process(context.Background(), 1, first.ChatID, "and what about channels?", false)

	// 窗口里有上一轮对话，但不含本条刚入库的消息
	assert.Contains(t, seen.RecentChat, "Student: what is a goroutine?")
	assert.Contains(t, seen.RecentChat, "Mentor: ok")
	assert.NotContains(t, seen.RecentChat, "and what about channels?")
}

func TestFormatRecentChat(t *testing.T) {
	msgs := []model.ChatMessage{
		{Sender: model.SenderUser, Content: "hi"},
		{Sender: model.SenderMentor, Content: "hello"},
	}
	assert.Equal(t, "Student: hi\nMentor: hello", formatRecentChat(msgs))
	assert.Empty(t, formatRecentChat(nil))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Learning Go Basics", titleCase("learning go basics"))
}
