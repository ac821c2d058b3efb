package service

import (
	"testing"
	"time"

	"mentor-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStruggleDeduplicatesByTopic(t *testing.T) {
	repo := newFakeMemoryRepo()
	svc := NewMemoryService(repo)

	require.NoError(t, svc.UpdateStruggle(1, "Recursion", "mild", "stuck on base cases"))
	require.NoError(t, svc.UpdateStruggle(1, "recursion", "moderate", ""))
	require.NoError(t, svc.UpdateStruggle(1, "pointers", "mild", ""))

	memory, err := svc.GetMemory(1)
	require.NoError(t, err)
	require.Len(t, memory.Struggles, 2)
	assert.Equal(t, "Recursion", memory.Struggles[0].Topic)
	assert.Equal(t, 2, memory.Struggles[0].Count)
	assert.Equal(t, "moderate", memory.Struggles[0].Severity)
	// 没有新备注时保留旧备注
	assert.Equal(t, "stuck on base cases", memory.Struggles[0].Notes)
}

func TestAddInterestDeduplicates(t *testing.T) {
	repo := newFakeMemoryRepo()
	svc := NewMemoryService(repo)

	require.NoError(t, svc.AddInterest(1, "Go"))
	require.NoError(t, svc.AddInterest(1, "go"))
	require.NoError(t, svc.AddInterest(1, "  "))
	require.NoError(t, svc.AddGoal(1, "build a service"))

	memory, err := svc.GetMemory(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, memory.Profile.Interests)
	assert.Equal(t, []string{"build a service"}, memory.Profile.Goals)
}

func TestStoreEvaluationResultTrimsHistory(t *testing.T) {
	repo := newFakeMemoryRepo()
	svc := NewMemoryService(repo)

	for i := 0; i < 25; i++ {
		require.NoError(t, svc.StoreEvaluationResult(1, model.EvaluationSnapshot{ClarityScore: i}))
	}

	memory, err := svc.GetMemory(1)
	require.NoError(t, err)
	require.Len(t, memory.EvaluationHistory, 20)
	// 被裁剪的是最早的快照
	assert.Equal(t, 5, memory.EvaluationHistory[0].ClarityScore)
	assert.Equal(t, 24, memory.EvaluationHistory[19].ClarityScore)
}

func TestUpdateEffortMetricsStreak(t *testing.T) {
	repo := newFakeMemoryRepo()
	svc := NewMemoryService(repo)

	// 首次交互：连续天数为 1，会话数为 1
	n, err := svc.UpdateEffortMetrics(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	memory, _ := svc.GetMemory(1)
	assert.Equal(t, 1, memory.ConsistencyStreak)
	assert.Equal(t, 1, memory.TotalSessions)
	assert.Len(t, memory.SessionDates, 1)

	// 同一天的第二次交互：计数自增，连续天数与会话数不变
	n, err = svc.UpdateEffortMetrics(1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	memory, _ = svc.GetMemory(1)
	assert.Equal(t, 1, memory.ConsistencyStreak)
	assert.Equal(t, 1, memory.TotalSessions)

	// 昨天来过：连续天数 +1
	yesterday := time.Now().AddDate(0, 0, -1)
	repo.mu.Lock()
	repo.memories[1].LastSessionDate = &yesterday
	repo.memories[1].ConsistencyStreak = 3
	repo.mu.Unlock()

	_, err = svc.UpdateEffortMetrics(1)
	require.NoError(t, err)
	memory, _ = svc.GetMemory(1)
	assert.Equal(t, 4, memory.ConsistencyStreak)
	assert.Equal(t, 2, memory.TotalSessions)

	// 断档超过一天：连续天数重置为 1
	lastWeek := time.Now().AddDate(0, 0, -7)
	repo.mu.Lock()
	repo.memories[1].LastSessionDate = &lastWeek
	repo.memories[1].ConsistencyStreak = 9
	repo.mu.Unlock()

	_, err = svc.UpdateEffortMetrics(1)
	require.NoError(t, err)
	memory, _ = svc.GetMemory(1)
	assert.Equal(t, 1, memory.ConsistencyStreak)
	assert.Equal(t, 3, memory.TotalSessions)
}

func TestTruncateToDayCrossesDSTBoundary(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("时区数据不可用")
	}
	// 2026-03-08 凌晨夏令时开始，当地这一天只有 23 小时
	before := time.Date(2026, 3, 8, 9, 0, 0, 0, loc)
	after := time.Date(2026, 3, 9, 9, 0, 0, 0, loc)
	days := int(truncateToDay(after).Sub(truncateToDay(before)).Hours() / 24)
	assert.Equal(t, 1, days)
}

func TestUpdateLearnerTraits(t *testing.T) {
	repo := newFakeMemoryRepo()
	svc := NewMemoryService(repo)

	// 评估不足五次时不动画像
	require.NoError(t, svc.StoreEvaluationResult(1, model.EvaluationSnapshot{ClarityScore: 30}))
	require.NoError(t, svc.UpdateLearnerTraits(1))
	memory, _ := svc.GetMemory(1)
	assert.Empty(t, memory.Profile.Perseverance)

	// 低清晰度但持续出现：高毅力
	repo.mu.Lock()
	history := make([]model.EvaluationSnapshot, 10)
	for i := range history {
		history[i] = model.EvaluationSnapshot{ClarityScore: 30}
	}
	repo.memories[1].EvaluationHistory = history
	repo.memories[1].TotalSessions = 12
	repo.mu.Unlock()

	require.NoError(t, svc.UpdateLearnerTraits(1))
	memory, _ = svc.GetMemory(1)
	assert.Equal(t, "high", memory.Profile.Perseverance)
	assert.Equal(t, "moderate", memory.Profile.FrustrationTolerance)

	// 清晰度正常、会话数中等：中等毅力
	repo.mu.Lock()
	for i := range repo.memories[1].EvaluationHistory {
		repo.memories[1].EvaluationHistory[i].ClarityScore = 70
	}
	repo.memories[1].TotalSessions = 7
	repo.mu.Unlock()

	require.NoError(t, svc.UpdateLearnerTraits(1))
	memory, _ = svc.GetMemory(1)
	assert.Equal(t, "moderate", memory.Profile.Perseverance)
}

func TestUpdateLearnerTraitsFrustrationTolerance(t *testing.T) {
	seed := func(worsening, stable, sessions int) *fakeMemoryRepo {
		repo := newFakeMemoryRepo()
		repo.mu.Lock()
		var history []model.EvaluationSnapshot
		for i := 0; i < worsening; i++ {
			history = append(history, model.EvaluationSnapshot{ClarityScore: 50, ConfusionTrend: "worsening"})
		}
		for i := 0; i < stable; i++ {
			history = append(history, model.EvaluationSnapshot{ClarityScore: 50, ConfusionTrend: "stable"})
		}
		repo.memories[1] = &model.UserMemory{
			UserID:            1,
			EvaluationHistory: history,
			TotalSessions:     sessions,
		}
		repo.mu.Unlock()
		return repo
	}

	// 趋势反复恶化仍坚持学习：高耐受
	svc := NewMemoryService(seed(10, 5, 25))
	require.NoError(t, svc.UpdateLearnerTraits(1))
	memory, _ := svc.GetMemory(1)
	assert.Equal(t, "high", memory.Profile.FrustrationTolerance)

	// 恶化次数多但会话数不够：中等
	svc = NewMemoryService(seed(4, 2, 6))
	require.NoError(t, svc.UpdateLearnerTraits(1))
	memory, _ = svc.GetMemory(1)
	assert.Equal(t, "moderate", memory.Profile.FrustrationTolerance)

	// 恶化次数少：中等
	svc = NewMemoryService(seed(1, 6, 20))
	require.NoError(t, svc.UpdateLearnerTraits(1))
	memory, _ = svc.GetMemory(1)
	assert.Equal(t, "moderate", memory.Profile.FrustrationTolerance)
}

func TestCompleteOnboardingSetsPace(t *testing.T) {
	repo := newFakeMemoryRepo()
	svc := NewMemoryService(repo)

	err := svc.CompleteOnboarding(1, model.Onboarding{
		WhyHere:         "career change",
		ExperienceLevel: "beginner",
		MentoringStyle:  "gentle",
	})
	require.NoError(t, err)

	memory, _ := svc.GetMemory(1)
	assert.True(t, memory.Onboarding.IsComplete)
	assert.NotNil(t, memory.Onboarding.CompletedAt)
	assert.Equal(t, "slow", memory.Profile.LearningPace)

	// 重复提交被拒绝
	err = svc.CompleteOnboarding(1, model.Onboarding{ExperienceLevel: "advanced"})
	assert.Error(t, err)
}

func TestApplyEvaluationWritesBackProfile(t *testing.T) {
	repo := newFakeMemoryRepo()
	svc := NewMemoryService(repo)

	err := svc.ApplyEvaluation(1, model.EvaluationSnapshot{
		PaceAdjustment:         "slow_down",
		StageChangeRecommended: "growing",
		NewInterestDetected:    "databases",
		StruggleDetected:       "sql joins",
		StruggleSeverity:       "moderate",
	})
	require.NoError(t, err)

	memory, _ := svc.GetMemory(1)
	assert.Equal(t, "slow", memory.Profile.LearningPace)
	assert.Equal(t, "growing", memory.Profile.Stage)
	assert.Contains(t, memory.Profile.Interests, "databases")
	require.Len(t, memory.Struggles, 1)
	assert.Equal(t, "sql joins", memory.Struggles[0].Topic)
}
