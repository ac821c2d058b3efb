package service

import (
	"testing"

	"mentor-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMomentum(t *testing.T) {
	assert.Equal(t, "accelerating", classifyMomentum(75, "improving"))
	assert.Equal(t, "steady", classifyMomentum(75, "stable"))
	assert.Equal(t, "steady", classifyMomentum(55, "stable"))
	assert.Equal(t, "building", classifyMomentum(55, "worsening"))
	assert.Equal(t, "building", classifyMomentum(35, "stable"))
	assert.Equal(t, "building", classifyMomentum(20, "improving"))
	assert.Equal(t, "struggling", classifyMomentum(20, "worsening"))
	assert.Equal(t, "struggling", classifyMomentum(20, "stable"))
}

func TestClarityStats(t *testing.T) {
	avg, trend := clarityStats(nil)
	assert.Equal(t, 50, avg)
	assert.Equal(t, "stable", trend)

	avg, trend = clarityStats([]model.EvaluationSnapshot{
		{ClarityScore: 60, ConfusionTrend: "improving"},
		{ClarityScore: 80, ConfusionTrend: "improving"},
		{ClarityScore: 70, ConfusionTrend: "worsening"},
	})
	assert.Equal(t, 70, avg)
	assert.Equal(t, "improving", trend)
}

func TestGetDashboardAggregates(t *testing.T) {
	memRepo := newFakeMemoryRepo()
	roadmapRepo := newFakeRoadmapRepo()
	memorySvc := NewMemoryService(memRepo)
	svc := NewDashboardService(memorySvc, roadmapRepo)

	// 最近五次评估决定势头，更早的被忽略
	for i := 0; i < 8; i++ {
		score := 10
		if i >= 3 {
			score = 80
		}
		require.NoError(t, memorySvc.StoreEvaluationResult(1, model.EvaluationSnapshot{
			ClarityScore: score, ConfusionTrend: "improving",
		}))
	}

	roadmap := sampleRoadmap("r1", 1)
	roadmap.UserID = 1
	require.NoError(t, roadmapRepo.Create(roadmap))

	dashboard, err := svc.GetDashboard(1)
	require.NoError(t, err)
	assert.Equal(t, 80, dashboard.AverageClarity)
	assert.Equal(t, "accelerating", dashboard.Momentum)
	assert.Len(t, dashboard.RecentEvaluations, 5)
	require.NotNil(t, dashboard.ActiveRoadmap)
	assert.Equal(t, "r1", dashboard.ActiveRoadmap.ID)
}
