package service

import (
	"mentor-go/internal/model"
	"mentor-go/internal/repository"
)

// Dashboard 是学习仪表盘的聚合视图。
type Dashboard struct {
	Profile           model.UserProfile          `json:"profile"`
	TotalInteractions int                        `json:"total_interactions"`
	TotalSessions     int                        `json:"total_sessions"`
	ConsistencyStreak int                        `json:"consistency_streak"`
	RegenerationCount int                        `json:"regeneration_count"`
	Momentum          string                     `json:"momentum"`
	AverageClarity    int                        `json:"average_clarity"`
	ClarityTrend      string                     `json:"clarity_trend"`
	Struggles         []model.Struggle           `json:"struggles"`
	RecentEvaluations []model.EvaluationSnapshot `json:"recent_evaluations"`
	ActiveRoadmap     *model.Roadmap             `json:"active_roadmap,omitempty"`
}

// DashboardService 汇总记忆与路线图数据，并给出学习势头分类。
type DashboardService interface {
	GetDashboard(userID uint) (*Dashboard, error)
}

type dashboardService struct {
	memorySvc   MemoryService
	roadmapRepo repository.RoadmapRepository
}

// NewDashboardService 创建一个 DashboardService 实例。
func NewDashboardService(memorySvc MemoryService, roadmapRepo repository.RoadmapRepository) DashboardService {
	return &dashboardService{memorySvc: memorySvc, roadmapRepo: roadmapRepo}
}

func (s *dashboardService) GetDashboard(userID uint) (*Dashboard, error) {
	memory, err := s.memorySvc.GetMemory(userID)
	if err != nil {
		return nil, err
	}

	recent := memory.EvaluationHistory
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	avg, trend := clarityStats(recent)

	dashboard := &Dashboard{
		Profile:           memory.Profile,
		TotalInteractions: memory.TotalInteractions,
		TotalSessions:     memory.TotalSessions,
		ConsistencyStreak: memory.ConsistencyStreak,
		RegenerationCount: memory.RegenerationCount,
		Momentum:          classifyMomentum(avg, trend),
		AverageClarity:    avg,
		ClarityTrend:      trend,
		Struggles:         memory.Struggles,
		RecentEvaluations: recent,
	}

	if roadmap, err := s.roadmapRepo.GetActive(userID); err == nil {
		dashboard.ActiveRoadmap = roadmap
	}
	return dashboard, nil
}

// clarityStats 计算最近评估的平均清晰度和主导趋势。
func clarityStats(recent []model.EvaluationSnapshot) (int, string) {
	if len(recent) == 0 {
		return 50, "stable"
	}
	sum, improving, worsening := 0, 0, 0
	for _, e := range recent {
		sum += e.ClarityScore
		switch e.ConfusionTrend {
		case "improving":
			improving++
		case "worsening":
			worsening++
		}
	}
	trend := "stable"
	if improving > worsening {
		trend = "improving"
	} else if worsening > improving {
		trend = "worsening"
	}
	return sum / len(recent), trend
}

// classifyMomentum 把平均清晰度和趋势映射为学习势头档位。
func classifyMomentum(avgClarity int, trend string) string {
	switch {
	case avgClarity >= 70 && trend == "improving":
		return "accelerating"
	case avgClarity >= 50 && trend != "worsening":
		return "steady"
	case avgClarity >= 30 || trend == "improving":
		return "building"
	default:
		return "struggling"
	}
}
