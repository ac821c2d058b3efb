package service

import (
	"fmt"
	"strings"
	"time"

	"mentor-go/internal/config"
	"mentor-go/internal/model"
	"mentor-go/internal/repository"
)

// MemoryService 维护每个用户唯一的长期记忆：画像、困难、评估历史与坚持度指标。
type MemoryService interface {
	GetMemory(userID uint) (*model.UserMemory, error)

	UpdateStruggle(userID uint, topic, severity, notes string) error
	AddInterest(userID uint, interest string) error
	AddGoal(userID uint, goal string) error

	// StoreEvaluationResult 追加评估快照并裁剪历史到上限。
	StoreEvaluationResult(userID uint, snapshot model.EvaluationSnapshot) error
	// ApplyEvaluation 把评估结论回写进画像（节奏、阶段、新兴趣、困难）。
	ApplyEvaluation(userID uint, snapshot model.EvaluationSnapshot) error
	// ApplyRoadmapAnalysis 把反馈分析的节奏调整回写进画像。
	ApplyRoadmapAnalysis(userID uint, analysis model.AdjustmentAnalysis) error

	// UpdateEffortMetrics 原子自增交互计数、维护连续学习天数，
	// 返回自增后的总交互数（用于特质重算节奏）。
	UpdateEffortMetrics(userID uint) (int, error)
	// UpdateLearnerTraits 从评估历史推导毅力与挫折耐受，不足五次评估时跳过。
	UpdateLearnerTraits(userID uint) error

	GetOnboarding(userID uint) (*model.Onboarding, error)
	CompleteOnboarding(userID uint, answers model.Onboarding) error

	SetCurrentRoadmap(userID uint, roadmapID string) error
	IncrementRegenerations(userID uint) error
	UpdateContextSummary(userID uint, summary string) error
}

type memoryService struct {
	memoryRepo repository.MemoryRepository
}

// NewMemoryService 创建一个 MemoryService 实例。
func NewMemoryService(memoryRepo repository.MemoryRepository) MemoryService {
	return &memoryService{memoryRepo: memoryRepo}
}

func (s *memoryService) GetMemory(userID uint) (*model.UserMemory, error) {
	return s.memoryRepo.GetOrCreate(userID)
}

// UpdateStruggle 按主题小写去重：已存在则计数加一并刷新严重度与备注，
// 否则新增一条记录。
func (s *memoryService) UpdateStruggle(userID uint, topic, severity, notes string) error {
	if strings.TrimSpace(topic) == "" {
		return nil
	}
	if severity == "" {
		severity = "mild"
	}

	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return err
	}

	now := time.Now()
	found := false
	for i := range memory.Struggles {
		if strings.EqualFold(memory.Struggles[i].Topic, topic) {
			memory.Struggles[i].Count++
			memory.Struggles[i].Severity = severity
			memory.Struggles[i].LastSeen = now
			if notes != "" {
				memory.Struggles[i].Notes = notes
			}
			found = true
			break
		}
	}
	if !found {
		memory.Struggles = append(memory.Struggles, model.Struggle{
			Topic:    topic,
			Count:    1,
			Severity: severity,
			Notes:    notes,
			LastSeen: now,
		})
	}
	return s.memoryRepo.SaveStruggles(userID, memory.Struggles)
}

func (s *memoryService) AddInterest(userID uint, interest string) error {
	return s.appendProfileItem(userID, interest, func(p *model.UserProfile) *[]string { return &p.Interests })
}

func (s *memoryService) AddGoal(userID uint, goal string) error {
	return s.appendProfileItem(userID, goal, func(p *model.UserProfile) *[]string { return &p.Goals })
}

// appendProfileItem 大小写不敏感地去重追加画像列表项。
func (s *memoryService) appendProfileItem(userID uint, item string, pick func(*model.UserProfile) *[]string) error {
	item = strings.TrimSpace(item)
	if item == "" {
		return nil
	}
	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return err
	}
	list := pick(&memory.Profile)
	for _, existing := range *list {
		if strings.EqualFold(existing, item) {
			return nil
		}
	}
	*list = append(*list, item)
	return s.memoryRepo.UpdateFields(userID, map[string]interface{}{"profile": memory.Profile})
}

func (s *memoryService) StoreEvaluationResult(userID uint, snapshot model.EvaluationSnapshot) error {
	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return err
	}
	history := append(memory.EvaluationHistory, snapshot)
	limit := config.Conf.Agent.EvaluationHistoryCap
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return s.memoryRepo.SaveEvaluationHistory(userID, history)
}

func (s *memoryService) ApplyEvaluation(userID uint, snapshot model.EvaluationSnapshot) error {
	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return err
	}

	changed := false
	switch snapshot.PaceAdjustment {
	case "slow_down":
		if memory.Profile.LearningPace != "slow" {
			memory.Profile.LearningPace = "slow"
			changed = true
		}
	case "speed_up":
		if memory.Profile.LearningPace != "fast" {
			memory.Profile.LearningPace = "fast"
			changed = true
		}
	}
	if snapshot.StageChangeRecommended != "" && snapshot.StageChangeRecommended != memory.Profile.Stage {
		memory.Profile.Stage = snapshot.StageChangeRecommended
		changed = true
	}
	if changed {
		if err := s.memoryRepo.UpdateFields(userID, map[string]interface{}{"profile": memory.Profile}); err != nil {
			return err
		}
	}

	if snapshot.NewInterestDetected != "" {
		if err := s.AddInterest(userID, snapshot.NewInterestDetected); err != nil {
			return err
		}
	}
	if snapshot.StruggleDetected != "" {
		if err := s.UpdateStruggle(userID, snapshot.StruggleDetected, snapshot.StruggleSeverity, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *memoryService) ApplyRoadmapAnalysis(userID uint, analysis model.AdjustmentAnalysis) error {
	if analysis.NewLearningPace == "" {
		return nil
	}
	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return err
	}
	if memory.Profile.LearningPace == analysis.NewLearningPace {
		return nil
	}
	memory.Profile.LearningPace = analysis.NewLearningPace
	return s.memoryRepo.UpdateFields(userID, map[string]interface{}{"profile": memory.Profile})
}

func (s *memoryService) UpdateEffortMetrics(userID uint) (int, error) {
	interactions, err := s.memoryRepo.IncrementInteractions(userID)
	if err != nil {
		return 0, err
	}

	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return interactions, err
	}

	now := time.Now()
	today := truncateToDay(now)
	fields := map[string]interface{}{}

	if memory.LastSessionDate == nil {
		fields["consistency_streak"] = 1
		fields["last_session_date"] = today
	} else {
		last := truncateToDay(*memory.LastSessionDate)
		switch days := int(today.Sub(last).Hours() / 24); {
		case days == 0:
			// 同一天的后续交互不改变连续天数
		case days == 1:
			fields["consistency_streak"] = memory.ConsistencyStreak + 1
			fields["last_session_date"] = today
		default:
			fields["consistency_streak"] = 1
			fields["last_session_date"] = today
		}
	}

	// 新的一天算一次新会话
	if memory.LastSessionDate == nil || !truncateToDay(*memory.LastSessionDate).Equal(today) {
		if err := s.memoryRepo.IncrementSessions(userID); err != nil {
			return interactions, err
		}
		dates := append(memory.SessionDates, today)
		if limit := config.Conf.Agent.SessionDatesCap; limit > 0 && len(dates) > limit {
			dates = dates[len(dates)-limit:]
		}
		if err := s.memoryRepo.SaveSessionDates(userID, dates); err != nil {
			return interactions, err
		}
	}

	if len(fields) > 0 {
		if err := s.memoryRepo.UpdateFields(userID, fields); err != nil {
			return interactions, err
		}
	}
	return interactions, nil
}

// truncateToDay 把时间归一到 UTC 零点，保证跨夏令时的天数差仍是 24 小时的整数倍。
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *memoryService) UpdateLearnerTraits(userID uint) error {
	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return err
	}
	if len(memory.EvaluationHistory) < 5 {
		return nil
	}

	recent := memory.EvaluationHistory
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	sum := 0
	for _, e := range recent {
		sum += e.ClarityScore
	}
	avgClarity := sum / len(recent)

	perseverance := "low"
	switch {
	case memory.TotalSessions > 10 && avgClarity < 40:
		// 清晰度长期偏低却持续出现，是最强的毅力信号
		perseverance = "high"
	case memory.TotalSessions > 5:
		perseverance = "moderate"
	}

	// 挫折耐受：在趋势反复恶化后仍坚持学习，视为高耐受。
	// 统计口径是全部历史而非最近十条。
	worseningCount := 0
	for _, e := range memory.EvaluationHistory {
		if e.ConfusionTrend == "worsening" {
			worseningCount++
		}
	}
	frustrationTolerance := "moderate"
	switch {
	case worseningCount > 3 && memory.TotalSessions > worseningCount*2:
		frustrationTolerance = "high"
	case worseningCount > 2:
		frustrationTolerance = "moderate"
	default:
		// 两个分支目前都落在 moderate，阈值待校准
		frustrationTolerance = "moderate"
	}

	if memory.Profile.Perseverance == perseverance && memory.Profile.FrustrationTolerance == frustrationTolerance {
		return nil
	}
	memory.Profile.Perseverance = perseverance
	memory.Profile.FrustrationTolerance = frustrationTolerance
	return s.memoryRepo.UpdateFields(userID, map[string]interface{}{"profile": memory.Profile})
}

func (s *memoryService) GetOnboarding(userID uint) (*model.Onboarding, error) {
	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}
	return &memory.Onboarding, nil
}

// CompleteOnboarding 写入问卷作答并按经验水平初始化学习节奏。
func (s *memoryService) CompleteOnboarding(userID uint, answers model.Onboarding) error {
	memory, err := s.memoryRepo.GetOrCreate(userID)
	if err != nil {
		return err
	}
	if memory.Onboarding.IsComplete {
		return fmt.Errorf("入门问卷已完成")
	}

	now := time.Now()
	answers.IsComplete = true
	answers.CompletedAt = &now

	switch answers.ExperienceLevel {
	case "beginner":
		memory.Profile.LearningPace = "slow"
	case "advanced":
		memory.Profile.LearningPace = "fast"
	default:
		memory.Profile.LearningPace = "moderate"
	}

	return s.memoryRepo.UpdateFields(userID, map[string]interface{}{
		"onboarding": answers,
		"profile":    memory.Profile,
	})
}

func (s *memoryService) SetCurrentRoadmap(userID uint, roadmapID string) error {
	return s.memoryRepo.UpdateFields(userID, map[string]interface{}{"current_roadmap_id": roadmapID})
}

func (s *memoryService) IncrementRegenerations(userID uint) error {
	return s.memoryRepo.IncrementRegenerations(userID)
}

func (s *memoryService) UpdateContextSummary(userID uint, summary string) error {
	return s.memoryRepo.UpdateFields(userID, map[string]interface{}{"context_summary": summary})
}
