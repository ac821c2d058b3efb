package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentor-go/internal/agent"
	"mentor-go/internal/model"
	"mentor-go/internal/repository"
	"mentor-go/pkg/log"
)

var (
	// ErrGenerationFailed 表示路线图生成或再生成失败。
	// 再生成失败时旧版本保持归档状态，不回滚。
	ErrGenerationFailed = errors.New("roadmap generation failed")
	ErrStepNotFound     = errors.New("roadmap step not found")
	ErrNoActiveRoadmap  = errors.New("no active roadmap")
)

// RoadmapService 管理版本化的学习路线图及其反馈闭环。
type RoadmapService interface {
	Generate(ctx context.Context, userID uint, goal string) (*model.Roadmap, error)
	GetActive(userID uint) (*model.Roadmap, error)
	GetByID(userID uint, roadmapID string) (*model.Roadmap, error)
	ListArchived(userID uint) ([]model.Roadmap, error)

	// SubmitStepFeedback 双写反馈：步骤内嵌列表追加一条，
	// 独立反馈表留档一条（跨版本保留）。
	SubmitStepFeedback(userID uint, roadmapID, stepID, feedbackType, message string) error
	MarkStepComplete(userID uint, roadmapID, stepID string) (*model.Roadmap, error)

	// Regenerate 分析累计反馈并生成新版本。旧版本先归档；
	// 生成失败时返回 ErrGenerationFailed 且旧版本保持归档。
	Regenerate(ctx context.Context, userID uint) (*model.Roadmap, error)
}

type roadmapService struct {
	roadmapRepo repository.RoadmapRepository
	memorySvc   MemoryService
	contextSvc  ContextService
	executor    agent.Executor
	evaluator   agent.Evaluator
	traceSvc    TraceService
}

// NewRoadmapService 创建一个 RoadmapService 实例。
func NewRoadmapService(
	roadmapRepo repository.RoadmapRepository,
	memorySvc MemoryService,
	contextSvc ContextService,
	executor agent.Executor,
	evaluator agent.Evaluator,
	traceSvc TraceService,
) RoadmapService {
	return &roadmapService{
		roadmapRepo: roadmapRepo,
		memorySvc:   memorySvc,
		contextSvc:  contextSvc,
		executor:    executor,
		evaluator:   evaluator,
		traceSvc:    traceSvc,
	}
}

func (s *roadmapService) Generate(ctx context.Context, userID uint, goal string) (*model.Roadmap, error) {
	snapshot, err := s.contextSvc.BuildContext(ctx, userID, "", 0, "")
	if err != nil {
		return nil, err
	}

	roadmap := s.executor.GenerateRoadmap(ctx, snapshot, goal)
	if roadmap == nil {
		return nil, ErrGenerationFailed
	}
	roadmap.UserID = userID

	// 先归档旧的，再落新的：任一时刻最多一个激活版本
	if err := s.roadmapRepo.ArchiveAllActive(userID); err != nil {
		return nil, err
	}
	if err := s.roadmapRepo.Create(roadmap); err != nil {
		return nil, err
	}
	if err := s.memorySvc.SetCurrentRoadmap(userID, roadmap.ID); err != nil {
		log.Warnf("更新当前路线图指针失败: %v", err)
	}
	return roadmap, nil
}

func (s *roadmapService) GetActive(userID uint) (*model.Roadmap, error) {
	roadmap, err := s.roadmapRepo.GetActive(userID)
	if errors.Is(err, repository.ErrRoadmapNotFound) {
		return nil, ErrNoActiveRoadmap
	}
	return roadmap, err
}

func (s *roadmapService) GetByID(userID uint, roadmapID string) (*model.Roadmap, error) {
	return s.roadmapRepo.GetByID(roadmapID, userID)
}

func (s *roadmapService) ListArchived(userID uint) ([]model.Roadmap, error) {
	return s.roadmapRepo.ListArchived(userID)
}

func (s *roadmapService) SubmitStepFeedback(userID uint, roadmapID, stepID, feedbackType, message string) error {
	roadmap, err := s.roadmapRepo.GetByID(roadmapID, userID)
	if err != nil {
		return err
	}

	now := time.Now()
	stageID := ""
	found := false
	for i := range roadmap.Stages {
		for j := range roadmap.Stages[i].Steps {
			step := &roadmap.Stages[i].Steps[j]
			if step.ID != stepID {
				continue
			}
			step.UserFeedback = append(step.UserFeedback, model.StepFeedback{
				FeedbackType: feedbackType,
				Message:      message,
				CreatedAt:    now,
			})
			// 负向反馈同时把步骤状态切过去；已完成的步骤不回退
			if step.Status != model.StepCompleted && isStepStatus(feedbackType) {
				step.Status = feedbackType
			}
			stageID = roadmap.Stages[i].ID
			found = true
			break
		}
		if found {
			break
		}
	}
	if !found {
		return ErrStepNotFound
	}

	if err := s.roadmapRepo.UpdateStages(roadmap); err != nil {
		return err
	}
	return s.roadmapRepo.CreateFeedback(&model.RoadmapFeedback{
		UserID:         userID,
		RoadmapID:      roadmapID,
		RoadmapVersion: roadmap.Version,
		StageID:        stageID,
		StepID:         stepID,
		FeedbackType:   feedbackType,
		Message:        message,
	})
}

func isStepStatus(feedbackType string) bool {
	switch feedbackType {
	case model.StepStuck, model.StepNeedsHelp, model.StepNotClear, model.StepFlagged,
		model.StepActive, model.StepInProgress:
		return true
	}
	return false
}

func (s *roadmapService) MarkStepComplete(userID uint, roadmapID, stepID string) (*model.Roadmap, error) {
	roadmap, err := s.roadmapRepo.GetByID(roadmapID, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	found := false
	for i := range roadmap.Stages {
		for j := range roadmap.Stages[i].Steps {
			step := &roadmap.Stages[i].Steps[j]
			if step.ID != stepID {
				continue
			}
			if step.Status != model.StepCompleted {
				step.Status = model.StepCompleted
				step.CompletedAt = &now
			}
			found = true
			break
		}
		if found {
			break
		}
	}
	if !found {
		return nil, ErrStepNotFound
	}

	recountSteps(roadmap)
	if err := s.roadmapRepo.UpdateStages(roadmap); err != nil {
		return nil, err
	}
	return roadmap, nil
}

// recountSteps 重新统计总步骤与完成数，并推导阶段状态。
func recountSteps(roadmap *model.Roadmap) {
	total, completed := 0, 0
	for i := range roadmap.Stages {
		stageCompleted := 0
		for _, step := range roadmap.Stages[i].Steps {
			total++
			if step.Status == model.StepCompleted {
				completed++
				stageCompleted++
			}
		}
		switch {
		case len(roadmap.Stages[i].Steps) > 0 && stageCompleted == len(roadmap.Stages[i].Steps):
			roadmap.Stages[i].Status = model.StepCompleted
		case stageCompleted > 0:
			roadmap.Stages[i].Status = model.StepInProgress
		}
	}
	roadmap.TotalSteps = total
	roadmap.CompletedSteps = completed
}

func (s *roadmapService) Regenerate(ctx context.Context, userID uint) (*model.Roadmap, error) {
	old, err := s.roadmapRepo.GetActive(userID)
	if errors.Is(err, repository.ErrRoadmapNotFound) {
		return nil, ErrNoActiveRoadmap
	}
	if err != nil {
		return nil, err
	}

	feedbacks, err := s.roadmapRepo.ListFeedback(old.ID)
	if err != nil {
		return nil, err
	}

	analysis := s.evaluator.AnalyzeRoadmapFeedback(ctx, old, feedbacks)
	s.traceSvc.Record(old.ID, "", "evaluator", "feedback_analyzed", map[string]interface{}{
		"action": analysis.Action, "simplify": analysis.ShouldSimplify,
	})
	if err := s.memorySvc.ApplyRoadmapAnalysis(userID, analysis); err != nil {
		log.Warnf("回写节奏调整失败: %v", err)
	}

	snapshot, err := s.contextSvc.BuildContext(ctx, userID, "", 0, "")
	if err != nil {
		return nil, err
	}

	// 先归档再生成。生成失败不回滚：宁可没有激活版本，
	// 也不让学员面对一份已被判定失效的路线图。
	if err := s.roadmapRepo.ArchiveAllActive(userID); err != nil {
		return nil, err
	}

	next := s.executor.RegenerateRoadmap(ctx, snapshot, old, analysis, feedbacks)
	if next == nil {
		return nil, fmt.Errorf("%w: previous version %s stays archived", ErrGenerationFailed, old.ID)
	}
	next.UserID = userID
	next.Version = old.Version + 1
	next.PreviousVersionID = old.ID
	next.Goal = old.Goal
	carryCompletedSteps(old, next)
	recountSteps(next)

	if err := s.roadmapRepo.Create(next); err != nil {
		return nil, err
	}
	if err := s.memorySvc.SetCurrentRoadmap(userID, next.ID); err != nil {
		log.Warnf("更新当前路线图指针失败: %v", err)
	}
	if err := s.memorySvc.IncrementRegenerations(userID); err != nil {
		log.Warnf("累计再生成次数失败: %v", err)
	}
	return next, nil
}

// carryCompletedSteps 把旧版本里已完成的同名步骤在新版本中标记为完成。
func carryCompletedSteps(old, next *model.Roadmap) {
	completed := make(map[string]*time.Time)
	for _, stage := range old.Stages {
		for _, step := range stage.Steps {
			if step.Status == model.StepCompleted {
				completed[step.Title] = step.CompletedAt
			}
		}
	}
	for i := range next.Stages {
		for j := range next.Stages[i].Steps {
			step := &next.Stages[i].Steps[j]
			if at, ok := completed[step.Title]; ok {
				step.Status = model.StepCompleted
				step.CompletedAt = at
			}
		}
	}
}
