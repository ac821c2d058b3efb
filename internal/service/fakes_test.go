package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"mentor-go/internal/config"
	"mentor-go/internal/model"
	"mentor-go/internal/repository"
	"mentor-go/pkg/log"

	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	config.Conf.Agent = config.AgentConfig{
		ContextWindow:        10,
		EvaluationHistoryCap: 20,
		SessionDatesCap:      100,
		TraitRecomputeEvery:  5,
	}
	os.Exit(m.Run())
}

// fakeMemoryRepo 是 MemoryRepository 的内存实现。
type fakeMemoryRepo struct {
	mu       sync.Mutex
	memories map[uint]*model.UserMemory
}

func newFakeMemoryRepo() *fakeMemoryRepo {
	return &fakeMemoryRepo{memories: make(map[uint]*model.UserMemory)}
}

func (f *fakeMemoryRepo) GetByUserID(userID uint) (*model.UserMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMemoryRepo) GetOrCreate(userID uint) (*model.UserMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[userID]
	if !ok {
		m = &model.UserMemory{
			UserID: userID,
			Profile: model.UserProfile{
				Stage:        "seedling",
				LearningPace: "moderate",
			},
		}
		f.memories[userID] = m
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMemoryRepo) UpdateFields(userID uint, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.memories[userID]
	for k, v := range fields {
		switch k {
		case "profile":
			m.Profile = v.(model.UserProfile)
		case "onboarding":
			m.Onboarding = v.(model.Onboarding)
		case "consistency_streak":
			m.ConsistencyStreak = v.(int)
		case "last_session_date":
			t := v.(time.Time)
			m.LastSessionDate = &t
		case "current_roadmap_id":
			m.CurrentRoadmapID = v.(string)
		case "context_summary":
			m.ContextSummary = v.(string)
		}
	}
	return nil
}

func (f *fakeMemoryRepo) SaveStruggles(userID uint, struggles []model.Struggle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories[userID].Struggles = struggles
	return nil
}

func (f *fakeMemoryRepo) SaveEvaluationHistory(userID uint, history []model.EvaluationSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories[userID].EvaluationHistory = history
	return nil
}

func (f *fakeMemoryRepo) SaveSessionDates(userID uint, dates []time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories[userID].SessionDates = dates
	return nil
}

func (f *fakeMemoryRepo) IncrementInteractions(userID uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.memories[userID]
	if m == nil {
		m = &model.UserMemory{UserID: userID}
		f.memories[userID] = m
	}
	m.TotalInteractions++
	return m.TotalInteractions, nil
}

func (f *fakeMemoryRepo) IncrementSessions(userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories[userID].TotalSessions++
	return nil
}

func (f *fakeMemoryRepo) IncrementRegenerations(userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories[userID].RegenerationCount++
	return nil
}

// fakeRoadmapRepo 是 RoadmapRepository 的内存实现。
type fakeRoadmapRepo struct {
	mu        sync.Mutex
	roadmaps  map[string]*model.Roadmap
	feedbacks []model.RoadmapFeedback
}

func newFakeRoadmapRepo() *fakeRoadmapRepo {
	return &fakeRoadmapRepo{roadmaps: make(map[string]*model.Roadmap)}
}

func (f *fakeRoadmapRepo) Create(roadmap *model.Roadmap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *roadmap
	f.roadmaps[roadmap.ID] = &cp
	return nil
}

func (f *fakeRoadmapRepo) GetByID(id string, userID uint) (*model.Roadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roadmaps[id]
	if !ok || r.UserID != userID {
		return nil, repository.ErrRoadmapNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRoadmapRepo) GetActive(userID uint) (*model.Roadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.Roadmap
	for _, r := range f.roadmaps {
		if r.UserID == userID && r.IsActive {
			if best == nil || r.Version > best.Version {
				best = r
			}
		}
	}
	if best == nil {
		return nil, repository.ErrRoadmapNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeRoadmapRepo) ListArchived(userID uint) ([]model.Roadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Roadmap
	for _, r := range f.roadmaps {
		if r.UserID == userID && !r.IsActive {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRoadmapRepo) ArchiveAllActive(userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, r := range f.roadmaps {
		if r.UserID == userID && r.IsActive {
			r.IsActive = false
			r.ArchivedAt = &now
		}
	}
	return nil
}

func (f *fakeRoadmapRepo) UpdateStages(roadmap *model.Roadmap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roadmaps[roadmap.ID]
	if !ok {
		return repository.ErrRoadmapNotFound
	}
	r.Stages = roadmap.Stages
	r.TotalSteps = roadmap.TotalSteps
	r.CompletedSteps = roadmap.CompletedSteps
	return nil
}

func (f *fakeRoadmapRepo) CreateFeedback(feedback *model.RoadmapFeedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	feedback.ID = uint(len(f.feedbacks) + 1)
	f.feedbacks = append(f.feedbacks, *feedback)
	return nil
}

func (f *fakeRoadmapRepo) ListFeedback(roadmapID string) ([]model.RoadmapFeedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.RoadmapFeedback
	for _, fb := range f.feedbacks {
		if fb.RoadmapID == roadmapID {
			out = append(out, fb)
		}
	}
	return out, nil
}

// fakeChatRepo 是 ChatRepository 的内存实现。
type fakeChatRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
	messages map[string][]model.ChatMessage
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		sessions: make(map[string]*model.ChatSession),
		messages: make(map[string][]model.ChatMessage),
	}
}

func (f *fakeChatRepo) CreateSession(session *model.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f *fakeChatRepo) GetSession(chatID string) (*model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[chatID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeChatRepo) GetActiveSession(userID uint) (*model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.ChatSession
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			if best == nil || s.UpdatedAt.After(best.UpdatedAt) {
				best = s
			}
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeChatRepo) ListSessions(userID uint, limit, offset int) ([]model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ChatSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeChatRepo) UpdateTitle(chatID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[chatID]; ok {
		s.Title = title
	}
	return nil
}

func (f *fakeChatRepo) TouchSession(chatID, preview string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[chatID]; ok {
		s.MessageCount++
		s.LastMessagePreview = preview
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeChatRepo) DeleteSession(chatID string, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[chatID]
	if !ok || s.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	delete(f.sessions, chatID)
	delete(f.messages, chatID)
	return nil
}

func (f *fakeChatRepo) CreateMessage(msg *model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[msg.ChatID] = append(f.messages[msg.ChatID], *msg)
	return nil
}

func (f *fakeChatRepo) ListMessages(chatID string, limit int, before *time.Time) ([]model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[chatID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]model.ChatMessage(nil), msgs...), nil
}

func (f *fakeChatRepo) RecentMessages(chatID string, n int) ([]model.ChatMessage, error) {
	return f.ListMessages(chatID, n, nil)
}

// failingChatRepo 在指定发送方的消息入库时返回错误，其余行为同 fakeChatRepo。
type failingChatRepo struct {
	*fakeChatRepo
	failSender string
}

func (f *failingChatRepo) CreateMessage(msg *model.ChatMessage) error {
	if msg.Sender == f.failSender {
		return errors.New("数据库写入失败")
	}
	return f.fakeChatRepo.CreateMessage(msg)
}

// fakeContextCache 是 ContextCache 的内存实现。
type fakeContextCache struct {
	mu      sync.Mutex
	windows map[string][]model.ChatMessage
}

func newFakeContextCache() *fakeContextCache {
	return &fakeContextCache{windows: make(map[string][]model.ChatMessage)}
}

func (f *fakeContextCache) Recent(ctx context.Context, chatID string, n int) ([]model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.windows[chatID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]model.ChatMessage(nil), msgs...), nil
}

func (f *fakeContextCache) Push(ctx context.Context, chatID string, msg model.ChatMessage, window int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := append(f.windows[chatID], msg)
	if len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	f.windows[chatID] = msgs
	return nil
}

func (f *fakeContextCache) Invalidate(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, chatID)
	return nil
}

// noopTraceService 丢弃所有追踪事件。
type noopTraceService struct{}

func (noopTraceService) Record(traceID, requestID, agent, action string, details map[string]interface{}) {
}

func (noopTraceService) Recent(ctx context.Context, traceID string, limit int) ([]model.TraceEvent, error) {
	return nil, nil
}

// 固定输出的智能体桩。
type stubPlanner struct{ decision model.StrategyDecision }

func (s stubPlanner) Plan(ctx context.Context, c model.Context, message string) model.StrategyDecision {
	return s.decision
}

type stubExecutor struct {
	reply      string
	voiceReply string
	roadmap    *model.Roadmap
	regen      *model.Roadmap
}

func (s stubExecutor) Respond(ctx context.Context, c model.Context, strategy model.StrategyDecision, message string) string {
	return s.reply
}

func (s stubExecutor) RespondVoice(ctx context.Context, c model.Context, strategy model.StrategyDecision, message string) string {
	return s.voiceReply
}

func (s stubExecutor) GenerateRoadmap(ctx context.Context, c model.Context, goal string) *model.Roadmap {
	return s.roadmap
}

func (s stubExecutor) RegenerateRoadmap(ctx context.Context, c model.Context, old *model.Roadmap, analysis model.AdjustmentAnalysis, feedbacks []model.RoadmapFeedback) *model.Roadmap {
	return s.regen
}

type stubEvaluator struct {
	snapshot model.EvaluationSnapshot
	signal   model.StruggleSignal
	analysis model.AdjustmentAnalysis
}

func (s stubEvaluator) EvaluateInteraction(ctx context.Context, c model.Context, userMessage, mentorReply string) model.EvaluationSnapshot {
	return s.snapshot
}

func (s stubEvaluator) DetectStruggle(ctx context.Context, message string) model.StruggleSignal {
	return s.signal
}

func (s stubEvaluator) AnalyzeRoadmapFeedback(ctx context.Context, roadmap *model.Roadmap, feedbacks []model.RoadmapFeedback) model.AdjustmentAnalysis {
	return s.analysis
}
