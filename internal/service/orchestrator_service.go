package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mentor-go/internal/agent"
	"mentor-go/internal/config"
	"mentor-go/internal/model"
	"mentor-go/pkg/log"
	"mentor-go/pkg/storage"
	"mentor-go/pkg/tts"

	"github.com/google/uuid"
)

// 主流程整体失败时返回的固定致歉文案。
const apologyReply = "I'm having a little trouble right now, but I'm still here. Could you say that again in a moment?"

// ChatResult 是一次编排后的聊天产物。
type ChatResult struct {
	ChatID    string                  `json:"chat_id"`
	MessageID string                  `json:"message_id"`
	Reply     string                  `json:"reply"`
	Strategy  *model.StrategyDecision `json:"strategy,omitempty"`
	AudioURL  string                  `json:"audio_url,omitempty"`
	Degraded  bool                    `json:"degraded,omitempty"`
}

// OrchestratorService 串起一轮交互的同步主链路：
// 会话解析、上下文聚合、策略规划、回复生成与持久化；
// 评估与记忆更新在回复返回后由后台协程完成。
type OrchestratorService interface {
	ProcessMessage(ctx context.Context, userID uint, chatID, message string) *ChatResult
	ProcessVoiceMessage(ctx context.Context, userID uint, chatID, message string) *ChatResult
}

type orchestratorService struct {
	chatSvc    ChatService
	contextSvc ContextService
	memorySvc  MemoryService
	traceSvc   TraceService
	planner    agent.Planner
	executor   agent.Executor
	evaluator  agent.Evaluator
	ttsClient  *tts.Client
}

// NewOrchestratorService 创建一个编排服务实例。
func NewOrchestratorService(
	chatSvc ChatService,
	contextSvc ContextService,
	memorySvc MemoryService,
	traceSvc TraceService,
	planner agent.Planner,
	executor agent.Executor,
	evaluator agent.Evaluator,
	ttsClient *tts.Client,
) OrchestratorService {
	return &orchestratorService{
		chatSvc:    chatSvc,
		contextSvc: contextSvc,
		memorySvc:  memorySvc,
		traceSvc:   traceSvc,
		planner:    planner,
		executor:   executor,
		evaluator:  evaluator,
		ttsClient:  ttsClient,
	}
}

func (s *orchestratorService) ProcessMessage(ctx context.Context, userID uint, chatID, message string) *ChatResult {
	return s.process(ctx, userID, chatID, message, false)
}

func (s *orchestratorService) ProcessVoiceMessage(ctx context.Context, userID uint, chatID, message string) *ChatResult {
	return s.process(ctx, userID, chatID, message, true)
}

// process 是同步主链路。任何一步失败都退化为固定致歉回复，
// 永远带回可用的 chat_id，前端不会丢失会话。
func (s *orchestratorService) process(ctx context.Context, userID uint, chatID, message string, voice bool) (result *ChatResult) {
	traceID := uuid.NewString()
	requestID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("编排主流程 panic: %v", r)
			s.traceSvc.Record(traceID, requestID, "orchestrator", "panic", map[string]interface{}{"recover": fmt.Sprint(r)})
			result = &ChatResult{ChatID: chatID, Reply: apologyReply, Degraded: true}
		}
	}()

	// 1. 会话解析
	session, err := s.chatSvc.GetOrCreateSession(userID, chatID)
	if err != nil {
		log.Errorf("会话解析失败: %v", err)
		return &ChatResult{ChatID: chatID, Reply: apologyReply, Degraded: true}
	}
	chatID = session.ID
	s.traceSvc.Record(traceID, requestID, "orchestrator", "session_resolved", map[string]interface{}{"chat_id": chatID})

	// 2. 用户消息先入库，之后任何一步失败都不会丢消息
	messageType := "text"
	if voice {
		messageType = "voice"
	}
	userMsg := &model.ChatMessage{
		ChatID:   chatID,
		UserID:   userID,
		Sender:   model.SenderUser,
		Content:  message,
		Metadata: model.MessageMetadata{MessageType: messageType},
	}
	if err := s.chatSvc.AppendMessage(ctx, userMsg); err != nil {
		log.Errorf("用户消息入库失败: %v", err)
		return &ChatResult{ChatID: chatID, Reply: apologyReply, Degraded: true}
	}

	// 3. 上下文聚合，窗口里剔除刚入库的本条消息
	snapshot, err := s.contextSvc.BuildContext(ctx, userID, chatID, config.Conf.Agent.ContextWindow, userMsg.ID)
	if err != nil {
		log.Errorf("上下文聚合失败: %v", err)
		return &ChatResult{ChatID: chatID, Reply: apologyReply, Degraded: true}
	}
	s.traceSvc.Record(traceID, requestID, "orchestrator", "context_built", map[string]interface{}{
		"struggles": len(snapshot.Struggles),
	})

	// 4. 策略规划（内部自带默认策略回退）
	strategy := s.planner.Plan(ctx, snapshot, message)
	s.traceSvc.Record(traceID, requestID, "planner", "strategy_decided", map[string]interface{}{
		"strategy": strategy.Strategy, "tone": strategy.Tone, "verbosity": strategy.Verbosity,
	})

	// 5. 生成回复
	var reply string
	if voice {
		reply = s.executor.RespondVoice(ctx, snapshot, strategy, message)
	} else {
		reply = s.executor.Respond(ctx, snapshot, strategy, message)
	}
	s.traceSvc.Record(traceID, requestID, "executor", "reply_generated", map[string]interface{}{
		"chars": len(reply), "voice": voice,
	})

	// 6. 语音合成（失败时降级为纯文本，不影响回复）
	audioURL := ""
	if voice && s.ttsClient != nil {
		audioURL = s.synthesize(ctx, userID, reply, traceID, requestID)
	}

	// 7. 导师消息入库，附带本轮策略
	mentorMsg := &model.ChatMessage{
		ChatID:  chatID,
		UserID:  userID,
		Sender:  model.SenderMentor,
		Content: reply,
		Metadata: model.MessageMetadata{
			MessageType:  messageType,
			VoiceEnabled: audioURL != "",
			Strategy:     &strategy,
		},
	}
	if err := s.chatSvc.AppendMessage(ctx, mentorMsg); err != nil {
		// 回复没有进入历史就不能交付，否则下一轮上下文会与用户看到的不一致
		log.Errorf("导师消息入库失败: %v", err)
		return &ChatResult{ChatID: chatID, Reply: apologyReply, Degraded: true}
	}

	// 8. 首条消息时生成会话标题
	if session.MessageCount == 0 {
		s.setInitialTitle(userID, chatID, strategy.ChatIntent, message)
	}

	// 9. 后台异步完善记忆，不阻塞响应
	go s.enrich(userID, snapshot, strategy, message, reply, traceID)

	return &ChatResult{
		ChatID:    chatID,
		MessageID: mentorMsg.ID,
		Reply:     reply,
		Strategy:  &strategy,
		AudioURL:  audioURL,
	}
}

// synthesize 合成语音并上传对象存储，返回 24 小时有效的预签名地址。
func (s *orchestratorService) synthesize(ctx context.Context, userID uint, reply, traceID, requestID string) string {
	audio, err := s.ttsClient.Synthesize(ctx, reply)
	if err != nil {
		log.Warnf("语音合成失败，降级为纯文本: %v", err)
		s.traceSvc.Record(traceID, requestID, "executor", "tts_degraded", map[string]interface{}{"error": err.Error()})
		return ""
	}
	bucket := config.Conf.MinIO.BucketName
	objectName := fmt.Sprintf("voice/%d/%s.mp3", userID, uuid.NewString())
	if err := storage.UploadAudio(ctx, bucket, objectName, audio); err != nil {
		return ""
	}
	url, err := storage.GetPresignedURL(bucket, objectName, 24*time.Hour)
	if err != nil {
		return ""
	}
	s.traceSvc.Record(traceID, requestID, "executor", "voice_stored", map[string]interface{}{"object": objectName})
	return url
}

// setInitialTitle 优先采用规划器给出的对话意图，否则截取消息前几个词。
func (s *orchestratorService) setInitialTitle(userID uint, chatID, intent, message string) {
	title := strings.TrimSpace(intent)
	if title != "" && !strings.EqualFold(title, "new conversation") {
		title = titleCase(title)
	} else {
		words := strings.Fields(message)
		if len(words) > 6 {
			words = words[:6]
		}
		title = strings.Join(words, " ")
	}
	if title == "" {
		return
	}
	if err := s.chatSvc.UpdateTitle(userID, chatID, title); err != nil {
		log.Warnf("更新会话标题失败: %v", err)
	}
}

// excerpt 截取消息开头作为困难记录的备注。
func excerpt(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > max {
		return string(runes[:max])
	}
	return string(runes)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		words[i] = strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
	return strings.Join(words, " ")
}

// enrich 是回复返回后的后台链路：困难探测、画像提示落库、
// 交互评估与坚持度指标更新。使用独立的 context，不随请求取消。
func (s *orchestratorService) enrich(userID uint, snapshot model.Context, strategy model.StrategyDecision, message, reply, traceID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("后台记忆更新 panic: %v", r)
		}
	}()

	ctx := context.Background()
	requestID := uuid.NewString()

	// 困难探测
	signal := s.evaluator.DetectStruggle(ctx, message)
	if signal.IsStruggle {
		if err := s.memorySvc.UpdateStruggle(userID, signal.Topic, signal.Severity, excerpt(message, 200)); err != nil {
			log.Warnf("记录困难失败: %v", err)
		}
		s.traceSvc.Record(traceID, requestID, "evaluator", "struggle_detected", map[string]interface{}{
			"topic": signal.Topic, "severity": signal.Severity,
		})
	}

	// 规划器附带的记忆提示；困难提示与探测结果重复时跳过
	hints := strategy.MemoryUpdate
	if hints.NewInterest != "" {
		if err := s.memorySvc.AddInterest(userID, hints.NewInterest); err != nil {
			log.Warnf("记录新兴趣失败: %v", err)
		}
	}
	if hints.NewGoal != "" {
		if err := s.memorySvc.AddGoal(userID, hints.NewGoal); err != nil {
			log.Warnf("记录新目标失败: %v", err)
		}
	}
	if hints.StruggleDetected != "" && !(signal.IsStruggle && strings.EqualFold(signal.Topic, hints.StruggleDetected)) {
		if err := s.memorySvc.UpdateStruggle(userID, hints.StruggleDetected, "mild", ""); err != nil {
			log.Warnf("记录困难提示失败: %v", err)
		}
	}

	// 交互评估（内部自带中性快照回退）
	evaluation := s.evaluator.EvaluateInteraction(ctx, snapshot, message, reply)
	s.traceSvc.Record(traceID, requestID, "evaluator", "interaction_evaluated", map[string]interface{}{
		"clarity": evaluation.ClarityScore, "trend": evaluation.ConfusionTrend,
	})
	if err := s.memorySvc.ApplyEvaluation(userID, evaluation); err != nil {
		log.Warnf("回写评估结论失败: %v", err)
	}
	if err := s.memorySvc.StoreEvaluationResult(userID, evaluation); err != nil {
		log.Warnf("保存评估快照失败: %v", err)
	}

	// 坚持度指标；按配置的节奏触发学习者特质重算
	interactions, err := s.memorySvc.UpdateEffortMetrics(userID)
	if err != nil {
		log.Warnf("更新坚持度指标失败: %v", err)
		return
	}
	every := config.Conf.Agent.TraitRecomputeEvery
	if every > 0 && interactions%every == 0 {
		if err := s.memorySvc.UpdateLearnerTraits(userID); err != nil {
			log.Warnf("重算学习者特质失败: %v", err)
		}
		s.traceSvc.Record(traceID, requestID, "evaluator", "traits_recomputed", nil)
	}
}
