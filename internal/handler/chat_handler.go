package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"mentor-go/internal/service"
	"mentor-go/pkg/database"
	"mentor-go/pkg/log"
	"mentor-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责聊天 API：同步消息、语音消息、会话管理与 WebSocket 通道。
type ChatHandler struct {
	orchestrator  service.OrchestratorService
	chatService   service.ChatService
	memoryService service.MemoryService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(orchestrator service.OrchestratorService, chatService service.ChatService, memoryService service.MemoryService) *ChatHandler {
	return &ChatHandler{
		orchestrator:  orchestrator,
		chatService:   chatService,
		memoryService: memoryService,
	}
}

// ChatRequest 定义了发送消息 API 的请求体结构。
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
	ChatID  string `json:"chat_id"`
}

// requireOnboarding 在入门问卷完成前拦截聊天请求。
func (h *ChatHandler) requireOnboarding(c *gin.Context, userID uint) bool {
	onboarding, err := h.memoryService.GetOnboarding(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法读取用户记忆"})
		return false
	}
	if !onboarding.IsComplete {
		c.JSON(http.StatusForbidden, gin.H{
			"code":    http.StatusForbidden,
			"message": "onboarding_required",
			"data":    nil,
		})
		return false
	}
	return true
}

// SendMessage 处理一条同步聊天消息。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	userID := c.GetUint("userID")
	if !h.requireOnboarding(c, userID) {
		return
	}

	result := h.orchestrator.ProcessMessage(c.Request.Context(), userID, req.ChatID, req.Message)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// SendVoiceMessage 处理一条语音聊天消息：回复同时附带合成语音的下载地址。
func (h *ChatHandler) SendVoiceMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	userID := c.GetUint("userID")
	if !h.requireOnboarding(c, userID) {
		return
	}

	result := h.orchestrator.ProcessVoiceMessage(c.Request.Context(), userID, req.ChatID, req.Message)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// ListSessions 按最近活跃排序分页返回会话列表。
func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID := c.GetUint("userID")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, err := h.chatService.ListSessions(userID, limit, offset)
	if err != nil {
		log.Errorf("ListSessions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询会话失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    sessions,
	})
}

// ListMessages 返回会话内的消息，before 参数作为时间游标向前翻页。
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID := c.GetUint("userID")
	chatID := c.Param("chatId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before 参数应为 RFC3339 时间"})
			return
		}
		before = &t
	}

	messages, err := h.chatService.ListMessages(userID, chatID, limit, before)
	if errors.Is(err, service.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	if err != nil {
		log.Errorf("ListMessages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询消息失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    messages,
	})
}

// DeleteSession 删除会话及其全部消息。
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID := c.GetUint("userID")
	chatID := c.Param("chatId")

	if err := h.chatService.DeleteSession(c.Request.Context(), userID, chatID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "会话已删除",
		"data":    nil,
	})
}

// UpdateTitleRequest 定义了重命名会话的请求体结构。
type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

// UpdateTitle 重命名一个会话。
func (h *ChatHandler) UpdateTitle(c *gin.Context) {
	var req UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	userID := c.GetUint("userID")
	chatID := c.Param("chatId")

	if err := h.chatService.UpdateTitle(userID, chatID, req.Title); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    nil,
	})
}

// WebSocket 票据：浏览器无法在 ws 握手上带 Authorization 头，
// 所以先经认证的 HTTP 接口签发一次性短票据，ws 端点凭票换取身份。
const wsTicketTTL = 30 * time.Second

func wsTicketKey(ticket string) string {
	return "ws_ticket:" + ticket
}

// GetWebsocketTicket 签发一张 30 秒内有效的一次性 WebSocket 票据。
func (h *ChatHandler) GetWebsocketTicket(c *gin.Context) {
	userID := c.GetUint("userID")
	ticket := token.GenerateRandomString(32)

	if err := database.RDB.Set(c.Request.Context(), wsTicketKey(ticket), userID, wsTicketTTL).Err(); err != nil {
		log.Errorf("签发 WebSocket 票据失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签发票据失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"ticket":     ticket,
			"path":       "/chat/ws/:ticket",
			"expires_in": int(wsTicketTTL.Seconds()),
		},
	})
}

// redeemWSTicket 校验并销毁一张票据，返回其归属用户。GetDel 保证只能用一次。
func (h *ChatHandler) redeemWSTicket(c *gin.Context, ticket string) (uint, bool) {
	raw, err := database.RDB.GetDel(c.Request.Context(), wsTicketKey(ticket)).Result()
	if err != nil {
		return 0, false
	}
	userID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(userID), true
}

// wsInbound 是 WebSocket 通道上的一条入站消息。
type wsInbound struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id"`
	Voice   bool   `json:"voice"`
}

// HandleWS 处理一个 WebSocket 聊天连接：每条入站消息走与 HTTP
// 相同的编排链路，结果以 JSON 帧回发。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	userID, ok := h.redeemWSTicket(c, c.Param("ticket"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "票据无效或已过期", "data": nil})
		return
	}

	onboarding, err := h.memoryService.GetOnboarding(userID)
	if err != nil || !onboarding.IsComplete {
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "onboarding_required", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %d", userID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var inbound wsInbound
		if err := json.Unmarshal(raw, &inbound); err != nil || inbound.Message == "" {
			h.writeWSError(conn, "消息格式应为 {\"message\": \"...\"}")
			continue
		}

		var result *service.ChatResult
		if inbound.Voice {
			result = h.orchestrator.ProcessVoiceMessage(c.Request.Context(), userID, inbound.ChatID, inbound.Message)
		} else {
			result = h.orchestrator.ProcessMessage(c.Request.Context(), userID, inbound.ChatID, inbound.Message)
		}

		frame, _ := json.Marshal(gin.H{
			"type":      "reply",
			"data":      result,
			"timestamp": time.Now().UnixMilli(),
		})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Warnf("写入 WebSocket 回复失败: %v", err)
			break
		}
	}
}

func (h *ChatHandler) writeWSError(conn *websocket.Conn, msg string) {
	frame, _ := json.Marshal(gin.H{"type": "error", "message": msg})
	_ = conn.WriteMessage(websocket.TextMessage, frame)
}
