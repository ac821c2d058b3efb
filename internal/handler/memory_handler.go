package handler

import (
	"net/http"
	"strconv"

	"mentor-go/internal/model"
	"mentor-go/internal/service"
	"mentor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// MemoryHandler 负责用户记忆、入门问卷、仪表盘与轨迹查询的 API 请求。
type MemoryHandler struct {
	memoryService    service.MemoryService
	dashboardService service.DashboardService
	traceService     service.TraceService
}

// NewMemoryHandler 创建一个新的 MemoryHandler 实例。
func NewMemoryHandler(memoryService service.MemoryService, dashboardService service.DashboardService, traceService service.TraceService) *MemoryHandler {
	return &MemoryHandler{
		memoryService:    memoryService,
		dashboardService: dashboardService,
		traceService:     traceService,
	}
}

// GetMemory 返回当前用户的完整记忆读档。
func (h *MemoryHandler) GetMemory(c *gin.Context) {
	userID := c.GetUint("userID")
	memory, err := h.memoryService.GetMemory(userID)
	if err != nil {
		log.Errorf("GetMemory: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取用户记忆失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    memory,
	})
}

// GetOnboarding 返回入门问卷状态。
func (h *MemoryHandler) GetOnboarding(c *gin.Context) {
	userID := c.GetUint("userID")
	onboarding, err := h.memoryService.GetOnboarding(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取入门问卷失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    onboarding,
	})
}

// OnboardingRequest 定义了提交入门问卷的请求体结构。
type OnboardingRequest struct {
	WhyHere         string `json:"why_here" binding:"required"`
	GuidanceType    string `json:"guidance_type" binding:"required"`
	ExperienceLevel string `json:"experience_level" binding:"required,oneof=beginner intermediate advanced"`
	MentoringStyle  string `json:"mentoring_style" binding:"required,oneof=gentle supportive direct challenging"`
}

// CompleteOnboarding 提交入门问卷，完成后聊天功能解锁。
func (h *MemoryHandler) CompleteOnboarding(c *gin.Context) {
	var req OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	userID := c.GetUint("userID")

	err := h.memoryService.CompleteOnboarding(userID, model.Onboarding{
		WhyHere:         req.WhyHere,
		GuidanceType:    req.GuidanceType,
		ExperienceLevel: req.ExperienceLevel,
		MentoringStyle:  req.MentoringStyle,
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "入门问卷已完成"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "入门问卷已提交",
		"data":    nil,
	})
}

// GetDashboard 返回学习仪表盘。
func (h *MemoryHandler) GetDashboard(c *gin.Context) {
	userID := c.GetUint("userID")
	dashboard, err := h.dashboardService.GetDashboard(userID)
	if err != nil {
		log.Errorf("GetDashboard: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取仪表盘失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    dashboard,
	})
}

// GetTraces 查询最近的智能体轨迹事件，可按 trace_id 过滤。
func (h *MemoryHandler) GetTraces(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	traceID := c.Query("trace_id")

	events, err := h.traceService.Recent(c.Request.Context(), traceID, limit)
	if err != nil {
		log.Errorf("GetTraces: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询轨迹失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    events,
	})
}
