package handler

import (
	"errors"
	"net/http"

	"mentor-go/internal/model"
	"mentor-go/internal/repository"
	"mentor-go/internal/service"
	"mentor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RoadmapHandler 负责学习路线图相关的 API 请求。
type RoadmapHandler struct {
	roadmapService service.RoadmapService
}

// NewRoadmapHandler 创建一个新的 RoadmapHandler 实例。
func NewRoadmapHandler(roadmapService service.RoadmapService) *RoadmapHandler {
	return &RoadmapHandler{roadmapService: roadmapService}
}

// GenerateRequest 定义了生成路线图的请求体结构。
type GenerateRequest struct {
	Goal string `json:"goal" binding:"required"`
}

// Generate 为当前用户生成一份新路线图，旧的激活版本会被归档。
func (h *RoadmapHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：goal 不能为空"})
		return
	}
	userID := c.GetUint("userID")

	roadmap, err := h.roadmapService.Generate(c.Request.Context(), userID, req.Goal)
	if errors.Is(err, service.ErrGenerationFailed) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "路线图生成失败，请稍后重试"})
		return
	}
	if err != nil {
		log.Errorf("Generate roadmap: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "路线图生成失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    roadmap,
	})
}

// GetActive 返回当前激活的路线图。
func (h *RoadmapHandler) GetActive(c *gin.Context) {
	userID := c.GetUint("userID")
	roadmap, err := h.roadmapService.GetActive(userID)
	if errors.Is(err, service.ErrNoActiveRoadmap) {
		c.JSON(http.StatusNotFound, gin.H{"error": "当前没有激活的路线图"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询路线图失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    roadmap,
	})
}

// GetByID 按 ID 返回路线图（含归档版本）。
func (h *RoadmapHandler) GetByID(c *gin.Context) {
	userID := c.GetUint("userID")
	roadmap, err := h.roadmapService.GetByID(userID, c.Param("roadmapId"))
	if errors.Is(err, repository.ErrRoadmapNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "路线图不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询路线图失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    roadmap,
	})
}

// ListArchived 返回历史版本列表。
func (h *RoadmapHandler) ListArchived(c *gin.Context) {
	userID := c.GetUint("userID")
	roadmaps, err := h.roadmapService.ListArchived(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询历史版本失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    roadmaps,
	})
}

// StepFeedbackRequest 定义了提交步骤反馈的请求体结构。
type StepFeedbackRequest struct {
	FeedbackType string `json:"feedback_type" binding:"required"`
	Message      string `json:"message"`
}

var allowedFeedbackTypes = map[string]bool{
	model.StepStuck:      true,
	model.StepNeedsHelp:  true,
	model.StepNotClear:   true,
	model.StepFlagged:    true,
	model.StepActive:     true,
	model.StepInProgress: true,
}

// SubmitStepFeedback 提交一条步骤反馈。
func (h *RoadmapHandler) SubmitStepFeedback(c *gin.Context) {
	var req StepFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	if !allowedFeedbackTypes[req.FeedbackType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不支持的反馈类型"})
		return
	}
	userID := c.GetUint("userID")

	err := h.roadmapService.SubmitStepFeedback(userID, c.Param("roadmapId"), c.Param("stepId"), req.FeedbackType, req.Message)
	if errors.Is(err, repository.ErrRoadmapNotFound) || errors.Is(err, service.ErrStepNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "路线图或步骤不存在"})
		return
	}
	if err != nil {
		log.Errorf("SubmitStepFeedback: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "提交反馈失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "反馈已记录",
		"data":    nil,
	})
}

// CompleteStep 把一个步骤标记为完成并返回更新后的路线图。
func (h *RoadmapHandler) CompleteStep(c *gin.Context) {
	userID := c.GetUint("userID")
	roadmap, err := h.roadmapService.MarkStepComplete(userID, c.Param("roadmapId"), c.Param("stepId"))
	if errors.Is(err, repository.ErrRoadmapNotFound) || errors.Is(err, service.ErrStepNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "路线图或步骤不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新步骤失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    roadmap,
	})
}

// Regenerate 分析累计反馈并生成新版本路线图。
func (h *RoadmapHandler) Regenerate(c *gin.Context) {
	userID := c.GetUint("userID")
	roadmap, err := h.roadmapService.Regenerate(c.Request.Context(), userID)
	if errors.Is(err, service.ErrNoActiveRoadmap) {
		c.JSON(http.StatusNotFound, gin.H{"error": "当前没有激活的路线图"})
		return
	}
	if errors.Is(err, service.ErrGenerationFailed) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "再生成失败，旧版本已归档，请稍后重试"})
		return
	}
	if err != nil {
		log.Errorf("Regenerate roadmap: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "再生成失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    roadmap,
	})
}
