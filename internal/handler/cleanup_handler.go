package handler

import (
	"net/http"

	"s3shift-go/internal/service"
	"s3shift-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// CleanupHandler 负责处理预览缓存清理的 API 请求。
type CleanupHandler struct {
	cleanupService *service.CleanupService
}

// NewCleanupHandler 创建一个新的 CleanupHandler 实例。
func NewCleanupHandler(cleanupService *service.CleanupService) *CleanupHandler {
	return &CleanupHandler{cleanupService: cleanupService}
}

// CleanupRequest 定义了预览清理 API 的请求体结构。
type CleanupRequest struct {
	MaxAgeDays int `json:"maxAgeDays"`
	MaxCount   int `json:"maxCount"`
}

// CleanupPreviews 按年龄与数量上限清理过期预览缓存。
// maxAgeDays 为 0 是合法的空操作，表示清理被禁用。
func (h *CleanupHandler) CleanupPreviews(c *gin.Context) {
	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	if req.MaxAgeDays < 0 || req.MaxCount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "maxAgeDays 与 maxCount 不能为负"})
		return
	}

	result, err := h.cleanupService.Cleanup(c.Request.Context(), req.MaxAgeDays, req.MaxCount)
	if err != nil {
		log.Error("CleanupPreviews: cleanup failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, result)
}
