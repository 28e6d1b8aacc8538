package handler

import (
	"errors"
	"net/http"

	"s3shift-go/internal/service"
	"s3shift-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// MigrationHandler 负责处理迁移运行相关的 API 请求。
type MigrationHandler struct {
	migrationService *service.MigrationService
	preflightService *service.PreflightService
}

// NewMigrationHandler 创建一个新的 MigrationHandler 实例。
func NewMigrationHandler(migrationService *service.MigrationService, preflightService *service.PreflightService) *MigrationHandler {
	return &MigrationHandler{migrationService: migrationService, preflightService: preflightService}
}

// Preflight 执行只读预检并返回完整报告。
func (h *MigrationHandler) Preflight(c *gin.Context) {
	report := h.preflightService.Run(c.Request.Context())
	c.JSON(http.StatusOK, report)
}

// StartRequest 定义了启动迁移 API 的请求体结构。
type StartRequest struct {
	DryRun string `json:"dryRun"`
}

// Start 启动一次迁移运行。同一时刻只允许一次运行。
func (h *MigrationHandler) Start(c *gin.Context) {
	var req StartRequest
	// 空请求体等价于默认参数
	_ = c.ShouldBindJSON(&req)

	level, err := service.ParseDryRunLevel(req.DryRun)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID, err := h.migrationService.Start(level)
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		log.Error("Start: failed to start migration", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"runId": runID, "dryRun": string(level)})
}

// Stop 向运行中的迁移发送协作式停止信号。
func (h *MigrationHandler) Stop(c *gin.Context) {
	stopped := h.migrationService.Stop()
	if !stopped {
		c.JSON(http.StatusConflict, gin.H{"error": "当前没有运行中的迁移"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopping": true})
}

// Status 返回当前迁移进度快照，供轮询使用。
func (h *MigrationHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.migrationService.Status(c.Request.Context()))
}
