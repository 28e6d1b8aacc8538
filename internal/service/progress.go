package service

import (
	"context"
	"fmt"

	"s3shift-go/internal/model"
	"s3shift-go/internal/repository"
	"s3shift-go/pkg/log"
)

// ProgressSink 接收迁移进度快照。发布由状态机单线程串行进行，
// 实现方无需自行加锁。
type ProgressSink interface {
	Publish(snapshot model.StateSnapshot)
}

// LogSink 把进度快照写入结构化日志。
type LogSink struct{}

// Publish 实现 ProgressSink。
func (LogSink) Publish(snapshot model.StateSnapshot) {
	log.Infow("migration progress",
		"runId", snapshot.RunID,
		"phase", snapshot.Phase,
		"migrated", snapshot.Migrated,
		"failed", snapshot.Failed,
		"bytes", snapshot.Bytes,
		"currentFile", snapshot.CurrentFile,
	)
}

// RedisSink 把进度快照发布到 Redis，供轮询的状态接口读取。
type RedisSink struct {
	runState repository.RunStateRepository
}

// NewRedisSink 创建一个新的 RedisSink 实例。
func NewRedisSink(runState repository.RunStateRepository) *RedisSink {
	return &RedisSink{runState: runState}
}

// Publish 实现 ProgressSink。发布失败只记日志，进度是旁路数据。
func (s *RedisSink) Publish(snapshot model.StateSnapshot) {
	if err := s.runState.SaveSnapshot(context.Background(), snapshot); err != nil {
		log.Warnf("发布进度快照到 Redis 失败: %v", err)
	}
}

// DryRunLevel 是显式的三态演练开关。
type DryRunLevel string

const (
	// DryRunOff 正常迁移。
	DryRunOff DryRunLevel = "off"
	// DryRunFull 只做本地存在性检查，不读文件内容，不做任何网络或目录库变更。
	DryRunFull DryRunLevel = "full"
	// DryRunNoTransfer 读取并校验本地文件，但跳过上传、校验与目录库改写。
	DryRunNoTransfer DryRunLevel = "no-transfer"
)

// ParseDryRunLevel 解析配置或请求中的演练级别，空串视为 off。
func ParseDryRunLevel(s string) (DryRunLevel, error) {
	switch s {
	case "", string(DryRunOff):
		return DryRunOff, nil
	case string(DryRunFull):
		return DryRunFull, nil
	case string(DryRunNoTransfer):
		return DryRunNoTransfer, nil
	}
	return DryRunOff, fmt.Errorf("无效的演练级别: %q", s)
}
