package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"s3shift-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	runLockKey     = "migration:lock"
	runSnapshotKey = "migration:state"
	// 锁带过期时间，进程崩溃后不会永久卡住下一次运行。
	runLockTTL = 12 * time.Hour
)

// RunStateRepository 接口定义了迁移运行的跨进程状态：
// 同一目录库同时只允许一个运行的互斥锁，以及供轮询接口读取的进度快照。
type RunStateRepository interface {
	AcquireLock(ctx context.Context, runID string) (bool, error)
	ReleaseLock(ctx context.Context, runID string) error
	SaveSnapshot(ctx context.Context, snapshot model.StateSnapshot) error
	GetSnapshot(ctx context.Context) (*model.StateSnapshot, error)
}

// runStateRepository 是 RunStateRepository 接口的 Redis 实现。
type runStateRepository struct {
	redisClient *redis.Client
}

// NewRunStateRepository 创建一个新的 RunStateRepository 实例。
func NewRunStateRepository(redisClient *redis.Client) RunStateRepository {
	return &runStateRepository{redisClient: redisClient}
}

// AcquireLock 以 SetNX 抢占运行锁，返回是否抢占成功。
func (r *runStateRepository) AcquireLock(ctx context.Context, runID string) (bool, error) {
	return r.redisClient.SetNX(ctx, runLockKey, runID, runLockTTL).Result()
}

// ReleaseLock 释放运行锁。只有持锁的运行可以释放，避免误删后继运行的锁。
func (r *runStateRepository) ReleaseLock(ctx context.Context, runID string) error {
	holder, err := r.redisClient.Get(ctx, runLockKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if holder != runID {
		return nil
	}
	return r.redisClient.Del(ctx, runLockKey).Err()
}

// SaveSnapshot 发布最新的进度快照，供状态接口轮询。
func (r *runStateRepository) SaveSnapshot(ctx context.Context, snapshot model.StateSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return r.redisClient.Set(ctx, runSnapshotKey, data, 0).Err()
}

// GetSnapshot 读取最近发布的进度快照，从未发布时返回 (nil, nil)。
func (r *runStateRepository) GetSnapshot(ctx context.Context) (*model.StateSnapshot, error) {
	data, err := r.redisClient.Get(ctx, runSnapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snapshot model.StateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
