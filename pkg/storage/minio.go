// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"time"

	"s3shift-go/internal/config"
	"s3shift-go/internal/service"
	"s3shift-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// 传输失败的固定重试预算，超时按可重试的传输失败处理。
const transferRetries = 2

// MinioStore 是 service.ObjectStore 的 MinIO 实现。
// 每次对象存储调用都带有超时，上传与探测失败在预算内重试。
type MinioStore struct {
	client   *minio.Client
	bucket   string
	timeout  time.Duration
	partSize uint64
}

var _ service.ObjectStore = (*MinioStore)(nil)

// NewMinioStore 初始化 MinIO 客户端。只建立客户端，不做桶的创建，
// 桶是否存在由预检里的 Probe 检查。
func NewMinioStore(cfg config.MinIOConfig) (*MinioStore, error) {
	lookup := minio.BucketLookupDNS
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	var partSize uint64
	if cfg.MultipartThreshold > 0 {
		partSize = uint64(cfg.MultipartThreshold)
	}

	log.Info("MinIO 客户端初始化成功")
	return &MinioStore{
		client:   client,
		bucket:   cfg.BucketName,
		timeout:  time.Duration(cfg.RequestTimeoutSec) * time.Second,
		partSize: partSize,
	}, nil
}

// Upload 将本地文件上传到给定键。超时与传输错误在固定预算内重试，
// 键由文件 ID 派生，重试只会覆盖同一个对象，不会产生重复。
func (s *MinioStore) Upload(ctx context.Context, key, localPath string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= transferRetries; attempt++ {
		if attempt > 0 {
			log.Warnf("上传重试 %d/%d, key=%s, 上次错误: %v", attempt, transferRetries, key, lastErr)
		}
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		info, err := s.client.FPutObject(callCtx, s.bucket, key, localPath, minio.PutObjectOptions{
			PartSize: s.partSize,
		})
		cancel()
		if err == nil {
			return info.Size, nil
		}
		lastErr = err
		// 调用方取消时立即停止，不消耗重试预算。
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
	return 0, fmt.Errorf("上传对象失败 key=%s: %w", key, lastErr)
}

// Delete 删除给定键的对象。
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.RemoveObject(callCtx, s.bucket, key, minio.RemoveObjectOptions{})
}

// Stat 返回给定键对象的大小。
func (s *MinioStore) Stat(ctx context.Context, key string) (int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	info, err := s.client.StatObject(callCtx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return 0, service.ErrObjectNotFound
		}
		return 0, err
	}
	return info.Size, nil
}

// List 返回指定前缀下的所有对象键。
func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var keys []string
	for obj := range s.client.ListObjects(callCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Probe 检查配置的存储桶是否存在且可达。桶不存在视为错误，
// 引擎不负责创建桶。
func (s *MinioStore) Probe(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	exists, err := s.client.BucketExists(callCtx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		return fmt.Errorf("存储桶 '%s' 不存在", s.bucket)
	}
	return nil
}
