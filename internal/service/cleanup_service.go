package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"s3shift-go/internal/model"
	"s3shift-go/internal/repository"
	"s3shift-go/pkg/log"
)

// CleanupService 清理过期的预览缓存记录：对象、本地文件和目录库行。
// 预览是派生数据，删除失败只记日志，不会让清理任务失败。
type CleanupService struct {
	catalog  repository.CatalogRepository
	store    ObjectStore
	dataRoot string
	dryRun   bool
}

// NewCleanupService 创建一个新的 CleanupService 实例。
func NewCleanupService(catalog repository.CatalogRepository, store ObjectStore, dataRoot string, dryRun bool) *CleanupService {
	return &CleanupService{catalog: catalog, store: store, dataRoot: dataRoot, dryRun: dryRun}
}

// Cleanup 删除早于 maxAgeDays 的预览缓存，最旧优先，至多 maxCount 条。
// maxAgeDays 为 0 表示清理被禁用，直接返回零结果，不查询目录库。
func (s *CleanupService) Cleanup(ctx context.Context, maxAgeDays, maxCount int) (model.CleanupResult, error) {
	var result model.CleanupResult
	if maxAgeDays == 0 {
		log.Info("预览清理已禁用 (maxAgeDays=0)")
		return result, nil
	}
	if maxCount <= 0 {
		maxCount = 1000
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	entries, err := s.catalog.FindExpiredPreviews(cutoff, maxCount)
	if err != nil {
		return result, err
	}
	log.Infof("预览清理: 找到 %d 条过期候选 (cutoff=%s, dryRun=%v)", len(entries), cutoff.Format(time.RFC3339), s.dryRun)

	for i := range entries {
		entry := &entries[i]
		if s.dryRun {
			result.DeletedCount++
			result.BytesFreed += entry.Size
			continue
		}

		// 对象删除是尽力而为的
		if derr := s.store.Delete(ctx, entry.ObjectKey()); derr != nil {
			log.Warnf("删除预览对象失败: key=%s, error: %v", entry.ObjectKey(), derr)
		}

		// 本地文件若还在也一并删除
		localPath := filepath.Join(s.dataRoot, filepath.FromSlash(entry.Path))
		if rerr := os.Remove(localPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			log.Warnf("删除本地预览文件失败: path=%s, error: %v", localPath, rerr)
		}

		if derr := s.catalog.DeleteFileEntry(entry.FileID); derr != nil {
			log.Errorf("删除预览目录库记录失败: fileId=%d, error: %v", entry.FileID, derr)
			continue
		}
		result.DeletedCount++
		result.BytesFreed += entry.Size
	}

	log.Infof("预览清理完成: 删除 %d 条, 释放 %d 字节", result.DeletedCount, result.BytesFreed)
	return result, nil
}
