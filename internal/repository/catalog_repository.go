// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"s3shift-go/internal/model"

	"gorm.io/gorm"
)

// CatalogRepository 接口定义了迁移引擎对元数据目录库的全部依赖。
// 事务性写入通过 Begin 返回的 CatalogTx 进行，只读查询直接在接口上提供。
type CatalogRepository interface {
	// Ping 检查目录库连通性，用于预检。
	Ping(ctx context.Context) error
	// Begin 开启一个目录库事务。
	Begin() (CatalogTx, error)
	// GetStorageByIdentifier 按标识符查找存储，不存在时返回 (nil, nil)。
	GetStorageByIdentifier(identifier string) (*model.StorageLocation, error)
	// CountFilesOnStorage 统计指向给定存储的文件记录数。
	CountFilesOnStorage(storageID int64) (int64, error)
	// CountCandidates 统计给定存储上待迁移的候选记录数（排除目录与空路径）。
	CountCandidates(storageID int64) (int64, error)
	// CountStoragesWithPrefix 统计标识符带给定前缀的存储数，用于收尾审计。
	CountStoragesWithPrefix(prefix string) (int64, error)
	// FindExpiredPreviews 按 mtime 升序返回早于 cutoff 的预览缓存记录，最多 limit 条。
	FindExpiredPreviews(cutoff time.Time, limit int) ([]model.FileEntry, error)
	// DeleteFileEntry 删除单条文件记录（清理任务使用，非事务）。
	DeleteFileEntry(fileID int64) error
}

// CatalogTx 是一个打开的目录库事务。迁移批次循环内的所有写入都经由它，
// Commit/Rollback 后不可再使用。
type CatalogTx interface {
	// NextBatch 返回给定源存储上 fileId 大于 afterFileID 的候选记录，
	// 严格按 fileId 升序，至多 limit 条。返回数少于 limit 即表示没有更多候选。
	NextBatch(sourceStorageID, afterFileID int64, limit int) ([]model.FileEntry, error)
	// EnsureStorage 查找或创建给定标识符的存储，保证恰好一行。
	EnsureStorage(identifier string) (*model.StorageLocation, error)
	// RepointFile 将文件记录的 storage_id 改写到目标存储。
	RepointFile(fileID, storageID int64) error
	// DeleteFileEntry 删除单条文件记录（deleteMissing 策略）。
	DeleteFileEntry(fileID int64) error
	// RemapMountProviders 将家目录挂载提供者由本地类改写为对象存储类。
	RemapMountProviders() (int64, error)
	// RemapHomeStorages 将 home:: 前缀的存储标识符整体改写为 object::user: 前缀，
	// 保留数字 id，引用它们的文件记录无需逐行更新。
	RemapHomeStorages() (int64, error)
	Commit() error
	Rollback() error
}

// catalogRepository 是 CatalogRepository 接口的 GORM 实现。
type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建一个新的 CatalogRepository 实例。
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// Ping 检查目录库连通性。
func (r *catalogRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Begin 开启一个目录库事务。
func (r *catalogRepository) Begin() (CatalogTx, error) {
	tx := r.db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("开启目录库事务失败: %w", tx.Error)
	}
	return &catalogTx{tx: tx}, nil
}

// GetStorageByIdentifier 按标识符查找存储记录。
func (r *catalogRepository) GetStorageByIdentifier(identifier string) (*model.StorageLocation, error) {
	return findStorage(r.db, identifier)
}

// CountFilesOnStorage 统计指向给定存储的文件记录数。
func (r *catalogRepository) CountFilesOnStorage(storageID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.FileEntry{}).Where("storage_id = ?", storageID).Count(&count).Error
	return count, err
}

// CountCandidates 统计待迁移候选记录数，口径与 NextBatch 一致。
func (r *catalogRepository) CountCandidates(storageID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.FileEntry{}).
		Where("storage_id = ? AND mimetype <> ? AND path <> ''", storageID, model.DirectoryMimetype).
		Count(&count).Error
	return count, err
}

// CountStoragesWithPrefix 统计标识符带给定前缀的存储数。
func (r *catalogRepository) CountStoragesWithPrefix(prefix string) (int64, error) {
	var count int64
	err := r.db.Model(&model.StorageLocation{}).
		Where("identifier LIKE ?", escapeLike(prefix)+"%").
		Count(&count).Error
	return count, err
}

// FindExpiredPreviews 返回早于 cutoff 的预览缓存记录，按最旧优先排序。
// 预览缓存是派生数据，只匹配固定的路径模式，不会选中用户文件。
func (r *catalogRepository) FindExpiredPreviews(cutoff time.Time, limit int) ([]model.FileEntry, error) {
	var entries []model.FileEntry
	err := r.db.
		Where("mtime < ?", cutoff.Unix()).
		Where(r.db.Where("path LIKE ?", "appdata\\_%/preview/%").Or("path LIKE ?", "thumbnails/%")).
		Order("mtime asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// DeleteFileEntry 删除单条文件记录。
func (r *catalogRepository) DeleteFileEntry(fileID int64) error {
	return r.db.Where("file_id = ?", fileID).Delete(&model.FileEntry{}).Error
}

// catalogTx 是 CatalogTx 接口的 GORM 实现。
type catalogTx struct {
	tx *gorm.DB
}

// NextBatch 是批次游标查询：严格按 file_id 升序、排除目录哨兵 mimetype 与空路径。
// 崩溃后以最后提交的 file_id 作为 afterFileID 重新请求即可续传，
// 不会重选已处理的更小 id，也不会跳过任何更大的 id。
func (t *catalogTx) NextBatch(sourceStorageID, afterFileID int64, limit int) ([]model.FileEntry, error) {
	var entries []model.FileEntry
	err := t.tx.
		Where("storage_id = ? AND file_id > ? AND mimetype <> ? AND path <> ''",
			sourceStorageID, afterFileID, model.DirectoryMimetype).
		Order("file_id asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// EnsureStorage 以先查后插的方式保证目标存储恰好存在一行。
// identifier 上有唯一索引，并发创建者插入冲突后重新查找并复用已有行。
func (t *catalogTx) EnsureStorage(identifier string) (*model.StorageLocation, error) {
	storage, err := findStorage(t.tx, identifier)
	if err != nil {
		return nil, err
	}
	if storage != nil {
		return storage, nil
	}

	created := &model.StorageLocation{Identifier: identifier}
	if err := t.tx.Create(created).Error; err != nil {
		if isDuplicateKey(err) {
			return findStorage(t.tx, identifier)
		}
		return nil, fmt.Errorf("创建存储记录失败 identifier=%s: %w", identifier, err)
	}
	return created, nil
}

// RepointFile 将文件记录指向新的存储。
func (t *catalogTx) RepointFile(fileID, storageID int64) error {
	return t.tx.Model(&model.FileEntry{}).
		Where("file_id = ?", fileID).
		Update("storage_id", storageID).Error
}

// DeleteFileEntry 删除单条文件记录。
func (t *catalogTx) DeleteFileEntry(fileID int64) error {
	return t.tx.Where("file_id = ?", fileID).Delete(&model.FileEntry{}).Error
}

// RemapMountProviders 集合式改写挂载提供者类名。WHERE 条件是确定的，重复执行无副作用。
func (t *catalogTx) RemapMountProviders() (int64, error) {
	res := t.tx.Model(&model.MountProvider{}).
		Where("provider_class = ?", model.LocalHomeMountProvider).
		Update("provider_class", model.ObjectHomeMountProvider)
	return res.RowsAffected, res.Error
}

// RemapHomeStorages 集合式改写 home:: 存储标识符为 object::user: 前缀。
// 'home::' 长度为 6，SUBSTRING 从第 7 个字符取用户名。
func (t *catalogTx) RemapHomeStorages() (int64, error) {
	res := t.tx.Exec(
		"UPDATE storage_location SET identifier = CONCAT('object::user:', SUBSTRING(identifier, 7)) WHERE identifier LIKE 'home::%'")
	return res.RowsAffected, res.Error
}

// Commit 提交事务。
func (t *catalogTx) Commit() error {
	return t.tx.Commit().Error
}

// Rollback 回滚事务。
func (t *catalogTx) Rollback() error {
	return t.tx.Rollback().Error
}

// findStorage 按标识符查找存储，未找到返回 (nil, nil)。
func findStorage(db *gorm.DB, identifier string) (*model.StorageLocation, error) {
	var storage model.StorageLocation
	err := db.Where("identifier = ?", identifier).First(&storage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &storage, nil
}

// isDuplicateKey 识别唯一键冲突。MySQL 错误码 1062。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

// escapeLike 转义 LIKE 模式中的特殊字符。
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
