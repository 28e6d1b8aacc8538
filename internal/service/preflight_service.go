package service

import (
	"context"
	"fmt"
	"os"

	"s3shift-go/internal/config"
	"s3shift-go/internal/model"
	"s3shift-go/internal/repository"
)

// 预检单项的严重级别。
type CheckStatus string

const (
	CheckOK      CheckStatus = "ok"
	CheckInfo    CheckStatus = "info"
	CheckWarning CheckStatus = "warning"
	CheckError   CheckStatus = "error"
)

// CheckResult 是一项预检的结果。
type CheckResult struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
}

// CheckReport 是按执行顺序排列的预检结果集合。
// 只要有任意一项为 error，Ok 即为 false。
type CheckReport struct {
	Checks []CheckResult `json:"checks"`
	Ok     bool          `json:"ok"`
}

// PreflightService 在任何变更开始前做只读的就绪性检查。
// 单项失败不会中断其余检查，所有检查总是全部执行并一并返回。
type PreflightService struct {
	catalog repository.CatalogRepository
	store   ObjectStore
	cfg     config.MigrationConfig
	bucket  string
}

// NewPreflightService 创建一个新的 PreflightService 实例。
func NewPreflightService(catalog repository.CatalogRepository, store ObjectStore, cfg config.MigrationConfig, bucket string) *PreflightService {
	return &PreflightService{catalog: catalog, store: store, cfg: cfg, bucket: bucket}
}

// Run 按固定顺序执行所有预检并汇总结果，过程无任何副作用。
func (s *PreflightService) Run(ctx context.Context) CheckReport {
	report := CheckReport{Ok: true}
	add := func(name string, status CheckStatus, message string) {
		report.Checks = append(report.Checks, CheckResult{Name: name, Status: status, Message: message})
		if status == CheckError {
			report.Ok = false
		}
	}

	// 1. 目录库连通性
	if err := s.catalog.Ping(ctx); err != nil {
		add("catalog-connectivity", CheckError, fmt.Sprintf("目录库不可达: %v", err))
	} else {
		add("catalog-connectivity", CheckOK, "目录库连接正常")
	}

	// 2. 对象存储连通性（对配置的桶做轻量探测）
	if err := s.store.Probe(ctx); err != nil {
		add("objectstore-connectivity", CheckError, fmt.Sprintf("对象存储探测失败: %v", err))
	} else {
		add("objectstore-connectivity", CheckOK, fmt.Sprintf("存储桶 '%s' 可达", s.bucket))
	}

	// 3. 源存储解析（缺失则迁移无从谈起）
	source, err := s.catalog.GetStorageByIdentifier(s.cfg.SourceIdentifier)
	switch {
	case err != nil:
		add("source-storage", CheckError, fmt.Sprintf("查询源存储失败: %v", err))
	case source == nil:
		add("source-storage", CheckError, fmt.Sprintf("源存储 '%s' 不存在", s.cfg.SourceIdentifier))
	default:
		add("source-storage", CheckOK, fmt.Sprintf("源存储 '%s' (id=%d)", source.Identifier, source.ID))
	}

	// 4. 目标存储解析（缺失属正常，首次迁移时才创建）
	destIdentifier := DestinationIdentifier(s.bucket)
	dest, err := s.catalog.GetStorageByIdentifier(destIdentifier)
	switch {
	case err != nil:
		add("destination-storage", CheckError, fmt.Sprintf("查询目标存储失败: %v", err))
	case dest == nil:
		add("destination-storage", CheckInfo, fmt.Sprintf("目标存储 '%s' 尚不存在，迁移时创建", destIdentifier))
	default:
		add("destination-storage", CheckOK, fmt.Sprintf("目标存储 '%s' (id=%d)", dest.Identifier, dest.ID))
	}

	// 5. 已在目标上的文件记录数（非零说明存在先前的部分迁移）
	if dest != nil {
		count, cerr := s.catalog.CountFilesOnStorage(dest.ID)
		switch {
		case cerr != nil:
			add("destination-records", CheckError, fmt.Sprintf("统计目标存储上的记录失败: %v", cerr))
		case count > 0:
			add("destination-records", CheckWarning, fmt.Sprintf("目标存储上已有 %d 条记录，疑似存在部分迁移", count))
		default:
			add("destination-records", CheckOK, "目标存储上没有已迁移的记录")
		}
	} else {
		add("destination-records", CheckOK, "目标存储尚不存在，无已迁移的记录")
	}

	// 6. 本地数据目录存在性
	if info, serr := os.Stat(s.cfg.DataRoot); serr != nil || !info.IsDir() {
		add("data-root", CheckError, fmt.Sprintf("数据目录 '%s' 不存在或不可用", s.cfg.DataRoot))
	} else {
		add("data-root", CheckOK, fmt.Sprintf("数据目录 '%s' 存在", s.cfg.DataRoot))
	}

	// 7. 备份目录存在性
	if s.cfg.BackupDir == "" {
		add("backup-dir", CheckWarning, "未配置备份目录，迁移前将不做备份")
	} else if info, serr := os.Stat(s.cfg.BackupDir); serr != nil || !info.IsDir() {
		add("backup-dir", CheckError, fmt.Sprintf("备份目录 '%s' 不存在或不可用", s.cfg.BackupDir))
	} else {
		add("backup-dir", CheckOK, fmt.Sprintf("备份目录 '%s' 存在", s.cfg.BackupDir))
	}

	return report
}

// DestinationIdentifier 返回配置桶对应的目标存储标识符。
func DestinationIdentifier(bucket string) string {
	return model.ObjectBucketStorage{Provider: "s3", Bucket: bucket}.Identifier()
}
